package store

import (
	"sync"
)

// subscriberBuffer is sized for snapshot cadence: even the fastest polling
// tier produces one snapshot every 30 seconds.
const subscriberBuffer = 16

// MemoryStore is the in-memory [Store] implementation.
//
// It holds the single latest snapshot, each update replacing the one
// before, and fans updates out to subscribers over buffered channels.
//
// Fan-out never blocks: a subscriber whose buffer is full simply misses
// that update, so one stuck reader cannot stall the poll loop.
type MemoryStore struct {
	mu          sync.RWMutex
	latest      Snapshot
	hasLatest   bool
	subscribers map[chan Snapshot]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates an empty [MemoryStore].
//
// The returned store is ready for use and needs no teardown.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Update stores a [Snapshot] and notifies all subscribers.
//
// The previous snapshot is replaced. Subscribers with a full buffer miss
// this update.
func (m *MemoryStore) Update(snap Snapshot) {
	m.mu.Lock()
	m.latest = snap
	m.hasLatest = true
	m.mu.Unlock()

	m.notifySubscribers(snap)
}

// Latest returns the most recent snapshot. ok is false before the first
// update.
func (m *MemoryStore) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.latest, m.hasLatest
}

// Subscribe registers a new subscriber and returns its update channel.
//
// The channel is buffered; once it fills, further updates are dropped for
// this subscriber until it drains.
//
// Callers must [MemoryStore.Unsubscribe] when done or the channel leaks.
func (m *MemoryStore) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe drops the given subscription and closes its channel.
//
// No updates are sent after Unsubscribe returns. Calling it twice, or with
// a channel that was never subscribed, is a no-op.
func (m *MemoryStore) Unsubscribe(ch <-chan Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// the map holds send-capable channels, so match by identity
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers delivers the snapshot to every active subscriber,
// skipping any whose buffer is full so the update path never blocks.
func (m *MemoryStore) notifySubscribers(snap Snapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// slow subscriber, drop it
		}
	}
}
