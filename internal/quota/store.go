package quota

import (
	"sync"
	"time"
)

// State is the persisted quota counter for one home.
//
// State is what survives a restart: the call count, the vendor-reported
// quota values, and the timestamps that decide when the counter rolls over.
type State struct {
	// CallsToday is the number of API calls made since the last reset.
	CallsToday int `json:"calls_today"`

	// Limit is the daily quota: the tier default until the vendor's
	// rate-limit headers report the real value.
	Limit int `json:"limit"`

	// Remaining is the vendor-reported remaining allowance.
	// -1 means no header has been seen since the last reset.
	Remaining int `json:"remaining"`

	// ResetAt is when the daily counter rolls over.
	ResetAt time.Time `json:"reset_at"`

	// SuspendedUntil is set after an HTTP 429. Zero means not suspended.
	SuspendedUntil time.Time `json:"suspended_until"`

	// SavedAt is when this state was written.
	SavedAt time.Time `json:"saved_at"`
}

// Store persists quota [State] across restarts.
//
// Implementations must be safe for concurrent use. A Store that fails is
// not fatal to the watcher: the tracker keeps state in memory and retries
// the write on the next cycle.
type Store interface {
	// Load returns the previously saved state. The bool reports whether
	// any state was found; a missing state is not an error.
	Load() (State, bool, error)

	// Save writes the state, replacing any previous value.
	Save(State) error
}

// MemoryStore is an in-memory [Store].
//
// It backs tests and watchers that run without a data directory; state is
// lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	saved bool
}

// NewMemoryStore creates an empty in-memory [Store].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the last saved state, if any.
func (m *MemoryStore) Load() (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.saved, nil
}

// Save replaces the stored state.
func (m *MemoryStore) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
	m.saved = true
	return nil
}
