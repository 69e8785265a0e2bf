package quota

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"
)

// remainingUnknown marks Remaining before any vendor header has been seen.
const remainingUnknown = -1

// Tracker owns the quota state for a single home.
//
// Every API response, whether from the poll loop or a manual command, is
// recorded here so the daily counter stays honest. The tracker is handed to
// the API client as its call recorder; nothing else mutates it.
//
// Persistence is decoupled from recording: RecordCall only marks the state
// dirty, and [Tracker.Persist] writes it through the [Store] later. A slow
// or broken store therefore never stalls or kills the poll loop.
//
// All methods are safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	policy Policy
	state  State
	dirty  bool
	gen    uint64 // bumped on every mutation, guards Persist against lost updates

	store  Store
	saveMu sync.Mutex // serializes Persist so state IO never interleaves

	logger *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewTracker creates a [Tracker] with the given policy, restoring any state
// previously saved to store.
//
// A restored state whose ResetAt has passed starts a fresh day instead.
// store may be nil, in which case state lives only in memory. A nil logger
// falls back to [slog.Default].
func NewTracker(policy Policy, store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		policy: policy,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	t.state = State{
		Limit:     policy.Limit(),
		Remaining: remainingUnknown,
		ResetAt:   nextMidnight(t.now()),
	}

	if store != nil {
		t.restore()
	}
	return t
}

// restore loads persisted state. Load failures are logged and ignored; the
// tracker starts from a clean day.
func (t *Tracker) restore() {
	saved, ok, err := t.store.Load()
	if err != nil {
		t.logger.Warn("failed to restore quota state, starting fresh", "error", err)
		return
	}
	if !ok {
		return
	}

	now := t.now()
	if !saved.ResetAt.After(now) {
		t.logger.Info("persisted quota state expired",
			"reset_at", saved.ResetAt,
			"calls_today", saved.CallsToday,
		)
		return
	}

	t.state.CallsToday = saved.CallsToday
	t.state.ResetAt = saved.ResetAt
	if saved.Limit > 0 {
		t.state.Limit = saved.Limit
	}
	if saved.Remaining >= 0 {
		t.state.Remaining = saved.Remaining
	}
	if saved.SuspendedUntil.After(now) {
		t.state.SuspendedUntil = saved.SuspendedUntil
	}

	t.logger.Info("restored quota state",
		"calls_today", t.state.CallsToday,
		"limit", t.state.Limit,
		"reset_at", t.state.ResetAt,
	)
}

// RecordCall counts one completed API call and applies any quota values the
// vendor reported in the response headers.
//
// Header values overwrite the local bookkeeping: the vendor's view of the
// quota is authoritative, the local counter only bridges the gaps between
// responses. The update is picked up by the next [Tracker.Persist];
// RecordCall itself never performs IO.
func (t *Tracker) RecordCall(h http.Header) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.resetIfDueLocked(now)

	t.state.CallsToday++
	if t.state.Remaining > 0 {
		// keep the header-derived allowance moving between responses
		t.state.Remaining--
	}

	if q, ok := parseQuotaHeaders(h); ok {
		if q.limit > 0 {
			t.state.Limit = q.limit
		}
		if q.remaining >= 0 {
			t.state.Remaining = q.remaining
		}
		if q.reset > 0 {
			t.state.ResetAt = now.Add(q.reset)
		}
	}

	t.markDirtyLocked()
}

// RecordRateLimit notes an HTTP 429 from the vendor and suspends polling.
// Polling resumes at resetAt, or at the next daily reset when resetAt is
// zero. The rejected request is not counted against the quota.
func (t *Tracker) RecordRateLimit(resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfDueLocked(t.now())

	until := resetAt
	if until.IsZero() {
		until = t.state.ResetAt
	}
	t.state.SuspendedUntil = until
	t.markDirtyLocked()

	t.logger.Warn("rate limited by vendor", "suspended_until", until)
}

// ShouldPoll reports whether an API call may be made at time now.
//
// It is false while a 429 suspension is active and false once the daily
// quota is exhausted. The vendor-reported remaining allowance takes
// precedence over the local counter when known.
func (t *Tracker) ShouldPoll(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfDueLocked(now)

	if now.Before(t.state.SuspendedUntil) {
		return false
	}
	if t.state.Remaining != remainingUnknown {
		return t.state.Remaining > 0
	}
	return t.state.CallsToday < t.state.Limit
}

// ResetIfDue rolls the daily counter over when now has passed ResetAt.
// Calling it again with the same now is a no-op.
func (t *Tracker) ResetIfDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfDueLocked(now)
}

func (t *Tracker) resetIfDueLocked(now time.Time) {
	if now.Before(t.state.ResetAt) {
		return
	}

	t.logger.Info("daily quota reset",
		"calls_made", t.state.CallsToday,
		"limit", t.state.Limit,
	)

	t.state.CallsToday = 0
	t.state.Remaining = remainingUnknown
	t.state.SuspendedUntil = time.Time{}
	t.state.ResetAt = nextMidnight(now)
	t.markDirtyLocked()
}

// Interval returns the effective polling interval from the policy.
func (t *Tracker) Interval() time.Duration {
	return t.policy.Interval()
}

// ResetAt returns when the daily counter next rolls over.
func (t *Tracker) ResetAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.ResetAt
}

// Usage returns a point-in-time view of quota consumption.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.resetIfDueLocked(now)

	u := Usage{
		CallsToday:      t.state.CallsToday,
		Limit:           t.state.Limit,
		Remaining:       t.state.Remaining,
		ResetAt:         t.state.ResetAt,
		Tier:            t.policy.Tier,
		IntervalSeconds: int64(t.policy.Interval() / time.Second),
	}
	if u.Tier == "" {
		u.Tier = TierFree
	}
	if u.Remaining < 0 {
		// vendor has not told us yet; derive from the local counter
		u.Remaining = t.state.Limit - t.state.CallsToday
		if u.Remaining < 0 {
			u.Remaining = 0
		}
	}
	if t.state.Limit > 0 {
		u.Percent = math.Round(float64(t.state.CallsToday)/float64(t.state.Limit)*1000) / 10
	}
	if now.Before(t.state.SuspendedUntil) {
		u.Suspended = true
		u.SuspendedUntil = t.state.SuspendedUntil
	}
	return u
}

// Persist writes the current state through the store when it has changed
// since the last successful write.
//
// Persist is cheap to call often: it no-ops when the state is clean or when
// no store is configured. IO happens outside the state lock, so recording
// continues unblocked while a slow disk catches up.
func (t *Tracker) Persist() error {
	if t.store == nil {
		return nil
	}

	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	if !t.dirty {
		t.mu.Unlock()
		return nil
	}
	gen := t.gen
	snapshot := t.state
	snapshot.SavedAt = t.now()
	t.mu.Unlock()

	if err := t.store.Save(snapshot); err != nil {
		return fmt.Errorf("failed to persist quota state: %w", err)
	}

	t.mu.Lock()
	t.state.SavedAt = snapshot.SavedAt
	if t.gen == gen {
		// nothing changed while the write was in flight
		t.dirty = false
	}
	t.mu.Unlock()
	return nil
}

func (t *Tracker) markDirtyLocked() {
	t.dirty = true
	t.gen++
}

// nextMidnight returns the first local midnight after now. time.Date
// normalizes day+1 across month and DST boundaries.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}
