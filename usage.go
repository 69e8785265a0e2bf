package tadowatch

import (
	"time"

	"github.com/jpalmerr/tadowatch/internal/quota"
)

// Tier identifies the Tado subscription tier the daily quota is derived from.
//
// Tier is a string type that can hold one of two predefined values:
// [TierFree] or [TierAutoAssist]. Using a string type allows for easy
// serialization and human-readable logging while maintaining type safety
// through the defined constants.
type Tier string

const (
	// TierFree is the free subscription tier: 100 API calls per day,
	// with a default update interval of 45 minutes.
	TierFree Tier = "free"

	// TierAutoAssist is the paid Auto-Assist tier: 20000 API calls per
	// day, with a default update interval of 30 seconds.
	TierAutoAssist Tier = "auto_assist"
)

// String implements fmt.Stringer.
func (t Tier) String() string {
	return string(t)
}

// Usage is a read-only view of the daily API quota.
//
// Usage is immutable after creation. A fresh value is attached to every
// [Update] and returned by [Watcher.Usage]; the counters reflect all calls
// made through the shared client, scheduled and manual alike.
type Usage struct {
	// CallsToday is the number of API calls made since the last daily reset.
	CallsToday int

	// Limit is the daily request quota for the configured tier, or the
	// vendor-advertised limit when the API reports one.
	Limit int

	// Remaining is the vendor-reported remaining allowance when known,
	// otherwise Limit minus CallsToday.
	Remaining int

	// Percent is CallsToday as a percentage of Limit.
	Percent float64

	// ResetAt is when the daily counter rolls over (local midnight).
	ResetAt time.Time

	// Suspended reports whether polling is paused after an HTTP 429.
	Suspended bool

	// SuspendedUntil is when polling resumes. Zero unless Suspended.
	SuspendedUntil time.Time

	// Tier is the subscription tier the quota policy assumes.
	Tier Tier

	// Interval is the effective time between update cycles.
	Interval time.Duration
}

// usageFromQuota converts the internal quota view to the public API type.
func usageFromQuota(u quota.Usage) Usage {
	return Usage{
		CallsToday:     u.CallsToday,
		Limit:          u.Limit,
		Remaining:      u.Remaining,
		Percent:        u.Percent,
		ResetAt:        u.ResetAt,
		Suspended:      u.Suspended,
		SuspendedUntil: u.SuspendedUntil,
		Tier:           Tier(u.Tier),
		Interval:       time.Duration(u.IntervalSeconds) * time.Second,
	}
}
