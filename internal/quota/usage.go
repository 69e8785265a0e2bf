package quota

import "time"

// Usage is a read-only view of quota consumption, shaped for JSON
// serialization (the REST API and SSE stream embed it in every snapshot).
type Usage struct {
	// CallsToday is the number of API calls made since the last reset.
	CallsToday int `json:"calls_today"`

	// Limit is the daily request quota.
	Limit int `json:"limit"`

	// Remaining is the vendor-reported remaining allowance when known,
	// otherwise Limit minus CallsToday.
	Remaining int `json:"remaining"`

	// Percent is CallsToday as a percentage of Limit, rounded to one
	// decimal place.
	Percent float64 `json:"percent"`

	// ResetAt is when the daily counter rolls over.
	ResetAt time.Time `json:"reset_at"`

	// Suspended reports whether polling is paused after an HTTP 429.
	Suspended bool `json:"suspended"`

	// SuspendedUntil is when polling resumes. Zero unless Suspended.
	SuspendedUntil time.Time `json:"suspended_until"`

	// Tier is the subscription tier the policy assumes.
	Tier Tier `json:"tier"`

	// IntervalSeconds is the effective polling interval.
	IntervalSeconds int64 `json:"interval_seconds"`
}
