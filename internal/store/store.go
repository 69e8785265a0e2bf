package store

import (
	"time"

	"github.com/jpalmerr/tadowatch/internal/quota"
	"github.com/jpalmerr/tadowatch/tado"
)

// Snapshot is one complete picture of the home produced by a poll cycle.
//
// Snapshot is the storage representation of home state, optimized for JSON
// serialization (used by the REST API and SSE). Optional sections are nil
// when their feature is disabled or their fetch failed.
type Snapshot struct {
	// Rooms is the live state of every room.
	Rooms []tado.Room `json:"rooms"`

	// Devices is the device inventory grouped by room.
	Devices *tado.RoomsAndDevices `json:"devices"`

	// Home is the presence state.
	Home *tado.HomeState `json:"home"`

	// Weather is the outside conditions, when the weather feature is on.
	Weather *tado.Weather `json:"weather,omitempty"`

	// MobileDevices lists geofencing phones, when that feature is on.
	MobileDevices []tado.MobileDevice `json:"mobile_devices,omitempty"`

	// AirComfort is the per-room air quality, when that feature is on.
	AirComfort *tado.AirComfort `json:"air_comfort,omitempty"`

	// FlowTemperature is the boiler flow setting, when that feature is on.
	FlowTemperature *tado.FlowTemperatureOptimization `json:"flow_temperature,omitempty"`

	// RateLimited marks a snapshot carrying stale data because the vendor
	// answered 429 during the cycle.
	RateLimited bool `json:"rate_limited"`

	// Error contains the first fetch error of the cycle.
	// nil indicates the cycle completed cleanly.
	Error *string `json:"error"`

	// UpdatedAt is when the cycle finished.
	UpdatedAt time.Time `json:"updated_at"`

	// Usage is the quota accounting at the end of the cycle.
	Usage quota.Usage `json:"usage"`
}

// Store holds the latest snapshot and lets consumers subscribe to changes.
//
// Implementations must tolerate concurrent callers; the SSE handler and the
// poll loop touch the store from different goroutines.
type Store interface {
	// Update stores a new snapshot and notifies all subscribers.
	// Each update replaces the previous snapshot.
	Update(snap Snapshot)

	// Latest returns the most recent snapshot. ok is false before the
	// first update.
	Latest() (snap Snapshot, ok bool)

	// Subscribe returns a buffered channel of snapshot updates. Slow
	// consumers miss updates rather than block the producer. Every
	// Subscribe needs a matching Unsubscribe.
	Subscribe() <-chan Snapshot

	// Unsubscribe drops a subscription and closes its channel. Unknown
	// or already-removed channels are ignored.
	Unsubscribe(ch <-chan Snapshot)
}
