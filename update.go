package tadowatch

import (
	"errors"
	"slices"
	"time"

	"github.com/jpalmerr/tadowatch/internal/store"
	"github.com/jpalmerr/tadowatch/tado"
)

// Feature names an optional data section fetched during each update cycle.
//
// Rooms, devices, and home presence are always fetched (three API calls per
// cycle). Each enabled feature adds one more call per cycle, so enabling
// features shortens how long the daily quota lasts. See [WithFeatures].
type Feature string

const (
	// FeatureWeather fetches outside temperature and solar intensity.
	FeatureWeather Feature = "weather"

	// FeatureMobileDevices fetches registered phones and their
	// geofencing state.
	FeatureMobileDevices Feature = "mobile_devices"

	// FeatureAirComfort fetches per-room freshness and comfort data.
	FeatureAirComfort Feature = "air_comfort"

	// FeatureFlowTemperature fetches the boiler flow temperature
	// optimization setting.
	FeatureFlowTemperature Feature = "flow_temperature"
)

// validFeature reports whether f is one of the defined Feature constants.
func validFeature(f Feature) bool {
	switch f {
	case FeatureWeather, FeatureMobileDevices, FeatureAirComfort, FeatureFlowTemperature:
		return true
	}
	return false
}

// Update holds the outcome of one update cycle.
//
// Update is immutable after creation and carries everything the watcher
// knows about the home: the zone and device data fetched this cycle (or
// carried forward from the last successful cycle), any fetch error, and a
// fresh [Usage] snapshot of the daily quota.
type Update struct {
	// Rooms lists every heating zone with its current temperature,
	// humidity, setpoint, and heating power.
	Rooms []tado.Room

	// Devices lists the thermostats, valves, and sensors grouped by room.
	Devices *tado.RoomsAndDevices

	// Home carries the presence state (home/away) and whether it is locked.
	Home *tado.HomeState

	// Weather is nil unless [FeatureWeather] is enabled.
	Weather *tado.Weather

	// MobileDevices is nil unless [FeatureMobileDevices] is enabled.
	MobileDevices []tado.MobileDevice

	// AirComfort is nil unless [FeatureAirComfort] is enabled.
	AirComfort *tado.AirComfort

	// FlowTemperature is nil unless [FeatureFlowTemperature] is enabled.
	FlowTemperature *tado.FlowTemperatureOptimization

	// RateLimited reports that this update was produced while the quota
	// gate was closed (daily budget exhausted or an HTTP 429 suspension
	// in effect). The data fields carry the last successful fetch.
	RateLimited bool

	// Err contains the first error of the cycle, if any. Partial data
	// from the calls that succeeded is still populated; nil means every
	// request completed.
	Err error

	// UpdatedAt is when the cycle finished.
	UpdatedAt time.Time

	// Usage is the quota state as of this cycle.
	Usage Usage
}

// snapshotToUpdate converts an internal snapshot to the public API type.
// Slices are copied so a callback mutating them cannot corrupt the data
// carried forward into later cycles or served over HTTP.
func snapshotToUpdate(snap store.Snapshot) Update {
	var err error
	if snap.Error != nil {
		err = errors.New(*snap.Error)
	}

	return Update{
		Rooms:           slices.Clone(snap.Rooms),
		Devices:         cloneDevices(snap.Devices),
		Home:            clonePtr(snap.Home),
		Weather:         clonePtr(snap.Weather),
		MobileDevices:   slices.Clone(snap.MobileDevices),
		AirComfort:      cloneAirComfort(snap.AirComfort),
		FlowTemperature: clonePtr(snap.FlowTemperature),
		RateLimited:     snap.RateLimited,
		Err:             err,
		UpdatedAt:       snap.UpdatedAt,
		Usage:           usageFromQuota(snap.Usage),
	}
}

// clonePtr returns a copy of the value behind p, or nil if p is nil.
func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func cloneDevices(d *tado.RoomsAndDevices) *tado.RoomsAndDevices {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Rooms = slices.Clone(d.Rooms)
	cp.OtherDevices = slices.Clone(d.OtherDevices)
	return &cp
}

func cloneAirComfort(a *tado.AirComfort) *tado.AirComfort {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Comfort = slices.Clone(a.Comfort)
	return &cp
}
