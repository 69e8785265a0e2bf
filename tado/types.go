package tado

import (
	"math"
	"time"
)

// Temperature limits accepted by Tado X devices, in degrees Celsius.
const (
	MinTemperature  = 5.0
	MaxTemperature  = 25.0
	TemperatureStep = 0.5
)

// Temperature offset limits for device calibration, in degrees Celsius.
const (
	MinTemperatureOffset = -9.9
	MaxTemperatureOffset = 9.9
)

// ValidTemperature reports whether t is inside the device range and on a
// half-degree step.
func ValidTemperature(t float64) bool {
	if t < MinTemperature || t > MaxTemperature {
		return false
	}
	return math.Mod(math.Round(t*10), 5) == 0
}

// Device model identifiers for the Tado X generation.
const (
	DeviceTypeValve      = "VA04"
	DeviceTypeThermostat = "TR04"
	DeviceTypeSensor     = "SU04"
	DeviceTypeBridge     = "IB02"
)

// Battery states reported by devices.
const (
	BatteryNormal = "NORMAL"
	BatteryLow    = "LOW"
)

// Connection states between a device and the bridge.
const (
	ConnectionConnected    = "CONNECTED"
	ConnectionDisconnected = "DISCONNECTED"
)

// Presence is the home/away state of a home.
type Presence string

const (
	PresenceHome Presence = "HOME"
	PresenceAway Presence = "AWAY"

	// PresenceAuto removes the presence lock and returns control to
	// geofencing.
	PresenceAuto Presence = "AUTO"
)

// TerminationType controls how long a manual room setting lasts.
type TerminationType string

const (
	// TerminationManual keeps the setting until changed again.
	TerminationManual TerminationType = "MANUAL"

	// TerminationTimer keeps the setting for a fixed duration.
	TerminationTimer TerminationType = "TIMER"

	// TerminationNextBlock keeps the setting until the next scheduled
	// time block starts.
	TerminationNextBlock TerminationType = "NEXT_TIME_BLOCK"
)

// DefaultTimerDuration is applied when a TIMER termination carries no
// duration.
const DefaultTimerDuration = 30 * time.Minute

// Termination describes when a manual room control ends.
type Termination struct {
	Type TerminationType

	// Duration applies to TerminationTimer only. Zero means
	// DefaultTimerDuration.
	Duration time.Duration
}

// wire converts a Termination to the vendor's JSON shape.
func (t Termination) wire() map[string]any {
	typ := t.Type
	if typ == "" {
		typ = TerminationTimer
	}
	w := map[string]any{"type": typ}
	if typ == TerminationTimer {
		d := t.Duration
		if d == 0 {
			d = DefaultTimerDuration
		}
		w["durationInSeconds"] = int(d / time.Second)
	}
	return w
}

// Me is the authenticated account.
type Me struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Homes []Home `json:"homes"`
}

// Home identifies one home on the account.
type Home struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Temperature is the vendor's {"value": x} temperature shape.
type Temperature struct {
	Value float64 `json:"value"`
}

// Percentage is the vendor's {"percentage": x} shape.
type Percentage struct {
	Percentage float64 `json:"percentage"`
}

// RoomSetting is a room's target power and temperature.
type RoomSetting struct {
	Power       string       `json:"power"`
	Temperature *Temperature `json:"temperature,omitempty"`
}

// SensorDataPoints carries a room's measured conditions.
type SensorDataPoints struct {
	InsideTemperature Temperature `json:"insideTemperature"`
	Humidity          Percentage  `json:"humidity"`
}

// ManualControlTermination reports how an active manual control or boost
// ends.
type ManualControlTermination struct {
	Type                   TerminationType `json:"type"`
	RemainingTimeInSeconds int             `json:"remainingTimeInSeconds"`
	ProjectedExpiry        *time.Time      `json:"projectedExpiry"`
}

// OpenWindow reports open-window mode for a room.
type OpenWindow struct {
	Activated       bool `json:"activated"`
	ExpiryInSeconds int  `json:"expiryInSeconds"`
}

// NextScheduleChange announces the next scheduled setting change.
type NextScheduleChange struct {
	Start   time.Time   `json:"start"`
	Setting RoomSetting `json:"setting"`
}

// Room is the live state of one room.
type Room struct {
	ID                       int64                     `json:"id"`
	Name                     string                    `json:"name"`
	SensorDataPoints         SensorDataPoints          `json:"sensorDataPoints"`
	Setting                  RoomSetting               `json:"setting"`
	HeatingPower             Percentage                `json:"heatingPower"`
	BoostMode                *ManualControlTermination `json:"boostMode"`
	ManualControlTermination *ManualControlTermination `json:"manualControlTermination"`
	OpenWindow               *OpenWindow               `json:"openWindow"`
	NextScheduleChange       *NextScheduleChange       `json:"nextScheduleChange"`
}

// Connection is a device's link state to the bridge.
type Connection struct {
	State string `json:"state"`
}

// Device is one Tado X device.
type Device struct {
	SerialNo          string     `json:"serialNo"`
	Type              string     `json:"type"`
	FirmwareVersion   string     `json:"firmwareVersion"`
	Connection        Connection `json:"connection"`
	BatteryState      string     `json:"batteryState"`
	MountingState     string     `json:"mountingState,omitempty"`
	ChildLockEnabled  bool       `json:"childLockEnabled"`
	TemperatureOffset float64    `json:"temperatureOffset"`
}

// RoomDevices groups the devices mounted in one room.
type RoomDevices struct {
	RoomID   int64    `json:"roomId"`
	RoomName string   `json:"roomName"`
	Devices  []Device `json:"devices"`
}

// RoomsAndDevices is the home's device inventory.
type RoomsAndDevices struct {
	Rooms        []RoomDevices `json:"rooms"`
	OtherDevices []Device      `json:"otherDevices"`
}

// HomeState is the home's presence state.
type HomeState struct {
	Presence       Presence `json:"presence"`
	PresenceLocked bool     `json:"presenceLocked"`
}

// Celsius is the vendor's {"celsius": x} temperature shape.
type Celsius struct {
	Celsius float64 `json:"celsius"`
}

// StringValue is the vendor's {"value": "..."} enum shape.
type StringValue struct {
	Value string `json:"value"`
}

// Weather is the outside conditions at the home's location.
type Weather struct {
	SolarIntensity     Percentage  `json:"solarIntensity"`
	OutsideTemperature Celsius     `json:"outsideTemperature"`
	WeatherState       StringValue `json:"weatherState"`
}

// MobileDeviceLocation is a phone's geofencing position relative to home.
type MobileDeviceLocation struct {
	AtHome bool `json:"atHome"`
	Stale  bool `json:"stale"`
}

// MobileDeviceSettings carries per-phone geofencing configuration.
type MobileDeviceSettings struct {
	GeoTrackingEnabled bool `json:"geoTrackingEnabled"`
}

// MobileDevice is a phone registered with the home for geofencing.
type MobileDevice struct {
	ID       int64                 `json:"id"`
	Name     string                `json:"name"`
	Settings MobileDeviceSettings  `json:"settings"`
	Location *MobileDeviceLocation `json:"location"`
}

// RoomComfort is the comfort assessment for one room.
type RoomComfort struct {
	RoomID           int64  `json:"roomId"`
	TemperatureLevel string `json:"temperatureLevel"`
	HumidityLevel    string `json:"humidityLevel"`
}

// AirComfort summarizes indoor air quality per room.
type AirComfort struct {
	Freshness StringValue   `json:"freshness"`
	Comfort   []RoomComfort `json:"comfort"`
}

// FlowTemperatureOptimization is the boiler flow temperature setting.
type FlowTemperatureOptimization struct {
	MaxFlowTemperature float64 `json:"maxFlowTemperature"`
}

// MeterReading is one energy meter reading for Energy IQ.
type MeterReading struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Reading int    `json:"reading"`
}

// Tariff units accepted by Energy IQ.
const (
	TariffUnitCubicMeters = "m3"
	TariffUnitKWh         = "kWh"
)

// Tariff is an Energy IQ price entry.
type Tariff struct {
	TariffInCents float64 `json:"tariffInCents"`
	Unit          string  `json:"unit"`
	StartDate     string  `json:"startDate,omitempty"`
	EndDate       string  `json:"endDate,omitempty"`
}
