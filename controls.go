package tadowatch

import (
	"context"

	"github.com/jpalmerr/tadowatch/tado"
)

// Manual controls delegate to the shared API client, so every call below
// is counted against the same daily quota as scheduled update cycles. When
// the budget is spent the calls still go through; use [Watcher.PollAllowed]
// to check the gate first if you want to hold back.

// SetRoomTemperature switches a room to manual control at the given target
// temperature. The termination decides how the override ends: after a
// timer, at the next schedule block, or never.
func (w *Watcher) SetRoomTemperature(ctx context.Context, roomID int64, temperature float64, term tado.Termination) error {
	return w.client.SetRoomTemperature(ctx, roomID, temperature, term)
}

// SetRoomOff turns a room's heating off under manual control.
func (w *Watcher) SetRoomOff(ctx context.Context, roomID int64, term tado.Termination) error {
	return w.client.SetRoomOff(ctx, roomID, term)
}

// ResumeSchedule ends a room's manual control and returns it to the
// programmed schedule.
func (w *Watcher) ResumeSchedule(ctx context.Context, roomID int64) error {
	return w.client.ResumeSchedule(ctx, roomID)
}

// BoostRoom raises a single room's heating for the vendor-defined boost
// period.
func (w *Watcher) BoostRoom(ctx context.Context, roomID int64) error {
	return w.client.BoostRoom(ctx, roomID)
}

// SetPresence sets the home/away state. [tado.PresenceAuto] returns
// presence to geofenced control.
func (w *Watcher) SetPresence(ctx context.Context, p tado.Presence) error {
	return w.client.SetPresence(ctx, p)
}

// SetChildLock enables or disables the child lock on a device.
func (w *Watcher) SetChildLock(ctx context.Context, serialNo string, enabled bool) error {
	return w.client.SetChildLock(ctx, serialNo, enabled)
}

// SetTemperatureOffset calibrates a device's temperature measurement by the
// given offset in degrees Celsius.
func (w *Watcher) SetTemperatureOffset(ctx context.Context, serialNo string, offset float64) error {
	return w.client.SetTemperatureOffset(ctx, serialNo, offset)
}

// AddMeterReading records an energy meter reading. An empty date means
// today.
func (w *Watcher) AddMeterReading(ctx context.Context, date string, reading int) error {
	return w.client.AddMeterReading(ctx, date, reading)
}

// SetTariff records the current energy tariff for consumption cost
// estimates.
func (w *Watcher) SetTariff(ctx context.Context, t tado.Tariff) error {
	return w.client.SetTariff(ctx, t)
}
