package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/tadowatch/internal/quota"
	"github.com/jpalmerr/tadowatch/internal/store"
	"github.com/jpalmerr/tadowatch/tado"
)

// Features selects the optional data sections fetched each poll cycle.
// Rooms, devices and home state are always fetched.
type Features struct {
	Weather         bool
	MobileDevices   bool
	AirComfort      bool
	FlowTemperature bool
}

// Coordinator runs the polling loop against the vendor API.
//
// Coordinator drives a single timer. Each cycle it first settles the day
// boundary, then asks the quota tracker whether polling is allowed. An
// allowed cycle fetches home data sequentially (one outstanding request at
// a time, so every call is accounted before the next starts) and emits one
// [store.Snapshot]. A blocked cycle emits the previous snapshot flagged as
// rate limited and sleeps until the quota window reopens instead of the
// regular interval.
//
// Start and Stop may be called from any goroutine.
type Coordinator struct {
	client   *tado.Client
	tracker  *quota.Tracker
	features Features
	updates  chan store.Snapshot
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	// lastSnap carries sections forward across cycles so a failed or
	// skipped fetch never blanks previously good data. Only the loop
	// goroutine touches it.
	lastSnap store.Snapshot

	now func() time.Time
}

// NewCoordinator creates a polling [Coordinator].
//
// The coordinator must be started with [Coordinator.Start] and stopped
// with [Coordinator.Stop]. Snapshots are available via
// [Coordinator.Updates].
func NewCoordinator(client *tado.Client, tracker *quota.Tracker, features Features, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		client:   client,
		tracker:  tracker,
		features: features,
		updates:  make(chan store.Snapshot, 1),
		logger:   logger,
		now:      time.Now,
	}
}

// Updates returns a receive-only channel that emits a [store.Snapshot]
// after every cycle, including blocked ones.
//
// The channel is closed when the coordinator stops. Consumers should read
// from this channel until it is closed to receive all snapshots.
func (c *Coordinator) Updates() <-chan store.Snapshot {
	return c.updates
}

// Start launches the polling loop in a background goroutine and returns.
//
// The loop runs one cycle immediately, then sleeps for the tracker's
// interval (or until the quota window reopens when polling is blocked),
// repeating until [Coordinator.Stop] or context cancellation.
//
// A nil ctx falls back to context.Background(). Repeat calls do nothing,
// as does calling Start after Stop.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	pollCtx := c.ctx // read c.ctx while still holding the lock
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer c.closeOnce.Do(func() { close(c.updates) })

		wait := c.runOnce(pollCtx)

		timer := time.NewTimer(wait)
		defer timer.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-timer.C:
				wait = c.runOnce(pollCtx)
				timer.Reset(wait)
			}
		}
	}()
}

// Stop cancels the coordinator's context and blocks until the polling loop
// has exited, any in-flight persist has completed, and the updates channel
// is closed.
//
// Stop may be called repeatedly, and before Start; both are no-ops beyond
// the first effective call.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		if c.cancel != nil {
			c.cancel()
		}
	}
	c.mu.Unlock()

	c.wg.Wait()

	// the loop goroutine closes updates on exit, but it never ran if
	// Start was skipped, so close here as well
	c.closeOnce.Do(func() { close(c.updates) })
}

// runOnce executes one cycle and returns how long to sleep before the next.
func (c *Coordinator) runOnce(ctx context.Context) time.Duration {
	now := c.now()
	c.tracker.ResetIfDue(now)

	if !c.tracker.ShouldPoll(now) {
		c.emitSkipped(ctx, now)
		return c.blockedWait(now)
	}

	snap := c.refresh(ctx)
	c.emit(ctx, snap)
	c.persistAsync()

	if snap.RateLimited {
		return c.blockedWait(c.now())
	}
	return c.tracker.Interval()
}

// refresh fetches the home sections sequentially and assembles a snapshot.
//
// A 429 aborts the remaining fetches for this cycle; other errors are
// recorded and the cycle continues, so one failing section cannot starve
// the rest.
func (c *Coordinator) refresh(ctx context.Context) store.Snapshot {
	snap := c.lastSnap
	snap.RateLimited = false
	snap.Error = nil

	fetches := []struct {
		name    string
		enabled bool
		run     func(context.Context) error
	}{
		{"rooms", true, func(ctx context.Context) error {
			rooms, err := c.client.Rooms(ctx)
			if err == nil {
				snap.Rooms = rooms
			}
			return err
		}},
		{"devices", true, func(ctx context.Context) error {
			devices, err := c.client.RoomsAndDevices(ctx)
			if err == nil {
				snap.Devices = devices
			}
			return err
		}},
		{"home_state", true, func(ctx context.Context) error {
			home, err := c.client.HomeState(ctx)
			if err == nil {
				snap.Home = home
			}
			return err
		}},
		{"weather", c.features.Weather, func(ctx context.Context) error {
			weather, err := c.client.Weather(ctx)
			if err == nil {
				snap.Weather = weather
			}
			return err
		}},
		{"mobile_devices", c.features.MobileDevices, func(ctx context.Context) error {
			devices, err := c.client.MobileDevices(ctx)
			if err == nil {
				snap.MobileDevices = devices
			}
			return err
		}},
		{"air_comfort", c.features.AirComfort, func(ctx context.Context) error {
			comfort, err := c.client.AirComfort(ctx)
			if err == nil {
				snap.AirComfort = comfort
			}
			return err
		}},
		{"flow_temperature", c.features.FlowTemperature, func(ctx context.Context) error {
			fto, err := c.client.FlowTemperatureOptimization(ctx)
			if err == nil {
				snap.FlowTemperature = fto
			}
			return err
		}},
	}

	for _, f := range fetches {
		if !f.enabled {
			continue
		}
		err := f.run(ctx)
		if err == nil {
			continue
		}
		if tado.IsRateLimited(err) {
			c.logger.Warn("vendor rate limit hit, stopping cycle",
				"fetch", f.name,
				"error", err)
			snap.RateLimited = true
			break
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.Error("fetch failed",
			"fetch", f.name,
			"error", err)
		if snap.Error == nil {
			msg := err.Error()
			snap.Error = &msg
		}
	}

	snap.UpdatedAt = c.now()
	snap.Usage = c.tracker.Usage()
	c.lastSnap = snap
	return snap
}

// emitSkipped publishes the previous snapshot with refreshed usage so
// consumers can see why no new data arrives while polling is withheld.
func (c *Coordinator) emitSkipped(ctx context.Context, now time.Time) {
	snap := c.lastSnap
	snap.RateLimited = true
	snap.UpdatedAt = now
	snap.Usage = c.tracker.Usage()
	c.lastSnap = snap
	c.emit(ctx, snap)
}

func (c *Coordinator) emit(ctx context.Context, snap store.Snapshot) {
	select {
	case c.updates <- snap:
	case <-ctx.Done():
	}
}

// persistAsync writes quota state in the background so a slow disk never
// delays the next cycle. Failures leave the tracker dirty and are retried
// after the next cycle.
func (c *Coordinator) persistAsync() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.tracker.Persist(); err != nil {
			c.logger.Warn("failed to persist quota state, keeping counts in memory",
				"error", err)
		}
	}()
}

// blockedWait returns how long to sleep while polling is withheld: until a
// 429 suspension lifts, or until the daily window resets, whichever comes
// first.
func (c *Coordinator) blockedWait(now time.Time) time.Duration {
	wake := c.tracker.ResetAt()
	if u := c.tracker.Usage(); u.Suspended && u.SuspendedUntil.Before(wake) {
		wake = u.SuspendedUntil
	}

	// small slack so the wake lands past the boundary
	wait := wake.Sub(now) + time.Second
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
