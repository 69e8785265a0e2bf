package tadowatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/tadowatch/internal/poller"
	"github.com/jpalmerr/tadowatch/internal/quota"
	"github.com/jpalmerr/tadowatch/internal/server"
	"github.com/jpalmerr/tadowatch/internal/store"
	"github.com/jpalmerr/tadowatch/tado"
)

const (
	defaultPort = 8080

	quotaFileName = "quota.json"
)

// TokenFileName is the name of the OAuth token file inside the data
// directory. The login flow writes it; [New] reads it when no explicit
// token source is configured.
const TokenFileName = "token.json"

// Watcher is the main orchestrator for quota-aware Tado polling.
//
// Watcher schedules update cycles against the Tado cloud APIs, keeps every
// cycle inside the daily call budget, stores the latest home state, and
// serves it over a local HTTP API. It is created using [New] with
// functional options and started with [Watcher.Start].
//
// A minimal program looks like:
//
//	w, err := tadowatch.New(tadowatch.WithTier(tadowatch.TierFree))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
//
// Cancelling the context shuts everything down cleanly: the poll loop
// drains, the quota counter is persisted, and the HTTP server stops.
type Watcher struct {
	homeID          int64
	tier            Tier
	features        []Feature
	port            int
	serveHTTP       bool
	dataDir         string
	logger          *slog.Logger
	updateCallbacks []func(Update)

	policy  quota.Policy
	tracker *quota.Tracker
	client  *tado.Client
}

// New creates a new [Watcher] instance with the given options.
//
// Credentials must already be stored (via the device login flow) unless
// [WithTokenSource] supplies a token source directly. Other options have
// sensible defaults:
//   - Tier: free (100 calls/day, 45 minute interval)
//   - Port: 8080
//   - Data directory: the user configuration directory
//   - Features: none beyond rooms, devices, and presence
//
// Returns an error if any option is invalid or no stored credentials are
// found.
//
// Example:
//
//	w, err := tadowatch.New(
//	    tadowatch.WithTier(tadowatch.TierAutoAssist),
//	    tadowatch.WithPollInterval(time.Minute),
//	    tadowatch.WithFeatures(tadowatch.FeatureWeather),
//	)
func New(opts ...Option) (*Watcher, error) {
	cfg := &wConfig{
		tier:      TierFree,
		port:      defaultPort,
		serveHTTP: true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	dataDir := cfg.dataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	policy := quota.Policy{
		Tier:     quota.Tier(cfg.tier),
		Override: cfg.pollInterval,
	}
	quotaPath := filepath.Join(dataDir, quotaFileName)
	tracker := quota.NewTracker(policy, quota.NewFileStore(quotaPath), logger)

	ts := cfg.tokenSource
	if ts == nil {
		tokenPath := filepath.Join(dataDir, TokenFileName)
		var err error
		ts, err = tado.FileTokenSource(context.Background(), tokenPath, logger)
		if errors.Is(err, tado.ErrNoToken) {
			return nil, fmt.Errorf("no stored credentials at %s (run the login flow first): %w", tokenPath, err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load stored credentials: %w", err)
		}
	}

	clientOpts := []tado.ClientOption{
		tado.WithRecorder(tracker),
		tado.WithClientLogger(logger),
	}
	if cfg.hopsURL != "" {
		clientOpts = append(clientOpts, tado.WithBaseURLs(cfg.hopsURL, cfg.myURL, cfg.eiqURL))
	}
	if cfg.homeID > 0 {
		clientOpts = append(clientOpts, tado.WithHomeID(cfg.homeID))
	}

	return &Watcher{
		homeID:          cfg.homeID,
		tier:            cfg.tier,
		features:        cfg.features,
		port:            cfg.port,
		serveHTTP:       cfg.serveHTTP,
		dataDir:         dataDir,
		logger:          logger,
		updateCallbacks: cfg.updateCallbacks,
		policy:          policy,
		tracker:         tracker,
		client:          tado.NewClient(ts, clientOpts...),
	}, nil
}

// Start begins polling the Tado APIs and serving the local status API.
//
// Start is a blocking call that runs until the provided context is
// cancelled. During execution:
//
//   - The home is discovered from the account profile if no home ID was configured
//   - An update cycle runs immediately, then on the quota-derived interval
//   - Registered callbacks receive every update, in registration order
//   - The status API is available at http://localhost:<port> (unless disabled)
//
// Shutdown is requested by cancelling ctx. For signal handling, use
// [signal.NotifyContext]:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//	w.Start(ctx)
//
// Returns nil on graceful shutdown. Returns an error if home discovery or
// the HTTP server fails.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("tadowatch starting",
		"tier", w.tier.String(),
		"interval", w.tracker.Interval().String(),
		"features", len(w.features))

	// a dead context means shut down before doing any work
	if ctx.Err() != nil {
		return nil
	}

	if w.client.HomeID() == 0 {
		me, err := w.client.Me(ctx)
		if err != nil {
			return fmt.Errorf("failed to discover home: %w", err)
		}
		if len(me.Homes) == 0 {
			return errors.New("account has no homes")
		}
		w.client.SetHomeID(me.Homes[0].ID)
		w.logger.Info("home discovered", "home_id", me.Homes[0].ID, "name", me.Homes[0].Name)
	}

	// warn when a full day at this cadence cannot fit the budget
	callsPerCycle := 3 + len(w.features)
	limit := w.tracker.Usage().Limit
	if est := quota.EstimatedDailyCalls(w.tracker.Interval(), callsPerCycle); est > limit {
		w.logger.Warn("configured cadence may exhaust the daily quota",
			"estimated_calls_per_day", est,
			"daily_limit", limit,
			"interval", w.tracker.Interval().String())
	}

	snapStore := store.NewMemoryStore()

	coordinator := poller.NewCoordinator(w.client, w.tracker, w.pollerFeatures(), w.logger)
	coordinator.Start(ctx)

	// the consumer goroutine must finish before cleanup runs
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range coordinator.Updates() {
			// the store sees the snapshot before any callback does
			snapStore.Update(snap)

			if len(w.updateCallbacks) > 0 {
				update := snapshotToUpdate(snap)
				for _, cb := range w.updateCallbacks {
					invokeCallbackSafe(cb, update, w.logger)
				}
			}

			// healthy cycles log at DEBUG to keep steady state quiet
			logAttrs := []any{
				"rooms", len(snap.Rooms),
				"calls_today", snap.Usage.CallsToday,
				"remaining", snap.Usage.Remaining,
			}
			switch {
			case snap.RateLimited:
				w.logger.Warn("update withheld by quota gate", logAttrs...)
			case snap.Error != nil:
				w.logger.Warn("update completed with error", append(logAttrs, "error", *snap.Error)...)
			default:
				w.logger.Debug("update completed", logAttrs...)
			}
		}
	}()

	// cleanup function ensures the coordinator is stopped, all updates are
	// processed, and the final quota counts reach disk
	cleanup := func() {
		coordinator.Stop() // closes the updates channel
		wg.Wait()          // wait for all updates to be processed
		if err := w.tracker.Persist(); err != nil {
			w.logger.Warn("failed to persist quota state on shutdown", "error", err)
		}
		w.client.Close()
	}

	if w.serveHTTP {
		httpServer := server.NewServer(snapStore, w.tracker.Usage, w.port, w.logger)
		if err := httpServer.Start(ctx); err != nil {
			cleanup()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		w.logger.Info("status api available", "url", fmt.Sprintf("http://localhost:%d", w.port))
	}

	<-ctx.Done()
	cleanup()
	w.logger.Info("tadowatch stopped")
	return nil
}

// Usage returns the current state of the daily quota: calls made, calls
// remaining, when the counter resets, and the effective update interval.
func (w *Watcher) Usage() Usage {
	return usageFromQuota(w.tracker.Usage())
}

// PollAllowed reports whether an API call made right now would fit the
// budget. It is false once the daily quota is exhausted or while a
// rate-limit suspension is in effect.
func (w *Watcher) PollAllowed() bool {
	return w.tracker.ShouldPoll(time.Now())
}

// Client returns the underlying API client for operations not covered by
// the Watcher's own methods. Calls made through it are authenticated and
// counted against the daily quota exactly like scheduled updates.
func (w *Watcher) Client() *tado.Client {
	return w.client
}

// Tier returns the configured subscription tier.
func (w *Watcher) Tier() Tier {
	return w.tier
}

// Interval returns the effective time between update cycles.
func (w *Watcher) Interval() time.Duration {
	return w.tracker.Interval()
}

// Port returns the configured HTTP port for the status API.
func (w *Watcher) Port() int {
	return w.port
}

// Features returns a copy of the enabled optional data sections.
//
// The returned slice is a copy; modifying it does not affect the Watcher.
func (w *Watcher) Features() []Feature {
	cp := make([]Feature, len(w.features))
	copy(cp, w.features)
	return cp
}

// pollerFeatures converts the configured feature list to poller toggles.
func (w *Watcher) pollerFeatures() poller.Features {
	var f poller.Features
	for _, feat := range w.features {
		switch feat {
		case FeatureWeather:
			f.Weather = true
		case FeatureMobileDevices:
			f.MobileDevices = true
		case FeatureAirComfort:
			f.AirComfort = true
		case FeatureFlowTemperature:
			f.FlowTemperature = true
		}
	}
	return f
}

// DefaultDataDir returns the per-user state directory used when
// [WithDataDir] is not set, falling back to a hidden directory under
// the working directory when the platform reports no configuration
// directory. The OAuth token and the persisted quota counter live here.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tadowatch")
	}
	return ".tadowatch"
}

// invokeCallbackSafe calls an update callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(Update), update Update, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.New().String()
			logger.Error("update callback panicked",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(update)
}
