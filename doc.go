// Package tadowatch provides a quota-aware watcher for Tado X smart
// thermostat homes.
//
// The Tado cloud API enforces a daily call budget (100 calls/day on the
// free tier, 20000 on Auto-Assist). tadowatch schedules update cycles so a
// full day of polling fits inside that budget, counts every call it makes,
// trusts the API's own rate-limit headers over its local arithmetic, and
// backs off until the daily reset when the vendor answers 429. It is
// designed as an SDK-first library: programs embed a [Watcher], receive
// updates through callbacks, and can reuse the same authenticated client
// for manual thermostat control without losing count.
//
// # Quick Start
//
// Create a watcher and start it with graceful shutdown:
//
//	w, _ := tadowatch.New(tadowatch.WithTier(tadowatch.TierFree))
//
//	// stop cleanly on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w.Start(ctx) // blocks until context is cancelled
//
// Credentials come from the OAuth device-code flow (see the tado package);
// the stored token is picked up from the data directory automatically.
//
// # Configuration
//
// tadowatch uses the functional options pattern for configuration:
//
//	w, err := tadowatch.New(
//	    tadowatch.WithTier(tadowatch.TierAutoAssist),
//	    tadowatch.WithPollInterval(time.Minute),
//	    tadowatch.WithFeatures(tadowatch.FeatureWeather),
//	    tadowatch.WithPort(9090),
//	    tadowatch.WithUpdateCallback(func(u tadowatch.Update) {
//	        fmt.Printf("%d rooms, %d/%d calls used\n",
//	            len(u.Rooms), u.Usage.CallsToday, u.Usage.Limit)
//	    }),
//	)
//
// # Quota Accounting
//
// Every update cycle costs three API calls (rooms, devices, presence) plus
// one per enabled [Feature]. On the free tier the default 45 minute
// interval spends 96 of the 100 daily calls, which is why no features are
// enabled by default. The effective interval, calls used, and time of the
// next daily reset are visible on every [Update] and via [Watcher.Usage].
//
// # Architecture
//
// tadowatch consists of one public API package and several internal ones:
//
//   - tado: the Tado X API client with OAuth device-flow helpers
//   - internal/quota: the daily budget tracker, polling policy, and persisted counter
//   - internal/poller: the single-timer update coordinator
//   - internal/store: in-memory snapshot storage with pub/sub for SSE
//   - internal/server: the REST endpoints and the SSE update stream
//
// Nothing under internal/ is covered by any compatibility promise; those
// packages can change shape between releases.
package tadowatch
