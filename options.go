package tadowatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// wConfig holds mutable state during Watcher construction.
type wConfig struct {
	homeID          int64
	tier            Tier
	pollInterval    time.Duration
	port            int
	dataDir         string
	hopsURL         string
	myURL           string
	eiqURL          string
	features        []Feature
	tokenSource     oauth2.TokenSource
	logger          *slog.Logger
	updateCallbacks []func(Update)
	serveHTTP       bool
}

// Option is a function that configures a [Watcher] instance during construction.
//
// Options follow the functional options pattern: each one adjusts a single
// setting on its way into [New], and each validates its input, failing
// construction on a bad value.
//
// Built-in options: [WithHomeID], [WithTier], [WithPollInterval], [WithPort],
// [WithDataDir], [WithFeatures], [WithTokenSource], [WithAPIBase],
// [WithLogger], [WithUpdateCallback], [WithoutServer].
type Option func(*wConfig) error

// WithHomeID pins the watcher to a specific Tado home.
//
// If not specified, the home is discovered on startup via the account
// profile (the first home on the account is used). Accounts with a single
// home never need this option.
//
// Example:
//
//	w, err := tadowatch.New(
//	    tadowatch.WithHomeID(123456),
//	)
//
// Returns an error if the ID is not positive.
func WithHomeID(id int64) Option {
	return func(cfg *wConfig) error {
		if id <= 0 {
			return errors.New("home ID must be positive")
		}
		cfg.homeID = id
		return nil
	}
}

// WithTier sets the subscription tier the quota policy assumes.
//
// The tier decides the daily call budget and the default update interval:
// [TierFree] allows 100 calls/day at a 45 minute default interval,
// [TierAutoAssist] allows 20000 calls/day at a 30 second default interval.
// Defaults to [TierFree] if not specified. When the API advertises a
// different daily limit in its rate-limit headers, the advertised limit
// wins over the tier's.
//
// Example:
//
//	w, err := tadowatch.New(
//	    tadowatch.WithTier(tadowatch.TierAutoAssist),
//	)
//
// Returns an error for unknown tier values.
func WithTier(t Tier) Option {
	return func(cfg *wConfig) error {
		if t != TierFree && t != TierAutoAssist {
			return fmt.Errorf("unknown tier %q (valid tiers: %q, %q)", t, TierFree, TierAutoAssist)
		}
		cfg.tier = t
		return nil
	}
}

// WithPollInterval overrides the tier's default update interval.
//
// Values outside the supported range of 30 seconds to 1 hour are clamped
// to the nearest bound. Shorter intervals spend the daily quota faster:
// each cycle costs three API calls plus one per enabled feature, so on the
// free tier anything below ~45 minutes risks exhausting the budget before
// the daily reset.
//
// Example:
//
//	w, err := tadowatch.New(
//	    tadowatch.WithPollInterval(10 * time.Minute),
//	)
//
// Returns an error for zero or negative durations.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *wConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the local status API.
//
// The JSON state, usage, and SSE endpoints will be available at
// http://localhost:<port>. Defaults to 8080 if not specified. Use
// [WithoutServer] to disable the HTTP surface entirely.
//
// Example:
//
//	w, err := tadowatch.New(
//	    tadowatch.WithPort(9090),
//	)
//
// Returns an error for ports outside 1-65535.
func WithPort(port int) Option {
	return func(cfg *wConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithDataDir sets the directory holding the watcher's persistent state:
// the OAuth token file (token.json) and the quota counter file (quota.json).
//
// The directory is created on first write if it does not exist. Defaults
// to the user configuration directory (e.g. ~/.config/tadowatch).
//
// Returns an error if the path is empty.
func WithDataDir(dir string) Option {
	return func(cfg *wConfig) error {
		if dir == "" {
			return errors.New("data directory cannot be empty")
		}
		cfg.dataDir = dir
		return nil
	}
}

// WithFeatures enables optional data sections beyond the core room,
// device, and presence data.
//
// Each enabled feature adds one API call to every update cycle. No
// features are enabled by default: on the free tier the core three calls
// at the default interval already use 96 of the 100 daily calls, so extra
// sections only fit with a longer interval or a paid tier.
//
// Example:
//
//	w, err := tadowatch.New(
//	    tadowatch.WithTier(tadowatch.TierAutoAssist),
//	    tadowatch.WithFeatures(tadowatch.FeatureWeather, tadowatch.FeatureAirComfort),
//	)
//
// Returns an error for unknown feature names. Duplicates are ignored.
func WithFeatures(features ...Feature) Option {
	return func(cfg *wConfig) error {
		for _, f := range features {
			if !validFeature(f) {
				return fmt.Errorf("unknown feature %q", f)
			}
			seen := false
			for _, have := range cfg.features {
				if have == f {
					seen = true
					break
				}
			}
			if !seen {
				cfg.features = append(cfg.features, f)
			}
		}
		return nil
	}
}

// WithTokenSource supplies the OAuth token source used to authenticate
// API requests, replacing the default file-backed source.
//
// The default reads the token stored by the login flow from
// <data dir>/token.json and persists rotated refresh tokens back to it.
// Supplying a source directly is mainly useful for tests and for embedding
// the watcher in programs that manage Tado credentials themselves.
//
// Returns an error if the source is nil.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(cfg *wConfig) error {
		if ts == nil {
			return errors.New("token source cannot be nil")
		}
		cfg.tokenSource = ts
		return nil
	}
}

// WithAPIBase overrides the three Tado API base URLs: the Tado X API
// (hops.tado.com), the account API (my.tado.com), and the Energy IQ API
// (energy-insights.tado.com).
//
// This exists for tests and local mock servers; production use never
// needs it.
//
// Returns an error if any URL is empty.
func WithAPIBase(hopsURL, myURL, eiqURL string) Option {
	return func(cfg *wConfig) error {
		if hopsURL == "" || myURL == "" || eiqURL == "" {
			return errors.New("all three API base URLs are required")
		}
		cfg.hopsURL = hopsURL
		cfg.myURL = myURL
		cfg.eiqURL = eiqURL
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher instance.
//
// Embedding applications choose the handler, destination, and level;
// without this option the watcher logs through [slog.Default].
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	w, err := tadowatch.New(tadowatch.WithLogger(logger))
//
// Returns an error for a nil logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *wConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithUpdateCallback registers a function to be called after every update
// cycle, including cycles withheld by the quota gate.
//
// The callback receives an [Update] containing the fetched data, any fetch
// error, and the current quota usage.
//
// Multiple callbacks may be registered by calling WithUpdateCallback
// multiple times; they execute in registration order.
//
// IMPORTANT: keep callbacks fast. They run on the update path, so a slow
// callback delays every later update; hand long work to its own goroutine.
//
// Callbacks are invoked synchronously from a single goroutine. Panics
// within callbacks are recovered and logged with a correlation ID; they do
// not crash the watcher.
//
// Example:
//
//	w, err := tadowatch.New(
//	    tadowatch.WithUpdateCallback(func(u tadowatch.Update) {
//	        if u.Usage.Remaining < 10 {
//	            log.Printf("quota nearly spent: %d calls left", u.Usage.Remaining)
//	        }
//	    }),
//	)
//
// A nil callback is ignored.
func WithUpdateCallback(cb func(Update)) Option {
	return func(cfg *wConfig) error {
		if cb == nil {
			return nil
		}
		cfg.updateCallbacks = append(cfg.updateCallbacks, cb)
		return nil
	}
}

// WithoutServer disables the local HTTP status API.
//
// Updates are still delivered to callbacks registered via
// [WithUpdateCallback]; only the JSON/SSE surface is skipped. Useful when
// embedding the watcher in a program that has its own transport.
func WithoutServer() Option {
	return func(cfg *wConfig) error {
		cfg.serveHTTP = false
		return nil
	}
}
