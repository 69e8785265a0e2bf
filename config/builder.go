package config

import (
	"github.com/jpalmerr/tadowatch"
)

// BuildOptions converts a parsed Config into tadowatch options.
//
// Zero values are skipped so the SDK's own defaults apply: an empty
// data_dir falls back to the user config directory, a zero home_id
// triggers account discovery, and a zero poll_interval uses the tier
// default. Validation has already happened in [Parse], and
// [tadowatch.New] re-validates everything it receives.
func BuildOptions(cfg *Config) []tadowatch.Option {
	opts := []tadowatch.Option{
		tadowatch.WithPort(cfg.Port),
		tadowatch.WithTier(tadowatch.Tier(cfg.Tier)),
	}

	if cfg.DataDir != "" {
		opts = append(opts, tadowatch.WithDataDir(cfg.DataDir))
	}

	if cfg.HomeID != 0 {
		opts = append(opts, tadowatch.WithHomeID(cfg.HomeID))
	}

	if cfg.PollInterval != 0 {
		opts = append(opts, tadowatch.WithPollInterval(cfg.PollInterval.Duration()))
	}

	if len(cfg.Features) > 0 {
		features := make([]tadowatch.Feature, len(cfg.Features))
		for i, f := range cfg.Features {
			features[i] = tadowatch.Feature(f)
		}
		opts = append(opts, tadowatch.WithFeatures(features...))
	}

	if cfg.API.HopsURL != "" {
		opts = append(opts, tadowatch.WithAPIBase(cfg.API.HopsURL, cfg.API.MyURL, cfg.API.EIQURL))
	}

	return opts
}
