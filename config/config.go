// Package config provides YAML configuration parsing for tadowatch.
//
// The config file drives the standalone binary; programs embedding the
// watcher configure it with functional options instead and never need
// this package.
//
// A typical file:
//
//	port: 8080
//	data_dir: ${HOME}/.local/share/tadowatch
//	tier: free
//	poll_interval: 45m
//
//	features:
//	  - weather
//	  - air_comfort
//
//	log:
//	  level: info
//	  format: text
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Interval bounds for production configs. The vendor enforces a daily call
// budget, so anything below the minimum would burn through it in hours, and
// anything above the maximum leaves the home state uselessly stale.
const (
	minPollInterval = 30 * time.Second
	maxPollInterval = time.Hour
)

// Config is the root configuration structure for tadowatch.
//
// Fields mirror the YAML document one to one; [Load] and [Parse] build
// validated values from file or bytes.
type Config struct {
	// Port is the HTTP server port for the status API. Defaults to 8080.
	Port int `yaml:"port"`

	// DataDir is the directory holding the OAuth token and the persisted
	// quota counter. Supports environment variable substitution:
	// ${VAR} or ${VAR:-default}. Empty means the user config directory.
	DataDir string `yaml:"data_dir"`

	// HomeID pins the watcher to a specific Tado home. Zero means the
	// home is discovered from the account on startup.
	HomeID int64 `yaml:"home_id"`

	// Tier is the subscription tier: "free" or "auto_assist".
	// Defaults to "free".
	Tier string `yaml:"tier"`

	// PollInterval overrides the tier's default update interval.
	// Accepts duration strings like "45m", "30s". Zero means the tier
	// default. Must be between 30s and 1h when set.
	PollInterval Duration `yaml:"poll_interval"`

	// Features lists the optional data sections to fetch each cycle:
	// weather, mobile_devices, air_comfort, flow_temperature.
	// Each enabled feature costs one extra API call per cycle.
	Features []string `yaml:"features"`

	// API overrides the vendor base URLs. Intended for tests and mock
	// servers; leave empty for production.
	API APIConfig `yaml:"api"`

	// Log configures the CLI's log output.
	Log LogConfig `yaml:"log"`
}

// APIConfig overrides the three vendor API hosts. Either all three URLs are
// set or none.
type APIConfig struct {
	// HopsURL is the Tado X API base (default https://hops.tado.com).
	// Supports environment variable substitution.
	HopsURL string `yaml:"hops_url"`

	// MyURL is the account API base (default https://my.tado.com/api/v2).
	MyURL string `yaml:"my_url"`

	// EIQURL is the Energy IQ API base
	// (default https://energy-insights.tado.com/api).
	EIQURL string `yaml:"eiq_url"`
}

// LogConfig controls CLI logging.
type LogConfig struct {
	// Level is the minimum level to emit: debug, info, warn, error.
	// Defaults to info.
	Level string `yaml:"level"`

	// Format selects the handler: "text" (colorized when the output is a
	// terminal) or "json". Defaults to text.
	Format string `yaml:"format"`
}

// validFeatures are the accepted values for the features list.
var validFeatures = map[string]bool{
	"weather":          true,
	"mobile_devices":   true,
	"air_comfort":      true,
	"flow_temperature": true,
}

// Duration is a time.Duration that unmarshals from YAML duration strings
// like "45m" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${NAME} and ${NAME:-fallback}. Group 1 captures
// the name and group 3 the fallback; group 2 distinguishes an empty
// fallback (${NAME:-}) from no fallback at all.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars substitutes ${VAR} references in s from the environment.
// A reference with no fallback and no value in the environment is an error.
func expandEnvVars(s string) (string, error) {
	var b strings.Builder
	last := 0

	for _, idx := range envVarPattern.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:idx[0]])
		last = idx[1]

		name := s[idx[2]:idx[3]]
		if value, ok := os.LookupEnv(name); ok {
			b.WriteString(value)
			continue
		}

		// idx[4] >= 0 means the ":-" form was written, even when the
		// fallback itself is empty
		if idx[4] >= 0 {
			b.WriteString(s[idx[6]:idx[7]])
			continue
		}

		return "", fmt.Errorf("environment variable %q is not set", name)
	}

	b.WriteString(s[last:])
	return b.String(), nil
}

// Load reads the YAML file at path and parses it with [Parse].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data, applies defaults (port 8080,
// tier free), expands environment references in DataDir and the API URLs,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Tier == "" {
		cfg.Tier = "free"
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate resolves env references and rejects invalid fields.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.DataDir != "" {
		expanded, err := expandEnvVars(c.DataDir)
		if err != nil {
			return fmt.Errorf("data_dir: %w", err)
		}
		c.DataDir = expanded
	}

	if c.HomeID < 0 {
		return fmt.Errorf("home_id cannot be negative, got %d", c.HomeID)
	}

	if c.Tier != "free" && c.Tier != "auto_assist" {
		return fmt.Errorf("tier must be \"free\" or \"auto_assist\", got %q", c.Tier)
	}

	if c.PollInterval != 0 {
		if c.PollInterval.Duration() < minPollInterval {
			return fmt.Errorf("poll_interval must be at least %s, got %s",
				minPollInterval, c.PollInterval.Duration())
		}
		if c.PollInterval.Duration() > maxPollInterval {
			return fmt.Errorf("poll_interval must not exceed %s, got %s",
				maxPollInterval, c.PollInterval.Duration())
		}
	}

	seen := make(map[string]bool, len(c.Features))
	for i, f := range c.Features {
		if !validFeatures[f] {
			return fmt.Errorf("features[%d]: unknown feature %q (valid: weather, mobile_devices, air_comfort, flow_temperature)", i, f)
		}
		if seen[f] {
			return fmt.Errorf("features[%d]: duplicate feature %q", i, f)
		}
		seen[f] = true
	}

	urls := []struct {
		name  string
		value *string
	}{
		{"api.hops_url", &c.API.HopsURL},
		{"api.my_url", &c.API.MyURL},
		{"api.eiq_url", &c.API.EIQURL},
	}
	anySet := false
	for _, u := range urls {
		if *u.value == "" {
			continue
		}
		anySet = true

		expanded, err := expandEnvVars(*u.value)
		if err != nil {
			return fmt.Errorf("%s: %w", u.name, err)
		}
		*u.value = expanded

		parsed, err := url.Parse(*u.value)
		if err != nil {
			return fmt.Errorf("%s: invalid url: %w", u.name, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("%s: url scheme must be http or https, got %q", u.name, parsed.Scheme)
		}
	}
	if anySet && (c.API.HopsURL == "" || c.API.MyURL == "" || c.API.EIQURL == "") {
		return fmt.Errorf("api: hops_url, my_url, and eiq_url must all be set together")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}

	return nil
}
