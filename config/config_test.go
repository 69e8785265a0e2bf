package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// defaults fill everything an empty document leaves out
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Tier != "free" {
		t.Errorf("Tier = %q, want %q", cfg.Tier, "free")
	}
	if cfg.PollInterval.Duration() != 0 {
		t.Errorf("PollInterval = %v, want 0", cfg.PollInterval.Duration())
	}
	if len(cfg.Features) != 0 {
		t.Errorf("len(Features) = %d, want 0", len(cfg.Features))
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
port: 9090
data_dir: /var/lib/tadowatch
home_id: 123456
tier: auto_assist
poll_interval: 2m

features:
  - weather
  - air_comfort

api:
  hops_url: http://localhost:8081
  my_url: http://localhost:8081/api/v2
  eiq_url: http://localhost:8081/eiq

log:
  level: debug
  format: json
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.DataDir != "/var/lib/tadowatch" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/var/lib/tadowatch")
	}
	if cfg.HomeID != 123456 {
		t.Errorf("HomeID = %d, want 123456", cfg.HomeID)
	}
	if cfg.Tier != "auto_assist" {
		t.Errorf("Tier = %q, want %q", cfg.Tier, "auto_assist")
	}
	if cfg.PollInterval.Duration() != 2*time.Minute {
		t.Errorf("PollInterval = %v, want 2m", cfg.PollInterval.Duration())
	}
	if len(cfg.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2", len(cfg.Features))
	}
	if cfg.Features[0] != "weather" || cfg.Features[1] != "air_comfort" {
		t.Errorf("Features = %v, want [weather air_comfort]", cfg.Features)
	}
	if cfg.API.HopsURL != "http://localhost:8081" {
		t.Errorf("API.HopsURL = %q", cfg.API.HopsURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_TADO_HOME", "/home/tester")
	t.Setenv("TEST_MOCK_HOST", "mock.test.local")

	yaml := `
data_dir: ${TEST_TADO_HOME}/.tadowatch

api:
  hops_url: http://${TEST_MOCK_HOST}:8081
  my_url: http://${TEST_MOCK_HOST}:8081/api/v2
  eiq_url: http://${TEST_MOCK_HOST}:8081/eiq
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.DataDir != "/home/tester/.tadowatch" {
		t.Errorf("DataDir = %q, want /home/tester/.tadowatch", cfg.DataDir)
	}
	if cfg.API.HopsURL != "http://mock.test.local:8081" {
		t.Errorf("API.HopsURL = %q, want http://mock.test.local:8081", cfg.API.HopsURL)
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	// UNSET_TADO_DIR is expected to not exist in the environment
	yaml := `
data_dir: ${UNSET_TADO_DIR:-/tmp/tadowatch}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.DataDir != "/tmp/tadowatch" {
		t.Errorf("DataDir = %q, want /tmp/tadowatch", cfg.DataDir)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
data_dir: ${MISSING_TADO_VAR}/state
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() accepted a reference to an unset variable")
	}
	if !strings.Contains(err.Error(), "MISSING_TADO_VAR") {
		t.Errorf("error should mention MISSING_TADO_VAR: %v", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "port too large",
			yaml:        `port: 70000`,
			wantErrLike: "port must be between 1 and 65535",
		},
		{
			name:        "port negative",
			yaml:        `port: -1`,
			wantErrLike: "port must be between 1 and 65535",
		},
		{
			name:        "negative home_id",
			yaml:        `home_id: -42`,
			wantErrLike: "home_id cannot be negative",
		},
		{
			name:        "unknown tier",
			yaml:        `tier: premium`,
			wantErrLike: `tier must be "free" or "auto_assist"`,
		},
		{
			name: "unknown feature",
			yaml: `
features:
  - weather
  - solar_panels
`,
			wantErrLike: `features[1]: unknown feature "solar_panels"`,
		},
		{
			name: "duplicate feature",
			yaml: `
features:
  - weather
  - weather
`,
			wantErrLike: `features[1]: duplicate feature "weather"`,
		},
		{
			name: "partial api urls",
			yaml: `
api:
  hops_url: http://localhost:8081
`,
			wantErrLike: "must all be set together",
		},
		{
			name: "bad api url scheme",
			yaml: `
api:
  hops_url: ftp://localhost:8081
  my_url: http://localhost:8081/api/v2
  eiq_url: http://localhost:8081/eiq
`,
			wantErrLike: "url scheme must be http or https",
		},
		{
			name: "unknown log level",
			yaml: `
log:
  level: trace
`,
			wantErrLike: "log.level must be debug, info, warn, or error",
		},
		{
			name: "unknown log format",
			yaml: `
log:
  format: xml
`,
			wantErrLike: `log.format must be "text" or "json"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErrLike)
			}
		})
	}
}

func TestParse_PollIntervalBounds(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "too short",
			yaml:    `poll_interval: 10s`,
			wantErr: "poll_interval must be at least 30s",
		},
		{
			name:    "too long",
			yaml:    `poll_interval: 2h`,
			wantErr: "poll_interval must not exceed 1h",
		},
		{
			name:    "negative",
			yaml:    `poll_interval: -5m`,
			wantErr: "poll_interval must be at least 30s",
		},
		{
			name:    "minimum 30s",
			yaml:    `poll_interval: 30s`,
			wantErr: "",
		},
		{
			name:    "maximum 1h",
			yaml:    `poll_interval: 1h`,
			wantErr: "",
		},
		{
			name:    "zero uses tier default",
			yaml:    `{}`,
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse() unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	yaml := `
tier: [free
  port 8080
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() accepted malformed YAML")
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
poll_interval: not-a-duration
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() accepted a malformed duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %q, want to contain 'invalid duration'", err.Error())
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"minutes", "45m", 45 * time.Minute, false},
		{"hours", "1h", 1 * time.Hour, false},
		{"combined", "59m30s", 59*time.Minute + 30*time.Second, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// poll_interval values must stay within the 30s..1h validation window
			yaml := `poll_interval: ` + tt.input

			cfg, err := Parse([]byte(yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Parse() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.PollInterval.Duration() != tt.want {
				t.Errorf("PollInterval = %v, want %v", cfg.PollInterval.Duration(), tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	// UNSET and MISSING must not exist in the test environment
	t.Setenv("WATCH_VAR", "tado")
	t.Setenv("BLANK_VAR", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain text", "plain text", "plain text", false},
		{"bare reference", "${WATCH_VAR}", "tado", false},
		{"embedded", "data/${WATCH_VAR}/state", "data/tado/state", false},
		{"repeated", "${WATCH_VAR}/${WATCH_VAR}", "tado/tado", false},
		{"fallback ignored when set", "${WATCH_VAR:-default}", "tado", false},
		{"fallback used when unset", "${UNSET:-default}", "default", false},
		{"unset without fallback", "${MISSING}", "", true},
		{"empty fallback", "${UNSET:-}", "", false},
		// a variable set to "" counts as set
		{"empty value", "${BLANK_VAR}", "", false},
		{"empty value beats fallback", "${BLANK_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
port: 9191
tier: auto_assist
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}
	if cfg.Tier != "auto_assist" {
		t.Errorf("Tier = %q, want auto_assist", cfg.Tier)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %q, want to contain 'failed to read config file'", err.Error())
	}
}
