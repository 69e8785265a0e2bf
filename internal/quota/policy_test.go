package quota

import (
	"testing"
	"time"
)

// TestPolicy_Interval verifies tier defaults and override clamping.
func TestPolicy_Interval(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   time.Duration
	}{
		{"free tier default", Policy{Tier: TierFree}, 45 * time.Minute},
		{"auto assist default", Policy{Tier: TierAutoAssist}, 30 * time.Second},
		{"zero value behaves as free", Policy{}, 45 * time.Minute},
		{"override respected", Policy{Tier: TierFree, Override: 10 * time.Minute}, 10 * time.Minute},
		{"override clamped to floor", Policy{Tier: TierAutoAssist, Override: 5 * time.Second}, 30 * time.Second},
		{"override clamped to ceiling", Policy{Tier: TierFree, Override: 2 * time.Hour}, time.Hour},
		{"override at floor", Policy{Tier: TierFree, Override: 30 * time.Second}, 30 * time.Second},
		{"override at ceiling", Policy{Tier: TierFree, Override: time.Hour}, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Interval(); got != tt.want {
				t.Errorf("Interval() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestPolicy_Limit verifies the daily quota per tier.
func TestPolicy_Limit(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   int
	}{
		{"free", Policy{Tier: TierFree}, 100},
		{"auto assist", Policy{Tier: TierAutoAssist}, 20000},
		{"zero value behaves as free", Policy{}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Limit(); got != tt.want {
				t.Errorf("Limit() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestParseTier verifies tier string parsing rejects unknown values.
func TestParseTier(t *testing.T) {
	tests := []struct {
		input   string
		want    Tier
		wantErr bool
	}{
		{"free", TierFree, false},
		{"auto_assist", TierAutoAssist, false},
		{"", "", true},
		{"premium", "", true},
		{"FREE", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTier(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestEstimatedDailyCalls verifies the quota planning arithmetic used by
// config validation.
func TestEstimatedDailyCalls(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		perCycle int
		want     int
	}{
		{"free default", 45 * time.Minute, 3, 96},
		{"auto assist default", 30 * time.Second, 3, 8640},
		{"hourly", time.Hour, 3, 72},
		{"with optional features", 45 * time.Minute, 5, 160},
		{"zero interval", 0, 3, 0},
		{"zero calls", time.Minute, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimatedDailyCalls(tt.interval, tt.perCycle); got != tt.want {
				t.Errorf("EstimatedDailyCalls(%v, %d) = %v, want %v", tt.interval, tt.perCycle, got, tt.want)
			}
		})
	}
}
