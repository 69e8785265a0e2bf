package quota

import (
	"fmt"
	"time"
)

// Tier identifies the Tado subscription tier, which determines the daily
// request quota and the default polling cadence.
type Tier string

const (
	// TierFree is the free tier, limited to 100 requests per day.
	TierFree Tier = "free"

	// TierAutoAssist is the paid Auto-Assist tier with a 20000 requests
	// per day quota.
	TierAutoAssist Tier = "auto_assist"
)

// Daily request quotas per tier, as enforced by the vendor.
const (
	FreeDailyLimit       = 100
	AutoAssistDailyLimit = 20000
)

// Bounds for user-supplied polling intervals. Overrides outside this range
// are clamped rather than rejected.
const (
	MinInterval = 30 * time.Second
	MaxInterval = time.Hour
)

// Default polling intervals per tier. The free tier default keeps a
// three-request poll cycle under the 100/day quota with headroom for
// manual commands.
const (
	FreeInterval       = 45 * time.Minute
	AutoAssistInterval = 30 * time.Second
)

// ParseTier converts a configuration string into a [Tier].
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree:
		return TierFree, nil
	case TierAutoAssist:
		return TierAutoAssist, nil
	}
	return "", fmt.Errorf("unknown tier %q (expected %q or %q)", s, TierFree, TierAutoAssist)
}

// Policy decides how often the coordinator may poll and how many calls a
// day are allowed. The zero value behaves as the free tier with no override.
type Policy struct {
	// Tier selects the tier defaults.
	Tier Tier

	// Override replaces the tier default interval when non-zero.
	// Values outside [MinInterval, MaxInterval] are clamped.
	Override time.Duration
}

// Interval returns the effective polling interval: the clamped override if
// one is set, otherwise the tier default.
func (p Policy) Interval() time.Duration {
	if p.Override != 0 {
		return clampInterval(p.Override)
	}
	if p.Tier == TierAutoAssist {
		return AutoAssistInterval
	}
	return FreeInterval
}

// Limit returns the daily request quota for the policy's tier. This is the
// starting assumption; vendor headers overwrite it once seen.
func (p Policy) Limit() int {
	if p.Tier == TierAutoAssist {
		return AutoAssistDailyLimit
	}
	return FreeDailyLimit
}

func clampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

// EstimatedDailyCalls returns the request cost of a full day of polling at
// the given interval, with callsPerCycle requests issued per poll cycle.
// Used by config validation to warn about plans that exceed the quota.
func EstimatedDailyCalls(interval time.Duration, callsPerCycle int) int {
	if interval <= 0 || callsPerCycle <= 0 {
		return 0
	}
	cycles := int(24 * time.Hour / interval)
	return cycles * callsPerCycle
}
