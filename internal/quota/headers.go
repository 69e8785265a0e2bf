package quota

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Vendor rate-limit header names. Tado emits the IETF draft structured
// fields (Ratelimit-Policy carries the quota as q=, Ratelimit carries the
// remaining allowance as r= and optionally seconds-to-reset as t=). The X-
// forms are the older de facto vocabulary some gateways still send; both
// are understood so a header rename on the vendor side is a constant change
// here, not a code change.
const (
	headerRateLimitPolicy = "Ratelimit-Policy"
	headerRateLimit       = "Ratelimit"
	headerXLimit          = "X-Ratelimit-Limit"
	headerXRemaining      = "X-Ratelimit-Remaining"
	headerXReset          = "X-Ratelimit-Reset"
)

// headerQuota holds quota values extracted from one response's headers.
// Zero limit, -1 remaining, and zero reset each mean "absent".
type headerQuota struct {
	limit     int
	remaining int
	reset     time.Duration
}

// parseQuotaHeaders extracts quota values from response headers. The bool
// reports whether any recognized value was present.
//
// Structured-field examples:
//
//	Ratelimit-Policy: "day";q=100;w=86400
//	Ratelimit: "day";r=87;t=13742
func parseQuotaHeaders(h http.Header) (headerQuota, bool) {
	q := headerQuota{remaining: remainingUnknown}
	found := false

	if v := h.Get(headerRateLimitPolicy); v != "" {
		if limit, ok := parsePolicyLimit(v); ok {
			q.limit = limit
			found = true
		}
	}
	if v := h.Get(headerRateLimit); v != "" {
		if r, ok := paramInt(v, "r"); ok && r >= 0 {
			q.remaining = r
			found = true
		}
		if t, ok := paramInt(v, "t"); ok && t > 0 {
			q.reset = time.Duration(t) * time.Second
			found = true
		}
	}

	if q.limit == 0 {
		if n, err := strconv.Atoi(h.Get(headerXLimit)); err == nil && n > 0 {
			q.limit = n
			found = true
		}
	}
	if q.remaining < 0 {
		if v := h.Get(headerXRemaining); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				q.remaining = n
				found = true
			}
		}
	}
	if q.reset == 0 {
		if v := h.Get(headerXReset); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				q.reset = time.Duration(n) * time.Second
				found = true
			}
		}
	}

	return q, found
}

// parsePolicyLimit picks the daily quota out of a Ratelimit-Policy value.
// With multiple comma-separated policies the one with the largest window
// wins: burst policies with short windows are not the daily quota.
func parsePolicyLimit(v string) (int, bool) {
	bestLimit := 0
	bestWindow := -1
	for _, item := range strings.Split(v, ",") {
		limit, ok := paramInt(item, "q")
		if !ok || limit <= 0 {
			continue
		}
		window, ok := paramInt(item, "w")
		if !ok {
			window = 0
		}
		if window > bestWindow {
			bestWindow = window
			bestLimit = limit
		}
	}
	return bestLimit, bestLimit > 0
}

// paramInt extracts an integer parameter such as r=87 from a
// structured-field item like `"day";r=87;t=13742`.
func paramInt(item, key string) (int, bool) {
	for _, part := range strings.Split(item, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k != key {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
