package tado

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoToken is returned when no stored token exists. The user must
// complete the device login flow first.
var ErrNoToken = errors.New("tado: no stored token")

// ErrNoHome is returned when a home-scoped call is made before a home ID
// was set or discovered.
var ErrNoHome = errors.New("tado: home ID not set")

// APIError is a non-2xx response from the vendor other than 429.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tado: API error %d", e.StatusCode)
	}
	return fmt.Sprintf("tado: API error %d: %s", e.StatusCode, e.Message)
}

// RateLimitError is an HTTP 429: the daily quota or a burst limit was hit.
type RateLimitError struct {
	// RetryAfter is the vendor-suggested wait. Zero when the response
	// carried no Retry-After header.
	RetryAfter time.Duration

	// ResetAt is when the vendor expects to accept requests again. Zero
	// when unknown.
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("tado: rate limited, retry after %s", e.RetryAfter)
	}
	return "tado: rate limited"
}

// IsRateLimited reports whether err is or wraps a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
