package mastodon

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Rate-limit response headers sent by Mastodon on every API response,
// including most error responses.
const (
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// ErrRateLimitHeader is returned when a rate-limit header is present but
// cannot be parsed.
var ErrRateLimitHeader = errors.New("mastodon: rate-limit header")

// RateLimit is the request budget reported by an instance.
type RateLimit struct {
	// Remaining is the number of requests left in the current window.
	Remaining int64
	// ResetAt is the Unix time (seconds) when the window resets.
	ResetAt int64
}

// RateLimitFromHeader reads the rate-limit headers from h.
// See ParseRateLimit for the semantics of absent values.
func RateLimitFromHeader(h http.Header) (*RateLimit, error) {
	return ParseRateLimit(h.Get(HeaderRateLimitRemaining), h.Get(HeaderRateLimitReset))
}

// ParseRateLimit parses the raw header values. When both are empty it returns
// (nil, nil): the instance did not report a budget. A single missing value or
// any unparseable value is an ErrRateLimitHeader.
func ParseRateLimit(remaining, reset string) (*RateLimit, error) {
	if remaining == "" && reset == "" {
		return nil, nil
	}

	n, err := strconv.ParseInt(remaining, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: remaining %q: %v", ErrRateLimitHeader, remaining, err)
	}

	ts, err := time.Parse(time.RFC3339, reset)
	if err != nil {
		return nil, fmt.Errorf("%w: reset %q: %v", ErrRateLimitHeader, reset, err)
	}

	return &RateLimit{Remaining: n, ResetAt: ts.Unix()}, nil
}
