package scraper

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mastodon-exporter/mastodon-exporter/internal/mastodon"
)

var (
	// ErrTransport wraps DNS, connect, TLS, timeout and body read failures.
	ErrTransport = errors.New("scraper: transport")

	// ErrStatus matches any *StatusError.
	ErrStatus = errors.New("scraper: unexpected status")

	// ErrNotFound is returned for an account the instance does not know.
	ErrNotFound = errors.New("scraper: not found")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// Is reports whether target is ErrStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Outcome is the terminal state of one fetch. The values double as the
// "outcome" label of the collector's self-metrics.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeHTTPError    Outcome = "http_error"
	OutcomeNetworkError Outcome = "network_error"
	OutcomeHeaderError  Outcome = "header_error"
	OutcomeDecodeError  Outcome = "decode_error"
)

// Classify maps a fetch error to its Outcome. A nil error is OutcomeSuccess.
// Errors of unknown origin count as network errors.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, mastodon.ErrRateLimitHeader):
		return OutcomeHeaderError
	case errors.Is(err, mastodon.ErrDecode):
		return OutcomeDecodeError
	case errors.Is(err, ErrStatus):
		return OutcomeHTTPError
	default:
		return OutcomeNetworkError
	}
}
