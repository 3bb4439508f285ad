package scraper

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mastodon-exporter/mastodon-exporter/internal/config"
	"github.com/mastodon-exporter/mastodon-exporter/internal/mastodon"
)

const (
	// maxBodySize caps how much of a response body is read. Instance and
	// account documents are a few KiB.
	maxBodySize = 4 << 20

	// maxErrorMessage caps the server message kept in a StatusError.
	maxErrorMessage = 256
)

// Client fetches instance and account documents.
// It is safe for concurrent use.
type Client struct {
	http   *http.Client
	scheme string
}

// Option customises a Client built by New.
type Option func(*options)

type options struct {
	requests *prometheus.CounterVec
	client   *http.Client
}

// WithRequestCounter counts every outbound request by status code and method.
// The counter must have no labels other than "code" and "method".
func WithRequestCounter(c *prometheus.CounterVec) Option {
	return func(o *options) { o.requests = c }
}

// WithHTTPClient replaces the client New would build. Its transport is still
// wrapped with the User-Agent and request-counting round trippers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// New builds a Client from the scrape settings.
func New(cfg config.ScrapeConfig, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if scheme != "https" && scheme != "http" {
		return nil, fmt.Errorf("scraper: unsupported scheme %q", cfg.Scheme)
	}

	hc := o.client
	if hc == nil {
		hc = buildHTTPClient(cfg)
	} else {
		cp := *hc
		hc = &cp
	}

	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var rt http.RoundTripper = &userAgentRoundTripper{base: base, userAgent: cfg.UserAgent}
	if o.requests != nil {
		rt = promhttp.InstrumentRoundTripperCounter(o.requests, rt)
	}
	hc.Transport = rt

	return &Client{http: hc, scheme: scheme}, nil
}

// buildHTTPClient constructs the shared http.Client for the scrape settings.
func buildHTTPClient(cfg config.ScrapeConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultScrapeTimeout
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// userAgentRoundTripper sets the User-Agent on every outgoing request.
type userAgentRoundTripper struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// response is what get extracts from one HTTP exchange.
type response struct {
	status    int
	rateLimit *mastodon.RateLimit
	body      []byte
}

// get performs one GET. A non-nil response is returned together with an
// ErrRateLimitHeader error so callers can still report the status.
func (c *Client) get(ctx context.Context, url string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	slog.Debug("scraper: response",
		"url", url, "status", resp.StatusCode, "elapsed", time.Since(start))

	out := &response{status: resp.StatusCode}

	rl, err := mastodon.RateLimitFromHeader(resp.Header)
	if err != nil {
		return out, err
	}
	out.rateLimit = rl

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return out, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	out.body = body
	return out, nil
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// statusError builds a StatusError, preferring Mastodon's {"error": "..."}
// message over the raw body.
func (r *response) statusError() *StatusError {
	var doc struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(r.body))
	if json.Unmarshal(r.body, &doc) == nil && doc.Error != "" {
		msg = doc.Error
	}
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage] + "..."
	}
	return &StatusError{Code: r.status, Message: msg}
}
