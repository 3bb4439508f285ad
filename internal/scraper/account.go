package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mastodon-exporter/mastodon-exporter/internal/mastodon"
	"github.com/mastodon-exporter/mastodon-exporter/pkg/types"
)

// AccountResult is the outcome of one account fetch.
type AccountResult struct {
	Target types.AccountTarget

	// Info is set only on success.
	Info *mastodon.AccountInfo

	// RateLimit is set whenever the response carried valid rate-limit
	// headers, including on 404 and other error statuses.
	RateLimit *mastodon.RateLimit

	// Err is nil on success and wraps ErrNotFound for unknown accounts.
	Err error
}

// Outcome classifies the result.
func (r *AccountResult) Outcome() Outcome { return Classify(r.Err) }

// AccountURL returns the /api/v1/accounts/:id URL of target.
func (c *Client) AccountURL(target types.AccountTarget) string {
	return fmt.Sprintf("%s://%s/api/v1/accounts/%s", c.scheme, target.Instance, url.PathEscape(target.ID))
}

// FetchAccount retrieves /api/v1/accounts/:id for target.
func (c *Client) FetchAccount(ctx context.Context, target types.AccountTarget) *AccountResult {
	res := &AccountResult{Target: target}

	resp, err := c.get(ctx, c.AccountURL(target))
	if err != nil {
		res.Err = fmt.Errorf("account %s: %w", target, err)
		return res
	}
	res.RateLimit = resp.rateLimit

	switch {
	case resp.status == http.StatusNotFound:
		res.Err = fmt.Errorf("account %s: %w", target, ErrNotFound)
		return res
	case !resp.ok():
		res.Err = fmt.Errorf("account %s: %w", target, resp.statusError())
		return res
	}

	info, err := mastodon.DecodeAccount(resp.body)
	if err != nil {
		res.Err = fmt.Errorf("account %s: %w", target, err)
		return res
	}
	res.Info = info
	return res
}
