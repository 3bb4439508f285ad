package scraper

import (
	"context"
	"fmt"

	"github.com/mastodon-exporter/mastodon-exporter/internal/mastodon"
	"github.com/mastodon-exporter/mastodon-exporter/pkg/types"
)

// InstanceResult is the outcome of one instance fetch.
type InstanceResult struct {
	Target types.InstanceTarget

	// Info is set only on success.
	Info *mastodon.InstanceInfo

	// RateLimit is set whenever the response carried valid rate-limit
	// headers, including on error statuses.
	RateLimit *mastodon.RateLimit

	// Err is nil on success.
	Err error
}

// Outcome classifies the result.
func (r *InstanceResult) Outcome() Outcome { return Classify(r.Err) }

// InstanceURL returns the /api/v2/instance URL of target.
func (c *Client) InstanceURL(target types.InstanceTarget) string {
	return fmt.Sprintf("%s://%s/api/v2/instance", c.scheme, target)
}

// FetchInstance retrieves /api/v2/instance for target. A 404 is an ordinary
// HTTP error here; only account lookups treat it as benign.
func (c *Client) FetchInstance(ctx context.Context, target types.InstanceTarget) *InstanceResult {
	res := &InstanceResult{Target: target}

	resp, err := c.get(ctx, c.InstanceURL(target))
	if err != nil {
		res.Err = fmt.Errorf("instance %s: %w", target, err)
		return res
	}
	res.RateLimit = resp.rateLimit

	if !resp.ok() {
		res.Err = fmt.Errorf("instance %s: %w", target, resp.statusError())
		return res
	}

	info, err := mastodon.DecodeInstance(resp.body)
	if err != nil {
		res.Err = fmt.Errorf("instance %s: %w", target, err)
		return res
	}
	res.Info = info
	return res
}
