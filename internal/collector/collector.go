package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mastodon-exporter/mastodon-exporter/internal/mastodon"
	"github.com/mastodon-exporter/mastodon-exporter/internal/metrics"
	"github.com/mastodon-exporter/mastodon-exporter/internal/scraper"
	"github.com/mastodon-exporter/mastodon-exporter/pkg/types"
)

// OutcomePanic marks a fetch that panicked instead of returning a result.
const OutcomePanic scraper.Outcome = "panic"

// reportedOutcomes is every outcome published on the collect_targets gauge,
// so a kind that did not occur in a cycle reads 0 rather than a stale count.
var reportedOutcomes = []scraper.Outcome{
	scraper.OutcomeSuccess,
	scraper.OutcomeNotFound,
	scraper.OutcomeHTTPError,
	scraper.OutcomeNetworkError,
	scraper.OutcomeHeaderError,
	scraper.OutcomeDecodeError,
	OutcomePanic,
}

// Fetcher retrieves one target. *scraper.Client implements it.
type Fetcher interface {
	FetchInstance(ctx context.Context, target types.InstanceTarget) *scraper.InstanceResult
	FetchAccount(ctx context.Context, target types.AccountTarget) *scraper.AccountResult
}

// Summary describes a finished cycle.
type Summary struct {
	Duration time.Duration
	Outcomes map[scraper.Outcome]int
}

// Failed returns the number of targets that did not end in success or not_found.
func (s Summary) Failed() int {
	n := 0
	for o, c := range s.Outcomes {
		if o != scraper.OutcomeSuccess && o != scraper.OutcomeNotFound {
			n += c
		}
	}
	return n
}

// Collector writes fetch results into a Registry.
// RunCycle may be called concurrently.
type Collector struct {
	fetcher        Fetcher
	registry       *metrics.Registry
	maxConcurrency int
}

// New returns a Collector. maxConcurrency <= 0 means every target of a cycle
// is fetched at once.
func New(f Fetcher, reg *metrics.Registry, maxConcurrency int) *Collector {
	return &Collector{fetcher: f, registry: reg, maxConcurrency: maxConcurrency}
}

// RunCycle fetches every target once and blocks until all fetches finished.
func (c *Collector) RunCycle(ctx context.Context, targets types.Targets) Summary {
	start := time.Now()
	slog.Info("collector: cycle started",
		"instances", len(targets.Instances), "accounts", len(targets.Accounts))

	outcomes := make([]scraper.Outcome, targets.Len())

	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}

	for i, t := range targets.Instances {
		i, t := i, t
		g.Go(func() error {
			outcomes[i] = c.guard(func() scraper.Outcome { return c.collectInstance(ctx, t) },
				"instance", t.String())
			return nil
		})
	}
	offset := len(targets.Instances)
	for i, t := range targets.Accounts {
		i, t := i, t
		g.Go(func() error {
			outcomes[offset+i] = c.guard(func() scraper.Outcome { return c.collectAccount(ctx, t) },
				"instance", t.Instance.String(), "account_id", t.ID)
			return nil
		})
	}
	// Every task returns nil; Wait only joins.
	_ = g.Wait()

	sum := Summary{
		Duration: time.Since(start),
		Outcomes: make(map[scraper.Outcome]int, len(reportedOutcomes)),
	}
	for _, o := range outcomes {
		sum.Outcomes[o]++
	}
	c.publishSummary(sum)

	slog.Info("collector: cycle done",
		"duration", sum.Duration, "targets", targets.Len(), "failed", sum.Failed())
	return sum
}

// guard runs fn and converts a panic into OutcomePanic so one broken target
// cannot take down the cycle.
func (c *Collector) guard(fn func() scraper.Outcome, logAttrs ...any) (out scraper.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("collector: fetch panicked",
				append(logAttrs, "outcome", OutcomePanic, "err", fmt.Sprint(r))...)
			out = OutcomePanic
		}
	}()
	return fn()
}

func (c *Collector) collectInstance(ctx context.Context, t types.InstanceTarget) scraper.Outcome {
	res := c.fetcher.FetchInstance(ctx, t)
	outcome := res.Outcome()
	instance := t.String()

	if outcome != scraper.OutcomeSuccess {
		slog.Warn("collector: instance fetch failed",
			"instance", instance, "outcome", outcome, "err", res.Err)
		return outcome
	}

	c.setRateLimit(instance, res.RateLimit)
	info := res.Info
	c.registry.Set(metrics.Info, 1, instance, info.Domain, info.Title, info.Version)
	c.registry.SetBool(metrics.RegistrationsEnabled, info.RegistrationsEnabled, instance)
	c.registry.SetBool(metrics.RegistrationsApprovalRequired, info.RegistrationsApprovalRequired, instance)

	slog.Debug("collector: instance collected",
		"instance", instance,
		"version", info.Version,
		"registrations_enabled", info.RegistrationsEnabled,
		"approval_required", info.RegistrationsApprovalRequired,
	)
	return outcome
}

func (c *Collector) collectAccount(ctx context.Context, t types.AccountTarget) scraper.Outcome {
	res := c.fetcher.FetchAccount(ctx, t)
	outcome := res.Outcome()
	instance := t.Instance.String()

	switch outcome {
	case scraper.OutcomeSuccess:
	case scraper.OutcomeNotFound:
		slog.Info("collector: account not found", "instance", instance, "account_id", t.ID)
		c.setRateLimit(instance, res.RateLimit)
		return outcome
	default:
		slog.Warn("collector: account fetch failed",
			"instance", instance, "account_id", t.ID, "outcome", outcome, "err", res.Err)
		return outcome
	}

	c.setRateLimit(instance, res.RateLimit)
	info := res.Info
	labels := []string{instance, t.ID, info.Username}
	c.registry.Set(metrics.AccountFollowersCount, float64(info.FollowersCount), labels...)
	c.registry.Set(metrics.AccountFollowingCount, float64(info.FollowingCount), labels...)
	c.registry.Set(metrics.AccountStatusesCount, float64(info.StatusesCount), labels...)
	if info.LastStatusAt != nil {
		c.registry.Set(metrics.AccountLastStatusAt, float64(info.LastStatusAt.Unix()), labels...)
	}

	slog.Debug("collector: account collected",
		"instance", instance,
		"account_id", t.ID,
		"username", info.Username,
		"followers", info.FollowersCount,
		"statuses", info.StatusesCount,
	)
	return outcome
}

// setRateLimit publishes rl for instance. A nil sample writes nothing.
func (c *Collector) setRateLimit(instance string, rl *mastodon.RateLimit) {
	if rl == nil {
		return
	}
	c.registry.Set(metrics.RateLimitRemaining, float64(rl.Remaining), instance)
	c.registry.Set(metrics.RateLimitReset, float64(rl.ResetAt), instance)
}

func (c *Collector) publishSummary(s Summary) {
	c.registry.Set(metrics.CollectDuration, s.Duration.Seconds())
	for _, o := range reportedOutcomes {
		c.registry.Set(metrics.CollectTargets, float64(s.Outcomes[o]), string(o))
	}
}
