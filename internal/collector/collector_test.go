package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastodon-exporter/mastodon-exporter/internal/config"
	"github.com/mastodon-exporter/mastodon-exporter/internal/mastodon"
	"github.com/mastodon-exporter/mastodon-exporter/internal/metrics"
	"github.com/mastodon-exporter/mastodon-exporter/internal/scraper"
	"github.com/mastodon-exporter/mastodon-exporter/pkg/types"
)

// fakeFetcher serves canned results keyed by target.
type fakeFetcher struct {
	mu        sync.Mutex
	instances map[types.InstanceTarget]*scraper.InstanceResult
	accounts  map[types.AccountTarget]*scraper.AccountResult
	onFetch   func()
}

func (f *fakeFetcher) FetchInstance(_ context.Context, t types.InstanceTarget) *scraper.InstanceResult {
	if f.onFetch != nil {
		f.onFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.instances[t]; ok {
		return r
	}
	return &scraper.InstanceResult{Target: t, Err: scraper.ErrTransport}
}

func (f *fakeFetcher) FetchAccount(_ context.Context, t types.AccountTarget) *scraper.AccountResult {
	if f.onFetch != nil {
		f.onFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.accounts[t]; ok {
		return r
	}
	return &scraper.AccountResult{Target: t, Err: scraper.ErrTransport}
}

func (f *fakeFetcher) setAccount(r *scraper.AccountResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[r.Target] = r
}

func newFake() *fakeFetcher {
	return &fakeFetcher{
		instances: map[types.InstanceTarget]*scraper.InstanceResult{},
		accounts:  map[types.AccountTarget]*scraper.AccountResult{},
	}
}

// gauge returns the value of series for the label set want, and whether the
// registry holds it at all.
func gauge(t *testing.T, reg *metrics.Registry, series string, want map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != series {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if got[k] != v {
					continue next
				}
			}
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func date(s string) *time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return &d
}

var (
	alice = types.AccountTarget{Instance: "mas.to", ID: "1"}
	gone  = types.AccountTarget{Instance: "mas.to", ID: "404"}
)

func aliceResult(followers int64, last *time.Time) *scraper.AccountResult {
	return &scraper.AccountResult{
		Target: alice,
		Info: &mastodon.AccountInfo{
			Username: "alice", FollowersCount: followers, FollowingCount: 7, StatusesCount: 9,
			LastStatusAt: last,
		},
		RateLimit: &mastodon.RateLimit{Remaining: 290, ResetAt: 1669032300},
	}
}

func TestRunCycle_WritesAllSeries(t *testing.T) {
	f := newFake()
	f.instances["mas.to"] = &scraper.InstanceResult{
		Target: "mas.to",
		Info: &mastodon.InstanceInfo{
			Domain: "mas.to", Title: "mas.to", Version: "4.2.1",
			RegistrationsEnabled: true, RegistrationsApprovalRequired: false,
		},
		RateLimit: &mastodon.RateLimit{Remaining: 300, ResetAt: 1669032300},
	}
	f.setAccount(aliceResult(100, date("2022-11-21")))

	reg := metrics.New(metrics.Options{})
	sum := New(f, reg, 0).RunCycle(context.Background(), types.Targets{
		Instances: []types.InstanceTarget{"mas.to"},
		Accounts:  []types.AccountTarget{alice},
	})

	assert.Equal(t, 2, sum.Outcomes[scraper.OutcomeSuccess])
	assert.Zero(t, sum.Failed())

	v, ok := gauge(t, reg, metrics.Info, map[string]string{"instance": "mas.to", "version": "4.2.1"})
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, _ = gauge(t, reg, metrics.RegistrationsEnabled, map[string]string{"instance": "mas.to"})
	assert.Equal(t, 1.0, v)
	v, ok = gauge(t, reg, metrics.RegistrationsApprovalRequired, map[string]string{"instance": "mas.to"})
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	acct := map[string]string{"instance": "mas.to", "account_id": "1", "username": "alice"}
	v, _ = gauge(t, reg, metrics.AccountFollowersCount, acct)
	assert.Equal(t, 100.0, v)
	v, _ = gauge(t, reg, metrics.AccountFollowingCount, acct)
	assert.Equal(t, 7.0, v)
	v, _ = gauge(t, reg, metrics.AccountStatusesCount, acct)
	assert.Equal(t, 9.0, v)
	v, _ = gauge(t, reg, metrics.AccountLastStatusAt, acct)
	assert.Equal(t, 1668988800.0, v)

	v, ok = gauge(t, reg, metrics.RateLimitReset, map[string]string{"instance": "mas.to"})
	assert.True(t, ok)
	assert.Equal(t, 1669032300.0, v)
}

func TestRunCycle_NotFoundDoesNotBlockSiblings(t *testing.T) {
	f := newFake()
	ok200 := aliceResult(100, nil)
	ok200.RateLimit = nil // the only rate-limit sample comes from the 404
	f.setAccount(ok200)
	f.setAccount(&scraper.AccountResult{
		Target:    gone,
		Err:       scraper.ErrNotFound,
		RateLimit: &mastodon.RateLimit{Remaining: 12, ResetAt: 1669032300},
	})

	reg := metrics.New(metrics.Options{})
	sum := New(f, reg, 0).RunCycle(context.Background(), types.Targets{
		Accounts: []types.AccountTarget{alice, gone},
	})

	assert.Equal(t, 1, sum.Outcomes[scraper.OutcomeNotFound])
	assert.Equal(t, 1, sum.Outcomes[scraper.OutcomeSuccess])
	assert.Zero(t, sum.Failed(), "not found is benign")

	_, ok := gauge(t, reg, metrics.AccountFollowersCount, map[string]string{"account_id": "1"})
	assert.True(t, ok, "sibling account must be published")
	_, ok = gauge(t, reg, metrics.AccountFollowersCount, map[string]string{"account_id": "404"})
	assert.False(t, ok, "missing account must not be published")

	v, ok := gauge(t, reg, metrics.RateLimitRemaining, map[string]string{"instance": "mas.to"})
	assert.True(t, ok, "rate limit from a 404 is still published")
	assert.Equal(t, 12.0, v)
}

func TestRunCycle_FailureKeepsStaleValues(t *testing.T) {
	f := newFake()
	f.setAccount(aliceResult(100, date("2022-11-21")))
	reg := metrics.New(metrics.Options{})
	c := New(f, reg, 0)
	targets := types.Targets{Accounts: []types.AccountTarget{alice}}

	c.RunCycle(context.Background(), targets)

	f.setAccount(&scraper.AccountResult{Target: alice, Err: &scraper.StatusError{Code: 502}})
	sum := c.RunCycle(context.Background(), targets)
	assert.Equal(t, 1, sum.Outcomes[scraper.OutcomeHTTPError])

	v, ok := gauge(t, reg, metrics.AccountFollowersCount, map[string]string{"account_id": "1"})
	require.True(t, ok)
	assert.Equal(t, 100.0, v, "failed cycle must leave the previous value")
}

func TestRunCycle_LastWriteWins(t *testing.T) {
	f := newFake()
	reg := metrics.New(metrics.Options{})
	c := New(f, reg, 0)
	targets := types.Targets{Accounts: []types.AccountTarget{alice}}

	f.setAccount(aliceResult(100, date("2022-11-21")))
	c.RunCycle(context.Background(), targets)
	f.setAccount(aliceResult(101, nil))
	c.RunCycle(context.Background(), targets)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == metrics.AccountFollowersCount {
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 101.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}

	v, ok := gauge(t, reg, metrics.AccountLastStatusAt, map[string]string{"account_id": "1"})
	require.True(t, ok)
	assert.Equal(t, 1668988800.0, v, "absent last_status_at must not reset the gauge")
}

func TestRunCycle_PanicIsContained(t *testing.T) {
	f := newFake()
	f.setAccount(aliceResult(100, nil))
	f.instances["broken"] = nil // nil result panics on Outcome()

	reg := metrics.New(metrics.Options{})
	sum := New(f, reg, 0).RunCycle(context.Background(), types.Targets{
		Instances: []types.InstanceTarget{"broken"},
		Accounts:  []types.AccountTarget{alice},
	})

	assert.Equal(t, 1, sum.Outcomes[OutcomePanic])
	assert.Equal(t, 1, sum.Outcomes[scraper.OutcomeSuccess])
	v, _ := gauge(t, reg, metrics.CollectTargets, map[string]string{"outcome": "panic"})
	assert.Equal(t, 1.0, v)
}

func TestRunCycle_FetchesInParallel(t *testing.T) {
	const n = 8
	var started atomic.Int32
	all := make(chan struct{})

	f := newFake()
	f.onFetch = func() {
		if started.Add(1) == n {
			close(all)
		}
		select {
		case <-all:
		case <-time.After(5 * time.Second):
		}
	}

	targets := types.Targets{}
	for i := 0; i < n; i++ {
		targets.Instances = append(targets.Instances, types.InstanceTarget(strings.Repeat("x", i+1)))
	}

	start := time.Now()
	New(f, metrics.New(metrics.Options{}), 0).RunCycle(context.Background(), targets)
	assert.Less(t, time.Since(start), 4*time.Second, "fetches must overlap")
}

func TestRunCycle_MaxConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := newFake()
	f.onFetch = func() {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	}

	targets := types.Targets{}
	for i := 0; i < 10; i++ {
		targets.Instances = append(targets.Instances, types.InstanceTarget(strings.Repeat("y", i+1)))
	}
	New(f, metrics.New(metrics.Options{}), 2).RunCycle(context.Background(), targets)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunCycle_MalformedHeaderOnlyAbortsThatTarget(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "300")
		w.Header().Set("X-RateLimit-Reset", "2022-11-21T12:05:00Z")
		_, _ = w.Write([]byte(`{"domain":"good","title":"Good","version":"4.2.1",
			"registrations":{"enabled":false,"approval_required":true}}`))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "300")
		w.Header().Set("X-RateLimit-Reset", "soon")
		_, _ = w.Write([]byte(`{"domain":"bad","title":"Bad","version":"4.2.1",
			"registrations":{"enabled":true,"approval_required":true}}`))
	}))
	defer bad.Close()

	client, err := scraper.New(config.ScrapeConfig{Scheme: "http", Timeout: 2 * time.Second})
	require.NoError(t, err)

	goodHost := strings.TrimPrefix(good.URL, "http://")
	badHost := strings.TrimPrefix(bad.URL, "http://")

	reg := metrics.New(metrics.Options{})
	sum := New(client, reg, 0).RunCycle(context.Background(), types.Targets{
		Instances: []types.InstanceTarget{types.InstanceTarget(goodHost), types.InstanceTarget(badHost)},
	})
	assert.Equal(t, 1, sum.Outcomes[scraper.OutcomeHeaderError])

	_, ok := gauge(t, reg, metrics.Info, map[string]string{"instance": goodHost})
	assert.True(t, ok)
	v, ok := gauge(t, reg, metrics.RegistrationsApprovalRequired, map[string]string{"instance": goodHost})
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	for _, series := range []string{metrics.Info, metrics.RegistrationsEnabled, metrics.RateLimitReset, metrics.RateLimitRemaining} {
		_, ok := gauge(t, reg, series, map[string]string{"instance": badHost})
		assert.False(t, ok, "%s must not be written for %s", series, badHost)
	}
}
