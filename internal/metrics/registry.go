package metrics

import (
	"bytes"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Series names published for remote instances and accounts.
const (
	RateLimitRemaining            = "mastodon_ratelimit_remaining"
	RateLimitReset                = "mastodon_ratelimit_reset"
	Info                          = "mastodon_info"
	RegistrationsEnabled          = "mastodon_registrations_enabled"
	RegistrationsApprovalRequired = "mastodon_registrations_approval_required"
	AccountFollowersCount         = "mastodon_account_followers_count"
	AccountFollowingCount         = "mastodon_account_following_count"
	AccountStatusesCount          = "mastodon_account_statuses_count"
	AccountLastStatusAt           = "mastodon_account_last_status_at"
)

// Exporter self-metrics. None of them carries a per-target label.
const (
	CollectDuration = "mastodon_exporter_collect_duration_seconds"
	CollectTargets  = "mastodon_exporter_collect_targets"
	HTTPRequests    = "mastodon_exporter_http_requests_total"
)

var (
	instanceLabels     = []string{"instance"}
	instanceInfoLabels = []string{"instance", "domain", "title", "version"}
	accountLabels      = []string{"instance", "account_id", "username"}
)

// gaugeDefs is the fixed schema of every gauge series.
var gaugeDefs = []struct {
	name   string
	help   string
	labels []string
}{
	{RateLimitRemaining, "Current remaining ratelimit of instance.", instanceLabels},
	{RateLimitReset, "Number of seconds since 1970 of ratelimit reset for instance.", instanceLabels},
	{Info, "General instance information.", instanceInfoLabels},
	{RegistrationsEnabled, "Whether or not registrations are enabled on instance.", instanceLabels},
	{RegistrationsApprovalRequired, "Whether or not approval is required on instance.", instanceLabels},
	{AccountFollowersCount, "Number of followers for account.", accountLabels},
	{AccountFollowingCount, "Number of accounts followed by account.", accountLabels},
	{AccountStatusesCount, "Number of statuses for account.", accountLabels},
	{AccountLastStatusAt, "Number of seconds since 1970 of last status for account.", accountLabels},
	{CollectDuration, "Duration of the last collection cycle in seconds.", nil},
	{CollectTargets, "Number of targets per outcome in the last collection cycle.", []string{"outcome"}},
}

// Options controls optional collectors registered alongside the gauges.
type Options struct {
	// RuntimeMetrics adds the Go runtime and process collectors.
	RuntimeMetrics bool
}

// Registry is a prometheus.Registry with the exporter's series pre-registered.
type Registry struct {
	reg      *prometheus.Registry
	gauges   map[string]*prometheus.GaugeVec
	requests *prometheus.CounterVec
}

// New creates a Registry and registers every series. It panics if the schema
// itself is inconsistent, which can only happen through a code change.
func New(opts Options) *Registry {
	r := &Registry{
		reg:    prometheus.NewRegistry(),
		gauges: make(map[string]*prometheus.GaugeVec, len(gaugeDefs)),
	}

	for _, d := range gaugeDefs {
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: d.name, Help: d.help}, d.labels)
		r.reg.MustRegister(vec)
		r.gauges[d.name] = vec
	}

	r.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: HTTPRequests,
		Help: "Outbound HTTP requests to Mastodon instances by status code and method.",
	}, []string{"code", "method"})
	r.reg.MustRegister(r.requests)

	if opts.RuntimeMetrics {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Set upserts value for the given label tuple of series.
func (r *Registry) Set(series string, value float64, labelValues ...string) {
	vec, ok := r.gauges[series]
	if !ok {
		panic(fmt.Sprintf("metrics: unknown series %q", series))
	}
	// WithLabelValues panics on arity mismatch.
	vec.WithLabelValues(labelValues...).Set(value)
}

// SetBool publishes b as 0 or 1.
func (r *Registry) SetBool(series string, b bool, labelValues ...string) {
	var v float64
	if b {
		v = 1
	}
	r.Set(series, v, labelValues...)
}

// RequestCounter returns the counter used to instrument the outbound transport.
func (r *Registry) RequestCounter() *prometheus.CounterVec {
	return r.requests
}

// Gather returns the current contents of the registry, sorted by name.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

// Write serializes the registry to w in the given exposition format. Nothing
// is written to w if gathering or encoding fails.
func (r *Registry) Write(w io.Writer, format expfmt.Format) error {
	mfs, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("metrics: close encoder: %w", err)
		}
	}

	_, err = w.Write(buf.Bytes())
	return err
}
