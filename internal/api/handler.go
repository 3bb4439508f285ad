package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/common/expfmt"

	"github.com/mastodon-exporter/mastodon-exporter/internal/collector"
	"github.com/mastodon-exporter/mastodon-exporter/pkg/types"
)

// Cycler runs one collection cycle. *collector.Collector implements it.
type Cycler interface {
	RunCycle(ctx context.Context, targets types.Targets) collector.Summary
}

// Snapshotter serializes the registry. *metrics.Registry implements it.
type Snapshotter interface {
	Write(w io.Writer, format expfmt.Format) error
}

// Handler is the HTTP handler for all exporter endpoints.
type Handler struct {
	cycler  Cycler
	reg     Snapshotter
	targets types.Targets
	mux     *http.ServeMux
}

// New creates a Handler that polls targets on every scrape and registers all
// routes. targets must not be modified afterwards.
func New(c Cycler, reg Snapshotter, targets types.Targets) http.Handler {
	h := &Handler{cycler: c, reg: reg, targets: targets, mux: http.NewServeMux()}

	h.mux.HandleFunc("/metrics", h.metrics)
	h.mux.HandleFunc("/healthz", h.healthz)
	h.mux.HandleFunc("/", h.index)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// metrics serves GET /metrics. It collects first, then serializes.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sum := h.cycler.RunCycle(r.Context(), h.targets)

	format := expfmt.Negotiate(r.Header)
	var buf bytes.Buffer
	if err := h.reg.Write(&buf, format); err != nil {
		slog.Error("api: serialize registry", "err", err)
		http.Error(w, "failed to serialize metrics", http.StatusInternalServerError)
		return
	}

	slog.Debug("api: scrape served",
		"remote", r.RemoteAddr, "bytes", buf.Len(), "failed_targets", sum.Failed())

	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// healthz serves GET /healthz.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Instances: len(h.targets.Instances),
		Accounts:  len(h.targets.Accounts),
	})
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>Mastodon Exporter</title></head>
<body>
<h1>Mastodon Exporter</h1>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>
`

// index serves GET / and 404s everything else the mux routes here.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
