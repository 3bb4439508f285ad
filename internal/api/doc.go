// Package api serves the exporter's HTTP surface.
//
// Routes:
//   - GET /metrics: runs one full collection cycle, then writes the whole
//     registry in the negotiated Prometheus exposition format. Always 200
//     unless serialization itself fails.
//   - GET /healthz: liveness probe; does not touch any instance.
//   - GET /: landing page linking to /metrics.
//
// Nothing is cached between scrapes: every /metrics request re-polls every
// configured target.
package api
