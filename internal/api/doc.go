// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to queue a run of one source.
//   - GET /v1/runs and /v1/runs/{run_id} for run status and reports.
//   - GET /v1/sources for the configured source catalog.
package api
