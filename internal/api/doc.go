// Package api hosts the operator HTTP surface of a crawl run. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for a snapshot of the current run's statistics.
package api
