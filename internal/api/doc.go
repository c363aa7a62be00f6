// Package api hosts the operator HTTP surface of a running crawl:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/tasks for the outstanding background task count per tag.
package api
