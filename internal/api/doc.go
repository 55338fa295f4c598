// Package api hosts the HTTP server, middleware, and REST handlers of the
// reference export backend. Notable routes:
//   - GET /healthz / readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/logs for the paginated request log.
//   - GET /api/analytics/* for latency, status code and traffic summaries.
//   - POST /api/logs/export/{kind} to enqueue an export, plus status,
//     download and cancel routes under the same prefix.
package api
