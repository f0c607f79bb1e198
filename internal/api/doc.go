// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/search?q= for ranked results.
//   - /v1/admin/... for seeding the frontier and managing domains, guarded by
//     X-API-Key when auth is enabled.
package api
