// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for probes; readyz fails once the enrichment
//     worker has begun shutting down.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/links lists the caller's links, newest first.
//   - PUT /v1/articles/{article_id}/links reconciles an article's links
//     against its markdown (or an explicit URL list).
//   - DELETE /v1/articles/{article_id}/links forgets an article's links.
//
// Callers identify themselves with the X-User-ID header.
package api
