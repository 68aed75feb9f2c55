// Package api hosts the HTTP server, middleware, and REST handlers in front of the
// resolver. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/resolve to find or create an archive for one URL.
//   - GET /v1/links for the manual search/create links.
//   - /v1/sites to manage the watch list, POST /v1/scan to resolve watched URLs in text.
package api
