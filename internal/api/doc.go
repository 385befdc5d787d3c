// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/requests for acquisition submission, with per-requester
//     cancellation under /v1/requests/{requester}/cancel.
//   - PUT/DELETE /v1/moderation/ban|mute/{requester} for abuse controls.
package api
