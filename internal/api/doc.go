// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - POST /api/download and DELETE /api/remove for job submission and
//     artifact deletion.
//   - GET /api/status upgrades to a websocket that receives a CONNECTED
//     snapshot followed by every state change.
//   - GET /api/downloads returns the artifact listing as plain JSON.
//   - GET <download prefix>/... serves artifact files.
//   - GET /healthz / readyz for Kubernetes probes and /metrics for Prometheus.
package api
