// Package api hosts the read-only HTTP interface for operators. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/queues/{table}/status for live counts and the snapshot locator.
//   - GET /v1/queues/{table}/snapshot for the last published progress snapshot.
//   - GET /v1/queues/{table}/export.csv for the flat export.
package api
