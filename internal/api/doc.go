// Package api serves the operator HTTP surface while a run is in flight:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the current run's counters.
//   - GET /v1/documents/{id} to ask whether a document already has a record.
package api
