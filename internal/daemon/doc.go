// Package daemon coordinates the long-running SQAN process.
//
// It runs the ingest consumer and the QC engine under a single lifecycle with
// flock-based locking so only one daemon owns a data directory. A small chi
// HTTP server exposes /healthz, Prometheus /metrics and the JSON /api/status
// consumed by `sqan status`.
//
// Keep orchestration here: message handling lives in ingest and QC cycles
// live in workflow, while the daemon only starts, stops and reports on them.
package daemon
