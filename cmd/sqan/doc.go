// Package main hosts the SQAN CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground (run, ingest, qc),
// queries a running daemon over its HTTP API (status, test-notify), and
// performs admin operations directly against the document store (research,
// series, template, quarantine). Configuration resolution is centralized in
// commandContext so subcommands can focus on output.
//
// Keep this package lean: add behavior to the internal packages first, then
// surface it here.
package main
