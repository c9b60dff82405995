// Package services defines shared utilities consumed by the ingestion
// pipeline, the QC engine and the admin commands.
//
// Key responsibilities:
//   - Context helpers that stamp broker message IDs, DICOM instance UIDs,
//     pipeline step names, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, so callers can decide with
//     errors.Is whether a failure quarantines a message or halts the consumer.
package services
