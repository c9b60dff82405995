// Package ingest consumes DICOM header messages and files them.
//
// Each delivery runs through a fixed list of typed steps: decode, normalize,
// snapshot_raw, clean, snapshot_cleaned, publish_cleaned and upsert. The
// first failing step stops the message. A failed message is republished
// verbatim to the failed topic, written to the quarantine directory and then
// acknowledged. Two failures stop the consumer instead: a raw snapshot that
// cannot be written, and a quarantine that cannot be completed. In both cases
// the delivery is nacked so the broker keeps it.
//
// One message is processed at a time per Pipeline.
package ingest
