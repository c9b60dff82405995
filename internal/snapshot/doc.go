// Package snapshot writes JSON copies of headers to disk and optionally
// mirrors them to Google Cloud Storage.
//
// Disk layout is <root>/<site>/<subject>/<studyUID>/<seriesDesc>/<uid>.json
// with every segment sanitised. The mirror is best-effort: upload failures
// are logged and never fail the write.
package snapshot
