// Package mongo implements store.Store on MongoDB for deployments where
// several ingest instances share one document store.
//
// Identity fields carry unique indexes; find-or-create runs as
// FindOneAndUpdate with $setOnInsert and upsert enabled, which is atomic per
// document. Header blobs round-trip through relaxed Extended JSON so callers
// always see the same value types the SQLite backend returns.
package mongo
