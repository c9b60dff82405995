// Package store defines the document model shared by the ingestion pipeline
// and the QC engine, together with the Store capability both depend on.
//
// Backends live in subpackages: sqlite (the default, single host) and mongo
// (shared by many ingest instances). Every find-or-create operation is
// atomic at the document level so concurrent ingesters converge on the same
// Research, Series, Study and Acquisition without duplicates. The storetest
// package holds the behavioural suite each backend must pass.
package store
