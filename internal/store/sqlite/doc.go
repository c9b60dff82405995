// Package sqlite implements store.Store on a single SQLite database using the
// pure-Go modernc driver.
//
// Each identity-keyed table carries a dedup_key column holding the JSON
// rendering of the identity tuple under a UNIQUE constraint. Find-or-create
// is an INSERT ... ON CONFLICT(dedup_key) DO NOTHING followed by a read, so
// nil identity parts form their own group and concurrent writers converge.
package sqlite
