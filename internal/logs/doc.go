// Package logs tails the daemon log file for `sqan logs`.
//
// Reads are bounded: the last N lines are collected through a ring buffer and
// follow mode polls from the previous offset until the context is cancelled.
package logs
