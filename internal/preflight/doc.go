// Package preflight checks the directories and backing services SQAN needs
// before the daemon starts consuming. `sqan preflight` prints the results and
// the daemon refuses to start when a required check fails.
//
// Checks for optional services run only when they are configured.
package preflight
