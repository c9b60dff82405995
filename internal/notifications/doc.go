// Package notifications delivers operator alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic URL configured
// in config.toml and degrades to a no-op when no topic is set. Each event can
// be switched off in [notifications] so a busy site is not paged for every
// quarantined header.
package notifications
