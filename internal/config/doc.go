// Package config loads, normalizes, and validates SQAN configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PUBSUB_PROJECT_ID and SQAN_MONGO_URI, optionally sourced from a .env file.
// The Config type centralizes every knob the daemon and CLI need, so snapshot
// directories, the document store, the broker and the QC rule table are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
