// Package textutil provides filename and path-segment sanitisation for the
// snapshot and quarantine directories.
//
// Header values such as site, subject and series description become directory
// names, so every value passes through SanitizePathSegment before it reaches
// the filesystem.
package textutil
