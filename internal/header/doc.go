// Package header turns raw DICOM header maps into cleaned documents plus the
// identity fields used to file them.
//
// Everything here is pure: no I/O, and the raw map handed in is never
// mutated. Identify derives site, subject, template flag, search index key,
// and the hierarchy keys; Clean produces the copy that is published and
// stored. Subject and template detection are delegated to a MetaParser so
// sites can swap in their own naming conventions.
package header
