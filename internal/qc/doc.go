// Package qc compares image headers against template headers.
//
// Selector picks the template series for an image's series: the series'
// pinned template exam when set, otherwise the newest template exam of the
// research, then the best description match inside that exam (see
// PickTemplate). Checker resolves the template header for the image's
// instance and echo number, runs the configured Evaluator and stores the
// verdict. A missing template or template header is a valid outcome stored
// as notemp, not an error.
package qc
