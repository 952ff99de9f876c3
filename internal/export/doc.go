// Package export renders device history as CSV downloads.
//
// Rendering is split into a pure row builder (ToRows) and a writer
// (Write) so the tabular shape can be tested without I/O. Numeric cells
// go through SafeNumber, which guarantees non-finite values never appear
// in the output.
package export
