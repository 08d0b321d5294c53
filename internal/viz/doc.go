// Package viz renders the operator-facing console output of a sweep:
//
//   - [Styles]: lipgloss styles built from a [Theme]
//   - [FormatSeq]: compact rendering of a sample sequence
//   - [ProgressBar]: block progress bar used by the live view
//   - [DurationChart]: asciigraph chart of per-run wall time
//
// Output degrades to plain text when stdout is not a terminal.
package viz
