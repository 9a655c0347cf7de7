// Package report provides session report generation and output.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable console summary
//   - JSONWriter: The structured session document for tool integration
//   - MarkdownWriter: A shareable document with tables and a priority chart
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) to follow the single responsibility
// principle. This allows adding new output formats without modifying
// the core data structures.
//
// Report files are named after the session start time by FileName, so the
// same session always maps to the same file name.
package report
