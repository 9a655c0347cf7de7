package report

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/nao1215/grantscan/internal/model"
)

// Writer defines the interface for report output.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.ScrapingReport) (int, error)
}

// Format selects a report file format.
type Format string

const (
	// FormatJSON is the structured session document.
	FormatJSON Format = "json"

	// FormatMarkdown is the Markdown document.
	FormatMarkdown Format = "md"

	// FormatText is the console summary written to a file.
	FormatText Format = "txt"
)

// FileNamePrefix starts every report file name.
const FileNamePrefix = "scraping_report_"

// fileTimeLayout is the session start time layout used in file names.
const fileTimeLayout = "20060102_150405"

// FileName returns the report file name for a session started at start,
// e.g. scraping_report_20250301_120000.json.
func FileName(start time.Time, ext string) string {
	return FileNamePrefix + start.Format(fileTimeLayout) + "." + ext
}

// NewWriter returns the writer for format, writing to output.
// Unknown formats fall back to the console summary.
func NewWriter(format Format, output io.Writer) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint())
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	default:
		return NewSimpleWriter(output, WithShowEmpty(true))
	}
}

// WriteFile writes report to dir in the given format and returns the path.
// The directory is created when missing.
func WriteFile(dir string, report *model.ScrapingReport, format Format) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, FileName(report.Timestamp, string(format)))

	// Reports name the sources queried and may carry contact addresses,
	// so they are readable by the owner only.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}

	if _, err := NewWriter(format, f).Write(report); err != nil {
		_ = f.Close() //nolint:errcheck // the write error takes precedence
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close report file: %w", err)
	}

	return path, nil
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.ScrapingReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// truncateString shortens s to maxLen runes, ending with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return model.TruncateRunes(s, maxLen)
	}
	return model.TruncateRunes(s, maxLen-3) + "..."
}

// orDash returns "-" for empty cells.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sessionStatus summarizes how the session ended.
func sessionStatus(report *model.ScrapingReport) string {
	failed := len(report.FailedSources())
	switch {
	case len(report.Sources) == 0:
		return "No sources scheduled"
	case len(report.SourcesScraped) == 0:
		return "All sources failed"
	case failed > 0:
		return fmt.Sprintf("Partial (%d of %d sources failed)", failed, len(report.Sources))
	default:
		return "Complete"
	}
}

// priorityOrder lists levels from most to least urgent.
var priorityOrder = []model.PriorityLevel{
	model.PriorityCritical,
	model.PriorityHigh,
	model.PriorityMedium,
	model.PriorityLow,
	model.PriorityMinimal,
}

// keywordCategories returns the category names of stats in sorted order,
// with the "total" entry last.
func keywordCategories(stats map[string]int) []string {
	names := slices.Sorted(maps.Keys(stats))
	if i := slices.Index(names, "total"); i >= 0 {
		names = append(slices.Delete(names, i, i+1), "total")
	}
	return names
}
