package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/grantscan/internal/model"
)

// consoleTopLimit is the number of opportunities the console summary lists
// unless verbose output is requested.
const consoleTopLimit = 5

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display at the end of a scan.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because it works in all terminals and is easy to pipe to
// files or other tools.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose lists every top opportunity with its link and each source status.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.ScrapingReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeSources(&sb, report)
	w.writeOpportunities(&sb, report)
	w.writeErrors(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeSection writes a section title between rules.
func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with session information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScrapingReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                    FUNDING OPPORTUNITY REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Session Date:   %s\n", report.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Execution Time: %.2fs\n", report.ExecutionTime)
	fmt.Fprintf(sb, "Status:         %s\n", sessionStatus(report))
	sb.WriteString("\n")
}

// writeSummary writes the session counts.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.ScrapingReport) {
	writeSection(sb, "SUMMARY")

	fmt.Fprintf(sb, "  Collected:     %d\n", report.TotalOpportunities)
	fmt.Fprintf(sb, "  Relevant:      %d\n", report.RelevantOpportunities)
	fmt.Fprintf(sb, "  Sources:       %d of %d succeeded\n", len(report.SourcesScraped), len(report.Sources))
	fmt.Fprintf(sb, "  Success Rate:  %.0f%%\n", report.SuccessRate()*100)
	if report.Persisted > 0 || report.PersistFailures > 0 {
		fmt.Fprintf(sb, "  Persisted:     %d (%d failed)\n", report.Persisted, report.PersistFailures)
	}
	sb.WriteString("\n")
}

// writeSources lists the sources. Without verbose output only the
// completed ones are named.
func (w *SimpleWriter) writeSources(sb *strings.Builder, report *model.ScrapingReport) {
	if len(report.Sources) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "SOURCES")

	if len(report.Sources) == 0 {
		sb.WriteString("  No sources scheduled\n\n")
		return
	}

	for _, s := range report.Sources {
		switch {
		case w.verbose:
			fmt.Fprintf(sb, "  [%s] %s: %d records, %d attempt(s), %.1fs\n",
				w.getStateIndicator(s.State), s.Name, s.Collected, s.Attempts, s.Elapsed)
		case s.State == model.SourceSucceeded:
			fmt.Fprintf(sb, "  [%s] %s: %d records\n", w.getStateIndicator(s.State), s.Name, s.Collected)
		default:
			fmt.Fprintf(sb, "  [%s] %s\n", w.getStateIndicator(s.State), s.Name)
		}
	}
	sb.WriteString("\n")
}

// getStateIndicator returns a visual indicator for a source state.
func (w *SimpleWriter) getStateIndicator(state model.SourceState) string {
	switch state {
	case model.SourceSucceeded:
		return "+"
	case model.SourceFailedFinal:
		return "x"
	default:
		return "?"
	}
}

// writeOpportunities lists the best ranked records.
func (w *SimpleWriter) writeOpportunities(sb *strings.Builder, report *model.ScrapingReport) {
	if len(report.TopOpportunities) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "TOP OPPORTUNITIES")

	if len(report.TopOpportunities) == 0 {
		sb.WriteString("  No relevant opportunities found\n\n")
		return
	}

	top := report.TopOpportunities
	if !w.verbose && len(top) > consoleTopLimit {
		top = top[:consoleTopLimit]
	}

	for i, o := range top {
		fmt.Fprintf(sb, "  %d. %s\n", i+1, truncateString(o.Title, 80))
		fmt.Fprintf(sb, "     Score: %.2f | Priority: %s | Source: %s\n", o.RelevanceScore, o.PriorityLevel, o.Source)
		if o.FundingAmount != "" {
			fmt.Fprintf(sb, "     Amount: %s\n", o.FundingAmount)
		}
		if w.verbose && o.ApplicationLink != "" {
			fmt.Fprintf(sb, "     Link: %s\n", o.ApplicationLink)
		}
	}
	sb.WriteString("\n")
}

// writeErrors lists the session errors.
func (w *SimpleWriter) writeErrors(sb *strings.Builder, report *model.ScrapingReport) {
	if len(report.Errors) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "ERRORS")

	if len(report.Errors) == 0 {
		sb.WriteString("  None\n\n")
		return
	}

	for _, e := range report.Errors {
		fmt.Fprintf(sb, "  ! %s\n", e)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by grantscan\n")
	sb.WriteString("https://github.com/nao1215/grantscan\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
