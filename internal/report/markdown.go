package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/grantscan/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScrapingReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeSources(md, report)
	w.writeOpportunities(md, report)
	w.writeErrors(md, report)
	w.writeKeywordStats(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with session information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScrapingReport) {
	md.H1("Funding Opportunity Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session Date", report.Timestamp.Format("2006-01-02 15:04:05 MST")},
			{"Execution Time", fmt.Sprintf("%.2fs", report.ExecutionTime)},
			{"Sources", fmt.Sprintf("%d of %d succeeded", len(report.SourcesScraped), len(report.Sources))},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.ScrapingReport) string {
	status := sessionStatus(report)
	switch {
	case len(report.Sources) > 0 && len(report.SourcesScraped) == 0:
		return "❌ " + status
	case len(report.FailedSources()) > 0:
		return "⚠️ " + status
	default:
		return "✅ " + status
	}
}

// writeSummary writes the counts and the priority distribution.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.ScrapingReport) {
	md.H2("Summary")
	md.PlainText("")

	rows := [][]string{
		{"Collected", strconv.Itoa(report.TotalOpportunities)},
		{"Relevant", strconv.Itoa(report.RelevantOpportunities)},
		{"Success Rate", fmt.Sprintf("%.0f%%", report.SuccessRate()*100)},
	}
	if report.Persisted > 0 || report.PersistFailures > 0 {
		rows = append(rows,
			[]string{"Persisted", strconv.Itoa(report.Persisted)},
			[]string{"Persist Failures", strconv.Itoa(report.PersistFailures)},
		)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(report.TopOpportunities) > 0 {
		w.writePieChart(md, report)
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of top opportunity priorities.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.ScrapingReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Top Opportunity Priorities"),
		piechart.WithShowData(true),
	)

	counts := report.PriorityCounts()
	for _, level := range priorityOrder {
		if n := counts[level]; n > 0 {
			chart.LabelAndIntValue(level.String(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert for the session outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.ScrapingReport) {
	failed := len(report.FailedSources())

	switch {
	case len(report.Sources) > 0 && len(report.SourcesScraped) == 0:
		md.Cautionf("Every source failed. %d error(s) were recorded; see the Errors section.", len(report.Errors))
	case failed > 0:
		md.Warningf("%d source(s) failed after retries. Results are partial.", failed)
	case report.PersistFailures > 0:
		md.Importantf("%d record(s) could not be persisted.", report.PersistFailures)
	case report.RelevantOpportunities == 0:
		md.Note("No opportunity reached the relevance threshold.")
	default:
		md.Tip("All sources completed.")
	}
	md.PlainText("")
}

// writeSources writes the per-source status table.
func (w *MarkdownWriter) writeSources(md *markdown.Markdown, report *model.ScrapingReport) {
	md.H2("Sources")
	md.PlainText("")

	if len(report.Sources) == 0 {
		md.PlainText("No sources were scheduled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Sources))
	for i, s := range report.Sources {
		rows[i] = []string{
			"`" + s.Name + "`",
			s.State.String(),
			strconv.Itoa(s.Attempts),
			strconv.Itoa(s.Collected),
			fmt.Sprintf("%.1fs", s.Elapsed),
			truncateString(orDash(s.LastError), 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Source", "State", "Attempts", "Collected", "Elapsed", "Last Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeOpportunities writes the ranked top opportunities.
func (w *MarkdownWriter) writeOpportunities(md *markdown.Markdown, report *model.ScrapingReport) {
	md.H2("Top Opportunities")
	md.PlainText("")

	if len(report.TopOpportunities) == 0 {
		md.PlainText("No relevant opportunities found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.TopOpportunities))
	for i, o := range report.TopOpportunities {
		title := truncateString(o.Title, 80)
		if o.ApplicationLink != "" {
			title = "[" + title + "](" + o.ApplicationLink + ")"
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			title,
			o.Source,
			strconv.FormatFloat(o.RelevanceScore, 'f', 2, 64),
			o.PriorityLevel.String(),
			truncateString(orDash(o.FundingAmount), 30),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"#", "Title", "Source", "Score", "Priority", "Amount"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, o := range report.TopOpportunities {
		if o.GeographicFocus != "" {
			md.Details(truncateString(o.Title, 80), "Geographic focus: "+o.GeographicFocus)
		}
	}
	md.PlainText("")
}

// writeErrors writes the session error list.
func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, report *model.ScrapingReport) {
	if len(report.Errors) == 0 {
		return
	}

	md.H2("Errors")
	md.PlainText("")
	md.BulletList(report.Errors...)
	md.PlainText("")
}

// writeKeywordStats writes the taxonomy size per category.
func (w *MarkdownWriter) writeKeywordStats(md *markdown.Markdown, report *model.ScrapingReport) {
	if len(report.KeywordStats) == 0 {
		return
	}

	md.H2("Keyword Taxonomy")
	md.PlainText("")

	rows := make([][]string, 0, len(report.KeywordStats))
	for _, category := range keywordCategories(report.KeywordStats) {
		rows = append(rows, []string{category, strconv.Itoa(report.KeywordStats[category])})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Category", "Keywords"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [grantscan](https://github.com/nao1215/grantscan)*")
}
