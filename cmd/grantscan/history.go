package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/grantscan/internal/database"
	"github.com/nao1215/grantscan/internal/model"
	"github.com/nao1215/grantscan/internal/report"
	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"
)

// Constants for trend direction.
const (
	trendGrowing   = "growing"
	trendShrinking = "shrinking"
	trendSteady    = "steady"
)

// errConflictingFormats mirrors the scan validation for history output.
var errConflictingFormats = errors.New("--json and --markdown cannot be used together")

// NewHistoryCmd creates the history command.
// Its subcommands read the session reports saved by 'grantscan scan'.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and compare saved scan sessions",
		Long: `History reads the session reports saved by 'grantscan scan'.

Subcommands:
- list:    list every saved session, newest first
- show:    print one session report (the latest by default)
- compare: show new, dropped and re-prioritized opportunities between two sessions

Examples:
  # List saved sessions
  grantscan history list

  # Print the latest session as Markdown
  grantscan history show --markdown

  # Compare the two latest sessions
  grantscan history compare

  # Compare two specific sessions
  grantscan history compare 20250301_120000 20250308_120000`,
	}

	cmd.PersistentFlags().String("store-dsn", "",
		"Database holding the history (postgres:// URL or SQLite directory)")
	cmd.PersistentFlags().String("db-dir", "",
		"Directory holding the SQLite database (default: XDG data directory)")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryCompareCmd())

	return cmd
}

// addFormatFlags adds the --json and --markdown output flags.
func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")
}

// getFormat reads the output format flags.
func getFormat(cmd *cobra.Command) (report.Format, error) {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return "", err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return "", err
	}

	switch {
	case jsonOutput && markdownOutput:
		return "", errConflictingFormats
	case jsonOutput:
		return report.FormatJSON, nil
	case markdownOutput:
		return report.FormatMarkdown, nil
	default:
		return report.FormatText, nil
	}
}

// openHistoryStore opens the store named by the history flags.
func openHistoryStore(ctx context.Context, cmd *cobra.Command) (*database.Store, error) {
	dsn, err := cmd.Flags().GetString("store-dsn")
	if err != nil {
		return nil, err
	}
	dir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, dsn, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// commandContext returns the command context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			store, err := openHistoryStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			return listSessions(ctx, cmd.OutOrStdout(), store)
		},
	}
}

// listSessions prints the metadata of every saved session.
func listSessions(ctx context.Context, out io.Writer, store *database.Store) error {
	sessions, err := store.ListReports(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "No saved sessions found in the database.")
		fmt.Fprintln(out, "\nUse 'grantscan scan' to run a session.")
		return nil
	}

	fmt.Fprintf(out, "Saved sessions (%d):\n\n", len(sessions))
	fmt.Fprintf(out, "  %-15s  %-19s  %9s  %8s  %6s  %8s\n",
		"Session", "Date", "Collected", "Relevant", "Errors", "Time")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 76))

	for _, meta := range sessions {
		fmt.Fprintf(out, "  %-15s  %-19s  %9d  %8d  %6d  %7.1fs\n",
			meta.SessionID,
			meta.StartedAt.Format("2006-01-02 15:04:05"),
			meta.TotalOpportunities,
			meta.RelevantOpportunities,
			meta.ErrorCount,
			meta.ExecutionTime,
		)
	}

	fmt.Fprintln(out, "\nUse 'grantscan history show <session>' to print a session report.")
	fmt.Fprintln(out, "Use 'grantscan history compare' to compare the latest two sessions.")

	return nil
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [session]",
		Short: "Print a saved session report (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := getFormat(cmd)
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			store, err := openHistoryStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			}
			r, err := loadSession(ctx, store, sessionID)
			if err != nil {
				return err
			}

			_, err = report.NewWriter(format, cmd.OutOrStdout()).Write(r)
			return err
		},
	}

	addFormatFlags(cmd)

	return cmd
}

// loadSession returns the session with the given ID, or the latest one when
// sessionID is empty.
func loadSession(ctx context.Context, store *database.Store, sessionID string) (*model.ScrapingReport, error) {
	if sessionID != "" {
		r, err := store.GetReport(ctx, sessionID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("session %s not found (use 'grantscan history list' to see saved sessions)", sessionID)
		}
		return r, err
	}

	latest, err := store.LatestReports(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest session: %w", err)
	}
	if len(latest) == 0 {
		return nil, errors.New("no saved sessions found (use 'grantscan scan' to run a session)")
	}
	return latest[0], nil
}

func newHistoryCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [previous-session current-session]",
		Short: "Compare two saved sessions (default: the latest two)",
		Long: `Compare shows the differences between the top opportunities of two sessions:
- New opportunities that were not ranked in the previous session
- Dropped opportunities that are no longer ranked
- Opportunities whose priority level changed

Opportunities are matched by application link, or by source and title when
a record has no link.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or two session IDs, got %d argument(s)", len(args))
			}
			return nil
		},
		RunE: runHistoryCompareCmd,
	}

	addFormatFlags(cmd)

	return cmd
}

// runHistoryCompareCmd executes the compare subcommand.
func runHistoryCompareCmd(cmd *cobra.Command, args []string) error {
	format, err := getFormat(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	store, err := openHistoryStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	var previous, current *model.ScrapingReport
	if len(args) == 2 {
		if previous, err = loadSession(ctx, store, args[0]); err != nil {
			return err
		}
		if current, err = loadSession(ctx, store, args[1]); err != nil {
			return err
		}
	} else {
		latest, err := store.LatestReports(ctx, 2)
		if err != nil {
			return fmt.Errorf("failed to load sessions: %w", err)
		}
		if len(latest) < 2 {
			return fmt.Errorf("at least 2 saved sessions are required for comparison (found %d)", len(latest))
		}
		current, previous = latest[0], latest[1]
	}

	comparison := compareReports(previous, current)
	out := cmd.OutOrStdout()

	switch format {
	case report.FormatJSON:
		return writeJSON(out, comparison)
	case report.FormatMarkdown:
		return outputComparisonMarkdown(out, comparison)
	default:
		outputComparisonText(out, comparison)
		return nil
	}
}

// ComparisonResult holds the result of comparing two session reports.
type ComparisonResult struct {
	// PreviousSession and CurrentSession summarize the compared sessions.
	PreviousSession SessionSnapshot `json:"previous_session"`
	CurrentSession  SessionSnapshot `json:"current_session"`

	// NewOpportunities are ranked in the current session only.
	NewOpportunities []model.OpportunitySummary `json:"new_opportunities,omitempty"`

	// DroppedOpportunities were ranked in the previous session only.
	DroppedOpportunities []model.OpportunitySummary `json:"dropped_opportunities,omitempty"`

	// PriorityChanges are ranked in both sessions with a different priority.
	PriorityChanges []PriorityChange `json:"priority_changes,omitempty"`

	// UnchangedCount is the number of opportunities ranked in both sessions
	// with the same priority.
	UnchangedCount int `json:"unchanged_count"`

	// Trend describes the change in relevant opportunities.
	Trend Trend `json:"trend"`
}

// SessionSnapshot contains the counts of one session for comparison display.
type SessionSnapshot struct {
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	Collected      int       `json:"collected"`
	Relevant       int       `json:"relevant"`
	SourcesScraped int       `json:"sources_scraped"`
	Errors         int       `json:"errors"`
}

// PriorityChange is an opportunity whose priority level changed.
type PriorityChange struct {
	Title            string              `json:"title"`
	Source           string              `json:"source"`
	PreviousPriority model.PriorityLevel `json:"previous_priority"`
	CurrentPriority  model.PriorityLevel `json:"current_priority"`
	PreviousScore    float64             `json:"previous_score"`
	CurrentScore     float64             `json:"current_score"`
}

// Trend describes the change between two sessions.
type Trend struct {
	// Direction is "growing", "shrinking", or "steady".
	Direction string `json:"direction"`

	CollectedDelta int `json:"collected_delta"`
	RelevantDelta  int `json:"relevant_delta"`
	ErrorDelta     int `json:"error_delta"`
}

// snapshot extracts the comparison counts of a report.
func snapshot(r *model.ScrapingReport) SessionSnapshot {
	return SessionSnapshot{
		SessionID:      database.SessionID(r.Timestamp),
		StartedAt:      r.Timestamp,
		Collected:      r.TotalOpportunities,
		Relevant:       r.RelevantOpportunities,
		SourcesScraped: len(r.SourcesScraped),
		Errors:         len(r.Errors),
	}
}

// compareReports compares the top opportunities of two session reports.
// Results keep the rank order of the session they come from.
func compareReports(previous, current *model.ScrapingReport) *ComparisonResult {
	result := &ComparisonResult{
		PreviousSession: snapshot(previous),
		CurrentSession:  snapshot(current),
	}

	previousByKey := make(map[string]model.OpportunitySummary, len(previous.TopOpportunities))
	for _, o := range previous.TopOpportunities {
		previousByKey[opportunityKey(o)] = o
	}
	currentKeys := make(map[string]struct{}, len(current.TopOpportunities))

	for _, o := range current.TopOpportunities {
		key := opportunityKey(o)
		currentKeys[key] = struct{}{}

		before, ok := previousByKey[key]
		switch {
		case !ok:
			result.NewOpportunities = append(result.NewOpportunities, o)
		case before.PriorityLevel != o.PriorityLevel:
			result.PriorityChanges = append(result.PriorityChanges, PriorityChange{
				Title:            o.Title,
				Source:           o.Source,
				PreviousPriority: before.PriorityLevel,
				CurrentPriority:  o.PriorityLevel,
				PreviousScore:    before.RelevanceScore,
				CurrentScore:     o.RelevanceScore,
			})
		default:
			result.UnchangedCount++
		}
	}

	for _, o := range previous.TopOpportunities {
		if _, ok := currentKeys[opportunityKey(o)]; !ok {
			result.DroppedOpportunities = append(result.DroppedOpportunities, o)
		}
	}

	result.Trend = calculateTrend(result.PreviousSession, result.CurrentSession)

	return result
}

// opportunityKey identifies an opportunity across sessions.
func opportunityKey(o model.OpportunitySummary) string {
	if o.ApplicationLink != "" {
		return strings.ToLower(strings.TrimSpace(o.ApplicationLink))
	}
	return o.Source + "|" + model.NormalizeTitle(o.Title)
}

// calculateTrend calculates the change between two sessions.
func calculateTrend(previous, current SessionSnapshot) Trend {
	trend := Trend{
		CollectedDelta: current.Collected - previous.Collected,
		RelevantDelta:  current.Relevant - previous.Relevant,
		ErrorDelta:     current.Errors - previous.Errors,
	}

	switch {
	case trend.RelevantDelta > 0:
		trend.Direction = trendGrowing
	case trend.RelevantDelta < 0:
		trend.Direction = trendShrinking
	default:
		trend.Direction = trendSteady
	}

	return trend
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)

	md.H1("Session Comparison")
	md.PlainText("")
	md.PlainTextf("**Trend:** %s", formatTrend(result.Trend.Direction))
	md.PlainText("")

	prev, cur := result.PreviousSession, result.CurrentSession
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Session", prev.SessionID, cur.SessionID, "-"},
			{"Collected", strconv.Itoa(prev.Collected), strconv.Itoa(cur.Collected), formatDelta(result.Trend.CollectedDelta)},
			{"Relevant", strconv.Itoa(prev.Relevant), strconv.Itoa(cur.Relevant), formatDelta(result.Trend.RelevantDelta)},
			{"Errors", strconv.Itoa(prev.Errors), strconv.Itoa(cur.Errors), formatDelta(result.Trend.ErrorDelta)},
		},
	})
	md.PlainText("")

	if len(result.NewOpportunities) > 0 {
		md.H2(fmt.Sprintf("New Opportunities (%d)", len(result.NewOpportunities)))
		md.PlainText("")
		md.BulletList(summaryLines(result.NewOpportunities)...)
		md.PlainText("")
	}

	if len(result.DroppedOpportunities) > 0 {
		md.H2(fmt.Sprintf("Dropped Opportunities (%d)", len(result.DroppedOpportunities)))
		md.PlainText("")
		md.BulletList(summaryLines(result.DroppedOpportunities)...)
		md.PlainText("")
	}

	if len(result.PriorityChanges) > 0 {
		md.H2(fmt.Sprintf("Priority Changes (%d)", len(result.PriorityChanges)))
		md.PlainText("")
		rows := make([][]string, len(result.PriorityChanges))
		for i, c := range result.PriorityChanges {
			rows[i] = []string{
				model.TruncateRunes(c.Title, 60),
				c.Source,
				c.PreviousPriority.String(),
				c.CurrentPriority.String(),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Title", "Source", "Previous", "Current"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d opportunities unchanged*", result.UnchangedCount)
	}

	return md.Build()
}

// summaryLines formats opportunities as list items.
func summaryLines(opps []model.OpportunitySummary) []string {
	lines := make([]string, len(opps))
	for i, o := range opps {
		lines[i] = fmt.Sprintf("**[%s]** %s (%s, %.2f)", o.PriorityLevel, o.Title, o.Source, o.RelevanceScore)
	}
	return lines
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) {
	fmt.Fprintln(out, "Session Comparison")
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nTrend: %s\n", formatTrend(result.Trend.Direction))

	fmt.Fprintf(out, "\nPrevious session: %s (%s)\n",
		result.PreviousSession.SessionID, result.PreviousSession.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Current session:  %s (%s)\n",
		result.CurrentSession.SessionID, result.CurrentSession.StartedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", "Collected",
		result.PreviousSession.Collected, result.CurrentSession.Collected,
		formatDelta(result.Trend.CollectedDelta))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", "Relevant",
		result.PreviousSession.Relevant, result.CurrentSession.Relevant,
		formatDelta(result.Trend.RelevantDelta))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", "Errors",
		result.PreviousSession.Errors, result.CurrentSession.Errors,
		formatDelta(result.Trend.ErrorDelta))

	if len(result.NewOpportunities) > 0 {
		fmt.Fprintf(out, "\nNew Opportunities (%d):\n", len(result.NewOpportunities))
		for _, o := range result.NewOpportunities {
			fmt.Fprintf(out, "  [+] [%s] %s (%s)\n", o.PriorityLevel, o.Title, o.Source)
		}
	}

	if len(result.DroppedOpportunities) > 0 {
		fmt.Fprintf(out, "\nDropped Opportunities (%d):\n", len(result.DroppedOpportunities))
		for _, o := range result.DroppedOpportunities {
			fmt.Fprintf(out, "  [-] [%s] %s (%s)\n", o.PriorityLevel, o.Title, o.Source)
		}
	}

	if len(result.PriorityChanges) > 0 {
		fmt.Fprintf(out, "\nPriority Changes (%d):\n", len(result.PriorityChanges))
		for _, c := range result.PriorityChanges {
			fmt.Fprintf(out, "  [~] %s: %s -> %s (%s)\n", c.Title, c.PreviousPriority, c.CurrentPriority, c.Source)
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d opportunities\n", result.UnchangedCount)
	}
}

// formatTrend formats the trend direction for display.
func formatTrend(direction string) string {
	switch direction {
	case trendGrowing:
		return "GROWING (more relevant opportunities)"
	case trendShrinking:
		return "SHRINKING (fewer relevant opportunities)"
	default:
		return "STEADY"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}
