package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/grantscan/internal/database"
	"github.com/nao1215/grantscan/internal/model"
)

var (
	previousSessionTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	currentSessionTime  = time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
)

func previousReport() *model.ScrapingReport {
	return &model.ScrapingReport{
		Timestamp:             previousSessionTime,
		TotalOpportunities:    10,
		RelevantOpportunities: 3,
		SourcesScraped:        []string{"grants_gov", "peru_programs"},
		Errors:                []string{"idb failed after 3 attempts: timeout"},
		TopOpportunities: []model.OpportunitySummary{
			{Title: "Rural Water Access Fund", Source: "grants_gov", RelevanceScore: 7.5,
				PriorityLevel: model.PriorityHigh, ApplicationLink: "https://example.org/a"},
			{Title: "Andean Education Grant", Source: "grants_gov", RelevanceScore: 5.0,
				PriorityLevel: model.PriorityMedium, ApplicationLink: "https://example.org/b"},
			{Title: "Community Health Program", Source: "peru_programs", RelevanceScore: 3.5,
				PriorityLevel: model.PriorityLow},
		},
		KeywordStats:  map[string]int{"total": 12},
		ExecutionTime: 12.5,
	}
}

func currentReport() *model.ScrapingReport {
	return &model.ScrapingReport{
		Timestamp:             currentSessionTime,
		TotalOpportunities:    14,
		RelevantOpportunities: 5,
		SourcesScraped:        []string{"grants_gov", "peru_programs", "idb"},
		TopOpportunities: []model.OpportunitySummary{
			{Title: "Rural Water Access Fund", Source: "grants_gov", RelevanceScore: 7.5,
				PriorityLevel: model.PriorityHigh, ApplicationLink: "https://EXAMPLE.org/a"},
			{Title: "Andean Education Grant", Source: "grants_gov", RelevanceScore: 9.0,
				PriorityLevel: model.PriorityCritical, ApplicationLink: "https://example.org/b"},
			{Title: "Indigenous Women Entrepreneurs", Source: "idb", RelevanceScore: 6.0,
				PriorityLevel: model.PriorityHigh, ApplicationLink: "https://example.org/d"},
		},
		KeywordStats:  map[string]int{"total": 20},
		ExecutionTime: 10,
	}
}

// seedHistory saves the given reports into a fresh SQLite database and
// returns its directory.
func seedHistory(t *testing.T, reports ...*model.ScrapingReport) string {
	t.Helper()

	dir := t.TempDir()
	store, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	for _, r := range reports {
		if _, err := store.SaveReport(context.Background(), r); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
	}
	return dir
}

// executeHistory runs a history subcommand against the database in dbDir.
func executeHistory(t *testing.T, dbDir string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--db-dir", dbDir))

	err := cmd.Execute()
	return out.String(), err
}

func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	if cmd.Use != "history" {
		t.Errorf("expected use 'history', got %q", cmd.Use)
	}

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"list", "show", "compare"} {
		if !names[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}

	for _, name := range []string{"store-dsn", "db-dir"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag %q", name)
		}
	}
}

func TestHistoryList(t *testing.T) {
	t.Parallel()

	t.Run("empty database", func(t *testing.T) {
		t.Parallel()

		out, err := executeHistory(t, seedHistory(t), "list")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No saved sessions found") {
			t.Errorf("expected empty notice, got:\n%s", out)
		}
	})

	t.Run("newest first", func(t *testing.T) {
		t.Parallel()

		out, err := executeHistory(t, seedHistory(t, previousReport(), currentReport()), "list")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Saved sessions (2):") {
			t.Errorf("expected session count, got:\n%s", out)
		}

		newer := strings.Index(out, "20250308_120000")
		older := strings.Index(out, "20250301_120000")
		if newer < 0 || older < 0 {
			t.Fatalf("expected both session IDs, got:\n%s", out)
		}
		if newer > older {
			t.Error("expected the newest session first")
		}
	})

	t.Run("rejects arguments", func(t *testing.T) {
		t.Parallel()

		if _, err := executeHistory(t, seedHistory(t), "list", "extra"); err == nil {
			t.Error("expected an error for extra arguments")
		}
	})
}

func TestHistoryShow(t *testing.T) {
	t.Parallel()

	// Subtests share one SQLite file and run sequentially.
	dbDir := seedHistory(t, previousReport(), currentReport())

	t.Run("latest session by default", func(t *testing.T) {
		out, err := executeHistory(t, dbDir, "show")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "FUNDING OPPORTUNITY REPORT") {
			t.Errorf("expected the console summary, got:\n%s", out)
		}
		if !strings.Contains(out, "Indigenous Women Entrepreneurs") {
			t.Errorf("expected the latest session, got:\n%s", out)
		}
	})

	t.Run("session by id as json", func(t *testing.T) {
		out, err := executeHistory(t, dbDir, "show", "20250301_120000", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var r model.ScrapingReport
		if err := json.Unmarshal([]byte(out), &r); err != nil {
			t.Fatalf("failed to decode output: %v\n%s", err, out)
		}
		if !r.Timestamp.Equal(previousSessionTime) {
			t.Errorf("Timestamp = %v, want %v", r.Timestamp, previousSessionTime)
		}
		if len(r.TopOpportunities) != 3 {
			t.Errorf("expected 3 top opportunities, got %d", len(r.TopOpportunities))
		}
	})

	t.Run("markdown", func(t *testing.T) {
		out, err := executeHistory(t, dbDir, "show", "--markdown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "# ") {
			t.Errorf("expected a markdown heading, got:\n%s", out)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := executeHistory(t, dbDir, "show", "19990101_000000")
		if err == nil || !strings.Contains(err.Error(), "session 19990101_000000 not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("empty database", func(t *testing.T) {
		_, err := executeHistory(t, seedHistory(t), "show")
		if err == nil || !strings.Contains(err.Error(), "no saved sessions found") {
			t.Errorf("expected no sessions error, got %v", err)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		_, err := executeHistory(t, dbDir, "show", "--json", "--markdown")
		if !errors.Is(err, errConflictingFormats) {
			t.Errorf("expected errConflictingFormats, got %v", err)
		}
	})
}

func TestHistoryCompare(t *testing.T) {
	t.Parallel()

	// Subtests share one SQLite file and run sequentially.
	dbDir := seedHistory(t, previousReport(), currentReport())

	t.Run("requires two sessions", func(t *testing.T) {
		_, err := executeHistory(t, seedHistory(t, currentReport()), "compare")
		if err == nil || !strings.Contains(err.Error(), "at least 2 saved sessions") {
			t.Errorf("expected too few sessions error, got %v", err)
		}
	})

	t.Run("rejects a single argument", func(t *testing.T) {
		_, err := executeHistory(t, dbDir, "compare", "20250301_120000")
		if err == nil || !strings.Contains(err.Error(), "expected no arguments or two session IDs") {
			t.Errorf("expected argument error, got %v", err)
		}
	})

	t.Run("text output", func(t *testing.T) {
		out, err := executeHistory(t, dbDir, "compare")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, want := range []string{
			"Trend: GROWING",
			"Previous session: 20250301_120000",
			"Current session:  20250308_120000",
			"[+] [HIGH] Indigenous Women Entrepreneurs (idb)",
			"[-] [LOW] Community Health Program (peru_programs)",
			"[~] Andean Education Grant: MEDIUM -> CRITICAL (grants_gov)",
			"Unchanged: 1 opportunities",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q\n%s", want, out)
			}
		}
	})

	t.Run("explicit sessions as json", func(t *testing.T) {
		out, err := executeHistory(t, dbDir, "compare", "20250301_120000", "20250308_120000", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var result ComparisonResult
		if err := json.Unmarshal([]byte(out), &result); err != nil {
			t.Fatalf("failed to decode output: %v\n%s", err, out)
		}
		if result.PreviousSession.SessionID != "20250301_120000" {
			t.Errorf("PreviousSession = %q", result.PreviousSession.SessionID)
		}
		if len(result.NewOpportunities) != 1 || len(result.DroppedOpportunities) != 1 {
			t.Errorf("unexpected new/dropped counts: %d/%d",
				len(result.NewOpportunities), len(result.DroppedOpportunities))
		}
		if result.Trend.RelevantDelta != 2 || result.Trend.Direction != trendGrowing {
			t.Errorf("unexpected trend: %+v", result.Trend)
		}
	})

	t.Run("markdown output", func(t *testing.T) {
		out, err := executeHistory(t, dbDir, "compare", "--markdown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"# Session Comparison", "## New Opportunities (1)", "## Priority Changes (1)"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q\n%s", want, out)
			}
		}
	})
}

func TestCompareReports(t *testing.T) {
	t.Parallel()

	result := compareReports(previousReport(), currentReport())

	if len(result.NewOpportunities) != 1 || result.NewOpportunities[0].Title != "Indigenous Women Entrepreneurs" {
		t.Errorf("unexpected new opportunities: %+v", result.NewOpportunities)
	}
	if len(result.DroppedOpportunities) != 1 || result.DroppedOpportunities[0].Title != "Community Health Program" {
		t.Errorf("unexpected dropped opportunities: %+v", result.DroppedOpportunities)
	}
	if len(result.PriorityChanges) != 1 {
		t.Fatalf("expected one priority change, got %+v", result.PriorityChanges)
	}

	change := result.PriorityChanges[0]
	if change.PreviousPriority != model.PriorityMedium || change.CurrentPriority != model.PriorityCritical {
		t.Errorf("unexpected priority change: %+v", change)
	}
	if change.PreviousScore != 5.0 || change.CurrentScore != 9.0 {
		t.Errorf("unexpected scores: %+v", change)
	}

	// The link match ignores case, so the first record is unchanged.
	if result.UnchangedCount != 1 {
		t.Errorf("UnchangedCount = %d, want 1", result.UnchangedCount)
	}

	if result.CurrentSession.SourcesScraped != 3 || result.PreviousSession.Errors != 1 {
		t.Errorf("unexpected snapshots: %+v %+v", result.PreviousSession, result.CurrentSession)
	}

	want := Trend{Direction: trendGrowing, CollectedDelta: 4, RelevantDelta: 2, ErrorDelta: -1}
	if result.Trend != want {
		t.Errorf("Trend = %+v, want %+v", result.Trend, want)
	}
}

func TestCompareReportsTitleKey(t *testing.T) {
	t.Parallel()

	previous := &model.ScrapingReport{
		Timestamp: previousSessionTime,
		TopOpportunities: []model.OpportunitySummary{
			{Title: "Community Health Program", Source: "peru_programs", PriorityLevel: model.PriorityLow},
		},
	}
	current := &model.ScrapingReport{
		Timestamp: currentSessionTime,
		TopOpportunities: []model.OpportunitySummary{
			{Title: "Community Health Program", Source: "peru_programs", PriorityLevel: model.PriorityLow},
			{Title: "Community Health Program", Source: "grants_gov", PriorityLevel: model.PriorityLow},
		},
	}

	result := compareReports(previous, current)
	if result.UnchangedCount != 1 {
		t.Errorf("UnchangedCount = %d, want 1", result.UnchangedCount)
	}
	if len(result.NewOpportunities) != 1 || result.NewOpportunities[0].Source != "grants_gov" {
		t.Errorf("expected the same title from another source to be new, got %+v", result.NewOpportunities)
	}
	if result.Trend.Direction != trendSteady {
		t.Errorf("Direction = %q, want %q", result.Trend.Direction, trendSteady)
	}
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  string
	}{
		{5, "+5"},
		{0, "0"},
		{-3, "-3"},
	}

	for _, tt := range tests {
		if got := formatDelta(tt.delta); got != tt.want {
			t.Errorf("formatDelta(%d) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}

func TestFormatTrend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		direction string
		want      string
	}{
		{trendGrowing, "GROWING (more relevant opportunities)"},
		{trendShrinking, "SHRINKING (fewer relevant opportunities)"},
		{trendSteady, "STEADY"},
	}

	for _, tt := range tests {
		if got := formatTrend(tt.direction); got != tt.want {
			t.Errorf("formatTrend(%q) = %q, want %q", tt.direction, got, tt.want)
		}
	}
}
