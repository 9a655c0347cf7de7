package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/nao1215/grantscan/internal/model"
)

// SessionIDLayout formats a session start time into its ID. It matches the
// timestamp part of report file names.
const SessionIDLayout = "20060102_150405"

// SessionID returns the ID of the session started at t.
func SessionID(t time.Time) string {
	return t.UTC().Format(SessionIDLayout)
}

// ReportMetadata summarizes a stored session report without decoding it.
type ReportMetadata struct {
	SessionID             string
	StartedAt             time.Time
	TotalOpportunities    int
	RelevantOpportunities int
	ErrorCount            int
	ExecutionTime         float64
}

// SaveReport stores a session report and returns its session ID. Saving a
// report with the same start second replaces the earlier one.
func (s *Store) SaveReport(ctx context.Context, report *model.ScrapingReport) (string, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to serialize report: %w", err)
	}

	id := SessionID(report.Timestamp)
	query, args, err := s.builder.
		Insert("session_reports").
		Columns("session_id", "started_at", "total_opportunities", "relevant_opportunities", "error_count", "execution_time", "report_json").
		Values(id, formatTimestamp(report.Timestamp), report.TotalOpportunities, report.RelevantOpportunities,
			len(report.Errors), report.ExecutionTime, string(reportJSON)).
		Suffix(`ON CONFLICT (session_id) DO UPDATE SET
			started_at = excluded.started_at,
			total_opportunities = excluded.total_opportunities,
			relevant_opportunities = excluded.relevant_opportunities,
			error_count = excluded.error_count,
			execution_time = excluded.execution_time,
			report_json = excluded.report_json`).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return id, nil
}

// ListReports returns the metadata of every stored report, newest first.
func (s *Store) ListReports(ctx context.Context) ([]ReportMetadata, error) {
	query, args, err := s.builder.
		Select("session_id", "started_at", "total_opportunities", "relevant_opportunities", "error_count", "execution_time").
		From("session_reports").
		OrderBy("started_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	results := make([]ReportMetadata, 0)
	for rows.Next() {
		var meta ReportMetadata
		var startedAt string
		if err := rows.Scan(&meta.SessionID, &startedAt, &meta.TotalOpportunities,
			&meta.RelevantOpportunities, &meta.ErrorCount, &meta.ExecutionTime); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.StartedAt = parseTimestamp(startedAt)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetReport returns the report with the given session ID, or ErrNotFound.
func (s *Store) GetReport(ctx context.Context, sessionID string) (*model.ScrapingReport, error) {
	query, args, err := s.builder.
		Select("report_json").
		From("session_reports").
		Where(sq.Eq{"session_id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var reportJSON string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.ScrapingReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// LatestReports returns up to n reports, newest first. Malformed rows are skipped.
func (s *Store) LatestReports(ctx context.Context, n int) ([]*model.ScrapingReport, error) {
	if n <= 0 {
		return []*model.ScrapingReport{}, nil
	}

	query, args, err := s.builder.
		Select("report_json").
		From("session_reports").
		OrderBy("started_at DESC").
		Limit(uint64(n)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*model.ScrapingReport, 0, n)
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.ScrapingReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}
