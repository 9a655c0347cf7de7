package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// OpportunityRecord is a persisted opportunity.
type OpportunityRecord struct {
	// Key is the upsert key: the application link, or the normalized title.
	Key string

	Title          string
	Source         string
	RelevanceScore float64
	Priority       string

	// Fields is the full record as JSON, as written by the caller.
	Fields json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertRecord inserts rec or updates the row with the same key.
// It reports whether a new row was created. created_at survives updates.
func (s *Store) UpsertRecord(ctx context.Context, rec *OpportunityRecord) (bool, error) {
	if rec.Key == "" {
		return false, errors.New("record has no key")
	}
	fields := rec.Fields
	if len(fields) == 0 {
		fields = json.RawMessage("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	recordKey := RecordKey(rec.Key)

	query, args, err := s.builder.
		Select("1").
		From("opportunities").
		Where(sq.Eq{"record_key": recordKey}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var one int
	created := false
	switch err := tx.QueryRowContext(ctx, query, args...).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return false, fmt.Errorf("failed to look up record: %w", err)
	}

	now := formatTimestamp(s.now())
	query, args, err = s.builder.
		Insert("opportunities").
		Columns("record_key", "upsert_key", "title", "source", "relevance_score", "priority", "fields", "created_at", "updated_at").
		Values(recordKey, rec.Key, rec.Title, rec.Source, rec.RelevanceScore, rec.Priority, string(fields), now, now).
		Suffix(`ON CONFLICT (record_key) DO UPDATE SET
			upsert_key = excluded.upsert_key,
			title = excluded.title,
			source = excluded.source,
			relevance_score = excluded.relevance_score,
			priority = excluded.priority,
			fields = excluded.fields,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("failed to upsert record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return created, nil
}

// ReadAllRecords returns every stored record, best score first.
func (s *Store) ReadAllRecords(ctx context.Context) ([]OpportunityRecord, error) {
	query, args, err := s.builder.
		Select("upsert_key", "title", "source", "relevance_score", "priority", "fields", "created_at", "updated_at").
		From("opportunities").
		OrderBy("relevance_score DESC", "upsert_key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]OpportunityRecord, 0)
	for rows.Next() {
		var rec OpportunityRecord
		var fields, createdAt, updatedAt string
		if err := rows.Scan(&rec.Key, &rec.Title, &rec.Source, &rec.RelevanceScore, &rec.Priority, &fields, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Fields = json.RawMessage(fields)
		rec.CreatedAt = parseTimestamp(createdAt)
		rec.UpdatedAt = parseTimestamp(updatedAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountRecords returns the number of stored records.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	query, args, err := s.builder.Select("COUNT(*)").From("opportunities").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}
