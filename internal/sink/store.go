package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nao1215/grantscan/internal/database"
)

// StoreSink persists records into the local database.
type StoreSink struct {
	store *database.Store
}

// NewStoreSink wraps an open store. The caller keeps ownership of it.
func NewStoreSink(store *database.Store) *StoreSink {
	return &StoreSink{store: store}
}

// Upsert writes r under r.Key().
func (s *StoreSink) Upsert(ctx context.Context, r Record) (Action, error) {
	fields, err := json.Marshal(r)
	if err != nil {
		return ActionCreated, fmt.Errorf("failed to encode record: %w", err)
	}

	created, err := s.store.UpsertRecord(ctx, &database.OpportunityRecord{
		Key:            r.Key(),
		Title:          r.GrantName,
		Source:         r.Source,
		RelevanceScore: r.RelevanceScore,
		Priority:       r.Priority,
		Fields:         fields,
	})
	if err != nil {
		return ActionCreated, err
	}
	if created {
		return ActionCreated, nil
	}
	return ActionUpdated, nil
}

// ReadAll returns every stored record, best score first.
func (s *StoreSink) ReadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.store.ReadAllRecords(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		var r Record
		if err := json.Unmarshal(row.Fields, &r); err != nil {
			return nil, fmt.Errorf("failed to decode record %q: %w", row.Key, err)
		}
		r.RelevanceScore = row.RelevanceScore
		records = append(records, r)
	}
	return records, nil
}
