package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/grantscan/internal/model"
)

// Action tells what an upsert did.
type Action int

const (
	// ActionCreated means no record had the key and one was inserted.
	ActionCreated Action = iota

	// ActionUpdated means an existing record was overwritten.
	ActionUpdated
)

// String returns the action name.
func (a Action) String() string {
	if a == ActionUpdated {
		return "updated"
	}
	return "created"
}

// Sink is a persistent store of records.
type Sink interface {
	// Upsert updates the record with r.Key() if one exists, otherwise
	// creates it.
	Upsert(ctx context.Context, r Record) (Action, error)

	// ReadAll returns every stored record.
	ReadAll(ctx context.Context) ([]Record, error)
}

// Error is the failure to persist one record.
type Error struct {
	// Key is the upsert key of the record.
	Key string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("persist %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Result counts the outcome of Persist.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`

	// Errors holds one *Error per failed record.
	Errors []error `json:"-"`
}

// Persisted returns the number of records written.
func (r Result) Persisted() int {
	return r.Created + r.Updated
}

// Persist upserts every opportunity into s. A failing record is logged and
// counted; the remaining records are still attempted. Persist stops early
// only when ctx ends, counting the records left as failed.
func Persist(ctx context.Context, s Sink, opps []*model.Opportunity, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}

	result := Result{Errors: make([]error, 0)}
	for i, o := range opps {
		record := NewRecord(o)
		if err := ctx.Err(); err != nil {
			for _, rest := range opps[i:] {
				result.Errors = append(result.Errors, &Error{Key: NewRecord(rest).Key(), Err: err})
			}
			result.Failed += len(opps) - i
			logger.Warn("persistence interrupted", "remaining", len(opps)-i, "error", err)
			break
		}

		action, err := s.Upsert(ctx, record)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, &Error{Key: record.Key(), Err: err})
			logger.Error("failed to persist record", "title", o.Title, "key", record.Key(), "error", err)
			continue
		}

		switch action {
		case ActionCreated:
			result.Created++
		case ActionUpdated:
			result.Updated++
		}
		logger.Debug("record persisted", "title", o.Title, "action", action)
	}

	logger.Info("persistence complete",
		"created", result.Created,
		"updated", result.Updated,
		"failed", result.Failed,
	)
	return result
}
