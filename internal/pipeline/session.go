package pipeline

import (
	"github.com/nao1215/grantscan/internal/model"
)

// Session is the record set flowing through the post-collection steps.
// Only the goroutine running the Pipeline touches it.
type Session struct {
	// Records holds the surviving records. Steps replace or reorder it.
	Records []*model.Opportunity

	// Stats counts what each step removed.
	Stats Stats

	// Trace lists the steps that completed, in order.
	Trace []StepTrace
}

// Stats counts records through the pipeline.
type Stats struct {
	// Collected is the number of records handed to the pipeline.
	Collected int `json:"collected"`

	// Invalid counts records dropped by shape validation.
	Invalid int `json:"invalid"`

	// Duplicates counts records dropped as near-duplicates.
	Duplicates int `json:"duplicates"`

	// BelowThreshold counts records scoring under their threshold.
	BelowThreshold int `json:"below_threshold"`

	// Capped counts ranked records cut by the output cap.
	Capped int `json:"capped"`
}

// NewSession returns a session over the collected records.
// Nil records are discarded.
func NewSession(records []*model.Opportunity) *Session {
	kept := make([]*model.Opportunity, 0, len(records))
	for _, r := range records {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return &Session{
		Records: kept,
		Stats:   Stats{Collected: len(records)},
		Trace:   make([]StepTrace, 0),
	}
}
