package pipeline

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/nao1215/grantscan/internal/dedup"
	"github.com/nao1215/grantscan/internal/model"
	"github.com/nao1215/grantscan/internal/relevance"
)

// ValidateStep normalizes records and drops those failing shape checks.
// Dropped records are logged at debug level only; they are expected noise
// in scraped data, not session errors.
type ValidateStep struct {
	logger *slog.Logger
}

// NewValidateStep creates a validation step.
func NewValidateStep(logger *slog.Logger) *ValidateStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateStep{logger: logger}
}

// Name returns the step name.
func (s *ValidateStep) Name() string {
	return "validate"
}

// Do executes the validation step.
func (s *ValidateStep) Do(_ context.Context, session *Session) error {
	kept := session.Records[:0]
	for _, o := range session.Records {
		o.Normalize()
		if err := o.Validate(); err != nil {
			s.logger.Debug("record dropped",
				"source", o.Source,
				"title", o.Title,
				"reason", err,
			)
			session.Stats.Invalid++
			continue
		}
		kept = append(kept, o)
	}
	session.Records = kept
	return nil
}

// ScoreStep scores every record with the session scorer. Scores set by
// collectors are overwritten.
type ScoreStep struct {
	scorer *relevance.Scorer
}

// NewScoreStep creates a scoring step. A nil scorer uses the default taxonomy.
func NewScoreStep(scorer *relevance.Scorer) *ScoreStep {
	if scorer == nil {
		scorer = relevance.NewScorer()
	}
	return &ScoreStep{scorer: scorer}
}

// Name returns the step name.
func (s *ScoreStep) Name() string {
	return "score"
}

// Do executes the scoring step.
func (s *ScoreStep) Do(_ context.Context, session *Session) error {
	for _, o := range session.Records {
		result := s.scorer.Analyze(o.Title, o.Description, o.ScoringText())
		o.ApplyScore(result.Score, result.Priority, result.Keywords())
	}
	return nil
}

// DedupStep drops near-duplicate titles, keeping the first seen.
type DedupStep struct {
	deduplicator *dedup.Deduplicator
	logger       *slog.Logger
}

// NewDedupStep creates a deduplication step. A nil deduplicator uses the
// default similarity threshold.
func NewDedupStep(d *dedup.Deduplicator, logger *slog.Logger) *DedupStep {
	if d == nil {
		d = dedup.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupStep{deduplicator: d, logger: logger}
}

// Name returns the step name.
func (s *DedupStep) Name() string {
	return "dedup"
}

// Do executes the deduplication step.
func (s *DedupStep) Do(_ context.Context, session *Session) error {
	kept, dropped := s.deduplicator.Deduplicate(session.Records)
	for _, d := range dropped {
		s.logger.Debug("duplicate dropped",
			"title", d.Dropped.Title,
			"source", d.Dropped.Source,
			"kept_source", d.Kept.Source,
			"similarity", d.Similarity,
		)
	}
	session.Stats.Duplicates += len(dropped)
	session.Records = kept
	return nil
}

// FilterStep keeps records whose score reaches their source's threshold.
type FilterStep struct {
	threshold float64
	perSource map[string]float64
}

// NewFilterStep creates a threshold filter. perSource overrides the global
// threshold for the named sources and may be nil.
func NewFilterStep(threshold float64, perSource map[string]float64) *FilterStep {
	return &FilterStep{threshold: threshold, perSource: perSource}
}

// Name returns the step name.
func (s *FilterStep) Name() string {
	return "filter"
}

// Threshold returns the threshold applied to records of source.
func (s *FilterStep) Threshold(source string) float64 {
	if t, ok := s.perSource[source]; ok {
		return t
	}
	return s.threshold
}

// Do executes the filter step.
func (s *FilterStep) Do(_ context.Context, session *Session) error {
	kept := session.Records[:0]
	for _, o := range session.Records {
		if o.RelevanceScore >= s.Threshold(o.Source) {
			kept = append(kept, o)
			continue
		}
		session.Stats.BelowThreshold++
	}
	session.Records = kept
	return nil
}

// RankStep sorts records by relevance score, highest first. Equal scores
// keep their collection order.
type RankStep struct{}

// NewRankStep creates a ranking step.
func NewRankStep() *RankStep {
	return &RankStep{}
}

// Name returns the step name.
func (s *RankStep) Name() string {
	return "rank"
}

// Do executes the ranking step.
func (s *RankStep) Do(_ context.Context, session *Session) error {
	slices.SortStableFunc(session.Records, func(a, b *model.Opportunity) int {
		return cmp.Compare(b.RelevanceScore, a.RelevanceScore)
	})
	return nil
}

// CapStep truncates the ranked records. It must run after RankStep so the
// cut is deterministic.
type CapStep struct {
	limit int
}

// NewCapStep creates a cap step. A limit of 0 or less keeps every record.
func NewCapStep(limit int) *CapStep {
	return &CapStep{limit: limit}
}

// Name returns the step name.
func (s *CapStep) Name() string {
	return "cap"
}

// Do executes the cap step.
func (s *CapStep) Do(_ context.Context, session *Session) error {
	if s.limit <= 0 || len(session.Records) <= s.limit {
		return nil
	}
	session.Stats.Capped += len(session.Records) - s.limit
	clear(session.Records[s.limit:])
	session.Records = session.Records[:s.limit]
	return nil
}
