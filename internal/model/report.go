package model

import (
	"time"
)

// TopOpportunitiesLimit is the number of ranked records summarized in a report.
const TopOpportunitiesLimit = 10

// ScrapingReport summarizes one orchestration session.
// It is created once at the end of a session and treated as read-only
// afterwards: writers, sinks and the history store only read it.
type ScrapingReport struct {
	// Timestamp is the session start time. Report file names derive from it.
	Timestamp time.Time `json:"timestamp"`

	// TotalOpportunities counts every record returned by successful sources,
	// before validation, deduplication and filtering.
	TotalOpportunities int `json:"total_opportunities"`

	// RelevantOpportunities counts the records that survived the pipeline.
	RelevantOpportunities int `json:"relevant_opportunities"`

	// SourcesScraped lists the sources that completed, in schedule order.
	SourcesScraped []string `json:"sources_scraped"`

	// Errors holds one entry per failed source plus session-level failures.
	Errors []string `json:"errors"`

	// TopOpportunities are the highest ranked records, best first.
	TopOpportunities []OpportunitySummary `json:"top_opportunities"`

	// KeywordStats counts taxonomy keywords per category plus "total".
	KeywordStats map[string]int `json:"keyword_stats"`

	// ExecutionTime is the wall-clock session duration in seconds.
	ExecutionTime float64 `json:"execution_time"`

	// Sources holds the terminal status of every scheduled source.
	Sources []SourceStatus `json:"sources"`

	// Persisted and PersistFailures count sink upserts when persistence is on.
	Persisted       int `json:"persisted"`
	PersistFailures int `json:"persist_failures"`
}

// NewScrapingReport returns an empty report for a session started at
// timestamp. Collections are non-nil so encoders write [] and {} rather
// than null.
func NewScrapingReport(timestamp time.Time) *ScrapingReport {
	return &ScrapingReport{
		Timestamp:        timestamp,
		SourcesScraped:   make([]string, 0),
		Errors:           make([]string, 0),
		TopOpportunities: make([]OpportunitySummary, 0),
		KeywordStats:     make(map[string]int),
		Sources:          make([]SourceStatus, 0),
	}
}

// Duration returns ExecutionTime as a time.Duration.
func (r *ScrapingReport) Duration() time.Duration {
	return time.Duration(r.ExecutionTime * float64(time.Second))
}

// SuccessRate returns the fraction of scheduled sources that completed.
// A session with no sources reports 0.
func (r *ScrapingReport) SuccessRate() float64 {
	if len(r.Sources) == 0 {
		return 0
	}
	return float64(len(r.SourcesScraped)) / float64(len(r.Sources))
}

// FailedSources returns the names of sources that ended in FailedFinal.
func (r *ScrapingReport) FailedSources() []string {
	failed := make([]string, 0)
	for _, s := range r.Sources {
		if s.State == SourceFailedFinal {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// PriorityCounts tallies the top opportunities by priority level.
func (r *ScrapingReport) PriorityCounts() map[PriorityLevel]int {
	counts := make(map[PriorityLevel]int)
	for _, o := range r.TopOpportunities {
		counts[o.PriorityLevel]++
	}
	return counts
}

// OpportunitySummary is the subset of an Opportunity carried by a report.
type OpportunitySummary struct {
	Title           string        `json:"title"`
	Source          string        `json:"source"`
	FundingAmount   string        `json:"funding_amount,omitempty"`
	RelevanceScore  float64       `json:"relevance_score"`
	PriorityLevel   PriorityLevel `json:"priority_level"`
	GeographicFocus string        `json:"geographic_focus,omitempty"`
	ApplicationLink string        `json:"application_link,omitempty"`
}

// Summarize extracts the report view of an opportunity.
func Summarize(o *Opportunity) OpportunitySummary {
	return OpportunitySummary{
		Title:           o.Title,
		Source:          o.Source,
		FundingAmount:   o.FundingAmount,
		RelevanceScore:  o.RelevanceScore,
		PriorityLevel:   o.PriorityLevel,
		GeographicFocus: o.GeographicFocus,
		ApplicationLink: o.ApplicationLink,
	}
}

// TopSummaries summarizes the first n records of an already ranked slice.
func TopSummaries(ranked []*Opportunity, n int) []OpportunitySummary {
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]OpportunitySummary, 0, n)
	for _, o := range ranked[:n] {
		out = append(out, Summarize(o))
	}
	return out
}
