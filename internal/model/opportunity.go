package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Opportunity length limits.
const (
	// MinTitleLength is the minimum number of characters a title must have.
	MinTitleLength = 10

	// MaxTitleLength is the maximum number of characters a title may have.
	MaxTitleLength = 300

	// MaxDescriptionLength bounds descriptions kept on a record.
	MaxDescriptionLength = 2000

	// MaxKeywordMatches bounds the keyword list attached by the scorer.
	MaxKeywordMatches = 20
)

// Opportunity is a normalized funding-opportunity record.
// Collectors map their source-specific shape into this type; every field
// downstream of the collector boundary is read from here.
//
// RelevanceScore, PriorityLevel and KeywordMatches are derived fields. They
// are unexported-by-convention: only ApplyScore writes them.
type Opportunity struct {
	// Title is the human readable name of the opportunity (10-300 characters).
	Title string `json:"title"`

	// Organization is the funder or administering body.
	Organization string `json:"organization,omitempty"`

	// Description is truncated to MaxDescriptionLength characters.
	Description string `json:"description,omitempty"`

	// FundingAmount is free text; units vary across sources.
	FundingAmount string `json:"funding_amount,omitempty"`

	// Deadline is date-like text exactly as published.
	Deadline string `json:"deadline,omitempty"`

	// AnnouncementDate is when the collector first saw the record, if known.
	AnnouncementDate *time.Time `json:"announcement_date,omitempty"`

	GeographicFocus     string `json:"geographic_focus,omitempty"`
	Sector              string `json:"sector,omitempty"`
	EligibilityCriteria string `json:"eligibility_criteria,omitempty"`

	// Status is the publication state of the opportunity.
	Status Status `json:"status"`

	// ApplicationLink is empty or an absolute http(s) URL.
	ApplicationLink string `json:"application_link,omitempty"`

	// SourceURL is the page the record was collected from.
	SourceURL string `json:"source_url,omitempty"`

	// Source identifies the collector that produced the record.
	Source string `json:"source"`

	ProgramType string `json:"program_type,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`

	RelevanceScore float64       `json:"relevance_score"`
	PriorityLevel  PriorityLevel `json:"priority_level"`
	KeywordMatches []string      `json:"keyword_matches,omitempty"`
}

// ApplyScore stores the scorer output on the record.
// The keyword list is copied and bounded to MaxKeywordMatches entries.
func (o *Opportunity) ApplyScore(score float64, priority PriorityLevel, keywords []string) {
	o.RelevanceScore = score
	o.PriorityLevel = priority

	n := len(keywords)
	if n > MaxKeywordMatches {
		n = MaxKeywordMatches
	}
	o.KeywordMatches = make([]string, n)
	copy(o.KeywordMatches, keywords[:n])
}

// ScoringText returns the body text used for relevance scoring.
// Title and description are passed to the scorer separately.
func (o *Opportunity) ScoringText() string {
	parts := []string{
		o.Title,
		o.Description,
		o.Organization,
		o.Sector,
		o.ProgramType,
		o.GeographicFocus,
		o.EligibilityCriteria,
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// UpsertKey returns the identity used by external stores: the application
// link when present, otherwise the normalized title.
func (o *Opportunity) UpsertKey() string {
	if link := strings.TrimSpace(o.ApplicationLink); link != "" {
		return link
	}
	return NormalizeTitle(o.Title)
}

// Normalize trims text fields, collapses whitespace in the title and
// bounds the description. Collectors call it before returning records.
func (o *Opportunity) Normalize() {
	o.Title = strings.Join(strings.Fields(o.Title), " ")
	o.Organization = strings.TrimSpace(o.Organization)
	o.Description = TruncateRunes(strings.TrimSpace(o.Description), MaxDescriptionLength)
	o.FundingAmount = strings.TrimSpace(o.FundingAmount)
	o.Deadline = strings.TrimSpace(o.Deadline)
	o.ApplicationLink = strings.TrimSpace(o.ApplicationLink)
	o.SourceURL = strings.TrimSpace(o.SourceURL)
	if o.Status == "" {
		o.Status = StatusUnknown
	}
}

// Validate checks the shape invariants of a record.
// It returns a *ValidationError describing the first violated rule.
func (o *Opportunity) Validate() error {
	title := strings.TrimSpace(o.Title)
	if title == "" {
		return &ValidationError{Field: "title", Reason: "empty"}
	}

	n := utf8.RuneCountInString(title)
	if n < MinTitleLength {
		return &ValidationError{Field: "title", Reason: "shorter than 10 characters"}
	}
	if n > MaxTitleLength {
		return &ValidationError{Field: "title", Reason: "longer than 300 characters"}
	}

	if o.ApplicationLink != "" && !HasURLScheme(o.ApplicationLink) {
		return &ValidationError{Field: "application_link", Reason: "missing http(s) scheme"}
	}

	return nil
}

// NormalizeTitle lower-cases a title and collapses its whitespace.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// HasURLScheme reports whether s begins with http:// or https://.
func HasURLScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// TruncateRunes shortens s to at most limit characters.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	i := 0
	for pos := range s {
		if i == limit {
			return s[:pos]
		}
		i++
	}
	return s
}
