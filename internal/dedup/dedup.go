package dedup

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/grantscan/internal/model"
)

// DefaultThreshold is the similarity above which two titles are duplicates.
const DefaultThreshold = 0.8

// Duplicate records a dropped opportunity and the retained one it matched.
type Duplicate struct {
	Dropped    *model.Opportunity
	Kept       *model.Opportunity
	Similarity float64
}

// Deduplicator drops near-duplicate opportunities.
type Deduplicator struct {
	threshold float64
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithThreshold sets the similarity threshold. A record is dropped only when
// its similarity to a retained record is strictly greater than threshold.
func WithThreshold(threshold float64) Option {
	return func(d *Deduplicator) {
		d.threshold = threshold
	}
}

// New creates a Deduplicator.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold returns the configured similarity threshold.
func (d *Deduplicator) Threshold() float64 {
	return d.threshold
}

// entry is a retained record with its title tokens computed once.
type entry struct {
	opp    *model.Opportunity
	tokens map[string]struct{}
}

// Deduplicate returns the retained records in input order, and the dropped
// ones paired with the record they duplicate. Nil records are skipped.
func (d *Deduplicator) Deduplicate(opps []*model.Opportunity) ([]*model.Opportunity, []Duplicate) {
	kept := make([]entry, 0, len(opps))
	dropped := make([]Duplicate, 0)

	for _, o := range opps {
		if o == nil {
			continue
		}
		tokens := tokenSet(o.Title)

		duplicate := false
		for _, k := range kept {
			if sim := jaccard(tokens, k.tokens); sim > d.threshold {
				dropped = append(dropped, Duplicate{Dropped: o, Kept: k.opp, Similarity: sim})
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, entry{opp: o, tokens: tokens})
		}
	}

	out := make([]*model.Opportunity, len(kept))
	for i, k := range kept {
		out[i] = k.opp
	}
	return out, dropped
}

// Similarity returns the word-level Jaccard similarity of two titles.
// Two empty titles are identical (1.0); an empty and a non-empty title share
// nothing (0.0). The result is symmetric.
func Similarity(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for w := range small {
		if _, ok := large[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// tokenSet splits a normalized title into its distinct words.
func tokenSet(title string) map[string]struct{} {
	words := strings.Fields(normalize(title))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// normalize composes and lower-cases a title so that "Perú" spelled with a
// combining accent and "PERÚ" produce the same tokens.
func normalize(title string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(title)))
}
