package relevance

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/grantscan/internal/model"
)

// DefaultThreshold is the minimum score for a text to count as relevant.
const DefaultThreshold = 3.0

// maxContextLength bounds the context snippet reported per match.
const maxContextLength = 100

// Context modifiers. A match whose surrounding text mentions eligibility or
// applications is worth more; one near a negation is worth less. Both may
// apply to the same match.
var (
	boostTerms   = []string{"eligible", "application"}
	dampenTerms  = []string{"not eligible", "excluding"}
	boostFactor  = 1.2
	dampenFactor = 0.5
)

// Recommendation labels. Each recommendation string starts with one of them.
const (
	RecommendNone     = "No content to analyze"
	RecommendCaution  = "CAUTION"
	RecommendHighly   = "HIGHLY RECOMMENDED"
	RecommendGood     = "RECOMMENDED"
	RecommendReview   = "WORTH REVIEWING"
	RecommendModerate = "MODERATE INTEREST"
	RecommendNot      = "NOT RECOMMENDED"
)

// Recommendation tree thresholds on raw category scores.
const (
	strongGeographic = 2.0
	strongProgram    = 2.0
	goodGeographic   = 1.0
	goodProgram      = 1.5
	reviewScore      = 4.0
)

// KeywordMatch is one occurrence of a taxonomy keyword in the analyzed text.
type KeywordMatch struct {
	Keyword  string   `json:"keyword"`
	Category Category `json:"category"`
	Weight   float64  `json:"weight"`
	Context  string   `json:"context"`
}

// Result is the outcome of analyzing one text.
type Result struct {
	Score          float64              `json:"relevance_score"`
	IsRelevant     bool                 `json:"is_relevant"`
	CategoryScores map[Category]float64 `json:"category_scores"`
	Matches        []KeywordMatch       `json:"matches"`
	Recommendation string               `json:"recommendation"`
	Priority       model.PriorityLevel  `json:"priority_level"`
	ExclusionFlags []string             `json:"exclusion_flags"`
}

// Keywords returns the distinct matched keywords in match order.
func (r Result) Keywords() []string {
	seen := make(map[string]bool, len(r.Matches))
	out := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		if !seen[m.Keyword] {
			seen[m.Keyword] = true
			out = append(out, m.Keyword)
		}
	}
	return out
}

// MatchedCategories returns the categories with at least one match.
func (r Result) MatchedCategories() []Category {
	seen := make(map[Category]bool)
	out := make([]Category, 0)
	for _, m := range r.Matches {
		if !seen[m.Category] {
			seen[m.Category] = true
			out = append(out, m.Category)
		}
	}
	return out
}

// Scorer computes domain relevance of free text against a Taxonomy.
// A Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	taxonomy  *Taxonomy
	threshold float64
	keywords  []compiledKeyword
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithThreshold sets the relevance threshold. Default is DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(s *Scorer) {
		s.threshold = threshold
	}
}

// WithTaxonomy replaces the built-in taxonomy.
func WithTaxonomy(t *Taxonomy) Option {
	return func(s *Scorer) {
		if t != nil {
			s.taxonomy = t
		}
	}
}

// NewScorer creates a Scorer and precompiles every keyword pattern.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.taxonomy == nil {
		s.taxonomy = DefaultTaxonomy()
	}

	for _, d := range s.taxonomy.defs {
		for _, kw := range d.Keywords {
			s.keywords = append(s.keywords, compiledKeyword{
				keyword:  kw,
				category: d.Category,
				base:     s.taxonomy.baseWeight(d.Category, kw),
				pattern:  compileKeyword(kw),
			})
		}
	}

	return s
}

// Threshold returns the configured relevance threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Taxonomy returns the taxonomy the scorer matches against.
func (s *Scorer) Taxonomy() *Taxonomy {
	return s.taxonomy
}

// KeywordStatistics counts keywords per category plus "total".
func (s *Scorer) KeywordStatistics() map[string]int {
	return s.taxonomy.Statistics()
}

// Analyze scores a text. Title and description are emphasized by being
// counted twice. Empty input yields the empty result; Analyze never fails.
func (s *Scorer) Analyze(title, description, text string) Result {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(description) == "" && strings.TrimSpace(text) == "" {
		return s.emptyResult()
	}

	weighted := foldText(strings.Join([]string{title, title, description, description, text}, " "))

	rawScores := make(map[Category]float64, len(s.taxonomy.defs))
	for _, c := range s.taxonomy.Categories() {
		rawScores[c] = 0
	}

	matches := make([]KeywordMatch, 0)
	exclusions := make([]string, 0)
	for _, kw := range s.keywords {
		for _, loc := range findAll(kw.pattern, weighted) {
			ctx := contextWindow(weighted, loc[0], loc[1], contextRadius)
			weight := applyContext(kw.base, ctx)

			rawScores[kw.category] += weight
			matches = append(matches, KeywordMatch{
				Keyword:  kw.keyword,
				Category: kw.category,
				Weight:   round2(weight),
				Context:  truncateContext(ctx),
			})
			if kw.category == Exclusion {
				exclusions = append(exclusions, kw.keyword)
			}
		}
	}

	total := 0.0
	for c, score := range rawScores {
		total += score * s.taxonomy.Weight(c)
	}

	categoryScores := make(map[Category]float64, len(rawScores))
	for c, score := range rawScores {
		categoryScores[c] = round2(score)
	}

	return Result{
		Score:          round2(total),
		IsRelevant:     total >= s.threshold,
		CategoryScores: categoryScores,
		Matches:        matches,
		Recommendation: s.recommend(total, rawScores, exclusions),
		Priority:       model.PriorityFromScore(total),
		ExclusionFlags: exclusions,
	}
}

// recommend chooses the recommendation text. Exclusions take precedence
// over every positive signal.
func (s *Scorer) recommend(total float64, scores map[Category]float64, exclusions []string) string {
	if len(exclusions) > 0 {
		return fmt.Sprintf("%s: Contains exclusion criteria: %s", RecommendCaution, strings.Join(distinct(exclusions), ", "))
	}

	geo := scores[Geographic]
	program := scores[ProgramArea]

	switch {
	case geo >= strongGeographic && program >= strongProgram:
		return RecommendHighly + ": Strong geographic and program alignment."
	case geo >= goodGeographic && program >= goodProgram:
		return RecommendGood + ": Good alignment with program objectives."
	case total >= reviewScore:
		return RecommendReview + ": Decent relevance score, requires manual evaluation."
	case total >= s.threshold:
		return RecommendModerate + ": Some relevance, lower priority for review."
	default:
		return RecommendNot + ": Low relevance score for the target focus areas."
	}
}

func (s *Scorer) emptyResult() Result {
	scores := make(map[Category]float64, len(s.taxonomy.defs))
	for _, c := range s.taxonomy.Categories() {
		scores[c] = 0
	}
	return Result{
		Score:          0,
		IsRelevant:     false,
		CategoryScores: scores,
		Matches:        []KeywordMatch{},
		Recommendation: RecommendNone,
		Priority:       model.PriorityMinimal,
		ExclusionFlags: []string{},
	}
}

// Input is one text submitted to BatchAnalyze.
type Input struct {
	Title       string
	Description string

	// Text defaults to title and description when empty.
	Text string
}

// BatchResult pairs an Input with its Result.
type BatchResult struct {
	Input  Input
	Result Result
}

// BatchAnalyze scores every input and returns the results ordered by
// descending score. Inputs with equal scores keep their relative order.
func (s *Scorer) BatchAnalyze(inputs []Input) []BatchResult {
	results := make([]BatchResult, len(inputs))
	for i, in := range inputs {
		text := in.Text
		if text == "" {
			text = in.Title + " " + in.Description
		}
		results[i] = BatchResult{Input: in, Result: s.Analyze(in.Title, in.Description, text)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Result.Score > results[j].Result.Score
	})
	return results
}

// applyContext adjusts a base weight by the terms found around the match.
func applyContext(base float64, context string) float64 {
	weight := base
	for _, term := range boostTerms {
		if strings.Contains(context, term) {
			weight *= boostFactor
			break
		}
	}
	for _, term := range dampenTerms {
		if strings.Contains(context, term) {
			weight *= dampenFactor
			break
		}
	}
	return weight
}

func truncateContext(ctx string) string {
	if utf8.RuneCountInString(ctx) <= maxContextLength {
		return ctx
	}
	return model.TruncateRunes(ctx, maxContextLength) + "..."
}

func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
