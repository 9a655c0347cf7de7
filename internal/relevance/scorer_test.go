package relevance

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nao1215/grantscan/internal/model"
)

// smallTaxonomy returns a taxonomy whose scores are easy to compute by hand.
func smallTaxonomy(t *testing.T) *Taxonomy {
	t.Helper()

	tax, err := NewTaxonomy(
		CategoryDef{
			Category: Geographic,
			Weight:   3.0,
			Keywords: []string{"Peru", "Perú"},
			Anchors:  []Anchor{{Term: "peru", Weight: 2.0}, {Term: "perú", Weight: 2.0}},
		},
		CategoryDef{
			Category: ProgramArea,
			Weight:   2.5,
			Keywords: []string{"rural health"},
		},
		CategoryDef{
			Category: Exclusion,
			Weight:   -5.0,
			Keywords: []string{"urban only"},
		},
	)
	if err != nil {
		t.Fatalf("failed to build taxonomy: %v", err)
	}
	return tax
}

func TestAnalyzeEmptyInput(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	for _, in := range [][3]string{{"", "", ""}, {"  ", "\n", "\t"}} {
		got := s.Analyze(in[0], in[1], in[2])
		if got.Score != 0 || got.IsRelevant {
			t.Errorf("expected zero irrelevant result, got %+v", got)
		}
		if got.Recommendation != RecommendNone {
			t.Errorf("unexpected recommendation %q", got.Recommendation)
		}
		if got.Priority != model.PriorityMinimal {
			t.Errorf("expected MINIMAL, got %s", got.Priority)
		}
		if len(got.Matches) != 0 || len(got.ExclusionFlags) != 0 {
			t.Errorf("expected no matches, got %+v", got.Matches)
		}
		for _, c := range s.Taxonomy().Categories() {
			score, ok := got.CategoryScores[c]
			if !ok || score != 0 {
				t.Errorf("category %s: expected 0, got %v (present=%v)", c, score, ok)
			}
		}
	}
}

func TestAnalyzeExactScore(t *testing.T) {
	t.Parallel()

	s := NewScorer(WithTaxonomy(smallTaxonomy(t)))
	got := s.Analyze("", "", "rural health in Peru")

	// geographic 2.0 * 3.0 + program 1.0 * 2.5
	if got.Score != 8.5 {
		t.Errorf("expected score 8.5, got %v", got.Score)
	}
	if got.CategoryScores[Geographic] != 2.0 || got.CategoryScores[ProgramArea] != 1.0 {
		t.Errorf("unexpected category scores %v", got.CategoryScores)
	}
	if !got.IsRelevant {
		t.Error("expected relevant result")
	}
	if got.Priority != model.PriorityCritical {
		t.Errorf("expected CRITICAL, got %s", got.Priority)
	}
	if !strings.HasPrefix(got.Recommendation, RecommendReview) {
		t.Errorf("expected %q recommendation, got %q", RecommendReview, got.Recommendation)
	}
	if len(got.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got.Matches))
	}
	if got.Matches[0].Keyword != "Peru" || got.Matches[0].Weight != 2.0 {
		t.Errorf("unexpected first match %+v", got.Matches[0])
	}
	if got.Matches[0].Context != "rural health in peru" {
		t.Errorf("unexpected context %q", got.Matches[0].Context)
	}
}

func TestAnalyzeTitleAndDescriptionCountTwice(t *testing.T) {
	t.Parallel()

	s := NewScorer(WithTaxonomy(smallTaxonomy(t)))
	got := s.Analyze("Grant for Peru", "", "")
	if got.CategoryScores[Geographic] != 4.0 {
		t.Errorf("expected geographic 4.0, got %v", got.CategoryScores[Geographic])
	}
	if got.Score != 12.0 {
		t.Errorf("expected score 12, got %v", got.Score)
	}
	if kws := got.Keywords(); len(kws) != 1 || kws[0] != "Peru" {
		t.Errorf("expected distinct keyword list [Peru], got %v", kws)
	}
}

func TestAnalyzeContextModifiers(t *testing.T) {
	t.Parallel()

	s := NewScorer(WithTaxonomy(smallTaxonomy(t)))

	testCases := []struct {
		name     string
		text     string
		expected float64
	}{
		{name: "no modifier", text: "projects in Peru", expected: 2.0},
		{name: "eligible boosts", text: "organizations in Peru are eligible", expected: 2.4},
		{name: "application boosts", text: "Peru application window", expected: 2.4},
		{name: "excluding dampens", text: "all regions excluding Peru", expected: 1.0},
		{name: "not eligible applies both", text: "Peru is not eligible", expected: 1.2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := s.Analyze("", "", tc.text)
			if len(got.Matches) != 1 {
				t.Fatalf("expected 1 match, got %d", len(got.Matches))
			}
			if got.Matches[0].Weight != tc.expected {
				t.Errorf("expected weight %v, got %v", tc.expected, got.Matches[0].Weight)
			}
		})
	}
}

func TestAnalyzeWordBoundaries(t *testing.T) {
	t.Parallel()

	s := NewScorer(WithTaxonomy(smallTaxonomy(t)))

	testCases := []struct {
		name    string
		text    string
		matches int
	}{
		{name: "suffix is not a match", text: "Peruvians abroad", matches: 0},
		{name: "prefix is not a match", text: "superu and xperu", matches: 0},
		{name: "hyphen is a boundary", text: "peru-based partners", matches: 1},
		{name: "punctuation is a boundary", text: "(Peru).", matches: 1},
		{name: "accented keyword", text: "Programa nacional en PERÚ.", matches: 1},
		{name: "accent is part of the word", text: "Perúano", matches: 0},
		{name: "hyphenated phrase", text: "rural-health clinics", matches: 1},
		{name: "dotted phrase", text: "rural.health clinics", matches: 1},
		{name: "every occurrence", text: "Peru, Peru and Peru", matches: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := s.Analyze("", "", tc.text)
			if len(got.Matches) != tc.matches {
				t.Errorf("expected %d matches in %q, got %+v", tc.matches, tc.text, got.Matches)
			}
		})
	}
}

func TestAnalyzeExclusion(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	got := s.Analyze("Domestic research grant", "Open to US citizens only.", "")

	if got.Score >= 0 {
		t.Errorf("expected negative score, got %v", got.Score)
	}
	if got.IsRelevant {
		t.Error("exclusion-only text must not be relevant")
	}
	if got.Priority != model.PriorityMinimal {
		t.Errorf("expected MINIMAL, got %s", got.Priority)
	}
	if len(got.ExclusionFlags) == 0 || got.ExclusionFlags[0] != "US citizens only" {
		t.Errorf("unexpected exclusion flags %v", got.ExclusionFlags)
	}
	expected := "CAUTION: Contains exclusion criteria: US citizens only"
	if got.Recommendation != expected {
		t.Errorf("expected %q, got %q", expected, got.Recommendation)
	}
}

func TestAnalyzePeruRuralScenario(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	got := s.Analyze(
		"Rural education for indigenous communities in Peru",
		"Funding for smallholder farmers in the Andes",
		"",
	)

	if !got.IsRelevant {
		t.Fatalf("expected relevant result, got %+v", got)
	}
	if got.Priority != model.PriorityCritical {
		t.Errorf("expected CRITICAL, got %s", got.Priority)
	}
	if !strings.HasPrefix(got.Recommendation, RecommendHighly) {
		t.Errorf("expected %q, got %q", RecommendHighly, got.Recommendation)
	}
	for _, c := range []Category{Geographic, ProgramArea, Beneficiary} {
		if got.CategoryScores[c] <= 0 {
			t.Errorf("expected positive %s score, got %v", c, got.CategoryScores[c])
		}
	}
	if len(got.ExclusionFlags) != 0 {
		t.Errorf("unexpected exclusion flags %v", got.ExclusionFlags)
	}

	seen := make(map[string]bool)
	for _, kw := range got.Keywords() {
		if seen[kw] {
			t.Errorf("keyword %q listed twice", kw)
		}
		seen[kw] = true
	}
	for _, kw := range []string{"Peru", "Andes", "rural education", "smallholder farmers"} {
		if !seen[kw] {
			t.Errorf("expected keyword %q in %v", kw, got.Keywords())
		}
	}
}

func TestAnalyzeUnicodeFolding(t *testing.T) {
	t.Parallel()

	s := NewScorer()

	// "Áncash" written with a combining acute accent.
	decomposed := "Proyecto en A\u0301ncash"
	got := s.Analyze("", "", decomposed)

	found := false
	for _, m := range got.Matches {
		if m.Keyword == "Áncash" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Áncash match, got %+v", got.Matches)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	title := "Community health workers program in rural Peru"
	desc := "Grants for NGO funding and technical assistance; organizations are eligible"

	first := s.Analyze(title, desc, title+" "+desc)
	for range 5 {
		again := s.Analyze(title, desc, title+" "+desc)
		if !reflect.DeepEqual(first, again) {
			t.Fatal("Analyze returned different results for the same input")
		}
	}
}

func TestAnalyzeThreshold(t *testing.T) {
	t.Parallel()

	s := NewScorer(WithTaxonomy(smallTaxonomy(t)), WithThreshold(100))
	if s.Threshold() != 100 {
		t.Errorf("expected threshold 100, got %v", s.Threshold())
	}

	got := s.Analyze("", "", "rural health in Peru")
	if got.IsRelevant {
		t.Error("score below threshold must not be relevant")
	}
	if !strings.HasPrefix(got.Recommendation, RecommendReview) {
		t.Errorf("unexpected recommendation %q", got.Recommendation)
	}
}

func TestAnalyzeContextTruncation(t *testing.T) {
	t.Parallel()

	s := NewScorer(WithTaxonomy(smallTaxonomy(t)))
	text := strings.Repeat("a ", 40) + "rural health" + strings.Repeat(" b", 40)

	got := s.Analyze("", "", text)
	if len(got.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got.Matches))
	}
	ctx := got.Matches[0].Context
	if !strings.HasSuffix(ctx, "...") {
		t.Errorf("expected truncated context, got %q", ctx)
	}
	if n := utf8.RuneCountInString(ctx); n != maxContextLength+3 {
		t.Errorf("expected %d characters, got %d", maxContextLength+3, n)
	}
}

func TestBatchAnalyze(t *testing.T) {
	t.Parallel()

	s := NewScorer(WithTaxonomy(smallTaxonomy(t)))
	inputs := []Input{
		{Title: "first unrelated", Description: "nothing here"},
		{Title: "rural health", Description: "in Peru"},
		{Title: "second unrelated", Description: "still nothing"},
		{Title: "Peru", Text: "explicit body"},
	}

	results := s.BatchAnalyze(inputs)
	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}

	for i := 1; i < len(results); i++ {
		if results[i-1].Result.Score < results[i].Result.Score {
			t.Errorf("results not sorted at %d: %v < %v", i, results[i-1].Result.Score, results[i].Result.Score)
		}
	}

	if results[0].Input.Title != "rural health" {
		t.Errorf("expected best input first, got %q", results[0].Input.Title)
	}
	// Equal zero scores keep their input order.
	if results[2].Input.Title != "first unrelated" || results[3].Input.Title != "second unrelated" {
		t.Errorf("ties reordered: %q, %q", results[2].Input.Title, results[3].Input.Title)
	}
}

func TestKeywordStatistics(t *testing.T) {
	t.Parallel()

	small := NewScorer(WithTaxonomy(smallTaxonomy(t)))
	expected := map[string]int{"geographic": 2, "program_area": 1, "exclusion": 1, "total": 4}
	if got := small.KeywordStatistics(); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}

	def := NewScorer()
	stats := def.KeywordStatistics()
	sum := 0
	for _, c := range def.Taxonomy().Categories() {
		n := len(def.Taxonomy().Keywords(c))
		if stats[c.String()] != n {
			t.Errorf("%s: expected %d, got %d", c, n, stats[c.String()])
		}
		sum += n
	}
	if stats["total"] != sum {
		t.Errorf("expected total %d, got %d", sum, stats["total"])
	}
}

func TestNewTaxonomyErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewTaxonomy(); !errors.Is(err, ErrEmptyTaxonomy) {
		t.Errorf("expected ErrEmptyTaxonomy, got %v", err)
	}

	_, err := NewTaxonomy(
		CategoryDef{Category: Geographic, Weight: 1, Keywords: []string{"a"}},
		CategoryDef{Category: Geographic, Weight: 1, Keywords: []string{"b"}},
	)
	if !errors.Is(err, ErrDuplicateCategory) {
		t.Errorf("expected ErrDuplicateCategory, got %v", err)
	}

	_, err = NewTaxonomy(CategoryDef{Category: Priority, Weight: 1, Keywords: []string{" "}})
	if !errors.Is(err, ErrEmptyKeyword) {
		t.Errorf("expected ErrEmptyKeyword, got %v", err)
	}
}

func TestTaxonomyIsCopied(t *testing.T) {
	t.Parallel()

	keywords := []string{"Peru"}
	tax, err := NewTaxonomy(CategoryDef{Category: Geographic, Weight: 3, Keywords: keywords})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keywords[0] = "changed"

	if got := tax.Keywords(Geographic); got[0] != "Peru" {
		t.Errorf("taxonomy changed with caller slice: %v", got)
	}
}
