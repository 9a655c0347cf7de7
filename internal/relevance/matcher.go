package relevance

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// contextRadius is the number of characters taken on each side of a match.
const contextRadius = 50

// wordSeparator is accepted between the words of a multi-word keyword.
const wordSeparator = `[\s\-_.]*`

// compiledKeyword is a taxonomy keyword ready for matching.
type compiledKeyword struct {
	keyword  string
	category Category
	base     float64
	pattern  *regexp.Regexp
}

// foldText normalizes text for matching: NFC composition, then Unicode
// lower-casing. A Caser is not safe for concurrent use, so one is created
// per call.
func foldText(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

// compileKeyword builds the pattern of a keyword. Words are matched
// literally and may be separated by whitespace, hyphens, underscores or
// dots. Word boundaries are checked separately by findAll because RE2's
// \b only understands ASCII.
func compileKeyword(keyword string) *regexp.Regexp {
	words := strings.Fields(foldText(keyword))
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, wordSeparator))
}

// isWordRune mirrors the \w class over Unicode letters and digits.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r)
}

// atBoundary reports whether a word boundary lies at byte offset i.
func atBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

// findAll returns the byte ranges of every whole-word occurrence of the
// pattern, scanning left to right without overlap. A candidate that fails
// the boundary check is skipped one character at a time so a valid match
// starting inside it is still found.
func findAll(pattern *regexp.Regexp, text string) [][2]int {
	var out [][2]int
	pos := 0
	for pos < len(text) {
		loc := pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && atBoundary(text, start) && atBoundary(text, end) {
			out = append(out, [2]int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			break
		}
		pos = start + size
	}
	return out
}

// contextWindow returns up to radius characters on each side of the byte
// range [start, end), trimmed.
func contextWindow(text string, start, end, radius int) string {
	s := start
	for i := 0; i < radius && s > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:s])
		s -= size
	}
	e := end
	for i := 0; i < radius && e < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[e:])
		e += size
	}
	return strings.TrimSpace(text[s:e])
}
