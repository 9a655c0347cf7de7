package collector

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// boilerplate lists navigation text government portals repeat in every block.
var boilerplate = regexp.MustCompile(`(?i)ir al contenido principal|gobierno del perú`)

// whitespace matches any run of whitespace.
var whitespace = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace and strips portal boilerplate.
func CleanText(s string) string {
	s = boilerplate.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// HTMLToText returns the visible text of an HTML fragment.
// Feed entries and API answers often carry markup in their descriptions.
//
// Design decision: We use golang.org/x/net/html rather than a regex tag
// stripper. It handles malformed markup and decodes entities, and the
// contents of script and style elements are skipped instead of leaking
// into the text.
func HTMLToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return CleanText(fragment)
	}

	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return CleanText(fragment)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return CleanText(b.String())
}

// emailRegex is deliberately permissive; a wrong contact is cheaper to
// discard by hand than a missed one.
var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// ExtractEmails returns the distinct e-mail addresses in text, lower-cased,
// in order of first appearance.
func ExtractEmails(text string) []string {
	matches := emailRegex.FindAllString(text, -1)

	seen := make(map[string]bool)
	unique := make([]string, 0)
	for _, email := range matches {
		lower := strings.ToLower(email)
		if !seen[lower] {
			seen[lower] = true
			unique = append(unique, lower)
		}
	}
	return unique
}

// ResolveURL resolves href against base. Script, mail, phone and fragment
// links resolve to "".
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// containsAny reports whether s contains any of the substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
