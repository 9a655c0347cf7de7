package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/grantscan/internal/model"
)

// Grants search defaults.
const (
	// DefaultGrantsSearchURL is the search page queried once per keyword.
	DefaultGrantsSearchURL = "https://www.grants.gov/search-grants"

	grantsOrganization    = "Grants.gov"
	grantsGeography       = "United States"
	grantsProgramType     = "Federal Grant"
	grantsResultsPerQuery = 20
	grantsMaxEligibility  = 500
)

// DefaultGrantsKeywords are the searches run when none are configured.
var DefaultGrantsKeywords = []string{
	"Peru",
	"Latin America",
	"South America",
	"international development",
	"rural development",
	"indigenous communities",
	"education development",
	"sustainable agriculture",
	"community development",
	"capacity building",
	"microfinance",
	"healthcare access",
	"environmental conservation",
	"cultural preservation",
}

// Result page selectors, matched against the class attribute.
var (
	resultClass      = regexp.MustCompile(`opportunity|grant|result|row`)
	titleClass       = regexp.MustCompile(`title|name|opportunity`)
	agencyClass      = regexp.MustCompile(`agency|org|department`)
	summaryClass     = regexp.MustCompile(`desc|summary|abstract`)
	numberClass      = regexp.MustCompile(`number|id|code`)
	deadlineClass    = regexp.MustCompile(`deadline|close|due`)
	amountClass      = regexp.MustCompile(`amount|funding|award`)
	eligibilityClass = regexp.MustCompile(`eligib|criteria|requirement`)
)

// spamTitle marks result rows that are error pages or fixtures.
var spamTitle = []string{"error", "404", "not found", "page not found", "invalid", "test"}

// sectorRule maps title and description words onto a sector. Rules are
// checked in order and the first hit wins.
type sectorRule struct {
	sector string
	words  []string
}

var sectorRules = []sectorRule{
	{"Education", []string{"education", "school", "university", "student", "learning", "academic"}},
	{"Health", []string{"health", "medical", "healthcare", "hospital", "clinic", "disease"}},
	{"Environment", []string{"environment", "conservation", "climate", "green", "sustainability"}},
	{"Agriculture", []string{"agriculture", "farming", "rural", "crop", "livestock", "food"}},
	{"Community Development", []string{"community", "development", "social", "housing", "urban"}},
	{"Research", []string{"research", "science", "innovation", "technology", "study"}},
	{"Arts & Culture", []string{"arts", "culture", "museum", "heritage", "creative", "music"}},
}

// InferSector returns the first sector whose words occur in the text, or "General".
func InferSector(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, rule := range sectorRules {
		if containsAny(text, rule.words) {
			return rule.sector
		}
	}
	return "General"
}

// verifiedStatus lists HEAD statuses that prove a link exists. Some
// agencies answer 403 to anonymous clients on valid pages.
var verifiedStatus = map[int]bool{
	http.StatusOK:               true,
	http.StatusMovedPermanently: true,
	http.StatusFound:            true,
	http.StatusForbidden:        true,
}

// GrantsSearchCollector runs keyword searches against a grants search page.
//
// Every record's application link is checked with a HEAD request. A link
// answering with any other status is dropped; a link that could not be
// checked because of a transport error is kept.
type GrantsSearchCollector struct {
	common
	name      string
	fetcher   *Fetcher
	searchURL string
	keywords  []string
	verify    bool
}

// GrantsOption configures a GrantsSearchCollector.
type GrantsOption func(*GrantsSearchCollector)

// WithSearchURL replaces DefaultGrantsSearchURL.
func WithSearchURL(u string) GrantsOption {
	return func(c *GrantsSearchCollector) {
		if u != "" {
			c.searchURL = u
		}
	}
}

// WithKeywords replaces DefaultGrantsKeywords.
func WithKeywords(keywords []string) GrantsOption {
	return func(c *GrantsSearchCollector) {
		if len(keywords) > 0 {
			c.keywords = append([]string(nil), keywords...)
		}
	}
}

// WithLinkVerification turns HEAD verification of application links on or off.
func WithLinkVerification(enabled bool) GrantsOption {
	return func(c *GrantsSearchCollector) {
		c.verify = enabled
	}
}

// NewGrantsSearchCollector creates the adapter.
func NewGrantsSearchCollector(name string, fetcher *Fetcher, grantsOpts []GrantsOption, opts ...Option) *GrantsSearchCollector {
	c := &GrantsSearchCollector{
		common:    newCommon(opts),
		name:      name,
		fetcher:   fetcher,
		searchURL: DefaultGrantsSearchURL,
		keywords:  DefaultGrantsKeywords,
		verify:    true,
	}
	for _, opt := range grantsOpts {
		opt(c)
	}
	return c
}

// Name implements Collector.
func (c *GrantsSearchCollector) Name() string { return c.name }

// grantRow is one parsed search result. number is only used to tell
// results with equal titles apart.
type grantRow struct {
	opp    *model.Opportunity
	number string
}

// Collect implements Collector.
func (c *GrantsSearchCollector) Collect(ctx context.Context) ([]*model.Opportunity, error) {
	var (
		rows []grantRow
		errs []error
	)

	for _, keyword := range c.keywords {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found, err := c.search(ctx, keyword)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("grants search failed", "source", c.name, "keyword", keyword, "error", err)
			errs = append(errs, err)
			continue
		}

		if c.verify {
			found, err = c.verifyLinks(ctx, found)
			if err != nil {
				return nil, err
			}
		}
		rows = append(rows, found...)
	}

	if len(errs) == len(c.keywords) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return uniqueRows(rows), nil
}

// search runs one keyword query and parses its result page.
func (c *GrantsSearchCollector) search(ctx context.Context, keyword string) ([]grantRow, error) {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("sortby", "closedate")
	query.Set("oppStatuses", "forecasted,posted,closed")
	query.Set("keywords", keyword)

	target := c.searchURL + "?" + query.Encode()
	body, err := c.fetcher.Get(ctx, target, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	return c.parseResults(doc, keyword), nil
}

// parseResults extracts up to grantsResultsPerQuery rows from a result page.
func (c *GrantsSearchCollector) parseResults(doc *goquery.Document, keyword string) []grantRow {
	containers := doc.Find("div, tr, article").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return classMatches(s, resultClass)
	})
	if containers.Length() == 0 {
		containers = doc.Find("div[data-opportunity]")
	}
	if containers.Length() == 0 {
		containers = doc.Find("tr")
	}
	if containers.Length() > grantsResultsPerQuery {
		containers = containers.Slice(0, grantsResultsPerQuery)
	}

	rows := make([]grantRow, 0, containers.Length())
	containers.Each(func(_ int, s *goquery.Selection) {
		if row, ok := c.parseRow(s, keyword); ok {
			rows = append(rows, row)
		}
	})
	return rows
}

// parseRow maps one result container onto a record.
func (c *GrantsSearchCollector) parseRow(s *goquery.Selection, keyword string) (grantRow, bool) {
	titleNode := s.Find("h1, h2, h3, h4, a").FilterFunction(func(_ int, t *goquery.Selection) bool {
		return classMatches(t, titleClass)
	}).First()
	if titleNode.Length() == 0 {
		titleNode = s.Find("a, strong").First()
	}
	if titleNode.Length() == 0 {
		return grantRow{}, false
	}

	title := CleanText(titleNode.Text())
	if n := utf8.RuneCountInString(title); n < model.MinTitleLength || n > model.MaxTitleLength {
		return grantRow{}, false
	}
	if containsAny(strings.ToLower(title), spamTitle) {
		return grantRow{}, false
	}

	link := c.resultLink(s, titleNode)
	if !model.HasURLScheme(link) {
		return grantRow{}, false
	}

	agency := classText(s, "span, div, td", agencyClass)
	description := classText(s, "p, div, span", summaryClass)
	if description == "" {
		description = "Grant opportunity related to " + keyword
	}

	organization := agency
	if organization == "" {
		organization = grantsOrganization
	}

	opp := &model.Opportunity{
		Title:               title,
		Organization:        organization,
		Description:         description,
		FundingAmount:       classText(s, "span, div", amountClass),
		Deadline:            classText(s, "span, div, td", deadlineClass),
		AnnouncementDate:    c.stamp(),
		GeographicFocus:     grantsGeography,
		Sector:              InferSector(title, description),
		EligibilityCriteria: model.TruncateRunes(classText(s, "div, span, p", eligibilityClass), grantsMaxEligibility),
		Status:              model.StatusOpen,
		ApplicationLink:     link,
		SourceURL:           link,
		Source:              c.name,
		ProgramType:         grantsProgramType,
		ContactInfo:         strings.Join(ExtractEmails(s.Text()), ", "),
	}
	opp.Normalize()

	return grantRow{opp: opp, number: classText(s, "span, div", numberClass)}, true
}

// resultLink returns the absolute link of a result, falling back to the
// site origin.
func (c *GrantsSearchCollector) resultLink(s, titleNode *goquery.Selection) string {
	anchor := titleNode
	if goquery.NodeName(titleNode) != "a" {
		anchor = titleNode.Find("a[href]").First()
	}
	if anchor.Length() == 0 {
		anchor = s.Find("a[href]").First()
	}

	origin := siteOrigin(c.searchURL)
	href, ok := anchor.Attr("href")
	if !ok || href == "" {
		return origin
	}
	switch {
	case strings.HasPrefix(href, "http"):
		return href
	case strings.HasPrefix(href, "/"):
		return ResolveURL(origin, href)
	default:
		return origin
	}
}

// verifyLinks drops rows whose application link answers with an
// unexpected status.
func (c *GrantsSearchCollector) verifyLinks(ctx context.Context, rows []grantRow) ([]grantRow, error) {
	kept := rows[:0]
	for _, row := range rows {
		status, err := c.fetcher.Head(ctx, row.opp.ApplicationLink)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			c.logger.Debug("link verification failed, keeping record", "source", c.name, "url", row.opp.ApplicationLink, "error", err)
			kept = append(kept, row)
		case verifiedStatus[status]:
			kept = append(kept, row)
		default:
			c.logger.Warn("dropping record with dead link", "source", c.name, "title", row.opp.Title, "url", row.opp.ApplicationLink, "status", status)
		}
	}
	return kept, nil
}

// uniqueRows removes repeated results by lower-cased title and number.
// The same grant usually matches several keywords.
func uniqueRows(rows []grantRow) []*model.Opportunity {
	seen := make(map[string]bool, len(rows))
	out := make([]*model.Opportunity, 0, len(rows))
	for _, row := range rows {
		id := strings.ToLower(strings.TrimSpace(row.opp.Title)) + "|" + strings.ToLower(strings.TrimSpace(row.number))
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, row.opp)
	}
	return out
}

// classMatches reports whether the class attribute of s matches re.
func classMatches(s *goquery.Selection, re *regexp.Regexp) bool {
	class, ok := s.Attr("class")
	return ok && re.MatchString(class)
}

// classText returns the cleaned text of the first descendant among
// elements whose class matches re.
func classText(s *goquery.Selection, elements string, re *regexp.Regexp) string {
	node := s.Find(elements).FilterFunction(func(_ int, e *goquery.Selection) bool {
		return classMatches(e, re)
	}).First()
	if node.Length() == 0 {
		return ""
	}
	return CleanText(node.Text())
}

// siteOrigin returns scheme://host of u, or u itself when it cannot be parsed.
func siteOrigin(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return u
	}
	return parsed.Scheme + "://" + parsed.Host
}
