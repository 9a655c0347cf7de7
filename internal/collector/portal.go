package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/grantscan/internal/model"
)

// Portal defaults.
const (
	portalOrigin         = "https://www.gob.pe"
	portalOrganization   = "Government of Peru"
	portalGeography      = "Peru"
	portalProgramType    = "National Program"
	portalMinTitle       = 10
	portalMaxTitle       = 200
	portalMaxDescription = 1500
	portalGeneralLimit   = 5
)

// DefaultPortalURLs are the government pages collected when no URLs are configured.
var DefaultPortalURLs = []string{
	"https://www.gob.pe",
	"https://www.gob.pe/midis",
	"https://www.gob.pe/minam",
	"https://www.gob.pe/midagri",
	"https://www.gob.pe/produce",
	"https://www.gob.pe/minedu",
	"https://www.gob.pe/mimp",
	"https://www.gob.pe/cultura",
	"https://www.gob.pe/pcm/ceplan",
	"https://www.gob.pe/pronabec",
	"https://www.gob.pe/foncodes",
	"https://www.gob.pe/agrorural",
}

// programIndicators must appear in a block for it to count as a program.
var programIndicators = []string{
	"programa", "proyecto", "beca", "apoyo", "fondo", "financiamiento",
	"convocatoria", "subsidio", "asistencia", "desarrollo", "capacitacion",
	"program", "project", "scholarship", "funding", "support", "grant",
}

// portalNoise marks navigation and error blocks.
var portalNoise = []string{"error", "página no encontrada", "404", "menu", "navegación", "cookie"}

// descriptionClass selects the summary element inside a program block.
var descriptionClass = regexp.MustCompile(`descripcion|resumen|contenido`)

// pageLayout describes how program blocks are found on one kind of page.
type pageLayout struct {
	sector   string
	elements string
	class    *regexp.Regexp
	limit    int
	ministry func(url string) string
}

func fixedMinistry(name string) func(string) string {
	return func(string) string { return name }
}

// layoutFor picks the block layout for a portal page from its URL.
// Ministries publish programs under different class names.
func layoutFor(url string) pageLayout {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "midis"):
		return pageLayout{
			sector:   "Social Development",
			elements: "div, section",
			class:    regexp.MustCompile(`programa|servicio|convocatoria`),
			ministry: fixedMinistry("MIDIS"),
		}
	case strings.Contains(lower, "midagri"), strings.Contains(lower, "agrorural"):
		return pageLayout{
			sector:   "Agriculture/Rural Development",
			elements: "div, article",
			class:    regexp.MustCompile(`programa|proyecto|convocatoria|financiamiento`),
			ministry: func(u string) string {
				if strings.Contains(strings.ToLower(u), "midagri") {
					return "MIDAGRI"
				}
				return "AGRORURAL"
			},
		}
	case strings.Contains(lower, "minam"):
		return pageLayout{
			sector:   "Environment/Conservation",
			elements: "div",
			class:    regexp.MustCompile(`programa|proyecto|conservacion|ambiental`),
			ministry: fixedMinistry("MINAM"),
		}
	case strings.Contains(lower, "cultura"):
		return pageLayout{
			sector:   "Culture/Indigenous Affairs",
			elements: "div",
			class:    regexp.MustCompile(`programa|indigena|cultural|patrimonio`),
			ministry: fixedMinistry("CULTURA"),
		}
	case strings.Contains(lower, "minedu"), strings.Contains(lower, "pronabec"):
		return pageLayout{
			sector:   "Education",
			elements: "div",
			class:    regexp.MustCompile(`beca|programa|educativo|convocatoria`),
			ministry: func(u string) string {
				if strings.Contains(strings.ToLower(u), "minedu") {
					return "MINEDU"
				}
				return "PRONABEC"
			},
		}
	case strings.Contains(lower, "foncodes"):
		return pageLayout{
			sector:   "Social Development/Infrastructure",
			elements: "div",
			class:    regexp.MustCompile(`proyecto|programa|rural|nucleo`),
			ministry: fixedMinistry("FONCODES"),
		}
	default:
		return pageLayout{
			sector:   "General Programs",
			elements: "div, section",
			class:    regexp.MustCompile(`programa|servicio|iniciativa`),
			limit:    portalGeneralLimit,
			ministry: fixedMinistry(""),
		}
	}
}

// PortalCollector reads program blocks from government portal pages.
//
// A page that cannot be fetched is logged and skipped. Collect fails only
// when every page failed, so one broken ministry page does not cost the
// records of the others.
type PortalCollector struct {
	common
	name    string
	fetcher *Fetcher
	urls    []string
}

// NewPortalCollector creates a portal adapter. Empty urls selects DefaultPortalURLs.
func NewPortalCollector(name string, fetcher *Fetcher, urls []string, opts ...Option) *PortalCollector {
	if len(urls) == 0 {
		urls = DefaultPortalURLs
	}
	return &PortalCollector{
		common:  newCommon(opts),
		name:    name,
		fetcher: fetcher,
		urls:    append([]string(nil), urls...),
	}
}

// Name implements Collector.
func (c *PortalCollector) Name() string { return c.name }

// Collect implements Collector.
func (c *PortalCollector) Collect(ctx context.Context) ([]*model.Opportunity, error) {
	var (
		out  []*model.Opportunity
		errs []error
	)

	for _, url := range c.urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.fetcher.Get(ctx, url, "text/html,application/xhtml+xml")
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("skipping portal page", "source", c.name, "url", url, "error", err)
			errs = append(errs, err)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", url, err))
			continue
		}

		found := c.parsePage(doc, url)
		c.logger.Debug("portal page parsed", "source", c.name, "url", url, "records", len(found))
		out = append(out, found...)
	}

	if len(errs) == len(c.urls) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// parsePage extracts every program block of one page.
func (c *PortalCollector) parsePage(doc *goquery.Document, pageURL string) []*model.Opportunity {
	layout := layoutFor(pageURL)

	blocks := doc.Find(layout.elements).FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return class != "" && layout.class.MatchString(class)
	})
	if layout.limit > 0 && blocks.Length() > layout.limit {
		blocks = blocks.Slice(0, layout.limit)
	}

	out := make([]*model.Opportunity, 0, blocks.Length())
	blocks.Each(func(_ int, block *goquery.Selection) {
		opp := c.parseBlock(block, pageURL, layout)
		if opp != nil {
			out = append(out, opp)
		}
	})
	return out
}

// parseBlock maps one program block to a record, or nil when it does not
// look like a program.
func (c *PortalCollector) parseBlock(block *goquery.Selection, pageURL string, layout pageLayout) *model.Opportunity {
	heading := block.Find("h1, h2, h3, h4, h5, a, strong").First()
	if heading.Length() == 0 {
		return nil
	}

	title := CleanText(heading.Text())
	if n := utf8.RuneCountInString(title); n < portalMinTitle || n > portalMaxTitle {
		return nil
	}

	descNode := block.Find("p, div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return descriptionClass.MatchString(class)
	}).First()
	if descNode.Length() == 0 {
		descNode = block
	}
	description := CleanText(descNode.Text())

	if !isProgramBlock(title, description) {
		return nil
	}

	link := pageURL
	if href, ok := block.Find("a[href]").First().Attr("href"); ok {
		switch {
		case strings.HasPrefix(href, "http"):
			link = href
		case strings.HasPrefix(href, "/"):
			link = portalOrigin + href
		}
	}

	opp := &model.Opportunity{
		Title:            title,
		Organization:     organizationFor(layout.ministry(pageURL)),
		Description:      model.TruncateRunes(description, portalMaxDescription),
		AnnouncementDate: c.stamp(),
		GeographicFocus:  portalGeography,
		Sector:           layout.sector,
		Status:           model.StatusUnknown,
		ApplicationLink:  link,
		SourceURL:        pageURL,
		Source:           c.name,
		ProgramType:      portalProgramType,
		ContactInfo:      strings.Join(ExtractEmails(block.Text()), ", "),
	}
	opp.Normalize()
	return opp
}

// organizationFor names the administering ministry when the page has one.
func organizationFor(ministry string) string {
	if ministry == "" {
		return portalOrganization
	}
	return portalOrganization + " - " + ministry
}

// isProgramBlock reports whether a block reads like a funding program
// rather than navigation or an error message.
func isProgramBlock(title, description string) bool {
	text := strings.ToLower(title + " " + description)
	return containsAny(text, programIndicators) && !containsAny(text, portalNoise)
}
