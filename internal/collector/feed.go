package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/nao1215/grantscan/internal/model"
)

// DefaultIDBFeeds are the IDB feeds read when none are configured.
var DefaultIDBFeeds = []string{
	"https://www.iadb.org/en/rss/news-releases",
	"https://www.iadb.org/en/rss/procurement-notices",
}

// FeedConfig describes one feed source.
type FeedConfig struct {
	// URLs are RSS or Atom feed addresses.
	URLs []string

	// Organization is set on every record of the source.
	Organization string

	// GeographicFocus is set on records unless an item says otherwise.
	GeographicFocus string

	// ProgramType is set on every record of the source.
	ProgramType string

	// Keywords, when set, keep only items whose title or description
	// contains one of them (case-insensitive).
	Keywords []string
}

// FeedCollector turns RSS and Atom items into opportunities.
type FeedCollector struct {
	common
	name    string
	fetcher *Fetcher
	cfg     FeedConfig
}

// NewFeedCollector creates a feed adapter.
func NewFeedCollector(name string, fetcher *Fetcher, cfg FeedConfig, opts ...Option) *FeedCollector {
	cfg.URLs = append([]string(nil), cfg.URLs...)
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	cfg.Keywords = keywords

	return &FeedCollector{
		common:  newCommon(opts),
		name:    name,
		fetcher: fetcher,
		cfg:     cfg,
	}
}

// Name implements Collector.
func (c *FeedCollector) Name() string { return c.name }

// Collect implements Collector. Feeds that cannot be fetched or parsed are
// skipped; Collect fails only when every feed failed.
func (c *FeedCollector) Collect(ctx context.Context) ([]*model.Opportunity, error) {
	parser := gofeed.NewParser()

	var (
		out  []*model.Opportunity
		errs []error
	)

	for _, feedURL := range c.cfg.URLs {
		body, err := c.fetcher.Get(ctx, feedURL, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("skipping feed", "source", c.name, "url", feedURL, "error", err)
			errs = append(errs, err)
			continue
		}

		feed, err := parser.Parse(bytes.NewReader(body))
		if err != nil {
			c.logger.Warn("skipping unparsable feed", "source", c.name, "url", feedURL, "error", err)
			errs = append(errs, fmt.Errorf("parse feed %s: %w", feedURL, err))
			continue
		}

		for _, item := range feed.Items {
			if opp := c.toOpportunity(item, feedURL); opp != nil {
				out = append(out, opp)
			}
		}
	}

	if len(errs) == len(c.cfg.URLs) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// toOpportunity maps one item, or returns nil for untitled or filtered items.
func (c *FeedCollector) toOpportunity(item *gofeed.Item, feedURL string) *model.Opportunity {
	if item == nil {
		return nil
	}

	title := HTMLToText(item.Title)
	if title == "" {
		return nil
	}

	description := item.Description
	if strings.TrimSpace(description) == "" {
		description = item.Content
	}
	description = HTMLToText(description)

	if !c.wanted(title, description) {
		return nil
	}

	link := strings.TrimSpace(item.Link)
	if link != "" && !model.HasURLScheme(link) {
		link = ResolveURL(feedURL, link)
	}

	announced := c.stamp()
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		announced = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		announced = &t
	}

	opp := &model.Opportunity{
		Title:            title,
		Organization:     c.cfg.Organization,
		Description:      description,
		AnnouncementDate: announced,
		GeographicFocus:  c.cfg.GeographicFocus,
		Sector:           strings.Join(item.Categories, ", "),
		Status:           model.StatusUnknown,
		ApplicationLink:  link,
		SourceURL:        feedURL,
		Source:           c.name,
		ProgramType:      c.cfg.ProgramType,
		ContactInfo:      strings.Join(ExtractEmails(item.Description+" "+item.Content), ", "),
	}
	opp.Normalize()
	return opp
}

// wanted applies the optional keyword filter.
func (c *FeedCollector) wanted(title, description string) bool {
	if len(c.cfg.Keywords) == 0 {
		return true
	}
	return containsAny(strings.ToLower(title+" "+description), c.cfg.Keywords)
}
