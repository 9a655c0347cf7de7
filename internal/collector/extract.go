package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/grantscan/internal/model"
)

// Extraction defaults.
const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 30
)

// Extraction job states reported by the API.
const (
	extractCompleted  = "completed"
	extractFailed     = "failed"
	extractCancelled  = "cancelled"
	extractProcessing = "processing"
)

// ErrExtractFailed is returned when the extraction service reports a job failure.
var ErrExtractFailed = errors.New("extraction job failed")

// ErrExtractTimeout is returned when a job is still running after the last poll.
var ErrExtractTimeout = errors.New("extraction job did not complete")

// DefaultExtractPrompt asks for funding opportunities relevant to Peru.
const DefaultExtractPrompt = "Extract every funding opportunity, grant, call for proposals, procurement notice " +
	"or program on this page. Focus on opportunities in Peru or Latin America and on rural development, " +
	"indigenous communities, education, health, agriculture, environmental conservation and capacity building. " +
	"For each one extract the title, description, funding amount, deadline, geographic focus, sector, " +
	"eligibility criteria, application link and contact information."

// Target pages of the built-in extraction sources.
var (
	DefaultUNDPURLs = []string{
		"https://procurement-notices.undp.org/",
		"https://sgp.undp.org/",
		"https://sgp.undp.org/spacial-themes-page/capacity-development-and-youth",
		"https://www.undp.org/tag/peru",
		"https://www.undp.org/latin-america/procurement",
		"https://mptf.undp.org/country/peru",
		"https://www.undp.org/latin-america/our-focus-areas",
	}

	DefaultWorldBankURLs = []string{
		"https://www.worldbank.org/en/country/peru/overview",
		"https://projects.worldbank.org/en/projects-operations/opportunities",
		"https://projects.worldbank.org/en/projects-operations/procurement",
		"https://www.worldbank.org/en/programs/trust-funds-and-programs",
		"https://www.worldbank.org/en/topic/indigenouspeoples",
		"https://www.worldbank.org/en/topic/rural-development",
	}
)

// extractSchema is the JSON schema sent with every job. One schema for all
// pages keeps the mapping code in one place.
var extractSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"opportunities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":                map[string]any{"type": "string"},
					"program_name":         map[string]any{"type": "string"},
					"initiative_name":      map[string]any{"type": "string"},
					"description":          map[string]any{"type": "string"},
					"funding_amount":       map[string]any{"type": "string"},
					"deadline":             map[string]any{"type": "string"},
					"geographic_focus":     map[string]any{"type": "string"},
					"sector":               map[string]any{"type": "string"},
					"eligibility_criteria": map[string]any{"type": "string"},
					"application_link":     map[string]any{"type": "string"},
					"contact_information":  map[string]any{"type": "string"},
				},
			},
		},
	},
}

type extractRequest struct {
	URLs   []string       `json:"urls"`
	Prompt string         `json:"prompt"`
	Schema map[string]any `json:"schema"`
}

type extractResponse struct {
	Success bool         `json:"success"`
	ID      string       `json:"id"`
	Status  string       `json:"status"`
	Error   string       `json:"error"`
	Data    *extractData `json:"data"`
}

type extractData struct {
	Opportunities []extractedItem `json:"opportunities"`
}

type extractedItem struct {
	Title               string `json:"title"`
	ProgramName         string `json:"program_name"`
	InitiativeName      string `json:"initiative_name"`
	Description         string `json:"description"`
	FundingAmount       string `json:"funding_amount"`
	Deadline            string `json:"deadline"`
	GeographicFocus     string `json:"geographic_focus"`
	Sector              string `json:"sector"`
	EligibilityCriteria string `json:"eligibility_criteria"`
	ApplicationLink     string `json:"application_link"`
	ContactInformation  string `json:"contact_information"`
}

// title returns the first non-empty name field.
func (it extractedItem) title() string {
	for _, s := range []string{it.Title, it.ProgramName, it.InitiativeName} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ExtractCollector collects opportunities through the Firecrawl extract API.
// Each target page is one extraction job: the job is submitted, then polled
// until it completes.
type ExtractCollector struct {
	common
	name         string
	fetcher      *Fetcher
	baseURL      string
	apiKey       string
	organization string
	programType  string
	prompt       string
	urls         []string
	pollInterval time.Duration
	maxPolls     int
}

// ExtractConfig describes one extraction source.
type ExtractConfig struct {
	// BaseURL is the API root, e.g. https://api.firecrawl.dev.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Organization is set on every record of the source.
	Organization string

	// ProgramType is set on every record of the source.
	ProgramType string

	// Prompt replaces DefaultExtractPrompt when set.
	Prompt string

	// URLs are the pages to extract from.
	URLs []string

	// PollInterval and MaxPolls bound the wait for one job.
	PollInterval time.Duration
	MaxPolls     int
}

// NewExtractCollector creates an extraction adapter.
func NewExtractCollector(name string, fetcher *Fetcher, cfg ExtractConfig, opts ...Option) *ExtractCollector {
	c := &ExtractCollector{
		common:       newCommon(opts),
		name:         name,
		fetcher:      fetcher,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		organization: cfg.Organization,
		programType:  cfg.ProgramType,
		prompt:       cfg.Prompt,
		urls:         append([]string(nil), cfg.URLs...),
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
	}
	if c.prompt == "" {
		c.prompt = DefaultExtractPrompt
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.maxPolls <= 0 {
		c.maxPolls = defaultMaxPolls
	}
	return c
}

// Name implements Collector.
func (c *ExtractCollector) Name() string { return c.name }

// Collect implements Collector. A page whose job fails is logged and
// skipped; Collect fails only when every page failed.
func (c *ExtractCollector) Collect(ctx context.Context) ([]*model.Opportunity, error) {
	var (
		out  []*model.Opportunity
		errs []error
	)

	for _, page := range c.urls {
		items, err := c.extract(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("extraction failed", "source", c.name, "url", page, "error", err)
			errs = append(errs, err)
			continue
		}

		for _, item := range items {
			if opp := c.toOpportunity(item, page); opp != nil {
				out = append(out, opp)
			}
		}
	}

	if len(errs) == len(c.urls) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// extract runs one job to completion and returns its items.
func (c *ExtractCollector) extract(ctx context.Context, page string) ([]extractedItem, error) {
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var submitted extractResponse
	req := extractRequest{URLs: []string{page}, Prompt: c.prompt, Schema: extractSchema}
	if err := c.fetcher.DoJSON(ctx, http.MethodPost, c.baseURL+"/v1/extract", headers, req, &submitted); err != nil {
		return nil, fmt.Errorf("submit extraction: %w", err)
	}
	if !submitted.Success {
		return nil, fmt.Errorf("%w: %s", ErrExtractFailed, submitted.Error)
	}

	// Some deployments answer synchronously.
	if submitted.Data != nil && (submitted.Status == "" || submitted.Status == extractCompleted) {
		return submitted.Data.Opportunities, nil
	}
	if submitted.ID == "" {
		return nil, fmt.Errorf("%w: no job id returned", ErrExtractFailed)
	}

	statusURL := c.baseURL + "/v1/extract/" + submitted.ID
	for range c.maxPolls {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		var job extractResponse
		if err := c.fetcher.DoJSON(ctx, http.MethodGet, statusURL, headers, nil, &job); err != nil {
			return nil, fmt.Errorf("poll extraction: %w", err)
		}

		switch job.Status {
		case extractCompleted:
			if job.Data == nil {
				return nil, nil
			}
			return job.Data.Opportunities, nil
		case extractFailed, extractCancelled:
			return nil, fmt.Errorf("%w: %s %s", ErrExtractFailed, job.Status, job.Error)
		case extractProcessing, "":
			continue
		default:
			c.logger.Debug("unexpected extraction status", "source", c.name, "status", job.Status)
		}
	}
	return nil, fmt.Errorf("%w after %d polls", ErrExtractTimeout, c.maxPolls)
}

// toOpportunity maps one extracted item, or returns nil when it has no name.
func (c *ExtractCollector) toOpportunity(item extractedItem, page string) *model.Opportunity {
	title := item.title()
	if title == "" {
		return nil
	}

	status := model.StatusUnknown
	if strings.TrimSpace(item.Deadline) != "" {
		status = model.StatusActive
	}

	link := strings.TrimSpace(item.ApplicationLink)
	if link == "" {
		link = page
	} else if !model.HasURLScheme(link) {
		link = ResolveURL(page, link)
	}

	contact := strings.TrimSpace(item.ContactInformation)
	if emails := ExtractEmails(contact); len(emails) > 0 {
		contact = strings.Join(emails, ", ")
	}

	opp := &model.Opportunity{
		Title:               HTMLToText(title),
		Organization:        c.organization,
		Description:         HTMLToText(item.Description),
		FundingAmount:       item.FundingAmount,
		Deadline:            item.Deadline,
		AnnouncementDate:    c.stamp(),
		GeographicFocus:     item.GeographicFocus,
		Sector:              item.Sector,
		EligibilityCriteria: HTMLToText(item.EligibilityCriteria),
		Status:              status,
		ApplicationLink:     link,
		SourceURL:           page,
		Source:              c.name,
		ProgramType:         c.programType,
		ContactInfo:         contact,
	}
	opp.Normalize()
	return opp
}
