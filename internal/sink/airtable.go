package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/grantscan/internal/config"
)

// DefaultAirtableRate is the Airtable per-base request limit.
const DefaultAirtableRate = 5

// maxAirtableResponse bounds the body read from Airtable.
const maxAirtableResponse = 10 * 1024 * 1024

// ErrAirtable is wrapped by every non-2xx Airtable response.
var ErrAirtable = errors.New("airtable request failed")

// AirtableConfig locates a table.
type AirtableConfig struct {
	// BaseURL is the API root, config.DefaultAirtableURL when empty.
	BaseURL string

	// APIKey is the personal access token.
	APIKey string

	// BaseID and Table identify the table. Table defaults to
	// config.DefaultAirtableTable.
	BaseID string
	Table  string
}

// AirtableSink stores records in an Airtable table.
type AirtableSink struct {
	client   *http.Client
	limiter  *rate.Limiter
	endpoint string
	apiKey   string
	logger   *slog.Logger
}

// AirtableOption configures an AirtableSink.
type AirtableOption func(*AirtableSink)

// WithAirtableClient sets the HTTP client.
func WithAirtableClient(client *http.Client) AirtableOption {
	return func(s *AirtableSink) {
		if client != nil {
			s.client = client
		}
	}
}

// WithAirtableLogger sets the logger.
func WithAirtableLogger(logger *slog.Logger) AirtableOption {
	return func(s *AirtableSink) {
		s.logger = logger
	}
}

// WithRateLimit sets the maximum request rate. rate.Inf disables limiting.
func WithRateLimit(limit rate.Limit) AirtableOption {
	return func(s *AirtableSink) {
		s.limiter = rate.NewLimiter(limit, 1)
	}
}

// NewAirtableSink creates a sink for the configured table. A missing key or
// base ID is a configuration error wrapping config.ErrMissingCredential.
func NewAirtableSink(cfg AirtableConfig, opts ...AirtableOption) (*AirtableSink, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", config.ErrMissingCredential, config.EnvAirtableAPIKey)
	}
	if cfg.BaseID == "" {
		return nil, fmt.Errorf("%w: %s", config.ErrMissingCredential, config.EnvAirtableBaseID)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = config.DefaultAirtableURL
	}
	table := cfg.Table
	if table == "" {
		table = config.DefaultAirtableTable
	}

	s := &AirtableSink{
		client:   &http.Client{Timeout: config.DefaultRequestTimeout},
		limiter:  rate.NewLimiter(DefaultAirtableRate, 1),
		endpoint: base + "/" + url.PathEscape(cfg.BaseID) + "/" + url.PathEscape(table),
		apiKey:   cfg.APIKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

type airtableRecord struct {
	ID     string `json:"id,omitempty"`
	Fields Record `json:"fields"`
}

type airtableList struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset"`
}

type airtableWrite struct {
	Fields   Record `json:"fields"`
	Typecast bool   `json:"typecast"`
}

type airtableError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Upsert looks the key up with a filter formula, then patches the match or
// creates a new row.
func (s *AirtableSink) Upsert(ctx context.Context, r Record) (Action, error) {
	id, err := s.find(ctx, r)
	if err != nil {
		return ActionCreated, err
	}

	body := airtableWrite{Fields: r, Typecast: true}
	if id == "" {
		if err := s.do(ctx, http.MethodPost, s.endpoint, body, nil); err != nil {
			return ActionCreated, err
		}
		return ActionCreated, nil
	}

	if err := s.do(ctx, http.MethodPatch, s.endpoint+"/"+url.PathEscape(id), body, nil); err != nil {
		return ActionUpdated, err
	}
	return ActionUpdated, nil
}

// ReadAll pages through the whole table.
func (s *AirtableSink) ReadAll(ctx context.Context) ([]Record, error) {
	records := make([]Record, 0)
	offset := ""
	for {
		q := url.Values{}
		q.Set("pageSize", "100")
		if offset != "" {
			q.Set("offset", offset)
		}

		var page airtableList
		if err := s.do(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, rec := range page.Records {
			records = append(records, rec.Fields)
		}
		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}

// find returns the row ID holding r's key, or "" when there is none.
func (s *AirtableSink) find(ctx context.Context, r Record) (string, error) {
	q := url.Values{}
	q.Set("maxRecords", "1")
	q.Set("filterByFormula", keyFormula(r))

	var page airtableList
	if err := s.do(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil, &page); err != nil {
		return "", err
	}
	if len(page.Records) == 0 {
		return "", nil
	}
	return page.Records[0].ID, nil
}

// keyFormula builds the filterByFormula expression matching r.Key().
func keyFormula(r Record) string {
	if link := strings.TrimSpace(r.ApplicationLink); link != "" {
		return fmt.Sprintf("{Application Link} = '%s'", escapeFormula(link))
	}
	return fmt.Sprintf("LOWER(TRIM({Grant Name})) = '%s'", escapeFormula(r.Key()))
}

// escapeFormula escapes a string literal for an Airtable formula.
func escapeFormula(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// do sends one rate-limited JSON request.
func (s *AirtableSink) do(ctx context.Context, method, target string, in, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("airtable %s: %w", method, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAirtableResponse))
	if err != nil {
		return fmt.Errorf("failed to read airtable response: %w", err)
	}
	s.logger.Debug("airtable request",
		"method", method,
		"status", resp.StatusCode,
		"elapsed", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr airtableError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%w: %s %d %s: %s", ErrAirtable, method, resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return fmt.Errorf("%w: %s %d", ErrAirtable, method, resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode airtable response: %w", err)
	}
	return nil
}
