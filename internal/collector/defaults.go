package collector

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/grantscan/internal/config"
)

// Built-in source identifiers.
const (
	SourcePeruGov      = "peru_gov"
	SourcePeruPrograms = "peru_programs"
	SourceGrantsGov    = "grants_gov"
	SourceUNDP         = "undp"
	SourceWorldBank    = "worldbank"
	SourceIDB          = "idb"
)

// NewDefaultRegistry registers the built-in sources configured by cfg.
//
// Sources disabled in the config file are skipped. The extraction sources
// (undp, worldbank) need a Firecrawl API key and are skipped without one.
// Every collector gets its own Fetcher, so request spacing is per source.
func NewDefaultRegistry(cfg *config.Config, client *http.Client, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	reg := NewRegistry()
	opts := []Option{WithLogger(logger)}

	sourceConfig := func(name string) config.SourceConfig {
		if cfg.SourceConfigs == nil {
			return config.SourceConfig{}
		}
		return cfg.SourceConfigs.GetSourceConfig(name)
	}

	fetcherFor := func(name string) (*Fetcher, config.SourceConfig, error) {
		sc := sourceConfig(name)
		delay, err := sc.Delay(cfg.RequestDelay)
		if err != nil {
			return nil, sc, fmt.Errorf("source %s: %w", name, err)
		}
		f := NewFetcher(
			WithHeaders(client, sc.Cookie, sc.Headers),
			WithDelay(delay),
			WithUserAgent(cfg.UserAgent),
			WithMaxBodySize(cfg.MaxBodySize),
		)
		return f, sc, nil
	}

	builders := []struct {
		name  string
		build func() (Collector, error)
	}{
		{SourcePeruGov, func() (Collector, error) {
			f, sc, err := fetcherFor(SourcePeruGov)
			if err != nil {
				return nil, err
			}
			return NewPortalCollector(SourcePeruGov, f, sc.URLs, opts...), nil
		}},
		{SourcePeruPrograms, func() (Collector, error) {
			return NewKnownProgramsCollector(SourcePeruPrograms, nil, opts...), nil
		}},
		{SourceGrantsGov, func() (Collector, error) {
			f, sc, err := fetcherFor(SourceGrantsGov)
			if err != nil {
				return nil, err
			}
			var grantsOpts []GrantsOption
			if len(sc.URLs) > 0 {
				grantsOpts = append(grantsOpts, WithSearchURL(sc.URLs[0]))
			}
			grantsOpts = append(grantsOpts, WithKeywords(sc.Keywords))
			return NewGrantsSearchCollector(SourceGrantsGov, f, grantsOpts, opts...), nil
		}},
		{SourceUNDP, func() (Collector, error) {
			return extractSource(cfg, SourceUNDP, "United Nations Development Programme (UNDP)", "UNDP Program", DefaultUNDPURLs, fetcherFor, logger, opts)
		}},
		{SourceWorldBank, func() (Collector, error) {
			return extractSource(cfg, SourceWorldBank, "World Bank Group", "World Bank Program", DefaultWorldBankURLs, fetcherFor, logger, opts)
		}},
		{SourceIDB, func() (Collector, error) {
			f, sc, err := fetcherFor(SourceIDB)
			if err != nil {
				return nil, err
			}
			urls := sc.URLs
			if len(urls) == 0 {
				urls = DefaultIDBFeeds
			}
			return NewFeedCollector(SourceIDB, f, FeedConfig{
				URLs:            urls,
				Organization:    "Inter-American Development Bank (IDB)",
				GeographicFocus: "Latin America and the Caribbean",
				ProgramType:     "IDB Program",
				Keywords:        sc.Keywords,
			}, opts...), nil
		}},
	}

	for _, b := range builders {
		if !sourceConfig(b.name).IsEnabled() {
			logger.Debug("source disabled by configuration", "source", b.name)
			continue
		}
		c, err := b.build()
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// extractSource builds an extraction collector, or returns nil when no API
// key is configured.
func extractSource(
	cfg *config.Config,
	name, organization, programType string,
	defaults []string,
	fetcherFor func(string) (*Fetcher, config.SourceConfig, error),
	logger *slog.Logger,
	opts []Option,
) (Collector, error) {
	if cfg.Credentials.FirecrawlAPIKey == "" {
		logger.Info("extraction source needs an API key", "source", name, "env", config.EnvFirecrawlAPIKey)
		return nil, nil
	}

	f, sc, err := fetcherFor(name)
	if err != nil {
		return nil, err
	}
	urls := sc.URLs
	if len(urls) == 0 {
		urls = defaults
	}
	return NewExtractCollector(name, f, ExtractConfig{
		BaseURL:      cfg.FirecrawlURL,
		APIKey:       cfg.Credentials.FirecrawlAPIKey,
		Organization: organization,
		ProgramType:  programType,
		Prompt:       sc.Prompt,
		URLs:         urls,
	}, opts...), nil
}
