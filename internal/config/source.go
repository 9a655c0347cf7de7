package config

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Settings overrides the global defaults from the config file.
// Nil or empty fields leave the current value untouched.
type Settings struct {
	Threshold           *float64 `yaml:"relevance_threshold,omitempty"`
	Concurrency         *int     `yaml:"max_concurrent_collectors,omitempty"`
	RetryAttempts       *int     `yaml:"retry_attempts,omitempty"`
	RetryDelay          string   `yaml:"retry_delay,omitempty"`
	MaxPerSource        *int     `yaml:"max_opportunities_per_source,omitempty"`
	EnablePersistence   *bool    `yaml:"enable_persistence,omitempty"`
	EnableDeduplication *bool    `yaml:"enable_deduplication,omitempty"`
	RequestTimeout      string   `yaml:"request_timeout,omitempty"`
	RequestDelay        string   `yaml:"request_delay,omitempty"`
	Sources             []string `yaml:"sources,omitempty"`
	Sink                string   `yaml:"sink,omitempty"`
	StoreDSN            string   `yaml:"store_dsn,omitempty"`
	OutputDir           string   `yaml:"output_dir,omitempty"`
	Proxy               string   `yaml:"proxy,omitempty"`
}

// SourceConfig holds configuration for a single source.
// This allows customizing collection per source without code changes.
type SourceConfig struct {
	// Enabled turns a registered source off when set to false.
	Enabled *bool `yaml:"enabled,omitempty"`

	// URLs replaces the built-in list of pages or feeds to collect from.
	URLs []string `yaml:"urls,omitempty"`

	// Keywords replaces the built-in search keywords of search sources.
	Keywords []string `yaml:"keywords,omitempty"`

	// Prompt replaces the extraction prompt of extraction sources.
	Prompt string `yaml:"prompt,omitempty"`

	// RequestDelay overrides the global request delay, e.g. "3s".
	RequestDelay string `yaml:"request_delay,omitempty"`

	// Headers are custom HTTP headers to include in requests to this source.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Cookie is an HTTP cookie to send, "name=value; name2=value2".
	Cookie string `yaml:"cookie,omitempty"`

	// Threshold overrides the global relevance threshold for records of
	// this source.
	Threshold *float64 `yaml:"threshold,omitempty"`
}

// IsEnabled reports whether the source should be registered.
// Sources are enabled unless explicitly disabled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Delay returns the configured request delay, or fallback when unset.
func (s SourceConfig) Delay(fallback time.Duration) (time.Duration, error) {
	if s.RequestDelay == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s.RequestDelay)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: request_delay %q", ErrInvalidDuration, s.RequestDelay)
	}
	return d, nil
}

// File represents the structure of the .grantscan configuration file.
type File struct {
	// Settings overrides global defaults.
	Settings Settings `yaml:"settings,omitempty"`

	// Sources maps source identifiers (e.g. "grants_gov") to their configuration.
	Sources map[string]SourceConfig `yaml:"sources,omitempty"`

	// Defaults contains source configuration applied to all sources
	// unless overridden in the source-specific configuration.
	Defaults SourceConfig `yaml:"defaults,omitempty"`
}

// GetSourceConfig returns the configuration for a specific source.
// It merges the source-specific configuration with defaults.
func (cf *File) GetSourceConfig(name string) SourceConfig {
	result := cf.Defaults
	if cf.Defaults.Headers != nil {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	sc, ok := cf.Sources[name]
	if !ok {
		return result
	}

	if sc.Enabled != nil {
		result.Enabled = sc.Enabled
	}
	if len(sc.URLs) > 0 {
		result.URLs = sc.URLs
	}
	if len(sc.Keywords) > 0 {
		result.Keywords = sc.Keywords
	}
	if sc.Prompt != "" {
		result.Prompt = sc.Prompt
	}
	if sc.RequestDelay != "" {
		result.RequestDelay = sc.RequestDelay
	}
	if sc.Cookie != "" {
		result.Cookie = sc.Cookie
	}
	if sc.Threshold != nil {
		result.Threshold = sc.Threshold
	}
	if len(sc.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range sc.Headers {
			result.Headers[k] = v
		}
	}

	return result
}

// HeaderNames returns the sorted names of every custom header in the file,
// from the defaults and from each source. Loggers mask values under these
// names.
func (cf *File) HeaderNames() []string {
	names := make(map[string]struct{})
	for name := range cf.Defaults.Headers {
		names[name] = struct{}{}
	}
	for _, sc := range cf.Sources {
		for name := range sc.Headers {
			names[name] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(names))
}

// Apply copies the file settings onto cfg. Flags explicitly set on the
// command line are applied after this and therefore win.
func (s Settings) Apply(cfg *Config) error {
	if s.Threshold != nil {
		cfg.Threshold = *s.Threshold
	}
	if s.Concurrency != nil {
		cfg.Concurrency = *s.Concurrency
	}
	if s.RetryAttempts != nil {
		cfg.RetryAttempts = *s.RetryAttempts
	}
	if s.MaxPerSource != nil {
		cfg.MaxPerSource = *s.MaxPerSource
	}
	if s.EnablePersistence != nil {
		cfg.EnablePersistence = *s.EnablePersistence
	}
	if s.EnableDeduplication != nil {
		cfg.EnableDeduplication = *s.EnableDeduplication
	}
	if len(s.Sources) > 0 {
		cfg.Sources = append([]string(nil), s.Sources...)
	}
	if s.Sink != "" {
		cfg.Sink = SinkKind(s.Sink)
	}
	if s.StoreDSN != "" {
		cfg.StoreDSN = s.StoreDSN
	}
	if s.OutputDir != "" {
		cfg.OutputDir = s.OutputDir
	}
	if s.Proxy != "" {
		cfg.ProxyAddress = s.Proxy
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"retry_delay", s.RetryDelay, &cfg.RetryDelay},
		{"request_timeout", s.RequestTimeout, &cfg.RequestTimeout},
		{"request_delay", s.RequestDelay, &cfg.RequestDelay},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%w: %s %q", ErrInvalidDuration, d.name, d.value)
		}
		*d.dst = parsed
	}

	return nil
}
