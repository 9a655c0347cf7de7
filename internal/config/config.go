package config

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultThreshold is the minimum relevance score a record needs to be kept.
	DefaultThreshold = 3.0

	// DefaultConcurrency of 2 keeps the number of simultaneous sites low.
	// Most sources are public portals that throttle aggressive clients.
	DefaultConcurrency = 2

	// DefaultRetryAttempts is the number of attempts per source, first one included.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the fixed wait between two attempts of the same source.
	DefaultRetryDelay = 5 * time.Second

	// DefaultMaxPerSource caps the ranked output at this many records per
	// scheduled source. 0 disables the cap.
	DefaultMaxPerSource = 50

	// DefaultRequestTimeout bounds every single HTTP request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRequestDelay is the minimum spacing between two requests of one
	// collector. It is a politeness setting.
	DefaultRequestDelay = 2 * time.Second

	// DefaultMaxBodySize limits the response body read from any source.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// AppName is the application name used for XDG directory paths.
	AppName = "grantscan"

	// DefaultUserAgent identifies grantscan in HTTP requests.
	DefaultUserAgent = "grantscan/1.0 (+https://github.com/nao1215/grantscan)"

	// DefaultAirtableURL is the Airtable REST API root.
	DefaultAirtableURL = "https://api.airtable.com/v0"

	// DefaultFirecrawlURL is the Firecrawl API root.
	DefaultFirecrawlURL = "https://api.firecrawl.dev"

	// DefaultAirtableTable is used when AIRTABLE_TABLE_NAME is not set.
	DefaultAirtableTable = "Grants"
)

// SinkKind selects where ranked opportunities are persisted.
type SinkKind string

const (
	// SinkStore persists into the local database (SQLite or PostgreSQL).
	SinkStore SinkKind = "store"

	// SinkAirtable persists into an Airtable base.
	SinkAirtable SinkKind = "airtable"
)

// Credentials holds secrets read from the environment. They are never
// written to reports or logs.
type Credentials struct {
	AirtableAPIKey    string
	AirtableBaseID    string
	AirtableTableName string
	FirecrawlAPIKey   string
}

// Config holds all configuration options for grantscan.
// This struct is populated from defaults, the config file, the environment
// and CLI flags (in that order of precedence, last wins) and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. Per-source settings are the exception: they live in the
// config file and are reached through SourceConfigs.
type Config struct {
	// Threshold is the minimum relevance score for a record to be retained.
	// Sources may override it in the config file.
	Threshold float64

	// Concurrency is the maximum number of collectors running at once.
	Concurrency int

	// RetryAttempts is the number of attempts per source, including the first.
	RetryAttempts int

	// RetryDelay is the fixed wait between attempts of the same source.
	RetryDelay time.Duration

	// MaxPerSource caps the ranked output at MaxPerSource x scheduled sources.
	// 0 means unlimited.
	MaxPerSource int

	// EnablePersistence upserts the ranked records into the selected sink.
	EnablePersistence bool

	// EnableDeduplication removes near-duplicate titles before filtering.
	EnableDeduplication bool

	// Sources is the subset of registered sources to run. Empty means all.
	Sources []string

	// RequestTimeout bounds every single HTTP request.
	RequestTimeout time.Duration

	// RequestDelay is the minimum spacing between requests of one collector.
	RequestDelay time.Duration

	// SessionTimeout bounds a whole scan. 0 means no deadline.
	SessionTimeout time.Duration

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	// When empty, requests go out directly.
	ProxyAddress string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON selects the JSON log handler instead of the text handler.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .grantscan in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// EnvFilePath is the path of the .env file holding credentials.
	EnvFilePath string

	// SourceConfigs holds per-source configuration loaded from the config file.
	// It is nil when no file was found.
	SourceConfigs *File

	// JSONReport selects the JSON report format. Mutually exclusive with
	// MarkdownReport. The console summary is always printed.
	JSONReport bool

	// MarkdownReport selects the Markdown report format.
	MarkdownReport bool

	// OutputDir is the directory report files are written to.
	OutputDir string

	// Sink selects the persistence target.
	Sink SinkKind

	// StoreDSN selects the database. Empty means SQLite under DBDir; a
	// postgres:// URL selects PostgreSQL.
	StoreDSN string

	// DBDir is the directory holding the SQLite database.
	DBDir string

	// AirtableURL and FirecrawlURL are the API roots. Tests point them at
	// local servers.
	AirtableURL  string
	FirecrawlURL string

	// Credentials are read from the environment by CredentialsFromEnv.
	Credentials Credentials
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (threshold, retries,
// persistence on). This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Threshold:           DefaultThreshold,
		Concurrency:         DefaultConcurrency,
		RetryAttempts:       DefaultRetryAttempts,
		RetryDelay:          DefaultRetryDelay,
		MaxPerSource:        DefaultMaxPerSource,
		EnablePersistence:   true,
		EnableDeduplication: true,
		RequestTimeout:      DefaultRequestTimeout,
		RequestDelay:        DefaultRequestDelay,
		UserAgent:           DefaultUserAgent,
		MaxBodySize:         DefaultMaxBodySize,
		EnvFilePath:         DefaultEnvFile,
		OutputDir:           XDGReportDir(),
		Sink:                SinkStore,
		DBDir:               XDGDataDir(),
		AirtableURL:         DefaultAirtableURL,
		FirecrawlURL:        DefaultFirecrawlURL,
	}
}

// XDGDataDir returns the XDG data directory for grantscan.
// On Linux: ~/.local/share/grantscan
// On macOS: ~/Library/Application Support/grantscan
// On Windows: %LOCALAPPDATA%\grantscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGReportDir returns the default directory for report files.
func XDGReportDir() string {
	return filepath.Join(XDGDataDir(), "reports")
}

// XDGConfigDir returns the XDG config directory for grantscan.
// On Linux: ~/.config/grantscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for grantscan.
// On Linux: ~/.cache/grantscan
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// SourceThreshold returns the threshold for a source: the config file
// override when present, otherwise the global Threshold.
func (c *Config) SourceThreshold(name string) float64 {
	if c.SourceConfigs != nil {
		if t := c.SourceConfigs.GetSourceConfig(name).Threshold; t != nil {
			return *t
		}
	}
	return c.Threshold
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after flags, file and environment are merged, before
// any source is contacted. The first error found is returned.
func (c *Config) Validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return ErrInvalidThreshold
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.RetryAttempts < 1 {
		return ErrInvalidRetryAttempts
	}

	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}

	if c.MaxPerSource < 0 {
		return ErrInvalidMaxPerSource
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RequestDelay < 0 {
		return ErrInvalidRequestDelay
	}

	if c.SessionTimeout < 0 {
		return ErrInvalidSessionTimeout
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	switch c.Sink {
	case SinkStore:
	case SinkAirtable:
		if c.EnablePersistence {
			if err := c.Credentials.validateAirtable(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSink, c.Sink)
	}

	return nil
}

// validateAirtable reports the first missing Airtable credential.
func (c Credentials) validateAirtable() error {
	if c.AirtableAPIKey == "" {
		return fmt.Errorf("%w: %s", ErrMissingCredential, EnvAirtableAPIKey)
	}
	if c.AirtableBaseID == "" {
		return fmt.Errorf("%w: %s", ErrMissingCredential, EnvAirtableBaseID)
	}
	return nil
}
