package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and by the loaders. Each of
// them is a configuration error: the command that hits one exits before any
// source is contacted.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Errors that need to name a field or variable wrap
// the sentinel with fmt.Errorf("%w").
var (
	// ErrInvalidThreshold is returned when the relevance threshold is NaN or infinite.
	ErrInvalidThreshold = errors.New("invalid relevance threshold: must be a finite number")

	// ErrInvalidConcurrency is returned when the collector concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRetryAttempts is returned when fewer than one attempt is configured.
	// One attempt means no retry; zero would mean never contacting the source.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts: must be at least 1")

	// ErrInvalidRetryDelay is returned when the retry delay is negative.
	ErrInvalidRetryDelay = errors.New("invalid retry delay: must be non-negative")

	// ErrInvalidMaxPerSource is returned when the per-source cap is negative.
	// Use 0 for no cap.
	ErrInvalidMaxPerSource = errors.New("invalid max opportunities per source: must be non-negative")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid request timeout: must be positive")

	// ErrInvalidSessionTimeout is returned when the session timeout is negative.
	// Use 0 for no session deadline.
	ErrInvalidSessionTimeout = errors.New("invalid session timeout: must be non-negative")

	// ErrInvalidRequestDelay is returned when the request delay is negative.
	ErrInvalidRequestDelay = errors.New("invalid request delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrUnknownSink is returned when the sink kind is neither "store" nor "airtable".
	ErrUnknownSink = errors.New("unknown sink: must be \"store\" or \"airtable\"")

	// ErrMissingCredential is returned when a selected integration has no credential.
	// It is wrapped with the name of the missing environment variable.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidDuration is returned when a duration in the config file cannot be parsed.
	ErrInvalidDuration = errors.New("invalid duration")
)
