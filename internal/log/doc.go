// Package log builds the slog loggers used by grantscan and keeps
// credentials out of their output.
//
// Every attribute passes through SecureHandler before it is written. A value
// is masked when its key names a credential (Authorization, cookies, the
// Airtable and Firecrawl keys, store DSNs, or any header configured for a
// source), or when the value itself has the shape of a token. Longer values
// such as URLs and error messages keep their text; only the embedded
// password, secret query parameter or bearer token is replaced.
//
// Redact applies the same inline rules to plain strings. The collection
// orchestrator uses it for the error entries it writes into reports.
//
// # Usage
//
//	logger := log.New(os.Stderr, log.Options{
//	    Verbose: true,
//	    Keys:    []string{"X-Portal-Session"},
//	})
//	logger.Info("fetching",
//	    "url", "https://api.example.org/search?api_key=abc", // api_key=***REDACTED***
//	    "x-portal-session", "abc", // ***REDACTED***
//	)
package log
