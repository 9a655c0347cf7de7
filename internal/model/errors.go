package model

import "fmt"

// ValidationError reports a record that fails basic shape checks.
// Such records are dropped by the pipeline; they are expected noise in
// scraped data and never surface as session errors.
type ValidationError struct {
	// Field is the offending attribute.
	Field string

	// Reason describes the violated rule.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid opportunity: %s %s", e.Field, e.Reason)
}
