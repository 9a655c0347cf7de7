package pipeline

import (
	"errors"
	"fmt"
)

// ErrConfiguration is returned by Run when the session cannot start.
var ErrConfiguration = errors.New("invalid session configuration")

// ErrSessionCancelled is recorded in the report of a cancelled session.
var ErrSessionCancelled = errors.New("session cancelled")

// CollectionError is the final failure of one source after its retries.
type CollectionError struct {
	// Source is the collector name.
	Source string

	// Attempts is the number of attempts made.
	Attempts int

	// Err is the error of the last attempt.
	Err error
}

// Error returns the message stored in the session report.
func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CollectionError) Unwrap() error {
	return e.Err
}
