package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a source status change would break
// the collection state machine.
var ErrInvalidTransition = errors.New("invalid source state transition")

// SourceState is the collection state of one source within a session.
//
//	Pending -> Running -> Succeeded
//	                   -> FailedRetrying -> Running -> ...
//	                   -> FailedFinal
//
// Succeeded and FailedFinal are terminal.
type SourceState int

const (
	// SourcePending means the source is scheduled but has not started.
	SourcePending SourceState = iota

	// SourceRunning means an attempt is in flight.
	SourceRunning

	// SourceFailedRetrying means an attempt failed and another will follow.
	SourceFailedRetrying

	// SourceSucceeded means an attempt returned records (possibly none).
	SourceSucceeded

	// SourceFailedFinal means every attempt failed or the session was cancelled.
	SourceFailedFinal
)

// String returns the state name.
func (s SourceState) String() string {
	switch s {
	case SourcePending:
		return "pending"
	case SourceRunning:
		return "running"
	case SourceFailedRetrying:
		return "failed_retrying"
	case SourceSucceeded:
		return "succeeded"
	case SourceFailedFinal:
		return "failed_final"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s SourceState) Terminal() bool {
	return s == SourceSucceeded || s == SourceFailedFinal
}

// MarshalText encodes the state by name.
func (s SourceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state written by MarshalText.
func (s *SourceState) UnmarshalText(text []byte) error {
	for _, candidate := range []SourceState{
		SourcePending, SourceRunning, SourceFailedRetrying, SourceSucceeded, SourceFailedFinal,
	} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown source state %q", text)
}

// allowedTransitions lists the legal next states for each state.
var allowedTransitions = map[SourceState][]SourceState{
	SourcePending:        {SourceRunning, SourceFailedFinal},
	SourceRunning:        {SourceSucceeded, SourceFailedRetrying, SourceFailedFinal},
	SourceFailedRetrying: {SourceRunning, SourceFailedFinal},
}

// SourceStatus tracks one source through a session.
type SourceStatus struct {
	Name      string      `json:"name"`
	State     SourceState `json:"state"`
	Attempts  int         `json:"attempts"`
	Collected int         `json:"collected"`
	LastError string      `json:"last_error,omitempty"`

	// Elapsed is the time spent on the source, in seconds.
	Elapsed float64 `json:"elapsed"`
}

// NewSourceStatus returns a Pending status for the named source.
func NewSourceStatus(name string) SourceStatus {
	return SourceStatus{Name: name, State: SourcePending}
}

// Transition moves the status to next, counting attempts as Running is
// entered. It returns ErrInvalidTransition for moves the state machine
// does not allow, leaving the status unchanged.
func (s *SourceStatus) Transition(next SourceState) error {
	for _, allowed := range allowedTransitions[s.State] {
		if allowed == next {
			if next == SourceRunning {
				s.Attempts++
			}
			s.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, s.State, next, s.Name)
}

// SetElapsed records the time spent on the source.
func (s *SourceStatus) SetElapsed(d time.Duration) {
	s.Elapsed = d.Seconds()
}
