package model

import (
	"fmt"
	"strings"
)

// PriorityLevel is the review priority derived from a relevance score.
//
// Design decision: iota constants order the levels so that comparisons
// (p >= PriorityHigh) read naturally. String() gives the stored form.
type PriorityLevel int

const (
	// PriorityMinimal is assigned to scores below 1.5.
	PriorityMinimal PriorityLevel = iota

	// PriorityLow is assigned to scores in [1.5, 3.0).
	PriorityLow

	// PriorityMedium is assigned to scores in [3.0, 4.5).
	PriorityMedium

	// PriorityHigh is assigned to scores in [4.5, 6.0).
	PriorityHigh

	// PriorityCritical is assigned to scores of 6.0 and above.
	PriorityCritical
)

// Score bands for PriorityFromScore.
const (
	criticalBand = 6.0
	highBand     = 4.5
	mediumBand   = 3.0
	lowBand      = 1.5
)

// PriorityFromScore maps a relevance score onto its priority band.
func PriorityFromScore(score float64) PriorityLevel {
	switch {
	case score >= criticalBand:
		return PriorityCritical
	case score >= highBand:
		return PriorityHigh
	case score >= mediumBand:
		return PriorityMedium
	case score >= lowBand:
		return PriorityLow
	default:
		return PriorityMinimal
	}
}

// String returns the upper-case name of the level.
func (p PriorityLevel) String() string {
	switch p {
	case PriorityMinimal:
		return "MINIMAL"
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParsePriorityLevel parses the output of String, case-insensitively.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MINIMAL":
		return PriorityMinimal, nil
	case "LOW":
		return PriorityLow, nil
	case "MEDIUM":
		return PriorityMedium, nil
	case "HIGH":
		return PriorityHigh, nil
	case "CRITICAL":
		return PriorityCritical, nil
	default:
		return PriorityMinimal, fmt.Errorf("unknown priority level %q", s)
	}
}

// MarshalText encodes the level by name so reports stay readable.
func (p PriorityLevel) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a level written by MarshalText.
func (p *PriorityLevel) UnmarshalText(text []byte) error {
	level, err := ParsePriorityLevel(string(text))
	if err != nil {
		return err
	}
	*p = level
	return nil
}

// Status is the publication state of an opportunity.
type Status string

// Known statuses.
const (
	StatusOpen    Status = "Open"
	StatusActive  Status = "Active"
	StatusClosed  Status = "Closed"
	StatusUnknown Status = "Unknown"
)

// ParseStatus maps free text onto a known Status. Anything unrecognized
// becomes StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "posted", "abierto", "abierta", "vigente":
		return StatusOpen
	case "active", "activo", "activa", "forecasted":
		return StatusActive
	case "closed", "cerrado", "cerrada", "archived":
		return StatusClosed
	default:
		return StatusUnknown
	}
}
