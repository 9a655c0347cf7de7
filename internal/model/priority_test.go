package model

import (
	"encoding/json"
	"testing"
)

// TestPriorityLevelString tests the String method of PriorityLevel.
func TestPriorityLevelString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		level    PriorityLevel
		expected string
	}{
		{PriorityMinimal, "MINIMAL"},
		{PriorityLow, "LOW"},
		{PriorityMedium, "MEDIUM"},
		{PriorityHigh, "HIGH"},
		{PriorityCritical, "CRITICAL"},
		{PriorityLevel(999), "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.level.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.level.String(), tc.expected)
			}
		})
	}
}

// TestPriorityFromScore checks the band edges.
func TestPriorityFromScore(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		score    float64
		expected PriorityLevel
	}{
		{-12.5, PriorityMinimal},
		{0, PriorityMinimal},
		{1.49, PriorityMinimal},
		{1.5, PriorityLow},
		{2.99, PriorityLow},
		{3.0, PriorityMedium},
		{4.49, PriorityMedium},
		{4.5, PriorityHigh},
		{5.99, PriorityHigh},
		{6.0, PriorityCritical},
		{42, PriorityCritical},
	}

	for _, tc := range testCases {
		if got := PriorityFromScore(tc.score); got != tc.expected {
			t.Errorf("PriorityFromScore(%v) = %s, expected %s", tc.score, got, tc.expected)
		}
	}
}

func TestParsePriorityLevel(t *testing.T) {
	t.Parallel()

	t.Run("round trips every level", func(t *testing.T) {
		t.Parallel()
		for _, level := range []PriorityLevel{PriorityMinimal, PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
			got, err := ParsePriorityLevel(level.String())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != level {
				t.Errorf("got %s, expected %s", got, level)
			}
		}
	})

	t.Run("accepts lower case", func(t *testing.T) {
		t.Parallel()
		got, err := ParsePriorityLevel(" high ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != PriorityHigh {
			t.Errorf("got %s, expected HIGH", got)
		}
	})

	t.Run("rejects unknown", func(t *testing.T) {
		t.Parallel()
		if _, err := ParsePriorityLevel("urgent"); err == nil {
			t.Error("expected error for unknown level")
		}
	})
}

func TestPriorityLevelJSON(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Level PriorityLevel `json:"level"`
	}

	data, err := json.Marshal(wrapper{Level: PriorityCritical})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"level":"CRITICAL"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var decoded wrapper
	if err := json.Unmarshal([]byte(`{"level":"LOW"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Level != PriorityLow {
		t.Errorf("got %s, expected LOW", decoded.Level)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected Status
	}{
		{"Open", StatusOpen},
		{"posted", StatusOpen},
		{"Vigente", StatusOpen},
		{"ACTIVE", StatusActive},
		{"closed", StatusClosed},
		{"Cerrado", StatusClosed},
		{"", StatusUnknown},
		{"tbd", StatusUnknown},
	}

	for _, tc := range testCases {
		if got := ParseStatus(tc.input); got != tc.expected {
			t.Errorf("ParseStatus(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}
