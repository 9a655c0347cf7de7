package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/grantscan/internal/collector"
	"github.com/nao1215/grantscan/internal/config"
)

// TestSourcesCmd lists sources with and without the extraction API key.
// It modifies the process environment and therefore does not run in parallel.
func TestSourcesCmd(t *testing.T) {
	configPath := writeConfigFile(t, `
sources:
  worldbank:
    enabled: false
`)
	envPath := filepath.Join(t.TempDir(), "missing.env")

	run := func(t *testing.T) string {
		t.Helper()

		var out bytes.Buffer
		cmd := NewSourcesCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs([]string{"--config", configPath, "--env-file", envPath})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return out.String()
	}

	t.Run("without api key", func(t *testing.T) {
		t.Setenv(config.EnvFirecrawlAPIKey, "")

		out := run(t)
		if !strings.Contains(out, "Sources (4 registered):") {
			t.Errorf("expected 4 registered sources, got:\n%s", out)
		}
		if !sourceLineHas(out, collector.SourceUNDP, sourceNeedsAPIKey) {
			t.Errorf("expected undp to need the API key, got:\n%s", out)
		}
		if !sourceLineHas(out, collector.SourceWorldBank, sourceDisabled) {
			t.Errorf("expected worldbank to be disabled, got:\n%s", out)
		}
		if !sourceLineHas(out, collector.SourcePeruPrograms, sourceEnabled) {
			t.Errorf("expected peru_programs to be enabled, got:\n%s", out)
		}
	})

	t.Run("with api key", func(t *testing.T) {
		t.Setenv(config.EnvFirecrawlAPIKey, "fc-test")

		out := run(t)
		if !strings.Contains(out, "Sources (5 registered):") {
			t.Errorf("expected 5 registered sources, got:\n%s", out)
		}
		if !sourceLineHas(out, collector.SourceUNDP, sourceEnabled) {
			t.Errorf("expected undp to be enabled, got:\n%s", out)
		}
	})
}

// sourceLineHas reports whether the row of name shows status.
func sourceLineHas(out, name, status string) bool {
	for line := range strings.SplitSeq(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == name {
			return strings.Contains(line, status)
		}
	}
	return false
}

func TestSourceAvailability(t *testing.T) {
	t.Parallel()

	disabled := false
	file := &config.File{
		Sources: map[string]config.SourceConfig{
			collector.SourceIDB: {Enabled: &disabled},
		},
	}

	tests := []struct {
		name       string
		source     string
		file       *config.File
		firecrawl  string
		registered []string
		want       string
	}{
		{"registered", collector.SourceIDB, nil, "", []string{collector.SourceIDB}, sourceEnabled},
		{"disabled in file", collector.SourceIDB, file, "", nil, sourceDisabled},
		{"extraction without key", collector.SourceUNDP, nil, "", nil, sourceNeedsAPIKey},
		{"extraction with key but not registered", collector.SourceWorldBank, nil, "fc-key", nil, sourceNotAvailable},
		{"not registered", collector.SourceGrantsGov, nil, "", nil, sourceNotAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			cfg.SourceConfigs = tt.file
			cfg.Credentials.FirecrawlAPIKey = tt.firecrawl

			if got := sourceAvailability(cfg, tt.registered, tt.source); got != tt.want {
				t.Errorf("sourceAvailability() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuiltinSourcesMatchRegistry(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Credentials.FirecrawlAPIKey = "fc-key"

	registry, err := collector.NewDefaultRegistry(cfg, nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := registry.Names()
	if len(names) != len(builtinSources) {
		t.Fatalf("expected %d sources, registry has %v", len(builtinSources), names)
	}
	for i, s := range builtinSources {
		if names[i] != s.name {
			t.Errorf("source %d: expected %q, got %q", i, s.name, names[i])
		}
	}
}

func TestNewSourcesCmdRejectsArgs(t *testing.T) {
	t.Parallel()

	cmd := NewSourcesCmd()
	if err := cmd.Args(cmd, []string{"extra"}); err == nil {
		t.Error("expected an error for extra arguments")
	}
}
