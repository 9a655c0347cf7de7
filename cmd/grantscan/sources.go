package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/nao1215/grantscan/internal/collector"
	"github.com/nao1215/grantscan/internal/config"
	"github.com/spf13/cobra"
)

// builtinSource describes a source compiled into grantscan.
type builtinSource struct {
	name        string
	description string
}

// builtinSources lists the built-in sources in registration order.
var builtinSources = []builtinSource{
	{collector.SourcePeruGov, "Peruvian government funding calls (gob.pe)"},
	{collector.SourcePeruPrograms, "Curated national programs for rural and indigenous communities"},
	{collector.SourceGrantsGov, "Keyword search on Grants.gov"},
	{collector.SourceUNDP, "UNDP Peru programs (extraction API)"},
	{collector.SourceWorldBank, "World Bank projects in Peru (extraction API)"},
	{collector.SourceIDB, "Inter-American Development Bank feeds"},
}

// Source availability shown by the sources command.
const (
	sourceEnabled      = "enabled"
	sourceDisabled     = "disabled"
	sourceNeedsAPIKey  = "needs " + config.EnvFirecrawlAPIKey
	sourceNotAvailable = "unavailable"
)

// NewSourcesCmd creates the sources command.
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the available sources",
		Long: `Sources lists the built-in sources and whether the next scan would run them.

A source is not run when it is disabled in the configuration file, or when it
is an extraction source and FIRECRAWL_API_KEY is not set.

Use the identifiers with 'grantscan scan --sources'.`,
		Args: cobra.NoArgs,
		RunE: runSourcesCmd,
	}

	addConfigFlags(cmd)

	return cmd
}

// runSourcesCmd executes the sources command.
func runSourcesCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadBaseConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)

	// Building the registry contacts no source; the client is never used.
	registry, err := collector.NewDefaultRegistry(cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	listSources(cmd.OutOrStdout(), cfg, registry.Names())
	return nil
}

// listSources prints every built-in source with its availability.
func listSources(out io.Writer, cfg *config.Config, registered []string) {
	fmt.Fprintf(out, "Sources (%d registered):\n\n", len(registered))
	fmt.Fprintf(out, "  %-14s  %-22s  %s\n", "Name", "Status", "Description")
	fmt.Fprintf(out, "  %-14s  %-22s  %s\n", "----", "------", "-----------")

	for _, s := range builtinSources {
		fmt.Fprintf(out, "  %-14s  %-22s  %s\n", s.name, sourceAvailability(cfg, registered, s.name), s.description)
	}

	fmt.Fprintln(out, "\nUse 'grantscan scan --sources <name,...>' to run a subset.")
}

// sourceAvailability explains why a source is or is not registered.
func sourceAvailability(cfg *config.Config, registered []string, name string) string {
	if slices.Contains(registered, name) {
		return sourceEnabled
	}
	if cfg.SourceConfigs != nil && !cfg.SourceConfigs.GetSourceConfig(name).IsEnabled() {
		return sourceDisabled
	}
	if (name == collector.SourceUNDP || name == collector.SourceWorldBank) && cfg.Credentials.FirecrawlAPIKey == "" {
		return sourceNeedsAPIKey
	}
	return sourceNotAvailable
}
