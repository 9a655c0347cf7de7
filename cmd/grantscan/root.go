package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for grantscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grantscan",
		Short: "Funding opportunity aggregator for rural and indigenous development",
		Long: `grantscan collects funding opportunities from government portals,
multilateral banks and grant search engines, scores each one for relevance
to rural and indigenous community development in Peru, removes
near-duplicates and keeps the best ranked opportunities.

Sources run concurrently with retries. A failing source never stops the
session: its error is recorded in the session report and the other
sources are still collected.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON instead of text")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewSourcesCmd())
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getPersistentBool reads a global boolean flag. Subcommands executed on
// their own (as in tests) do not inherit the root flags and report false.
func getPersistentBool(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		value, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return value
}
