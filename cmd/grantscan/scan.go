package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nao1215/grantscan/internal/collector"
	"github.com/nao1215/grantscan/internal/config"
	"github.com/nao1215/grantscan/internal/database"
	applog "github.com/nao1215/grantscan/internal/log"
	"github.com/nao1215/grantscan/internal/model"
	"github.com/nao1215/grantscan/internal/pipeline"
	"github.com/nao1215/grantscan/internal/report"
	"github.com/nao1215/grantscan/internal/sink"
	"github.com/spf13/cobra"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Collect, score and rank funding opportunities",
		Long: `Scan runs one collection session over the configured sources.

Every source is collected concurrently (bounded by --concurrency) and retried
on failure. The collected opportunities are then:
- Validated (records without a title or with a malformed link are dropped)
- Scored against the rural and indigenous development taxonomy
- Deduplicated by title similarity
- Filtered by the relevance threshold
- Ranked by score and capped per source

The ranked opportunities are stored in the selected sink, a summary is
printed, and the session report is written to the output directory and
saved in the session history.

Examples:
  # Run every enabled source
  grantscan scan

  # Run two sources with a lower threshold
  grantscan scan --sources grants_gov,idb --threshold 2

  # Store results in Airtable (needs AIRTABLE_API_KEY and AIRTABLE_BASE_ID)
  grantscan scan --sink airtable

  # Write a Markdown report and give up after ten minutes
  grantscan scan --markdown --session-timeout 10m

  # Use a custom configuration file
  grantscan scan -c myconfig.yaml

Configuration file (.grantscan) example:
  settings:
    relevance_threshold: 2.5
    max_concurrent_collectors: 3
  sources:
    grants_gov:
      keywords: ["Peru", "indigenous communities"]
    worldbank:
      enabled: false`,
		Args: cobra.NoArgs,
		RunE: runScanCmd,
	}

	// Session behavior flags
	cmd.Flags().Float64P("threshold", "t", config.DefaultThreshold,
		"Minimum relevance score for an opportunity to be kept")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Maximum number of sources collected at the same time")
	cmd.Flags().IntP("retries", "r", config.DefaultRetryAttempts,
		"Attempts per source, the first one included")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay,
		"Wait between two attempts of the same source")
	cmd.Flags().Int("max-per-source", config.DefaultMaxPerSource,
		"Cap the ranked output at this many records per scheduled source (0 = no cap)")
	cmd.Flags().Bool("no-dedup", false,
		"Keep opportunities with near-duplicate titles")
	cmd.Flags().StringSliceP("sources", "s", nil,
		"Sources to collect from (default: every enabled source)")
	cmd.Flags().Duration("session-timeout", 0,
		"Cancel the session after this duration (0 = no deadline)")

	// HTTP flags
	cmd.Flags().Duration("request-timeout", config.DefaultRequestTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().Duration("request-delay", config.DefaultRequestDelay,
		"Minimum spacing between two requests to the same source")
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (host:port)")

	// Persistence flags
	cmd.Flags().Bool("no-persist", false,
		"Do not store the ranked opportunities")
	cmd.Flags().String("sink", string(config.SinkStore),
		`Persistence target: "store" or "airtable"`)
	cmd.Flags().String("store-dsn", "",
		"Database for the store sink and session history (postgres:// URL or SQLite directory)")
	cmd.Flags().String("db-dir", "",
		"Directory holding the SQLite database (default: XDG data directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Write the session report as JSON (default; mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Write the session report as Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output-dir", "o", "",
		"Directory for the session report file (default: XDG data directory/reports)")

	addConfigFlags(cmd)

	return cmd
}

// addConfigFlags adds the flags that locate the config and credential files.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .grantscan in current or home directory)")
	cmd.Flags().String("env-file", config.DefaultEnvFile,
		"File with credential environment variables")
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScan(ctx, cfg, cmd.OutOrStdout(), logger)
}

// loadBaseConfig builds the configuration shared by every command that
// needs sources: defaults, then the config file, then the environment.
func loadBaseConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getPersistentBool(cmd, "verbose")
	cfg.LogJSON = getPersistentBool(cmd, "log-json")

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, silently keep the defaults.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		cfg.SourceConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := cfg.SourceConfigs.Settings.Apply(cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	cfg.EnvFilePath, err = cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, err
	}
	if err := config.LoadEnvFile(cfg.EnvFilePath); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", cfg.EnvFilePath, err)
	}
	cfg.Credentials = config.CredentialsFromEnv()

	return cfg, nil
}

// buildConfig creates the scan Config. Flags set on the command line win
// over the config file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadBaseConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("threshold") {
		if cfg.Threshold, err = flags.GetFloat64("threshold"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retries") {
		if cfg.RetryAttempts, err = flags.GetInt("retries"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retry-delay") {
		if cfg.RetryDelay, err = flags.GetDuration("retry-delay"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-per-source") {
		if cfg.MaxPerSource, err = flags.GetInt("max-per-source"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("no-dedup") {
		noDedup, err := flags.GetBool("no-dedup")
		if err != nil {
			return nil, err
		}
		cfg.EnableDeduplication = !noDedup
	}
	if flags.Changed("sources") {
		if cfg.Sources, err = flags.GetStringSlice("sources"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("session-timeout") {
		if cfg.SessionTimeout, err = flags.GetDuration("session-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("request-timeout") {
		if cfg.RequestTimeout, err = flags.GetDuration("request-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("request-delay") {
		if cfg.RequestDelay, err = flags.GetDuration("request-delay"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("no-persist") {
		noPersist, err := flags.GetBool("no-persist")
		if err != nil {
			return nil, err
		}
		cfg.EnablePersistence = !noPersist
	}
	if flags.Changed("sink") {
		sinkName, err := flags.GetString("sink")
		if err != nil {
			return nil, err
		}
		cfg.Sink = config.SinkKind(strings.ToLower(strings.TrimSpace(sinkName)))
	}
	if flags.Changed("store-dsn") {
		if cfg.StoreDSN, err = flags.GetString("store-dsn"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("db-dir") {
		if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("output-dir") {
		if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
			return nil, err
		}
	}

	cfg.JSONReport, err = flags.GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = flags.GetBool("markdown")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// setupLogger creates the secure structured logger. Custom headers from the
// config file are masked along with the built-in credential keys.
func setupLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := applog.Options{Verbose: cfg.Verbose, JSON: cfg.LogJSON}
	if cfg.SourceConfigs != nil {
		opts.Keys = cfg.SourceConfigs.HeaderNames()
	}
	return applog.New(w, opts)
}

// runScan executes one session. Source failures end up in the report; only
// startup failures are returned.
func runScan(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	if cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, cfg.SessionTimeout,
			fmt.Errorf("session timeout of %s reached", cfg.SessionTimeout))
		defer cancel()
	}

	store, err := openStore(ctx, cfg.StoreDSN, cfg.DBDir)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	logger.Info("database opened", "dialect", store.Dialect())

	client, err := collector.NewHTTPClient(collector.ClientOptions{
		Timeout:      cfg.RequestTimeout,
		ProxyAddress: cfg.ProxyAddress,
	})
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	registry, err := collector.NewDefaultRegistry(cfg, client, logger)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	collectors, err := registry.Select(cfg.Sources)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	names := make([]string, len(collectors))
	for i, c := range collectors {
		names[i] = c.Name()
	}

	opts := append(pipeline.ConfigOptions(cfg, names), pipeline.WithOrchestratorLogger(logger))
	if cfg.EnablePersistence {
		target, err := newSink(cfg, store, logger)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		opts = append(opts, pipeline.WithSink(target))
	}

	if len(names) == 0 {
		fmt.Fprintln(out, "No sources enabled; the session report will be empty.")
	} else {
		fmt.Fprintf(out, "Collecting from %d source(s): %s\n", len(names), strings.Join(names, ", "))
	}

	result, err := pipeline.NewOrchestrator(opts...).Run(ctx, collectors)
	if err != nil {
		return err
	}

	if result.Cancelled {
		fmt.Fprintf(out, "Session cancelled: %v\n", context.Cause(ctx))
	}

	if _, err := report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose)).Write(result.Report); err != nil {
		logger.Error("failed to print summary", "error", err)
	}

	path, err := report.WriteFile(cfg.OutputDir, result.Report, reportFormat(cfg))
	if err != nil {
		logger.Error("failed to write report file", "dir", cfg.OutputDir, "error", err)
	} else {
		fmt.Fprintf(out, "\nReport saved to %s\n", path)
	}

	// A cancelled session is still recorded in the history.
	if err := saveSessionReport(context.WithoutCancel(ctx), store, result.Report, logger); err != nil {
		logger.Error("failed to save session report", "error", err)
	}

	return nil
}

// openStore opens the database named by dsn, or the SQLite file in dir.
func openStore(ctx context.Context, dsn, dir string) (*database.Store, error) {
	if dsn != "" {
		return database.OpenDSN(ctx, dsn)
	}
	if dir == "" {
		dir = config.XDGDataDir()
	}
	return database.Open(dir, database.DefaultOptions())
}

// newSink returns the persistence target selected by cfg.
func newSink(cfg *config.Config, store *database.Store, logger *slog.Logger) (sink.Sink, error) {
	if cfg.Sink != config.SinkAirtable {
		return sink.NewStoreSink(store), nil
	}

	airtable, err := sink.NewAirtableSink(sink.AirtableConfig{
		BaseURL: cfg.AirtableURL,
		APIKey:  cfg.Credentials.AirtableAPIKey,
		BaseID:  cfg.Credentials.AirtableBaseID,
		Table:   cfg.Credentials.AirtableTableName,
	}, sink.WithAirtableLogger(logger))
	if err != nil {
		return nil, err
	}
	return airtable, nil
}

// reportFormat returns the report file format selected by cfg.
// JSON is the default so saved reports stay machine readable.
func reportFormat(cfg *config.Config) report.Format {
	if cfg.MarkdownReport {
		return report.FormatMarkdown
	}
	return report.FormatJSON
}

// saveSessionReport stores the report in the session history.
func saveSessionReport(ctx context.Context, store *database.Store, r *model.ScrapingReport, logger *slog.Logger) error {
	id, err := store.SaveReport(ctx, r)
	if err != nil {
		return err
	}
	logger.Info("session report saved", "session", id)
	return nil
}
