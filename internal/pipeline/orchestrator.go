package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/grantscan/internal/collector"
	"github.com/nao1215/grantscan/internal/config"
	"github.com/nao1215/grantscan/internal/dedup"
	applog "github.com/nao1215/grantscan/internal/log"
	"github.com/nao1215/grantscan/internal/model"
	"github.com/nao1215/grantscan/internal/relevance"
	"github.com/nao1215/grantscan/internal/sink"
)

// Orchestrator runs one scraping session over a set of collectors.
// Its configuration is fixed at construction; Run may be called repeatedly
// but each call is an independent session.
type Orchestrator struct {
	logger           *slog.Logger
	concurrency      int
	retry            RetryPolicy
	threshold        float64
	sourceThresholds map[string]float64
	maxPerSource     int
	deduplicate      bool
	scorer           *relevance.Scorer
	sink             sink.Sink
	now              func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger for session progress.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithConcurrency sets the maximum number of collectors running at once.
// Values below 1 are ignored.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithRetryPolicy sets the attempts and delay used for every source.
func WithRetryPolicy(p RetryPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// WithThreshold sets the global relevance threshold.
func WithThreshold(threshold float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.threshold = threshold
	}
}

// WithSourceThresholds overrides the threshold for individual sources.
func WithSourceThresholds(thresholds map[string]float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sourceThresholds = thresholds
	}
}

// WithMaxPerSource sets the per-source cap. The ranked output keeps at most
// n times the number of scheduled sources. 0 disables the cap.
func WithMaxPerSource(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxPerSource = n
		}
	}
}

// WithDeduplication enables or disables near-duplicate removal.
func WithDeduplication(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.deduplicate = enabled
	}
}

// WithScorer sets the relevance scorer. When unset, a scorer over the
// default taxonomy is built with the session threshold.
func WithScorer(scorer *relevance.Scorer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.scorer = scorer
	}
}

// WithSink enables persistence of the ranked records into s.
func WithSink(s sink.Sink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

// WithClock sets the clock used for the report timestamp.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator with the defaults of
// config.NewConfig, adjusted by opts.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		concurrency: config.DefaultConcurrency,
		retry: RetryPolicy{
			Attempts: config.DefaultRetryAttempts,
			Delay:    config.DefaultRetryDelay,
		},
		threshold:    config.DefaultThreshold,
		maxPerSource: config.DefaultMaxPerSource,
		deduplicate:  true,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.scorer == nil {
		o.scorer = relevance.NewScorer(relevance.WithThreshold(o.threshold))
	}

	return o
}

// ConfigOptions translates a validated configuration into orchestrator
// options. sources are the scheduled source names, used to resolve
// per-source threshold overrides from the config file.
func ConfigOptions(cfg *config.Config, sources []string) []OrchestratorOption {
	overrides := make(map[string]float64)
	for _, name := range sources {
		if t := cfg.SourceThreshold(name); t != cfg.Threshold {
			overrides[name] = t
		}
	}

	return []OrchestratorOption{
		WithConcurrency(cfg.Concurrency),
		WithRetryPolicy(RetryPolicy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}),
		WithThreshold(cfg.Threshold),
		WithSourceThresholds(overrides),
		WithMaxPerSource(cfg.MaxPerSource),
		WithDeduplication(cfg.EnableDeduplication),
	}
}

// Result is the outcome of one session.
type Result struct {
	// Report is the session summary.
	Report *model.ScrapingReport

	// Opportunities are the ranked records, best first.
	Opportunities []*model.Opportunity

	// Stats counts records removed by each post-collection step.
	Stats Stats

	// Steps traces the post-collection steps that ran.
	Steps []StepTrace

	// Persist holds the sink counts. It is zero when persistence is off.
	Persist sink.Result

	// Cancelled is true when the session context ended before every
	// source finished.
	Cancelled bool
}

// eventKind is the kind of a collector progress event.
type eventKind int

const (
	eventStarted eventKind = iota
	eventRetrying
	eventSucceeded
	eventFailed
)

// event is sent by a collector goroutine to the coordinator.
type event struct {
	index   int
	kind    eventKind
	attempt int
	records []*model.Opportunity
	err     error
	elapsed time.Duration
}

// Run executes one session and always returns a report, even when every
// source fails or ctx is cancelled. The only error returned is
// ErrConfiguration for an unusable collector list.
//
// Collectors run concurrently up to the configured limit. Each goroutine
// only sends events; the loop in Run is the single writer of the source
// statuses and collected record buffers.
func (o *Orchestrator) Run(ctx context.Context, collectors []collector.Collector) (*Result, error) {
	if err := validateCollectors(collectors); err != nil {
		return nil, err
	}

	timestamp := o.now()
	started := time.Now()

	o.logger.Info("starting session",
		"sources", len(collectors),
		"concurrency", o.concurrency,
		"attempts", o.retry.Attempts,
	)

	statuses := make([]model.SourceStatus, len(collectors))
	for i, c := range collectors {
		statuses[i] = model.NewSourceStatus(c.Name())
	}
	collected := make([][]*model.Opportunity, len(collectors))
	failures := make([]string, len(collectors))

	// interrupted is set when a source ended because the session context
	// ended. A deadline passing after every source finished does not count.
	interrupted := false

	events := make(chan event)
	go func() {
		o.schedule(ctx, collectors, events)
		close(events)
	}()

	for ev := range events {
		status := &statuses[ev.index]
		switch ev.kind {
		case eventStarted:
			o.transition(status, model.SourceRunning)
			o.logger.Debug("collecting", "source", status.Name, "attempt", ev.attempt)
		case eventRetrying:
			o.transition(status, model.SourceFailedRetrying)
			status.LastError = applog.Redact(ev.err.Error())
			o.logger.Warn("attempt failed, retrying",
				"source", status.Name,
				"attempt", ev.attempt,
				"delay", o.retry.Delay,
				"error", ev.err,
			)
		case eventSucceeded:
			o.transition(status, model.SourceSucceeded)
			status.Collected = len(ev.records)
			status.SetElapsed(ev.elapsed)
			collected[ev.index] = ev.records
			o.logger.Info("source completed", "source", status.Name, "records", len(ev.records))
		case eventFailed:
			o.transition(status, model.SourceFailedFinal)
			status.SetElapsed(ev.elapsed)
			failures[ev.index] = o.failureMessage(status, ev.err)
			status.LastError = applog.Redact(ev.err.Error())
			if ctx.Err() != nil && isContextError(ev.err) {
				interrupted = true
			}
			o.logger.Error("source failed", "source", status.Name, "attempts", status.Attempts, "error", ev.err)
		}
	}

	cancelled := interrupted

	// Concatenate in schedule order so ties rank the same way every run.
	all := make([]*model.Opportunity, 0)
	scraped := make([]string, 0, len(collectors))
	errs := make([]string, 0)
	for i := range collectors {
		if statuses[i].State == model.SourceSucceeded {
			all = append(all, collected[i]...)
			scraped = append(scraped, statuses[i].Name)
		}
		if failures[i] != "" {
			errs = append(errs, failures[i])
		}
	}
	if cancelled {
		errs = append(errs, fmt.Sprintf("%v: %v", ErrSessionCancelled, context.Cause(ctx)))
	}

	session := NewSession(all)
	// Steps are in-memory passes; they run to completion even when the
	// session was cancelled so the sources that finished are reported.
	if err := o.newPipeline(len(collectors)).Execute(context.WithoutCancel(ctx), session); err != nil {
		errs = append(errs, fmt.Sprintf("processing failed: %v", err))
	}

	result := &Result{
		Opportunities: session.Records,
		Stats:         session.Stats,
		Steps:         session.Trace,
		Cancelled:     cancelled,
	}

	if o.sink != nil {
		if cancelled {
			o.logger.Warn("persistence skipped", "reason", "session cancelled")
		} else {
			result.Persist = sink.Persist(context.WithoutCancel(ctx), o.sink, session.Records, o.logger)
			if result.Persist.Failed > 0 {
				errs = append(errs, fmt.Sprintf("persistence: %d of %d records failed",
					result.Persist.Failed, len(session.Records)))
			}
		}
	}

	report := model.NewScrapingReport(timestamp)
	report.TotalOpportunities = len(all)
	report.RelevantOpportunities = len(session.Records)
	report.SourcesScraped = scraped
	report.Errors = errs
	report.TopOpportunities = model.TopSummaries(session.Records, model.TopOpportunitiesLimit)
	report.KeywordStats = o.scorer.KeywordStatistics()
	report.Sources = statuses
	report.Persisted = result.Persist.Persisted()
	report.PersistFailures = result.Persist.Failed
	report.ExecutionTime = time.Since(started).Seconds()
	result.Report = report

	o.logger.Info("session complete",
		"total", report.TotalOpportunities,
		"relevant", report.RelevantOpportunities,
		"scraped", len(scraped),
		"errors", len(errs),
		"elapsed", report.Duration(),
	)

	return result, nil
}

// schedule starts one goroutine per collector under the concurrency limit
// and returns when all of them have sent their final event.
//
// Design decision: goroutines always return nil to the errgroup. A failing
// source must not cancel its siblings; only the parent context does.
func (o *Orchestrator) schedule(ctx context.Context, collectors []collector.Collector, events chan<- event) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, c := range collectors {
		g.Go(func() error {
			o.collect(gctx, i, c, events)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return an error
}

// collect runs the attempts of one source and reports progress on events.
func (o *Orchestrator) collect(ctx context.Context, index int, c collector.Collector, events chan<- event) {
	started := time.Now()

	var records []*model.Opportunity
	err := o.retry.Run(ctx,
		func(ctx context.Context, attempt int) error {
			events <- event{index: index, kind: eventStarted, attempt: attempt}
			opps, err := c.Collect(ctx)
			if err != nil {
				return err
			}
			records = opps
			return nil
		},
		func(attempt int, err error) {
			events <- event{index: index, kind: eventRetrying, attempt: attempt, err: err}
		},
	)

	// A source finishing while the session is torn down is discarded as a
	// whole; its records may be incomplete.
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	if err != nil {
		events <- event{index: index, kind: eventFailed, err: err, elapsed: time.Since(started)}
		return
	}
	events <- event{index: index, kind: eventSucceeded, records: records, elapsed: time.Since(started)}
}

// transition applies a state change. An invalid change is a programming
// error in the event flow; it is logged and the status is left as is.
func (o *Orchestrator) transition(status *model.SourceStatus, next model.SourceState) {
	if err := status.Transition(next); err != nil {
		o.logger.Error("unexpected source state change", "error", err)
	}
}

// failureMessage formats the report entry of a failed source with any
// credentials in the error redacted.
func (o *Orchestrator) failureMessage(status *model.SourceStatus, err error) string {
	if isContextError(err) {
		return applog.Redact(fmt.Sprintf("%s cancelled after %d attempts: %v", status.Name, status.Attempts, err))
	}
	return applog.Redact((&CollectionError{Source: status.Name, Attempts: status.Attempts, Err: err}).Error())
}

// isContextError reports whether err comes from a cancelled or expired context.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// newPipeline builds the post-collection steps for a session over n sources.
func (o *Orchestrator) newPipeline(n int) *Pipeline {
	p := New(
		WithLogger(o.logger),
		WithSteps(NewValidateStep(o.logger), NewScoreStep(o.scorer)),
	)
	if o.deduplicate {
		p.AddStep(NewDedupStep(dedup.New(), o.logger))
	}
	p.AddSteps(
		NewFilterStep(o.threshold, o.sourceThresholds),
		NewRankStep(),
		NewCapStep(o.maxPerSource*n),
	)
	return p
}

// validateCollectors rejects nil collectors and repeated names.
func validateCollectors(collectors []collector.Collector) error {
	seen := make(map[string]struct{}, len(collectors))
	for i, c := range collectors {
		if c == nil {
			return fmt.Errorf("%w: collector %d is nil", ErrConfiguration, i)
		}
		name := c.Name()
		if name == "" {
			return fmt.Errorf("%w: collector %d has no name", ErrConfiguration, i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: source %q scheduled twice", ErrConfiguration, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
