package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Step is one post-collection pass over a session: validation, scoring,
// dedup, filtering, ranking or capping.
//
// Design decision: steps are values rather than functions so they can carry
// their configuration (scorer, thresholds, cap) and report a Name for logging.
type Step interface {
	// Do transforms session.Records in place.
	Do(ctx context.Context, session *Session) error

	// Name identifies the step in logs and in the session trace.
	Name() string
}

// StepTrace records one completed step.
type StepTrace struct {
	Name    string        `json:"name"`
	In      int           `json:"records_in"`
	Out     int           `json:"records_out"`
	Elapsed time.Duration `json:"elapsed"`
}

// Dropped is the number of records the step removed.
func (t StepTrace) Dropped() int {
	return t.In - t.Out
}

// Pipeline applies its steps to a session in order and stops at the first
// failing step.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithSteps appends steps at construction.
func WithSteps(steps ...Step) Option {
	return func(p *Pipeline) {
		p.steps = append(p.steps, steps...)
	}
}

// New returns a pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	return names
}

// Execute runs the steps over session and appends a StepTrace for each one
// that completes. The context is checked between steps; a failing step is
// returned wrapped with its name.
func (p *Pipeline) Execute(ctx context.Context, session *Session) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("post-processing stopped", "before", step.Name(), "reason", err)
			return err
		}

		trace := StepTrace{Name: step.Name(), In: len(session.Records)}
		started := time.Now()
		if err := step.Do(ctx, session); err != nil {
			p.logger.Error("step failed", "step", trace.Name, "error", err)
			return fmt.Errorf("%s: %w", trace.Name, err)
		}
		trace.Out = len(session.Records)
		trace.Elapsed = time.Since(started)
		session.Trace = append(session.Trace, trace)

		p.logger.Debug("step done",
			"step", trace.Name,
			"records_in", trace.In,
			"dropped", trace.Dropped(),
		)
	}
	return nil
}
