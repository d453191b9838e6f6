// Package pipeline drives the cascading recovery of failed operations: run
// the operation, and on failure walk the diagnostic tiers in strict order,
// short-circuiting on the first successful fix and escalating to a human when
// every tier is exhausted. Tiers run strictly sequentially; the research tier
// is prompted with the fast tier's diagnosis, so there is a genuine data
// dependency between them.
package pipeline

import (
	"context"
	"time"

	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/jingkaihe/rescue/pkg/executor"
	"github.com/jingkaihe/rescue/pkg/logger"
	"github.com/jingkaihe/rescue/pkg/oracle"
	"github.com/jingkaihe/rescue/pkg/stats"
)

// Status is the terminal state of one pipeline run.
type Status string

const (
	// StatusSucceeded means the operation exited cleanly on first try. No
	// error context is created for this case.
	StatusSucceeded Status = "succeeded"
	// StatusRecovered means a tier's fix command resolved the failure.
	StatusRecovered Status = "recovered"
	// StatusEscalated means automated recovery is exhausted and human
	// judgment is required.
	StatusEscalated Status = "escalated"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Status      Status
	Output      string
	ExitCode    int
	ResolvedBy  errctx.Tier
	Context     *errctx.ErrorContext
	ContextPath string
}

// Recorder receives terminal outcomes for aggregate reporting. Recording is
// best-effort; it never fails a pipeline run.
type Recorder interface {
	Record(ctx context.Context, outcome stats.Outcome) error
}

// Pipeline wires the operation executor, the persisted error context store,
// and the diagnostic tiers together.
type Pipeline struct {
	store      *errctx.Store
	oracles    []oracle.DiagnosticOracle
	recorder   Recorder
	applyFixes bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder wires an outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithFixesDisabled turns the pipeline into diagnose-only mode: suggested fix
// commands are recorded but never executed, so every failure ends in
// escalation with a full diagnosis trail.
func WithFixesDisabled() Option {
	return func(p *Pipeline) {
		p.applyFixes = false
	}
}

// New creates a pipeline over the given store and tier oracles. Oracles must
// be supplied in escalation order.
func New(store *errctx.Store, oracles []oracle.DiagnosticOracle, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		oracles:    oracles,
		applyFixes: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the wrapped operation and, on failure, drives the tiers in
// order. Exactly one error context is persisted per failure occurrence; a
// first-try success touches no state at all.
func (p *Pipeline) Run(ctx context.Context, operation string, args []string) (*Result, error) {
	start := time.Now()

	runResult := executor.RunOperation(ctx, operation, args)
	if runResult.Success() {
		return &Result{Status: StatusSucceeded, Output: runResult.Output}, nil
	}

	ec := errctx.New(operation, args, runResult.ExitCode, runResult.Output)
	ctx = logger.WithLogger(ctx, logger.G(ctx).WithField("occurrence", ec.ID))

	log := logger.G(ctx).WithField("operation", ec.CommandLine()).WithField("exitCode", ec.ExitCode)
	log.Warn("operation failed, starting tiered recovery")

	path, err := p.store.Create(ec)
	if err != nil {
		return nil, err
	}

	for _, o := range p.oracles {
		attempt := o.Diagnose(ctx, ec)

		if attempt.CanFix && !attempt.Escalate && p.applyFixes {
			outcome := executor.ApplyFix(ctx, attempt.FixCommand)
			attempt.FixApplied = &outcome
		}

		ec, err = p.store.Append(path, attempt)
		if err != nil {
			return nil, err
		}

		if attempt.Succeeded() {
			log.WithField("tier", o.Tier()).Info("failure recovered")
			p.record(ctx, ec, StatusRecovered, o.Tier(), start)
			return &Result{
				Status:      StatusRecovered,
				Output:      attempt.FixApplied.Output,
				ResolvedBy:  o.Tier(),
				Context:     ec,
				ContextPath: path,
			}, nil
		}
	}

	log.Error("automated recovery exhausted, escalating to operator")
	p.record(ctx, ec, StatusEscalated, "", start)
	return &Result{
		Status:      StatusEscalated,
		ExitCode:    1,
		Context:     ec,
		ContextPath: path,
	}, nil
}

func (p *Pipeline) record(ctx context.Context, ec *errctx.ErrorContext, status Status, resolvedBy errctx.Tier, start time.Time) {
	if p.recorder == nil {
		return
	}

	outcome := stats.Outcome{
		ID:         ec.ID,
		Operation:  ec.CommandLine(),
		ExitCode:   ec.ExitCode,
		Status:     string(status),
		ResolvedBy: string(resolvedBy),
		Attempts:   len(ec.RecoveryAttempts),
		DurationMS: time.Since(start).Milliseconds(),
		CreatedAt:  ec.CreatedAt,
	}
	for _, attempt := range ec.RecoveryAttempts {
		if attempt.Usage != nil {
			outcome.Cost += attempt.Usage.Cost
		}
	}
	if latest, ok := ec.LatestAttempt(); ok {
		outcome.ErrorType = string(latest.ErrorType)
	}

	if err := p.recorder.Record(ctx, outcome); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to record pipeline outcome")
	}
}
