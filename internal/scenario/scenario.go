// Package scenario drives plan captures across parameter cases and pairs
// them around a single state transition.
package scenario

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ramkumarar/planprobe/internal/capture"
	"github.com/ramkumarar/planprobe/internal/config"
	"github.com/ramkumarar/planprobe/internal/diff"
	"github.com/ramkumarar/planprobe/internal/model"
	"github.com/ramkumarar/planprobe/internal/report"
)

// PlanSource captures plans and refreshes statistics. *capture.Repository
// implements it; tests substitute fakes.
type PlanSource interface {
	Capture(ctx context.Context, tpl capture.Template, kase model.ScenarioCase, opts capture.CaptureOptions) (*model.Capture, error)
	RefreshStatistics(ctx context.Context, tables ...string) error
}

// Runner executes scenario suites against a plan source.
type Runner struct {
	source      PlanSource
	parallelism int
}

// NewRunner builds a runner. Parallelism zero or below takes the configured
// default.
func NewRunner(source PlanSource, parallelism int) *Runner {
	if parallelism <= 0 {
		parallelism = config.Active().Capture.Parallelism
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Runner{source: source, parallelism: parallelism}
}

// Run executes the suite and returns a report with one entry per case, in
// the suite's case order. A connection failure or caller cancellation aborts
// the run; the partial report is returned alongside the error so completed
// cases are never lost. Per-case failures never abort the run.
func (r *Runner) Run(ctx context.Context, suite *Suite) (*report.Report, error) {
	if suite == nil {
		return nil, errors.New("scenario: nil suite")
	}
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	tpl, err := capture.NewTemplate(suite.Template)
	if err != nil {
		return nil, err
	}

	rep := &report.Report{
		Suite:     suite.Name,
		Template:  tpl.SQL(),
		Mode:      string(suite.Mode),
		StartedAt: time.Now().UTC(),
		Cases:     make([]report.CaseResult, len(suite.Cases)),
	}
	for i, kase := range suite.Cases {
		rep.Cases[i] = report.CaseResult{
			Label:     kase.Label,
			Parameter: kase.Value,
			RowCount:  -1,
			Expected:  kase.ExpectedRows,
		}
	}

	countRows := suite.countRows(config.Active().Capture.CountRows)
	runErr := r.runPhases(ctx, suite, tpl, countRows, rep)
	finalize(rep, suite.Mode)
	return rep, runErr
}

func (r *Runner) runPhases(ctx context.Context, suite *Suite, tpl capture.Template, countRows bool, rep *report.Report) error {
	if err := r.runPhase(ctx, suite, tpl, captureOptions(suite, suite.Before, countRows), rep, assignBefore); err != nil {
		return err
	}
	if suite.Mode == ModeSingle {
		return nil
	}

	// Every before capture has completed; the transition runs exactly once
	// for the whole batch, and only after phase must observe its effect.
	if suite.Transition == TransitionAnalyze {
		if err := r.source.RefreshStatistics(ctx, suite.Tables...); err != nil {
			return errors.Wrap(err, "scenario: refresh statistics")
		}
	}

	if err := r.runPhase(ctx, suite, tpl, captureOptions(suite, suite.After, countRows), rep, assignAfter); err != nil {
		return err
	}

	comparePairs(rep)
	return nil
}

// runPhase captures every pending case once. Cases run in parallel up to the
// runner's limit; each goroutine writes only its own slot, so output order is
// the input order regardless of scheduling. Cancellation is honored between
// cases, never mid-capture.
func (r *Runner) runPhase(ctx context.Context, suite *Suite, tpl capture.Template, opts capture.CaptureOptions, rep *report.Report, assign func(*report.CaseResult, *model.Capture)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	for i := range suite.Cases {
		if rep.Cases[i].Status != "" {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		kase := suite.Cases[i]
		result := &rep.Cases[i]
		g.Go(func() error {
			got, err := r.source.Capture(gctx, tpl, kase, opts)
			if err != nil {
				switch {
				case errors.Is(err, capture.ErrConnection):
					result.Status = report.StatusFailed
					result.Error = err.Error()
					return err
				case errors.Is(err, context.Canceled):
					result.Status = report.StatusSkipped
					result.Error = "capture aborted"
					return nil
				default:
					result.Status = report.StatusFailed
					result.Error = err.Error()
					return nil
				}
			}
			assign(result, got)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "scenario: capture phase")
	}
	return ctx.Err()
}

func captureOptions(suite *Suite, phase Phase, countRows bool) capture.CaptureOptions {
	return capture.CaptureOptions{
		Condition:  phase.Condition,
		Analyze:    suite.Analyze,
		Format:     suite.Format,
		Settings:   phase.Settings,
		CountRows:  countRows,
		StatsFresh: phase.StatsFresh,
	}
}

func assignBefore(result *report.CaseResult, got *model.Capture) {
	result.Before = got
	if got.RowCount >= 0 {
		result.RowCount = got.RowCount
	}
}

func assignAfter(result *report.CaseResult, got *model.Capture) {
	result.After = got
	if got.RowCount >= 0 {
		result.RowCount = got.RowCount
	}
}

func comparePairs(rep *report.Report) {
	for i := range rep.Cases {
		c := &rep.Cases[i]
		if c.Status != "" || c.Before == nil || c.After == nil {
			continue
		}
		cmp, err := diff.Compare(c.Before, c.After, diff.Options{})
		if err != nil {
			c.Status = report.StatusFailed
			c.Error = err.Error()
			continue
		}
		c.Comparison = cmp
	}
}

// finalize settles the status of every case. Cases the run never completed,
// whether unlaunched or missing their after capture, are marked skipped so a
// partial failure is never reported as success.
func finalize(rep *report.Report, mode Mode) {
	for i := range rep.Cases {
		c := &rep.Cases[i]
		if c.Status != "" {
			continue
		}
		complete := c.Before != nil
		if mode == ModeBeforeAfter {
			complete = c.Comparison != nil
		}
		if complete {
			c.Status = report.StatusOK
		} else {
			c.Status = report.StatusSkipped
			if c.Error == "" {
				c.Error = "run aborted before completion"
			}
		}
	}
	rep.Notes = report.BuildNotes(rep)
	rep.FinishedAt = time.Now().UTC()
}
