// Package orchestrator drives the migration run: it orders units by
// dependency, requests conversions, executes the differential harnesses on
// both toolchains, and decides per-unit acceptance with bounded retries.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/portcheck/portcheck/pkg/convert"
	"github.com/portcheck/portcheck/pkg/graph"
	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/oracle"
	"github.com/portcheck/portcheck/pkg/stores"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

// CyclePolicy decides what happens when the dependency graph is cyclic.
type CyclePolicy string

const (
	// CycleAbort fails the run before any unit is processed.
	CycleAbort CyclePolicy = "abort"

	// CycleSever removes the closing edge of each cycle and continues.
	CycleSever CyclePolicy = "sever"
)

// SuiteExecutor runs a test suite on one backend. *executor.Executor is the
// production implementation.
type SuiteExecutor interface {
	RunBaseline(ctx context.Context, unit *model.Unit, deps []*model.Unit, suite *model.Suite) (*model.ResultSet, error)
	RunTarget(ctx context.Context, unit *model.Unit, targetSource string, depSources map[string]string, suite *model.Suite) (*model.ResultSet, error)
}

// SuiteValidator compares two result sets. *validator.Validator is the
// production implementation.
type SuiteValidator interface {
	Validate(suite *model.Suite, baseline, target *model.ResultSet) *model.UnitVerdict
}

// Options configures a run.
type Options struct {
	// Project names the run in reports and storage.
	Project string

	// MaxRetries bounds conversion attempts per unit. Zero means 3.
	MaxRetries int

	// RegenerateRandom re-rolls the random cases (and the baseline) on
	// each retry attempt instead of reusing the attempt-1 suite.
	RegenerateRandom bool

	// CyclePolicy is abort or sever. Empty means abort.
	CyclePolicy CyclePolicy

	// OutputDir receives accepted C# sources. Empty disables writing.
	OutputDir string

	// Oracle configures suite generation.
	Oracle oracle.Options
}

// Orchestrator owns the graph state and the per-unit state machines for one
// run. Units are processed sequentially, lowest ready ID first.
type Orchestrator struct {
	gen   convert.Generator
	exec  SuiteExecutor
	val   SuiteValidator
	tel   *telemetry.Telemetry
	store *stores.SQLiteStore
	opts  Options
	log   *telemetry.Logger
}

// New constructs an orchestrator. store may be nil to disable persistence.
func New(gen convert.Generator, exec SuiteExecutor, val SuiteValidator, tel *telemetry.Telemetry, store *stores.SQLiteStore, opts Options) *Orchestrator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.CyclePolicy == "" {
		opts.CyclePolicy = CycleAbort
	}
	if opts.Project == "" {
		opts.Project = "migration"
	}
	return &Orchestrator{
		gen:   gen,
		exec:  exec,
		val:   val,
		tel:   tel,
		store: store,
		opts:  opts,
		log:   tel.Logger.NewComponentLogger("orchestrator"),
	}
}

// Run migrates the given units and returns the run report. A cyclic graph
// under the abort policy is the only error before processing starts; unit
// failures are reported, not returned.
func (o *Orchestrator) Run(ctx context.Context, units []*model.Unit) (*Report, error) {
	runID := uuid.NewString()
	startedAt := time.Now()
	log := o.log.WithRunID(runID)

	g := graph.New()
	states := make(map[string]*UnitState, len(units))
	for _, u := range units {
		if err := g.AddUnit(u.ID, u.Dependencies); err != nil {
			return nil, err
		}
		states[u.ID] = newUnitState(u)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	var severed [][2]string
	if cycles := g.DetectCycles(); len(cycles) > 0 {
		for _, cycle := range cycles {
			_ = o.tel.Events.PublishCycleDetected(runID, cycle)
		}
		if o.opts.CyclePolicy == CycleAbort {
			return nil, &graph.CyclicDependencyError{Cycles: cycles}
		}
		severed = g.SeverCycles()
		for _, edge := range severed {
			log.WithUnitID(edge[0]).
				WithField("dependency", edge[1]).
				Warn("severed cyclic dependency edge")
		}
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	log.WithField("units", len(units)).Info("migration run started")
	o.tel.Metrics.RecordRunStarted(o.opts.Project)
	_ = o.tel.Events.PublishRunStarted(runID, len(units))
	if o.store != nil {
		run := &stores.Run{
			ID:         runID,
			Project:    o.opts.Project,
			Status:     model.RunStatusRunning,
			StartedAt:  startedAt,
			UnitsTotal: len(units),
		}
		if err := o.store.CreateRun(ctx, run); err != nil {
			log.WithError(err).Warn("failed to persist run")
		}
	}

	for ctx.Err() == nil {
		ready := g.ReadySet(o.statuses(states))
		o.tel.Metrics.SetQueuedUnits(float64(len(ready)))
		next := o.pickNext(ready, states)
		if next == nil {
			break
		}

		if err := next.transition(model.StatusReady); err != nil {
			return nil, err
		}
		if err := next.transition(model.StatusInProgress); err != nil {
			return nil, err
		}
		o.processUnit(ctx, runID, next, states, g)
		o.persistOutcome(ctx, runID, next)
	}

	cancelled := ctx.Err() != nil
	for _, id := range order {
		st := states[id]
		if st.Terminal() {
			continue
		}
		reason := "dependency failed or cyclic"
		if cancelled {
			reason = "run cancelled"
		}
		st.Status = model.StatusSkipped
		if st.LastError == nil {
			st.LastError = model.NewError(model.ErrKindInternal, reason, nil).WithUnit(id)
		}
		log.WithUnitID(id).WithField("reason", reason).Warn("unit skipped")
		_ = o.tel.Events.PublishUnitSkipped(runID, id, reason)
		o.persistOutcome(ctx, runID, st)
	}

	rep := buildReport(runID, o.opts.Project, startedAt, order, severed, states)
	if cancelled {
		rep.Status = model.RunStatusCancelled
	}

	log.WithField("status", string(rep.Status)).
		WithField("converted", rep.Converted).
		WithField("failed", rep.Failed).
		WithField("skipped", rep.Skipped).
		Info("migration run completed")
	o.tel.Metrics.RecordRunCompleted(string(rep.Status), rep.Duration)
	_ = o.tel.Events.PublishRunCompleted(runID, string(rep.Status), rep.Duration)
	if o.store != nil {
		run := &stores.Run{
			ID:             runID,
			Status:         rep.Status,
			UnitsConverted: rep.Converted,
			UnitsFailed:    rep.Failed,
			UnitsSkipped:   rep.Skipped,
		}
		if err := o.store.CompleteRun(ctx, run); err != nil {
			log.WithError(err).Warn("failed to persist run completion")
		}
	}
	return rep, nil
}

// pickNext returns the state of the lowest-ID ready unit still pending.
func (o *Orchestrator) pickNext(ready []string, states map[string]*UnitState) *UnitState {
	for _, id := range ready {
		if st := states[id]; st.Status == model.StatusPending {
			return st
		}
	}
	return nil
}

func (o *Orchestrator) statuses(states map[string]*UnitState) map[string]model.ConversionStatus {
	out := make(map[string]model.ConversionStatus, len(states))
	for id, st := range states {
		out[id] = st.Status
	}
	return out
}

// processUnit runs the conversion loop for one unit and leaves it Converted
// or Failed.
func (o *Orchestrator) processUnit(ctx context.Context, runID string, st *UnitState, states map[string]*UnitState, g *graph.Graph) {
	unit := st.Unit
	log := o.log.WithRunID(runID).WithUnitID(unit.ID)
	start := time.Now()

	depUnits, depSources := o.dependencies(unit, states, g)

	suite, err := o.buildSuite(unit, 1)
	if err != nil {
		o.failUnit(runID, st, err, "suite generation failed")
		return
	}
	log.WithField("cases", len(suite.Cases)).Debug("test suite generated")

	// The baseline run counts as the start of attempt 1.
	st.Attempts = 1
	baseline, err := o.exec.RunBaseline(ctx, unit, depUnits, suite)
	if err != nil {
		if ctx.Err() != nil {
			st.LastError = ctx.Err()
			return
		}
		// The original source must compile and run; nothing a retry of
		// the conversion could fix.
		o.failUnit(runID, st, err, "baseline execution failed")
		return
	}

	var feedback *convert.Feedback
	for attempt := 1; attempt <= o.opts.MaxRetries; attempt++ {
		// Cancellation between pipeline steps leaves the unit to the
		// skip handling in Run instead of burning attempts.
		if ctx.Err() != nil {
			st.LastError = ctx.Err()
			return
		}
		st.Attempts = attempt
		log := log.WithAttempt(attempt)
		_ = o.tel.Events.PublishUnitStarted(runID, unit.ID, attempt)

		if attempt > 1 && o.opts.RegenerateRandom {
			suite, err = o.buildSuite(unit, attempt)
			if err != nil {
				o.failUnit(runID, st, err, "suite regeneration failed")
				return
			}
			baseline, err = o.exec.RunBaseline(ctx, unit, depUnits, suite)
			if err != nil {
				o.failUnit(runID, st, err, "baseline re-execution failed")
				return
			}
		}

		src, err := o.gen.Convert(ctx, unit, depSources, feedback)
		if err != nil {
			st.LastError = err
			log.WithError(err).Warn("conversion attempt failed")
			continue
		}

		target, err := o.exec.RunTarget(ctx, unit, src, depSources, suite)
		if err != nil {
			st.LastError = err
			compileLog := ""
			if target != nil {
				compileLog = target.CompileLog
			}
			feedback = &convert.Feedback{Attempt: attempt, CompileLog: compileLog}
			log.WithError(err).Warn("converted source failed to build or run")
			continue
		}

		verdict := o.val.Validate(suite, baseline, target)
		verdict.Attempt = attempt
		st.Verdicts = append(st.Verdicts, verdict)
		o.persistVerdict(ctx, runID, verdict)

		if verdict.Accepted {
			st.Source = src
			st.Status = model.StatusConverted
			st.LastError = nil
			if err := g.MarkConverted(unit.ID); err != nil {
				o.failUnit(runID, st, err, "graph update failed")
				return
			}
			o.writeConverted(unit.ID, src, log)
			log.WithField("cases", verdict.Passed).Info("unit converted")
			o.tel.Metrics.RecordUnitProcessed(string(model.StatusConverted), attempt)
			_ = o.tel.Events.PublishUnitConverted(runID, unit.ID, attempt, time.Since(start))
			return
		}

		st.LastError = model.NewError(model.ErrKindValidation,
			fmt.Sprintf("%d of %d cases mismatched", verdict.Failed, verdict.Passed+verdict.Failed), nil).WithUnit(unit.ID)
		feedback = &convert.Feedback{Attempt: attempt, Verdict: verdict}
		log.WithField("failed_cases", verdict.Failed).Warn("differential validation rejected attempt")
		for _, cv := range verdict.FailedCases() {
			for _, d := range cv.Differences {
				o.tel.Metrics.RecordCaseMismatch(string(d.Reason))
			}
		}
		_ = o.tel.Events.PublishVerdictMismatch(runID, unit.ID, verdict.Failed, verdict.Passed+verdict.Failed)
	}

	st.Status = model.StatusFailed
	if st.LastError == nil {
		st.LastError = model.NewError(model.ErrKindValidation, "attempts exhausted", nil).WithUnit(unit.ID)
	}
	log.WithError(st.LastError).Error("unit failed after exhausting attempts")
	o.tel.Metrics.RecordUnitProcessed(string(model.StatusFailed), st.Attempts)
	_ = o.tel.Events.PublishUnitFailed(runID, unit.ID, st.LastError.Error(), st.Attempts)
}

func (o *Orchestrator) failUnit(runID string, st *UnitState, err error, msg string) {
	st.Status = model.StatusFailed
	st.LastError = err
	o.log.WithRunID(runID).WithUnitID(st.Unit.ID).WithError(err).Error(msg)
	o.tel.Metrics.RecordError(string(model.KindOf(err)))
	o.tel.Metrics.RecordUnitProcessed(string(model.StatusFailed), st.Attempts)
	_ = o.tel.Events.PublishUnitFailed(runID, st.Unit.ID, err.Error(), st.Attempts)
}

// dependencies returns the converted dependency units and their C# sources.
func (o *Orchestrator) dependencies(unit *model.Unit, states map[string]*UnitState, g *graph.Graph) ([]*model.Unit, map[string]string) {
	var depUnits []*model.Unit
	depSources := make(map[string]string)
	for _, id := range g.Dependencies(unit.ID) {
		dep, ok := states[id]
		if !ok {
			continue
		}
		depUnits = append(depUnits, dep.Unit)
		if dep.Status == model.StatusConverted {
			depSources[id] = dep.Source
		}
	}
	return depUnits, depSources
}

func (o *Orchestrator) buildSuite(unit *model.Unit, attempt int) (*model.Suite, error) {
	opts := o.opts.Oracle
	if attempt > 1 {
		opts.Seed += int64(attempt - 1)
	}
	return oracle.NewGenerator(opts, o.tel.Logger).GenerateSuite(unit)
}

func (o *Orchestrator) writeConverted(unitID, src string, log *telemetry.Logger) {
	if o.opts.OutputDir == "" {
		return
	}
	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		log.WithError(err).Warn("failed to create output directory")
		return
	}
	path := filepath.Join(o.opts.OutputDir, unitID+".cs")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		log.WithError(err).Warn("failed to write converted source")
	}
}

func (o *Orchestrator) persistOutcome(ctx context.Context, runID string, st *UnitState) {
	if o.store == nil {
		return
	}
	detail := ""
	if st.LastError != nil {
		detail = st.LastError.Error()
	}
	outcome := &stores.UnitOutcome{
		RunID:    runID,
		UnitID:   st.Unit.ID,
		Status:   st.Status,
		Attempts: st.Attempts,
		Detail:   detail,
	}
	if err := o.store.SaveUnitOutcome(ctx, outcome); err != nil {
		o.log.WithRunID(runID).WithUnitID(st.Unit.ID).WithError(err).Warn("failed to persist unit outcome")
	}
}

func (o *Orchestrator) persistVerdict(ctx context.Context, runID string, verdict *model.UnitVerdict) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveVerdict(ctx, runID, verdict); err != nil {
		o.log.WithRunID(runID).WithUnitID(verdict.UnitID).WithError(err).Warn("failed to persist verdict")
	}
}

// IsCycleError reports whether the error is a dependency cycle report.
func IsCycleError(err error) bool {
	var cerr *graph.CyclicDependencyError
	return errors.As(err, &cerr)
}
