// Package executor compiles and runs the differential test harnesses for a
// translation unit on both toolchains. It generates a C harness that links the
// original source and a C# harness that calls the converted class, executes
// them under per-phase timeouts, and parses the wire-format output lines back
// into typed results.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

// Mode selects how a suite is executed.
type Mode string

const (
	// ModeBatch runs every case in one harness invocation. A crash stops
	// the batch but earlier output lines survive, so the executor falls
	// back to per-case execution for the remainder.
	ModeBatch Mode = "batch"

	// ModePerCase runs one harness invocation per case, isolating crashes
	// at the cost of process startup overhead.
	ModePerCase Mode = "percase"
)

// Options configures suite execution.
type Options struct {
	// Mode is the execution mode, ModeBatch by default.
	Mode Mode

	// Concurrency bounds parallel case invocations in per-case mode.
	// Zero means 4.
	Concurrency int

	// KeepWorkDirs leaves the temporary build directories behind for
	// debugging instead of removing them.
	KeepWorkDirs bool

	// StderrLimit bounds how much captured stderr is attached to a case
	// result. Zero means 4096 bytes.
	StderrLimit int
}

const (
	defaultConcurrency = 4
	defaultStderrLimit = 4096
)

// Executor runs test suites against the source and target toolchains.
type Executor struct {
	source  Toolchain
	target  Toolchain
	opts    Options
	log     *telemetry.Logger
	metrics *telemetry.Metrics
}

// New constructs an executor. metrics may be nil.
func New(source, target Toolchain, opts Options, log *telemetry.Logger, metrics *telemetry.Metrics) *Executor {
	if opts.Mode == "" {
		opts.Mode = ModeBatch
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.StderrLimit <= 0 {
		opts.StderrLimit = defaultStderrLimit
	}
	return &Executor{
		source:  source,
		target:  target,
		opts:    opts,
		log:     log.NewComponentLogger("executor"),
		metrics: metrics,
	}
}

// RunBaseline compiles the original C source of the unit together with its
// dependencies and the generated harness, runs the suite, and returns the
// captured results. A compilation failure yields a result set in which every
// case carries the failure, alongside a compilation error.
func (e *Executor) RunBaseline(ctx context.Context, unit *model.Unit, deps []*model.Unit, suite *model.Suite) (*model.ResultSet, error) {
	harness, err := GenerateCHarness(unit, suite)
	if err != nil {
		return nil, err
	}

	dir, cleanup, err := e.workdir(unit.ID, "baseline")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var sources []string
	for _, u := range append([]*model.Unit{unit}, deps...) {
		src := filepath.Join(dir, u.ID+".c")
		if err := os.WriteFile(src, []byte(neutralizeMain(u)), 0o644); err != nil {
			return nil, model.NewError(model.ErrKindInternal, "write unit source", err).WithUnit(unit.ID)
		}
		hdr := filepath.Join(dir, u.ID+".h")
		if err := os.WriteFile(hdr, []byte(generateHeader(u)), 0o644); err != nil {
			return nil, model.NewError(model.ErrKindInternal, "write unit header", err).WithUnit(unit.ID)
		}
		sources = append(sources, src)
	}
	harnessPath := filepath.Join(dir, "harness_main.c")
	if err := os.WriteFile(harnessPath, []byte(harness), 0o644); err != nil {
		return nil, model.NewError(model.ErrKindInternal, "write harness", err).WithUnit(unit.ID)
	}
	sources = append(sources, harnessPath)

	return e.runSuite(ctx, e.source, model.BackendSource, unit, suite, dir, sources)
}

// RunTarget compiles the converted C# source together with the converted
// dependency sources and the generated harness, runs the suite, and returns
// the captured results.
func (e *Executor) RunTarget(ctx context.Context, unit *model.Unit, targetSource string, depSources map[string]string, suite *model.Suite) (*model.ResultSet, error) {
	harness, err := GenerateCSHarness(unit, suite)
	if err != nil {
		return nil, err
	}

	dir, cleanup, err := e.workdir(unit.ID, "target")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	files := map[string]string{
		unit.ID + ".cs":   targetSource,
		"harness_main.cs": harness,
	}
	for depID, src := range depSources {
		files[depID+".cs"] = src
	}
	var sources []string
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, model.NewError(model.ErrKindInternal, "write converted source", err).WithUnit(unit.ID)
		}
		sources = append(sources, path)
	}

	return e.runSuite(ctx, e.target, model.BackendTarget, unit, suite, dir, sources)
}

// runSuite compiles and executes one side of the differential run.
func (e *Executor) runSuite(ctx context.Context, tc Toolchain, backend model.Backend, unit *model.Unit, suite *model.Suite, dir string, sources []string) (*model.ResultSet, error) {
	log := e.log.WithUnitID(unit.ID).WithBackend(string(backend))
	rs := &model.ResultSet{
		UnitID:    unit.ID,
		Backend:   backend,
		Results:   make(map[string]*model.CaseResult, len(suite.Cases)),
		StartedAt: time.Now(),
	}
	defer func() { rs.Duration = time.Since(rs.StartedAt) }()

	compileStart := time.Now()
	artifact, compileLog, err := tc.Compile(ctx, dir, sources)
	e.recordPhase("compile", backend, time.Since(compileStart))
	rs.CompileLog = compileLog
	if err != nil {
		log.WithError(err).Warn("harness compilation failed")
		failure := model.NewError(model.ErrKindCompilation,
			fmt.Sprintf("%s compilation failed", tc.Name()), err).WithUnit(unit.ID).WithPhase("compile")
		for _, c := range suite.Cases {
			rs.Results[c.ID] = &model.CaseResult{
				CaseID:   c.ID,
				Failure:  failure,
				ExitCode: -1,
				Stderr:   e.truncate(compileLog),
			}
		}
		return rs, failure
	}
	log.WithField("cases", len(suite.Cases)).Debug("harness compiled")

	execStart := time.Now()
	if e.opts.Mode == ModeBatch {
		err = e.runBatch(ctx, tc, backend, unit, suite, artifact, rs)
	} else {
		err = e.runPerCase(ctx, tc, backend, unit, suite, artifact, rs, suite.Cases)
	}
	e.recordPhase("execute", backend, time.Since(execStart))
	if err != nil {
		return rs, err
	}

	for _, c := range suite.Cases {
		r := rs.Results[c.ID]
		status := "ok"
		if !r.OK() {
			status = "failed"
		}
		if e.metrics != nil {
			e.metrics.RecordCaseExecuted(string(backend), status)
		}
	}
	return rs, nil
}

// runBatch executes the whole suite in one invocation. When the process dies
// mid-batch the cases that already printed their lines keep their outputs and
// the remainder is retried individually, so a single crashing case does not
// take the suite down with it.
func (e *Executor) runBatch(ctx context.Context, tc Toolchain, backend model.Backend, unit *model.Unit, suite *model.Suite, artifact string, rs *model.ResultSet) error {
	res, err := tc.Execute(ctx, artifact, nil)
	if err != nil && res == nil {
		return err
	}

	parsed, malformed := parseHarnessOutput(res.Stdout, unit, suite)

	var missing []model.TestCase
	for _, c := range suite.Cases {
		if outputs, ok := parsed[c.ID]; ok {
			rs.Results[c.ID] = &model.CaseResult{
				CaseID:   c.ID,
				Outputs:  outputs,
				ExitCode: res.ExitCode,
				Duration: res.Duration,
			}
			continue
		}
		if perr, ok := malformed[c.ID]; ok {
			// The line was emitted but unparseable; a retry would print
			// the same line again, and siblings keep their results.
			rs.Results[c.ID] = &model.CaseResult{
				CaseID:   c.ID,
				ExitCode: res.ExitCode,
				Stderr:   e.truncate(res.Stderr),
				Duration: res.Duration,
				Failure: model.NewError(model.ErrKindRuntime, "unparseable harness output", perr).
					WithUnit(unit.ID).WithPhase("execute"),
			}
			continue
		}
		missing = append(missing, c)
	}

	if len(missing) == 0 {
		return nil
	}
	if res.ExitCode == 0 && !res.TimedOut {
		// Clean exit but lines absent: the harness is not following the
		// protocol, which per-case retries will not fix.
		failure := model.NewError(model.ErrKindRuntime,
			"harness exited cleanly without emitting all cases", nil).WithUnit(unit.ID).WithPhase("execute")
		for _, c := range missing {
			rs.Results[c.ID] = &model.CaseResult{
				CaseID:   c.ID,
				Failure:  failure,
				ExitCode: res.ExitCode,
				Stderr:   e.truncate(res.Stderr),
			}
		}
		return nil
	}

	e.log.WithUnitID(unit.ID).WithBackend(string(backend)).
		WithField("missing", len(missing)).
		Debug("batch run incomplete, retrying remaining cases individually")
	return e.runPerCase(ctx, tc, backend, unit, suite, artifact, rs, missing)
}

// runPerCase executes the given cases one process each, bounded by the
// configured concurrency.
func (e *Executor) runPerCase(ctx context.Context, tc Toolchain, backend model.Backend, unit *model.Unit, suite *model.Suite, artifact string, rs *model.ResultSet, cases []model.TestCase) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for _, c := range cases {
		c := c
		g.Go(func() error {
			result := e.runOneCase(gctx, tc, unit, suite, artifact, c)
			mu.Lock()
			rs.Results[c.ID] = result
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (e *Executor) runOneCase(ctx context.Context, tc Toolchain, unit *model.Unit, suite *model.Suite, artifact string, c model.TestCase) *model.CaseResult {
	res, err := tc.Execute(ctx, artifact, []string{c.ID})
	if err != nil {
		result := &model.CaseResult{CaseID: c.ID, ExitCode: -1}
		if res != nil {
			result.ExitCode = res.ExitCode
			result.Stderr = e.truncate(res.Stderr)
			result.Duration = res.Duration
		}
		kind := model.ErrKindRuntime
		if res != nil && res.TimedOut {
			kind = model.ErrKindTimeout
		}
		result.Failure = model.NewError(kind, "case execution failed", err).
			WithUnit(unit.ID).WithPhase("execute")
		return result
	}
	if res.ExitCode != 0 {
		return &model.CaseResult{
			CaseID:   c.ID,
			ExitCode: res.ExitCode,
			Stderr:   e.truncate(res.Stderr),
			Duration: res.Duration,
			Failure: model.NewError(model.ErrKindRuntime,
				fmt.Sprintf("harness exited with code %d", res.ExitCode), nil).
				WithUnit(unit.ID).WithPhase("execute"),
		}
	}

	parsed, malformed := parseHarnessOutput(res.Stdout, unit, suite)
	outputs, ok := parsed[c.ID]
	if !ok {
		perr := malformed[c.ID]
		if perr == nil {
			perr = fmt.Errorf("no output line for case %s", c.ID)
		}
		return &model.CaseResult{
			CaseID:   c.ID,
			ExitCode: res.ExitCode,
			Stderr:   e.truncate(res.Stderr),
			Duration: res.Duration,
			Failure: model.NewError(model.ErrKindRuntime, "unparseable harness output", perr).
				WithUnit(unit.ID).WithPhase("execute"),
		}
	}
	return &model.CaseResult{
		CaseID:   c.ID,
		Outputs:  outputs,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}
}

func (e *Executor) workdir(unitID, phase string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "portcheck-"+unitID+"-"+phase+"-")
	if err != nil {
		return "", nil, model.NewError(model.ErrKindInternal, "create work directory", err).WithUnit(unitID)
	}
	cleanup := func() {
		if e.opts.KeepWorkDirs {
			e.log.WithUnitID(unitID).WithField("dir", dir).Debug("keeping work directory")
			return
		}
		os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

func (e *Executor) recordPhase(phase string, backend model.Backend, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordPhaseDuration(phase, string(backend), d)
	}
}

func (e *Executor) truncate(s string) string {
	if len(s) > e.opts.StderrLimit {
		return s[:e.opts.StderrLimit]
	}
	return s
}

// neutralizeMain renames a unit's own main so it cannot collide with the
// harness entry point at link time.
func neutralizeMain(u *model.Unit) string {
	if u.FunctionByName("main") == nil {
		return u.Source
	}
	return "#define main unit_main_disabled\n" + u.Source
}

// generateHeader emits a guarded header with prototypes for every function in
// the unit, satisfying the user includes of dependent units.
func generateHeader(u *model.Unit) string {
	guard := strings.ToUpper(strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, u.ID)) + "_H"

	var b strings.Builder
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", guard, guard)
	for i := range u.Functions {
		fn := &u.Functions[i]
		if fn.IsStatic || fn.Name == "main" {
			continue
		}
		b.WriteString(cPrototype(fn))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n#endif /* %s */\n", guard)
	return b.String()
}
