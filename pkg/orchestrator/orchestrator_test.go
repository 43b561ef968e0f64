package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/portcheck/portcheck/pkg/convert"
	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
	"github.com/portcheck/portcheck/pkg/validator"
)

func testTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	return tel
}

func simpleUnit(id string, deps ...string) *model.Unit {
	return &model.Unit{
		ID:           id,
		Source:       "int " + id + "_fn(int a) { return a; }\n",
		Dependencies: deps,
		Functions: []model.Function{
			{Name: id + "_fn", ReturnType: model.CTypeInt, Params: []model.Param{
				{Name: "a", Type: model.CTypeInt},
			}},
		},
	}
}

// stubGenerator scripts per-attempt conversion outcomes and records the
// feedback it was handed.
type stubGenerator struct {
	calls     int
	feedbacks []*convert.Feedback
	script    func(attempt int, unit *model.Unit) (string, error)
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Convert(ctx context.Context, unit *model.Unit, deps map[string]string, feedback *convert.Feedback) (string, error) {
	g.calls++
	g.feedbacks = append(g.feedbacks, feedback)
	if g.script != nil {
		return g.script(g.calls, unit)
	}
	return "class " + unit.ID + " {}", nil
}

// stubExecutor fabricates result sets. Baseline outputs are ret=1 per case;
// target outputs are controlled by targetValue, keyed by converted source.
type stubExecutor struct {
	baselineErr  func(unit *model.Unit) error
	targetErr    func(unit *model.Unit, src string) (error, string)
	targetValue  func(src string) int64
	baselineRuns []string
	targetOrder  []string
}

func (e *stubExecutor) results(unit *model.Unit, backend model.Backend, suite *model.Suite, ret int64) *model.ResultSet {
	rs := &model.ResultSet{
		UnitID:  unit.ID,
		Backend: backend,
		Results: make(map[string]*model.CaseResult),
	}
	for _, c := range suite.Cases {
		rs.Results[c.ID] = &model.CaseResult{
			CaseID:  c.ID,
			Outputs: map[string]model.Value{"ret": model.IntValue(ret)},
		}
	}
	return rs
}

func (e *stubExecutor) RunBaseline(ctx context.Context, unit *model.Unit, deps []*model.Unit, suite *model.Suite) (*model.ResultSet, error) {
	e.baselineRuns = append(e.baselineRuns, unit.ID)
	if e.baselineErr != nil {
		if err := e.baselineErr(unit); err != nil {
			return nil, err
		}
	}
	return e.results(unit, model.BackendSource, suite, 1), nil
}

func (e *stubExecutor) RunTarget(ctx context.Context, unit *model.Unit, src string, depSources map[string]string, suite *model.Suite) (*model.ResultSet, error) {
	e.targetOrder = append(e.targetOrder, unit.ID)
	if e.targetErr != nil {
		if err, compileLog := e.targetErr(unit, src); err != nil {
			rs := e.results(unit, model.BackendTarget, suite, 0)
			rs.CompileLog = compileLog
			return rs, err
		}
	}
	ret := int64(1)
	if e.targetValue != nil {
		ret = e.targetValue(src)
	}
	return e.results(unit, model.BackendTarget, suite, ret), nil
}

func newTestOrchestrator(t *testing.T, gen convert.Generator, exec SuiteExecutor, opts Options) *Orchestrator {
	t.Helper()
	tel := testTelemetry(t)
	val := validator.New(validator.DefaultTolerances(), tel.Logger)
	return New(gen, exec, val, tel, nil, opts)
}

func TestRunConvertsInDependencyOrder(t *testing.T) {
	units := []*model.Unit{
		simpleUnit("app", "math"),
		simpleUnit("math", "utils"),
		simpleUnit("utils"),
	}
	gen := &stubGenerator{}
	exec := &stubExecutor{}
	o := newTestOrchestrator(t, gen, exec, Options{})

	rep, err := o.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Status != model.RunStatusSucceeded {
		t.Errorf("status: %s", rep.Status)
	}
	if rep.Converted != 3 || rep.Failed != 0 || rep.Skipped != 0 {
		t.Errorf("counts: %+v", rep)
	}
	want := []string{"utils", "math", "app"}
	for i, id := range want {
		if exec.targetOrder[i] != id {
			t.Fatalf("processing order: %v, want %v", exec.targetOrder, want)
		}
	}
	if rep.ExitCode() != 0 {
		t.Errorf("exit code: %d", rep.ExitCode())
	}
	for _, ur := range rep.Units {
		if ur.Attempts != 1 {
			t.Errorf("unit %s attempts: %d", ur.UnitID, ur.Attempts)
		}
	}
}

func TestBaselineFailureIsFatalAndSkipsConversion(t *testing.T) {
	units := []*model.Unit{simpleUnit("broken")}
	gen := &stubGenerator{}
	exec := &stubExecutor{
		baselineErr: func(unit *model.Unit) error {
			return model.NewError(model.ErrKindCompilation, "gcc exited with code 1", nil).WithUnit(unit.ID)
		},
	}
	o := newTestOrchestrator(t, gen, exec, Options{})

	rep, err := o.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator invoked %d times for a unit with a broken baseline", gen.calls)
	}
	if rep.Units[0].Status != model.StatusFailed {
		t.Errorf("status: %s", rep.Units[0].Status)
	}
	if rep.Units[0].Attempts != 1 {
		t.Errorf("attempts: %d, want exactly 1", rep.Units[0].Attempts)
	}
	if !strings.Contains(rep.Units[0].Error, "gcc") {
		t.Errorf("error: %s", rep.Units[0].Error)
	}
}

func TestRetryThenSuccessAttemptAccounting(t *testing.T) {
	units := []*model.Unit{simpleUnit("math")}
	gen := &stubGenerator{
		script: func(attempt int, unit *model.Unit) (string, error) {
			if attempt == 1 {
				return "bad", nil
			}
			return "good", nil
		},
	}
	exec := &stubExecutor{
		targetValue: func(src string) int64 {
			if src == "bad" {
				return 99
			}
			return 1
		},
	}
	o := newTestOrchestrator(t, gen, exec, Options{MaxRetries: 3})

	rep, err := o.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	ur := rep.Units[0]
	if ur.Status != model.StatusConverted {
		t.Fatalf("status: %s (%s)", ur.Status, ur.Error)
	}
	if ur.Attempts != 2 {
		t.Errorf("attempts: %d, want 2", ur.Attempts)
	}
	if len(ur.Verdicts) != 2 || ur.Verdicts[0].Accepted || !ur.Verdicts[1].Accepted {
		t.Errorf("verdict history: %+v", ur.Verdicts)
	}

	// The retry carried the first attempt's verdict as feedback.
	if len(gen.feedbacks) != 2 {
		t.Fatalf("generator calls: %d", len(gen.feedbacks))
	}
	if gen.feedbacks[0] != nil {
		t.Error("first attempt received feedback")
	}
	if gen.feedbacks[1] == nil || gen.feedbacks[1].Verdict == nil {
		t.Error("retry received no verdict feedback")
	}
}

func TestExhaustedRetriesFailUnitAndSkipDependents(t *testing.T) {
	units := []*model.Unit{
		simpleUnit("math"),
		simpleUnit("app", "math"),
	}
	gen := &stubGenerator{}
	exec := &stubExecutor{
		targetValue: func(string) int64 { return 42 }, // always mismatches
	}
	o := newTestOrchestrator(t, gen, exec, Options{MaxRetries: 3})

	rep, err := o.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var mathRep, appRep UnitReport
	for _, ur := range rep.Units {
		switch ur.UnitID {
		case "math":
			mathRep = ur
		case "app":
			appRep = ur
		}
	}
	if mathRep.Status != model.StatusFailed || mathRep.Attempts != 3 {
		t.Errorf("math: %+v", mathRep)
	}
	if len(mathRep.Verdicts) != 3 {
		t.Errorf("verdict history: %d entries", len(mathRep.Verdicts))
	}
	if appRep.Status != model.StatusSkipped {
		t.Errorf("app: %+v", appRep)
	}
	if rep.Status != model.RunStatusFailed || rep.ExitCode() != 1 {
		t.Errorf("run: status=%s exit=%d", rep.Status, rep.ExitCode())
	}
}

func TestTargetCompileFailureRetriesWithCompileLog(t *testing.T) {
	units := []*model.Unit{simpleUnit("math")}
	gen := &stubGenerator{}
	first := true
	exec := &stubExecutor{
		targetErr: func(unit *model.Unit, src string) (error, string) {
			if first {
				first = false
				return model.NewError(model.ErrKindCompilation, "build failed", nil), "error CS1002"
			}
			return nil, ""
		},
	}
	o := newTestOrchestrator(t, gen, exec, Options{MaxRetries: 3})

	rep, err := o.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	ur := rep.Units[0]
	if ur.Status != model.StatusConverted || ur.Attempts != 2 {
		t.Errorf("unit: %+v", ur)
	}
	if len(gen.feedbacks) != 2 || gen.feedbacks[1] == nil || !strings.Contains(gen.feedbacks[1].CompileLog, "CS1002") {
		t.Errorf("compile log not fed back: %+v", gen.feedbacks)
	}
	// The failed build produced no verdict; only the accepted attempt did.
	if len(ur.Verdicts) != 1 || !ur.Verdicts[0].Accepted {
		t.Errorf("verdicts: %+v", ur.Verdicts)
	}
}

func TestCycleAbortPolicy(t *testing.T) {
	units := []*model.Unit{
		simpleUnit("a", "b"),
		simpleUnit("b", "a"),
	}
	o := newTestOrchestrator(t, &stubGenerator{}, &stubExecutor{}, Options{CyclePolicy: CycleAbort})

	_, err := o.Run(context.Background(), units)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !IsCycleError(err) {
		t.Errorf("error type: %v", err)
	}
}

func TestCycleSeverPolicy(t *testing.T) {
	units := []*model.Unit{
		simpleUnit("a", "b"),
		simpleUnit("b", "a"),
		simpleUnit("c"),
	}
	o := newTestOrchestrator(t, &stubGenerator{}, &stubExecutor{}, Options{CyclePolicy: CycleSever})

	rep, err := o.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rep.SeveredEdges) == 0 {
		t.Error("no severed edges recorded")
	}
	if rep.Converted != 3 {
		t.Errorf("converted: %d, want 3 (%+v)", rep.Converted, rep.Units)
	}
}

func TestSuiteReusedAcrossRetriesByDefault(t *testing.T) {
	units := []*model.Unit{simpleUnit("math")}
	gen := &stubGenerator{}
	exec := &stubExecutor{
		targetValue: func(string) int64 { return 42 },
	}
	o := newTestOrchestrator(t, gen, exec, Options{MaxRetries: 3})

	if _, err := o.Run(context.Background(), units); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// One baseline execution: the suite is fixed across attempts unless
	// random regeneration is enabled.
	if len(exec.baselineRuns) != 1 {
		t.Errorf("baseline runs: %d, want 1", len(exec.baselineRuns))
	}
}

func TestRegenerateRandomRerunsBaseline(t *testing.T) {
	units := []*model.Unit{simpleUnit("math")}
	gen := &stubGenerator{}
	exec := &stubExecutor{
		targetValue: func(string) int64 { return 42 },
	}
	o := newTestOrchestrator(t, gen, exec, Options{MaxRetries: 3, RegenerateRandom: true})

	if _, err := o.Run(context.Background(), units); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(exec.baselineRuns) != 3 {
		t.Errorf("baseline runs: %d, want 3", len(exec.baselineRuns))
	}
}

func TestCancellationMidUnitStopsRetries(t *testing.T) {
	units := []*model.Unit{simpleUnit("math")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &stubGenerator{}
	exec := &stubExecutor{}
	// Shutdown arrives while the converted source is running.
	exec.targetErr = func(unit *model.Unit, src string) (error, string) {
		cancel()
		return model.NewError(model.ErrKindRuntime, "killed by shutdown", nil), ""
	}
	o := newTestOrchestrator(t, gen, exec, Options{MaxRetries: 3})

	rep, err := o.Run(ctx, units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("generator invoked %d times after cancellation, want 1", gen.calls)
	}
	if rep.Status != model.RunStatusCancelled {
		t.Errorf("run status: %s", rep.Status)
	}
	ur := rep.Units[0]
	if ur.Status != model.StatusSkipped {
		t.Errorf("unit status: %s, want skipped not failed", ur.Status)
	}
	if ur.Attempts != 1 {
		t.Errorf("attempts: %d, want 1", ur.Attempts)
	}
}

func TestCancelledContextMarksRunCancelled(t *testing.T) {
	units := []*model.Unit{simpleUnit("math")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(t, &stubGenerator{}, &stubExecutor{}, Options{})
	rep, err := o.Run(ctx, units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Status != model.RunStatusCancelled {
		t.Errorf("status: %s", rep.Status)
	}
	if rep.Units[0].Status != model.StatusSkipped {
		t.Errorf("unit status: %s", rep.Units[0].Status)
	}
}

func TestUnitStateTransitions(t *testing.T) {
	st := newUnitState(simpleUnit("u"))
	if err := st.transition(model.StatusInProgress); err == nil {
		t.Error("pending -> in_progress allowed")
	}
	if err := st.transition(model.StatusReady); err != nil {
		t.Errorf("pending -> ready rejected: %v", err)
	}
	if err := st.transition(model.StatusInProgress); err != nil {
		t.Errorf("ready -> in_progress rejected: %v", err)
	}
	if err := st.transition(model.StatusPending); err == nil {
		t.Error("in_progress -> pending allowed")
	}
	if err := st.transition(model.StatusConverted); err != nil {
		t.Errorf("in_progress -> converted rejected: %v", err)
	}
	if !st.Terminal() {
		t.Error("converted not terminal")
	}
}
