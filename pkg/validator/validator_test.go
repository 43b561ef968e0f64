package validator

import (
	"math"
	"testing"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	log, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	return log
}

func singleCaseSuite() *model.Suite {
	s := &model.Suite{UnitID: "math_ops"}
	s.Add(model.TestCase{ID: "t1", Name: "add_boundary_0", Function: "add"})
	s.Freeze()
	return s
}

func resultSet(backend model.Backend, outputs map[string]model.Value) *model.ResultSet {
	return &model.ResultSet{
		UnitID:  "math_ops",
		Backend: backend,
		Results: map[string]*model.CaseResult{
			"t1": {CaseID: "t1", Outputs: outputs},
		},
	}
}

func validate(t *testing.T, tol Tolerances, base, tgt map[string]model.Value) *model.UnitVerdict {
	t.Helper()
	v := New(tol, testLogger(t))
	return v.Validate(singleCaseSuite(),
		resultSet(model.BackendSource, base),
		resultSet(model.BackendTarget, tgt))
}

func TestExactEqualityForIntegers(t *testing.T) {
	verdict := validate(t, DefaultTolerances(),
		map[string]model.Value{"ret": model.IntValue(42)},
		map[string]model.Value{"ret": model.IntValue(42)})
	if !verdict.Accepted {
		t.Errorf("equal integers rejected: %+v", verdict.Cases[0].Differences)
	}

	verdict = validate(t, DefaultTolerances(),
		map[string]model.Value{"ret": model.IntValue(42)},
		map[string]model.Value{"ret": model.IntValue(43)})
	if verdict.Accepted {
		t.Error("unequal integers accepted")
	}
	d := verdict.Cases[0].Differences[0]
	if d.Reason != model.ReasonValueMismatch || d.Delta != 1 {
		t.Errorf("unexpected difference: %+v", d)
	}
}

func TestDoubleToleranceBoundary(t *testing.T) {
	// 3.14159265 vs 3.14159266 differs by 1e-8: outside the default
	// double tolerance, inside a relaxed 1e-6 absolute tolerance.
	base := map[string]model.Value{"ret": model.FloatValue(3.14159265)}
	tgt := map[string]model.Value{"ret": model.FloatValue(3.14159266)}

	if verdict := validate(t, DefaultTolerances(), base, tgt); verdict.Accepted {
		t.Error("1e-8 difference accepted under default double tolerance")
	}

	relaxed := DefaultTolerances()
	relaxed.DoubleAbs = 1e-6
	if verdict := validate(t, relaxed, base, tgt); !verdict.Accepted {
		t.Error("1e-8 difference rejected under 1e-6 absolute tolerance")
	}
}

func TestSinglePrecisionUsesFloatTolerance(t *testing.T) {
	base := map[string]model.Value{"ret": model.Float32Value(1.0)}
	tgt := map[string]model.Value{"ret": model.Float32Value(1.0 + 5e-7)}
	if verdict := validate(t, DefaultTolerances(), base, tgt); !verdict.Accepted {
		t.Error("difference within single-precision tolerance rejected")
	}
}

func TestRelativeToleranceForLargeValues(t *testing.T) {
	// 1e12 vs 1e12+100: absolute diff 100 but relative diff 1e-10,
	// inside the 1e-9 relative tolerance.
	base := map[string]model.Value{"ret": model.FloatValue(1e12)}
	tgt := map[string]model.Value{"ret": model.FloatValue(1e12 + 100)}
	if verdict := validate(t, DefaultTolerances(), base, tgt); !verdict.Accepted {
		t.Error("large values within relative tolerance rejected")
	}
}

func TestNaNAndInfinityRules(t *testing.T) {
	tests := []struct {
		name  string
		a, b  float64
		equal bool
	}{
		{"both nan", math.NaN(), math.NaN(), true},
		{"nan vs value", math.NaN(), 1.0, false},
		{"both +inf", math.Inf(1), math.Inf(1), true},
		{"both -inf", math.Inf(-1), math.Inf(-1), true},
		{"opposite inf", math.Inf(1), math.Inf(-1), false},
		{"inf vs value", math.Inf(1), 1e300, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := validate(t, DefaultTolerances(),
				map[string]model.Value{"ret": model.FloatValue(tt.a)},
				map[string]model.Value{"ret": model.FloatValue(tt.b)})
			if verdict.Accepted != tt.equal {
				t.Errorf("%g vs %g: accepted=%v, want %v", tt.a, tt.b, verdict.Accepted, tt.equal)
			}
		})
	}
}

func TestToleranceIsSymmetric(t *testing.T) {
	pairs := [][2]float64{
		{3.14159265, 3.14159266},
		{1e12, 1e12 + 100},
		{math.NaN(), 2.5},
		{math.Inf(1), math.Inf(-1)},
		{0, 1e-13},
	}
	for _, pair := range pairs {
		fwd := validate(t, DefaultTolerances(),
			map[string]model.Value{"ret": model.FloatValue(pair[0])},
			map[string]model.Value{"ret": model.FloatValue(pair[1])})
		rev := validate(t, DefaultTolerances(),
			map[string]model.Value{"ret": model.FloatValue(pair[1])},
			map[string]model.Value{"ret": model.FloatValue(pair[0])})
		if fwd.Accepted != rev.Accepted {
			t.Errorf("asymmetric verdict for %g vs %g", pair[0], pair[1])
		}
	}
}

func TestMissingOutputIsReasonCodedMismatch(t *testing.T) {
	verdict := validate(t, DefaultTolerances(),
		map[string]model.Value{"ret": model.IntValue(1), "out": model.IntValue(2)},
		map[string]model.Value{"ret": model.IntValue(1)})
	if verdict.Accepted {
		t.Fatal("missing target output accepted")
	}
	d := verdict.Cases[0].Differences[0]
	if d.Reason != model.ReasonMissingTarget {
		t.Errorf("reason: got %s, want %s", d.Reason, model.ReasonMissingTarget)
	}
	if d.Delta != 0 {
		t.Errorf("missing output recorded a numeric delta: %g", d.Delta)
	}
}

func TestFailedExecutionIsMismatch(t *testing.T) {
	v := New(DefaultTolerances(), testLogger(t))
	base := resultSet(model.BackendSource, map[string]model.Value{"ret": model.IntValue(1)})
	tgt := &model.ResultSet{
		UnitID:  "math_ops",
		Backend: model.BackendTarget,
		Results: map[string]*model.CaseResult{
			"t1": {
				CaseID:  "t1",
				Failure: model.NewError(model.ErrKindRuntime, "harness crashed", nil),
			},
		},
	}
	verdict := v.Validate(singleCaseSuite(), base, tgt)
	if verdict.Accepted {
		t.Fatal("failed target execution accepted")
	}
	if verdict.Cases[0].Differences[0].Reason != model.ReasonTargetFailed {
		t.Errorf("reason: got %s", verdict.Cases[0].Differences[0].Reason)
	}
}

func TestKindMismatch(t *testing.T) {
	verdict := validate(t, DefaultTolerances(),
		map[string]model.Value{"ret": model.IntValue(1)},
		map[string]model.Value{"ret": model.FloatValue(1)})
	if verdict.Accepted {
		t.Fatal("kind mismatch accepted")
	}
	if verdict.Cases[0].Differences[0].Reason != model.ReasonKindMismatch {
		t.Errorf("reason: got %s", verdict.Cases[0].Differences[0].Reason)
	}
}

func TestArrayComparison(t *testing.T) {
	eq := validate(t, DefaultTolerances(),
		map[string]model.Value{"out": model.ArrayValue(model.IntValue(1), model.IntValue(2))},
		map[string]model.Value{"out": model.ArrayValue(model.IntValue(1), model.IntValue(2))})
	if !eq.Accepted {
		t.Error("equal arrays rejected")
	}

	lenDiff := validate(t, DefaultTolerances(),
		map[string]model.Value{"out": model.ArrayValue(model.IntValue(1))},
		map[string]model.Value{"out": model.ArrayValue(model.IntValue(1), model.IntValue(2))})
	if lenDiff.Accepted {
		t.Fatal("arrays of different lengths accepted")
	}
	if lenDiff.Cases[0].Differences[0].Reason != model.ReasonLengthMismatch {
		t.Errorf("reason: got %s", lenDiff.Cases[0].Differences[0].Reason)
	}

	elemDiff := validate(t, DefaultTolerances(),
		map[string]model.Value{"out": model.ArrayValue(model.IntValue(1), model.IntValue(2))},
		map[string]model.Value{"out": model.ArrayValue(model.IntValue(1), model.IntValue(3))})
	if elemDiff.Accepted {
		t.Fatal("arrays with differing element accepted")
	}
	d := elemDiff.Cases[0].Differences[0]
	if d.Output != "out[1]" {
		t.Errorf("difference output: got %s, want out[1]", d.Output)
	}
}

func TestVerdictCountsAndAccepted(t *testing.T) {
	s := &model.Suite{UnitID: "math_ops"}
	s.Add(model.TestCase{ID: "t1", Name: "add_boundary_0", Function: "add"})
	s.Add(model.TestCase{ID: "t2", Name: "add_boundary_1", Function: "add"})
	s.Freeze()

	base := &model.ResultSet{
		UnitID: "math_ops", Backend: model.BackendSource,
		Results: map[string]*model.CaseResult{
			"t1": {CaseID: "t1", Outputs: map[string]model.Value{"ret": model.IntValue(1)}},
			"t2": {CaseID: "t2", Outputs: map[string]model.Value{"ret": model.IntValue(2)}},
		},
	}
	tgt := &model.ResultSet{
		UnitID: "math_ops", Backend: model.BackendTarget,
		Results: map[string]*model.CaseResult{
			"t1": {CaseID: "t1", Outputs: map[string]model.Value{"ret": model.IntValue(1)}},
			"t2": {CaseID: "t2", Outputs: map[string]model.Value{"ret": model.IntValue(99)}},
		},
	}

	v := New(DefaultTolerances(), testLogger(t))
	verdict := v.Validate(s, base, tgt)
	if verdict.Passed != 1 || verdict.Failed != 1 {
		t.Errorf("counts: passed=%d failed=%d", verdict.Passed, verdict.Failed)
	}
	if verdict.Accepted {
		t.Error("verdict with failures accepted")
	}
	if len(verdict.FailedCases()) != 1 {
		t.Errorf("FailedCases: got %d", len(verdict.FailedCases()))
	}
}
