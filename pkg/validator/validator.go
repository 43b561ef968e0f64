// Package validator compares baseline and target execution results and
// renders the per-unit equivalence verdict. Comparison dispatches on the
// value kind tag assigned at harness-generation time: exact equality for
// integers, booleans and strings, tolerance-based equality for floats.
package validator

import (
	"fmt"
	"math"
	"sort"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

// Tolerances holds the floating-point comparison thresholds.
type Tolerances struct {
	// FloatAbs is the absolute tolerance for single-precision outputs.
	FloatAbs float64 `json:"float_abs"`

	// DoubleAbs is the absolute tolerance for double-precision outputs.
	DoubleAbs float64 `json:"double_abs"`

	// Relative is the relative tolerance applied to either precision.
	Relative float64 `json:"relative"`
}

// DefaultTolerances returns the standard thresholds: 1e-6 absolute for
// single precision, 1e-12 for double, 1e-9 relative.
func DefaultTolerances() Tolerances {
	return Tolerances{
		FloatAbs:  1e-6,
		DoubleAbs: 1e-12,
		Relative:  1e-9,
	}
}

// Validator compares result sets case by case.
type Validator struct {
	tol Tolerances
	log *telemetry.Logger
}

// New creates a validator with the given tolerances.
func New(tol Tolerances, log *telemetry.Logger) *Validator {
	return &Validator{
		tol: tol,
		log: log.NewComponentLogger("validator"),
	}
}

// Validate compares the baseline and target results of a frozen suite and
// returns the unit verdict. The verdict is accepted iff every case matches.
func (v *Validator) Validate(suite *model.Suite, baseline, target *model.ResultSet) *model.UnitVerdict {
	verdict := &model.UnitVerdict{
		UnitID: suite.UnitID,
		Cases:  make([]model.CaseVerdict, 0, len(suite.Cases)),
	}

	for _, tc := range suite.Cases {
		cv := v.validateCase(&tc, baseline.Results[tc.ID], target.Results[tc.ID])
		if cv.Match {
			verdict.Passed++
		} else {
			verdict.Failed++
		}
		verdict.Cases = append(verdict.Cases, cv)
	}

	verdict.Accepted = verdict.Failed == 0 && len(verdict.Cases) > 0
	if len(suite.Cases) == 0 {
		// Nothing to compare; a unit with no testable functions is
		// accepted vacuously.
		verdict.Accepted = true
	}

	v.log.WithUnitID(suite.UnitID).
		Debugf("validated %d cases: %d passed, %d failed", len(verdict.Cases), verdict.Passed, verdict.Failed)
	return verdict
}

// validateCase compares one case's paired results.
func (v *Validator) validateCase(tc *model.TestCase, base, tgt *model.CaseResult) model.CaseVerdict {
	cv := model.CaseVerdict{
		CaseID:   tc.ID,
		Name:     tc.Name,
		Function: tc.Function,
	}

	// Execution failures are automatic mismatches with a reason code.
	if base == nil || !base.OK() {
		cv.Differences = append(cv.Differences, model.Difference{
			Output: "ret",
			Reason: model.ReasonBaselineFailed,
			Detail: failureDetail(base),
		})
	}
	if tgt == nil || !tgt.OK() {
		cv.Differences = append(cv.Differences, model.Difference{
			Output: "ret",
			Reason: model.ReasonTargetFailed,
			Detail: failureDetail(tgt),
		})
	}
	if len(cv.Differences) > 0 {
		return cv
	}

	for _, name := range outputNames(base, tgt) {
		bv, bok := base.Outputs[name]
		tv, tok := tgt.Outputs[name]
		switch {
		case !bok:
			cv.Differences = append(cv.Differences, model.Difference{
				Output: name,
				Reason: model.ReasonMissingBaseline,
				Target: &tv,
			})
		case !tok:
			cv.Differences = append(cv.Differences, model.Difference{
				Output: name,
				Reason: model.ReasonMissingTarget,
				Baseline: &bv,
			})
		default:
			cv.Differences = append(cv.Differences, v.compareValue(name, bv, tv)...)
		}
	}

	cv.Match = len(cv.Differences) == 0
	return cv
}

// compareValue compares one output pair, dispatching on the declared kind.
func (v *Validator) compareValue(name string, base, tgt model.Value) []model.Difference {
	if base.Kind != tgt.Kind {
		return []model.Difference{{
			Output:   name,
			Reason:   model.ReasonKindMismatch,
			Baseline: &base,
			Target:   &tgt,
		}}
	}

	switch base.Kind {
	case model.KindInt:
		if base.Int != tgt.Int {
			return []model.Difference{valueDiff(name, base, tgt, math.Abs(float64(base.Int)-float64(tgt.Int)))}
		}
	case model.KindUint:
		if base.Uint != tgt.Uint {
			return []model.Difference{valueDiff(name, base, tgt, math.Abs(float64(base.Uint)-float64(tgt.Uint)))}
		}
	case model.KindBool:
		if base.Bool != tgt.Bool {
			return []model.Difference{valueDiff(name, base, tgt, 0)}
		}
	case model.KindString:
		if base.Str != tgt.Str {
			return []model.Difference{valueDiff(name, base, tgt, 0)}
		}
	case model.KindNull:
		// Two nulls are equal.
	case model.KindFloat:
		if !v.floatsEqual(base, tgt) {
			return []model.Difference{valueDiff(name, base, tgt, math.Abs(base.Float-tgt.Float))}
		}
	case model.KindArray:
		return v.compareArray(name, base, tgt)
	}
	return nil
}

// compareArray compares two array outputs element-wise.
func (v *Validator) compareArray(name string, base, tgt model.Value) []model.Difference {
	if len(base.Elems) != len(tgt.Elems) {
		return []model.Difference{{
			Output:   name,
			Reason:   model.ReasonLengthMismatch,
			Baseline: &base,
			Target:   &tgt,
			Detail:   fmt.Sprintf("baseline has %d elements, target has %d", len(base.Elems), len(tgt.Elems)),
		}}
	}
	var diffs []model.Difference
	for i := range base.Elems {
		diffs = append(diffs, v.compareValue(fmt.Sprintf("%s[%d]", name, i), base.Elems[i], tgt.Elems[i])...)
	}
	return diffs
}

// floatsEqual applies the tolerance rule: equal if both NaN, both infinite
// with the same sign, or within the absolute or relative threshold.
func (v *Validator) floatsEqual(base, tgt model.Value) bool {
	a, b := base.Float, tgt.Float

	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}

	abs := v.tol.DoubleAbs
	if base.Width == 32 || tgt.Width == 32 {
		abs = v.tol.FloatAbs
	}

	diff := math.Abs(a - b)
	if diff <= abs {
		return true
	}
	return diff <= v.tol.Relative*math.Max(math.Abs(a), math.Abs(b))
}

func valueDiff(name string, base, tgt model.Value, delta float64) model.Difference {
	return model.Difference{
		Output:   name,
		Reason:   model.ReasonValueMismatch,
		Baseline: &base,
		Target:   &tgt,
		Delta:    delta,
	}
}

// outputNames returns the union of the two results' output names, sorted
// with "ret" first for readable diffs.
func outputNames(base, tgt *model.CaseResult) []string {
	seen := make(map[string]bool)
	for name := range base.Outputs {
		seen[name] = true
	}
	for name := range tgt.Outputs {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		if name != "ret" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if seen["ret"] {
		names = append([]string{"ret"}, names...)
	}
	return names
}

func failureDetail(r *model.CaseResult) string {
	if r == nil {
		return "no result recorded"
	}
	if r.Failure != nil {
		return r.Failure.Error()
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}
