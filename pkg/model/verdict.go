package model

import "fmt"

// DifferenceReason codes why two outputs were judged unequal.
type DifferenceReason string

const (
	// ReasonValueMismatch indicates both sides produced a value and the
	// values differ beyond tolerance.
	ReasonValueMismatch DifferenceReason = "value_mismatch"

	// ReasonKindMismatch indicates the two sides produced values of
	// different kinds for the same output.
	ReasonKindMismatch DifferenceReason = "kind_mismatch"

	// ReasonMissingBaseline indicates the baseline run produced no value
	// for the output.
	ReasonMissingBaseline DifferenceReason = "missing_baseline"

	// ReasonMissingTarget indicates the target run produced no value for
	// the output.
	ReasonMissingTarget DifferenceReason = "missing_target"

	// ReasonBaselineFailed indicates the baseline case failed to execute.
	ReasonBaselineFailed DifferenceReason = "baseline_failed"

	// ReasonTargetFailed indicates the target case failed to execute.
	ReasonTargetFailed DifferenceReason = "target_failed"

	// ReasonLengthMismatch indicates two array outputs differ in length.
	ReasonLengthMismatch DifferenceReason = "length_mismatch"
)

// Difference records one output that differed between the two backends.
type Difference struct {
	// Output is the output name ("ret" or a parameter name, with an
	// element index suffix for array outputs).
	Output string `json:"output"`

	// Reason codes why the outputs were judged unequal.
	Reason DifferenceReason `json:"reason"`

	// Baseline and Target carry the two values when both sides produced
	// one.
	Baseline *Value `json:"baseline,omitempty"`
	Target   *Value `json:"target,omitempty"`

	// Delta is the absolute numeric difference, set only for
	// value_mismatch on numeric outputs.
	Delta float64 `json:"delta,omitempty"`

	// Detail carries extra context, such as a failure message.
	Detail string `json:"detail,omitempty"`
}

// String renders the difference for logs and conversion feedback.
func (d Difference) String() string {
	switch d.Reason {
	case ReasonValueMismatch:
		return fmt.Sprintf("%s: expected %s, got %s (delta=%g)",
			d.Output, d.Baseline.String(), d.Target.String(), d.Delta)
	case ReasonKindMismatch:
		return fmt.Sprintf("%s: expected %s value %s, got %s value %s",
			d.Output, d.Baseline.Kind, d.Baseline.String(), d.Target.Kind, d.Target.String())
	}
	if d.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", d.Output, d.Reason, d.Detail)
	}
	return fmt.Sprintf("%s: %s", d.Output, d.Reason)
}

// CaseVerdict is the comparison result for one test case.
type CaseVerdict struct {
	// CaseID is the test case compared.
	CaseID string `json:"case_id"`

	// Name is the human-readable test case name.
	Name string `json:"name"`

	// Function is the function under test.
	Function string `json:"function"`

	// Match reports whether every output matched within tolerance.
	Match bool `json:"match"`

	// Differences lists every output that differed. Empty when Match.
	Differences []Difference `json:"differences,omitempty"`
}

// UnitVerdict is the aggregate comparison result for one translation unit.
type UnitVerdict struct {
	// UnitID is the translation unit compared.
	UnitID string `json:"unit_id"`

	// Attempt is the conversion attempt the verdict belongs to.
	Attempt int `json:"attempt"`

	// Cases holds the per-case verdicts in suite order.
	Cases []CaseVerdict `json:"cases"`

	// Passed and Failed count the matching and differing cases.
	Passed int `json:"passed"`
	Failed int `json:"failed"`

	// Accepted reports whether the unit is behaviorally equivalent:
	// true iff every case matched.
	Accepted bool `json:"accepted"`
}

// FailedCases returns the verdicts of the cases that did not match.
func (v *UnitVerdict) FailedCases() []CaseVerdict {
	var out []CaseVerdict
	for _, cv := range v.Cases {
		if !cv.Match {
			out = append(out, cv)
		}
	}
	return out
}

// Summary renders a one-line pass/fail summary.
func (v *UnitVerdict) Summary() string {
	return fmt.Sprintf("%d/%d tests passed", v.Passed, v.Passed+v.Failed)
}
