package model

import (
	"fmt"
	"time"
)

// TestCategory classifies how a test case was generated.
type TestCategory string

const (
	// CategoryBoundary covers type extrema and min/max combinations.
	CategoryBoundary TestCategory = "boundary"

	// CategoryEdge covers structurally detected special conditions such
	// as null pointers and zero divisors.
	CategoryEdge TestCategory = "edge"

	// CategoryRandom covers seeded pseudo-random inputs.
	CategoryRandom TestCategory = "random"
)

// TestCase is one generated input binding for a function under test.
// Expected outputs stay unset until baseline execution fills them in.
type TestCase struct {
	// ID is a stable identifier, unique within a suite, used as the key
	// in the harness wire format.
	ID string `json:"id"`

	// Name is a human-readable name: <function>_<category>_<n>.
	Name string `json:"name"`

	// Function is the name of the function under test.
	Function string `json:"function"`

	// Category records the generation strategy.
	Category TestCategory `json:"category"`

	// Inputs maps parameter names to their typed values.
	Inputs map[string]Value `json:"inputs"`

	// Expected holds the baseline outputs once captured. Nil before the
	// baseline run.
	Expected map[string]Value `json:"expected,omitempty"`
}

// Suite is the frozen set of test cases for one translation unit. Membership
// is append-only during generation; Freeze seals it.
type Suite struct {
	// UnitID is the translation unit the suite belongs to.
	UnitID string `json:"unit_id"`

	// Seed is the random seed the suite was generated with.
	Seed int64 `json:"seed"`

	// Cases is the ordered list of test cases.
	Cases []TestCase `json:"cases"`

	frozen bool
}

// Add appends a case to the suite. It panics if the suite is frozen;
// generation is the only writer and freezes the suite when done.
func (s *Suite) Add(tc TestCase) {
	if s.frozen {
		panic(fmt.Sprintf("suite for %s is frozen", s.UnitID))
	}
	s.Cases = append(s.Cases, tc)
}

// Freeze seals the suite against further additions.
func (s *Suite) Freeze() {
	s.frozen = true
}

// Frozen reports whether the suite has been sealed.
func (s *Suite) Frozen() bool {
	return s.frozen
}

// CaseByID returns the test case with the given ID, or nil.
func (s *Suite) CaseByID(id string) *TestCase {
	for i := range s.Cases {
		if s.Cases[i].ID == id {
			return &s.Cases[i]
		}
	}
	return nil
}

// CasesForFunction returns the cases targeting the named function.
func (s *Suite) CasesForFunction(name string) []TestCase {
	var out []TestCase
	for _, tc := range s.Cases {
		if tc.Function == name {
			out = append(out, tc)
		}
	}
	return out
}

// Backend identifies which side of the migration produced a result.
type Backend string

const (
	// BackendSource is the original C toolchain.
	BackendSource Backend = "source"

	// BackendTarget is the converted C# toolchain.
	BackendTarget Backend = "target"
)

// CaseResult is the write-once record of executing one test case on one
// backend.
type CaseResult struct {
	// CaseID is the test case this result belongs to.
	CaseID string `json:"case_id"`

	// Outputs maps declared output names ("ret" plus observable pointer
	// parameters) to the values the harness emitted.
	Outputs map[string]Value `json:"outputs,omitempty"`

	// Failure is set when the case did not produce usable outputs.
	Failure *MigrationError `json:"failure,omitempty"`

	// ExitCode is the harness process exit code.
	ExitCode int `json:"exit_code"`

	// Stderr holds a bounded excerpt of the process stderr.
	Stderr string `json:"stderr,omitempty"`

	// Duration is the wall time attributed to this case.
	Duration time.Duration `json:"duration"`
}

// OK reports whether the case executed and produced outputs.
func (r *CaseResult) OK() bool {
	return r.Failure == nil
}

// ResultSet holds the per-case results of running a full suite on one
// backend.
type ResultSet struct {
	// UnitID is the translation unit the results belong to.
	UnitID string `json:"unit_id"`

	// Backend identifies the toolchain that produced the results.
	Backend Backend `json:"backend"`

	// Results maps test case IDs to their results. One entry per case
	// in the suite; compilation failures populate every entry.
	Results map[string]*CaseResult `json:"results"`

	// CompileLog holds the compiler stderr when compilation failed.
	CompileLog string `json:"compile_log,omitempty"`

	// StartedAt and Duration cover the whole suite run.
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether every case in the set carries a failure, which is
// the shape a unit-granular compilation failure produces.
func (rs *ResultSet) Failed() bool {
	if len(rs.Results) == 0 {
		return true
	}
	for _, r := range rs.Results {
		if r.OK() {
			return false
		}
	}
	return true
}
