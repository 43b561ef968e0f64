package orchestrator

import (
	"time"

	"github.com/portcheck/portcheck/pkg/model"
)

// VerdictSummary condenses one validation attempt for the report.
type VerdictSummary struct {
	Attempt  int  `json:"attempt" yaml:"attempt"`
	Passed   int  `json:"passed" yaml:"passed"`
	Failed   int  `json:"failed" yaml:"failed"`
	Accepted bool `json:"accepted" yaml:"accepted"`
}

// UnitReport is the per-unit section of a run report.
type UnitReport struct {
	UnitID   string                 `json:"unit_id" yaml:"unit_id"`
	Status   model.ConversionStatus `json:"status" yaml:"status"`
	Attempts int                    `json:"attempts" yaml:"attempts"`
	Error    string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Verdicts []VerdictSummary       `json:"verdicts,omitempty" yaml:"verdicts,omitempty"`
}

// Report is the outcome of one migration run.
type Report struct {
	RunID     string          `json:"run_id" yaml:"run_id"`
	Project   string          `json:"project" yaml:"project"`
	Status    model.RunStatus `json:"status" yaml:"status"`
	StartedAt time.Time       `json:"started_at" yaml:"started_at"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`

	// Order is the dependency-respecting processing order.
	Order []string `json:"order" yaml:"order"`

	// SeveredEdges lists the dependency edges removed under the sever
	// cycle policy, as [from, to] pairs.
	SeveredEdges [][2]string `json:"severed_edges,omitempty" yaml:"severed_edges,omitempty"`

	Units []UnitReport `json:"units" yaml:"units"`

	Total     int `json:"total" yaml:"total"`
	Converted int `json:"converted" yaml:"converted"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

// ExitCode maps the report onto a process exit code: zero only when every
// unit converted. Partial success still produces the full report.
func (r *Report) ExitCode() int {
	if r.Failed > 0 || r.Skipped > 0 {
		return 1
	}
	return 0
}

func buildReport(runID, project string, startedAt time.Time, order []string, severed [][2]string, states map[string]*UnitState) *Report {
	rep := &Report{
		RunID:        runID,
		Project:      project,
		StartedAt:    startedAt,
		Duration:     time.Since(startedAt),
		Order:        order,
		SeveredEdges: severed,
		Total:        len(states),
	}

	for _, id := range order {
		st, ok := states[id]
		if !ok {
			continue
		}
		ur := UnitReport{
			UnitID:   id,
			Status:   st.Status,
			Attempts: st.Attempts,
		}
		if st.LastError != nil {
			ur.Error = st.LastError.Error()
		}
		for _, v := range st.Verdicts {
			ur.Verdicts = append(ur.Verdicts, VerdictSummary{
				Attempt:  v.Attempt,
				Passed:   v.Passed,
				Failed:   v.Failed,
				Accepted: v.Accepted,
			})
		}
		rep.Units = append(rep.Units, ur)

		switch st.Status {
		case model.StatusConverted:
			rep.Converted++
		case model.StatusFailed:
			rep.Failed++
		case model.StatusSkipped:
			rep.Skipped++
		}
	}

	switch {
	case rep.Converted == rep.Total:
		rep.Status = model.RunStatusSucceeded
	case rep.Converted > 0:
		rep.Status = model.RunStatusPartial
	default:
		rep.Status = model.RunStatusFailed
	}
	return rep
}
