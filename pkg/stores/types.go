// Package stores persists migration runs, per-unit outcomes, case verdicts,
// and engine events in SQLite. The schema lives in embedded migrations and is
// applied with golang-migrate on startup.
package stores

import (
	"time"

	"github.com/portcheck/portcheck/pkg/model"
)

// Run is the persisted record of one migration run.
type Run struct {
	ID             string          `json:"id"`
	Project        string          `json:"project"`
	Status         model.RunStatus `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	UnitsTotal     int             `json:"units_total"`
	UnitsConverted int             `json:"units_converted"`
	UnitsFailed    int             `json:"units_failed"`
	UnitsSkipped   int             `json:"units_skipped"`
	Error          *string         `json:"error,omitempty"`
}

// UnitOutcome is the persisted terminal state of one unit within a run.
type UnitOutcome struct {
	RunID     string                 `json:"run_id"`
	UnitID    string                 `json:"unit_id"`
	Status    model.ConversionStatus `json:"status"`
	Attempts  int                    `json:"attempts"`
	Detail    string                 `json:"detail,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// CaseVerdictRecord is one persisted case comparison.
type CaseVerdictRecord struct {
	RunID    string `json:"run_id"`
	UnitID   string `json:"unit_id"`
	Attempt  int    `json:"attempt"`
	CaseID   string `json:"case_id"`
	CaseName string `json:"case_name"`
	Function string `json:"function"`
	Match    bool   `json:"match"`
	Detail   string `json:"detail,omitempty"`
}

// EventRecord is one persisted engine event.
type EventRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	UnitID    string    `json:"unit_id,omitempty"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
