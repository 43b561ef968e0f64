package orchestrator

import (
	"fmt"

	"github.com/portcheck/portcheck/pkg/model"
)

// UnitState tracks one unit through the conversion state machine:
// Pending -> Ready -> InProgress -> Converted | Failed, with Skipped for
// units that never become Ready.
type UnitState struct {
	Unit *model.Unit

	Status model.ConversionStatus

	// Attempts counts conversion attempts, starting at 1 for the first.
	Attempts int

	// Verdicts is the verdict history across attempts.
	Verdicts []*model.UnitVerdict

	// Source holds the accepted C# source once converted.
	Source string

	// LastError records why the unit failed or was skipped.
	LastError error
}

var validTransitions = map[model.ConversionStatus][]model.ConversionStatus{
	model.StatusPending:    {model.StatusReady, model.StatusSkipped},
	model.StatusReady:      {model.StatusInProgress, model.StatusSkipped},
	model.StatusInProgress: {model.StatusConverted, model.StatusFailed},
}

func newUnitState(unit *model.Unit) *UnitState {
	return &UnitState{Unit: unit, Status: model.StatusPending}
}

// transition moves the unit to the given status, rejecting moves the state
// machine does not allow.
func (s *UnitState) transition(to model.ConversionStatus) error {
	for _, allowed := range validTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			return nil
		}
	}
	return model.NewError(model.ErrKindInternal,
		fmt.Sprintf("invalid transition %s -> %s for unit %s", s.Status, to, s.Unit.ID), nil)
}

// Terminal reports whether the unit reached a terminal status.
func (s *UnitState) Terminal() bool {
	return s.Status.IsTerminal()
}
