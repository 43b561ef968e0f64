package model

import (
	"encoding/json"
	"fmt"
)

// ConversionStatus represents the migration state of one translation unit.
type ConversionStatus string

const (
	// StatusPending indicates the unit is waiting on unconverted dependencies.
	StatusPending ConversionStatus = "pending"

	// StatusReady indicates every dependency is converted and the unit may
	// be picked up.
	StatusReady ConversionStatus = "ready"

	// StatusInProgress indicates a conversion attempt is running.
	StatusInProgress ConversionStatus = "in_progress"

	// StatusConverted indicates the unit passed differential validation.
	StatusConverted ConversionStatus = "converted"

	// StatusFailed indicates the unit exhausted its attempts or hit a
	// fatal failure.
	StatusFailed ConversionStatus = "failed"

	// StatusSkipped indicates the unit never became ready, either because
	// it sits on a dependency cycle or a dependency failed.
	StatusSkipped ConversionStatus = "skipped"
)

// IsTerminal returns true if the status represents a final state.
func (s ConversionStatus) IsTerminal() bool {
	return s == StatusConverted || s == StatusFailed || s == StatusSkipped
}

// IsActive returns true if the unit still participates in scheduling.
func (s ConversionStatus) IsActive() bool {
	return s == StatusPending || s == StatusReady || s == StatusInProgress
}

// Validate checks if the conversion status is valid.
func (s ConversionStatus) Validate() error {
	switch s {
	case StatusPending, StatusReady, StatusInProgress,
		StatusConverted, StatusFailed, StatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid conversion status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s ConversionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ConversionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ConversionStatus(str)
	return s.Validate()
}

// RunStatus represents the overall status of a migration run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every unit converted.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusPartial indicates some units converted while others failed
	// or were skipped.
	RunStatusPartial RunStatus = "partial"

	// RunStatusFailed indicates no unit converted.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusPartial ||
		s == RunStatusFailed || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusPartial,
		RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}
