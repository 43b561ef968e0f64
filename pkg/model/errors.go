package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a migration failure for retry and reporting logic.
type ErrorKind string

const (
	// ErrKindCycle indicates a dependency cycle made ordering impossible.
	ErrKindCycle ErrorKind = "cyclic_dependency"

	// ErrKindCompilation indicates a toolchain failed to compile a unit
	// or its harness.
	ErrKindCompilation ErrorKind = "compilation"

	// ErrKindRuntime indicates a harness process crashed or exited
	// abnormally.
	ErrKindRuntime ErrorKind = "runtime"

	// ErrKindValidation indicates differential validation rejected the
	// converted unit.
	ErrKindValidation ErrorKind = "validation"

	// ErrKindGeneration indicates the conversion generator failed to
	// produce target source.
	ErrKindGeneration ErrorKind = "generation"

	// ErrKindTimeout indicates a compile or execute phase exceeded its
	// deadline.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindInternal indicates an engine-side failure unrelated to the
	// code under migration.
	ErrKindInternal ErrorKind = "internal"
)

// MigrationError represents a classified error with unit and phase context.
type MigrationError struct {
	// Kind is the error classification for retry logic.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Unit is the translation unit the error relates to, if applicable.
	Unit string `json:"unit,omitempty"`

	// Phase is the pipeline phase that produced the error
	// (parse, order, generate, baseline, convert, target, validate).
	Phase string `json:"phase,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	if e.Unit != "" && e.Phase != "" {
		return fmt.Sprintf("[%s] %s (unit=%s, phase=%s)%s",
			e.Kind, e.Message, e.Unit, e.Phase, e.unwrapSuffix())
	}
	if e.Unit != "" {
		return fmt.Sprintf("[%s] %s (unit=%s)%s", e.Kind, e.Message, e.Unit, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Kind, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

func (e *MigrationError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *MigrationError) Is(target error) bool {
	t, ok := target.(*MigrationError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a classified migration error.
func NewError(kind ErrorKind, message string, err error) *MigrationError {
	return &MigrationError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// WithUnit adds unit context to an error.
func (e *MigrationError) WithUnit(unitID string) *MigrationError {
	e.Unit = unitID
	return e
}

// WithPhase adds phase context to an error.
func (e *MigrationError) WithPhase(phase string) *MigrationError {
	e.Phase = phase
	return e
}

// KindOf returns the classification of an error, or ErrKindInternal when the
// error carries no classification.
func KindOf(err error) ErrorKind {
	var e *MigrationError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindInternal
}

// IsRetryable returns true if a failed conversion attempt with this error may
// succeed on a further attempt. Validation rejections and target-side failures
// are retryable because a regenerated conversion can fix them; cycle errors
// and engine-internal failures are not.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrKindValidation, ErrKindCompilation, ErrKindRuntime,
		ErrKindGeneration, ErrKindTimeout:
		return true
	}
	return false
}
