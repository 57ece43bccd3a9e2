package lifecycle

import (
	"errors"
	"fmt"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

var (
	// ErrInvalidTransition indicates the exam's status or flags do not allow the requested transition.
	ErrInvalidTransition = errors.New("invalid exam transition")
	// ErrValidation indicates caller supplied data is malformed.
	ErrValidation = errors.New("exam validation failed")
	// ErrGuardViolation indicates the transition would break a structural invariant.
	ErrGuardViolation = errors.New("exam guard violation")
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	Action Action
	Status models.ExamStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot %s exam in status %s", e.Action, e.Status)
	}
	return fmt.Sprintf("cannot %s exam in status %s: %s", e.Action, e.Status, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// GuardError reports an action blocked by an invariant.
type GuardError struct {
	Action Action
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("cannot %s exam: %s", e.Action, e.Reason)
}

// Unwrap allows errors.Is(err, ErrGuardViolation).
func (e *GuardError) Unwrap() error {
	return ErrGuardViolation
}

func invalid(action Action, exam models.Exam, reason string) error {
	return &TransitionError{Action: action, Status: exam.Status, Reason: reason}
}
