package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrPatientNotScheduled means a single-patient sync found no
	// matching appointment on the requested date. The message doubles
	// as the task's error label, so it stays a bare identifier.
	ErrPatientNotScheduled = errors.New("PatientNotScheduled")

	// ErrTaskNotFound means the task id is unknown or already evicted.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskTerminal means the task already finished and cannot be
	// canceled.
	ErrTaskTerminal = errors.New("task already terminal")

	// ErrDependencyUnavailable means the scheduling source or the
	// target store could not be reached. Never retried automatically;
	// re-running is the caller's call.
	ErrDependencyUnavailable = errors.New("DependencyUnavailable")

	// ErrTimeout means the task exceeded its wall-clock budget. Writes
	// applied before expiry are not rolled back.
	ErrTimeout = errors.New("Timeout: wall-clock budget exceeded, earlier writes may already be committed")
)

// ConflictError rejects a request whose scope matches a task already in
// flight. It carries the existing task's id so the caller can poll it.
type ConflictError struct {
	TaskID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identical sync already in flight: %s", e.TaskID)
}

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}
