package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/phoenikes/calldoc-sync/internal/domain/appointment"
)

// ScopeKind distinguishes the two supported sync scopes.
type ScopeKind string

const (
	ScopeDay     ScopeKind = "day"
	ScopePatient ScopeKind = "patient"
)

// Scope identifies what one reconciliation run covers.
type Scope struct {
	Kind              ScopeKind
	Date              time.Time
	ExternalPatientID int64 // patient scope only
	ProcedureKindID   int64
	PractitionerID    *int64
	LocationID        *int64
	StatusOverride    *appointment.Status
	// DeleteObsolete enables the delete pass for this run on top of the
	// engine-level setting. Day scope only.
	DeleteObsolete bool
}

// Key is the identity used for in-flight conflict detection. Two
// requests with equal keys are the same work.
func (s Scope) Key() string {
	date := s.Date.Format("2006-01-02")
	if s.Kind == ScopePatient {
		return fmt.Sprintf("patient|%d|%s|%d", s.ExternalPatientID, date, s.ProcedureKindID)
	}
	return fmt.Sprintf("day|%s|%d", date, s.ProcedureKindID)
}

// State is a task's lifecycle position.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Result summarizes what a reconciliation run did.
type Result struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
	// PatientsCreated counts new identities the resolver had to create.
	PatientsCreated int `json:"patientsCreated"`
	// Action is set for single-patient scope: created, updated or
	// already_exists.
	Action string   `json:"action,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// Task is one asynchronous reconciliation unit. Fields are guarded by
// the coordinator's lock; cancel is set while the task runs.
type Task struct {
	ID        string
	Scope     Scope
	State     State
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Result    *Result
	Err       string

	cancel context.CancelFunc
}

// newTaskID builds an id from the scope and creation time, readable in
// logs: sync_2025-10-06_day_20251006093045.
func newTaskID(scope Scope, at time.Time) string {
	kind := string(scope.Kind)
	if scope.Kind == ScopePatient {
		kind = fmt.Sprintf("patient%d", scope.ExternalPatientID)
	}
	return fmt.Sprintf("sync_%s_%s_%s",
		scope.Date.Format("2006-01-02"), kind, at.Format("20060102150405"))
}

// View is the externally visible snapshot of a task.
type View struct {
	TaskID          string   `json:"taskId"`
	State           State    `json:"state"`
	Scope           string   `json:"scope"`
	StartTime       *string  `json:"startTime,omitempty"`
	EndTime         *string  `json:"endTime,omitempty"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
	Result          *Result  `json:"result,omitempty"`
	Error           string   `json:"error,omitempty"`
}

func (t *Task) view() View {
	v := View{
		TaskID: t.ID,
		State:  t.State,
		Scope:  t.Scope.Key(),
		Result: t.Result,
		Error:  t.Err,
	}
	if t.StartedAt != nil {
		s := t.StartedAt.UTC().Format(time.RFC3339)
		v.StartTime = &s
	}
	if t.EndedAt != nil {
		e := t.EndedAt.UTC().Format(time.RFC3339)
		v.EndTime = &e
		if t.StartedAt != nil {
			d := t.EndedAt.Sub(*t.StartedAt).Seconds()
			v.DurationSeconds = &d
		}
	}
	return v
}
