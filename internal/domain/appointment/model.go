package appointment

import "time"

// Status is the scheduling state an appointment carries in the source
// system.
type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusFinished  Status = "finished_final"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "no_show"
)

// IsCompletion reports whether the status denotes an appointment that
// actually took place.
func (s Status) IsCompletion() bool {
	return s == StatusFinished
}

// IsActive reports whether the status denotes a planned appointment that
// has not been canceled or missed.
func (s Status) IsActive() bool {
	switch s {
	case StatusCreated, StatusConfirmed, StatusPending:
		return true
	}
	return false
}

// Record is one appointment as reported by the scheduling source.
// Identifier fields that the source may omit are pointers so that
// "absent" stays distinguishable from a zero value.
type Record struct {
	ID                int64
	Date              time.Time
	Time              string
	Status            Status
	KindID            int64
	PractitionerID    int64
	LocationID        int64
	ExternalPatientID *int64
	InsuranceNumber   *string
	FirstName         string
	LastName          string
	BirthDate         *time.Time
	Notes             string
}

// Filter narrows a source fetch. A nil field means no restriction.
// StatusOverride disables the date-based status policy and passes the
// given status straight to the source.
type Filter struct {
	KindID         *int64
	PractitionerID *int64
	LocationID     *int64
	StatusOverride *Status
}

// ApplyStatusPolicy drops appointments that should not be reconciled for
// the given day. Past days keep only appointments that took place; today
// and future days keep only active, non-canceled ones. With an explicit
// status override the policy is disabled and records pass unchanged.
func ApplyStatusPolicy(records []Record, day, today time.Time, override *Status) []Record {
	if override != nil {
		return records
	}

	day = truncateToDay(day)
	today = truncateToDay(today)

	out := records[:0:0]
	for _, r := range records {
		if day.Before(today) {
			if r.Status.IsCompletion() {
				out = append(out, r)
			}
			continue
		}
		if r.Status.IsActive() {
			out = append(out, r)
		}
	}
	return out
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
