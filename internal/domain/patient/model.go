package patient

import (
	"errors"
	"time"
)

// Identity is one patient row in the target store. ExternalID is the
// source-issued cross-reference key; it is unique when present but not
// every historic row carries one.
type Identity struct {
	ID              int64     `json:"id"`
	ExternalID      *int64    `json:"external_id,omitempty"`
	InsuranceNumber *string   `json:"insurance_number,omitempty"`
	LastName        string    `json:"last_name"`
	FirstName       string    `json:"first_name"`
	BirthDate       time.Time `json:"date_of_birth"`
	SexCode         int16     `json:"sex_code"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

var (
	// ErrNotFound means no identity matched the lookup key.
	ErrNotFound = errors.New("patient not found")

	// ErrUnavailable means the target store could not be reached. The
	// resolver never retries; callers decide.
	ErrUnavailable = errors.New("patient store unavailable")
)
