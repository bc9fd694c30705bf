package examination

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable means the target store could not be reached.
var ErrUnavailable = errors.New("examination store unavailable")

// Repository is the target-store surface for examination records.
type Repository interface {
	// ListByDate returns the examinations scheduled on a date,
	// optionally restricted to one procedure kind.
	ListByDate(ctx context.Context, date time.Time, kindID *int64) ([]Record, error)

	// Insert writes a new examination and fills in its row id.
	Insert(ctx context.Context, rec *Record) (*Record, error)

	// Update replaces the mutable fields of an existing examination.
	Update(ctx context.Context, rec *Record) error

	// Delete removes an examination row.
	Delete(ctx context.Context, id int64) error
}
