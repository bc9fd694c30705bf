package patient

import (
	"context"
	"time"
)

// Repository is the target-store surface for patient identities.
type Repository interface {
	// GetByExternalID returns the identity carrying the given source key,
	// or ErrNotFound.
	GetByExternalID(ctx context.Context, externalID int64) (*Identity, error)

	// FindByNameDOB returns all identities matching normalized surname,
	// given name and birth date. Multiple rows mean the match is
	// ambiguous; the caller must not pick one.
	FindByNameDOB(ctx context.Context, lastName, firstName string, birthDate time.Time) ([]Identity, error)

	// MaxExternalID returns the highest external id currently assigned,
	// or 0 when none exists.
	MaxExternalID(ctx context.Context) (int64, error)

	// Create inserts a new identity and returns it with its assigned row id.
	Create(ctx context.Context, identity *Identity) (*Identity, error)
}

// InsuranceIndex resolves an insurance number to the external patient id
// it is known under. It is an auxiliary index, separate from the direct
// external-id lookup.
type InsuranceIndex interface {
	// ExternalIDByInsurance returns (id, true) when the insurance number
	// is known, (0, false) when it is not.
	ExternalIDByInsurance(ctx context.Context, insuranceNumber string) (int64, bool, error)
}
