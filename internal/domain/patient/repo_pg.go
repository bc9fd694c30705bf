package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, external_id, insurance_number, first_name, last_name,
	date_of_birth, sex_code, created_at, updated_at`

func scanIdentity(row pgx.Row) (*Identity, error) {
	var p Identity
	err := row.Scan(&p.ID, &p.ExternalID, &p.InsuranceNumber, &p.FirstName, &p.LastName,
		&p.BirthDate, &p.SexCode, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &p, nil
}

func (r *repoPG) GetByExternalID(ctx context.Context, externalID int64) (*Identity, error) {
	return scanIdentity(r.pool.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE external_id = $1`, externalID))
}

func (r *repoPG) FindByNameDOB(ctx context.Context, lastName, firstName string, birthDate time.Time) ([]Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE LOWER(last_name) = $1 AND LOWER(first_name) = $2 AND date_of_birth = $3`,
		strings.ToLower(strings.TrimSpace(lastName)),
		strings.ToLower(strings.TrimSpace(firstName)),
		birthDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var items []Identity
	for rows.Next() {
		p, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return items, nil
}

func (r *repoPG) MaxExternalID(ctx context.Context) (int64, error) {
	var max int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(external_id), 0) FROM patient`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return max, nil
}

func (r *repoPG) Create(ctx context.Context, p *Identity) (*Identity, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patient (external_id, insurance_number, first_name, last_name, date_of_birth, sex_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		p.ExternalID, p.InsuranceNumber, p.FirstName, p.LastName, p.BirthDate, p.SexCode,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return p, nil
}

// insuranceIndexPG resolves insurance numbers through the patient table
// itself. A dedicated index source can replace it without touching the
// resolver.
type insuranceIndexPG struct{ pool *pgxpool.Pool }

func NewInsuranceIndexPG(pool *pgxpool.Pool) InsuranceIndex { return &insuranceIndexPG{pool: pool} }

func (r *insuranceIndexPG) ExternalIDByInsurance(ctx context.Context, insuranceNumber string) (int64, bool, error) {
	var externalID *int64
	err := r.pool.QueryRow(ctx, `
		SELECT external_id FROM patient
		WHERE insurance_number = $1 AND external_id IS NOT NULL
		ORDER BY id LIMIT 1`, insuranceNumber).Scan(&externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if externalID == nil {
		return 0, false, nil
	}
	return *externalID, true, nil
}
