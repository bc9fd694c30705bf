package examination

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const examCols = `id, patient_id, scheduled_date, scheduled_time, status, procedure_kind_id,
	practitioner_billing_id, location_device_id, referring_provider_id,
	xray, heart_team, material_price, classification_id, notes, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.PatientID, &r.Date, &r.Time, &r.Status, &r.KindID,
		&r.PractitionerBillingID, &r.LocationDeviceID, &r.ReferringProviderID,
		&r.XRay, &r.HeartTeam, &r.MaterialPrice, &r.ClassificationID, &r.Notes,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &r, nil
}

func (r *repoPG) ListByDate(ctx context.Context, date time.Time, kindID *int64) ([]Record, error) {
	query := `SELECT ` + examCols + ` FROM examination WHERE scheduled_date = $1`
	args := []interface{}{date}
	if kindID != nil {
		query += ` AND procedure_kind_id = $2`
		args = append(args, *kindID)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return items, nil
}

func (r *repoPG) Insert(ctx context.Context, rec *Record) (*Record, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO examination (patient_id, scheduled_date, scheduled_time, status, procedure_kind_id,
			practitioner_billing_id, location_device_id, referring_provider_id,
			xray, heart_team, material_price, classification_id, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at`,
		rec.PatientID, rec.Date, rec.Time, rec.Status, rec.KindID,
		rec.PractitionerBillingID, rec.LocationDeviceID, rec.ReferringProviderID,
		rec.XRay, rec.HeartTeam, rec.MaterialPrice, rec.ClassificationID, rec.Notes,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE examination SET patient_id=$2, scheduled_date=$3, scheduled_time=$4, status=$5,
			procedure_kind_id=$6, practitioner_billing_id=$7, location_device_id=$8,
			referring_provider_id=$9, xray=$10, heart_team=$11, material_price=$12,
			classification_id=$13, notes=$14, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.PatientID, rec.Date, rec.Time, rec.Status,
		rec.KindID, rec.PractitionerBillingID, rec.LocationDeviceID,
		rec.ReferringProviderID, rec.XRay, rec.HeartTeam, rec.MaterialPrice,
		rec.ClassificationID, rec.Notes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM examination WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
