package examination

import (
	"time"

	"github.com/phoenikes/calldoc-sync/internal/domain/appointment"
)

// Target-store status vocabulary. The store predates this service and
// uses German labels.
const (
	StatusOpen      = "Offen"
	StatusPlanned   = "Geplant"
	StatusConfirmed = "Bestätigt"
	StatusDone      = "Abgeschlossen"
	StatusCanceled  = "Storniert"
	StatusNoShow    = "Nicht erschienen"
)

// MapStatus translates a source appointment status into the target
// store's vocabulary. Unknown statuses map to open.
func MapStatus(s appointment.Status) string {
	switch s {
	case appointment.StatusCreated, appointment.StatusPending:
		return StatusPlanned
	case appointment.StatusConfirmed:
		return StatusConfirmed
	case appointment.StatusFinished:
		return StatusDone
	case appointment.StatusCanceled:
		return StatusCanceled
	case appointment.StatusNoShow:
		return StatusNoShow
	}
	return StatusOpen
}

// Record is one examination row in the target store.
type Record struct {
	ID                    int64     `json:"id"`
	PatientID             int64     `json:"patient_id"`
	Date                  time.Time `json:"date"`
	Time                  *string   `json:"time,omitempty"`
	Status                string    `json:"status"`
	KindID                int64     `json:"kind_id"`
	PractitionerBillingID *int64    `json:"practitioner_billing_id,omitempty"`
	LocationDeviceID      *int64    `json:"location_device_id,omitempty"`
	ReferringProviderID   *int64    `json:"referring_provider_id,omitempty"`
	XRay                  bool      `json:"xray"`
	HeartTeam             bool      `json:"heart_team"`
	MaterialPrice         *float64  `json:"material_price,omitempty"`
	ClassificationID      *int64    `json:"classification_id,omitempty"`
	Notes                 *string   `json:"notes,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// FieldsDiffer reports whether the reconciler-relevant fields of two
// records disagree. Row ids and timestamps are ignored.
func FieldsDiffer(a, b Record) bool {
	if a.PatientID != b.PatientID || a.KindID != b.KindID || a.Status != b.Status {
		return true
	}
	if !a.Date.Equal(b.Date) {
		return true
	}
	if !ptrStrEq(a.Time, b.Time) {
		return true
	}
	if !ptrI64Eq(a.PractitionerBillingID, b.PractitionerBillingID) {
		return true
	}
	if !ptrI64Eq(a.LocationDeviceID, b.LocationDeviceID) {
		return true
	}
	if !ptrStrEq(a.Notes, b.Notes) {
		return true
	}
	return false
}

func ptrI64Eq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ptrStrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
