package examination

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/phoenikes/calldoc-sync/internal/domain/appointment"
)

func testMapper() *Mapper {
	return NewMapper(MappingTables{
		Practitioners: map[int64]int64{18: 301},
		Locations:     map[int64]int64{18: 7},
		Kinds:         map[int64]int64{24: 24},
	}, Defaults{
		PractitionerBillingID: 999,
		LocationDeviceID:      1,
		KindID:                24,
	}, zerolog.Nop())
}

func TestMapper_KnownIDs(t *testing.T) {
	m := testMapper()
	if got := m.PractitionerBillingID(18); got != 301 {
		t.Errorf("PractitionerBillingID(18) = %d, want 301", got)
	}
	if got := m.LocationDeviceID(18); got != 7 {
		t.Errorf("LocationDeviceID(18) = %d, want 7", got)
	}
	if got := m.KindID(24); got != 24 {
		t.Errorf("KindID(24) = %d, want 24", got)
	}
}

func TestMapper_FallsBackToDefaults(t *testing.T) {
	m := testMapper()
	if got := m.PractitionerBillingID(42); got != 999 {
		t.Errorf("unmapped practitioner = %d, want default 999", got)
	}
	if got := m.LocationDeviceID(42); got != 1 {
		t.Errorf("unmapped location = %d, want default 1", got)
	}
	if got := m.KindID(42); got != 24 {
		t.Errorf("unmapped kind = %d, want default 24", got)
	}
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		in   appointment.Status
		want string
	}{
		{appointment.StatusCreated, StatusPlanned},
		{appointment.StatusPending, StatusPlanned},
		{appointment.StatusConfirmed, StatusConfirmed},
		{appointment.StatusFinished, StatusDone},
		{appointment.StatusCanceled, StatusCanceled},
		{appointment.StatusNoShow, StatusNoShow},
		{appointment.Status("weird"), StatusOpen},
	}
	for _, c := range cases {
		if got := MapStatus(c.in); got != c.want {
			t.Errorf("MapStatus(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFieldsDiffer(t *testing.T) {
	tm := "09:30"
	base := Record{PatientID: 1, KindID: 24, Status: StatusPlanned, Time: &tm}

	same := base
	if FieldsDiffer(base, same) {
		t.Error("identical records reported as differing")
	}

	changed := base
	changed.Status = StatusDone
	if !FieldsDiffer(base, changed) {
		t.Error("status change not detected")
	}

	other := base
	tm2 := "10:00"
	other.Time = &tm2
	if !FieldsDiffer(base, other) {
		t.Error("time change not detected")
	}

	noTime := base
	noTime.Time = nil
	if !FieldsDiffer(base, noTime) {
		t.Error("missing time not detected")
	}

	notes := "Nachsorge besprechen"
	withNotes := base
	withNotes.Notes = &notes
	if !FieldsDiffer(base, withNotes) {
		t.Error("notes change not detected")
	}
}
