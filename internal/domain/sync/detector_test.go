package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/phoenikes/calldoc-sync/internal/domain/appointment"
)

type recordingSubmitter struct {
	mu     stdsync.Mutex
	scopes []Scope
}

func (r *recordingSubmitter) Submit(scope Scope) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, scope)
	return View{TaskID: "sync_test"}, nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

func newTestDetector(source *mockSource, sub Submitter, today string) *Detector {
	return NewDetector(DetectorConfig{
		Source:      source,
		Coordinator: sub,
		Interval:    5 * time.Minute,
		KindID:      24,
		Logger:      zerolog.Nop(),
		Now:         fixedNow(today),
	})
}

func TestFingerprint_StableUnderReordering(t *testing.T) {
	a := testAppointment(1, 100, "2025-10-06", "created")
	b := testAppointment(2, 200, "2025-10-06", "confirmed")

	if Fingerprint([]appointment.Record{a, b}) != Fingerprint([]appointment.Record{b, a}) {
		t.Error("fingerprint must not depend on record order")
	}
}

func TestFingerprint_ChangesWithStatus(t *testing.T) {
	a := testAppointment(1, 100, "2025-10-06", "created")
	changed := a
	changed.Status = appointment.StatusCanceled

	if Fingerprint([]appointment.Record{a}) == Fingerprint([]appointment.Record{changed}) {
		t.Error("status change must alter the fingerprint")
	}
}

func TestDetector_IdenticalTicksSubmitNothing(t *testing.T) {
	source := &mockSource{}
	source.setDay("2025-10-06", []appointment.Record{
		testAppointment(1, 1698369, "2025-10-06", "created"),
	})
	sub := &recordingSubmitter{}
	d := newTestDetector(source, sub, "2025-10-06")

	d.Tick(context.Background()) // baseline
	d.Tick(context.Background())
	d.Tick(context.Background())

	if sub.count() != 0 {
		t.Errorf("identical fingerprints submitted %d tasks, want 0", sub.count())
	}
}

func TestDetector_ChangedFingerprintSubmitsExactlyOne(t *testing.T) {
	source := &mockSource{}
	source.setDay("2025-10-06", []appointment.Record{
		testAppointment(1, 1698369, "2025-10-06", "created"),
	})
	sub := &recordingSubmitter{}
	d := newTestDetector(source, sub, "2025-10-06")

	d.Tick(context.Background()) // baseline

	source.setDay("2025-10-06", []appointment.Record{
		testAppointment(1, 1698369, "2025-10-06", "canceled"),
	})
	d.Tick(context.Background())

	if sub.count() != 1 {
		t.Fatalf("changed fingerprint submitted %d tasks, want exactly 1", sub.count())
	}
	scope := sub.scopes[0]
	if scope.Kind != ScopeDay || scope.Date.Format("2006-01-02") != "2025-10-06" {
		t.Errorf("unexpected scope submitted: %+v", scope)
	}
}

func TestDetector_FetchFailureRecordsErrorAndContinues(t *testing.T) {
	source := &mockSource{err: context.DeadlineExceeded}
	sub := &recordingSubmitter{}
	d := newTestDetector(source, sub, "2025-10-06")

	d.Tick(context.Background())

	status := d.Status()
	if status.LastError == "" {
		t.Error("expected last error to be recorded")
	}
	if sub.count() != 0 {
		t.Errorf("failed tick submitted %d tasks", sub.count())
	}
}

func TestDetector_StatusCountsTicks(t *testing.T) {
	source := &mockSource{}
	source.setDay("2025-10-06", nil)
	d := newTestDetector(source, &recordingSubmitter{}, "2025-10-06")

	d.Tick(context.Background())
	d.Tick(context.Background())

	status := d.Status()
	if status.Ticks != 2 {
		t.Errorf("ticks = %d, want 2", status.Ticks)
	}
	if status.LastTick == nil {
		t.Error("last tick timestamp missing")
	}
	if status.IntervalMinutes != 5 {
		t.Errorf("interval = %d, want 5", status.IntervalMinutes)
	}
}
