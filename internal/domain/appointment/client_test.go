package appointment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFetchDay_DecodesAppointments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from_date") != "2025-10-06" || q.Get("to_date") != "2025-10-06" {
			t.Errorf("unexpected date params: %v", q)
		}
		if q.Get("appointment_type_id") != "24" {
			t.Errorf("appointment_type_id = %q, want 24", q.Get("appointment_type_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"appointment_id": 555, "date": "2025-10-06", "time": "09:30",
			 "status": "created", "appointment_type_id": 24, "doctor_id": 18,
			 "room_id": 18, "piz": "1698369", "insurance_number": "A123456789",
			 "first_name": "Max", "last_name": "Mustermann",
			 "date_of_birth": "1960-04-12", "notes": "nuechtern"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	kind := int64(24)
	records, err := client.FetchDay(context.Background(), day("2025-10-06"), Filter{KindID: &kind})
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.ID != 555 {
		t.Errorf("ID = %d, want 555", r.ID)
	}
	if r.Status != StatusCreated {
		t.Errorf("Status = %q, want created", r.Status)
	}
	if r.ExternalPatientID == nil || *r.ExternalPatientID != 1698369 {
		t.Errorf("ExternalPatientID = %v, want 1698369", r.ExternalPatientID)
	}
	if r.InsuranceNumber == nil || *r.InsuranceNumber != "A123456789" {
		t.Errorf("InsuranceNumber = %v", r.InsuranceNumber)
	}
	if r.BirthDate == nil || r.BirthDate.Format("2006-01-02") != "1960-04-12" {
		t.Errorf("BirthDate = %v", r.BirthDate)
	}
}

func TestFetchDay_SkipsMalformedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"appointment_id": 1, "date": "not-a-date", "status": "created"},
			{"appointment_id": 2, "date": "2025-10-06", "status": "created",
			 "appointment_type_id": 24, "doctor_id": 18, "room_id": 18}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	records, err := client.FetchDay(context.Background(), day("2025-10-06"), Filter{})
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if len(records) != 1 || records[0].ID != 2 {
		t.Fatalf("expected only the well-formed record, got %+v", records)
	}
}

func TestFetchDay_StatusOverrideParam(t *testing.T) {
	var gotStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStatus = r.URL.Query().Get("status")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	override := StatusCanceled
	if _, err := client.FetchDay(context.Background(), day("2025-10-06"), Filter{StatusOverride: &override}); err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if gotStatus != "canceled" {
		t.Errorf("status param = %q, want canceled", gotStatus)
	}
}

func TestFetchDay_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	if _, err := client.FetchDay(context.Background(), day("2025-10-06"), Filter{}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
