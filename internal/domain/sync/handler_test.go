package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newHandlerFixture(t *testing.T, engine Reconciler) (*echo.Echo, *Coordinator) {
	t.Helper()
	c := NewCoordinator(CoordinatorConfig{Engine: engine, Logger: zerolog.Nop(), Workers: 2, Timeout: time.Minute})
	c.Start(context.Background())
	t.Cleanup(c.Stop)

	e := echo.New()
	NewHandler(c, nil, 24).RegisterRoutes(e.Group(""))
	return e, c
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSyncPatient_MissingExternalID(t *testing.T) {
	e, _ := newHandlerFixture(t, &instantEngine{result: &Result{}})

	rec := doJSON(e, http.MethodPost, "/sync/patient", `{"date": "2025-10-06"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSyncPatient_MalformedDate(t *testing.T) {
	e, _ := newHandlerFixture(t, &instantEngine{result: &Result{}})

	rec := doJSON(e, http.MethodPost, "/sync/patient", `{"externalPatientId": 1698369, "date": "06.10.2025"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSyncDay_AcceptedWithStatusURL(t *testing.T) {
	e, _ := newHandlerFixture(t, &instantEngine{result: &Result{}})

	rec := doJSON(e, http.MethodPost, "/sync/day", `{"date": "2025-10-06"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var resp acceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TaskID == "" {
		t.Error("taskId missing")
	}
	if resp.StatusURL != "/sync/status/"+resp.TaskID {
		t.Errorf("statusUrl = %q", resp.StatusURL)
	}
}

func TestSyncDay_DuplicateReturns409WithFirstTaskID(t *testing.T) {
	engine := newBlockingEngine()
	e, _ := newHandlerFixture(t, engine)

	first := doJSON(e, http.MethodPost, "/sync/day", `{"date": "2025-10-06"}`)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, want 202", first.Code)
	}
	var accepted acceptedResponse
	json.Unmarshal(first.Body.Bytes(), &accepted)
	<-engine.started

	second := doJSON(e, http.MethodPost, "/sync/day", `{"date": "2025-10-06"}`)
	if second.Code != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", second.Code)
	}
	var conflict errorResponse
	json.Unmarshal(second.Body.Bytes(), &conflict)
	if conflict.TaskID != accepted.TaskID {
		t.Errorf("conflict taskId = %q, want %q", conflict.TaskID, accepted.TaskID)
	}

	close(engine.release)
}

func TestStatus_UnknownTask(t *testing.T) {
	e, _ := newHandlerFixture(t, &instantEngine{result: &Result{}})

	rec := doJSON(e, http.MethodGet, "/sync/status/sync_unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStatus_CompletedTask(t *testing.T) {
	e, c := newHandlerFixture(t, &instantEngine{result: &Result{Inserted: 1}})

	rec := doJSON(e, http.MethodPost, "/sync/patient", `{"externalPatientId": 1698369, "date": "2025-10-06"}`)
	var accepted acceptedResponse
	json.Unmarshal(rec.Body.Bytes(), &accepted)
	waitForState(t, c, accepted.TaskID, StateCompleted)

	status := doJSON(e, http.MethodGet, "/sync/status/"+accepted.TaskID, "")
	if status.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", status.Code)
	}
	var view View
	if err := json.Unmarshal(status.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.State != StateCompleted || view.Result == nil || view.Result.Inserted != 1 {
		t.Errorf("unexpected view: %+v", view)
	}
}

func TestActive_ListsTasks(t *testing.T) {
	engine := newBlockingEngine()
	e, _ := newHandlerFixture(t, engine)

	doJSON(e, http.MethodPost, "/sync/day", `{"date": "2025-10-06"}`)
	<-engine.started

	rec := doJSON(e, http.MethodGet, "/sync/active", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var views []View
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 1 || views[0].State != StateRunning {
		t.Errorf("unexpected active list: %+v", views)
	}

	close(engine.release)
}

func TestCancel_Endpoint(t *testing.T) {
	engine := newBlockingEngine()
	e, c := newHandlerFixture(t, engine)

	rec := doJSON(e, http.MethodPost, "/sync/day", `{"date": "2025-10-06"}`)
	var accepted acceptedResponse
	json.Unmarshal(rec.Body.Bytes(), &accepted)
	<-engine.started

	cancelRec := doJSON(e, http.MethodPost, "/sync/cancel/"+accepted.TaskID, "")
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", cancelRec.Code)
	}
	waitForState(t, c, accepted.TaskID, StateFailed)
}

func TestHealth_ReportsActiveCount(t *testing.T) {
	engine := newBlockingEngine()
	e, _ := newHandlerFixture(t, engine)

	doJSON(e, http.MethodPost, "/sync/day", `{"date": "2025-10-06"}`)
	<-engine.started

	rec := doJSON(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["activeTaskCount"] != float64(1) {
		t.Errorf("activeTaskCount = %v, want 1", body["activeTaskCount"])
	}

	close(engine.release)
}

func TestScheduler_NoDetectorConfigured(t *testing.T) {
	e, _ := newHandlerFixture(t, &instantEngine{result: &Result{}})

	rec := doJSON(e, http.MethodGet, "/sync/scheduler", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status DetectorStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Enabled {
		t.Error("detector should report disabled when not running")
	}
}
