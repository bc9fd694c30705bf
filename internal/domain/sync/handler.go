package sync

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// DetectorStatuser decouples the handler from a concrete detector; nil
// means no detector is running.
type DetectorStatuser interface {
	Status() DetectorStatus
}

// Handler exposes the sync API over Echo.
type Handler struct {
	coordinator *Coordinator
	detector    DetectorStatuser
	defaultKind int64
}

func NewHandler(coordinator *Coordinator, detector DetectorStatuser, defaultKind int64) *Handler {
	return &Handler{coordinator: coordinator, detector: detector, defaultKind: defaultKind}
}

// RegisterRoutes mounts the sync endpoints on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sync/patient", h.HandleSyncPatient)
	g.POST("/sync/day", h.HandleSyncDay)
	g.GET("/sync/status/:taskId", h.HandleStatus)
	g.GET("/sync/active", h.HandleActive)
	g.POST("/sync/cancel/:taskId", h.HandleCancel)
	g.GET("/sync/scheduler", h.HandleScheduler)
	g.GET("/health", h.HandleHealth)
}

type syncPatientRequest struct {
	ExternalPatientID *int64 `json:"externalPatientId"`
	Date              string `json:"date"`
	ProcedureKindID   *int64 `json:"procedureKindId"`
}

type syncDayRequest struct {
	Date            string `json:"date"`
	ProcedureKindID *int64 `json:"procedureKindId"`
	DeleteObsolete  bool   `json:"deleteObsolete"`
}

type acceptedResponse struct {
	TaskID    string `json:"taskId"`
	StatusURL string `json:"statusUrl"`
}

type errorResponse struct {
	Error  string `json:"error"`
	TaskID string `json:"taskId,omitempty"`
}

func (h *Handler) HandleSyncPatient(c echo.Context) error {
	var req syncPatientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.ExternalPatientID == nil {
		err := &ValidationError{Field: "externalPatientId", Reason: "required"}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	scope := Scope{
		Kind:              ScopePatient,
		Date:              date,
		ExternalPatientID: *req.ExternalPatientID,
		ProcedureKindID:   h.kindOrDefault(req.ProcedureKindID),
	}
	return h.submit(c, scope)
}

func (h *Handler) HandleSyncDay(c echo.Context) error {
	var req syncDayRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	scope := Scope{
		Kind:            ScopeDay,
		Date:            date,
		ProcedureKindID: h.kindOrDefault(req.ProcedureKindID),
		DeleteObsolete:  req.DeleteObsolete,
	}
	return h.submit(c, scope)
}

func (h *Handler) submit(c echo.Context, scope Scope) error {
	view, err := h.coordinator.Submit(scope)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return c.JSON(http.StatusConflict, errorResponse{
				Error:  "an identical sync is already in flight",
				TaskID: conflict.TaskID,
			})
		}
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{
		TaskID:    view.TaskID,
		StatusURL: "/sync/status/" + view.TaskID,
	})
}

func (h *Handler) HandleStatus(c echo.Context) error {
	view, err := h.coordinator.Get(c.Param("taskId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown or expired task"})
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) HandleActive(c echo.Context) error {
	return c.JSON(http.StatusOK, h.coordinator.Active())
}

func (h *Handler) HandleCancel(c echo.Context) error {
	id := c.Param("taskId")
	if err := h.coordinator.Cancel(id); err != nil {
		if errors.Is(err, ErrTaskTerminal) {
			return c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), TaskID: id})
		}
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown or expired task"})
	}
	view, err := h.coordinator.Get(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown or expired task"})
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) HandleScheduler(c echo.Context) error {
	if h.detector == nil {
		return c.JSON(http.StatusOK, DetectorStatus{Enabled: false})
	}
	return c.JSON(http.StatusOK, h.detector.Status())
}

func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"activeTaskCount": h.coordinator.ActiveCount(),
	})
}

func (h *Handler) kindOrDefault(kind *int64) int64 {
	if kind != nil {
		return *kind
	}
	return h.defaultKind
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &ValidationError{Field: "date", Reason: "required"}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "must be an ISO date (YYYY-MM-DD)"}
	}
	return t, nil
}
