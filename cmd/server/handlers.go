package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adaptlearn/engine/internal/catalog"
	"github.com/adaptlearn/engine/internal/engine"
	"github.com/adaptlearn/engine/internal/notify"
)

// api bundles the handlers' dependencies.
type api struct {
	engine  *engine.Engine
	catalog *catalog.Loader
	hub     *notify.Hub
	ready   []func(r *http.Request) error
}

func newMux(a *api) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)

	mux.HandleFunc("GET /v1/courses", a.handleListCourses)
	mux.HandleFunc("POST /v1/students/{student_id}/diagnostic", a.handleSubmitDiagnostic)
	mux.HandleFunc("GET /v1/students/{student_id}/courses/{course_id}/path", a.handleGetCurrentPath)
	mux.HandleFunc("POST /v1/events", a.handleRecordEvent)
	mux.HandleFunc("GET /v1/students/{student_id}/risk", a.handleGetRisk)
	mux.HandleFunc("GET /v1/students/{student_id}/risk/history", a.handleRiskHistory)

	if a.hub != nil {
		mux.Handle("GET /v1/alerts/ws", a.hub)
	}
	return mux
}

func (a *api) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range a.ready {
		if err := check(r); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *api) handleListCourses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"courses": a.catalog.Courses()})
}

type diagnosticRequest struct {
	CourseID  string                      `json:"course_id"`
	Responses []engine.DiagnosticResponse `json:"responses"`
}

func (a *api) handleSubmitDiagnostic(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("student_id")

	var req diagnosticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	result, err := a.engine.SubmitDiagnostic(r.Context(), studentID, req.CourseID, req.Responses)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) handleGetCurrentPath(w http.ResponseWriter, r *http.Request) {
	path, err := a.engine.GetCurrentPath(r.Context(), r.PathValue("student_id"), r.PathValue("course_id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

func (a *api) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var ev engine.PerformanceEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := a.engine.RecordEvent(r.Context(), ev, r.Header.Get("Accept-Language"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) handleGetRisk(w http.ResponseWriter, r *http.Request) {
	ra, err := a.engine.GetRisk(r.Context(), r.PathValue("student_id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ra)
}

func (a *api) handleRiskHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	history, err := a.engine.RiskHistory(r.Context(), r.PathValue("student_id"), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"trend":   engine.TrendSlope(history),
	})
}

// writeEngineError maps engine errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrCourseNotFound),
		errors.Is(err, engine.ErrPathNotFound),
		errors.Is(err, engine.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrCyclicPrerequisites):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, engine.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrUnknownNode):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrStaleGeneration):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}
