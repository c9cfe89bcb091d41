package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"integration-status-backend/internal/bus"
	"integration-status-backend/internal/scheduler"
	"integration-status-backend/internal/storage"
)

// Store is the repository slice the HTTP layer needs. Implemented by
// *storage.Repository.
type Store interface {
	GetIntegration(ctx context.Context, id string) (storage.Integration, error)
	InsertProbeResult(ctx context.Context, rec storage.ProbeResult) error
	UpdateIntegrationStatus(ctx context.Context, id, status string, failures int, checkedAt time.Time, successful bool) error
}

type Prober interface {
	Check(ctx context.Context, in storage.Integration) storage.ProbeResult
}

type AlertEvaluator interface {
	Evaluate(ctx context.Context, in storage.Integration, latest storage.ProbeResult)
}

// Incidents covers the manual incident transitions.
type Incidents interface {
	Acknowledge(ctx context.Context, incidentID, user, note string) bool
	Resolve(ctx context.Context, incidentID, user, note string) bool
}

// JobControl is the scheduler's operator surface.
type JobControl interface {
	Status() []scheduler.JobStatus
	Enable(name string) bool
	Disable(name string) bool
	RunNow(ctx context.Context, name string) bool
}

type Broadcaster interface {
	Publish(subject string, payload any) error
}

type Handler struct {
	Store     Store
	Prober    Prober
	Alerts    AlertEvaluator
	Incidents Incidents
	Jobs      JobControl
	Bus       Broadcaster
	Timeout   time.Duration
}

type incidentActionRequest struct {
	User string `json:"user"`
	Note string `json:"note"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)
	r.Post("/integrations/{id}/check", h.handleManualCheck)
	r.Post("/incidents/{id}/acknowledge", h.handleAcknowledge)
	r.Post("/incidents/{id}/resolve", h.handleResolve)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.handleJobStatus)
		r.Post("/{name}/enable", h.handleJobEnable)
		r.Post("/{name}/disable", h.handleJobDisable)
		r.Post("/{name}/run", h.handleJobRun)
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleManualCheck probes one integration on demand. The result is persisted
// with check_type manual and counts toward status and alerting like any
// scheduled probe.
func (h *Handler) handleManualCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	in, err := h.Store.GetIntegration(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "code": "not_found", "message": "integration not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "code": "internal", "message": "failed to load integration"})
		return
	}

	result := h.Prober.Check(ctx, in)
	result.CheckType = storage.CheckManual
	if err := h.Store.InsertProbeResult(ctx, result); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "code": "internal", "message": "failed to persist check"})
		return
	}

	failures := in.ConsecutiveFailures + 1
	if result.IsSuccessful {
		failures = 0
	}
	if err := h.Store.UpdateIntegrationStatus(ctx, in.ID, result.HealthStatus, failures,
		result.CheckedAt, result.IsSuccessful); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "code": "internal", "message": "failed to update integration"})
		return
	}
	if result.HealthStatus != in.HealthStatus {
		_ = h.Bus.Publish(bus.SubjectStatusUpdate, map[string]any{
			"integration_id":   in.ID,
			"integration_name": in.Name,
			"old_status":       in.HealthStatus,
			"new_status":       result.HealthStatus,
			"checked_at":       result.CheckedAt,
		})
	}
	h.Alerts.Evaluate(ctx, in, result)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"integration_id":   in.ID,
		"health_status":    result.HealthStatus,
		"is_successful":    result.IsSuccessful,
		"response_time_ms": result.ResponseTimeMS,
		"status_code":      result.StatusCode,
		"error_message":    result.ErrorMessage,
		"checked_at":       result.CheckedAt,
	})
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req incidentActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "code": "bad_request", "message": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if !h.Incidents.Acknowledge(ctx, id, req.User, req.Note) {
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "code": "conflict", "message": "incident is not open"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "incident_id": id, "status": storage.IncidentAcknowledged})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req incidentActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "code": "bad_request", "message": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if !h.Incidents.Resolve(ctx, id, req.User, req.Note) {
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "code": "conflict", "message": "incident is not open or acknowledged"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "incident_id": id, "status": storage.IncidentResolved})
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "jobs": h.Jobs.Status()})
}

func (h *Handler) handleJobEnable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.Jobs.Enable(name) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "code": "not_found", "message": "unknown job"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "job": name, "enabled": true})
}

func (h *Handler) handleJobDisable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.Jobs.Disable(name) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "code": "not_found", "message": "unknown job"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "job": name, "enabled": false})
}

func (h *Handler) handleJobRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.Jobs.RunNow(r.Context(), name) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "code": "not_found", "message": "unknown job"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "job": name, "triggered": true})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
