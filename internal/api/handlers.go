package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lei/runwatch/internal/backend"
	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/internal/output"
	"github.com/lei/runwatch/internal/service"
)

// Handlers contains HTTP handler functions
type Handlers struct {
	service *service.Service
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{service: svc}
}

// runResponse is the body of GET /v1/runs/{workflow_id}/{run_id}
type runResponse struct {
	Snapshot *models.RunSnapshot      `json:"snapshot"`
	Ordered  []models.NormalizedStage `json:"ordered_stages"`
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := h.service.HealthCheck(r.Context())
	respondJSON(w, http.StatusOK, health)
}

// ListRuns handles GET /v1/runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	q, err := parseRunQuery(r.URL.Query())
	if err != nil {
		log.Warn("invalid run query", "error", err)
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.service.ListRuns(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	log.Debug("runs listed", "count", len(runs))
	respondJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
	})
}

// GetRun handles GET /v1/runs/{workflow_id}/{run_id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runIdentity(w, r)
	if !ok {
		return
	}

	snap, err := h.service.GetSnapshot(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	GetLogger(r.Context()).Debug("snapshot served",
		"run", id.String(),
		"status", snap.RunStatus,
		"progress", snap.Aggregate.ProgressPercent)

	respondJSON(w, http.StatusOK, runResponse{Snapshot: snap, Ordered: snap.OrderedStages()})
}

// StageOutput handles GET /v1/runs/{workflow_id}/{run_id}/stages/{stage}/output
func (h *Handlers) StageOutput(w http.ResponseWriter, r *http.Request) {
	id, ok := runIdentity(w, r)
	if !ok {
		return
	}
	stage, ok := stageParam(w, r)
	if !ok {
		return
	}

	out, err := h.service.StageOutput(r.Context(), id, stage)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, out)
}

// ExportStage handles GET /v1/runs/{workflow_id}/{run_id}/stages/{stage}/export
func (h *Handlers) ExportStage(w http.ResponseWriter, r *http.Request) {
	id, ok := runIdentity(w, r)
	if !ok {
		return
	}
	stage, ok := stageParam(w, r)
	if !ok {
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))

	artifact, err := h.service.ExportStage(r.Context(), id, stage, format)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(artifact.Data)
}

// TerminateRun handles POST /v1/runs/{workflow_id}/{run_id}/terminate
func (h *Handlers) TerminateRun(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	id, ok := runIdentity(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// An empty body terminates with the default reason
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Warn("invalid request body", "error", err)
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	env, err := h.service.TerminateRun(r.Context(), id, req.Reason)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	log.Info("run terminated", "run", id.String(), "by", GetAPIKeyName(r.Context()))
	respondJSON(w, http.StatusOK, env)
}

// RetryStage handles POST /v1/runs/{workflow_id}/{run_id}/stages/{stage}/retry
func (h *Handlers) RetryStage(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	id, ok := runIdentity(w, r)
	if !ok {
		return
	}
	stage, ok := stageParam(w, r)
	if !ok {
		return
	}

	res, err := h.service.RetryStage(r.Context(), id, stage)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	log.Info("stage retry requested", "run", id.String(), "stage", res.Stage, "by", GetAPIKeyName(r.Context()))
	respondJSON(w, http.StatusAccepted, res)
}

// ListAPIKeys handles GET /v1/api-keys
func (h *Handlers) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	raw, err := h.service.ListAPIKeys(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondRaw(w, http.StatusOK, raw)
}

// SetAPIKey handles POST /v1/api-keys
func (h *Handlers) SetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service string `json:"service"`
		APIKey  string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Service == "" || req.APIKey == "" {
		respondError(w, r, http.StatusBadRequest, "service and api_key are required")
		return
	}

	raw, err := h.service.SetAPIKey(r.Context(), req.Service, req.APIKey)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondRaw(w, http.StatusCreated, raw)
}

// DeleteAPIKey handles DELETE /v1/api-keys/{service}
func (h *Handlers) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "service")
	if err != nil || name == "" {
		respondError(w, r, http.StatusBadRequest, "invalid service name")
		return
	}

	if err := h.service.DeleteAPIKey(r.Context(), name); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runIdentity decodes the run identifiers from the path, answering 400 for
// missing or placeholder values
func runIdentity(w http.ResponseWriter, r *http.Request) (models.RunIdentity, bool) {
	id, err := models.ParseRunIdentity(chi.URLParam(r, "workflow_id"), chi.URLParam(r, "run_id"))
	if err != nil {
		GetLogger(r.Context()).Warn("malformed run identity", "error", err)
		respondError(w, r, http.StatusBadRequest, err.Error())
		return models.RunIdentity{}, false
	}
	return id, true
}

func stageParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	stage, err := pathParam(r, "stage")
	if err != nil || strings.TrimSpace(stage) == "" {
		respondError(w, r, http.StatusBadRequest, "invalid stage name")
		return "", false
	}
	return stage, true
}

func pathParam(r *http.Request, key string) (string, error) {
	return url.PathUnescape(chi.URLParam(r, key))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw)
}

// respondError writes a JSON error response with logging
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID := GetRequestID(r.Context())

	GetLogger(r.Context()).Debug("returning error response",
		"status", status,
		"message", message)

	w.Header().Set("X-Request-ID", requestID)
	respondJSON(w, status, map[string]any{
		"error": map[string]any{
			"message":    message,
			"code":       status,
			"request_id": requestID,
		},
	})
}

// handleServiceError maps service and backend errors to HTTP responses
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := GetLogger(r.Context())

	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, models.ErrMalformedIdentity):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, output.ErrUnsupportedFormat):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrStageNotFound), errors.Is(err, service.ErrNoOutput):
		respondError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrNotFound):
		respondError(w, r, http.StatusNotFound, backend.UserMessage(err))
	case errors.Is(err, backend.ErrRejected):
		respondError(w, r, http.StatusConflict, backend.UserMessage(err))
	case errors.Is(err, backend.ErrNetwork), errors.Is(err, backend.ErrServerFault), errors.As(err, &statusErr):
		log.Error("backend call failed", "error", err)
		respondError(w, r, http.StatusBadGateway, backend.UserMessage(err))
	default:
		log.Error("unhandled service error", "error", err, "error_type", fmt.Sprintf("%T", err))
		respondError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
