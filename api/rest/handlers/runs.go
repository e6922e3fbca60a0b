package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"sagemaker-orchestrator/api/rest/validator"
	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/orchestrator"
	"sagemaker-orchestrator/core/repository"
	"sagemaker-orchestrator/core/spec"
	"sagemaker-orchestrator/storage"
)

const (
	defaultListLimit  = 50
	defaultEventLimit = 100
	maxBodyBytes      = 1 << 20
)

// RunHandler handles pipeline-run HTTP requests
type RunHandler struct {
	orch      *orchestrator.Orchestrator
	artifacts *storage.ArtifactStore
	validator *validator.Validator
}

// NewRunHandler creates a new run handler
func NewRunHandler(orch *orchestrator.Orchestrator, artifacts *storage.ArtifactStore) *RunHandler {
	v := validator.NewValidator()
	v.Register(validator.NewRequestValidationRules()...)
	return &RunHandler{
		orch:      orch,
		artifacts: artifacts,
		validator: v,
	}
}

// StartTraining handles POST /v1/training
func (h *RunHandler) StartTraining(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.TrainingRequest
	if !h.decode(w, r, &req) {
		return
	}
	run, err := h.orch.StartTraining(r.Context(), req)
	writeRunResult(w, http.StatusCreated, run, err)
}

// EstimateTraining handles POST /v1/training/estimate
func (h *RunHandler) EstimateTraining(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.TrainingRequest
	if !h.decode(w, r, &req) {
		return
	}
	est, err := h.orch.EstimateTrainingCost(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// StartInference handles POST /v1/inference
func (h *RunHandler) StartInference(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.InferenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	run, err := h.orch.RunInference(r.Context(), req)
	writeRunResult(w, http.StatusCreated, run, err)
}

// StartPipeline handles POST /v1/pipelines with a YAML pipeline document
func (h *RunHandler) StartPipeline(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	doc, err := spec.ParseRequest(body)
	if err != nil {
		writeError(w, err)
		return
	}

	var run *models.PipelineRun
	switch doc.Kind {
	case models.PipelineTraining:
		if err := h.validator.Struct(doc.Training); err != nil {
			writeError(w, err)
			return
		}
		run, err = h.orch.StartTraining(r.Context(), *doc.Training)
	default:
		if err := h.validator.Struct(doc.Inference); err != nil {
			writeError(w, err)
			return
		}
		run, err = h.orch.RunInference(r.Context(), *doc.Inference)
	}
	writeRunResult(w, http.StatusCreated, run, err)
}

// AdvanceRun handles POST /v1/runs/{id}/advance
func (h *RunHandler) AdvanceRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.orch.Advance(r.Context(), mux.Vars(r)["id"])
	writeRunResult(w, http.StatusOK, run, err)
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.orch.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /v1/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, ok := parseLimit(w, query.Get("limit"), defaultListLimit)
	if !ok {
		return
	}

	runs, err := h.orch.ListRuns(r.Context(), repository.RunFilter{
		Kind:  models.PipelineKind(query.Get("kind")),
		State: models.PipelineState(query.Get("state")),
		Limit: limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": runs,
	})
}

// GetRunEvents handles GET /v1/runs/{id}/events
func (h *RunHandler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"), defaultEventLimit)
	if !ok {
		return
	}
	events, err := h.orch.RunEvents(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":       event.At,
			"to_state": event.To,
			"reason":   event.Reason,
		}
		if event.From != nil {
			item["from_state"] = *event.From
		}
		if len(event.MetaJSON) > 0 {
			item["meta"] = event.MetaJSON
		}
		items[i] = item
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetRunArtifacts handles GET /v1/runs/{id}/artifacts
func (h *RunHandler) GetRunArtifacts(w http.ResponseWriter, r *http.Request) {
	var artifactType *models.ArtifactType
	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		t := models.ArtifactType(typeParam)
		artifactType = &t
	}

	artifacts, err := h.orch.RunArtifacts(r.Context(), mux.Vars(r)["id"], artifactType)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]interface{}, len(artifacts))
	for i, artifact := range artifacts {
		items[i] = artifactItem(artifact)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetLatestArtifact handles GET /v1/runs/{id}/artifacts/{type}/latest
func (h *RunHandler) GetLatestArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := h.orch.GetRun(r.Context(), vars["id"]); err != nil {
		writeError(w, err)
		return
	}
	artifact, err := h.artifacts.LatestArtifact(r.Context(), vars["id"], models.ArtifactType(vars["type"]))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifactItem(artifact))
}

// GetTransformJob handles GET /v1/transform-jobs/{name}
func (h *RunHandler) GetTransformJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.orch.DescribeTransform(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":            job.Name,
		"handle":          job.Handle,
		"model_name":      job.ModelName,
		"status":          job.Status,
		"input_location":  job.InputLocation,
		"output_location": job.OutputLocation,
		"created_at":      job.CreationTime,
		"failure_reason":  job.FailureReason,
	})
}

// decode reads a JSON request body into v and validates it
func (h *RunHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, models.NewConfigError("invalid request body", err))
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func artifactItem(artifact models.RunArtifact) map[string]interface{} {
	item := map[string]interface{}{
		"type":       artifact.Type,
		"uri":        artifact.URI,
		"created_at": artifact.CreatedAt,
	}
	if len(artifact.MetaJSON) > 0 {
		item["meta"] = artifact.MetaJSON
	}
	return item
}

func parseLimit(w http.ResponseWriter, raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		writeError(w, models.NewConfigError(fmt.Sprintf("limit must be a positive integer, got %q", raw), nil))
		return 0, false
	}
	return limit, true
}

// writeRunResult reports a run even when its pipeline failed; the failure is
// part of the run. Without a run the error decides the status.
func writeRunResult(w http.ResponseWriter, status int, run *models.PipelineRun, err error) {
	if run == nil {
		writeError(w, err)
		return
	}
	var perr *models.PipelineError
	if err != nil && !errors.As(err, &perr) {
		writeError(w, err)
		return
	}
	writeJSON(w, status, run)
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}
	switch models.KindOf(err) {
	case models.KindConfig:
		return http.StatusBadRequest
	case models.KindNotFound, models.KindNoCompletedJob:
		return http.StatusNotFound
	case models.KindSubmission, models.KindRegistration:
		return http.StatusBadGateway
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	case models.KindIncompleteJob, models.KindJobFailed:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		zap.S().Named("rest").Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]interface{}{
		"kind":    models.KindOf(err),
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Named("rest").Warnf("Failed to write response: %v", err)
	}
}
