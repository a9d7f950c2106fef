package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"videoOverlay/api/dto"
	"videoOverlay/api/middleware"
	"videoOverlay/api/validation"
	"videoOverlay/store"
)

type JobService interface {
	Submit(ctx context.Context, traceID string, req *dto.SubmitJobRequest) (*dto.SubmitJobResponse, error)
	Status(ctx context.Context, jobID string) (*dto.StatusResponse, error)
	Cancel(ctx context.Context, jobID string) error
}

type JobHandler struct {
	service JobService
	logger  *zap.Logger
}

func NewJobHandler(service JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodPost {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	var req dto.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	if err := validation.ValidateSubmission(&req); err != nil {
		h.handleError(w, err.Error(), err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.Submit(r.Context(), traceID, &req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateJob) {
			h.handleError(w, "Job already submitted", err, traceID, http.StatusConflict)
			return
		}
		h.handleError(w, "Failed to submit job", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Job submitted",
		zap.String("trace_id", traceID),
		zap.String("job_id", resp.JobID),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

// JobByID dispatches /jobs/{jobId}: GET reads status, DELETE cancels.
func (h *JobHandler) JobByID(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		h.handleError(w, "Job ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.status(w, r, jobID, traceID)
	case http.MethodDelete:
		h.cancel(w, r, jobID, traceID)
	default:
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) status(w http.ResponseWriter, r *http.Request, jobID, traceID string) {
	resp, err := h.service.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			h.handleError(w, "Job not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get job status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *JobHandler) cancel(w http.ResponseWriter, r *http.Request, jobID, traceID string) {
	if err := h.service.Cancel(r.Context(), jobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			h.handleError(w, "Job not found", err, traceID, http.StatusNotFound)
			return
		}
		if errors.Is(err, store.ErrNotCancellable) {
			h.handleError(w, "Job already finished", err, traceID, http.StatusConflict)
			return
		}
		h.handleError(w, "Failed to cancel job", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Job cancelled",
		zap.String("trace_id", traceID),
		zap.String("job_id", jobID),
	)

	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *JobHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
