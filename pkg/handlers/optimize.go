package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/promptforge-ai/promptforge-engine/pkg/apperrors"
	"github.com/promptforge-ai/promptforge-engine/pkg/models"
	"github.com/promptforge-ai/promptforge-engine/pkg/repositories"
	"github.com/promptforge-ai/promptforge-engine/pkg/services"
)

// StartOptimizationRequest for POST /optimize-start. The body is optional;
// a malformed body is treated the same as an absent one.
type StartOptimizationRequest struct {
	Settings *models.TuningSettings `json:"settings,omitempty"`
}

// StartOptimizationResponse acknowledges an accepted start request.
type StartOptimizationResponse struct {
	Status string `json:"status"`
	JobID  string `json:"jobId"`
}

// OptimizationSummary is the display-oriented reshaping of the latest
// complete-optimization record served by GET /optimize-status once no run is
// in flight.
type OptimizationSummary struct {
	Status            models.JobState `json:"status"`
	BestScore         float64         `json:"bestScore"`
	TotalRounds       int             `json:"totalRounds,omitempty"`
	Converged         *bool           `json:"converged,omitempty"`
	OptimizerType     string          `json:"optimizerType,omitempty"`
	OptimizationTime  float64         `json:"optimizationTime,omitempty"`
	InstructionLength int             `json:"instructionLength"`
	DemoCount         int             `json:"demoCount"`
	Stats             map[string]any  `json:"stats,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// OptimizeHandler handles optimization job endpoints.
type OptimizeHandler struct {
	service       services.OptimizationService
	optimizations repositories.OptimizationRepository
	logger        *zap.Logger
}

// NewOptimizeHandler creates a new OptimizeHandler.
func NewOptimizeHandler(
	service services.OptimizationService,
	optimizations repositories.OptimizationRepository,
	logger *zap.Logger,
) *OptimizeHandler {
	return &OptimizeHandler{
		service:       service,
		optimizations: optimizations,
		logger:        logger,
	}
}

// RegisterRoutes registers the optimization routes on the given mux.
func (h *OptimizeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /optimize-start", h.Start)
	mux.HandleFunc("GET /optimize-status", h.Status)
	mux.HandleFunc("POST /optimize-cancel", h.Cancel)
}

// Start handles POST /optimize-start. It accepts the job, schedules the run
// in the background and returns immediately; the run's outcome is only
// observable through /optimize-status.
func (h *OptimizeHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartOptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// An absent or malformed body means "no settings".
		h.logger.Debug("Ignoring unparseable start request body", zap.Error(err))
		req.Settings = nil
	}

	status, err := h.service.Start(req.Settings)
	if err != nil {
		if errors.Is(err, apperrors.ErrJobActive) {
			if err := ErrorResponse(w, http.StatusConflict, "conflict", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to start optimization", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to start optimization"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := StartOptimizationResponse{Status: "started", JobID: status.JobID}
	if err := WriteJSON(w, http.StatusAccepted, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Status handles GET /optimize-status. A running or failed job's status is
// returned verbatim; otherwise the latest complete-optimization record is
// reshaped into a summary, and when none exists the job is reported idle.
// This endpoint never returns a non-200 response.
func (h *OptimizeHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status()
	if status.Status == models.JobStateRunning || status.Status == models.JobStateError {
		if err := WriteJSON(w, http.StatusOK, status); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	rec, err := h.optimizations.LoadLatest()
	if err != nil {
		h.logger.Debug("No complete-optimization record available", zap.Error(err))
		if err := WriteJSON(w, http.StatusOK, models.JobStatus{Status: models.JobStateIdle}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	summary := OptimizationSummary{
		Status:            models.JobStateCompleted,
		BestScore:         rec.BestScore,
		TotalRounds:       rec.TotalRounds,
		Converged:         rec.Converged,
		OptimizerType:     rec.OptimizerType,
		OptimizationTime:  rec.OptimizationTime,
		InstructionLength: len(rec.Instruction),
		DemoCount:         len(rec.Demos),
		Stats:             rec.Stats,
		Timestamp:         rec.Timestamp,
	}
	if err := WriteJSON(w, http.StatusOK, summary); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Cancel handles POST /optimize-cancel.
func (h *OptimizeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(); err != nil {
		if errors.Is(err, apperrors.ErrNoActiveJob) {
			if err := ErrorResponse(w, http.StatusConflict, "no_active_job", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to cancel optimization", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to cancel optimization"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelling"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
