package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/promptforge-ai/promptforge-engine/pkg/apperrors"
	"github.com/promptforge-ai/promptforge-engine/pkg/models"
	"github.com/promptforge-ai/promptforge-engine/pkg/repositories"
)

func newOptimizationRepo(t *testing.T) repositories.OptimizationRepository {
	t.Helper()
	dir := t.TempDir()
	return repositories.NewOptimizationRepository(
		filepath.Join(dir, "complete-optimization.json"),
		filepath.Join(dir, "versions"),
		zap.NewNop())
}

func TestOptimizeHandler_StartAccepted(t *testing.T) {
	svc := &mockOptimizationService{
		startStatus: &models.JobStatus{Status: models.JobStateRunning, JobID: "job-1"},
	}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/optimize-start",
		strings.NewReader(`{"settings": {"maxMetricCalls": 25, "auto": "light"}}`))
	rec := httptest.NewRecorder()

	handler.Start(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}

	var response StartOptimizationResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "started" {
		t.Errorf("expected status 'started', got '%s'", response.Status)
	}
	if response.JobID != "job-1" {
		t.Errorf("expected job ID 'job-1', got '%s'", response.JobID)
	}

	if svc.gotSettings == nil {
		t.Fatal("expected settings to be forwarded")
	}
	if svc.gotSettings.MaxMetricCalls != 25 {
		t.Errorf("expected maxMetricCalls 25, got %d", svc.gotSettings.MaxMetricCalls)
	}
	if svc.gotSettings.Auto != "light" {
		t.Errorf("expected auto 'light', got '%s'", svc.gotSettings.Auto)
	}
}

func TestOptimizeHandler_StartToleratesMalformedBody(t *testing.T) {
	svc := &mockOptimizationService{
		startStatus: &models.JobStatus{Status: models.JobStateRunning, JobID: "job-2"},
	}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/optimize-start", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	handler.Start(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
	if !svc.startCalled {
		t.Error("expected the run to start despite the malformed body")
	}
	if svc.gotSettings != nil {
		t.Error("expected no settings from a malformed body")
	}
}

func TestOptimizeHandler_StartToleratesEmptyBody(t *testing.T) {
	svc := &mockOptimizationService{
		startStatus: &models.JobStatus{Status: models.JobStateRunning, JobID: "job-3"},
	}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/optimize-start", nil)
	rec := httptest.NewRecorder()

	handler.Start(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
	if svc.gotSettings != nil {
		t.Error("expected no settings from an empty body")
	}
}

func TestOptimizeHandler_StartConflictWhenJobActive(t *testing.T) {
	svc := &mockOptimizationService{startErr: apperrors.ErrJobActive}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/optimize-start", nil)
	rec := httptest.NewRecorder()

	handler.Start(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestOptimizeHandler_StartInternalError(t *testing.T) {
	svc := &mockOptimizationService{startErr: apperrors.ErrNoActiveJob}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/optimize-start", nil)
	rec := httptest.NewRecorder()

	handler.Start(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestOptimizeHandler_StatusRunningVerbatim(t *testing.T) {
	started := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	svc := &mockOptimizationService{
		status: &models.JobStatus{
			Status:    models.JobStateRunning,
			JobID:     "job-1",
			StartedAt: &started,
		},
	}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/optimize-status", nil)
	rec := httptest.NewRecorder()

	handler.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var status models.JobStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Status != models.JobStateRunning {
		t.Errorf("expected running status, got '%s'", status.Status)
	}
	if status.JobID != "job-1" {
		t.Errorf("expected job ID 'job-1', got '%s'", status.JobID)
	}
}

func TestOptimizeHandler_StatusErrorVerbatim(t *testing.T) {
	svc := &mockOptimizationService{
		status: &models.JobStatus{
			Status:       models.JobStateError,
			ErrorMessage: "Need at least one chat session to optimize",
		},
	}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/optimize-status", nil)
	rec := httptest.NewRecorder()

	handler.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var status models.JobStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.ErrorMessage != "Need at least one chat session to optimize" {
		t.Errorf("unexpected error message: %q", status.ErrorMessage)
	}
}

func TestOptimizeHandler_StatusSummaryFromLatestRecord(t *testing.T) {
	repo := newOptimizationRepo(t)
	converged := true
	rec := &models.CompleteOptimization{
		Version:          models.CompleteOptimizationVersion,
		BestScore:        0.87,
		Instruction:      "Be concise.",
		Demos:            []json.RawMessage{json.RawMessage(`{"input":"x"}`)},
		OptimizerType:    "gepa",
		OptimizationTime: 42.5,
		TotalRounds:      3,
		Converged:        &converged,
		Stats:            map[string]any{"totalCalls": float64(42), "successRate": 0.95},
		Result:           json.RawMessage(`{}`),
		Timestamp:        time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
	}
	if err := repo.SaveLatest(rec); err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	svc := &mockOptimizationService{status: &models.JobStatus{Status: models.JobStateCompleted}}
	handler := NewOptimizeHandler(svc, repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/optimize-status", nil)
	w := httptest.NewRecorder()

	handler.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var summary OptimizationSummary
	if err := json.NewDecoder(w.Body).Decode(&summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if summary.Status != models.JobStateCompleted {
		t.Errorf("expected completed status, got '%s'", summary.Status)
	}
	if summary.BestScore != 0.87 {
		t.Errorf("expected bestScore 0.87, got %v", summary.BestScore)
	}
	if summary.InstructionLength != len("Be concise.") {
		t.Errorf("expected instruction length %d, got %d", len("Be concise."), summary.InstructionLength)
	}
	if summary.DemoCount != 1 {
		t.Errorf("expected demo count 1, got %d", summary.DemoCount)
	}
	if summary.TotalRounds != 3 {
		t.Errorf("expected 3 rounds, got %d", summary.TotalRounds)
	}
	if summary.Converged == nil || !*summary.Converged {
		t.Error("expected converged to be true")
	}
	if summary.Stats["successRate"] != 0.95 {
		t.Errorf("expected success rate 0.95, got %v", summary.Stats["successRate"])
	}
}

func TestOptimizeHandler_StatusIdleWhenNoRecord(t *testing.T) {
	svc := &mockOptimizationService{status: &models.JobStatus{Status: models.JobStateIdle}}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/optimize-status", nil)
	rec := httptest.NewRecorder()

	handler.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var status models.JobStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Status != models.JobStateIdle {
		t.Errorf("expected idle status, got '%s'", status.Status)
	}
}

func TestOptimizeHandler_Cancel(t *testing.T) {
	svc := &mockOptimizationService{}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/optimize-cancel", nil)
	rec := httptest.NewRecorder()

	handler.Cancel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !svc.cancelCalled {
		t.Error("expected cancel to be forwarded to the service")
	}
}

func TestOptimizeHandler_CancelWithoutActiveJob(t *testing.T) {
	svc := &mockOptimizationService{cancelErr: apperrors.ErrNoActiveJob}
	handler := NewOptimizeHandler(svc, newOptimizationRepo(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/optimize-cancel", nil)
	rec := httptest.NewRecorder()

	handler.Cancel(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}
