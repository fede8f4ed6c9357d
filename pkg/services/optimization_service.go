package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promptforge-ai/promptforge-engine/pkg/apperrors"
	"github.com/promptforge-ai/promptforge-engine/pkg/config"
	"github.com/promptforge-ai/promptforge-engine/pkg/models"
	"github.com/promptforge-ai/promptforge-engine/pkg/optimizer"
	"github.com/promptforge-ai/promptforge-engine/pkg/repositories"
)

// fallbackInstruction is used when the optimizer response carries no usable
// instruction text.
const fallbackInstruction = "You are a helpful assistant. Answer the user's question accurately and concisely, using available tools when they are relevant."

// cancelledMessage is the error text persisted when a run is cancelled.
const cancelledMessage = "optimization cancelled"

// OptimizerClient is the external optimizer surface the service depends on.
type OptimizerClient interface {
	Health(ctx context.Context) error
	Optimize(ctx context.Context, req *optimizer.OptimizeRequest) (*optimizer.OptimizeResult, error)
}

// OptimizationService orchestrates prompt-optimization runs: it builds
// training examples, calls the external optimizer, persists the optimized
// prompt and result record, and drives the job-status state machine.
type OptimizationService interface {
	// Start begins a new optimization run in the background. It writes the
	// "running" status synchronously and returns immediately. A second start
	// while a run is active fails with apperrors.ErrJobActive.
	Start(settings *models.TuningSettings) (*models.JobStatus, error)

	// Status returns the last persisted job status, or a synthesized idle
	// status when none exists.
	Status() *models.JobStatus

	// Cancel aborts the active run. Fails with apperrors.ErrNoActiveJob when
	// no run is active. The cancelled run terminates in "error" status.
	Cancel() error

	// Active reports whether a run is currently in flight.
	Active() bool

	// Wait blocks until the active run finishes. Returns immediately when no
	// run is active.
	Wait()
}

// jobHandle supervises one background run.
type jobHandle struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

type optimizationService struct {
	samples       repositories.SampleRepository
	statusRepo    repositories.StatusRepository
	prompts       repositories.PromptRepository
	optimizations repositories.OptimizationRepository
	client        OptimizerClient
	optCfg        config.OptimizerConfig
	logger        *zap.Logger

	mu     sync.Mutex
	active *jobHandle

	now func() time.Time
}

// NewOptimizationService creates a new OptimizationService.
func NewOptimizationService(
	samples repositories.SampleRepository,
	statusRepo repositories.StatusRepository,
	prompts repositories.PromptRepository,
	optimizations repositories.OptimizationRepository,
	client OptimizerClient,
	optCfg config.OptimizerConfig,
	logger *zap.Logger,
) OptimizationService {
	return &optimizationService{
		samples:       samples,
		statusRepo:    statusRepo,
		prompts:       prompts,
		optimizations: optimizations,
		client:        client,
		optCfg:        optCfg,
		logger:        logger.Named("optimization"),
		now:           time.Now,
	}
}

var _ OptimizationService = (*optimizationService)(nil)

func (s *optimizationService) Start(settings *models.TuningSettings) (*models.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		select {
		case <-s.active.done:
			// Previous run finished; its handle is stale.
		default:
			return nil, apperrors.ErrJobActive
		}
	}

	now := s.now()
	status := &models.JobStatus{
		Status:    models.JobStateRunning,
		JobID:     uuid.New().String(),
		StartedAt: &now,
		UpdatedAt: &now,
	}
	if err := s.statusRepo.Write(status); err != nil {
		return nil, fmt.Errorf("failed to write running status: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := &jobHandle{
		id:        status.JobID,
		startedAt: now,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.active = handle

	go s.run(ctx, handle, settings)

	s.logger.Info("Optimization run started", zap.String("job_id", handle.id))
	return status, nil
}

func (s *optimizationService) Status() *models.JobStatus {
	if status := s.statusRepo.Read(); status != nil {
		return status
	}
	return &models.JobStatus{Status: models.JobStateIdle}
}

func (s *optimizationService) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return apperrors.ErrNoActiveJob
	}
	select {
	case <-s.active.done:
		return apperrors.ErrNoActiveJob
	default:
	}

	s.logger.Info("Cancelling optimization run", zap.String("job_id", s.active.id))
	s.active.cancel()
	return nil
}

func (s *optimizationService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return false
	}
	select {
	case <-s.active.done:
		return false
	default:
		return true
	}
}

func (s *optimizationService) Wait() {
	s.mu.Lock()
	handle := s.active
	s.mu.Unlock()

	if handle != nil {
		<-handle.done
	}
}

// run executes one optimization in the background. It has no caller to report
// to: failures terminate in the persisted "error" status.
func (s *optimizationService) run(ctx context.Context, handle *jobHandle, settings *models.TuningSettings) {
	defer close(handle.done)
	defer handle.cancel()

	err := s.execute(ctx, settings)
	if err == nil {
		s.markTerminal(handle, models.JobStateCompleted, "")
		return
	}

	message := err.Error()
	if errors.Is(err, context.Canceled) {
		message = cancelledMessage
	}
	s.logger.Error("Optimization run failed",
		zap.String("job_id", handle.id),
		zap.Error(err))
	s.markTerminal(handle, models.JobStateError, message)
}

func (s *optimizationService) markTerminal(handle *jobHandle, state models.JobState, errMsg string) {
	now := s.now()
	status := &models.JobStatus{
		Status:       state,
		JobID:        handle.id,
		StartedAt:    &handle.startedAt,
		UpdatedAt:    &now,
		ErrorMessage: errMsg,
	}
	if err := s.statusRepo.Write(status); err != nil {
		s.logger.Error("Failed to write terminal status",
			zap.String("job_id", handle.id),
			zap.Error(err))
	}
}

func (s *optimizationService) execute(ctx context.Context, settings *models.TuningSettings) error {
	sessions := s.samples.Load()
	examples := BuildExamples(sessions)
	if len(examples) == 0 {
		return apperrors.ErrNoTrainingData
	}

	// Liveness probe is best effort: the optimize call stands or falls on
	// its own.
	if err := s.client.Health(ctx); err != nil {
		s.logger.Warn("Optimizer health check failed", zap.Error(err))
	}

	withTools := 0
	for _, ex := range examples {
		if len(ex.ToolsUsed) > 0 {
			withTools++
		}
	}
	s.logger.Info("Training examples prepared",
		zap.Int("total", len(examples)),
		zap.Int("with_tools", withTools),
		zap.Int("without_tools", len(examples)-withTools))

	result, err := s.client.Optimize(ctx, s.buildRequest(examples, settings))
	if err != nil {
		return err
	}

	instruction := result.Instruction
	if instruction == "" {
		s.logger.Warn("Optimizer returned no instruction, using fallback")
		instruction = fallbackInstruction
	}

	promptText := composePrompt(instruction, result.Demos, examples)
	if err := s.prompts.Write(promptText); err != nil {
		return err
	}

	timestamp := s.now()
	rec := &models.CompleteOptimization{
		Version:          models.CompleteOptimizationVersion,
		BestScore:        result.BestScore,
		Instruction:      instruction,
		Demos:            result.Demos,
		ModelConfig:      result.ModelConfig,
		OptimizerType:    result.OptimizerType,
		OptimizationTime: result.OptimizationTime,
		TotalRounds:      result.TotalRounds,
		Converged:        result.Converged,
		Stats:            result.Stats,
		Result:           result.Raw,
		Timestamp:        timestamp,
	}
	if err := s.optimizations.SaveLatest(rec); err != nil {
		return err
	}

	// The versioned snapshot is nice-to-have history; its failure does not
	// fail the run.
	if err := s.optimizations.Archive(versionIdentifier(timestamp), rec, promptText); err != nil {
		s.logger.Error("Failed to archive optimization run", zap.Error(err))
	}

	s.logger.Info("Optimization run completed",
		zap.Float64("best_score", rec.BestScore),
		zap.Int("demos", len(rec.Demos)))
	return nil
}

// buildRequest merges request settings over the configured defaults.
func (s *optimizationService) buildRequest(examples []models.Example, settings *models.TuningSettings) *optimizer.OptimizeRequest {
	req := &optimizer.OptimizeRequest{
		Examples:       examples,
		MaxMetricCalls: s.optCfg.MaxMetricCalls,
		Auto:           s.optCfg.Auto,
		NumThreads:     s.optCfg.NumThreads,
	}
	if settings == nil {
		return req
	}

	if settings.MaxMetricCalls > 0 {
		req.MaxMetricCalls = settings.MaxMetricCalls
	}
	if settings.Auto != "" {
		req.Auto = settings.Auto
	}
	if settings.NumThreads > 0 {
		req.NumThreads = settings.NumThreads
	}
	req.CandidateSelectionStrategy = settings.CandidateSelectionStrategy
	req.ReflectionMinibatchSize = settings.ReflectionMinibatchSize
	req.UseMerge = settings.UseMerge
	return req
}

// composePrompt builds the prompt file content: the instruction followed by
// the optimizer's demos when present, otherwise the original training
// examples.
func composePrompt(instruction string, demos []json.RawMessage, examples []models.Example) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instruction))

	if len(demos) > 0 {
		if rendered, err := json.MarshalIndent(demos, "", "  "); err == nil {
			b.WriteString("\n\nExamples:\n\n")
			b.Write(rendered)
		}
		return b.String()
	}

	if len(examples) > 0 {
		b.WriteString("\n\nExamples:\n\n")
		b.WriteString(RenderTrainingExamples(examples))
	}
	return b.String()
}

// versionIdentifier derives a filesystem-safe archive key from the run
// timestamp, falling back to the numeric timestamp if sanitization leaves
// nothing.
func versionIdentifier(ts time.Time) string {
	id := strings.NewReplacer(":", "-", ".", "-").Replace(ts.UTC().Format(time.RFC3339Nano))
	if id == "" {
		return strconv.FormatInt(ts.UnixNano(), 10)
	}
	return id
}
