package repositories

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/promptforge-ai/promptforge-engine/pkg/models"
)

const (
	latestFileName = "complete-optimization.json"
	promptFileName = "optimized-prompt.txt"
)

// OptimizationRepository persists complete-optimization records: a "latest"
// document overwritten by each run, plus an immutable versioned archive keyed
// by a timestamp-derived identifier.
type OptimizationRepository interface {
	// SaveLatest overwrites the latest complete-optimization record.
	SaveLatest(rec *models.CompleteOptimization) error

	// LoadLatest returns the latest complete-optimization record.
	LoadLatest() (*models.CompleteOptimization, error)

	// Archive writes an immutable copy of the record and the prompt text
	// under versions/<versionID>/.
	Archive(versionID string, rec *models.CompleteOptimization, promptText string) error
}

type optimizationRepository struct {
	latestPath  string
	versionsDir string
	logger      *zap.Logger
}

// NewOptimizationRepository creates an OptimizationRepository writing the
// latest record to latestPath and versioned snapshots under versionsDir.
func NewOptimizationRepository(latestPath, versionsDir string, logger *zap.Logger) OptimizationRepository {
	return &optimizationRepository{
		latestPath:  latestPath,
		versionsDir: versionsDir,
		logger:      logger.Named("optimizations"),
	}
}

var _ OptimizationRepository = (*optimizationRepository)(nil)

func (r *optimizationRepository) SaveLatest(rec *models.CompleteOptimization) error {
	if err := os.MkdirAll(filepath.Dir(r.latestPath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal optimization record: %w", err)
	}

	if err := os.WriteFile(r.latestPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write optimization record: %w", err)
	}
	return nil
}

func (r *optimizationRepository) LoadLatest() (*models.CompleteOptimization, error) {
	data, err := os.ReadFile(r.latestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read optimization record: %w", err)
	}

	var rec models.CompleteOptimization
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse optimization record: %w", err)
	}
	return &rec, nil
}

func (r *optimizationRepository) Archive(versionID string, rec *models.CompleteOptimization, promptText string) error {
	dir := filepath.Join(r.versionsDir, versionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal optimization record: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, latestFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to archive optimization record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, promptFileName), []byte(promptText), 0o644); err != nil {
		return fmt.Errorf("failed to archive prompt: %w", err)
	}

	r.logger.Info("Archived optimization run", zap.String("version", versionID))
	return nil
}
