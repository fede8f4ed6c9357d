package repositories

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/promptforge-ai/promptforge-engine/pkg/models"
)

// StatusRepository persists the single job-status document.
//
// There is no file locking: concurrent writers race and the last writer wins.
// Mutual exclusion of runs is enforced by the optimization service, not here.
type StatusRepository interface {
	// Read returns the last written status, or nil when no status exists or
	// the document is unreadable. Failures are logged, never returned.
	Read() *models.JobStatus

	// Write serializes and persists the given status, creating the containing
	// directory if necessary.
	Write(status *models.JobStatus) error
}

type statusRepository struct {
	path   string
	logger *zap.Logger
}

// NewStatusRepository creates a StatusRepository backed by the given file.
func NewStatusRepository(path string, logger *zap.Logger) StatusRepository {
	return &statusRepository{path: path, logger: logger.Named("status")}
}

var _ StatusRepository = (*statusRepository)(nil)

func (r *statusRepository) Read() *models.JobStatus {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("Status document unreadable",
				zap.String("path", r.path),
				zap.Error(err))
		}
		return nil
	}

	var status models.JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		r.logger.Warn("Status document corrupt",
			zap.String("path", r.path),
			zap.Error(err))
		return nil
	}
	return &status
}

func (r *statusRepository) Write(status *models.JobStatus) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}
