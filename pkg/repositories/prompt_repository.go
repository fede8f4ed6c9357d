package repositories

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PromptRepository persists the latest optimized prompt text for downstream
// consumers. History lives in the versioned archive, not here.
type PromptRepository interface {
	// Write trims the text and persists it with a single trailing newline,
	// overwriting any previous content.
	Write(text string) error

	// Read returns the current prompt text.
	Read() (string, error)
}

type promptRepository struct {
	path string
}

// NewPromptRepository creates a PromptRepository backed by the given file.
func NewPromptRepository(path string) PromptRepository {
	return &promptRepository{path: path}
}

var _ PromptRepository = (*promptRepository)(nil)

func (r *promptRepository) Write(text string) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create prompt directory: %w", err)
	}

	content := strings.TrimSpace(text) + "\n"
	if err := os.WriteFile(r.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write prompt: %w", err)
	}
	return nil
}

func (r *promptRepository) Read() (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	return string(data), nil
}
