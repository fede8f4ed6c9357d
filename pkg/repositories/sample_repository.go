package repositories

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/promptforge-ai/promptforge-engine/pkg/models"
)

// SampleRepository provides read access to the recorded-session store.
type SampleRepository interface {
	// Load returns every recorded session, in document order. It never
	// returns an error: a missing, unreadable or malformed store yields an
	// empty slice, with the failure logged.
	Load() []models.Session
}

type sampleRepository struct {
	path   string
	logger *zap.Logger
}

// NewSampleRepository creates a SampleRepository reading from the given file.
func NewSampleRepository(path string, logger *zap.Logger) SampleRepository {
	return &sampleRepository{path: path, logger: logger.Named("samples")}
}

var _ SampleRepository = (*sampleRepository)(nil)

// samplesDocument is the current on-disk schema.
type samplesDocument struct {
	Samples []models.Session `json:"samples"`
}

// legacySamplesDocument is the historical on-disk schema, split into
// good/bad session buckets.
type legacySamplesDocument struct {
	Good []models.Session `json:"good"`
	Bad  []models.Session `json:"bad"`
}

func (r *sampleRepository) Load() []models.Session {
	data, err := os.ReadFile(r.path)
	if err != nil {
		r.logger.Warn("Sample store unreadable, treating as empty",
			zap.String("path", r.path),
			zap.Error(err))
		return []models.Session{}
	}

	// Duck-check for the current schema before falling back to the legacy
	// one: "samples" must be present and array-typed.
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		r.logger.Warn("Sample store is not a JSON object, treating as empty",
			zap.String("path", r.path),
			zap.Error(err))
		return []models.Session{}
	}

	if _, ok := shape["samples"]; ok {
		var doc samplesDocument
		if err := json.Unmarshal(data, &doc); err == nil && doc.Samples != nil {
			return doc.Samples
		}
	}

	_, hasGood := shape["good"]
	_, hasBad := shape["bad"]
	if hasGood || hasBad {
		var doc legacySamplesDocument
		if err := json.Unmarshal(data, &doc); err == nil {
			merged := make([]models.Session, 0, len(doc.Good)+len(doc.Bad))
			merged = append(merged, doc.Good...)
			merged = append(merged, doc.Bad...)
			return merged
		}
	}

	r.logger.Warn("Sample store has no recognizable schema, treating as empty",
		zap.String("path", r.path))
	return []models.Session{}
}
