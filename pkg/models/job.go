package models

import (
	"encoding/json"
	"time"
)

// JobState enumerates the lifecycle states of an optimization job.
type JobState string

const (
	JobStateIdle      JobState = "idle"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateError     JobState = "error"
)

// JobStatus is the persisted job-state document. Exactly one instance exists
// at a time; each start request overwrites it in place.
type JobStatus struct {
	Status       JobState   `json:"status"`
	JobID        string     `json:"jobId,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// TuningSettings are optional optimizer parameters a start request may carry.
// Zero values mean "let the server defaults apply".
type TuningSettings struct {
	MaxMetricCalls             int    `json:"maxMetricCalls,omitempty"`
	Auto                       string `json:"auto,omitempty"`
	CandidateSelectionStrategy string `json:"candidateSelectionStrategy,omitempty"`
	ReflectionMinibatchSize    int    `json:"reflectionMinibatchSize,omitempty"`
	UseMerge                   *bool  `json:"useMerge,omitempty"`
	NumThreads                 int    `json:"numThreads,omitempty"`
}

// CompleteOptimizationVersion identifies the on-disk schema of the
// complete-optimization document.
const CompleteOptimizationVersion = "2.0"

// CompleteOptimization is the durable outcome of one optimization run. The
// "latest" copy is overwritten by each successful run; versioned archives
// accumulate, one directory per run.
type CompleteOptimization struct {
	Version          string            `json:"version"`
	BestScore        float64           `json:"bestScore"`
	Instruction      string            `json:"instruction"`
	Demos            []json.RawMessage `json:"demos"`
	ModelConfig      json.RawMessage   `json:"modelConfig,omitempty"`
	OptimizerType    string            `json:"optimizerType"`
	OptimizationTime float64           `json:"optimizationTime,omitempty"`
	TotalRounds      int               `json:"totalRounds,omitempty"`
	Converged        *bool             `json:"converged,omitempty"`
	Stats            map[string]any    `json:"stats,omitempty"`
	Result           json.RawMessage   `json:"result"`
	Timestamp        time.Time         `json:"timestamp"`
}
