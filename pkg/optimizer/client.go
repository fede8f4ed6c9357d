// Package optimizer provides the HTTP client for the external
// prompt-optimization service.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/promptforge-ai/promptforge-engine/pkg/jsonutil"
	"github.com/promptforge-ai/promptforge-engine/pkg/models"
)

// Client talks to the external optimizer's /health and /optimize endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds configuration for creating an optimizer client.
type Config struct {
	BaseURL string        // e.g. "http://localhost:8000"
	Timeout time.Duration // 0 disables the client timeout
}

// NewClient creates a new optimizer client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("optimizer"),
	}, nil
}

// OptimizeRequest is the /optimize request body.
type OptimizeRequest struct {
	Examples                   []models.Example `json:"examples"`
	MaxMetricCalls             int              `json:"maxMetricCalls"`
	Auto                       string           `json:"auto,omitempty"`
	CandidateSelectionStrategy string           `json:"candidateSelectionStrategy,omitempty"`
	ReflectionMinibatchSize    int              `json:"reflectionMinibatchSize,omitempty"`
	UseMerge                   *bool            `json:"useMerge,omitempty"`
	NumThreads                 int              `json:"numThreads,omitempty"`
}

// optimizeResponse mirrors the optimizer's wire shape. Instruction and score
// fields stay raw so tolerant extraction can deal with non-string shapes.
type optimizeResponse struct {
	BestScore        float64           `json:"bestScore"`
	Instruction      json.RawMessage   `json:"instruction,omitempty"`
	OptimizedProgram *optimizedProgram `json:"optimizedProgram,omitempty"`
}

type optimizedProgram struct {
	Instruction      json.RawMessage   `json:"instruction,omitempty"`
	Demos            []json.RawMessage `json:"demos,omitempty"`
	BestScore        json.RawMessage   `json:"bestScore,omitempty"`
	Stats            map[string]any    `json:"stats,omitempty"`
	ModelConfig      json.RawMessage   `json:"modelConfig,omitempty"`
	OptimizerType    string            `json:"optimizerType,omitempty"`
	OptimizationTime float64           `json:"optimizationTime,omitempty"`
	TotalRounds      int               `json:"totalRounds,omitempty"`
	Converged        *bool             `json:"converged,omitempty"`
}

// OptimizeResult is the parsed, normalized outcome of an /optimize call.
type OptimizeResult struct {
	BestScore        float64
	Instruction      string // empty when the optimizer provided none
	Demos            []json.RawMessage
	ModelConfig      json.RawMessage
	OptimizerType    string
	OptimizationTime float64
	TotalRounds      int
	Converged        *bool
	Stats            map[string]any
	Raw              json.RawMessage // full response payload, verbatim
}

// Health probes the optimizer's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("optimizer health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("optimizer health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Optimize posts the example set and tuning parameters to the optimizer and
// returns the parsed result. A non-success response is an error carrying the
// response body as detail.
func (c *Client) Optimize(ctx context.Context, optReq *OptimizeRequest) (*OptimizeResult, error) {
	body, err := json.Marshal(optReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal optimize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/optimize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build optimize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("Optimize request",
		zap.Int("examples", len(optReq.Examples)),
		zap.Int("max_metric_calls", optReq.MaxMetricCalls))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Optimize request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("optimizer request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read optimizer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("optimizer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	c.logger.Info("Optimize request completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_bytes", len(payload)))

	return parseResult(payload)
}

// parseResult normalizes the optimizer's response, tolerating both a
// top-level instruction and one nested under optimizedProgram.
func parseResult(payload []byte) (*OptimizeResult, error) {
	var wire optimizeResponse
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse optimizer response: %w", err)
	}

	result := &OptimizeResult{
		BestScore: wire.BestScore,
		Raw:       json.RawMessage(payload),
	}

	result.Instruction = jsonutil.FlexibleStringValue(wire.Instruction)

	if prog := wire.OptimizedProgram; prog != nil {
		if result.Instruction == "" {
			result.Instruction = jsonutil.FlexibleStringValue(prog.Instruction)
		}
		if result.BestScore == 0 {
			result.BestScore = jsonutil.FlexibleFloatValue(prog.BestScore)
		}
		result.Demos = prog.Demos
		result.ModelConfig = prog.ModelConfig
		result.OptimizerType = prog.OptimizerType
		result.OptimizationTime = prog.OptimizationTime
		result.TotalRounds = prog.TotalRounds
		result.Converged = prog.Converged
		result.Stats = prog.Stats
	}

	return result, nil
}
