package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/config"
	"github.com/hirelane/session-gateway/internal/model"
)

// ErrRunnerUnavailable is returned when the code runner cannot be
// reached or answers with a non-2xx status.
var ErrRunnerUnavailable = errors.New("code runner unavailable")

// Runner submits candidate source to the sandboxed execution service.
// One call covers both ad-hoc runs (Input set, no TestCases) and full
// test-case evaluation.
type Runner struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewRunner creates a code runner client. The HTTP timeout is the outer
// transport bound; the runner enforces its own wall-clock limit and
// reports it through the Timeout flag rather than an error.
func NewRunner(cfg *config.Config, log zerolog.Logger) *Runner {
	return &Runner{
		baseURL: cfg.RunnerURL,
		http:    &http.Client{Timeout: cfg.RunnerTimeout},
		log:     log.With().Str("component", "runner_client").Logger(),
	}
}

// RunRequest is the wire payload for one execution.
type RunRequest struct {
	Code      string           `json:"code"`
	Language  string           `json:"language"`
	Input     string           `json:"input,omitempty"`
	TestCases []model.TestCase `json:"test_cases"`
}

// RunResponse is the runner's raw, unclassified reply. Classification
// into ok/error/timeout outcomes happens in the coderun package.
type RunResponse struct {
	Output          string                 `json:"output"`
	Error           string                 `json:"error,omitempty"`
	Timeout         bool                   `json:"timeout"`
	TestCaseResults []model.TestCaseResult `json:"test_case_results,omitempty"`
}

// Run executes one request against the runner service.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if req.TestCases == nil {
		req.TestCases = []model.TestCase{}
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/run-code", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRunnerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.log.Warn().Int("status", resp.StatusCode).Msg("Runner error")
		return nil, fmt.Errorf("%w: status %d", ErrRunnerUnavailable, resp.StatusCode)
	}

	var out RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode run response: %w", err)
	}
	return &out, nil
}
