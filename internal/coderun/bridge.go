package coderun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/model"
	"github.com/hirelane/session-gateway/internal/remote"
)

// Bridge validation and concurrency errors.
var (
	ErrInputRequired = errors.New("input is required for an ad-hoc run")
	ErrRunInFlight   = errors.New("a run is already in flight for this question")
)

// defaultTimeoutMessage is shown when the runner reports a timeout
// without its own message.
const defaultTimeoutMessage = "Error: Code execution timed out (possible infinite loop)"

// Executor is the slice of the runner client the bridge depends on.
type Executor interface {
	Run(ctx context.Context, req remote.RunRequest) (*remote.RunResponse, error)
}

// Bridge submits candidate code for execution and classifies the raw
// runner response into a CodeRunResult. At most one execution may be in
// flight per (attempt, question); concurrent requests are rejected so
// two result sets can never race into the same output pane.
type Bridge struct {
	exec Executor
	log  zerolog.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

// NewBridge creates a Bridge on top of an executor.
func NewBridge(exec Executor, log zerolog.Logger) *Bridge {
	return &Bridge{
		exec:    exec,
		log:     log.With().Str("component", "coderun_bridge").Logger(),
		running: make(map[string]struct{}),
	}
}

// RunAdHoc executes code against a single candidate-supplied input with
// no grading. Blank input fails fast locally; no network call is made.
func (b *Bridge) RunAdHoc(ctx context.Context, attemptID, questionID, code, language, input string) (*model.CodeRunResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrInputRequired
	}

	release, err := b.acquire(attemptID, questionID)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := b.exec.Run(ctx, remote.RunRequest{
		Code:     code,
		Language: language,
		Input:    input,
	})
	if err != nil {
		return nil, err
	}

	if resp.Timeout {
		return timeoutResult(resp.Output), nil
	}
	if resp.Error != "" {
		return &model.CodeRunResult{Outcome: model.RunOutcomeError, Output: resp.Error}, nil
	}
	return &model.CodeRunResult{Outcome: model.RunOutcomeOK, Output: resp.Output}, nil
}

// RunTestCases executes code against the question's hidden test cases in
// a single remote call and classifies the response:
//
//  1. runner timeout: timeout outcome, any partial rows discarded
//  2. every case errored with no output: one consolidated error, not N
//  3. otherwise: per-case PASS/FAIL rows plus an aggregate verdict
func (b *Bridge) RunTestCases(ctx context.Context, attemptID, questionID, code, language string, cases []model.TestCase) (*model.CodeRunResult, error) {
	release, err := b.acquire(attemptID, questionID)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := b.exec.Run(ctx, remote.RunRequest{
		Code:      code,
		Language:  language,
		TestCases: cases,
	})
	if err != nil {
		return nil, err
	}

	if resp.Timeout {
		return timeoutResult(resp.Output), nil
	}

	if len(resp.TestCaseResults) == 0 {
		if resp.Error != "" {
			return &model.CodeRunResult{Outcome: model.RunOutcomeError, Output: resp.Error}, nil
		}
		return &model.CodeRunResult{Outcome: model.RunOutcomeOK, Output: resp.Output}, nil
	}

	// A compile or whole-program runtime failure shows up as the same
	// error on every case with no output. Surface it once.
	if allErrored(resp.TestCaseResults) {
		return &model.CodeRunResult{
			Outcome: model.RunOutcomeError,
			Output:  resp.TestCaseResults[0].Error,
		}, nil
	}

	return &model.CodeRunResult{
		Outcome: model.RunOutcomeOK,
		Results: resp.TestCaseResults,
		Verdict: aggregateVerdict(resp.TestCaseResults),
	}, nil
}

// acquire reserves the per-question execution slot or reports a run
// already in flight.
func (b *Bridge) acquire(attemptID, questionID string) (func(), error) {
	key := fmt.Sprintf("%s:%s", attemptID, questionID)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, busy := b.running[key]; busy {
		return nil, ErrRunInFlight
	}
	b.running[key] = struct{}{}

	return func() {
		b.mu.Lock()
		delete(b.running, key)
		b.mu.Unlock()
	}, nil
}

func timeoutResult(output string) *model.CodeRunResult {
	if output == "" {
		output = defaultTimeoutMessage
	}
	return &model.CodeRunResult{Outcome: model.RunOutcomeTimeout, Output: output}
}

func allErrored(results []model.TestCaseResult) bool {
	for _, r := range results {
		if r.Error == "" || r.Output != "" {
			return false
		}
	}
	return true
}

func aggregateVerdict(results []model.TestCaseResult) model.Verdict {
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	switch passed {
	case len(results):
		return model.VerdictAllPassed
	case 0:
		return model.VerdictAllFailed
	default:
		return model.VerdictPartial
	}
}
