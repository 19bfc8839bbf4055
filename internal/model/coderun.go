package model

// RunOutcome classifies a single code execution round-trip.
type RunOutcome string

const (
	RunOutcomeOK      RunOutcome = "ok"
	RunOutcomeError   RunOutcome = "error"
	RunOutcomeTimeout RunOutcome = "timeout"
)

// Verdict is the user-facing aggregate over per-test-case results. It is
// a display signal only; authoritative scoring happens server-side at
// submission time.
type Verdict string

const (
	VerdictAllPassed Verdict = "all_passed"
	VerdictPartial   Verdict = "partial"
	VerdictAllFailed Verdict = "all_failed"
)

// TestCaseResult is one graded test-case row from the code runner.
type TestCaseResult struct {
	Input    string `json:"input"`
	Output   string `json:"output"`
	Expected string `json:"expected"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
}

// CodeRunResult is the classified outcome of one execution. Transient:
// it renders the debugger pane and is never persisted with the attempt.
type CodeRunResult struct {
	Outcome RunOutcome       `json:"outcome"`
	Output  string           `json:"output,omitempty"`
	Results []TestCaseResult `json:"test_case_results,omitempty"`
	Verdict Verdict          `json:"verdict,omitempty"`
}

// RunMode selects between an ad-hoc execution and a full test-case run.
type RunMode string

const (
	RunModeAdHoc RunMode = "adhoc"
	RunModeTests RunMode = "tests"
)

// RunCodeRequest is the payload for both ad-hoc runs and test-case runs.
// Test cases never appear here: they are hidden, so the gateway resolves
// them from the question on the server side.
type RunCodeRequest struct {
	QuestionID string  `json:"question_id" binding:"required,uuid"`
	Code       string  `json:"code"`
	Language   string  `json:"language" binding:"required,oneof=javascript python java"`
	Mode       RunMode `json:"mode" binding:"required,oneof=adhoc tests"`
	Input      string  `json:"input"`
}
