package model

import (
	"github.com/google/uuid"
)

// Assessment is the static definition of a test as served to a candidate.
// It is fetched from the assessment service once per session and never
// mutated locally.
type Assessment struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Difficulty   string     `json:"difficulty,omitempty"`
	Duration     int        `json:"duration"` // minutes
	PassingScore int        `json:"passing_score"`
	Questions    []Question `json:"questions"`
	// Invitation is set only when the assessment was fetched through an
	// invitation link; it carries the invitation the candidate must
	// accept before an attempt exists.
	Invitation *Invitation `json:"invitation,omitempty"`
}

// CandidateView returns a copy of the assessment that is safe to serve
// to a candidate. Hidden test cases are stripped from coding questions;
// code runs resolve them server-side from the full record.
func (a *Assessment) CandidateView() *Assessment {
	out := *a
	out.Questions = make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		q.TestCases = nil
		out.Questions[i] = q
	}
	return &out
}

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
	QuestionTypeShortAnswer    QuestionType = "short-answer"
	QuestionTypeEssay          QuestionType = "essay"
	QuestionTypeCoding         QuestionType = "coding"
)

// Question is a single assessment question. Type-specific fields are
// populated only for the matching QuestionType; grading keys never reach
// this service.
type Question struct {
	ID          uuid.UUID    `json:"id"`
	Type        QuestionType `json:"type"`
	Prompt      string       `json:"question"`
	Explanation string       `json:"explanation,omitempty"`

	// Multiple choice.
	Options []string `json:"options,omitempty"`

	// Coding.
	StarterCode string     `json:"starter_code,omitempty"`
	TestCases   []TestCase `json:"test_cases,omitempty"`
	Languages   []string   `json:"languages,omitempty"`
}

// TestCase is a hidden input/expected-output pair for a coding question.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected_output"`
}
