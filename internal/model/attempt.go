package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. The assessment service owns
// the transition to submitted; expired exists only as a local projection
// of an attempt whose deadline passed before the server confirmed
// submission.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "not_started"
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusExpired    AttemptStatus = "expired"
)

// Attempt is one candidate's timed instance of taking an assessment.
// The copy held here is a cached projection of the assessment service's
// record; StartedAt is set exactly once, server-side.
type Attempt struct {
	ID              uuid.UUID         `json:"id"`
	AssessmentID    uuid.UUID         `json:"assessment_id"`
	Status          AttemptStatus     `json:"status"`
	StartedAt       time.Time         `json:"started_at"`
	CurrentQuestion int               `json:"current_question"`
	Answers         map[string]string `json:"answers"`
}

// SubmitResult is the assessment service's verdict for a finalized attempt.
type SubmitResult struct {
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
}

// SaveAnswerRequest is the payload for persisting a single answer.
// NextQuestion carries the index the candidate navigated to so a resumed
// session lands on the right question.
type SaveAnswerRequest struct {
	QuestionID   string `json:"question_id" binding:"required,uuid"`
	Answer       string `json:"answer"`
	NextQuestion int    `json:"next_question" binding:"min=0"`
}

// NavigateRequest is the payload for moving between questions without
// changing an answer.
type NavigateRequest struct {
	Index int `json:"index" binding:"min=0"`
}
