package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/config"
	"github.com/hirelane/session-gateway/internal/model"
)

// Sentinel errors returned by the assessment service client. Callers
// branch on these instead of inspecting HTTP statuses.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvitationInvalid = errors.New("invitation is no longer valid")
	ErrAlreadySubmitted  = errors.New("attempt already submitted")
	ErrUnavailable       = errors.New("assessment service unavailable")
)

// Client talks to the assessment service, the system of record for
// assessments, attempts and invitations. The gateway never persists any
// of that state itself.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates an assessment service client.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.AssessmentAPIURL,
		apiKey:  cfg.AssessmentAPIKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "assessment_client").Logger(),
	}
}

// FetchAssessment retrieves an assessment with its question list. When
// invitationToken is non-empty the service validates the invitation and
// embeds it in the payload; an expired or already-resolved invitation
// yields ErrInvitationInvalid.
func (c *Client) FetchAssessment(ctx context.Context, assessmentID uuid.UUID, invitationToken string) (*model.Assessment, error) {
	path := fmt.Sprintf("/assessments/%s", assessmentID)
	if invitationToken != "" {
		path += "?invitation=" + invitationToken
	}

	var out model.Assessment
	if err := c.do(ctx, http.MethodGet, path, 0, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchAttempt retrieves the server's view of an attempt: status,
// started_at, saved answers and the current question index. Used on
// session resume after a reload. candidateID is forwarded so the
// service can reject attempts owned by someone else.
func (c *Client) FetchAttempt(ctx context.Context, attemptID uuid.UUID, candidateID int) (*model.Attempt, error) {
	var out model.Attempt
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/attempts/%s", attemptID), candidateID, nil, &out); err != nil {
		return nil, err
	}
	if out.Answers == nil {
		out.Answers = map[string]string{}
	}
	return &out, nil
}

// StartAttempt creates a new attempt for the candidate. The service sets
// started_at authoritatively; the gateway must never invent it.
func (c *Client) StartAttempt(ctx context.Context, assessmentID uuid.UUID, candidateID int) (*model.Attempt, error) {
	var out model.Attempt
	path := fmt.Sprintf("/assessments/%s/attempts", assessmentID)
	if err := c.do(ctx, http.MethodPost, path, candidateID, nil, &out); err != nil {
		return nil, err
	}
	if out.Answers == nil {
		out.Answers = map[string]string{}
	}
	return &out, nil
}

type saveAnswerPayload struct {
	QuestionID   string `json:"question_id"`
	Answer       string `json:"answer"`
	NextQuestion int    `json:"next_question"`
}

// SaveAnswer upserts a single answer, keyed (attempt, question), last
// write wins. Issuance order is not guaranteed to match arrival order;
// the service treats every call as an independent upsert.
func (c *Client) SaveAnswer(ctx context.Context, attemptID uuid.UUID, questionID, answer string, nextQuestion int) error {
	payload := saveAnswerPayload{QuestionID: questionID, Answer: answer, NextQuestion: nextQuestion}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/attempts/%s/answer", attemptID), 0, payload, nil)
}

type acceptInvitationResponse struct {
	AttemptID uuid.UUID `json:"attempt_id"`
}

// AcceptInvitation converts a pending invitation into a started attempt
// and returns the new attempt id. One-way: the service rejects a second
// accept with ErrInvitationInvalid.
func (c *Client) AcceptInvitation(ctx context.Context, invitationID uuid.UUID, candidateID int) (uuid.UUID, error) {
	var out acceptInvitationResponse
	path := fmt.Sprintf("/invitations/%s/accept", invitationID)
	if err := c.do(ctx, http.MethodPost, path, candidateID, nil, &out); err != nil {
		return uuid.Nil, err
	}
	return out.AttemptID, nil
}

// DeclineInvitation marks a pending invitation declined without creating
// an attempt.
func (c *Client) DeclineInvitation(ctx context.Context, invitationID uuid.UUID, candidateID int) error {
	path := fmt.Sprintf("/invitations/%s/decline", invitationID)
	return c.do(ctx, http.MethodPost, path, candidateID, nil, nil)
}

// SubmitAttempt finalizes an attempt and returns the graded verdict.
// The operation is idempotent server-side; a conflict means some other
// path already submitted and maps to ErrAlreadySubmitted.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID uuid.UUID) (*model.SubmitResult, error) {
	var out model.SubmitResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/attempts/%s/submit", attemptID), 0, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one JSON round-trip and maps non-2xx statuses onto the
// client's sentinel errors. candidateID > 0 is forwarded as the acting
// candidate; out may be nil when no body is expected.
func (c *Client) do(ctx context.Context, method, path string, candidateID int, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if candidateID > 0 {
		req.Header.Set("X-Candidate-ID", strconv.Itoa(candidateID))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Fall through to decode.
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		return ErrInvitationInvalid
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadySubmitted
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Bytes("body", snippet).
			Msg("Upstream error")
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
