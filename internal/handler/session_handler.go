package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hirelane/session-gateway/internal/middleware"
	"github.com/hirelane/session-gateway/internal/model"
	"github.com/hirelane/session-gateway/internal/remote"
	"github.com/hirelane/session-gateway/internal/response"
	"github.com/hirelane/session-gateway/internal/session"
	"github.com/hirelane/session-gateway/internal/validator"
)

// SessionHandler handles the candidate-facing attempt lifecycle.
type SessionHandler struct {
	manager *session.Manager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// failRemote maps upstream and session errors onto the response envelope.
func failRemote(c *gin.Context, err error) {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, remote.ErrInvitationInvalid):
		response.Fail(c, http.StatusForbidden, response.ErrInvitationInvalid)
	case errors.Is(err, remote.ErrAlreadySubmitted), errors.Is(err, session.ErrAttemptFinished):
		response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrSessionClosed):
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
	case errors.Is(err, session.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, remote.ErrUnavailable):
		response.Fail(c, http.StatusBadGateway, response.ErrUpstreamUnavailable)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// ownedSession resolves the live session for the :attempt_id param and
// rejects candidates who do not own it.
func ownedSession(c *gin.Context, manager *session.Manager) (*session.Session, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	s, err := manager.Get(attemptID)
	if err != nil {
		failRemote(c, err)
		return nil, false
	}

	if s.CandidateID() != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}

	return s, true
}

// GetAssessment godoc
// GET /api/v1/candidate/assessments/:assessment_id?invitation=<token>
// Loads the candidate-facing assessment payload. With an invitation token
// the gate is checked upstream on every call.
func (h *SessionHandler) GetAssessment(c *gin.Context) {
	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	token := c.Query("invitation")

	var assessment *model.Assessment
	if token != "" {
		assessment, err = h.manager.OpenInvitation(c.Request.Context(), assessmentID, token)
	} else {
		assessment, err = h.manager.GetAssessment(c.Request.Context(), assessmentID, "")
	}
	if err != nil {
		failRemote(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessment": assessment.CandidateView()})
}

// StartAttempt godoc
// POST /api/v1/candidate/assessments/:assessment_id/start
// Begins a fresh attempt on an open assessment.
func (h *SessionHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	s, err := h.manager.StartDirect(c.Request.Context(), assessmentID, claims.UserID)
	if err != nil {
		failRemote(c, err)
		return
	}

	response.Success(c, http.StatusCreated, s.State())
}

// GetActiveAttempt godoc
// GET /api/v1/candidate/active-attempt
// Reports the attempt the candidate currently has open, so a fresh tab
// can land back in the session instead of the start screen.
func (h *SessionHandler) GetActiveAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := h.manager.ActiveAttempt(c.Request.Context(), claims.UserID)
	if !ok {
		response.Success(c, http.StatusOK, gin.H{"attempt_id": nil})
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt_id": attemptID})
}

// GetAttempt godoc
// GET /api/v1/candidate/attempts/:attempt_id
// Resumes an in-flight attempt, rebuilding the session from server truth.
func (h *SessionHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	s, err := h.manager.Resume(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failRemote(c, err)
		return
	}

	if s.CandidateID() != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	response.Success(c, http.StatusOK, s.State())
}

// SaveAnswer godoc
// POST /api/v1/candidate/attempts/:attempt_id/answer
// Records an answer locally and fires the persistence channel.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	s, ok := ownedSession(c, h.manager)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := s.SaveAnswer(req.QuestionID, req.Answer, req.NextQuestion)
	if err != nil {
		failRemote(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Navigate godoc
// POST /api/v1/candidate/attempts/:attempt_id/navigate
// Moves the current question marker. Out-of-range indexes clamp.
func (h *SessionHandler) Navigate(c *gin.Context) {
	s, ok := ownedSession(c, h.manager)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	index, err := s.Navigate(req.Index)
	if err != nil {
		failRemote(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"current_question": index})
}

// SubmitAttempt godoc
// POST /api/v1/candidate/attempts/:attempt_id/submit
// Finalizes the attempt. Safe to call more than once; repeats return the
// original result.
func (h *SessionHandler) SubmitAttempt(c *gin.Context) {
	s, ok := ownedSession(c, h.manager)
	if !ok {
		return
	}

	result, err := s.ConfirmSubmit(c.Request.Context(), session.TriggerManual)
	if err != nil {
		response.Fail(c, http.StatusBadGateway, response.ErrSubmitFailed)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// CloseAttempt godoc
// DELETE /api/v1/candidate/attempts/:attempt_id
// Tears down the live session without submitting, as when the candidate
// navigates away. The attempt stays in_progress upstream.
func (h *SessionHandler) CloseAttempt(c *gin.Context) {
	s, ok := ownedSession(c, h.manager)
	if !ok {
		return
	}

	h.manager.Close(s.AttemptID())
	response.Success(c, http.StatusOK, gin.H{"closed": true})
}
