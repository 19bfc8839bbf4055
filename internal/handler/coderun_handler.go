package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hirelane/session-gateway/internal/coderun"
	"github.com/hirelane/session-gateway/internal/model"
	"github.com/hirelane/session-gateway/internal/remote"
	"github.com/hirelane/session-gateway/internal/response"
	"github.com/hirelane/session-gateway/internal/session"
	"github.com/hirelane/session-gateway/internal/validator"
)

// CodeRunHandler bridges coding questions to the remote runner. Test
// cases are resolved server-side from the session's assessment so hidden
// cases never transit the client.
type CodeRunHandler struct {
	manager *session.Manager
	bridge  *coderun.Bridge
}

// NewCodeRunHandler creates a new CodeRunHandler.
func NewCodeRunHandler(manager *session.Manager, bridge *coderun.Bridge) *CodeRunHandler {
	return &CodeRunHandler{manager: manager, bridge: bridge}
}

// RunCode godoc
// POST /api/v1/candidate/attempts/:attempt_id/run-code
// Executes candidate code ad hoc or against the question's test cases.
func (h *CodeRunHandler) RunCode(c *gin.Context) {
	s, ok := ownedSession(c, h.manager)
	if !ok {
		return
	}

	var req model.RunCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := s.Question(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if question.Type != model.QuestionTypeCoding {
		response.Fail(c, http.StatusBadRequest, response.ErrNotCodeQuestion)
		return
	}

	ctx := c.Request.Context()
	attemptID := s.AttemptID().String()

	var result *model.CodeRunResult
	switch req.Mode {
	case model.RunModeAdHoc:
		result, err = h.bridge.RunAdHoc(ctx, attemptID, req.QuestionID, req.Code, req.Language, req.Input)
	case model.RunModeTests:
		result, err = h.bridge.RunTestCases(ctx, attemptID, req.QuestionID, req.Code, req.Language, question.TestCases)
	}

	if err != nil {
		switch {
		case errors.Is(err, coderun.ErrInputRequired):
			response.Fail(c, http.StatusBadRequest, response.ErrInputRequired)
		case errors.Is(err, coderun.ErrRunInFlight):
			response.Fail(c, http.StatusConflict, response.ErrRunInFlight)
		case errors.Is(err, remote.ErrRunnerUnavailable):
			response.Fail(c, http.StatusBadGateway, response.ErrUpstreamUnavailable)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"run": result})
}
