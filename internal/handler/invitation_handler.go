package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hirelane/session-gateway/internal/middleware"
	"github.com/hirelane/session-gateway/internal/response"
	"github.com/hirelane/session-gateway/internal/session"
)

// InvitationHandler handles the accept/decline side of the invitation
// gate. Token validation on assessment load lives in SessionHandler.
type InvitationHandler struct {
	manager *session.Manager
}

// NewInvitationHandler creates a new InvitationHandler.
func NewInvitationHandler(manager *session.Manager) *InvitationHandler {
	return &InvitationHandler{manager: manager}
}

func (h *InvitationHandler) claimsAndID(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}

	invitationID, err := uuid.Parse(c.Param("invitation_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}

	return claims.UserID, invitationID, true
}

// AcceptInvitation godoc
// POST /api/v1/candidate/invitations/:invitation_id/accept
// Consumes the invitation and opens the session for the created attempt.
func (h *InvitationHandler) AcceptInvitation(c *gin.Context) {
	candidateID, invitationID, ok := h.claimsAndID(c)
	if !ok {
		return
	}

	s, err := h.manager.AcceptInvitation(c.Request.Context(), invitationID, candidateID)
	if err != nil {
		failRemote(c, err)
		return
	}

	response.Success(c, http.StatusCreated, s.State())
}

// DeclineInvitation godoc
// POST /api/v1/candidate/invitations/:invitation_id/decline
// Marks the invitation declined without creating an attempt.
func (h *InvitationHandler) DeclineInvitation(c *gin.Context) {
	candidateID, invitationID, ok := h.claimsAndID(c)
	if !ok {
		return
	}

	if err := h.manager.DeclineInvitation(c.Request.Context(), invitationID, candidateID); err != nil {
		failRemote(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"declined": true})
}
