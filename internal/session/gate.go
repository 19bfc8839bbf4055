package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/hirelane/session-gateway/internal/model"
)

// OpenInvitation validates an invitation token against the assessment
// service and returns the gated assessment payload. Consumed, declined
// or expired tokens surface as remote.ErrInvitationInvalid; handlers
// must map that to an access-denied answer, never to a generic load
// failure, so the candidate sees why the link stopped working.
func (m *Manager) OpenInvitation(ctx context.Context, assessmentID uuid.UUID, token string) (*model.Assessment, error) {
	return m.api.FetchAssessment(ctx, assessmentID, token)
}

// AcceptInvitation consumes the invitation and immediately opens the
// session for the attempt the assessment service created. Acceptance is
// one-shot: re-presenting the same token after this call fails the gate.
func (m *Manager) AcceptInvitation(ctx context.Context, invitationID uuid.UUID, candidateID int) (*Session, error) {
	attemptID, err := m.api.AcceptInvitation(ctx, invitationID, candidateID)
	if err != nil {
		return nil, err
	}
	return m.Resume(ctx, attemptID, candidateID)
}

// DeclineInvitation marks the invitation declined without creating an
// attempt.
func (m *Manager) DeclineInvitation(ctx context.Context, invitationID uuid.UUID, candidateID int) error {
	return m.api.DeclineInvitation(ctx, invitationID, candidateID)
}
