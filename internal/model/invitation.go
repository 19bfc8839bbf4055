package model

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus enumerates invitation states.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusDeclined InvitationStatus = "declined"
	InvitationStatusExpired  InvitationStatus = "expired"
)

// Invitation is a one-time token granting access to start a specific
// attempt. Accepting one creates the attempt server-side; after that the
// invitation plays no further role in the session.
type Invitation struct {
	ID           uuid.UUID        `json:"id"`
	AssessmentID uuid.UUID        `json:"assessment_id"`
	Status       InvitationStatus `json:"status"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	Message      string           `json:"message,omitempty"`
}
