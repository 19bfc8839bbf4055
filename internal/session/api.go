package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/hirelane/session-gateway/internal/model"
)

// AttemptAPI is the slice of the assessment service this package depends
// on. remote.Client implements it; tests substitute fakes.
type AttemptAPI interface {
	FetchAssessment(ctx context.Context, assessmentID uuid.UUID, invitationToken string) (*model.Assessment, error)
	FetchAttempt(ctx context.Context, attemptID uuid.UUID, candidateID int) (*model.Attempt, error)
	StartAttempt(ctx context.Context, assessmentID uuid.UUID, candidateID int) (*model.Attempt, error)
	SaveAnswer(ctx context.Context, attemptID uuid.UUID, questionID, answer string, nextQuestion int) error
	AcceptInvitation(ctx context.Context, invitationID uuid.UUID, candidateID int) (uuid.UUID, error)
	DeclineInvitation(ctx context.Context, invitationID uuid.UUID, candidateID int) error
	SubmitAttempt(ctx context.Context, attemptID uuid.UUID) (*model.SubmitResult, error)
}
