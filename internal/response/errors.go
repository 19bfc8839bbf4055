package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrInvitationInvalid ErrCode = "INVITATION_INVALID"
	ErrAttemptSubmitted  ErrCode = "ATTEMPT_SUBMITTED"
	ErrNoActiveSession   ErrCode = "NO_ACTIVE_SESSION"
	ErrSubmitFailed      ErrCode = "SUBMIT_FAILED"

	// ─── Code execution ────────────────────────────────────────────────
	ErrInputRequired   ErrCode = "INPUT_REQUIRED"
	ErrRunInFlight     ErrCode = "RUN_IN_FLIGHT"
	ErrNotCodeQuestion ErrCode = "NOT_A_CODING_QUESTION"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrUpstreamUnavailable ErrCode = "UPSTREAM_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrCandidateAccessOnly:
		return "This resource is restricted to candidates."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Session-specific ──────────────────────────────────────────────
	case ErrInvitationInvalid:
		return "This invitation is no longer valid."
	case ErrAttemptSubmitted:
		return "This attempt has already been submitted."
	case ErrNoActiveSession:
		return "No active assessment session for this attempt."
	case ErrSubmitFailed:
		return "Could not submit the assessment. Please try again."

	// ─── Code execution ────────────────────────────────────────────────
	case ErrInputRequired:
		return "Please provide input for your code."
	case ErrRunInFlight:
		return "A code execution is already running for this question."
	case ErrNotCodeQuestion:
		return "This question does not accept code execution."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrUpstreamUnavailable:
		return "The assessment service is temporarily unavailable."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
