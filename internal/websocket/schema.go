package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single answer and move
// navigation.
type AutosaveRequest struct {
	Action       Action `json:"action"`
	QuestionID   string `json:"question_id"`
	Answer       string `json:"answer"`
	NextQuestion int    `json:"next_question"`
}

// SubmitRequest is sent by the client to finalize the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSuccess   Event = "success"
	EventTick      Event = "tick"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type AutosaveResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// TickResponse carries the server-derived remaining time, once per second.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// SubmittedResponse announces the terminal state of the attempt. Forced
// is true when the countdown, not the candidate, triggered the submit.
type SubmittedResponse struct {
	Event  Event   `json:"event"`
	Forced bool    `json:"forced"`
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
