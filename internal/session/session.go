package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/model"
	"github.com/hirelane/session-gateway/internal/remote"
)

// Session-level errors.
var (
	ErrSessionClosed    = errors.New("session has been closed")
	ErrQuestionNotFound = errors.New("question not part of this assessment")
)

// submitTimeout bounds the finalize round-trip for timer-forced submits,
// which run without a request context.
const submitTimeout = 10 * time.Second

// SubmitTrigger records which path invoked the finalize call. Both paths
// share one implementation; the trigger exists for audit logging and the
// forced flag on the submitted event.
type SubmitTrigger string

const (
	TriggerManual SubmitTrigger = "manual"
	TriggerTimer  SubmitTrigger = "timer"
)

// SubmittedEvent notifies observers (the websocket stream) that the
// attempt was finalized.
type SubmittedEvent struct {
	Result model.SubmitResult `json:"result"`
	Forced bool               `json:"forced"`
}

// State is the resume payload for a session: the attempt projection plus
// the derived remaining time.
type State struct {
	Attempt          model.Attempt `json:"attempt"`
	RemainingSeconds int           `json:"remaining_seconds"`
}

// Session owns all mutable state for one attempt: the store, the
// countdown, the persistence channel and the submission controller. One
// Session exists per attempt, held by the Manager for its lifetime.
type Session struct {
	attemptID   uuid.UUID
	candidateID int
	assessment  *model.Assessment

	store   *Store
	timer   *Countdown
	persist *Persister
	api     AttemptAPI
	log     zerolog.Logger

	// submitMu serializes finalize calls so a timer-forced submit and a
	// manual submit can never both reach the assessment service.
	submitMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	result  *model.SubmitResult
	subs    map[int]chan SubmittedEvent
	nextSub int

	// onTerminal is the manager's teardown hook, invoked once when the
	// session reaches a terminal state.
	onTerminal func()
}

// AttemptID returns the attempt this session manages.
func (s *Session) AttemptID() uuid.UUID { return s.attemptID }

// CandidateID returns the owning candidate. Handlers use it to reject
// other candidates' tokens.
func (s *Session) CandidateID() int { return s.candidateID }

// Assessment returns the immutable assessment definition.
func (s *Session) Assessment() *model.Assessment { return s.assessment }

// State returns the attempt snapshot with derived remaining seconds.
func (s *Session) State() State {
	return State{
		Attempt:          s.store.Snapshot(),
		RemainingSeconds: s.timer.RemainingSeconds(),
	}
}

// Question resolves a question of this session's assessment by id.
func (s *Session) Question(questionID string) (*model.Question, error) {
	for i := range s.assessment.Questions {
		if s.assessment.Questions[i].ID.String() == questionID {
			return &s.assessment.Questions[i], nil
		}
	}
	return nil, ErrQuestionNotFound
}

// SaveAnswer applies the answer locally, moves navigation to
// nextQuestion and fires the persistence channel. The local update is
// synchronous; the remote upsert never blocks. After submission the call
// is a no-op returning the frozen snapshot.
func (s *Session) SaveAnswer(questionID, value string, nextQuestion int) (model.Attempt, error) {
	if s.isClosed() {
		return model.Attempt{}, ErrSessionClosed
	}
	if _, err := s.Question(questionID); err != nil {
		return model.Attempt{}, err
	}

	if s.store.Status() == model.AttemptStatusSubmitted {
		return s.store.Snapshot(), nil
	}

	s.store.SetAnswer(questionID, value)
	next := s.store.SetCurrentQuestion(nextQuestion)
	s.persist.Persist(s.attemptID, questionID, value, next)

	return s.store.Snapshot(), nil
}

// Navigate moves to the given question index without touching answers.
func (s *Session) Navigate(index int) (int, error) {
	if s.isClosed() {
		return 0, ErrSessionClosed
	}
	return s.store.SetCurrentQuestion(index), nil
}

// ConfirmSubmit is the single finalize path, shared by manual submission
// and timer expiry. It is idempotent: once the attempt is submitted,
// further calls return the cached result without touching the network.
// An upstream "already submitted" answer counts as success: it means
// the other path won the race a moment earlier.
func (s *Session) ConfirmSubmit(ctx context.Context, trigger SubmitTrigger) (*model.SubmitResult, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	s.mu.Lock()
	cached := s.result
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	res, err := s.api.SubmitAttempt(ctx, s.attemptID)
	if errors.Is(err, remote.ErrAlreadySubmitted) {
		res, err = &model.SubmitResult{}, nil
	}
	if err != nil {
		// Status stays in_progress; the candidate may retry.
		s.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Submit failed")
		return nil, err
	}

	s.log.Info().
		Str("trigger", string(trigger)).
		Float64("score", res.Score).
		Bool("passed", res.Passed).
		Msg("Attempt submitted")

	s.finalize(res, trigger == TriggerTimer)
	return res, nil
}

// finalize freezes the store, stops the countdown, publishes the
// submitted event and tells the manager the attempt is terminal.
func (s *Session) finalize(res *model.SubmitResult, forced bool) {
	s.store.MarkSubmitted()
	s.timer.Stop()

	s.mu.Lock()
	s.result = res
	subs := make([]chan SubmittedEvent, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	terminal := s.onTerminal
	s.onTerminal = nil
	s.mu.Unlock()

	ev := SubmittedEvent{Result: *res, Forced: forced}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}

	if terminal != nil {
		terminal()
	}
}

// forcedSubmit is the countdown's expire callback. It runs on the ticker
// goroutine, so it carries its own deadline instead of a request context.
func (s *Session) forcedSubmit() {
	if s.isClosed() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if _, err := s.ConfirmSubmit(ctx, TriggerTimer); err != nil {
		// The attempt is expired locally but unconfirmed remotely; a
		// later resume re-fetches server truth and reconciles.
		s.log.Error().Err(err).Msg("Forced submit failed")
	}
}

// SubscribeTicks registers a websocket observer for countdown ticks.
func (s *Session) SubscribeTicks() (<-chan int, func()) {
	return s.timer.Subscribe()
}

// SubscribeSubmitted registers an observer for the terminal event.
func (s *Session) SubscribeSubmitted() (<-chan SubmittedEvent, func()) {
	ch := make(chan SubmittedEvent, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close tears the session down without submitting (navigation away,
// server shutdown). Late completions from in-flight work observe the
// closed flag and discard their results.
func (s *Session) Close() {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	if !already {
		s.timer.Stop()
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
