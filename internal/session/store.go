package session

import (
	"sync"

	"github.com/hirelane/session-gateway/internal/model"
)

// Store is the single source of truth for one in-progress attempt. It is
// the mutable, candidate-facing projection of the assessment service's
// record: every mutation is applied here synchronously and confirmed
// remotely after the fact. All methods are safe for concurrent use.
//
// Once the status reaches submitted the store freezes: further SetAnswer
// and SetCurrentQuestion calls are no-ops, enforced here rather than in
// any caller.
type Store struct {
	mu      sync.Mutex
	attempt model.Attempt
	total   int
}

// NewStore seeds a store from a server-fetched attempt. totalQuestions
// bounds question navigation.
func NewStore(attempt *model.Attempt, totalQuestions int) *Store {
	s := &Store{
		attempt: *attempt,
		total:   totalQuestions,
	}
	s.attempt.Answers = copyAnswers(attempt.Answers)
	if s.attempt.CurrentQuestion < 0 {
		s.attempt.CurrentQuestion = 0
	}
	if s.total > 0 && s.attempt.CurrentQuestion > s.total-1 {
		s.attempt.CurrentQuestion = s.total - 1
	}
	return s
}

// SetAnswer records the candidate's latest answer for a question. It is
// a pure local update and never fails; after submission it is a no-op.
// The updated answers map is returned as a copy.
func (s *Store) SetAnswer(questionID, value string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.Status != model.AttemptStatusSubmitted {
		s.attempt.Answers[questionID] = value
	}
	return copyAnswers(s.attempt.Answers)
}

// SetCurrentQuestion moves navigation to index, clamped to
// [0, totalQuestions-1]. Out-of-range requests are clamped rather than
// rejected so a stale link cannot crash a session. Returns the effective
// index.
func (s *Store) SetCurrentQuestion(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.Status == model.AttemptStatusSubmitted {
		return s.attempt.CurrentQuestion
	}

	if index < 0 {
		index = 0
	}
	if s.total > 0 && index > s.total-1 {
		index = s.total - 1
	}
	s.attempt.CurrentQuestion = index
	return index
}

// MarkSubmitted freezes the store. Idempotent.
func (s *Store) MarkSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt.Status = model.AttemptStatusSubmitted
}

// Status returns the current attempt status.
func (s *Store) Status() model.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.Status
}

// Snapshot returns a deep copy of the attempt projection.
func (s *Store) Snapshot() model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.attempt
	out.Answers = copyAnswers(s.attempt.Answers)
	return out
}

// Reconcile merges a fresh server record into the local view. The server
// wins on status and started_at; local answers win while the attempt is
// in progress (they are the candidate's latest intent, possibly not yet
// acknowledged), so only server answers for questions with no local
// value are taken.
func (s *Store) Reconcile(server *model.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempt.StartedAt = server.StartedAt
	if server.Status == model.AttemptStatusSubmitted {
		s.attempt.Status = model.AttemptStatusSubmitted
	}
	for qid, ans := range server.Answers {
		if _, ok := s.attempt.Answers[qid]; !ok {
			s.attempt.Answers[qid] = ans
		}
	}
}

func copyAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
