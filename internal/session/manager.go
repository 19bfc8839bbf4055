package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/config"
	"github.com/hirelane/session-gateway/internal/model"
)

var (
	// ErrAttemptFinished signals a resume against an attempt that was
	// already submitted; callers redirect to results instead.
	ErrAttemptFinished = errors.New("attempt has already been submitted")

	// ErrNoSession signals an operation against an attempt with no live
	// session on this instance.
	ErrNoSession = errors.New("no active session for this attempt")
)

const assessmentCacheTTL = 10 * time.Minute

// finishedSessionTTL keeps a submitted session resident after finalize
// so repeat submits and late resumes replay the cached result instead
// of hitting a missing-session 404.
const finishedSessionTTL = 10 * time.Minute

// Manager is the session registry. It creates sessions on start or
// resume, hands them to handlers by attempt id and tears them down when
// an attempt reaches a terminal state.
type Manager struct {
	api     AttemptAPI
	rdb     *redis.Client
	persist *Persister
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewManager(api AttemptAPI, rdb *redis.Client, log zerolog.Logger) *Manager {
	return &Manager{
		api:      api,
		rdb:      rdb,
		persist:  NewPersister(api, rdb, log),
		log:      log,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// GetAssessment loads the candidate-facing assessment payload. Plain
// loads go through a short-lived cache; invitation-token loads always
// hit the assessment service so token validation is never stale.
func (m *Manager) GetAssessment(ctx context.Context, id uuid.UUID, invitationToken string) (*model.Assessment, error) {
	if invitationToken != "" {
		return m.api.FetchAssessment(ctx, id, invitationToken)
	}

	cacheKey := config.CacheKey.AssessmentPayloadKey(id.String())
	if m.rdb != nil {
		if raw, err := m.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var cached model.Assessment
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	assessment, err := m.api.FetchAssessment(ctx, id, "")
	if err != nil {
		return nil, err
	}

	if m.rdb != nil {
		if raw, err := json.Marshal(assessment); err == nil {
			m.rdb.Set(ctx, cacheKey, raw, assessmentCacheTTL)
		}
	}

	return assessment, nil
}

// StartDirect begins a fresh attempt on an open assessment and returns
// its live session.
func (m *Manager) StartDirect(ctx context.Context, assessmentID uuid.UUID, candidateID int) (*Session, error) {
	assessment, err := m.GetAssessment(ctx, assessmentID, "")
	if err != nil {
		return nil, err
	}

	attempt, err := m.api.StartAttempt(ctx, assessmentID, candidateID)
	if err != nil {
		return nil, err
	}

	return m.install(ctx, assessment, attempt, candidateID), nil
}

// Resume rebuilds a session for an in-flight attempt. The assessment
// service is the source of truth for status and started_at; answers
// still waiting in the persist queue are overlaid from the cache so a
// refresh never loses the candidate's latest input.
func (m *Manager) Resume(ctx context.Context, attemptID uuid.UUID, candidateID int) (*Session, error) {
	m.mu.Lock()
	existing, ok := m.sessions[attemptID]
	m.mu.Unlock()
	if ok {
		// A second load of a live session still refreshes server truth,
		// in case the attempt was finalized elsewhere.
		if server, err := m.api.FetchAttempt(ctx, attemptID, candidateID); err == nil {
			existing.store.Reconcile(server)
		}
		if existing.store.Status() == model.AttemptStatusSubmitted {
			return nil, ErrAttemptFinished
		}
		return existing, nil
	}

	attempt, err := m.api.FetchAttempt(ctx, attemptID, candidateID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return nil, ErrAttemptFinished
	}

	m.overlayCachedAnswers(ctx, attempt)

	assessment, err := m.GetAssessment(ctx, attempt.AssessmentID, "")
	if err != nil {
		return nil, err
	}

	return m.install(ctx, assessment, attempt, candidateID), nil
}

// Get returns the live session for an attempt, if any.
func (m *Manager) Get(attemptID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[attemptID]; ok {
		return s, nil
	}
	return nil, ErrNoSession
}

// Close tears down a session without submitting, as when the candidate
// navigates away.
func (m *Manager) Close(attemptID uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[attemptID]
	delete(m.sessions, attemptID)
	m.mu.Unlock()

	if ok {
		s.Close()
		m.clearActive(s.candidateID)
	}
}

// Shutdown closes every live session. Unsubmitted attempts stay
// in_progress at the assessment service and can be resumed later.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// install builds the session, registers it and starts its countdown.
// If the deadline already passed the countdown's first tick forces the
// submit immediately, which reconciles attempts found expired on resume.
func (m *Manager) install(ctx context.Context, assessment *model.Assessment, attempt *model.Attempt, candidateID int) *Session {
	s := &Session{
		attemptID:   attempt.ID,
		candidateID: candidateID,
		assessment:  assessment,
		store:       NewStore(attempt, len(assessment.Questions)),
		persist:     m.persist,
		api:         m.api,
		log:         m.log.With().Str("attempt_id", attempt.ID.String()).Logger(),
		subs:        make(map[int]chan SubmittedEvent),
	}
	s.timer = NewCountdown(attempt.StartedAt, time.Duration(assessment.Duration)*time.Minute, s.forcedSubmit)
	s.onTerminal = func() { m.finished(attempt.ID, candidateID) }

	// Two concurrent resumes of the same attempt can both reach this
	// point. Only the first registration wins; the loser's countdown is
	// never started and its session is discarded.
	m.mu.Lock()
	if existing, ok := m.sessions[attempt.ID]; ok {
		m.mu.Unlock()
		return existing
	}
	m.sessions[attempt.ID] = s
	m.mu.Unlock()

	m.markActive(ctx, attempt, candidateID)
	s.timer.Start()

	return s
}

// finished runs once when a session reaches a terminal state. The
// session stays registered for a grace window so repeat submits replay
// the cached result; only the active-attempt marker is cleared right
// away.
func (m *Manager) finished(attemptID uuid.UUID, candidateID int) {
	m.clearActive(candidateID)
	time.AfterFunc(finishedSessionTTL, func() { m.evict(attemptID) })
}

func (m *Manager) evict(attemptID uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, attemptID)
	m.mu.Unlock()
}

// overlayCachedAnswers merges answers still queued for persistence over
// the server copy. The cache holds the latest local writes, so it wins.
func (m *Manager) overlayCachedAnswers(ctx context.Context, attempt *model.Attempt) {
	if m.rdb == nil {
		return
	}
	cached, err := m.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attempt.ID.String())).Result()
	if err != nil || len(cached) == 0 {
		return
	}
	if attempt.Answers == nil {
		attempt.Answers = make(map[string]string, len(cached))
	}
	for questionID, answer := range cached {
		attempt.Answers[questionID] = answer
	}
}

func (m *Manager) markActive(ctx context.Context, attempt *model.Attempt, candidateID int) {
	if m.rdb == nil {
		return
	}
	ttl := 24 * time.Hour
	m.rdb.Set(ctx, config.CacheKey.CandidateActiveAttemptKey(candidateID), attempt.ID.String(), ttl)
	m.rdb.Set(ctx, config.CacheKey.AttemptStartKey(attempt.ID.String()),
		strconv.FormatInt(attempt.StartedAt.Unix(), 10), ttl)
}

func (m *Manager) clearActive(candidateID int) {
	if m.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.rdb.Del(ctx, config.CacheKey.CandidateActiveAttemptKey(candidateID))
}

// ActiveAttempt reports the attempt a candidate currently has open, if
// the cache knows of one.
func (m *Manager) ActiveAttempt(ctx context.Context, candidateID int) (uuid.UUID, bool) {
	if m.rdb == nil {
		return uuid.Nil, false
	}
	raw, err := m.rdb.Get(ctx, config.CacheKey.CandidateActiveAttemptKey(candidateID)).Result()
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
