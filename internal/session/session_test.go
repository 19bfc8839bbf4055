package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelane/session-gateway/internal/config"
	"github.com/hirelane/session-gateway/internal/model"
	"github.com/hirelane/session-gateway/internal/remote"
)

// setupTestRedis creates a miniredis instance and a redis client for testing.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

type fakeAPI struct {
	mu sync.Mutex

	assessment *model.Assessment
	attempt    *model.Attempt

	submitCalls  int
	submitErr    error
	submitResult model.SubmitResult

	assessmentErr error
	acceptAttempt uuid.UUID
	acceptErr     error
}

func (f *fakeAPI) FetchAssessment(_ context.Context, _ uuid.UUID, token string) (*model.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != "" && f.assessmentErr != nil {
		return nil, f.assessmentErr
	}
	out := *f.assessment
	return &out, nil
}

func (f *fakeAPI) FetchAttempt(_ context.Context, _ uuid.UUID, _ int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *f.attempt
	out.Answers = make(map[string]string, len(f.attempt.Answers))
	for k, v := range f.attempt.Answers {
		out.Answers[k] = v
	}
	return &out, nil
}

func (f *fakeAPI) StartAttempt(_ context.Context, assessmentID uuid.UUID, _ int) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempt = &model.Attempt{
		ID:           uuid.New(),
		AssessmentID: assessmentID,
		Status:       model.AttemptStatusInProgress,
		StartedAt:    time.Now(),
		Answers:      map[string]string{},
	}
	out := *f.attempt
	return &out, nil
}

func (f *fakeAPI) SaveAnswer(_ context.Context, _ uuid.UUID, questionID, answer string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempt.Answers == nil {
		f.attempt.Answers = map[string]string{}
	}
	f.attempt.Answers[questionID] = answer
	return nil
}

func (f *fakeAPI) AcceptInvitation(_ context.Context, _ uuid.UUID, _ int) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acceptAttempt, f.acceptErr
}

func (f *fakeAPI) DeclineInvitation(_ context.Context, _ uuid.UUID, _ int) error {
	return nil
}

func (f *fakeAPI) SubmitAttempt(_ context.Context, _ uuid.UUID) (*model.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	out := f.submitResult
	return &out, nil
}

func (f *fakeAPI) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func twoQuestionAssessment() *model.Assessment {
	return &model.Assessment{
		ID:       uuid.New(),
		Title:    "Backend Screening",
		Duration: 1,
		Questions: []model.Question{
			{ID: uuid.New(), Type: model.QuestionTypeMultipleChoice, Prompt: "Pick one", Options: []string{"A", "B", "C"}},
			{ID: uuid.New(), Type: model.QuestionTypeMultipleChoice, Prompt: "True or false", Options: []string{"True", "False"}},
		},
	}
}

func TestStartAndSaveAnswers(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := &fakeAPI{assessment: twoQuestionAssessment()}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.StartDirect(context.Background(), api.assessment.ID, 42)
	require.NoError(t, err)

	q1 := api.assessment.Questions[0].ID.String()
	q2 := api.assessment.Questions[1].ID.String()

	_, err = s.SaveAnswer(q1, "B", 1)
	require.NoError(t, err)
	attempt, err := s.SaveAnswer(q2, "True", 1)
	require.NoError(t, err)

	assert.Equal(t, "B", attempt.Answers[q1])
	assert.Equal(t, "True", attempt.Answers[q2])
	assert.Equal(t, 1, attempt.CurrentQuestion)

	// The persistence channel cached both answers and queued both upserts.
	ctx := context.Background()
	cached, err := rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(s.AttemptID().String())).Result()
	require.NoError(t, err)
	assert.Equal(t, "B", cached[q1])
	assert.Equal(t, "True", cached[q2])

	queued, err := rdb.LLen(ctx, config.WorkerKey.PersistAnswersQueue).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), queued)
}

func TestSaveAnswerUnknownQuestion(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := &fakeAPI{assessment: twoQuestionAssessment()}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.StartDirect(context.Background(), api.assessment.ID, 42)
	require.NoError(t, err)

	_, err = s.SaveAnswer(uuid.NewString(), "B", 0)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestConfirmSubmitIdempotent(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := &fakeAPI{
		assessment:   twoQuestionAssessment(),
		submitResult: model.SubmitResult{Score: 80, Passed: true},
	}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.StartDirect(context.Background(), api.assessment.ID, 42)
	require.NoError(t, err)

	first, err := s.ConfirmSubmit(context.Background(), TriggerManual)
	require.NoError(t, err)
	second, err := s.ConfirmSubmit(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, api.submitCount())
	assert.Equal(t, first, second)
	assert.Equal(t, model.AttemptStatusSubmitted, s.State().Attempt.Status)
}

func TestConfirmSubmitAlreadySubmittedIsSuccess(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := &fakeAPI{
		assessment: twoQuestionAssessment(),
		submitErr:  remote.ErrAlreadySubmitted,
	}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.StartDirect(context.Background(), api.assessment.ID, 42)
	require.NoError(t, err)

	_, err = s.ConfirmSubmit(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusSubmitted, s.State().Attempt.Status)
}

func TestConfirmSubmitFailureStaysInProgress(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := &fakeAPI{
		assessment: twoQuestionAssessment(),
		submitErr:  remote.ErrUnavailable,
	}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.StartDirect(context.Background(), api.assessment.ID, 42)
	require.NoError(t, err)

	_, err = s.ConfirmSubmit(context.Background(), TriggerManual)
	require.Error(t, err)
	assert.Equal(t, model.AttemptStatusInProgress, s.State().Attempt.Status)

	// A retry reaches upstream again instead of replaying a cached failure.
	api.mu.Lock()
	api.submitErr = nil
	api.mu.Unlock()

	_, err = s.ConfirmSubmit(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, api.submitCount())
}

func TestExpiredAttemptForceSubmitsOnce(t *testing.T) {
	_, rdb := setupTestRedis(t)
	assessment := twoQuestionAssessment()
	api := &fakeAPI{
		assessment: assessment,
		attempt: &model.Attempt{
			ID:           uuid.New(),
			AssessmentID: assessment.ID,
			Status:       model.AttemptStatusInProgress,
			StartedAt:    time.Now().Add(-2 * time.Hour),
			Answers:      map[string]string{},
		},
	}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.Resume(context.Background(), api.attempt.ID, 42)
	require.NoError(t, err)

	events, unsub := s.SubscribeSubmitted()
	defer unsub()

	// Either the first tick already finalized the attempt or the
	// submitted event is about to arrive.
	deadline := time.After(2 * time.Second)
	for s.State().Attempt.Status != model.AttemptStatusSubmitted {
		select {
		case ev := <-events:
			assert.True(t, ev.Forced)
		case <-deadline:
			t.Fatal("expired attempt was never force-submitted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// A manual submit after expiry replays the cached result.
	_, err = s.ConfirmSubmit(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, api.submitCount())
}

func TestResumeFinishedAttempt(t *testing.T) {
	_, rdb := setupTestRedis(t)
	assessment := twoQuestionAssessment()
	api := &fakeAPI{
		assessment: assessment,
		attempt: &model.Attempt{
			ID:           uuid.New(),
			AssessmentID: assessment.ID,
			Status:       model.AttemptStatusSubmitted,
			StartedAt:    time.Now().Add(-time.Hour),
		},
	}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	_, err := m.Resume(context.Background(), api.attempt.ID, 42)
	assert.ErrorIs(t, err, ErrAttemptFinished)
}

func TestResumeOverlaysCachedAnswers(t *testing.T) {
	_, rdb := setupTestRedis(t)
	assessment := twoQuestionAssessment()
	q1 := assessment.Questions[0].ID.String()
	q2 := assessment.Questions[1].ID.String()

	api := &fakeAPI{
		assessment: assessment,
		attempt: &model.Attempt{
			ID:           uuid.New(),
			AssessmentID: assessment.ID,
			Status:       model.AttemptStatusInProgress,
			StartedAt:    time.Now(),
			Answers:      map[string]string{q1: "stale", q2: "server"},
		},
	}

	// An answer still sitting in the persist queue is newer than the
	// server copy and must win on resume.
	ctx := context.Background()
	require.NoError(t, rdb.HSet(ctx, config.CacheKey.AttemptAnswersKey(api.attempt.ID.String()), q1, "latest").Err())

	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.Resume(ctx, api.attempt.ID, 42)
	require.NoError(t, err)

	snap := s.State().Attempt
	assert.Equal(t, "latest", snap.Answers[q1])
	assert.Equal(t, "server", snap.Answers[q2])
}

func TestResumeReturnsExistingSession(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := &fakeAPI{assessment: twoQuestionAssessment()}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.StartDirect(context.Background(), api.assessment.ID, 42)
	require.NoError(t, err)

	again, err := m.Resume(context.Background(), s.AttemptID(), 42)
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestSubmittedSessionStaysResident(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := &fakeAPI{
		assessment:   twoQuestionAssessment(),
		submitResult: model.SubmitResult{Score: 85, Passed: true},
	}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.StartDirect(context.Background(), api.assessment.ID, 42)
	require.NoError(t, err)

	first, err := s.ConfirmSubmit(context.Background(), TriggerManual)
	require.NoError(t, err)

	// The registry still resolves the attempt, so a repeat submit hits
	// the cached result instead of a missing-session error.
	resident, err := m.Get(s.AttemptID())
	require.NoError(t, err)
	assert.Same(t, s, resident)

	second, err := resident.ConfirmSubmit(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.submitCount())

	// The active-attempt marker is gone; the candidate can start anew.
	_, active := m.ActiveAttempt(context.Background(), 42)
	assert.False(t, active)
}

func TestInstallWinnerTakesRegistration(t *testing.T) {
	_, rdb := setupTestRedis(t)
	assessment := twoQuestionAssessment()
	attempt := &model.Attempt{
		ID:           uuid.New(),
		AssessmentID: assessment.ID,
		Status:       model.AttemptStatusInProgress,
		StartedAt:    time.Now(),
		Answers:      map[string]string{},
	}
	api := &fakeAPI{assessment: assessment, attempt: attempt}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	// Two racing resumes both miss the registry lookup and both build a
	// session; registration must hand the loser the winner's session.
	first := m.install(context.Background(), assessment, attempt, 42)
	second := m.install(context.Background(), assessment, attempt, 42)
	assert.Same(t, first, second)

	got, err := m.Get(attempt.ID)
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestClosedSessionRejectsWrites(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := &fakeAPI{assessment: twoQuestionAssessment()}
	m := NewManager(api, rdb, zerolog.Nop())
	defer m.Shutdown()

	s, err := m.StartDirect(context.Background(), api.assessment.ID, 42)
	require.NoError(t, err)

	m.Close(s.AttemptID())

	_, err = s.SaveAnswer(api.assessment.Questions[0].ID.String(), "B", 0)
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = m.Get(s.AttemptID())
	assert.ErrorIs(t, err, ErrNoSession)
}
