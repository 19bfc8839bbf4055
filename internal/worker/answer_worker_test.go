package worker

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/hirelane/session-gateway/internal/session"
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

type recordingAPI struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func newRecordingAPI() *recordingAPI {
	return &recordingAPI{saved: map[string]string{}}
}

func (r *recordingAPI) SaveAnswer(_ context.Context, _ uuid.UUID, questionID, answer string, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved[questionID] = answer
	return nil
}

func (r *recordingAPI) savedAnswers() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.saved))
	for k, v := range r.saved {
		out[k] = v
	}
	return out
}

// Unused AttemptAPI methods.
func (r *recordingAPI) FetchAssessment(context.Context, uuid.UUID, string) (*model.Assessment, error) {
	return nil, nil
}
func (r *recordingAPI) FetchAttempt(context.Context, uuid.UUID, int) (*model.Attempt, error) {
	return nil, nil
}
func (r *recordingAPI) StartAttempt(context.Context, uuid.UUID, int) (*model.Attempt, error) {
	return nil, nil
}
func (r *recordingAPI) AcceptInvitation(context.Context, uuid.UUID, int) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (r *recordingAPI) DeclineInvitation(context.Context, uuid.UUID, int) error { return nil }
func (r *recordingAPI) SubmitAttempt(context.Context, uuid.UUID) (*model.SubmitResult, error) {
	return nil, nil
}

func enqueue(t *testing.T, rdb *redis.Client, payload session.AnswerPayload) {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, raw).Err())
}

func TestWorkerUpsertsQueuedAnswers(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := newRecordingAPI()
	w := NewAnswerWorker(api, rdb, zerolog.Nop())

	attemptID := uuid.New()
	enqueue(t, rdb, session.AnswerPayload{AttemptID: attemptID.String(), QuestionID: "q1", Answer: "B", NextQuestion: 1})
	enqueue(t, rdb, session.AnswerPayload{AttemptID: attemptID.String(), QuestionID: "q2", Answer: "True", NextQuestion: 1})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	assert.Eventually(t, func() bool {
		saved := api.savedAnswers()
		return saved["q1"] == "B" && saved["q2"] == "True"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
}

func TestWorkerDropsFailedUpserts(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := newRecordingAPI()
	api.err = errors.New("upstream down")
	w := NewAnswerWorker(api, rdb, zerolog.Nop())

	enqueue(t, rdb, session.AnswerPayload{AttemptID: uuid.NewString(), QuestionID: "q1", Answer: "B"})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	// The failed item must not be requeued.
	assert.Eventually(t, func() bool {
		n, err := rdb.LLen(context.Background(), config.WorkerKey.PersistAnswersQueue).Result()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	n, err := rdb.LLen(context.Background(), config.WorkerKey.PersistAnswersQueue).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, api.savedAnswers())

	cancel()
}

func TestWorkerSkipsMalformedItems(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := newRecordingAPI()
	w := NewAnswerWorker(api, rdb, zerolog.Nop())

	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, "not-json").Err())
	enqueue(t, rdb, session.AnswerPayload{AttemptID: uuid.NewString(), QuestionID: "q1", Answer: "B"})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	assert.Eventually(t, func() bool {
		return api.savedAnswers()["q1"] == "B"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
}

func TestWorkerDrainsQueueOnShutdown(t *testing.T) {
	_, rdb := setupTestRedis(t)
	api := newRecordingAPI()
	w := NewAnswerWorker(api, rdb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Stop immediately; Start should still drain.

	attemptID := uuid.NewString()
	for _, q := range []string{"q1", "q2", "q3"} {
		enqueue(t, rdb, session.AnswerPayload{AttemptID: attemptID, QuestionID: q, Answer: "x"})
	}

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Len(t, api.savedAnswers(), 3)
	n, err := rdb.LLen(context.Background(), config.WorkerKey.PersistAnswersQueue).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
