package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/config"
	"github.com/hirelane/session-gateway/internal/session"
)

// AnswerWorker consumes the persist queue and upserts each answer to the
// assessment service. Upserts are last-write-wins on the service side, so
// a failed item is logged and dropped rather than requeued: requeueing
// behind newer writes for the same question would reorder the stream and
// could resurrect a stale answer.
type AnswerWorker struct {
	api session.AttemptAPI
	rdb *redis.Client
	log zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(api session.AttemptAPI, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		api: api,
		rdb: rdb,
		log: log.With().Str("component", "answer_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	w.upsert(ctx, []byte(result[1]))
}

// upsert decodes one queued payload and pushes it upstream. Malformed or
// failed items are dropped after logging.
func (w *AnswerWorker) upsert(ctx context.Context, raw []byte) {
	var payload session.AnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	attemptID, err := uuid.Parse(payload.AttemptID)
	if err != nil {
		w.log.Error().Err(err).Str("attempt_id", payload.AttemptID).Msg("Bad attempt id in queue")
		return
	}

	if err := w.api.SaveAnswer(ctx, attemptID, payload.QuestionID, payload.Answer, payload.NextQuestion); err != nil {
		w.log.Warn().Err(err).
			Str("attempt_id", payload.AttemptID).
			Str("question_id", payload.QuestionID).
			Msg("Upsert failed, item dropped")
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}
		w.upsert(ctx, []byte(result))
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
