package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/config"
)

// persistTimeout bounds a single direct upsert to the assessment service.
const persistTimeout = 5 * time.Second

// AnswerPayload is the queued form of one answer upsert. The worker
// package decodes it off the persistence queue.
type AnswerPayload struct {
	AttemptID    string `json:"attempt_id"`
	QuestionID   string `json:"question_id"`
	Answer       string `json:"answer"`
	NextQuestion int    `json:"next_question"`
}

// Persister is the answer persistence channel: it propagates every local
// answer change toward the assessment service without ever blocking the
// caller. The write goes to the attempt's answers hash (resume cache)
// and onto the persist queue, which a background worker drains into
// last-write-wins upserts.
//
// A failed persist is logged and dropped, never retried, and never rolls
// the local answer back: the local value is the candidate's latest
// intent, and a retry queued behind newer writes could resurrect a stale
// answer under last-write-wins.
type Persister struct {
	api AttemptAPI
	rdb *redis.Client
	log zerolog.Logger
}

// NewPersister creates a Persister. rdb may be nil, in which case every
// persist goes directly to the assessment service in a goroutine.
func NewPersister(api AttemptAPI, rdb *redis.Client, log zerolog.Logger) *Persister {
	return &Persister{
		api: api,
		rdb: rdb,
		log: log.With().Str("component", "persister").Logger(),
	}
}

// Persist fires one answer upsert and returns immediately.
func (p *Persister) Persist(attemptID uuid.UUID, questionID, answer string, nextQuestion int) {
	payload := AnswerPayload{
		AttemptID:    attemptID.String(),
		QuestionID:   questionID,
		Answer:       answer,
		NextQuestion: nextQuestion,
	}

	if p.rdb != nil && p.enqueue(payload) {
		return
	}
	go p.direct(attemptID, payload)
}

// enqueue caches the answer and queues the upsert. Returns false when
// redis is unreachable so the caller can fall back to a direct write.
func (p *Persister) enqueue(payload AnswerPayload) bool {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Msg("Marshal answer payload")
		return true // not a redis failure, nothing to fall back to
	}

	answersKey := config.CacheKey.AttemptAnswersKey(payload.AttemptID)
	if err := p.rdb.HSet(ctx, answersKey, payload.QuestionID, payload.Answer).Err(); err != nil {
		p.log.Warn().Err(err).Msg("Answers cache write failed")
		return false
	}

	if err := p.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw).Err(); err != nil {
		p.log.Warn().Err(err).Msg("Persist queue push failed")
		return false
	}
	return true
}

// direct upserts straight to the assessment service. Failures are
// surfaced as a log line only.
func (p *Persister) direct(attemptID uuid.UUID, payload AnswerPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.api.SaveAnswer(ctx, attemptID, payload.QuestionID, payload.Answer, payload.NextQuestion); err != nil {
		p.log.Warn().
			Err(err).
			Str("attempt_id", payload.AttemptID).
			Str("question_id", payload.QuestionID).
			Msg("Answer persist failed, dropped")
	}
}
