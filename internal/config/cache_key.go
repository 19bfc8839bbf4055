package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptAnswersKey returns the cache key for an attempt's answers hash.
// Field = question id, value = latest answer. Resume reads fall back to
// the assessment service when the hash is missing.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptStartKey returns the cache key for an attempt's started_at unix time.
func (r *CacheKeyStruct) AttemptStartKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:started_at", attemptID)
}

// AssessmentPayloadKey returns the cache key for an assessment's candidate payload.
func (r *CacheKeyStruct) AssessmentPayloadKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:payload", assessmentID)
}

// CandidateActiveAttemptKey returns the cache key for a candidate's active attempt.
func (r *CacheKeyStruct) CandidateActiveAttemptKey(candidateID int) string {
	return fmt.Sprintf("candidate:%d:active_attempt", candidateID)
}

var CacheKey = NewCacheKeyStruct()
