package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelane/session-gateway/internal/auth"
	"github.com/hirelane/session-gateway/internal/middleware"
	"github.com/hirelane/session-gateway/internal/model"
	"github.com/hirelane/session-gateway/internal/response"
	"github.com/hirelane/session-gateway/internal/session"
	"github.com/hirelane/session-gateway/internal/validator"
)

type stubAPI struct {
	mu         sync.Mutex
	assessment *model.Assessment
	attempt    *model.Attempt
	submits    int
}

func (s *stubAPI) FetchAssessment(context.Context, uuid.UUID, string) (*model.Assessment, error) {
	out := *s.assessment
	return &out, nil
}

func (s *stubAPI) FetchAttempt(context.Context, uuid.UUID, int) (*model.Attempt, error) {
	out := *s.attempt
	return &out, nil
}

func (s *stubAPI) StartAttempt(_ context.Context, assessmentID uuid.UUID, _ int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = &model.Attempt{
		ID:           uuid.New(),
		AssessmentID: assessmentID,
		Status:       model.AttemptStatusInProgress,
		StartedAt:    time.Now(),
		Answers:      map[string]string{},
	}
	out := *s.attempt
	return &out, nil
}

func (s *stubAPI) SaveAnswer(context.Context, uuid.UUID, string, string, int) error { return nil }

func (s *stubAPI) AcceptInvitation(context.Context, uuid.UUID, int) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (s *stubAPI) DeclineInvitation(context.Context, uuid.UUID, int) error { return nil }

func (s *stubAPI) SubmitAttempt(context.Context, uuid.UUID) (*model.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	return &model.SubmitResult{Score: 70, Passed: true}, nil
}

func testAssessment() *model.Assessment {
	return &model.Assessment{
		ID:       uuid.New(),
		Title:    "Gateway Screening",
		Duration: 30,
		Questions: []model.Question{
			{ID: uuid.New(), Type: model.QuestionTypeMultipleChoice, Options: []string{"A", "B"}},
			{ID: uuid.New(), Type: model.QuestionTypeShortAnswer},
		},
	}
}

// fixture wires a real manager behind the handlers with claims injected
// in place of the JWT middleware.
type fixture struct {
	router  *gin.Engine
	manager *session.Manager
	api     *stubAPI
}

func newFixture(t *testing.T, candidateID int) *fixture {
	gin.SetMode(gin.TestMode)
	validator.Setup()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	api := &stubAPI{assessment: testAssessment()}
	manager := session.NewManager(api, rdb, zerolog.Nop())
	t.Cleanup(manager.Shutdown)

	h := NewSessionHandler(manager)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &auth.Claims{
			TokenType: auth.TokenTypeCandidate,
			UserID:    candidateID,
		})
	})
	r.GET("/assessments/:assessment_id", h.GetAssessment)
	r.POST("/assessments/:assessment_id/start", h.StartAttempt)
	r.GET("/attempts/:attempt_id", h.GetAttempt)
	r.POST("/attempts/:attempt_id/answer", h.SaveAnswer)
	r.POST("/attempts/:attempt_id/navigate", h.Navigate)
	r.POST("/attempts/:attempt_id/submit", h.SubmitAttempt)

	return &fixture{router: r, manager: manager, api: api}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var envelope response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func (f *fixture) start(t *testing.T) uuid.UUID {
	rec, _ := f.do(t, http.MethodPost, "/assessments/"+f.api.assessment.ID.String()+"/start", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return f.api.attempt.ID
}

func TestStartAttemptEndpoint(t *testing.T) {
	f := newFixture(t, 7)

	rec, envelope := f.do(t, http.MethodPost, "/assessments/"+f.api.assessment.ID.String()+"/start", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	data := envelope.Data.(map[string]interface{})
	attempt := data["attempt"].(map[string]interface{})
	assert.Equal(t, string(model.AttemptStatusInProgress), attempt["status"])
	assert.InDelta(t, 30*60, data["remaining_seconds"], 2)
	assert.NotEmpty(t, envelope.Metadata.RequestID)
}

func TestAssessmentPayloadHidesTestCases(t *testing.T) {
	f := newFixture(t, 7)
	f.api.assessment = &model.Assessment{
		ID:       uuid.New(),
		Title:    "Coding Screening",
		Duration: 30,
		Questions: []model.Question{
			{
				ID:          uuid.New(),
				Type:        model.QuestionTypeCoding,
				Prompt:      "Sum two numbers",
				StarterCode: "func sum(a, b int) int {}",
				Languages:   []string{"go"},
				TestCases: []model.TestCase{
					{Input: "2,3", Expected: "5"},
				},
			},
		},
	}

	rec, envelope := f.do(t, http.MethodGet, "/assessments/"+f.api.assessment.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "test_cases")
	assert.NotContains(t, body, "expected_output")

	// The rest of the question survives sanitization.
	data := envelope.Data.(map[string]interface{})
	questions := data["assessment"].(map[string]interface{})["questions"].([]interface{})
	require.Len(t, questions, 1)
	assert.Equal(t, "func sum(a, b int) int {}", questions[0].(map[string]interface{})["starter_code"])
}

func TestSaveAnswerEndpoint(t *testing.T) {
	f := newFixture(t, 7)
	attemptID := f.start(t)
	q1 := f.api.assessment.Questions[0].ID.String()

	rec, envelope := f.do(t, http.MethodPost, "/attempts/"+attemptID.String()+"/answer", gin.H{
		"question_id":   q1,
		"answer":        "B",
		"next_question": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	attempt := envelope.Data.(map[string]interface{})["attempt"].(map[string]interface{})
	answers := attempt["answers"].(map[string]interface{})
	assert.Equal(t, "B", answers[q1])
	assert.EqualValues(t, 1, attempt["current_question"])
}

func TestSaveAnswerValidation(t *testing.T) {
	f := newFixture(t, 7)
	attemptID := f.start(t)

	rec, envelope := f.do(t, http.MethodPost, "/attempts/"+attemptID.String()+"/answer", gin.H{
		"answer": "B",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, response.ErrValidation, envelope.Error.Code)
	assert.Contains(t, envelope.Error.Fields, "question_id")
}

func TestNavigateClampsIndex(t *testing.T) {
	f := newFixture(t, 7)
	attemptID := f.start(t)

	rec, envelope := f.do(t, http.MethodPost, "/attempts/"+attemptID.String()+"/navigate", gin.H{
		"index": 99,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := envelope.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["current_question"])
}

func TestSubmitTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t, 7)
	attemptID := f.start(t)

	rec1, _ := f.do(t, http.MethodPost, "/attempts/"+attemptID.String()+"/submit", nil)
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2, envelope := f.do(t, http.MethodPost, "/attempts/"+attemptID.String()+"/submit", nil)
	require.Equal(t, http.StatusOK, rec2.Code)

	result := envelope.Data.(map[string]interface{})["result"].(map[string]interface{})
	assert.EqualValues(t, 70, result["score"])
	assert.Equal(t, true, result["passed"])
	assert.Equal(t, 1, f.api.submits)
}

func TestForeignAttemptRejected(t *testing.T) {
	owner := newFixture(t, 7)
	attemptID := owner.start(t)

	// Same manager, different candidate claims.
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &auth.Claims{
			TokenType: auth.TokenTypeCandidate,
			UserID:    99,
		})
	})
	h := NewSessionHandler(owner.manager)
	r.POST("/attempts/:attempt_id/submit", h.SubmitAttempt)

	req := httptest.NewRequest(http.MethodPost, "/attempts/"+attemptID.String()+"/submit", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownAttemptReturnsNoSession(t *testing.T) {
	f := newFixture(t, 7)

	rec, envelope := f.do(t, http.MethodPost, "/attempts/"+uuid.NewString()+"/submit", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, response.ErrNoActiveSession, envelope.Error.Code)
}
