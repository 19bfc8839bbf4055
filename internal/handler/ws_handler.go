package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hirelane/session-gateway/internal/middleware"
	sess "github.com/hirelane/session-gateway/internal/session"
	ws "github.com/hirelane/session-gateway/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams countdown ticks and the submitted event to the
// candidate and accepts autosave and submit actions on the same socket.
type WSHandler struct {
	manager  *sess.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *sess.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/candidate/attempts/:attempt_id/stream
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	s, err := h.manager.Get(attemptID)
	if err != nil {
		conn.WriteError("no active session for this attempt")
		return
	}
	if s.CandidateID() != claims.UserID {
		conn.WriteError("attempt belongs to another candidate")
		return
	}

	wsLog := h.log.With().
		Int("candidate_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Candidate connected")

	done := make(chan struct{})
	go h.pushEvents(conn, s, done)
	defer close(done)

	for {
		var msg ws.AutosaveRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, s, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, s)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// pushEvents forwards countdown ticks and the terminal event until the
// reader loop ends. The Conn write mutex keeps these pushes from
// interleaving with reply writes on the reader goroutine.
func (h *WSHandler) pushEvents(conn *ws.Conn, s *sess.Session, done <-chan struct{}) {
	ticks, unsubTicks := s.SubscribeTicks()
	defer unsubTicks()

	submitted, unsubSubmitted := s.SubscribeSubmitted()
	defer unsubSubmitted()

	for {
		select {
		case <-done:
			return
		case remaining, ok := <-ticks:
			if !ok {
				return
			}
			conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: remaining})
		case ev := <-submitted:
			conn.WriteTyped(ws.SubmittedResponse{
				Event:  ws.EventSubmitted,
				Forced: ev.Forced,
				Score:  ev.Result.Score,
				Passed: ev.Result.Passed,
			})
			return
		}
	}
}

func (h *WSHandler) handleAutosave(conn *ws.Conn, s *sess.Session, msg *ws.AutosaveRequest) {
	if msg.QuestionID == "" {
		conn.WriteError("question_id is required")
		return
	}
	if _, err := uuid.Parse(msg.QuestionID); err != nil {
		conn.WriteError("invalid question_id format")
		return
	}

	if _, err := s.SaveAnswer(msg.QuestionID, msg.Answer, msg.NextQuestion); err != nil {
		conn.WriteError(err.Error())
		return
	}

	conn.WriteTyped(ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}

func (h *WSHandler) handleSubmit(conn *ws.Conn, log zerolog.Logger, s *sess.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.ConfirmSubmit(ctx, sess.TriggerManual); err != nil {
		log.Error().Err(err).Msg("Submit over websocket failed")
		conn.WriteError("submit failed, please retry")
	}
	// The submitted event reaches the client through pushEvents.
}
