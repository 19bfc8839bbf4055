package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hirelane/session-gateway/internal/auth"
	"github.com/hirelane/session-gateway/internal/config"
	"github.com/hirelane/session-gateway/internal/handler"
	"github.com/hirelane/session-gateway/internal/middleware"
	"github.com/hirelane/session-gateway/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session    *handler.SessionHandler
	Invitation *handler.InvitationHandler
	CodeRun    *handler.CodeRunHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	validator *auth.Validator,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the code-run endpoint, which fans out to the
	// runner service (10 runs per minute per IP).
	runLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Candidate Group (JWT) ──────────────────────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(middleware.RequireCandidateJWT(validator))
	{
		candidateAPI.GET("/active-attempt", handlers.Session.GetActiveAttempt)
		candidateAPI.GET("/assessments/:assessment_id", handlers.Session.GetAssessment)
		candidateAPI.POST("/assessments/:assessment_id/start", handlers.Session.StartAttempt)

		candidateAPI.GET("/attempts/:attempt_id", handlers.Session.GetAttempt)
		candidateAPI.DELETE("/attempts/:attempt_id", handlers.Session.CloseAttempt)
		candidateAPI.POST("/attempts/:attempt_id/answer", handlers.Session.SaveAnswer)
		candidateAPI.POST("/attempts/:attempt_id/navigate", handlers.Session.Navigate)
		candidateAPI.POST("/attempts/:attempt_id/submit", handlers.Session.SubmitAttempt)
		candidateAPI.POST("/attempts/:attempt_id/run-code",
			runLimiter.Middleware(), handlers.CodeRun.RunCode)

		candidateAPI.POST("/invitations/:invitation_id/accept", handlers.Invitation.AcceptInvitation)
		candidateAPI.POST("/invitations/:invitation_id/decline", handlers.Invitation.DeclineInvitation)
	}

	// ─── 2. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(validator))
	{
		ws.GET("/candidate/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
