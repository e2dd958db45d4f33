package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/invigo/invigo-backend/internal/config"
	"github.com/invigo/invigo-backend/internal/handler"
	"github.com/invigo/invigo-backend/internal/middleware"
	"github.com/invigo/invigo-backend/internal/response"
	"github.com/invigo/invigo-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokenService *service.TokenService,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
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

	// Rate limiter for session registration (30 requests per minute per IP).
	registerLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Exam Group ─────────────────────────────────────────────────
	exams := router.Group("/api/v1/exams")
	{
		exams.POST("", handlers.Exam.CreateExam)
		exams.GET("/:exam_id/paper", handlers.Exam.GetPaper)
		exams.POST("/:exam_id/sessions", registerLimiter.Middleware(), handlers.Session.Register)

		// Reporting routes require the exam's management token.
		managed := exams.Group("/:exam_id", middleware.RequireManagementJWT(tokenService))
		{
			managed.GET("/results", handlers.Exam.ListResults)
			managed.GET("/violations", handlers.Exam.ListViolations)
		}
	}

	// ─── 2. Session Group ──────────────────────────────────────────────
	sessions := router.Group("/api/v1/sessions")
	{
		sessions.POST("/:session_id/start", handlers.Session.Start)
		sessions.POST("/:session_id/answers", handlers.Session.Answer)
		sessions.POST("/:session_id/navigate", handlers.Session.Navigate)
		sessions.POST("/:session_id/review", handlers.Session.Review)
		sessions.POST("/:session_id/submit", handlers.Session.Submit)
		sessions.GET("/:session_id/state", handlers.Session.GetState)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
