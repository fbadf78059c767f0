package proxy

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/skillspeak/interview-proxy/internal/chat"
	"github.com/skillspeak/interview-proxy/internal/interview"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/ratings"
	"github.com/skillspeak/interview-proxy/internal/resume"
	"github.com/skillspeak/interview-proxy/internal/streaming"
)

// Services groups what the HTTP surface is built on.
type Services struct {
	Registry     *streaming.Registry
	Orchestrator *chat.Orchestrator
	Interview    *interview.Service
	Resume       *resume.Service
	Ratings      *ratings.Store

	ListenerBufferSize int
	StaticDir          string
}

// RegisterRoutes mounts every endpoint on router.
func RegisterRoutes(router *gin.Engine, logger *logger.Logger, svc Services) {
	router.GET("/health", HealthHandler(svc.Registry))
	router.GET("/events", EventsHandler(logger, svc.Registry, svc.ListenerBufferSize))
	router.GET("/ws", EventsWebSocketHandler(logger, svc.Registry, svc.ListenerBufferSize))

	api := router.Group("/api")
	{
		api.POST("/chat", ChatHandler(logger, svc.Orchestrator))

		api.POST("/generate-interview-questions", GenerateQuestionsHandler(logger, svc.Interview))
		api.POST("/generate-answers", GenerateAnswersHandler(logger, svc.Interview))
		api.POST("/extract-text", ExtractTextHandler(logger))

		api.POST("/parse-resume", ParseResumeHandler(logger, svc.Resume))
		api.POST("/parse-resume-text", ParseResumeTextHandler(logger, svc.Resume))
		api.POST("/chat-with-resume", ChatWithResumeHandler(logger, svc.Resume))

		api.POST("/store-questions", StoreQuestionsHandler(logger, svc.Ratings))
		api.POST("/save-ratings", SaveRatingsHandler(logger, svc.Ratings))
		api.GET("/rating-report/:sessionId", RatingReportHandler(svc.Ratings))
		api.GET("/rating-sessions", RatingSessionsHandler(svc.Ratings))
	}

	if svc.StaticDir != "" {
		if info, err := os.Stat(svc.StaticDir); err == nil && info.IsDir() {
			router.NoRoute(gin.WrapH(http.FileServer(http.Dir(svc.StaticDir))))
		}
	}
}

// HealthHandler handles GET /health.
func HealthHandler(registry *streaming.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := registry.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"sessions":  st.Sessions,
			"listeners": st.SessionListeners + st.LegacyListeners,
		})
	}
}
