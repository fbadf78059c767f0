package proxy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/ratings"
)

type storeQuestionsRequest struct {
	SessionID string           `json:"sessionId"`
	Questions []map[string]any `json:"questions"`
}

type saveRatingsRequest struct {
	SessionID string             `json:"sessionId"`
	Ratings   map[string]float64 `json:"ratings"`
}

// StoreQuestionsHandler handles POST /api/store-questions.
func StoreQuestionsHandler(logger *logger.Logger, store *ratings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req storeQuestionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.AbortWithBadRequest(c, "Session ID and questions are required")
			return
		}

		total, err := store.StoreQuestions(req.SessionID, req.Questions)
		if err != nil {
			apierrors.AbortWithError(c, err)
			return
		}

		logger.WithContext(c.Request.Context()).WithComponent("ratings").Debug("questions stored",
			slog.String("session_id", req.SessionID), slog.Int("total", total))
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"message":        "Questions stored successfully",
			"totalQuestions": total,
		})
	}
}

// SaveRatingsHandler handles POST /api/save-ratings.
func SaveRatingsHandler(logger *logger.Logger, store *ratings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req saveRatingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.AbortWithBadRequest(c, "Session ID and ratings are required")
			return
		}

		rated, err := store.SaveRatings(req.SessionID, req.Ratings)
		if err != nil {
			apierrors.AbortWithError(c, err)
			return
		}

		logger.WithContext(c.Request.Context()).WithComponent("ratings").Debug("ratings saved",
			slog.String("session_id", req.SessionID), slog.Int("rated", rated))
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    "Ratings saved successfully",
			"totalRated": rated,
		})
	}
}

// RatingReportHandler handles GET /api/rating-report/:sessionId.
func RatingReportHandler(store *ratings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := store.Report(c.Param("sessionId"))
		if errors.Is(err, ratings.ErrSessionNotFound) {
			apierrors.AbortWithNotFound(c, err.Error())
			return
		}
		if err != nil {
			apierrors.AbortWithInternal(c, "Failed to generate report")
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// RatingSessionsHandler handles GET /api/rating-sessions.
func RatingSessionsHandler(store *ratings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": store.Sessions()})
	}
}
