package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skillspeak/interview-proxy/internal/chat"
	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/logger"
)

type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

// ChatHandler handles POST /api/chat. The reply is streamed to the caller's
// listeners while it is generated; the response carries the full text in a
// chat-completion envelope.
func ChatHandler(logger *logger.Logger, orch *chat.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.AbortWithBadRequest(c, "Invalid request body")
			return
		}

		messages, err := chat.ParseMessages(req.Messages)
		if err != nil {
			apierrors.AbortWithError(c, err)
			return
		}

		identity := clientIdentity(c)
		ctx := withClientID(c.Request.Context(), identity)
		log := logger.WithContext(ctx).WithComponent("chat-handler")

		resp, err := orch.Handle(ctx, identity, messages)
		if err != nil {
			log.Warn("chat request failed",
				slog.String("error", err.Error()),
				slog.Int("status", apierrors.StatusOf(err)))
			apierrors.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
