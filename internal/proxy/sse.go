package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// sseResponse writes JSON events as SSE frames. Headers go out with the
// first event, so a handler can still answer with a JSON error until then.
type sseResponse struct {
	c       *gin.Context
	started bool
}

func newSSEResponse(c *gin.Context) *sseResponse {
	return &sseResponse{c: c}
}

// Started reports whether any event has been written.
func (s *sseResponse) Started() bool { return s.started }

// Emit writes one event. It returns the request context's error once the
// client has gone away.
func (s *sseResponse) Emit(event any) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	if !s.started {
		setSSEHeaders(s.c)
		s.c.Status(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}
