package proxy

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skillspeak/interview-proxy/internal/logger"
)

const (
	clientIDHeader = "X-Client-ID"
	sourceHeader   = "X-Source"
	unknownSource  = "unknown"
)

// clientIdentity resolves the caller's identity. The clientId query
// parameter wins over the X-Client-ID header. An empty result selects the
// legacy pool.
func clientIdentity(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("clientId")); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(clientIDHeader))
}

func clientSource(c *gin.Context) string {
	if s := strings.TrimSpace(c.Query("source")); s != "" {
		return s
	}
	if s := strings.TrimSpace(c.GetHeader(sourceHeader)); s != "" {
		return s
	}
	return unknownSource
}

func withClientID(ctx context.Context, identity string) context.Context {
	if identity == "" {
		return ctx
	}
	return logger.WithClientID(ctx, identity)
}
