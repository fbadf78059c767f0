package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/streaming"
)

const wsReadWait = 90 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced by the outer handler for HTTP; desktop clients send no Origin.
		return true
	},
}

// closableSink is a registry sink that the handler also stops.
type closableSink interface {
	streaming.Sink
	Close()
}

// releaseListener detaches sink before stopping it, so a concurrent
// broadcast never finds a closed sink still attached.
func releaseListener(registry *streaming.Registry, identity string, sink closableSink) {
	registry.Detach(identity, sink)
	sink.Close()
}

// EventsHandler handles GET /events. The connection is attached to the
// caller's session (or the legacy pool when no identity is given) and
// receives every event broadcast to it until the client disconnects.
func EventsHandler(logger *logger.Logger, registry *streaming.Registry, bufferSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := clientIdentity(c)
		source := clientSource(c)
		ctx := withClientID(c.Request.Context(), identity)
		log := logger.WithContext(ctx).WithComponent("events-handler")

		setSSEHeaders(c)
		c.Status(http.StatusOK)
		if _, err := fmt.Fprint(c.Writer, ": connected\n\n"); err != nil {
			log.Warn("failed to write connect comment", slog.String("error", err.Error()))
			return
		}
		c.Writer.Flush()

		sink := streaming.NewQueuedSink(ctx, uuid.New().String(), bufferSize, streaming.SSEFrames(c.Writer, c.Writer), logger)
		registry.Attach(identity, sink, source)
		defer func() {
			releaseListener(registry, identity, sink)
			log.Info("listener disconnected",
				slog.String("listener_id", sink.ID()),
				slog.Duration("duration", time.Since(sink.JoinedAt())))
		}()

		log.Info("listener connected",
			slog.String("listener_id", sink.ID()),
			slog.String("source", source),
			slog.Bool("legacy", identity == ""))

		sink.Run()
	}
}

// EventsWebSocketHandler handles GET /ws, the WebSocket variant of /events.
// Each event is sent as one text frame.
func EventsWebSocketHandler(logger *logger.Logger, registry *streaming.Registry, bufferSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := clientIdentity(c)
		source := clientSource(c)
		ctx := withClientID(c.Request.Context(), identity)
		log := logger.WithContext(ctx).WithComponent("ws-handler")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("failed to upgrade connection", slog.String("error", err.Error()))
			return
		}

		ws := streaming.NewWSConn(conn)
		sink := streaming.NewQueuedSink(ctx, uuid.New().String(), bufferSize, ws.Frames(), logger)
		registry.Attach(identity, sink, source)

		go sink.Run()
		go ws.KeepAlive(sink.Done())

		conn.SetReadDeadline(time.Now().Add(wsReadWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsReadWait))
			return nil
		})

		defer func() {
			releaseListener(registry, identity, sink)
			conn.Close()
			log.Info("websocket listener disconnected",
				slog.String("listener_id", sink.ID()),
				slog.Duration("duration", time.Since(sink.JoinedAt())))
		}()

		log.Info("websocket listener connected",
			slog.String("listener_id", sink.ID()),
			slog.String("source", source),
			slog.Bool("legacy", identity == ""))

		// Block in read loop to keep connection open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Error("websocket read error", slog.String("error", err.Error()))
				}
				break
			}
		}
	}
}
