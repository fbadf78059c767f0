package streaming

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WSConn serializes writes to a gorilla connection. gorilla allows one
// concurrent writer, and frames and pings come from different goroutines.
type WSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Frames returns a FrameWriter that sends each payload as a text message.
func (w *WSConn) Frames() FrameWriter {
	return func(payload []byte) error {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return w.conn.WriteMessage(websocket.TextMessage, payload)
	}
}

// Ping sends a ping control frame.
func (w *WSConn) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

// KeepAlive pings every 30s until done is closed or a ping fails.
func (w *WSConn) KeepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
