package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/metrics"
)

const (
	// DefaultSinkBuffer is the per-listener queue depth.
	DefaultSinkBuffer = 256

	minSinkBuffer = 8
	maxSinkBuffer = 4096
)

var (
	// ErrSinkFull is returned by Deliver when the listener's queue is full.
	ErrSinkFull = errors.New("listener queue full")
	// ErrSinkClosed is returned by Deliver after the listener disconnected.
	ErrSinkClosed = errors.New("listener closed")
)

// Sink is a delivery target held by the Registry. Deliver must not block:
// the broadcaster calls it from the request path.
type Sink interface {
	ID() string
	Deliver(payload []byte) error
}

// FrameWriter writes one serialized event to a transport.
type FrameWriter func(payload []byte) error

// QueuedSink is a Sink backed by a buffered channel and drained by Run on
// the connection's own goroutine. A slow or stuck transport fills the queue
// instead of stalling the broadcaster.
//
// The channel is never closed; Deliver checks the context instead, so a
// broadcast racing with a disconnect cannot panic.
type QueuedSink struct {
	id       string
	ch       chan []byte
	write    FrameWriter
	joinedAt time.Time
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueuedSink creates a sink bound to ctx. Cancelling ctx (typically the
// HTTP request context) stops Run and makes Deliver return ErrSinkClosed.
func NewQueuedSink(ctx context.Context, id string, bufferSize int, write FrameWriter, log *logger.Logger) *QueuedSink {
	if bufferSize < minSinkBuffer {
		bufferSize = minSinkBuffer
	}
	if bufferSize > maxSinkBuffer {
		bufferSize = maxSinkBuffer
	}

	sinkCtx, cancel := context.WithCancel(ctx)

	return &QueuedSink{
		id:       id,
		ch:       make(chan []byte, bufferSize),
		write:    write,
		joinedAt: time.Now(),
		log:      log.WithComponent("listener"),
		ctx:      sinkCtx,
		cancel:   cancel,
	}
}

func (s *QueuedSink) ID() string { return s.id }

// JoinedAt is when the sink was created.
func (s *QueuedSink) JoinedAt() time.Time { return s.joinedAt }

// Deliver enqueues payload without blocking.
func (s *QueuedSink) Deliver(payload []byte) error {
	if s.ctx.Err() != nil {
		return ErrSinkClosed
	}
	select {
	case s.ch <- payload:
		return nil
	default:
		return ErrSinkFull
	}
}

// Run writes queued payloads until the sink's context is done. A failed
// transport write is logged and counted; the loop keeps going because only
// the transport's close notification ends a listener.
func (s *QueuedSink) Run() {
	for {
		select {
		case payload := <-s.ch:
			if err := s.write(payload); err != nil {
				metrics.ListenerWriteFailures.Inc()
				s.log.Warn("failed to write to listener",
					slog.String("listener_id", s.id),
					slog.String("error", err.Error()))
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Close stops Run. Safe to call more than once.
func (s *QueuedSink) Close() {
	s.cancel()
}

// Done is closed when the sink stops.
func (s *QueuedSink) Done() <-chan struct{} {
	return s.ctx.Done()
}

// SSEFrames writes payloads as "data: <json>\n\n" and flushes each one.
func SSEFrames(w io.Writer, flusher http.Flusher) FrameWriter {
	return func(payload []byte) error {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
}
