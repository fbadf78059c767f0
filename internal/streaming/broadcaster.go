package streaming

import (
	"encoding/json"
	"log/slog"

	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/metrics"
)

// Broadcaster delivers events to the listeners of one identity. It holds no
// state beyond the registry and the optional mirror.
type Broadcaster struct {
	registry *Registry
	mirror   Mirror
	logger   *logger.Logger
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithMirror sends a copy of every payload to m.
func WithMirror(m Mirror) BroadcasterOption {
	return func(b *Broadcaster) {
		b.mirror = m
	}
}

func NewBroadcaster(registry *Registry, log *logger.Logger, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		registry: registry,
		logger:   log.WithComponent("broadcaster"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Broadcast serializes ev once and hands it to every listener of identity,
// or of the legacy pool when identity is empty. An identity without a session
// is the normal case for callers nobody listens to, so it is a no-op.
// A failing listener is logged and counted; it stays attached and the
// remaining listeners still receive the event.
func (b *Broadcaster) Broadcast(ev Event, identity string) {
	sinks, ok := b.registry.Listeners(identity)
	if !ok {
		metrics.Broadcasts.WithLabelValues("no_session").Inc()
		b.logger.Debug("no session for broadcast",
			slog.String("client_id", identity),
			slog.String("type", ev.Kind().String()))
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}

	target := "session"
	if identity == "" {
		target = "legacy"
	}
	metrics.Broadcasts.WithLabelValues(target).Inc()

	for _, sink := range sinks {
		if err := sink.Deliver(payload); err != nil {
			metrics.ListenerWriteFailures.Inc()
			b.logger.Warn("listener write failed",
				slog.String("client_id", identity),
				slog.String("listener_id", sink.ID()),
				slog.String("error", err.Error()))
		}
	}

	if b.mirror != nil {
		if err := b.mirror.Publish(identity, payload); err != nil {
			metrics.MirrorErrors.Inc()
		}
	}
}
