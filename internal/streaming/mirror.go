package streaming

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/skillspeak/interview-proxy/internal/logger"
)

// DefaultMirrorPrefix is the subject prefix used when none is configured.
const DefaultMirrorPrefix = "skillspeak.events"

// Mirror receives a copy of every broadcast payload. It observes the fan-out
// and never affects local delivery.
type Mirror interface {
	Publish(identity string, payload []byte) error
}

// NATSMirror publishes broadcast payloads to "<prefix>.<identity>", or to
// "<prefix>.legacy" for the legacy pool. Each message carries the
// publishing instance in the Instance-Id header.
type NATSMirror struct {
	nc         *nats.Conn
	prefix     string
	instanceID string
	logger     *logger.Logger
}

func NewNATSMirror(nc *nats.Conn, prefix, instanceID string, log *logger.Logger) *NATSMirror {
	if prefix == "" {
		prefix = DefaultMirrorPrefix
	}
	return &NATSMirror{
		nc:         nc,
		prefix:     strings.TrimSuffix(prefix, "."),
		instanceID: instanceID,
		logger:     log.WithComponent("nats-mirror"),
	}
}

// Subject returns the subject payloads for identity are published on.
func (m *NATSMirror) Subject(identity string) string {
	return MirrorSubject(m.prefix, identity)
}

func (m *NATSMirror) Publish(identity string, payload []byte) error {
	msg := &nats.Msg{
		Subject: m.Subject(identity),
		Data:    payload,
		Header:  nats.Header{},
	}
	msg.Header.Set("Instance-Id", m.instanceID)

	if err := m.nc.PublishMsg(msg); err != nil {
		m.logger.Warn("failed to publish mirrored event",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()))
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// MirrorSubject builds the subject for identity. Identities are opaque, so
// characters that carry meaning in NATS subjects are replaced.
func MirrorSubject(prefix, identity string) string {
	if identity == "" {
		return prefix + ".legacy"
	}
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, identity)
	return prefix + "." + token
}
