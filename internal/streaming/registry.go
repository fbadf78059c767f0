package streaming

import (
	"log/slog"
	"sync"
	"time"

	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/metrics"
)

// DefaultGracePeriod is how long an empty session survives before it is
// collected. It covers page reloads and short network drops.
const DefaultGracePeriod = 5 * time.Minute

const unknownSource = "unknown"

type listener struct {
	sink   Sink
	source string
}

// ClientSession is the live fan-out group of one client identity.
// All fields are guarded by the owning Registry's lock.
type ClientSession struct {
	identity  string
	listeners []listener
	sources   map[string]int
	createdAt time.Time

	// emptied counts transitions to zero listeners. A collector only acts
	// if no newer transition happened after it was armed.
	emptied uint64
}

func newClientSession(identity string) *ClientSession {
	return &ClientSession{
		identity:  identity,
		sources:   make(map[string]int),
		createdAt: time.Now(),
	}
}

// Identity returns the session key.
func (s *ClientSession) Identity() string { return s.identity }

// CreatedAt returns when the session was first created.
func (s *ClientSession) CreatedAt() time.Time { return s.createdAt }

func (s *ClientSession) add(sink Sink, source string) {
	for _, l := range s.listeners {
		if l.sink == sink {
			return
		}
	}
	s.listeners = append(s.listeners, listener{sink: sink, source: source})
	s.sources[source]++
}

// remove drops sink by reference and reports whether it was present.
func (s *ClientSession) remove(sink Sink) bool {
	for i, l := range s.listeners {
		if l.sink != sink {
			continue
		}
		s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
		if s.sources[l.source]--; s.sources[l.source] <= 0 {
			delete(s.sources, l.source)
		}
		return true
	}
	return false
}

func (s *ClientSession) snapshot() []Sink {
	out := make([]Sink, len(s.listeners))
	for i, l := range s.listeners {
		out[i] = l.sink
	}
	return out
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Sessions         int
	SessionListeners int
	LegacyListeners  int
	Sources          map[string]int
}

// Registry maps client identities to sessions and holds the legacy pool for
// listeners that connect without one. One RWMutex guards the session map,
// every listener slice and the legacy pool; readers always get copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*ClientSession
	legacy   *ClientSession
	grace    time.Duration
	logger   *logger.Logger
}

// NewRegistry creates a registry whose empty sessions are collected after grace.
func NewRegistry(grace time.Duration, log *logger.Logger) *Registry {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Registry{
		sessions: make(map[string]*ClientSession),
		legacy:   newClientSession(""),
		grace:    grace,
		logger:   log.WithComponent("session-registry"),
	}
}

// GetOrCreate returns the session for identity, creating it if needed.
// Calling it again never replaces an existing session.
func (r *Registry) GetOrCreate(identity string) *ClientSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(identity)
}

func (r *Registry) getOrCreateLocked(identity string) *ClientSession {
	if identity == "" {
		return r.legacy
	}
	if s, ok := r.sessions[identity]; ok {
		return s
	}
	s := newClientSession(identity)
	r.sessions[identity] = s
	r.logger.Info("client session created", slog.String("client_id", identity))
	return s
}

// Attach adds sink to identity's session, or to the legacy pool when
// identity is empty. Attaching to a session that is waiting for collection
// keeps it alive, because the collector re-checks emptiness when it fires.
func (r *Registry) Attach(identity string, sink Sink, source string) {
	if source == "" {
		source = unknownSource
	}

	r.mu.Lock()
	s := r.getOrCreateLocked(identity)
	s.add(sink, source)
	count := len(s.listeners)
	r.mu.Unlock()

	r.logger.Info("listener attached",
		slog.String("client_id", identity),
		slog.String("listener_id", sink.ID()),
		slog.String("source", source),
		slog.Int("listeners", count))
}

// Detach removes sink. Detaching a sink that is not attached is a no-op.
// When the last listener of a session leaves, collection is scheduled.
func (r *Registry) Detach(identity string, sink Sink) {
	r.mu.Lock()
	var s *ClientSession
	if identity == "" {
		s = r.legacy
	} else {
		s = r.sessions[identity]
	}
	if s == nil || !s.remove(sink) {
		r.mu.Unlock()
		return
	}
	remaining := len(s.listeners)
	var gen uint64
	if remaining == 0 {
		s.emptied++
		gen = s.emptied
	}
	r.mu.Unlock()

	r.logger.Info("listener detached",
		slog.String("client_id", identity),
		slog.String("listener_id", sink.ID()),
		slog.Int("listeners", remaining))

	if identity != "" && remaining == 0 {
		time.AfterFunc(r.grace, func() { r.reap(identity, s, gen) })
	}
}

// reap deletes the session only if it is still the mapped one and still has
// no listeners. A listener that attached during the grace period wins.
func (r *Registry) reap(identity string, s *ClientSession, gen uint64) {
	r.mu.Lock()
	current, ok := r.sessions[identity]
	if !ok || current != s || len(s.listeners) > 0 || s.emptied != gen {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, identity)
	r.mu.Unlock()

	metrics.SessionsReaped.Inc()
	r.logger.Info("client session collected",
		slog.String("client_id", identity),
		slog.Duration("age", time.Since(s.createdAt)))
}

// Exists reports whether identity has a session.
func (r *Registry) Exists(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[identity]
	return ok
}

// Listeners returns a copy of the sinks attached to identity (the legacy
// pool when identity is empty). ok is false when there is no such session.
func (r *Registry) Listeners(identity string) (sinks []Sink, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if identity == "" {
		return r.legacy.snapshot(), true
	}
	s, ok := r.sessions[identity]
	if !ok {
		return nil, false
	}
	return s.snapshot(), true
}

// Stats returns session and listener counts, including per-source totals.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		Sessions:        len(r.sessions),
		LegacyListeners: len(r.legacy.listeners),
		Sources:         make(map[string]int),
	}
	for src, n := range r.legacy.sources {
		st.Sources[src] += n
	}
	for _, s := range r.sessions {
		st.SessionListeners += len(s.listeners)
		for src, n := range s.sources {
			st.Sources[src] += n
		}
	}
	return st
}
