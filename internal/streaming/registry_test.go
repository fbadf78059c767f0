package streaming

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skillspeak/interview-proxy/internal/logger"
)

// recordingSink stores every payload it receives. When fail is set it
// rejects deliveries instead.
type recordingSink struct {
	id   string
	fail bool

	mu       sync.Mutex
	payloads [][]byte
	attempts int
}

func newRecordingSink(id string) *recordingSink {
	return &recordingSink{id: id}
}

func (s *recordingSink) ID() string { return s.id }

func (s *recordingSink) Deliver(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.fail {
		return fmt.Errorf("sink %s: broken pipe", s.id)
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.payloads))
	copy(out, s.payloads)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Minute, logger.Discard())
	sink := newRecordingSink("a")

	r.Attach("user1", sink, "web")
	first := r.GetOrCreate("user1")
	second := r.GetOrCreate("user1")

	if first != second {
		t.Fatal("GetOrCreate returned a different session for the same identity")
	}
	sinks, ok := r.Listeners("user1")
	if !ok || len(sinks) != 1 {
		t.Fatalf("listeners lost after GetOrCreate: %v %v", sinks, ok)
	}
}

func TestRegistryDetachIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Minute, logger.Discard())
	a, b := newRecordingSink("a"), newRecordingSink("b")

	r.Attach("user1", a, "web")
	r.Attach("user1", b, "desktop")
	r.Detach("user1", a)
	r.Detach("user1", a)
	r.Detach("nobody", a)

	sinks, ok := r.Listeners("user1")
	if !ok {
		t.Fatal("session disappeared")
	}
	if len(sinks) != 1 || sinks[0] != Sink(b) {
		t.Fatalf("expected only b to remain, got %v", sinks)
	}
}

func TestRegistryAttachSameSinkTwice(t *testing.T) {
	r := NewRegistry(time.Minute, logger.Discard())
	a := newRecordingSink("a")

	r.Attach("user1", a, "web")
	r.Attach("user1", a, "web")

	if sinks, _ := r.Listeners("user1"); len(sinks) != 1 {
		t.Fatalf("expected one listener, got %d", len(sinks))
	}
}

func TestRegistryReapsEmptySessionAfterGrace(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, logger.Discard())
	a := newRecordingSink("a")

	r.Attach("user1", a, "web")
	r.Detach("user1", a)

	waitFor(t, time.Second, func() bool { return !r.Exists("user1") })
}

func TestRegistryLateAttachKeepsSession(t *testing.T) {
	r := NewRegistry(50*time.Millisecond, logger.Discard())
	a, b := newRecordingSink("a"), newRecordingSink("b")

	r.Attach("user1", a, "web")
	original := r.GetOrCreate("user1")
	r.Detach("user1", a)
	r.Attach("user1", b, "web")

	time.Sleep(150 * time.Millisecond)

	if !r.Exists("user1") {
		t.Fatal("session collected despite an attached listener")
	}
	if r.GetOrCreate("user1") != original {
		t.Fatal("session was recreated instead of reused")
	}

	NewBroadcaster(r, logger.Discard()).Broadcast(Chunk("after"), "user1")
	if len(b.received()) != 1 {
		t.Fatal("reattached listener did not receive the broadcast")
	}
}

func TestRegistryRearmedGraceUsesLatestDetach(t *testing.T) {
	r := NewRegistry(200*time.Millisecond, logger.Discard())
	a, b := newRecordingSink("a"), newRecordingSink("b")

	r.Attach("user1", a, "web")
	r.Detach("user1", a)
	time.Sleep(100 * time.Millisecond)
	r.Attach("user1", b, "web")
	r.Detach("user1", b)

	// The first timer fires around 200ms; the session emptied again at 100ms
	// and must survive until around 300ms.
	time.Sleep(150 * time.Millisecond)
	if !r.Exists("user1") {
		t.Fatal("session collected by a stale timer")
	}

	waitFor(t, time.Second, func() bool { return !r.Exists("user1") })
}

func TestRegistryLegacyPool(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, logger.Discard())
	a := newRecordingSink("a")

	r.Attach("", a, "")
	if r.Exists("") {
		t.Error("legacy pool must not appear as a session")
	}
	sinks, ok := r.Listeners("")
	if !ok || len(sinks) != 1 {
		t.Fatalf("legacy listeners = %v", sinks)
	}

	st := r.Stats()
	if st.LegacyListeners != 1 || st.Sessions != 0 {
		t.Errorf("stats = %+v", st)
	}
	if st.Sources[unknownSource] != 1 {
		t.Errorf("empty source should be recorded as %q: %+v", unknownSource, st.Sources)
	}

	r.Detach("", a)
	if sinks, _ := r.Listeners(""); len(sinks) != 0 {
		t.Errorf("legacy pool not emptied: %v", sinks)
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry(time.Minute, logger.Discard())
	r.Attach("user1", newRecordingSink("a"), "web")
	r.Attach("user1", newRecordingSink("b"), "desktop")
	r.Attach("user2", newRecordingSink("c"), "web")

	st := r.Stats()
	if st.Sessions != 2 || st.SessionListeners != 3 {
		t.Errorf("stats = %+v", st)
	}
	if st.Sources["web"] != 2 || st.Sources["desktop"] != 1 {
		t.Errorf("sources = %+v", st.Sources)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(time.Millisecond, logger.Discard())
	b := NewBroadcaster(r, logger.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity := fmt.Sprintf("user%d", i%3)
			for j := 0; j < 200; j++ {
				sink := newRecordingSink(fmt.Sprintf("%d-%d", i, j))
				r.Attach(identity, sink, "web")
				b.Broadcast(Chunk("x"), identity)
				r.Detach(identity, sink)
			}
		}(i)
	}
	wg.Wait()
}
