package streaming

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/skillspeak/interview-proxy/internal/logger"
)

func TestQueuedSinkDeliverDoesNotBlock(t *testing.T) {
	sink := NewQueuedSink(context.Background(), "s1", minSinkBuffer, func([]byte) error { return nil }, logger.Discard())
	defer sink.Close()

	for i := 0; i < minSinkBuffer; i++ {
		if err := sink.Deliver([]byte("x")); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}
	if err := sink.Deliver([]byte("overflow")); !errors.Is(err, ErrSinkFull) {
		t.Fatalf("expected ErrSinkFull, got %v", err)
	}
}

func TestQueuedSinkDeliverAfterClose(t *testing.T) {
	sink := NewQueuedSink(context.Background(), "s1", 16, func([]byte) error { return nil }, logger.Discard())
	sink.Close()
	sink.Close()

	if err := sink.Deliver([]byte("x")); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
}

func TestQueuedSinkRunWritesInOrderAndSurvivesErrors(t *testing.T) {
	var (
		mu      sync.Mutex
		written []string
		calls   int
	)
	write := func(p []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 2 {
			return errors.New("transient")
		}
		written = append(written, string(p))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := NewQueuedSink(ctx, "s1", 16, write, logger.Discard())
	for _, p := range []string{"1", "2", "3", "4"} {
		if err := sink.Deliver([]byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	go func() {
		sink.Run()
		close(done)
	}()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 4
	})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"1", "3", "4"}
	if len(written) != len(want) {
		t.Fatalf("written = %v, want %v", written, want)
	}
	for i := range want {
		if written[i] != want[i] {
			t.Fatalf("written = %v, want %v", written, want)
		}
	}
}

func TestSSEFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	write := SSEFrames(rec, rec)

	if err := write([]byte(`{"type":"chunk"}`)); err != nil {
		t.Fatal(err)
	}
	if got := rec.Body.String(); got != "data: {\"type\":\"chunk\"}\n\n" {
		t.Errorf("frame = %q", got)
	}
	if !rec.Flushed {
		t.Error("frame was not flushed")
	}
}

func TestMirrorSubject(t *testing.T) {
	tests := []struct {
		identity, want string
	}{
		{"", "skillspeak.events.legacy"},
		{"abc123", "skillspeak.events.abc123"},
		{"a.b*c>d e", "skillspeak.events.a_b_c_d_e"},
	}
	for _, tt := range tests {
		if got := MirrorSubject(DefaultMirrorPrefix, tt.identity); got != tt.want {
			t.Errorf("MirrorSubject(%q) = %q, want %q", tt.identity, got, tt.want)
		}
	}
}
