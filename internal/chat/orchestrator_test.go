package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/streaming"
	"github.com/skillspeak/interview-proxy/internal/upstream"
)

const (
	testGreeting = "Hello! Ask me anything."
	testFallback = "I didn't generate a proper response."
)

type sent struct {
	identity string
	event    streaming.Event
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sent
}

func (b *recordingBroadcaster) Broadcast(ev streaming.Event, identity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sent{identity: identity, event: ev})
}

func (b *recordingBroadcaster) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, s := range b.events {
		out[i] = s.event.Kind().String()
	}
	return out
}

func (b *recordingBroadcaster) snapshot() []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sent(nil), b.events...)
}

func sseBody(deltas ...string) string {
	var sb strings.Builder
	sb.WriteString(": OPENROUTER PROCESSING\n\n")
	for _, d := range deltas {
		b, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": d}}},
		})
		fmt.Fprintf(&sb, "data: %s\n\n", b)
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func newOrchestrator(t *testing.T, h http.HandlerFunc) (*Orchestrator, *recordingBroadcaster) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := upstream.New(upstream.Options{BaseURL: srv.URL, APIKey: "k", Model: "test/model"}, logger.Discard())
	b := &recordingBroadcaster{}
	o := New(client, b, Options{
		Temperature:   0.3,
		GreetingReply: testGreeting,
		EmptyReply:    testFallback,
	}, logger.Discard())
	return o, b
}

func userMessages(text string) []upstream.Message {
	return []upstream.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: text},
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHandleChunksConcatenateToFinalText(t *testing.T) {
	o, b := newOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseBody("Binary", " search", "\n\n", "halves <|im_end|>the", " range."))
	})

	resp, err := o.Handle(context.Background(), "alice", userMessages("explain binary search please"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var chunks strings.Builder
	var complete string
	for _, s := range b.snapshot() {
		if s.identity != "alice" {
			t.Errorf("event sent to %q", s.identity)
		}
		switch s.event.Kind() {
		case streaming.KindChunk:
			chunks.WriteString(s.event.Content())
		case streaming.KindComplete:
			complete = s.event.Content()
		}
	}

	want := "Binary search\n\nhalves the range."
	if chunks.String() != want {
		t.Errorf("chunks = %q, want %q", chunks.String(), want)
	}
	if complete != want {
		t.Errorf("complete = %q, want %q", complete, want)
	}
	if got := resp.Choices[0].Message.Content; got != want {
		t.Errorf("response = %q, want %q", got, want)
	}
	if !strings.HasPrefix(resp.ID, "stream-") || resp.Object != "chat.completion" || resp.Model != "test/model" {
		t.Errorf("envelope = %+v", resp)
	}
	if resp.Choices[0].Message.Role != "assistant" || resp.Choices[0].FinishReason != "stop" {
		t.Errorf("choice = %+v", resp.Choices[0])
	}

	kinds := b.kinds()
	if kinds[0] != "user" || kinds[len(kinds)-1] != "complete" {
		t.Errorf("event order = %v", kinds)
	}
}

func TestHandleGreetingSkipsUpstream(t *testing.T) {
	var calls atomic.Int32
	o, b := newOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	resp, err := o.Handle(context.Background(), "alice", []upstream.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("greeting must not call upstream")
	}
	if !equal(b.kinds(), []string{"user", "complete"}) {
		t.Fatalf("events = %v, want [user complete]", b.kinds())
	}
	if resp.Choices[0].Message.Content != testGreeting || resp.Choices[0].Message.Role != "assistant" {
		t.Errorf("response = %+v", resp.Choices[0].Message)
	}
	if !strings.HasPrefix(resp.ID, "greeting-") {
		t.Errorf("id = %q", resp.ID)
	}
}

func TestHandleEmptyResultFallsBack(t *testing.T) {
	o, b := newOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseBody("<|im_end|>"))
	})

	resp, err := o.Handle(context.Background(), "alice", userMessages("what is a heap data structure"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Choices[0].Message.Content != testFallback {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if !equal(b.kinds(), []string{"user", "complete"}) {
		t.Errorf("events = %v", b.kinds())
	}
}

func TestHandleEchoPrecedesUpstreamCall(t *testing.T) {
	var b *recordingBroadcaster
	var echoed atomic.Bool
	o, b := newOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		kinds := b.kinds()
		echoed.Store(len(kinds) == 1 && kinds[0] == "user")
		io.WriteString(w, sseBody("ok"))
	})

	if _, err := o.Handle(context.Background(), "", userMessages("describe tcp handshakes")); err != nil {
		t.Fatal(err)
	}
	if !echoed.Load() {
		t.Error("user echo was not broadcast before the upstream request")
	}
}

func TestHandleUpstreamErrorStatus(t *testing.T) {
	o, b := newOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"Rate limit exceeded"}}`)
	})

	_, err := o.Handle(context.Background(), "alice", userMessages("explain dijkstra's algorithm"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if apierrors.StatusOf(err) != http.StatusTooManyRequests {
		t.Errorf("status = %d", apierrors.StatusOf(err))
	}
	if !equal(b.kinds(), []string{"user", "error"}) {
		t.Errorf("events = %v, want [user error]", b.kinds())
	}
	if last := b.snapshot()[1].event.Content(); last != "Rate limit exceeded" {
		t.Errorf("error event content = %q", last)
	}
}

func TestHandleTruncatedStreamFails(t *testing.T) {
	o, b := newOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n\n")
	})

	_, err := o.Handle(context.Background(), "alice", userMessages("explain quicksort in depth"))
	if !errors.Is(err, streaming.ErrStreamTruncated) {
		t.Fatalf("err = %v, want truncation", err)
	}
	if apierrors.StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("status = %d", apierrors.StatusOf(err))
	}
	if !equal(b.kinds(), []string{"user", "chunk", "error"}) {
		t.Errorf("events = %v", b.kinds())
	}
}

func TestHandleRejectsEmptyMessages(t *testing.T) {
	o, b := newOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})

	_, err := o.Handle(context.Background(), "alice", nil)

	var verr *apierrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(b.kinds()) != 0 {
		t.Errorf("validation failure broadcast events: %v", b.kinds())
	}
}

func TestParseMessages(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr string
		wantLen int
	}{
		{``, "messages must be an array", 0},
		{`null`, "messages must be an array", 0},
		{`{"role":"user"}`, "messages must be an array", 0},
		{`"hi"`, "messages must be an array", 0},
		{`[]`, "", 0},
		{`[{"role":"user","content":"hi"}]`, "", 1},
	}
	for _, tt := range tests {
		msgs, err := ParseMessages(json.RawMessage(tt.raw))
		if tt.wantErr != "" {
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("ParseMessages(%q) err = %v, want %q", tt.raw, err, tt.wantErr)
			}
			continue
		}
		if err != nil || len(msgs) != tt.wantLen {
			t.Errorf("ParseMessages(%q) = %v, %v", tt.raw, msgs, err)
		}
	}
}

func TestIsGreeting(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"hi", true},
		{"Hello!", true},
		{"  Good Morning  ", true},
		{"hey there", true},
		{"what is a linked list", false},
		{"hello, can you explain how hash maps work", false},
		{"sort", false},
	}
	for _, tt := range tests {
		if got := IsGreeting(tt.text); got != tt.want {
			t.Errorf("IsGreeting(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
