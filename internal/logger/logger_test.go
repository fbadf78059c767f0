package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newJSONLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: slog.LevelDebug, Format: "json", Output: buf})
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestWithContextAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	ctx := WithClientID(WithRequestID(context.Background(), "req-1"), "alice")
	log.WithContext(ctx).WithFields(map[string]interface{}{"session_id": "resume_1"}).Info("hello")

	recs := records(t, &buf)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	for key, want := range map[string]string{"request_id": "req-1", "client_id": "alice", "session_id": "resume_1"} {
		if recs[0][key] != want {
			t.Errorf("%s = %v, want %q", key, recs[0][key], want)
		}
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	log.LogError(WithRequestID(context.Background(), "req-2"), errors.New("boom"), "chat failed", slog.Int("status", 502))

	recs := records(t, &buf)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0]["level"] != "ERROR" || recs[0]["error"] != "boom" || recs[0]["request_id"] != "req-2" {
		t.Errorf("unexpected record: %v", recs[0])
	}
	if recs[0]["status"] != float64(502) {
		t.Errorf("status = %v", recs[0]["status"])
	}
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	if err := log.LogOperation(context.Background(), "parse", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failure := errors.New("upstream down")
	if err := log.LogOperation(context.Background(), "parse", func() error { return failure }); err != failure {
		t.Fatalf("expected the operation error back, got %v", err)
	}

	var msgs []string
	for _, rec := range records(t, &buf) {
		if rec["operation"] != "parse" {
			t.Errorf("missing operation attribute: %v", rec)
		}
		msgs = append(msgs, rec["msg"].(string))
	}
	want := []string{"operation started", "operation completed", "operation started", "operation failed"}
	if strings.Join(msgs, ",") != strings.Join(want, ",") {
		t.Errorf("messages = %v, want %v", msgs, want)
	}
}
