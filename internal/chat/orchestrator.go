package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/skillspeak/interview-proxy/internal/config"
	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/metrics"
	"github.com/skillspeak/interview-proxy/internal/streaming"
	"github.com/skillspeak/interview-proxy/internal/upstream"
)

const (
	defaultMaxTokens = 6000
	defaultTimeout   = 5 * time.Minute
	topP             = 0.95
)

// Upstream opens streaming completions.
type Upstream interface {
	Stream(ctx context.Context, req upstream.ChatRequest) (io.ReadCloser, error)
	Model() string
}

// Broadcaster fans events out to the listeners of an identity.
type Broadcaster interface {
	Broadcast(ev streaming.Event, identity string)
}

// State is a step of one orchestrated request.
type State int

const (
	StateIdle State = iota
	StateAwaitingUpstream
	StateStreaming
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUpstream:
		return "awaiting_upstream"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options holds generation settings and canned replies.
type Options struct {
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	GreetingReply string
	EmptyReply    string
}

// OptionsFromConfig builds Options from the service configuration.
func OptionsFromConfig(cfg *config.Config, prompts *config.Prompts) Options {
	return Options{
		MaxTokens:     cfg.ChatMaxTokens,
		Temperature:   cfg.Temperature,
		Timeout:       cfg.UpstreamTimeout,
		GreetingReply: prompts.GreetingReply,
		EmptyReply:    prompts.EmptyReply,
	}
}

// Orchestrator serves one-shot chat requests while streaming the same
// output to the caller's listeners.
type Orchestrator struct {
	upstream    Upstream
	broadcaster Broadcaster
	opts        Options
	logger      *logger.Logger
}

func New(up Upstream, b Broadcaster, opts Options, log *logger.Logger) *Orchestrator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Orchestrator{
		upstream:    up,
		broadcaster: b,
		opts:        opts,
		logger:      log.WithComponent("chat"),
	}
}

// ParseMessages decodes the messages field of a request body. A missing
// field or a non-array value is a validation error.
func ParseMessages(raw json.RawMessage) ([]upstream.Message, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed[0] != '[' {
		return nil, apierrors.NewValidationError("messages must be an array")
	}
	var messages []upstream.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, apierrors.NewValidationError("messages must be an array of {role, content} objects")
	}
	return messages, nil
}

// run tracks the state of a single request.
type run struct {
	state    State
	identity string
	log      *logger.Logger
}

func (r *run) to(s State) {
	r.log.Debug("chat state", slog.String("from", r.state.String()), slog.String("to", s.String()))
	r.state = s
}

// Handle runs one request: the user echo, then the upstream stream teed into
// the assembled text and the broadcaster, then exactly one terminal event.
// The returned envelope carries the final text.
func (o *Orchestrator) Handle(ctx context.Context, identity string, messages []upstream.Message) (*upstream.ChatCompletion, error) {
	r := &run{state: StateIdle, identity: identity, log: o.logger.WithContext(ctx)}

	if len(messages) == 0 {
		return nil, apierrors.NewValidationError("messages must not be empty")
	}

	lastUser, hasUser := lastUserText(messages)

	if hasUser && IsGreeting(lastUser) {
		o.broadcaster.Broadcast(streaming.UserEcho(lastUser), identity)
		o.broadcaster.Broadcast(streaming.Complete(o.opts.GreetingReply), identity)
		metrics.ChatOutcomes.WithLabelValues("greeting").Inc()
		r.to(StateDone)
		return o.envelope("greeting", o.opts.GreetingReply), nil
	}

	if hasUser {
		o.broadcaster.Broadcast(streaming.UserEcho(lastUser), identity)
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	r.to(StateAwaitingUpstream)
	body, err := o.upstream.Stream(ctx, upstream.ChatRequest{
		Messages:    messages,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
		TopP:        topP,
		Operation:   "chat",
	})
	if err != nil {
		return nil, o.fail(ctx, r, err)
	}
	defer body.Close()

	r.to(StateStreaming)
	var assembled strings.Builder
	chunks := 0
	for item := range streaming.Decode(body, r.log) {
		switch item.Kind {
		case streaming.ItemChunk:
			assembled.WriteString(item.Text)
			chunks++
			o.broadcaster.Broadcast(streaming.Chunk(item.Text), identity)
		case streaming.ItemError:
			return nil, o.fail(ctx, r, item.Err)
		}
	}

	r.to(StateFinalizing)
	final := strings.TrimSpace(streaming.StripControlTokens(assembled.String()))
	outcome := "complete"
	if final == "" {
		final = o.opts.EmptyReply
		outcome = "fallback"
		r.log.Warn("upstream produced no usable text, sending fallback", slog.Int("chunks", chunks))
	}

	o.broadcaster.Broadcast(streaming.Complete(final), identity)
	metrics.ChatOutcomes.WithLabelValues(outcome).Inc()
	r.to(StateDone)

	r.log.Info("chat completed",
		slog.Int("chunks", chunks),
		slog.Int("length", len(final)),
		slog.String("outcome", outcome))

	return o.envelope("stream", final), nil
}

// fail terminates the listener sequence with an error event and returns err.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) error {
	r.to(StateFailed)
	o.broadcaster.Broadcast(streaming.Failure(apierrors.MessageOf(err)), r.identity)
	metrics.ChatOutcomes.WithLabelValues("error").Inc()
	o.logger.LogError(ctx, err, "chat request failed",
		slog.Int("status", apierrors.StatusOf(err)))
	return err
}

func (o *Orchestrator) envelope(prefix, content string) *upstream.ChatCompletion {
	now := time.Now()
	return &upstream.ChatCompletion{
		ID:      fmt.Sprintf("%s-%d", prefix, now.UnixMilli()),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   o.upstream.Model(),
		Choices: []upstream.Choice{{
			Index:        0,
			Message:      upstream.Message{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	}
}

func lastUserText(messages []upstream.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, true
		}
	}
	return "", false
}
