package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillspeak/interview-proxy/internal/config"
	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/streaming"
	"github.com/skillspeak/interview-proxy/internal/upstream"
)

const (
	parsePromptChars = 3000
	parseMaxTokens   = 2000
	parseTemperature = 0.3

	minFileResumeLen = 50
	minTextResumeLen = 100

	SourceFile = "file"
	SourceText = "text"
)

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// LLM is the upstream the service needs.
type LLM interface {
	Complete(ctx context.Context, req upstream.ChatRequest) (string, error)
	Stream(ctx context.Context, req upstream.ChatRequest) (io.ReadCloser, error)
}

// Broadcaster fans events out to the listeners of an identity.
type Broadcaster interface {
	Broadcast(ev streaming.Event, identity string)
}

type Options struct {
	ParseTimeout time.Duration
	// ChatCutoff is the wall-clock limit of one resume chat turn. When it
	// passes the turn completes with whatever text has arrived.
	ChatCutoff time.Duration
	// StructuredOutput sends the profile schema as response_format.
	StructuredOutput bool
}

// Service parses resumes and answers questions about them.
type Service struct {
	llm         LLM
	store       *Store
	broadcaster Broadcaster
	prompts     *config.Prompts
	opts        Options
	parseFormat *upstream.ResponseFormat
	logger      *logger.Logger
}

func NewService(llm LLM, store *Store, b Broadcaster, prompts *config.Prompts, opts Options, log *logger.Logger) *Service {
	if opts.ParseTimeout <= 0 {
		opts.ParseTimeout = 30 * time.Second
	}
	if opts.ChatCutoff <= 0 {
		opts.ChatCutoff = 30 * time.Second
	}
	svc := &Service{
		llm:         llm,
		store:       store,
		broadcaster: b,
		prompts:     prompts,
		opts:        opts,
		logger:      log.WithComponent("resume"),
	}
	if opts.StructuredOutput {
		format, err := upstream.JSONSchemaFormat("resume_profile", &Data{})
		if err != nil {
			svc.logger.Warn("resume profile schema unavailable", slog.String("error", err.Error()))
		}
		svc.parseFormat = format
	}
	return svc
}

// ParseResult is the response of the parse endpoints.
type ParseResult struct {
	Success    bool    `json:"success"`
	SessionID  string  `json:"sessionId"`
	ResumeData *Data   `json:"resumeData"`
	Summary    Summary `json:"summary"`
}

// ParseAndStore validates text, extracts its profile and stores both under
// a new session id. source is SourceFile or SourceText.
func (s *Service) ParseAndStore(ctx context.Context, text, source string) (*ParseResult, error) {
	switch source {
	case SourceText:
		if text == "" {
			return nil, apierrors.NewValidationError("Resume text is required")
		}
		if len(strings.TrimSpace(text)) < minTextResumeLen {
			return nil, apierrors.NewValidationError("Resume text is too short. Please provide more details.")
		}
	default:
		if len(strings.TrimSpace(text)) < minFileResumeLen {
			return nil, apierrors.NewValidationError("Resume file appears to be empty or too short")
		}
	}

	var data *Data
	err := s.logger.LogOperation(ctx, "resume_parse", func() error {
		var perr error
		data, perr = s.Parse(ctx, text)
		return perr
	})
	if err != nil {
		return nil, err
	}

	id := NewSessionID(source)
	s.store.Put(id, &Record{
		Data:      data,
		FullText:  text,
		Source:    source,
		CreatedAt: time.Now(),
	})

	s.logger.WithContext(ctx).Info("resume parsed",
		slog.String("session_id", id),
		slog.String("source", source),
		slog.Int("length", len(text)))

	return &ParseResult{
		Success:    true,
		SessionID:  id,
		ResumeData: data,
		Summary:    data.Summarize(),
	}, nil
}

// Parse asks the model for a structured profile. Output that does not parse
// yields DefaultData; upstream failures are returned.
func (s *Service) Parse(ctx context.Context, text string) (*Data, error) {
	user, err := s.prompts.Render("resume_parse_user", map[string]string{
		"Resume": truncate(text, parsePromptChars),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ParseTimeout)
	defer cancel()

	content, err := s.llm.Complete(ctx, upstream.ChatRequest{
		Messages: []upstream.Message{
			{Role: "system", Content: s.prompts.ResumeParseSystem},
			{Role: "user", Content: user},
		},
		MaxTokens:      parseMaxTokens,
		Temperature:    parseTemperature,
		ResponseFormat: s.parseFormat,
		Operation:      "resume_parse",
	})
	if err != nil {
		return nil, fmt.Errorf("resume parse: %w", err)
	}

	data, err := decodeData(content)
	if err != nil {
		s.logger.WithContext(ctx).Warn("could not parse resume profile, using defaults",
			slog.String("error", err.Error()),
			slog.Int("length", len(content)))
		return DefaultData(), nil
	}
	return data, nil
}

func decodeData(content string) (*Data, error) {
	var d Data
	err := json.Unmarshal([]byte(strings.TrimSpace(content)), &d)
	if err != nil {
		m := fencedBlock.FindStringSubmatch(content)
		if m == nil {
			return nil, err
		}
		if err = json.Unmarshal([]byte(m[1]), &d); err != nil {
			return nil, err
		}
	}
	d.normalize()
	return &d, nil
}

// NewSessionID returns "resume_<ms>_<suffix>" for files and
// "resume_text_<ms>_<suffix>" for pasted text.
func NewSessionID(source string) string {
	prefix := "resume"
	if source == SourceText {
		prefix = "resume_text"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
