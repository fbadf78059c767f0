package resume

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/streaming"
	"github.com/skillspeak/interview-proxy/internal/upstream"
)

const (
	chatTemperature      = 0.7
	chatTopP             = 0.95
	chatMaxTokens        = 500
	chatMaxTokensDetail  = 1000
	chatResumeChars      = 2000
	chatHistoryTurns     = 10
	chatPromptTechCount  = 10
	chatPromptProjectCap = 3

	// StreamErrorMessage is sent to the caller when the stream fails.
	StreamErrorMessage = "Stream error"
)

// ChatRequest is the body of /api/chat-with-resume. ResumeData and
// ResumeText let a client continue after its stored session expired.
type ChatRequest struct {
	Message             string             `json:"message"`
	SessionID           string             `json:"sessionId"`
	Mode                string             `json:"mode"`
	ResumeData          *Data              `json:"resumeData,omitempty"`
	ResumeText          string             `json:"resumeText,omitempty"`
	ConversationHistory []upstream.Message `json:"conversationHistory,omitempty"`
}

// Events written to the caller's SSE response.
type (
	ChunkEvent struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	CompleteEvent struct {
		Type    string  `json:"type"`
		Content string  `json:"content"`
		BasedOn BasedOn `json:"basedOn"`
	}
	ErrorEvent struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
)

// Emit writes one event to the caller. It is called from a single goroutine.
type Emit func(event any) error

type promptProfile struct {
	Experience     FlexString
	Role           string
	Technologies   []string
	Domain         []string
	Degrees        []string
	Certifications []string
	Projects       []Project
	ResumeText     string
	Detailed       bool
}

// resolve finds the resume for a request: the stored session first, then the
// inline copy the client sent.
func (s *Service) resolve(req ChatRequest) (*Record, error) {
	if rec, ok := s.store.Get(req.SessionID); ok {
		return rec, nil
	}
	if req.ResumeData == nil && strings.TrimSpace(req.ResumeText) == "" {
		return nil, apierrors.NewValidationError("Invalid or expired resume session")
	}
	data := req.ResumeData
	if data == nil {
		data = DefaultData()
	}
	data.normalize()
	return &Record{Data: data, FullText: req.ResumeText, Source: "inline"}, nil
}

// Chat answers one question grounded in the resume, streaming chunks to emit
// and, when identity is set, to the identity's listeners. Errors returned
// before the first emit mean nothing was written to the caller.
//
// The turn is bounded by ChatCutoff. When the cutoff passes, or the stream
// ends without its sentinel, the turn completes with the partial text.
func (s *Service) Chat(ctx context.Context, identity string, req ChatRequest, emit Emit) error {
	if strings.TrimSpace(req.Message) == "" {
		return apierrors.NewValidationError("Message is required")
	}
	rec, err := s.resolve(req)
	if err != nil {
		return err
	}
	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{"session_id": req.SessionID})

	system, err := s.systemPrompt(rec, req.Mode == "detailed")
	if err != nil {
		return err
	}

	messages := []upstream.Message{{Role: "system", Content: system}}
	messages = append(messages, recentHistory(req.ConversationHistory)...)
	messages = append(messages, upstream.Message{Role: "user", Content: req.Message})

	maxTokens := chatMaxTokens
	if req.Mode == "detailed" {
		maxTokens = chatMaxTokensDetail
	}

	s.broadcast(streaming.UserEcho(req.Message), identity)

	cutoff, cancel := context.WithTimeout(ctx, s.opts.ChatCutoff)
	defer cancel()

	body, err := s.llm.Stream(cutoff, upstream.ChatRequest{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: chatTemperature,
		TopP:        chatTopP,
		Operation:   "resume_chat",
	})
	if err != nil {
		if cutoff.Err() != nil && ctx.Err() == nil {
			log.Warn("resume chat cutoff reached before upstream responded")
			return s.finish(rec, "", identity, emit)
		}
		s.broadcast(streaming.Failure(apierrors.MessageOf(err)), identity)
		return err
	}
	defer body.Close()

	var assembled strings.Builder
	for item := range streaming.Decode(body, log) {
		switch item.Kind {
		case streaming.ItemChunk:
			assembled.WriteString(item.Text)
			if err := emit(ChunkEvent{Type: "chunk", Content: item.Text}); err != nil {
				log.Info("resume chat caller went away", slog.String("error", err.Error()))
				s.broadcast(streaming.Failure(StreamErrorMessage), identity)
				return err
			}
			s.broadcast(streaming.Chunk(item.Text), identity)

		case streaming.ItemError:
			if errors.Is(item.Err, streaming.ErrStreamTruncated) || (cutoff.Err() != nil && ctx.Err() == nil) {
				log.Warn("resume chat ended early, completing with partial text",
					slog.Int("length", assembled.Len()),
					slog.String("reason", item.Err.Error()))
				return s.finish(rec, assembled.String(), identity, emit)
			}
			log.Error("resume chat stream failed", slog.String("error", item.Err.Error()))
			s.broadcast(streaming.Failure(StreamErrorMessage), identity)
			if err := emit(ErrorEvent{Type: "error", Message: StreamErrorMessage}); err != nil {
				return err
			}
			return item.Err
		}
	}

	return s.finish(rec, assembled.String(), identity, emit)
}

// finish sends the terminal complete event.
func (s *Service) finish(rec *Record, text, identity string, emit Emit) error {
	final := strings.TrimSpace(streaming.StripControlTokens(text))
	if final == "" {
		final = s.prompts.EmptyReply
	}
	s.broadcast(streaming.Complete(final), identity)
	return emit(CompleteEvent{Type: "complete", Content: final, BasedOn: rec.Data.basedOn()})
}

// broadcast only reaches listeners when the caller named an identity.
func (s *Service) broadcast(ev streaming.Event, identity string) {
	if identity == "" || s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(ev, identity)
}

func (s *Service) systemPrompt(rec *Record, detailed bool) (string, error) {
	d := rec.Data

	tech := append(append(append([]string{}, d.Technologies.Languages...), d.Technologies.Frameworks...), d.Technologies.Tools...)
	if len(tech) > chatPromptTechCount {
		tech = tech[:chatPromptTechCount]
	}
	projects := d.Projects
	if len(projects) > chatPromptProjectCap {
		projects = projects[:chatPromptProjectCap]
	}
	role := d.Experience.CurrentRole
	if role == "" {
		role = notSpecified
	}
	text := rec.FullText
	if len([]rune(text)) > chatResumeChars {
		text = truncate(text, chatResumeChars) + "..."
	}

	return s.prompts.Render("resume_chat_system", promptProfile{
		Experience:     d.Experience.TotalYears.orNotSpecified(),
		Role:           role,
		Technologies:   tech,
		Domain:         d.Domain,
		Degrees:        d.Education.Degrees,
		Certifications: d.Education.Certifications,
		Projects:       projects,
		ResumeText:     text,
		Detailed:       detailed,
	})
}

// recentHistory keeps the last user and assistant turns with content.
func recentHistory(history []upstream.Message) []upstream.Message {
	var turns []upstream.Message
	for _, m := range history {
		if (m.Role == "user" || m.Role == "assistant") && strings.TrimSpace(m.Content) != "" {
			turns = append(turns, m)
		}
	}
	if len(turns) > chatHistoryTurns {
		turns = turns[len(turns)-chatHistoryTurns:]
	}
	return turns
}
