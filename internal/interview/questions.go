// Package interview generates interview question sets and model answers.
package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/skillspeak/interview-proxy/internal/config"
	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/upstream"
)

const (
	minResumeLen         = 50
	minJobDescriptionLen = 20
	maxResumePrompt      = 2000
	maxJobDescPrompt     = 1500

	questionsMaxTokens   = 8000
	questionsTemperature = 0.7
	questionsTopP        = 0.95
)

// ErrQuestionsFailed covers every failure other than an upstream status.
// Handlers answer it with QuestionsFailedMessage.
var ErrQuestionsFailed = errors.New("interview question generation failed")

// QuestionsFailedMessage is the client-facing text for ErrQuestionsFailed.
const QuestionsFailedMessage = "Failed to generate interview questions. Please try again."

var (
	fencedJSON = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")
	fencedAny  = regexp.MustCompile("```\\s*([\\s\\S]*?)\\s*```")
)

// Completer runs non-streaming completions.
type Completer interface {
	Complete(ctx context.Context, req upstream.ChatRequest) (string, error)
}

// Options tunes the service.
type Options struct {
	QuestionsTimeout time.Duration
	AnswerTimeout    time.Duration
	Workers          int
	// StructuredOutput sends the QuestionSet schema as response_format.
	StructuredOutput bool
}

// Service generates questions and answers through the LLM.
type Service struct {
	llm       Completer
	prompts   *config.Prompts
	opts      Options
	logger    *logger.Logger
	setFormat *upstream.ResponseFormat
}

func NewService(llm Completer, prompts *config.Prompts, opts Options, log *logger.Logger) *Service {
	if opts.QuestionsTimeout <= 0 {
		opts.QuestionsTimeout = 60 * time.Second
	}
	if opts.AnswerTimeout <= 0 {
		opts.AnswerTimeout = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	svc := &Service{
		llm:     llm,
		prompts: prompts,
		opts:    opts,
		logger:  log.WithComponent("interview"),
	}
	if opts.StructuredOutput {
		format, err := upstream.JSONSchemaFormat("interview_question_set", &QuestionSet{})
		if err != nil {
			svc.logger.Warn("question set schema unavailable", slog.String("error", err.Error()))
		}
		svc.setFormat = format
	}
	return svc
}

// QuestionSet is the shape the model is asked to produce. Responses are
// passed through as raw JSON; the type only describes the schema.
type QuestionSet struct {
	Analysis struct {
		Role            string   `json:"role"`
		ExperienceLevel string   `json:"experienceLevel"`
		MatchingSkills  []string `json:"matchingSkills"`
		SkillGaps       []string `json:"skillGaps"`
	} `json:"analysis"`
	Questions struct {
		Basic    []GeneratedQuestion `json:"basic"`
		Advanced []GeneratedQuestion `json:"advanced"`
		Scenario []GeneratedQuestion `json:"scenario"`
	} `json:"questions"`
}

type GeneratedQuestion struct {
	Question   string `json:"question"`
	Reasoning  string `json:"reasoning"`
	FocusArea  string `json:"focusArea"`
	Difficulty int    `json:"difficulty"`
}

// QuestionsInput is the text a question set is generated from.
type QuestionsInput struct {
	Resume         string
	JobDescription string
	// ResumeFromFile selects the wording of the "too short" error.
	ResumeFromFile bool
}

// Validate checks the minimum lengths.
func (in QuestionsInput) Validate() error {
	if len(strings.TrimSpace(in.Resume)) < minResumeLen {
		if in.ResumeFromFile {
			return apierrors.NewValidationError("Resume file appears to be empty or too short")
		}
		return apierrors.NewValidationError("Resume text appears to be empty or too short")
	}
	if len(strings.TrimSpace(in.JobDescription)) < minJobDescriptionLen {
		return apierrors.NewValidationError("Job description is required and must be at least %d characters", minJobDescriptionLen)
	}
	return nil
}

// GenerateQuestions asks the model for a question set and returns the JSON
// object it produced. The object is passed through untouched so clients see
// every field the model filled in (analysis, basic/advanced/scenario lists).
func (s *Service) GenerateQuestions(ctx context.Context, in QuestionsInput) (json.RawMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	log := s.logger.WithContext(ctx)

	user, err := s.prompts.Render("questions_user", map[string]string{
		"Resume":         truncate(in.Resume, maxResumePrompt),
		"JobDescription": truncate(in.JobDescription, maxJobDescPrompt),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.QuestionsTimeout)
	defer cancel()

	content, err := s.llm.Complete(ctx, upstream.ChatRequest{
		Messages: []upstream.Message{
			{Role: "system", Content: s.prompts.QuestionsSystem},
			{Role: "user", Content: user},
		},
		MaxTokens:      questionsMaxTokens,
		Temperature:    questionsTemperature,
		TopP:           questionsTopP,
		ResponseFormat: s.setFormat,
		Operation:      "questions",
	})
	if err != nil {
		log.Error("question generation failed", slog.String("error", err.Error()))
		return nil, questionsError(err)
	}
	if strings.TrimSpace(content) == "" {
		log.Error("question generation returned empty content")
		return nil, ErrQuestionsFailed
	}

	set, err := ParseJSONObject(content)
	if err != nil {
		log.Error("could not parse question set",
			slog.String("error", err.Error()),
			slog.Int("length", len(content)))
		return nil, ErrQuestionsFailed
	}

	log.Info("question set generated",
		slog.Int("resume_len", len(in.Resume)),
		slog.Int("job_description_len", len(in.JobDescription)))
	return set, nil
}

// questionsError keeps upstream statuses and hides everything else behind
// the generic failure.
func questionsError(err error) error {
	var uerr *apierrors.UpstreamError
	if errors.As(err, &uerr) && uerr.Status != 0 {
		if uerr.Message == "" {
			uerr.Message = "API error occurred"
		}
		return uerr
	}
	return ErrQuestionsFailed
}

// ParseJSONObject extracts a JSON object from model output: the content
// itself, a ```json fenced block, or any fenced block, in that order.
func ParseJSONObject(content string) (json.RawMessage, error) {
	candidates := []string{content}
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := fencedAny.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, m[1])
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if !strings.HasPrefix(c, "{") || !json.Valid([]byte(c)) {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(c)); err != nil {
			continue
		}
		return buf.Bytes(), nil
	}
	return nil, errors.New("response is not a JSON object")
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
