package interview

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/skillspeak/interview-proxy/internal/upstream"
)

const (
	answerMaxTokens   = 500
	answerTemperature = 0.7

	// FailedAnswer fills the slot of a question whose answer could not be generated.
	FailedAnswer = "Answer generation failed. Please try again."
)

// Question is one generated interview question. Only the fields used for
// answering are decoded.
type Question struct {
	Question  string `json:"question"`
	Reasoning string `json:"reasoning,omitempty"`
	Category  string `json:"category,omitempty"`
	FocusArea string `json:"focusArea,omitempty"`
}

// Answer is a model answer for one question.
type Answer struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Category  string `json:"category,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// AnswersRequest is the body of /api/generate-answers.
type AnswersRequest struct {
	Questions          []Question `json:"questions"`
	ResumeText         string     `json:"resumeText,omitempty"`
	JobDescriptionText string     `json:"jobDescriptionText,omitempty"`
}

// Progress events streamed while answers are generated.
type (
	ProgressEvent struct {
		Type      string `json:"type"`
		Completed int    `json:"completed"`
		Total     int    `json:"total"`
	}
	AnswerEvent struct {
		Type   string `json:"type"`
		Index  int    `json:"index"`
		Answer Answer `json:"answer"`
	}
	CompleteEvent struct {
		Type    string   `json:"type"`
		Answers []Answer `json:"answers"`
	}
	ErrorEvent struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
)

// NewErrorEvent builds the terminal failure event.
func NewErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Type: "error", Error: msg}
}

// Emit receives progress events. It is never called concurrently.
type Emit func(event any) error

// GenerateAnswers answers every question with at most Workers upstream calls
// in flight. A failed question keeps its slot with FailedAnswer. emit sees a
// progress event after every finished question and answer events in
// question order; the final complete event carries all answers. An emit error
// (the client went away) cancels the remaining work.
func (s *Service) GenerateAnswers(ctx context.Context, req AnswersRequest, emit Emit) ([]Answer, error) {
	total := len(req.Questions)
	answers := make([]Answer, total)
	done := make([]bool, total)
	log := s.logger.WithContext(ctx)

	var (
		mu        sync.Mutex
		completed int
		next      int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i, q := range req.Questions {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			a := s.answer(gctx, q, req)

			mu.Lock()
			defer mu.Unlock()

			answers[i] = a
			done[i] = true
			completed++
			if err := emit(ProgressEvent{Type: "progress", Completed: completed, Total: total}); err != nil {
				return err
			}
			for next < total && done[next] {
				if err := emit(AnswerEvent{Type: "answer", Index: next, Answer: answers[next]}); err != nil {
					return err
				}
				next++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn("answer generation stopped", slog.String("error", err.Error()), slog.Int("completed", completed))
		return nil, err
	}

	if err := emit(CompleteEvent{Type: "complete", Answers: answers}); err != nil {
		return nil, err
	}
	log.Info("answers generated", slog.Int("total", total))
	return answers, nil
}

func (s *Service) answer(ctx context.Context, q Question, req AnswersRequest) Answer {
	a := Answer{
		Question:  q.Question,
		Answer:    FailedAnswer,
		Category:  q.Category,
		Reasoning: q.Reasoning,
	}
	if a.Category == "" {
		a.Category = q.FocusArea
	}

	user, err := s.prompts.Render("answer_user", map[string]string{
		"Question":       q.Question,
		"Reasoning":      q.Reasoning,
		"Resume":         truncate(req.ResumeText, maxResumePrompt),
		"JobDescription": truncate(req.JobDescriptionText, maxJobDescPrompt),
	})
	if err != nil {
		s.logger.Error("failed to render answer prompt", slog.String("error", err.Error()))
		return a
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.AnswerTimeout)
	defer cancel()

	content, err := s.llm.Complete(ctx, upstream.ChatRequest{
		Messages: []upstream.Message{
			{Role: "system", Content: s.prompts.AnswerSystem},
			{Role: "user", Content: user},
		},
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
		Operation:   "answer",
	})
	if err != nil {
		s.logger.Warn("answer generation failed",
			slog.String("question", truncate(q.Question, 80)),
			slog.String("error", err.Error()))
		return a
	}
	if content = strings.TrimSpace(content); content != "" {
		a.Answer = content
	}
	return a
}
