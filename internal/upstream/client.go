package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/skillspeak/interview-proxy/internal/config"
	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/metrics"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Referer string
	Title   string

	// Transport defaults to a pooled transport from NewTransport.
	Transport http.RoundTripper
}

// Client talks to an OpenAI-compatible chat completions API (OpenRouter).
// Timeouts come from the caller's context; the client sets none of its own
// because streaming generations can run for minutes.
type Client struct {
	opts   Options
	http   *http.Client
	logger *logger.Logger
}

// NewTransport builds the pooled transport used for all upstream calls.
func NewTransport(cfg *config.Config) *http.Transport {
	return &http.Transport{
		MaxIdleConns:        cfg.ProxyMaxIdleConns,
		MaxIdleConnsPerHost: cfg.ProxyMaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.ProxyMaxConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.ProxyIdleConnTimeout) * time.Second,
		DisableKeepAlives:   false,
		// Compressed SSE would be buffered by the gzip reader.
		DisableCompression: true,
		ForceAttemptHTTP2:  true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   30 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient creates a client from the service configuration.
func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	return New(Options{
		BaseURL:   cfg.OpenRouterBaseURL,
		APIKey:    cfg.OpenRouterAPIKey,
		Model:     cfg.OpenRouterModel,
		Referer:   cfg.OpenRouterReferer,
		Title:     cfg.OpenRouterTitle,
		Transport: NewTransport(cfg),
	}, log)
}

func New(opts Options, log *logger.Logger) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	return &Client{
		opts:   opts,
		http:   &http.Client{Transport: opts.Transport},
		logger: log.WithComponent("openrouter"),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.opts.Model }

// Stream issues a streaming completion and returns the event-stream body.
// The caller must close it. Cancelling ctx aborts the read.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true
	start := time.Now()

	resp, err := c.do(ctx, req)
	if err != nil {
		c.observe(req, start, "error")
		return nil, err
	}
	c.observe(req, start, "ok")
	return resp.Body, nil
}

// Complete issues a non-streaming completion and returns the first choice's
// content.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	req.Stream = false
	start := time.Now()

	resp, err := c.do(ctx, req)
	if err != nil {
		c.observe(req, start, "error")
		return "", err
	}
	defer resp.Body.Close()

	var completion ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		c.observe(req, start, "error")
		return "", &apierrors.UpstreamError{Message: "invalid completion response", Err: err}
	}
	if len(completion.Choices) == 0 {
		c.observe(req, start, "error")
		return "", &apierrors.UpstreamError{Message: "No response from AI"}
	}

	c.observe(req, start, "ok")
	return completion.Choices[0].Message.Content, nil
}

func (c *Client) do(ctx context.Context, req ChatRequest) (*http.Response, error) {
	if req.Model == "" {
		req.Model = c.opts.Model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.opts.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.opts.Referer)
	}
	if c.opts.Title != "" {
		httpReq.Header.Set("X-Title", c.opts.Title)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	log := c.logger.WithContext(ctx)
	log.Debug("upstream request",
		slog.String("operation", req.Operation),
		slog.String("model", req.Model),
		slog.Int("messages", len(req.Messages)),
		slog.Bool("stream", req.Stream))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &apierrors.UpstreamError{Message: "failed to reach AI service: " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := errorMessage(raw, resp.StatusCode)
		log.Warn("upstream returned error status",
			slog.String("operation", req.Operation),
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg))
		return nil, &apierrors.UpstreamError{Status: resp.StatusCode, Message: msg}
	}

	return resp, nil
}

func (c *Client) observe(req ChatRequest, start time.Time, outcome string) {
	op := req.Operation
	if op == "" {
		op = "unknown"
	}
	metrics.UpstreamLatency.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// errorMessage extracts the provider's message from an error body in either
// {"error":{"message":...}} or {"error":"..."} form.
func errorMessage(raw []byte, status int) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return fmt.Sprintf("OpenRouter API returned status %d", status)
}
