package streaming

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
	"github.com/skillspeak/interview-proxy/internal/logger"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	readBufferSize = 4 * 1024
	// maxPendingBytes bounds a single unterminated line or an unframed body.
	maxPendingBytes = 1024 * 1024
)

// ErrStreamTruncated is reported when the upstream body ends before [DONE].
var ErrStreamTruncated = errors.New("upstream stream ended before completion")

// ItemKind tags a decoded Item.
type ItemKind int

const (
	ItemChunk ItemKind = iota
	ItemComplete
	ItemError
)

// Item is one decoder output. The last item of every sequence is either
// ItemComplete or ItemError.
type Item struct {
	Kind ItemKind
	Text string
	Err  error
}

type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

// Decode reads an OpenAI-compatible event stream from r and yields text
// deltas with control tokens stripped. Reads happen lazily as the caller
// pulls; stopping the range loop stops reading. Closing r (for example by
// cancelling the request context) surfaces as an ItemError.
func Decode(r io.Reader, log *logger.Logger) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		d := &decoder{log: log}
		buf := make([]byte, readBufferSize)

		for {
			n, readErr := r.Read(buf)
			if n > 0 {
				d.pending = append(d.pending, buf[:n]...)
				d.drain(false)
			}

			if readErr != nil && !d.done {
				if errors.Is(readErr, io.EOF) {
					d.drain(true)
					d.emit(Item{Kind: ItemError, Err: ErrStreamTruncated})
				} else {
					d.emit(Item{Kind: ItemError, Err: &apierrors.UpstreamError{
						Message: "stream read failed: " + readErr.Error(),
						Err:     readErr,
					}})
				}
			}

			for _, item := range d.out {
				if !yield(item) {
					return
				}
			}
			d.out = d.out[:0]

			if d.done {
				return
			}
		}
	}
}

type decoder struct {
	log     *logger.Logger
	pending []byte
	out     []Item
	done    bool
	// framed is set once a data: line has been seen; unframed error bodies
	// are only recognised before that.
	framed bool
}

// emit queues an item. Nothing is queued after a terminal item.
func (d *decoder) emit(item Item) {
	if d.done {
		return
	}
	d.out = append(d.out, item)
	if item.Kind != ItemChunk {
		d.done = true
	}
}

// drain consumes every complete line in pending. At EOF the unterminated
// tail is treated as a final line.
func (d *decoder) drain(atEOF bool) {
	if !d.framed {
		wait, err := d.unframedError(atEOF)
		if err != nil {
			d.emit(Item{Kind: ItemError, Err: err})
			return
		}
		if wait {
			return
		}
	}

	for !d.done {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := d.pending[:idx]
		d.pending = d.pending[idx+1:]
		d.handleLine(line)
	}

	if d.done {
		return
	}

	if atEOF && len(d.pending) > 0 {
		line := d.pending
		d.pending = nil
		d.handleLine(line)
		return
	}

	if len(d.pending) > maxPendingBytes {
		d.emit(Item{Kind: ItemError, Err: &apierrors.UpstreamError{Message: "stream line exceeds buffer limit"}})
	}
}

// unframedError detects a bare JSON error body sent instead of an event
// stream. wait is true while the body looks like an incomplete JSON object.
func (d *decoder) unframedError(atEOF bool) (wait bool, err error) {
	trimmed := bytes.TrimSpace(d.pending)
	if len(trimmed) == 0 || trimmed[0] != '{' || hasDataLine(d.pending) {
		return false, nil
	}

	if !json.Valid(trimmed) {
		return !atEOF && len(trimmed) <= maxPendingBytes, nil
	}

	var env errorEnvelope
	if jerr := json.Unmarshal(trimmed, &env); jerr != nil || !hasValue(env.Error) {
		return false, nil
	}

	d.pending = nil
	return false, providerError(env.Error)
}

// hasDataLine reports whether any line of b starts with the data: field.
func hasDataLine(b []byte) bool {
	for line := range bytes.Lines(b) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte(dataPrefix)) {
			return true
		}
	}
	return false
}

// handleLine interprets one line of the event stream.
func (d *decoder) handleLine(raw []byte) {
	line := bytes.TrimSuffix(raw, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		// Comments (": OPENROUTER PROCESSING"), blank separators, event: lines.
		return
	}
	d.framed = true

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return
	}
	if string(payload) == doneSentinel {
		d.emit(Item{Kind: ItemComplete})
		return
	}

	var frame streamFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		if d.log != nil {
			d.log.Warn("failed to parse streaming chunk",
				slog.String("error", err.Error()),
				slog.Int("payload_len", len(payload)))
		}
		return
	}

	if hasValue(frame.Error) {
		d.emit(Item{Kind: ItemError, Err: providerError(frame.Error)})
		return
	}
	if len(frame.Choices) == 0 {
		return
	}

	if delta := StripControlTokens(frame.Choices[0].Delta.Content); delta != "" {
		d.emit(Item{Kind: ItemChunk, Text: delta})
	}
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// providerError converts an OpenAI/OpenRouter "error" value (object or
// string) into an UpstreamError.
func providerError(raw json.RawMessage) error {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return &apierrors.UpstreamError{Message: msg}
	}

	var body struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return &apierrors.UpstreamError{Message: "API error occurred"}
	}

	uerr := &apierrors.UpstreamError{Message: body.Message}
	if uerr.Message == "" {
		uerr.Message = "API error occurred"
	}
	if code, ok := body.Code.(float64); ok && code >= 400 && code < 600 {
		uerr.Status = int(code)
	}
	return uerr
}

func (k ItemKind) String() string {
	switch k {
	case ItemChunk:
		return "chunk"
	case ItemComplete:
		return "complete"
	case ItemError:
		return "error"
	}
	return fmt.Sprintf("ItemKind(%d)", int(k))
}
