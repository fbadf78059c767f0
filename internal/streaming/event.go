package streaming

import "encoding/json"

// EventKind tags a StreamEvent.
type EventKind int

const (
	KindUserEcho EventKind = iota
	KindChunk
	KindComplete
	KindError
)

// String returns the wire value of the "type" field.
func (k EventKind) String() string {
	switch k {
	case KindUserEcho:
		return "user"
	case KindChunk:
		return "chunk"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the unit delivered to listeners. Values are built with the
// constructors below so that role and isStreaming always agree with kind.
type Event struct {
	kind    EventKind
	content string
}

// UserEcho mirrors the caller's own turn to listeners that did not send it.
func UserEcho(content string) Event { return Event{kind: KindUserEcho, content: content} }

// Chunk carries one incremental delta.
func Chunk(delta string) Event { return Event{kind: KindChunk, content: delta} }

// Complete carries the final assembled text.
func Complete(text string) Event { return Event{kind: KindComplete, content: text} }

// Failure carries a terminal error message.
func Failure(message string) Event { return Event{kind: KindError, content: message} }

func (e Event) Kind() EventKind { return e.kind }
func (e Event) Content() string { return e.content }

// Role is "user" for echoes and "assistant" otherwise.
func (e Event) Role() string {
	if e.kind == KindUserEcho {
		return "user"
	}
	return "assistant"
}

// IsTerminal reports whether e ends a request's event sequence.
func (e Event) IsTerminal() bool {
	return e.kind == KindComplete || e.kind == KindError
}

type wireEvent struct {
	Role        string `json:"role"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	IsStreaming bool   `json:"isStreaming"`
}

// MarshalJSON renders the wire shape consumed by the browser and desktop clients.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Role:        e.Role(),
		Type:        e.kind.String(),
		Content:     e.content,
		IsStreaming: e.kind == KindChunk,
	})
}

// UnmarshalJSON accepts the wire shape. Unknown types decode as errors.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "user":
		*e = UserEcho(w.Content)
	case "chunk":
		*e = Chunk(w.Content)
	case "complete":
		*e = Complete(w.Content)
	default:
		*e = Failure(w.Content)
	}
	return nil
}
