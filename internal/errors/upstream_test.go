package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("messages must be an array"), http.StatusBadRequest},
		{"upstream with status", &UpstreamError{Status: 429, Message: "rate limited"}, 429},
		{"wrapped upstream", fmt.Errorf("chat: %w", &UpstreamError{Status: 502, Message: "bad gateway"}), 502},
		{"upstream transport", &UpstreamError{Message: "connection reset"}, http.StatusInternalServerError},
		{"plain", context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &UpstreamError{Status: 401, Message: "No auth credentials found"})
	if got := MessageOf(err); got != "No auth credentials found" {
		t.Errorf("MessageOf() = %q", got)
	}
	if got := MessageOf(NewValidationError("too short: %d", 3)); got != "too short: 3" {
		t.Errorf("MessageOf() = %q", got)
	}
}
