package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ValidationError is a client-caused failure. It maps to 400 and never
// produces broadcast side effects.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError creates a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UpstreamError is a failure reported by the LLM provider or the transport to
// it. Status is the provider's HTTP status when one was received, 0 otherwise.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
	}
	return "upstream: " + e.Message
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status a caller should see for err.
func StatusOf(err error) int {
	var verr *ValidationError
	if stderrors.As(err, &verr) {
		return http.StatusBadRequest
	}
	var uerr *UpstreamError
	if stderrors.As(err, &uerr) && uerr.Status >= 400 {
		return uerr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the most specific user-facing message for err.
func MessageOf(err error) string {
	var verr *ValidationError
	if stderrors.As(err, &verr) {
		return verr.Message
	}
	var uerr *UpstreamError
	if stderrors.As(err, &uerr) && uerr.Message != "" {
		return uerr.Message
	}
	return err.Error()
}

// AbortWithError writes err as an APIError with the status from StatusOf.
func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusOf(err), NewAPIError(MessageOf(err), nil))
}
