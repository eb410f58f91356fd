// Package fault holds the error classes shared by every engine. Specific
// sentinels elsewhere wrap exactly one of these so callers can classify a
// failure with errors.Is without knowing which component raised it.
package fault

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrInput marks a missing or invalid caller-supplied field.
	ErrInput = errors.New("invalid input")
	// ErrUpstreamProtocol marks a model response that ignored the required contract.
	ErrUpstreamProtocol = errors.New("model did not follow the required contract")
	// ErrUpstreamContent marks an empty model response where content was required.
	ErrUpstreamContent = errors.New("model returned no content")
	// ErrToolExecution marks an unknown, denied or failing tool call.
	ErrToolExecution = errors.New("tool execution failed")
	// ErrLoopExceeded marks a tool loop that hit its turn bound.
	ErrLoopExceeded = errors.New("tool loop exceeded maximum turns")
)

// Status maps an error to the HTTP status a caller should see.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Message returns a caller-safe description of err. Classified errors carry
// messages built from our own sentinels; anything else may contain provider
// detail and is replaced by a generic message.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput),
		errors.Is(err, ErrUpstreamProtocol),
		errors.Is(err, ErrUpstreamContent),
		errors.Is(err, ErrToolExecution),
		errors.Is(err, ErrLoopExceeded):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	default:
		return "failed to process request"
	}
}
