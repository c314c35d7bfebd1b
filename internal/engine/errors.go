package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/voxlane/actions/internal/schema"
)

// Kind is the stable failure classification surfaced to the calling agent
// logic. Kinds are wire-stable: conversational recovery branches on them.
type Kind string

const (
	KindUnknownAction          Kind = "unknown_action"
	KindInvalidArguments       Kind = "invalid_arguments"
	KindBindingNotFound        Kind = "binding_not_found"
	KindToolDisabled           Kind = "tool_disabled"
	KindActionDisabled         Kind = "action_disabled"
	KindAuthenticationRequired Kind = "authentication_required"
	KindIntegrationError       Kind = "integration_error"
	KindInternal               Kind = "internal"
)

// Error is a kind-tagged invocation failure.
type Error struct {
	Kind    Kind
	Message string

	// Issues carries per-parameter detail for invalid_arguments, enough for
	// the caller to retry with corrected arguments.
	Issues []schema.Issue

	Err error
}

func (e *Error) Error() string {
	if e.Kind == KindInvalidArguments && len(e.Issues) > 0 {
		parts := make([]string, len(e.Issues))
		for i, issue := range e.Issues {
			parts[i] = issue.String()
		}
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(parts, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the calling agent logic may retry with backoff
// without any configuration or authorization change. Only integration
// failures qualify; the engine itself never retries them.
func (e *Error) Retryable() bool { return e.Kind == KindIntegrationError }

// AsError extracts the kind-tagged error, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
