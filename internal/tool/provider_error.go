package tool

import "fmt"

// ProviderError reports a downstream provider failure in a form the
// execution engine can map onto the invocation error taxonomy. Handlers
// must wrap every transport or provider error in a ProviderError rather
// than returning it raw.
type ProviderError struct {
	Provider string
	// StatusCode is the provider's HTTP status, or 0 for transport-level
	// failures (timeout, connection refused, malformed response).
	StatusCode int
	// Unauthorized marks responses where the provider rejected the
	// credential. The engine treats these as auth failures, not
	// integration failures.
	Unauthorized bool
	Err          error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: provider returned %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
