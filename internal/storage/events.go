package storage

import "time"

// EventWriter is the interface for writing invocation events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *InvocationEvent)
	Close()
}

// InvocationEvent is one action invocation outcome persisted for audit and
// analytics. It never carries credential material: arguments are recorded,
// sensitive config is not.
type InvocationEvent struct {
	RequestID     string
	Timestamp     time.Time
	AgentID       string
	BindingID     string
	ToolName      string
	ActionName    string
	ExposedName   string
	ArgumentsJSON string
	Outcome       string // "ok" or the error kind
	ErrorDetail   string
	AuthStatus    string // effective authorization status observed at dispatch
	Refreshed     bool   // a credential refresh ran during this invocation
	LatencyMs     float32
}
