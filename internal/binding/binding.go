package binding

import (
	"context"
	"time"

	"github.com/voxlane/actions/internal/authstate"
)

// Binding is the join entity representing "this agent uses this tool".
// Loaded from the agent_tool_bindings table.
type Binding struct {
	ID       string
	AgentID  string
	ToolName string

	// Config holds the plain, user-visible settings matching the tool's
	// config schema.
	Config map[string]any

	// SensitiveConfig is the sealed credential blob. It is carried opaquely
	// here and opened only inside the execution engine's vault.
	SensitiveConfig []byte

	DisabledActions  []string
	IsEnabled        bool
	AuthStatus       authstate.Status
	ConnectionStatus authstate.ConnectionStatus
	TokenExpiresAt   *time.Time
	UpdatedAt        time.Time
}

// ActionDisabled reports whether the named action is administratively
// excluded for this binding.
func (b *Binding) ActionDisabled(action string) bool {
	for _, a := range b.DisabledActions {
		if a == action {
			return true
		}
	}
	return false
}

// EffectiveAuthStatus resolves the dispatch-time authorization status,
// including lazily detected token expiry.
func (b *Binding) EffectiveAuthStatus(now time.Time) authstate.Status {
	return authstate.Resolve(b.AuthStatus, b.TokenExpiresAt, now)
}

// Store provides persisted bindings. Implementations must give atomic
// read-then-use semantics for Get and atomic update-on-refresh semantics
// for UpdateCredentials.
type Store interface {
	// Get returns the binding by ID, or nil if absent.
	Get(ctx context.Context, bindingID string) (*Binding, error)

	// ListByAgent returns all bindings owned by the agent, enabled or not.
	ListByAgent(ctx context.Context, agentID string) ([]*Binding, error)

	// UpdateCredentials atomically replaces the sealed credential blob and
	// the authorization fields after a successful auth flow or refresh.
	UpdateCredentials(ctx context.Context, bindingID string, sealed []byte, status authstate.Status, tokenExpiresAt *time.Time) error

	// SetAuthStatus records an authorization state change that does not
	// touch the credential blob (e.g. provider rejected the token).
	SetAuthStatus(ctx context.Context, bindingID string, status authstate.Status) error

	// Disconnect purges the sealed credential blob and returns the binding
	// to not_authenticated. The binding itself survives.
	Disconnect(ctx context.Context, bindingID string) error
}
