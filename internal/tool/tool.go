package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxlane/actions/internal/schema"
)

// AuthType declares how an integration obtains credentials.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthOAuth2 AuthType = "oauth2"
	AuthAPIKey AuthType = "api_key"
)

// AuthRequirements declares an integration's authorization needs.
type AuthRequirements struct {
	Required bool
	Type     AuthType

	// Params carries provider-specific flow material (scopes, authorize URL,
	// key label) consumed by the platform's generic auth flow. Never secrets.
	Params map[string]string
}

// Invocation is the per-call material the execution engine injects into a
// tool's handler. Secrets holds the decrypted sensitive config and exists
// only for the duration of the call.
type Invocation struct {
	Action  string
	Config  map[string]any
	Secrets map[string]string
	Args    map[string]any
}

// Handler performs the integration-specific work for one action. Arguments
// arrive already validated against the action's parameter schema.
type Handler func(ctx context.Context, inv Invocation) (any, error)

// Tool is the capability contract each integration implements: identity,
// config shape, auth requirements, declared actions, and a single execution
// entry point. One instance exists per integration type; implementations
// hold no per-call state outside the injected Invocation.
type Tool interface {
	Name() string
	Description() string
	ConfigSchema() []schema.Parameter
	Auth() AuthRequirements
	Actions() []schema.Action

	// Execute routes inv.Action to the owning handler. Action names form a
	// closed set over Actions(); undeclared names fail with ErrUnknownAction.
	Execute(ctx context.Context, inv Invocation) (any, error)
}

// ErrUnknownAction is returned when an invocation names an action the tool
// does not declare. Reaching it indicates a registry/tool mismatch bug.
var ErrUnknownAction = errors.New("unknown action")

// Definition is the declarative half of a tool.
type Definition struct {
	Name         string
	Description  string
	ConfigSchema []schema.Parameter
	Auth         AuthRequirements
	Actions      []schema.Action
}

// HandlerMap binds action names to handlers. Tools dispatch through it
// instead of branching on the action string, so an undeclared action can
// never fall through to another action's logic.
type HandlerMap map[string]Handler

// Base implements Tool from a Definition and a HandlerMap.
type Base struct {
	def      Definition
	handlers HandlerMap
}

// New builds a tool from its definition and handlers, verifying the
// definition invariants and that the handler map covers the declared
// actions exactly (every action has a handler, no handler is orphaned).
func New(def Definition, handlers HandlerMap) (*Base, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("tool has empty name")
	}
	if def.Auth.Required && def.Auth.Type == AuthNone {
		return nil, fmt.Errorf("tool %q: requires auth but declares auth type none", def.Name)
	}
	for _, p := range def.ConfigSchema {
		if err := p.Check(); err != nil {
			return nil, fmt.Errorf("tool %q: config schema: %w", def.Name, err)
		}
	}

	seen := make(map[string]struct{}, len(def.Actions))
	for _, a := range def.Actions {
		if err := a.Check(); err != nil {
			return nil, fmt.Errorf("tool %q: %w", def.Name, err)
		}
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("tool %q: duplicate action %q", def.Name, a.Name)
		}
		seen[a.Name] = struct{}{}
		if _, ok := handlers[a.Name]; !ok {
			return nil, fmt.Errorf("tool %q: action %q has no handler", def.Name, a.Name)
		}
	}
	for name := range handlers {
		if _, declared := seen[name]; !declared {
			return nil, fmt.Errorf("tool %q: handler %q has no declared action", def.Name, name)
		}
	}

	return &Base{def: def, handlers: handlers}, nil
}

// MustNew is New for static tool construction at process start.
func MustNew(def Definition, handlers HandlerMap) *Base {
	t, err := New(def, handlers)
	if err != nil {
		panic(err)
	}
	return t
}

func (b *Base) Name() string                    { return b.def.Name }
func (b *Base) Description() string             { return b.def.Description }
func (b *Base) ConfigSchema() []schema.Parameter { return b.def.ConfigSchema }
func (b *Base) Auth() AuthRequirements          { return b.def.Auth }

// Actions returns a copy so callers cannot mutate the registered set.
func (b *Base) Actions() []schema.Action {
	out := make([]schema.Action, len(b.def.Actions))
	copy(out, b.def.Actions)
	return out
}

func (b *Base) Execute(ctx context.Context, inv Invocation) (any, error) {
	h, ok := b.handlers[inv.Action]
	if !ok {
		return nil, fmt.Errorf("tool %q: %w: %q", b.def.Name, ErrUnknownAction, inv.Action)
	}
	return h(ctx, inv)
}
