// Package registry builds, per agent, the set of independently callable
// actions exposed to the LLM runtime, and resolves an exposed name back to
// its owning (tool, action, binding) triple for dispatch.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/voxlane/actions/internal/binding"
	"github.com/voxlane/actions/internal/schema"
	"github.com/voxlane/actions/internal/tool"
)

// ExposedAction is the per-action binding record behind one exposed
// callable. It is a plain value: the function factory copies it instead of
// capturing a shared loop variable.
type ExposedAction struct {
	// Name is the deterministic exposed function name, derived from
	// (tool name, action name).
	Name       string
	ToolName   string
	ActionName string
	BindingID  string
	AgentID    string
	Action     schema.Action
}

// Declaration is the structured description handed to the LLM runtime's
// function-calling mechanism. Types are explicit; nothing is inferred from
// prose.
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Returns     string         `json:"returns,omitempty"`
}

// Declaration renders the exposed action's function-calling metadata.
func (e ExposedAction) Declaration() Declaration {
	return Declaration{
		Name:        e.Name,
		Description: e.Action.Description,
		Parameters:  e.Action.ParametersSchema(),
		Returns:     e.Action.Returns,
	}
}

// ExposedName derives the exposed function name for a (tool, action) pair:
// lowercase, with every run of non [a-z0-9] characters collapsed to one
// underscore. The derivation is deterministic so the same pair always maps
// to the same name.
func ExposedName(toolName, actionName string) string {
	return normalize(toolName) + "_" + normalize(actionName)
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// Registry is the immutable set of exposed actions for one agent.
type Registry struct {
	agentID string
	actions map[string]ExposedAction
	order   []string
}

// Build constructs the registry for one agent from its bindings and the
// tool catalog. Disabled bindings contribute nothing; a binding's disabled
// actions are not exposed at all. Build fails fast when a binding
// references an unregistered tool, when a disabled action is not declared
// by the tool, or when two bindings would expose the same function name.
func Build(agentID string, bindings []*binding.Binding, catalog *tool.Catalog) (*Registry, error) {
	r := &Registry{
		agentID: agentID,
		actions: make(map[string]ExposedAction),
	}

	for _, b := range bindings {
		if !b.IsEnabled {
			continue
		}
		t, ok := catalog.Get(b.ToolName)
		if !ok {
			return nil, fmt.Errorf("registry: agent %s: binding %s references unknown tool %q", agentID, b.ID, b.ToolName)
		}

		actions := t.Actions()
		declared := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			declared[a.Name] = struct{}{}
		}
		for _, d := range b.DisabledActions {
			if _, ok := declared[d]; !ok {
				return nil, fmt.Errorf("registry: agent %s: binding %s disables action %q that tool %q does not declare", agentID, b.ID, d, b.ToolName)
			}
		}

		for _, a := range actions {
			if b.ActionDisabled(a.Name) {
				continue
			}
			exposed := ExposedAction{
				Name:       ExposedName(t.Name(), a.Name),
				ToolName:   t.Name(),
				ActionName: a.Name,
				BindingID:  b.ID,
				AgentID:    agentID,
				Action:     a,
			}
			if prev, collision := r.actions[exposed.Name]; collision {
				return nil, fmt.Errorf("registry: agent %s: exposed name %q collides between bindings %s and %s", agentID, exposed.Name, prev.BindingID, b.ID)
			}
			if err := compileExport(exposed); err != nil {
				return nil, fmt.Errorf("registry: agent %s: %w", agentID, err)
			}
			r.actions[exposed.Name] = exposed
			r.order = append(r.order, exposed.Name)
		}
	}

	return r, nil
}

// compileExport verifies the exported parameter schema is well-formed JSON
// Schema, so a malformed export fails at build time instead of confusing
// the model at call time.
func compileExport(e ExposedAction) error {
	raw, err := json.Marshal(e.Action.ParametersSchema())
	if err != nil {
		return fmt.Errorf("action %q: schema export: %w", e.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("action %q: schema export: %w", e.Name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(e.Name+".json", doc); err != nil {
		return fmt.Errorf("action %q: schema export: %w", e.Name, err)
	}
	if _, err := c.Compile(e.Name + ".json"); err != nil {
		return fmt.Errorf("action %q: schema export: %w", e.Name, err)
	}
	return nil
}

// Resolve maps an exposed function name back to its action record.
func (r *Registry) Resolve(name string) (ExposedAction, bool) {
	e, ok := r.actions[name]
	return e, ok
}

// List returns all exposed actions in registration order.
func (r *Registry) List() []ExposedAction {
	out := make([]ExposedAction, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actions[name])
	}
	return out
}

// Declarations returns the function-calling metadata for every exposed
// action, in registration order.
func (r *Registry) Declarations() []Declaration {
	out := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actions[name].Declaration())
	}
	return out
}

// Executor is the execution engine as seen by exposed callables.
type Executor interface {
	Execute(ctx context.Context, toolName, actionName, bindingID string, args map[string]any) (any, error)
}

// Callable is one independently invokable exposed action.
type Callable func(ctx context.Context, args map[string]any) (any, error)

// Callables materializes one callable per exposed action. Each closure is
// built from its own ExposedAction copy passed by value into the factory.
func (r *Registry) Callables(exec Executor) map[string]Callable {
	out := make(map[string]Callable, len(r.actions))
	for name, e := range r.actions {
		out[name] = makeCallable(e, exec)
	}
	return out
}

func makeCallable(e ExposedAction, exec Executor) Callable {
	return func(ctx context.Context, args map[string]any) (any, error) {
		return exec.Execute(ctx, e.ToolName, e.ActionName, e.BindingID, args)
	}
}
