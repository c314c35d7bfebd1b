package schema

import (
	"fmt"
	"strings"
)

// ParameterType is the closed set of types an action parameter may declare.
// It governs both runtime validation and the JSON Schema shown to the model.
type ParameterType string

const (
	TypeString   ParameterType = "string"
	TypeInteger  ParameterType = "integer"
	TypeNumber   ParameterType = "number"
	TypeBoolean  ParameterType = "boolean"
	TypeArray    ParameterType = "array"
	TypeObject   ParameterType = "object"
	TypeDatetime ParameterType = "datetime"
)

// Valid reports whether t is one of the declared parameter types.
func (t ParameterType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeDatetime:
		return true
	}
	return false
}

// numeric reports whether min/max bounds are meaningful for this type.
func (t ParameterType) numeric() bool {
	return t == TypeInteger || t == TypeNumber
}

// Parameter describes one input to an action.
type Parameter struct {
	Name        string
	Type        ParameterType
	Description string
	Required    bool

	// Default is substituted when the argument is absent and Required is false.
	// Must be nil when Required is true.
	Default any

	// Enum, when non-empty, is the closed set of allowed values.
	Enum []any

	// MinValue/MaxValue bound numeric types. Nil means unbounded.
	MinValue *float64
	MaxValue *float64
}

// Action is one capability unit exposed by a tool. Defined statically by the
// tool implementation at process start and immutable thereafter.
type Action struct {
	Name        string
	Description string
	Parameters  []Parameter
	Returns     string
}

// Check verifies the definition-time invariants of a parameter:
// required parameters carry no default, defaults are type-compatible,
// enum defaults are enum members, and bounds only appear on numeric types.
func (p Parameter) Check() error {
	if p.Name == "" {
		return fmt.Errorf("parameter has empty name")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type)
	}
	if p.Required && p.Default != nil {
		return fmt.Errorf("parameter %q: required parameter must not declare a default", p.Name)
	}
	if (p.MinValue != nil || p.MaxValue != nil) && !p.Type.numeric() {
		return fmt.Errorf("parameter %q: min/max bounds require a numeric type, got %q", p.Name, p.Type)
	}
	if p.MinValue != nil && p.MaxValue != nil && *p.MinValue > *p.MaxValue {
		return fmt.Errorf("parameter %q: min_value %v exceeds max_value %v", p.Name, *p.MinValue, *p.MaxValue)
	}
	if p.Default != nil {
		if issue := p.validatePresent(p.Default); issue != nil {
			return fmt.Errorf("parameter %q: default %v: %s", p.Name, p.Default, issue.Detail)
		}
	}
	return nil
}

// Check verifies the definition-time invariants of an action: a non-empty
// name, unique parameter names, and valid parameter definitions.
func (a Action) Check() error {
	if a.Name == "" {
		return fmt.Errorf("action has empty name")
	}
	seen := make(map[string]struct{}, len(a.Parameters))
	for _, p := range a.Parameters {
		if err := p.Check(); err != nil {
			return fmt.Errorf("action %q: %w", a.Name, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("action %q: duplicate parameter %q", a.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Param returns the parameter named name, or false if the action does not
// declare it.
func (a Action) Param(name string) (Parameter, bool) {
	for _, p := range a.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// enumString renders the enum set for error details.
func enumString(enum []any) string {
	parts := make([]string, len(enum))
	for i, v := range enum {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ", ")
}
