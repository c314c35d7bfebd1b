package schema

import (
	"fmt"
	"math"
	"time"
)

// IssueKind identifies why a single argument failed validation.
type IssueKind string

const (
	IssueMissingRequired  IssueKind = "missing_required"
	IssueTypeMismatch     IssueKind = "type_mismatch"
	IssueOutOfRange       IssueKind = "out_of_range"
	IssueNotInEnum        IssueKind = "not_in_enum"
	IssueUnknownParameter IssueKind = "unknown_parameter"
)

// Issue is one per-parameter validation failure. Detail is written for the
// calling agent logic, which may retry with corrected arguments.
type Issue struct {
	Parameter string    `json:"parameter"`
	Kind      IssueKind `json:"kind"`
	Detail    string    `json:"detail"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Parameter, i.Detail)
}

// ValidateArgs checks args against the action's parameter list and returns
// the validated argument map with defaults substituted. Validation is pure:
// args is never mutated, and repeated calls with the same inputs produce
// identical outcomes. A non-empty issue slice means the arguments must not
// reach the tool's handler.
func (a Action) ValidateArgs(args map[string]any) (map[string]any, []Issue) {
	var issues []Issue
	out := make(map[string]any, len(a.Parameters))

	for _, p := range a.Parameters {
		value, present := args[p.Name]
		if !present {
			if p.Required {
				issues = append(issues, Issue{
					Parameter: p.Name,
					Kind:      IssueMissingRequired,
					Detail:    "required parameter is missing",
				})
				continue
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		if issue := p.validatePresent(value); issue != nil {
			issues = append(issues, *issue)
			continue
		}
		out[p.Name] = value
	}

	for name := range args {
		if _, declared := a.Param(name); !declared {
			issues = append(issues, Issue{
				Parameter: name,
				Kind:      IssueUnknownParameter,
				Detail:    "parameter is not declared by this action",
			})
		}
	}

	if len(issues) > 0 {
		return nil, issues
	}
	return out, nil
}

// validatePresent checks a supplied (non-absent) value against the
// parameter's type, bounds, and enum.
func (p Parameter) validatePresent(value any) *Issue {
	if issue := p.checkType(value); issue != nil {
		return issue
	}
	if p.Type.numeric() {
		n, _ := asFloat(value)
		if p.MinValue != nil && n < *p.MinValue {
			return &Issue{
				Parameter: p.Name,
				Kind:      IssueOutOfRange,
				Detail:    fmt.Sprintf("value %v is below minimum %v", value, *p.MinValue),
			}
		}
		if p.MaxValue != nil && n > *p.MaxValue {
			return &Issue{
				Parameter: p.Name,
				Kind:      IssueOutOfRange,
				Detail:    fmt.Sprintf("value %v is above maximum %v", value, *p.MaxValue),
			}
		}
	}
	if len(p.Enum) > 0 && !enumContains(p.Enum, value) {
		return &Issue{
			Parameter: p.Name,
			Kind:      IssueNotInEnum,
			Detail:    fmt.Sprintf("value %v is not one of: %s", value, enumString(p.Enum)),
		}
	}
	return nil
}

func (p Parameter) checkType(value any) *Issue {
	mismatch := func(want string) *Issue {
		return &Issue{
			Parameter: p.Name,
			Kind:      IssueTypeMismatch,
			Detail:    fmt.Sprintf("expected %s, got %T", want, value),
		}
	}

	switch p.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return mismatch("string")
		}
	case TypeInteger:
		n, ok := asFloat(value)
		if !ok || math.Trunc(n) != n {
			return mismatch("integer")
		}
	case TypeNumber:
		if _, ok := asFloat(value); !ok {
			return mismatch("number")
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return mismatch("boolean")
		}
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return mismatch("array")
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return mismatch("object")
		}
	case TypeDatetime:
		s, ok := value.(string)
		if !ok {
			return mismatch("RFC 3339 datetime string")
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return &Issue{
				Parameter: p.Name,
				Kind:      IssueTypeMismatch,
				Detail:    fmt.Sprintf("value %q is not a valid RFC 3339 datetime", s),
			}
		}
	}
	return nil
}

// asFloat widens the numeric representations produced by encoding/json and
// by Go-constructed defaults into a single comparable form.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if valueEqual(e, value) {
			return true
		}
	}
	return false
}

// valueEqual compares enum members against supplied values, treating all
// numeric representations as equal when their values match.
func valueEqual(a, b any) bool {
	if an, aok := asFloat(a); aok {
		bn, bok := asFloat(b)
		return bok && an == bn
	}
	return a == b
}
