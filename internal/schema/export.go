package schema

// JSONType maps a ParameterType onto its JSON Schema type keyword.
// datetime is represented as a string with a date-time format annotation.
func (t ParameterType) JSONType() string {
	if t == TypeDatetime {
		return "string"
	}
	return string(t)
}

// JSONSchema returns the JSON Schema fragment describing this parameter.
func (p Parameter) JSONSchema() map[string]any {
	s := map[string]any{
		"type": p.Type.JSONType(),
	}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if p.Type == TypeDatetime {
		s["format"] = "date-time"
	}
	if p.Default != nil {
		s["default"] = p.Default
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.MinValue != nil {
		s["minimum"] = *p.MinValue
	}
	if p.MaxValue != nil {
		s["maximum"] = *p.MaxValue
	}
	return s
}

// ParametersSchema returns the JSON Schema object describing the action's
// full argument map, in the shape consumed by LLM function-calling APIs.
func (a Action) ParametersSchema() map[string]any {
	properties := make(map[string]any, len(a.Parameters))
	required := make([]any, 0, len(a.Parameters))
	for _, p := range a.Parameters {
		properties[p.Name] = p.JSONSchema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	s := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
