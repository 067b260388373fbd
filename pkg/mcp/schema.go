package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// FieldType is a JSON Schema primitive type name.
type FieldType string

// Supported argument types.
const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Field declares one tool argument.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Enum        []string
	Min         *int64
	Max         *int64
	Default     any
}

// Schema is the ordered argument contract of a tool.
type Schema []Field

// ParamError reports an argument that failed validation.
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func intPtr(v int64) *int64 { return &v }

// JSONSchema renders the schema as a JSON Schema object for tools/list.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	var required []string
	for _, f := range s {
		p := map[string]any{
			"type":        string(f.Type),
			"description": f.Description,
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		if f.Min != nil {
			p["minimum"] = *f.Min
		}
		if f.Max != nil {
			p["maximum"] = *f.Max
		}
		if f.Default != nil {
			p["default"] = f.Default
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Required returns the names of required fields in declaration order.
func (s Schema) Required() []string {
	var names []string
	for _, f := range s {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Validate checks args against the schema and returns the declared fields
// with defaults applied. Fields not declared in the schema are dropped.
func (s Schema) Validate(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for _, f := range s {
		v, ok := args[f.Name]
		if !ok || v == nil {
			if f.Required {
				return nil, &ParamError{Field: f.Name, Reason: "is required"}
			}
			if f.Default != nil {
				out[f.Name] = f.Default
			}
			continue
		}
		if err := f.check(v); err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

func (f Field) check(v any) error {
	switch f.Type {
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return f.typeError(v)
		}
		if f.Required && strings.TrimSpace(str) == "" {
			return &ParamError{Field: f.Name, Reason: "must not be empty"}
		}
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, str) {
			return &ParamError{Field: f.Name, Reason: fmt.Sprintf("must be one of %s, got %q", strings.Join(f.Enum, ", "), str)}
		}
	case TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return f.typeError(v)
		}
		i, err := n.Int64()
		if err != nil {
			return f.typeError(v)
		}
		if (f.Min != nil && i < *f.Min) || (f.Max != nil && i > *f.Max) {
			return &ParamError{Field: f.Name, Reason: f.rangeReason(i)}
		}
	case TypeNumber:
		n, ok := v.(json.Number)
		if !ok {
			return f.typeError(v)
		}
		if _, err := n.Float64(); err != nil {
			return f.typeError(v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return f.typeError(v)
		}
	case TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return f.typeError(v)
		}
	case TypeArray:
		if _, ok := v.([]any); !ok {
			return f.typeError(v)
		}
	}
	return nil
}

func (f Field) rangeReason(got int64) string {
	switch {
	case f.Min != nil && f.Max != nil:
		return fmt.Sprintf("must be between %d and %d, got %d", *f.Min, *f.Max, got)
	case f.Min != nil:
		return fmt.Sprintf("must be at least %d, got %d", *f.Min, got)
	default:
		return fmt.Sprintf("must be at most %d, got %d", *f.Max, got)
	}
}

func (f Field) typeError(v any) error {
	return &ParamError{Field: f.Name, Reason: fmt.Sprintf("must be %s %s, got %s", article(f.Type), f.Type, jsonKind(v))}
}

func article(t FieldType) string {
	switch t {
	case TypeInteger, TypeObject, TypeArray:
		return "an"
	}
	return "a"
}

func jsonKind(v any) string {
	switch x := v.(type) {
	case string:
		return "string"
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

// decodeArguments parses a tools/call arguments payload. Missing or null
// arguments decode to an empty map; numbers are kept as json.Number.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("arguments must be an object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

// bind copies validated values into a typed argument struct. Nested values
// the schema does not describe can still be mistyped; those fail as a
// *ParamError naming the offending path.
func bind[T any](values map[string]any) (T, error) {
	var dst T
	data, err := json.Marshal(values)
	if err != nil {
		return dst, &ParamError{Field: "arguments", Reason: err.Error()}
	}
	if err := json.Unmarshal(data, &dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return dst, &ParamError{Field: typeErr.Field, Reason: fmt.Sprintf("must be %s, got %s", typeErr.Type, typeErr.Value)}
		}
		return dst, &ParamError{Field: "arguments", Reason: err.Error()}
	}
	return dst, nil
}
