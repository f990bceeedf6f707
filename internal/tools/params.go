// In file: internal/tools/params.go
package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ErrUnknownParameter         = errors.New("unknown parameter")
	ErrMissingRequiredParameter = errors.New("missing required parameter")
	ErrTypeMismatch             = errors.New("parameter type mismatch")
	ErrSchemaViolation          = errors.New("parameter schema violation")
)

// ParameterError describes why a binding was rejected. It unwraps to one of
// the Err*Parameter sentinels.
type ParameterError struct {
	Tool   string
	Param  string
	Kind   error
	Detail string
}

func (e *ParameterError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Tool)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Param != "" {
		fmt.Fprintf(&sb, " %q", e.Param)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *ParameterError) Unwrap() error { return e.Kind }

// validateParameters checks params against the primitive contract of schema
// and returns the binding to store. Missing required keys are reported before
// anything else; nil values count as absent.
func validateParameters(tool string, schema JSONSchema, params map[string]any) (map[string]any, error) {
	for _, req := range schema.Required {
		if v, ok := params[req]; !ok || v == nil {
			return nil, &ParameterError{Tool: tool, Param: req, Kind: ErrMissingRequiredParameter}
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bound := make(map[string]any, len(params))
	for _, key := range keys {
		prop, ok := schema.Properties[key]
		if !ok {
			return nil, &ParameterError{Tool: tool, Param: key, Kind: ErrUnknownParameter}
		}
		value := params[key]
		if value == nil {
			continue
		}
		if prop != nil && !matchesType(prop.Type, value) {
			return nil, &ParameterError{
				Tool:   tool,
				Param:  key,
				Kind:   ErrTypeMismatch,
				Detail: fmt.Sprintf("expected %s, got %s", prop.Type, describeType(value)),
			}
		}
		bound[key] = value
	}
	return bound, nil
}

func matchesType(declared string, v any) bool {
	switch declared {
	case "":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := toFloat(v)
		return ok
	case "integer":
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case "array":
		k := reflect.ValueOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
	case "null":
		return v == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func describeType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// validate runs the full JSON Schema (enums, nested objects, array items)
// against a binding that already passed the primitive checks.
func (v *schemaValidator) validate(tool string, schema JSONSchema, bound map[string]any) error {
	v.once.Do(func() {
		v.compiled, v.err = compileSchema(schema)
	})
	if v.err != nil {
		return fmt.Errorf("%s: invalid parameter schema: %w", tool, v.err)
	}

	raw, err := json.Marshal(bound)
	if err != nil {
		return &ParameterError{Tool: tool, Kind: ErrSchemaViolation, Detail: err.Error()}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ParameterError{Tool: tool, Kind: ErrSchemaViolation, Detail: err.Error()}
	}
	if err := v.compiled.Validate(inst); err != nil {
		return &ParameterError{Tool: tool, Kind: ErrSchemaViolation, Detail: err.Error()}
	}
	return nil
}

func compileSchema(schema JSONSchema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// DecodeArguments turns the JSON argument text issued by a model into a map.
// Empty text and JSON null mean no arguments. Text that is not a JSON object is
// returned unchanged as a string so that the failure surfaces when the
// arguments are bound.
func DecodeArguments(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil || args == nil {
		return raw
	}
	return args
}

// BindArguments binds decoded model arguments to an instance.
func BindArguments(t Tool, args any) error {
	switch v := args.(type) {
	case nil:
		return t.SetParameters(map[string]any{})
	case map[string]any:
		return t.SetParameters(v)
	case string:
		decoded := DecodeArguments(v)
		if m, ok := decoded.(map[string]any); ok {
			return t.SetParameters(m)
		}
		return &ParameterError{
			Tool:   t.Name(),
			Kind:   ErrTypeMismatch,
			Detail: fmt.Sprintf("arguments must be a JSON object, got %q", truncate(v, 80)),
		}
	case json.RawMessage:
		return BindArguments(t, string(v))
	default:
		return &ParameterError{Tool: t.Name(), Kind: ErrTypeMismatch, Detail: fmt.Sprintf("unsupported arguments type %T", args)}
	}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
