// In file: internal/tools/types.go

// Package tools defines the contract every callable tool implements, the
// provider-agnostic schema types used to describe tools to a model, and the
// built-in tools shipped with the gateway.
package tools

import "encoding/json"

// ToolTypeFunction is the standard type for function-based tools.
const ToolTypeFunction = "function"

// Definition is the description of a tool sent *to* a model so it knows the
// tool exists and how to call it.
type Definition struct {
	// Type is almost always "function".
	Type string `json:"type"`
	// Function holds the name, description and parameter schema.
	Function Function `json:"function"`
}

// Function defines the name, description, and parameters of a callable tool.
type Function struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  JSONSchema `json:"parameters"`
}

// JSONSchema is a typed subset of JSON Schema, enough to declare tool
// parameters with primitive types, nested objects, arrays and enums.
type JSONSchema struct {
	// Type is one of object, string, number, integer, boolean, array.
	// The top-level parameters node is always "object".
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []any                  `json:"enum,omitempty"`
}

// ToMap converts the schema into a generic map, the shape most SDKs accept.
func (s JSONSchema) ToMap() map[string]any {
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// ObjectSchema is a helper for the common top-level parameters node.
func ObjectSchema(properties map[string]*JSONSchema, required ...string) JSONSchema {
	return JSONSchema{Type: "object", Properties: properties, Required: required}
}

// ToolCall is a request *from* an OpenAI-compatible model to execute a tool.
type ToolCall struct {
	// ID correlates the tool's result with this request.
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction holds the name and JSON-encoded arguments of a call.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewFunctionDefinition builds a Definition with the "function" type.
func NewFunctionDefinition(name, description string, parameters JSONSchema) Definition {
	return Definition{
		Type: ToolTypeFunction,
		Function: Function{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// DefinitionOf describes t for a model.
func DefinitionOf(t Tool) Definition {
	return NewFunctionDefinition(t.Name(), t.Description(), t.ParameterSchema())
}
