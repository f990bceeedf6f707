// In file: internal/tools/executor.go
package tools

import (
	"context"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is the contract every callable tool implements.
//
// A tool registered with an agent is a template: it is never bound or executed
// directly. Each model-issued call works on a Clone, which gets its own
// instance id (the provider's call id) and its own parameter binding.
type Tool interface {
	Name() string
	Description() string
	// ParameterSchema declares the accepted parameters. Callers must not
	// modify the returned value.
	ParameterSchema() JSONSchema
	// SetParameters validates params against the schema and, on success,
	// replaces the current binding.
	SetParameters(params map[string]any) error
	// Parameters returns a copy of the current binding.
	Parameters() map[string]any
	// Execute runs the tool with the current binding. The result must be
	// JSON-serialisable.
	Execute(ctx context.Context) (any, error)
	// Clone returns an instance sharing name, description, schema and auth,
	// with an empty instance id and no parameters bound.
	Clone() Tool
	// IsAuthSetup reports whether every credential the tool needs is present.
	IsAuthSetup() bool
	InstanceID() string
	SetInstanceID(id string)
}

// Base carries the state shared by all tools. Concrete tools embed *Base and
// implement Execute and Clone; Clone should use CloneBase.
type Base struct {
	name         string
	description  string
	schema       JSONSchema
	requiredAuth []string
	auth         map[string]string

	instanceID string
	params     map[string]any

	validator *schemaValidator
}

// NewBase creates the shared state of a tool. requiredAuth lists the auth
// fields that must be set before IsAuthSetup reports true.
func NewBase(name, description string, schema JSONSchema, requiredAuth ...string) *Base {
	return &Base{
		name:         name,
		description:  description,
		schema:       schema,
		requiredAuth: requiredAuth,
		auth:         make(map[string]string),
		params:       make(map[string]any),
		validator:    &schemaValidator{},
	}
}

// CloneBase copies the immutable fields and resets the per-invocation state.
func (b *Base) CloneBase() *Base {
	auth := make(map[string]string, len(b.auth))
	for k, v := range b.auth {
		auth[k] = v
	}
	return &Base{
		name:         b.name,
		description:  b.description,
		schema:       b.schema,
		requiredAuth: b.requiredAuth,
		auth:         auth,
		params:       make(map[string]any),
		validator:    b.validator,
	}
}

func (b *Base) Name() string                { return b.name }
func (b *Base) Description() string         { return b.description }
func (b *Base) ParameterSchema() JSONSchema { return b.schema }
func (b *Base) InstanceID() string          { return b.instanceID }
func (b *Base) SetInstanceID(id string)     { b.instanceID = id }

// SetAuth merges credentials into the tool's auth state.
func (b *Base) SetAuth(creds map[string]string) {
	for k, v := range creds {
		b.auth[k] = v
	}
}

// Auth returns a copy of the tool's auth state.
func (b *Base) Auth() map[string]string {
	out := make(map[string]string, len(b.auth))
	for k, v := range b.auth {
		out[k] = v
	}
	return out
}

func (b *Base) IsAuthSetup() bool {
	for _, key := range b.requiredAuth {
		if b.auth[key] == "" {
			return false
		}
	}
	return true
}

func (b *Base) SetParameters(params map[string]any) error {
	bound, err := validateParameters(b.name, b.schema, params)
	if err != nil {
		return err
	}
	if err := b.validator.validate(b.name, b.schema, bound); err != nil {
		return err
	}
	b.params = bound
	return nil
}

func (b *Base) Parameters() map[string]any {
	out := make(map[string]any, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

// Param returns one bound parameter.
func (b *Base) Param(key string) (any, bool) {
	v, ok := b.params[key]
	return v, ok
}

// StringParam returns a bound string parameter, or "" when unset.
func (b *Base) StringParam(key string) string {
	s, _ := b.params[key].(string)
	return s
}

// schemaValidator compiles the tool schema once and is shared by all clones.
type schemaValidator struct {
	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}
