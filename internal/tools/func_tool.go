// In file: internal/tools/func_tool.go
package tools

import "context"

// Func implements a tool body over the bound parameters.
type Func func(ctx context.Context, params map[string]any) (any, error)

// FuncTool wraps a plain function as a Tool.
type FuncTool struct {
	*Base
	fn Func
}

var _ Tool = (*FuncTool)(nil)

// NewFuncTool builds a tool from a name, description, schema and body.
func NewFuncTool(name, description string, schema JSONSchema, fn Func, requiredAuth ...string) *FuncTool {
	return &FuncTool{Base: NewBase(name, description, schema, requiredAuth...), fn: fn}
}

func (ft *FuncTool) Clone() Tool {
	return &FuncTool{Base: ft.CloneBase(), fn: ft.fn}
}

func (ft *FuncTool) Execute(ctx context.Context) (any, error) {
	return ft.fn(ctx, ft.Parameters())
}
