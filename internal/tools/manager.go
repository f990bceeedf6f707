// In file: internal/tools/manager.go
package tools

import (
	"errors"
	"sync"
)

// ToolManager holds the registered tool templates, keyed by name, in
// registration order.
type ToolManager struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewToolManager() *ToolManager {
	return &ToolManager{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool template. Registering a second tool with the same name
// replaces the first.
func (tm *ToolManager) Register(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return errors.New("tool must have a name")
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	name := tool.Name()
	if _, exists := tm.tools[name]; !exists {
		tm.order = append(tm.order, name)
	}
	tm.tools[name] = tool
	return nil
}

// Lookup returns the template registered under name.
func (tm *ToolManager) Lookup(name string) (Tool, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.tools[name]
	return t, ok
}

// Has reports whether a tool named name is registered.
func (tm *ToolManager) Has(name string) bool {
	_, ok := tm.Lookup(name)
	return ok
}

// Tools returns the registered templates in registration order.
func (tm *ToolManager) Tools() []Tool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]Tool, 0, len(tm.order))
	for _, name := range tm.order {
		out = append(out, tm.tools[name])
	}
	return out
}

// GetDefinitions returns the model-facing definition of every registered tool.
func (tm *ToolManager) GetDefinitions() []Definition {
	registered := tm.Tools()
	defs := make([]Definition, 0, len(registered))
	for _, t := range registered {
		defs = append(defs, DefinitionOf(t))
	}
	return defs
}

// ToolCount returns the number of registered tools.
func (tm *ToolManager) ToolCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.tools)
}
