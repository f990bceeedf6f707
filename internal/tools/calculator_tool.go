// In file: internal/tools/calculator_tool.go
package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/expr-lang/expr"
)

// CalculatorToolName is the name the model uses to call the calculator.
const CalculatorToolName = "calculate"

// CalculatorTool evaluates an arithmetic expression such as "(2+3)*4".
type CalculatorTool struct {
	*Base
}

var _ Tool = (*CalculatorTool)(nil)

func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{
		Base: NewBase(
			CalculatorToolName,
			"Evaluates an arithmetic expression and returns the numeric result. Supports + - * / % ** and parentheses.",
			ObjectSchema(map[string]*JSONSchema{
				"expression": {
					Type:        "string",
					Description: "The arithmetic expression to evaluate, e.g. '2+2' or '(10 / 4) * 3'.",
				},
			}, "expression"),
		),
	}
}

func (ct *CalculatorTool) Clone() Tool {
	return &CalculatorTool{Base: ct.CloneBase()}
}

// Execute returns {"result": n}. Expressions that fail to evaluate are reported
// as {"error": msg} so the model can correct itself.
func (ct *CalculatorTool) Execute(_ context.Context) (any, error) {
	expression := ct.StringParam("expression")
	if expression == "" {
		return map[string]any{"error": "expression cannot be empty"}, nil
	}

	program, err := expr.Compile(expression)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("invalid expression: %v", err)}, nil
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("evaluation failed: %v", err)}, nil
	}
	f, ok := toFloat(out)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("expression did not evaluate to a number (got %T)", out)}, nil
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return map[string]any{"error": "result is not a finite number (division by zero?)"}, nil
	}
	return map[string]any{"result": out}, nil
}
