// In file: internal/tools/ask_user_tool.go
package tools

import (
	"context"
	"errors"
	"strings"
)

// AskUserToolName is the reserved name of the clarification tool. Provider
// adapters treat a call to it as a clarification request instead of running it.
const AskUserToolName = "ask_user"

// Prompter asks the human on the other side of the conversation a question.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, question string) (string, error)

func (f PrompterFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// AskUserTool lets the model ask the user a clarifying question.
type AskUserTool struct {
	*Base
	prompter Prompter
}

var _ Tool = (*AskUserTool)(nil)

// NewAskUserTool creates the tool. With a nil prompter the question is
// returned to the caller of the agent loop instead of being asked inline.
func NewAskUserTool(prompter Prompter) *AskUserTool {
	return &AskUserTool{
		Base: NewBase(
			AskUserToolName,
			"Ask the user a clarifying question when the request is ambiguous or information is missing.",
			ObjectSchema(map[string]*JSONSchema{
				"question": {
					Type:        "string",
					Description: "The question to ask the user.",
				},
			}, "question"),
		),
		prompter: prompter,
	}
}

func (at *AskUserTool) Clone() Tool {
	return &AskUserTool{Base: at.CloneBase(), prompter: at.prompter}
}

// Interactive reports whether the tool can reach the user itself.
func (at *AskUserTool) Interactive() bool { return at.prompter != nil }

func (at *AskUserTool) Execute(ctx context.Context) (any, error) {
	if at.prompter == nil {
		return nil, errors.New("ask_user: no prompter configured")
	}
	answer, err := at.prompter.Ask(ctx, at.StringParam("question"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": strings.TrimSpace(answer)}, nil
}
