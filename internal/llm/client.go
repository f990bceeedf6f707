// In file: internal/llm/client.go

// Package llm adapts large language model providers to one agent contract.
// Every vendor adapter runs the same turn engine: it records the turn in the
// conversation store, calls the provider, and classifies the reply into a
// canonical Response (answer, tool call, clarification or error).
package llm

import (
	"context"

	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// =================================================================================
// Agent Interface
// =================================================================================

// Agent is the capability set every provider adapter implements.
//
// Credentials, model configuration, instructions and tools are set up before
// use and must not be changed while Run is in flight.
type Agent interface {
	// Name is the vendor identifier, e.g. "openai".
	Name() string
	// Model is the model id requests are sent to.
	Model() string

	// SetAuth validates and stores the vendor credentials. Fails with
	// ErrMissingCredential when a required field is absent.
	SetAuth(credentials map[string]string) error
	// SetModelConfig applies tunables. Fails with ErrInvalidConfigKey for keys
	// outside the adapter's whitelist; no network call is made.
	SetModelConfig(options map[string]any) error
	SetInstructions(instructions string)
	SetConversationStore(store conversation.Store)
	Store() conversation.Store
	// AddTool registers a tool template under its name.
	AddTool(tool tools.Tool) error

	// StartConversation allocates a conversation and makes it current.
	StartConversation(ctx context.Context) (string, error)
	// Run performs one model turn. An empty conversationID means the current
	// conversation.
	Run(ctx context.Context, input Input, conversationID string) (*Response, error)
	// FormatToolOutput renders a tool result as the block the vendor expects,
	// tagged with the tool instance's call id.
	FormatToolOutput(tool tools.Tool, result any) conversation.Block
}

// Input is the new turn handed to Run: either user text or the formatted
// outputs of the tools requested in the previous turn.
type Input struct {
	Text        string
	ToolOutputs []conversation.Block
}

// UserInput wraps user text.
func UserInput(text string) Input {
	return Input{Text: text}
}

// ToolResponse wraps the formatted outputs of a tool batch.
func ToolResponse(outputs []conversation.Block) Input {
	return Input{ToolOutputs: outputs}
}

func (in Input) IsToolResponse() bool {
	return len(in.ToolOutputs) > 0
}
