// In file: internal/gateway/gateway.go

// Package gateway owns the agent loop. It feeds user input to a provider
// adapter, dispatches the tools the model asks for, feeds their outputs back
// and repeats until the model produces a terminal answer or the loop fails.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/llm"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// DefaultMaxIterations bounds the model turns of one Run.
const DefaultMaxIterations = 10

// State is a step of the agent loop.
type State int

const (
	AwaitingModel State = iota
	DispatchingTools
	TerminalAnswer
	TerminalError
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "AWAITING_MODEL"
	case DispatchingTools:
		return "DISPATCHING_TOOLS"
	case TerminalAnswer:
		return "TERMINAL_ANSWER"
	case TerminalError:
		return "TERMINAL_ERROR"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TurnObserver is told about every envelope the adapter returns.
type TurnObserver interface {
	ObserveTurn(ctx context.Context, model string, resp *llm.Response)
}

// Result is the terminal outcome of one Run.
type Result struct {
	Answer         string
	ConversationID string
	// Clarification is true when Answer is a question for the user; the next
	// Run on the same conversation carries the user's reply.
	Clarification bool
	Usage         api.Usage
	LLMCalls      int
	// Iterations counts model turns.
	Iterations int
}

// Gateway drives one adapter. Tools and instructions are fixed by Prepare;
// a Gateway may then serve many conversations, but callers must serialize
// runs on the same conversation id.
type Gateway struct {
	agent         llm.Agent
	tools         *tools.ToolManager
	maxIterations int
	observer      TurnObserver
	logger        *log.Logger
	instructions  string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMaxIterations overrides DefaultMaxIterations. Values below 1 are ignored.
func WithMaxIterations(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxIterations = n
		}
	}
}

// WithObserver registers a TurnObserver such as llm.Profiler.
func WithObserver(o TurnObserver) Option {
	return func(g *Gateway) { g.observer = o }
}

func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func New(agent llm.Agent, opts ...Option) *Gateway {
	g := &Gateway{
		agent:         agent,
		tools:         tools.NewToolManager(),
		maxIterations: DefaultMaxIterations,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if ls, ok := agent.(loggerSetter); ok {
		ls.SetLogger(g.logger)
	}
	return g
}

// loggerSetter is implemented by adapters that log turn diagnostics.
type loggerSetter interface {
	SetLogger(*log.Logger)
}

// Agent returns the adapter the gateway drives.
func (g *Gateway) Agent() llm.Agent { return g.agent }

// Store returns the adapter's conversation store.
func (g *Gateway) Store() conversation.Store { return g.agent.Store() }

// Instructions returns the system instructions set by Prepare.
func (g *Gateway) Instructions() string { return g.instructions }

// Tools returns the registered tool templates in registration order.
func (g *Gateway) Tools() []tools.Tool { return g.tools.Tools() }

// Definitions returns the model-facing definitions of the registered tools.
func (g *Gateway) Definitions() []tools.Definition { return g.tools.GetDefinitions() }

// Observer returns the TurnObserver set with WithObserver, or nil.
func (g *Gateway) Observer() TurnObserver { return g.observer }

// Prepare sets the instructions and registers the tools with the adapter.
// Every tool must report IsAuthSetup; nothing is registered otherwise.
func (g *Gateway) Prepare(instructions string, ts []tools.Tool) error {
	for _, t := range ts {
		if t == nil {
			return fmt.Errorf("%w: nil tool", ErrInvalidAuthSetup)
		}
		if !t.IsAuthSetup() {
			return fmt.Errorf("%w: tool %q", ErrInvalidAuthSetup, t.Name())
		}
	}

	g.instructions = instructions
	g.agent.SetInstructions(instructions)
	for _, t := range ts {
		if err := g.tools.Register(t); err != nil {
			return fmt.Errorf("failed to register tool %q: %w", t.Name(), err)
		}
		if err := g.agent.AddTool(t); err != nil {
			return fmt.Errorf("failed to add tool %q to %s agent: %w", t.Name(), g.agent.Name(), err)
		}
	}
	g.logger.Printf("✅ Gateway prepared with %d tools for %s/%s", g.tools.ToolCount(), g.agent.Name(), g.agent.Model())
	return nil
}

// StartConversation allocates a conversation and makes it the adapter's
// current one.
func (g *Gateway) StartConversation(ctx context.Context) (string, error) {
	return g.agent.StartConversation(ctx)
}

// RunAgent runs the loop and returns the final answer text.
func (g *Gateway) RunAgent(ctx context.Context, input, conversationID string) (string, error) {
	res, err := g.Run(ctx, input, conversationID)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// Run drives the agent loop for one user input. An empty conversationID
// continues the adapter's current conversation.
//
// A model error ends the loop with an *AgentError. A tool name the gateway
// does not know ends it with an *UnsupportedToolError before any tool of that
// batch runs and before any further model call. A tool that fails is reported to the model as {"error": ...}
// and the loop continues.
func (g *Gateway) Run(ctx context.Context, input, conversationID string) (*Result, error) {
	res := &Result{ConversationID: conversationID}
	turn := llm.UserInput(input)
	state := AwaitingModel

	var pending []tools.Tool
	var failure error

	for {
		switch state {
		case AwaitingModel:
			if res.Iterations >= g.maxIterations {
				return nil, fmt.Errorf("%w: %d model turns in conversation %s", ErrMaxIterations, res.Iterations, res.ConversationID)
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res.Iterations++

			resp, err := g.agent.Run(ctx, turn, res.ConversationID)
			if err != nil {
				return nil, err
			}
			g.observe(ctx, resp)
			res.ConversationID = resp.ConversationID
			res.LLMCalls += resp.LLMCalls
			res.Usage.Add(resp.Usage())

			switch resp.Type {
			case llm.ResponseToolCall:
				pending = resp.Tools
				state = DispatchingTools
			case llm.ResponseAnswer:
				res.Answer = resp.Content
				state = TerminalAnswer
			case llm.ResponseClarification:
				answer, asked, err := g.clarify(ctx, resp.Content)
				switch {
				case err != nil:
					failure = err
					state = TerminalError
				case asked:
					turn = llm.UserInput(answer)
				default:
					res.Answer = resp.Content
					res.Clarification = true
					state = TerminalAnswer
				}
			default:
				failure = &AgentError{Response: resp}
				state = TerminalError
			}

		case DispatchingTools:
			outputs, err := g.dispatch(ctx, pending)
			if err != nil {
				failure = err
				state = TerminalError
				continue
			}
			pending = nil
			turn = llm.ToolResponse(outputs)
			state = AwaitingModel

		case TerminalAnswer:
			return res, nil

		case TerminalError:
			g.logger.Printf("❌ Agent loop failed in conversation %s after %d turns: %v", res.ConversationID, res.Iterations, failure)
			return nil, failure
		}
	}
}

// dispatch executes the tool instances in envelope order and returns their
// formatted outputs in the same order. Every name is checked before any tool
// runs, so a batch naming an unsupported tool has no side effects.
func (g *Gateway) dispatch(ctx context.Context, instances []tools.Tool) ([]conversation.Block, error) {
	for _, inst := range instances {
		if !g.tools.Has(inst.Name()) {
			return nil, &UnsupportedToolError{Tool: inst.Name(), CallID: inst.InstanceID()}
		}
	}

	outputs := make([]conversation.Block, 0, len(instances))
	for _, inst := range instances {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g.logger.Printf("🛠️ Executing tool: %s (ID: %s) with args: %v", inst.Name(), inst.InstanceID(), inst.Parameters())
		result, err := inst.Execute(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			g.logger.Printf("⚠️ Tool %s failed: %v", inst.Name(), err)
			result = map[string]any{"error": err.Error()}
		}
		outputs = append(outputs, g.agent.FormatToolOutput(inst, result))
	}
	return outputs, nil
}

// interactive is implemented by ask_user tools that can reach the user.
type interactive interface {
	Interactive() bool
}

// clarify answers a clarification inline when the registered ask_user tool
// can prompt the user. asked is false when the question must go back to the
// caller instead.
func (g *Gateway) clarify(ctx context.Context, question string) (answer string, asked bool, err error) {
	tmpl, ok := g.tools.Lookup(tools.AskUserToolName)
	if !ok {
		return "", false, nil
	}
	if it, ok := tmpl.(interactive); !ok || !it.Interactive() {
		return "", false, nil
	}

	inst := tmpl.Clone()
	if err := inst.SetParameters(map[string]any{"question": question}); err != nil {
		return "", false, err
	}
	out, err := inst.Execute(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to ask the user: %w", err)
	}
	if m, ok := out.(map[string]any); ok {
		answer, _ = m["answer"].(string)
	}
	return strings.TrimSpace(answer), true, nil
}

func (g *Gateway) observe(ctx context.Context, resp *llm.Response) {
	if g.observer == nil {
		return
	}
	g.observer.ObserveTurn(ctx, g.agent.Model(), resp)
}

// =================================================================================
// Errors
// =================================================================================

var (
	// ErrInvalidAuthSetup is returned by Prepare for a tool whose credentials
	// are missing.
	ErrInvalidAuthSetup = errors.New("tool authentication is not set up")
	// ErrUnsupportedToolReturned marks a model request for a tool the gateway
	// never registered. It is fatal and never retried.
	ErrUnsupportedToolReturned = errors.New("model requested an unsupported tool")
	// ErrMaxIterations is returned when the model keeps requesting tools past
	// the iteration bound.
	ErrMaxIterations = errors.New("agent loop exceeded max iterations")
)

// UnsupportedToolError names the tool the model asked for.
type UnsupportedToolError struct {
	Tool   string
	CallID string
}

func (e *UnsupportedToolError) Error() string {
	return fmt.Sprintf("%v: %q (call %s)", ErrUnsupportedToolReturned, e.Tool, e.CallID)
}

func (e *UnsupportedToolError) Unwrap() error { return ErrUnsupportedToolReturned }

// AgentError carries the error-classified envelope that ended the loop.
type AgentError struct {
	Response *llm.Response
}

func (e *AgentError) Error() string {
	return "agent error: " + e.Response.Content
}

// Unwrap exposes the envelope's underlying cause, if any.
func (e *AgentError) Unwrap() error { return e.Response.Err }
