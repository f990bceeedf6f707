// In file: internal/llm/langchain_client.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// OpenAI-compatible inference endpoints reached through langchaingo.
var langChainBaseURLs = map[string]string{
	VendorGroq:      "https://api.groq.com/openai/v1",
	VendorFireworks: "https://api.fireworks.ai/inference/v1",
	VendorTogether:  "https://api.together.xyz/v1",
}

// LangChainAgent serves the hosted inference vendors that expose an
// OpenAI-compatible API, using a langchaingo llms.Model underneath.
type LangChainAgent struct {
	*core
	drv *langChainDriver
}

var _ Agent = (*LangChainAgent)(nil)

// NewLangChainAgent creates an adapter for one of groq, fireworks or together.
func NewLangChainAgent(vendor, modelID string) (*LangChainAgent, error) {
	baseURL, ok := langChainBaseURLs[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAgent, vendor)
	}
	return newLangChainAgent(vendor, modelID, &langChainDriver{baseURL: baseURL, model: modelID}), nil
}

func newLangChainAgent(vendor, modelID string, drv *langChainDriver) *LangChainAgent {
	return &LangChainAgent{core: newCore(vendor, modelID, drv), drv: drv}
}

// WithBaseURL points the adapter at another OpenAI-compatible endpoint. It
// takes effect on the next SetAuth.
func (a *LangChainAgent) WithBaseURL(baseURL string) *LangChainAgent {
	a.drv.baseURL = baseURL
	return a
}

type langChainDriver struct {
	baseURL string
	model   string
	llm     llms.Model
}

func (d *langChainDriver) requiredCredentials() []string { return []string{"api_key"} }

func (d *langChainDriver) connect(credentials map[string]string) error {
	llm, err := openai.New(
		openai.WithToken(credentials["api_key"]),
		openai.WithBaseURL(d.baseURL),
		openai.WithModel(d.model),
	)
	if err != nil {
		return err
	}
	d.llm = llm
	return nil
}

func (d *langChainDriver) configKeys() []string {
	return []string{ConfigMaxTokens, ConfigTemperature, ConfigTopP, ConfigStopSequences}
}

func (d *langChainDriver) complete(ctx context.Context, req turnRequest) (*completion, error) {
	if d.llm == nil {
		return nil, ErrNotAuthenticated
	}
	resp, err := d.llm.GenerateContent(ctx, toLangChainMessages(req.instructions, req.history), langChainOptions(req)...)
	if err != nil {
		return nil, err
	}
	return parseLangChainResponse(resp)
}

// langchaingo sends one ToolCallResponse per tool message.
func (d *langChainDriver) toolResultMessages(results []conversation.Block) []conversation.Message {
	msgs := make([]conversation.Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, conversation.NewBlocks(conversation.RoleTool, r))
	}
	return msgs
}

func (d *langChainDriver) renderToolOutput(result any) string {
	return renderJSON(result)
}

func langChainOptions(req turnRequest) []llms.CallOption {
	opts := []llms.CallOption{llms.WithModel(req.model)}
	if req.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.config.MaxTokens))
	}
	if req.config.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.config.Temperature))
	}
	if req.config.TopP != nil {
		opts = append(opts, llms.WithTopP(*req.config.TopP))
	}
	if len(req.config.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(req.config.Stop))
	}
	if len(req.tools) > 0 {
		opts = append(opts, llms.WithTools(toLangChainTools(req.tools)))
	}
	return opts
}

func toLangChainTools(ts []tools.Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(ts))
	for _, t := range ts {
		out = append(out, llms.Tool{
			Type: tools.ToolTypeFunction,
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.ParameterSchema().ToMap(),
			},
		})
	}
	return out
}

func toLangChainMessages(instructions string, history []conversation.Message) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(history)+1)
	if instructions != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, instructions))
	}
	for _, m := range history {
		if m.IsPlain() {
			msgs = append(msgs, llms.TextParts(langChainRole(m.Role), m.Text))
			continue
		}
		for _, r := range m.ToolResults() {
			msgs = append(msgs, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: r.ToolUseID,
					Name:       r.Name,
					Content:    r.Content,
				}},
			})
		}
		uses := m.ToolUses()
		text := m.TextContent()
		if len(uses) == 0 {
			if text != "" {
				msgs = append(msgs, llms.TextParts(langChainRole(m.Role), text))
			}
			continue
		}
		parts := make([]llms.ContentPart, 0, len(uses)+1)
		if text != "" {
			parts = append(parts, llms.TextContent{Text: text})
		}
		for _, u := range uses {
			parts = append(parts, llms.ToolCall{
				ID:   u.ID,
				Type: tools.ToolTypeFunction,
				FunctionCall: &llms.FunctionCall{
					Name:      u.Name,
					Arguments: argumentsText(u.Input),
				},
			})
		}
		msgs = append(msgs, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
	}
	return msgs
}

func langChainRole(r conversation.Role) llms.ChatMessageType {
	switch r {
	case conversation.RoleAssistant:
		return llms.ChatMessageTypeAI
	case conversation.RoleSystem:
		return llms.ChatMessageTypeSystem
	case conversation.RoleTool:
		return llms.ChatMessageTypeTool
	}
	return llms.ChatMessageTypeHuman
}

func parseLangChainResponse(resp *llms.ContentResponse) (*completion, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned from provider")
	}
	choice := resp.Choices[0]
	comp := &completion{
		text:      strings.TrimSpace(choice.Content),
		rawFinish: choice.StopReason,
		finish:    openAIFinishReason(choice.StopReason),
		usage: api.NewUsage(
			intFromInfo(choice.GenerationInfo, "PromptTokens"),
			intFromInfo(choice.GenerationInfo, "CompletionTokens"),
		),
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		comp.calls = append(comp.calls, toolCall{id: tc.ID, name: tc.FunctionCall.Name, arguments: tc.FunctionCall.Arguments})
	}
	return comp, nil
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
