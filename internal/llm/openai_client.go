// In file: internal/llm/openai_client.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/tools"
)

const openAIAPIURL = "https://api.openai.com/v1/chat/completions"

// openAIRequest defines the top-level structure of a chat completions call.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

// openAIMessage represents a single message in a conversation. Content is a
// pointer because assistant messages carrying only tool calls send null.
type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []tools.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function tools.Function `json:"function"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage api.Usage `json:"usage"`
}

// OpenAIAgent talks to the OpenAI chat completions API. The same wire format
// serves every OpenAI-compatible endpoint.
type OpenAIAgent struct {
	*core
	drv *openAIDriver
}

var _ Agent = (*OpenAIAgent)(nil)

// NewOpenAIAgent creates an adapter for modelID. Call SetAuth with "api_key"
// before running it.
func NewOpenAIAgent(modelID string) *OpenAIAgent {
	drv := &openAIDriver{
		transport: newHTTPTransport(VendorOpenAI),
		endpoint:  openAIAPIURL,
		keys:      []string{ConfigMaxTokens, ConfigTemperature, ConfigModel, ConfigTopP, ConfigStopSequences},
	}
	return &OpenAIAgent{core: newCore(VendorOpenAI, modelID, drv), drv: drv}
}

// WithEndpoint points the adapter at another chat completions URL.
func (a *OpenAIAgent) WithEndpoint(endpoint string) *OpenAIAgent {
	a.drv.endpoint = endpoint
	return a
}

// openAIDriver implements driver for OpenAI-compatible chat completion APIs.
type openAIDriver struct {
	transport *httpTransport
	endpoint  string
	apiKey    string
	keys      []string
}

func (d *openAIDriver) requiredCredentials() []string { return []string{"api_key"} }

func (d *openAIDriver) connect(credentials map[string]string) error {
	d.apiKey = credentials["api_key"]
	return nil
}

func (d *openAIDriver) configKeys() []string { return d.keys }

func (d *openAIDriver) complete(ctx context.Context, req turnRequest) (*completion, error) {
	payload, err := json.Marshal(buildOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}
	body, err := d.transport.post(ctx, d.endpoint, map[string]string{"Authorization": "Bearer " + d.apiKey}, payload)
	if err != nil {
		return nil, err
	}
	return parseOpenAIResponse(body)
}

// Each tool result is its own role:"tool" message.
func (d *openAIDriver) toolResultMessages(results []conversation.Block) []conversation.Message {
	msgs := make([]conversation.Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, conversation.NewBlocks(conversation.RoleTool, r))
	}
	return msgs
}

func (d *openAIDriver) renderToolOutput(result any) string {
	return renderJSON(result)
}

func buildOpenAIRequest(req turnRequest) openAIRequest {
	out := openAIRequest{
		Model:       req.model,
		Messages:    toOpenAIMessages(req.instructions, req.history),
		MaxTokens:   req.config.MaxTokens,
		Temperature: req.config.Temperature,
		TopP:        req.config.TopP,
		Stop:        req.config.Stop,
	}
	// Some compatible vendors reject an empty tools array.
	if len(req.tools) > 0 {
		out.Tools = make([]openAITool, 0, len(req.tools))
		for _, t := range req.tools {
			def := tools.DefinitionOf(t)
			out.Tools = append(out.Tools, openAITool{Type: def.Type, Function: def.Function})
		}
		out.ToolChoice = "auto"
	}
	return out
}

func toOpenAIMessages(instructions string, history []conversation.Message) []openAIMessage {
	msgs := make([]openAIMessage, 0, len(history)+1)
	if instructions != "" {
		msgs = append(msgs, openAIMessage{Role: string(conversation.RoleSystem), Content: strPtr(instructions)})
	}
	for _, m := range history {
		if m.IsPlain() {
			msgs = append(msgs, openAIMessage{Role: string(m.Role), Content: strPtr(m.Text)})
			continue
		}
		for _, r := range m.ToolResults() {
			msgs = append(msgs, openAIMessage{Role: "tool", ToolCallID: r.ToolUseID, Content: strPtr(r.Content)})
		}
		uses := m.ToolUses()
		text := m.TextContent()
		switch {
		case len(uses) > 0:
			am := openAIMessage{Role: string(conversation.RoleAssistant)}
			if text != "" {
				am.Content = strPtr(text)
			}
			for _, u := range uses {
				am.ToolCalls = append(am.ToolCalls, tools.ToolCall{
					ID:   u.ID,
					Type: tools.ToolTypeFunction,
					Function: tools.ToolCallFunction{
						Name:      u.Name,
						Arguments: argumentsText(u.Input),
					},
				})
			}
			msgs = append(msgs, am)
		case text != "":
			msgs = append(msgs, openAIMessage{Role: string(m.Role), Content: strPtr(text)})
		}
	}
	return msgs
}

func parseOpenAIResponse(body []byte) (*completion, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned from provider")
	}
	choice := resp.Choices[0]
	comp := &completion{
		rawFinish: choice.FinishReason,
		finish:    openAIFinishReason(choice.FinishReason),
		usage:     api.NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	if choice.Message.Content != nil {
		comp.text = strings.TrimSpace(*choice.Message.Content)
	}
	for _, tc := range choice.Message.ToolCalls {
		comp.calls = append(comp.calls, toolCall{id: tc.ID, name: tc.Function.Name, arguments: tc.Function.Arguments})
	}
	return comp, nil
}

func openAIFinishReason(reason string) finishReason {
	switch reason {
	case "stop", "":
		return finishAnswer
	case "tool_calls", "function_call":
		return finishToolUse
	case "length", "model_length":
		return finishLength
	case "content_filter":
		return finishFiltered
	}
	return finishUnknown
}

func strPtr(s string) *string { return &s }
