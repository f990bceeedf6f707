// In file: internal/llm/anthropic_client.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
)

const (
	anthropicAPIURL  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// --- API Data Structures ---

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	Tools         []anthropicTool    `json:"tools,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

// --- Main Client ---

// AnthropicAgent talks to the Anthropic Messages API.
type AnthropicAgent struct {
	*core
	drv *anthropicDriver
}

var _ Agent = (*AnthropicAgent)(nil)

func NewAnthropicAgent(modelID string) *AnthropicAgent {
	drv := &anthropicDriver{
		transport: newHTTPTransport(VendorAnthropic),
		endpoint:  anthropicAPIURL,
	}
	return &AnthropicAgent{core: newCore(VendorAnthropic, modelID, drv), drv: drv}
}

// WithEndpoint points the adapter at another Messages API URL.
func (a *AnthropicAgent) WithEndpoint(endpoint string) *AnthropicAgent {
	a.drv.endpoint = endpoint
	return a
}

type anthropicDriver struct {
	transport *httpTransport
	endpoint  string
	apiKey    string
}

func (d *anthropicDriver) requiredCredentials() []string { return []string{"api_key"} }

func (d *anthropicDriver) connect(credentials map[string]string) error {
	d.apiKey = credentials["api_key"]
	return nil
}

func (d *anthropicDriver) configKeys() []string {
	return []string{ConfigMaxTokens, ConfigTemperature, ConfigModel}
}

func (d *anthropicDriver) complete(ctx context.Context, req turnRequest) (*completion, error) {
	payload, err := json.Marshal(buildAnthropicRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}
	headers := map[string]string{
		"x-api-key":         d.apiKey,
		"anthropic-version": anthropicVersion,
	}
	body, err := d.transport.post(ctx, d.endpoint, headers, payload)
	if err != nil {
		return nil, err
	}
	return parseAnthropicResponse(body)
}

// All results of one batch travel in a single user turn.
func (d *anthropicDriver) toolResultMessages(results []conversation.Block) []conversation.Message {
	if len(results) == 0 {
		return nil
	}
	return []conversation.Message{conversation.NewBlocks(conversation.RoleTool, results...)}
}

func (d *anthropicDriver) renderToolOutput(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	return renderJSON(result)
}

// --- Helper Functions ---

func buildAnthropicRequest(req turnRequest) anthropicRequest {
	out := anthropicRequest{
		Model:         req.model,
		Messages:      toAnthropicMessages(req.history),
		System:        req.instructions,
		MaxTokens:     req.config.MaxTokens,
		Temperature:   req.config.Temperature,
		TopP:          req.config.TopP,
		StopSequences: req.config.Stop,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	for _, t := range req.tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.ParameterSchema().ToMap(),
		})
	}
	return out
}

func anthropicRole(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return "assistant"
	}
	return "user"
}

// toAnthropicMessages projects history onto alternating user/assistant turns.
// System messages are carried by the request's system field instead.
func toAnthropicMessages(history []conversation.Message) []anthropicMessage {
	var filtered []conversation.Message
	for _, m := range history {
		if m.Role != conversation.RoleSystem {
			filtered = append(filtered, m)
		}
	}
	merged := mergeConsecutive(filtered, anthropicRole)

	out := make([]anthropicMessage, 0, len(merged))
	for _, m := range merged {
		msg := anthropicMessage{Role: anthropicRole(m.Role)}
		for _, b := range m.Blocks {
			switch b.Type {
			case conversation.BlockText:
				if strings.TrimSpace(b.Text) == "" {
					continue
				}
				msg.Content = append(msg.Content, anthropicContentBlock{Type: "text", Text: b.Text})
			case conversation.BlockToolUse:
				input, _ := json.Marshal(argumentsObject(b.Input))
				msg.Content = append(msg.Content, anthropicContentBlock{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
			case conversation.BlockToolResult:
				msg.Content = append(msg.Content, anthropicContentBlock{
					Type:      "tool_result",
					ToolUseID: b.ToolUseID,
					Content:   b.Content,
					IsError:   b.IsError,
				})
			}
		}
		if len(msg.Content) > 0 {
			out = append(out, msg)
		}
	}
	return out
}

func parseAnthropicResponse(body []byte) (*completion, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal anthropic response: %w", err)
	}
	if len(resp.Content) == 0 && resp.StopReason == "" {
		return nil, errors.New("no content returned from Anthropic")
	}

	comp := &completion{
		rawFinish: resp.StopReason,
		finish:    anthropicFinishReason(resp.StopReason),
		usage:     api.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			comp.calls = append(comp.calls, toolCall{id: block.ID, name: block.Name, arguments: string(block.Input)})
		}
	}
	comp.text = strings.TrimSpace(text.String())
	return comp, nil
}

func anthropicFinishReason(reason string) finishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return finishAnswer
	case "tool_use":
		return finishToolUse
	case "max_tokens":
		return finishLength
	case "refusal":
		return finishFiltered
	}
	return finishUnknown
}
