// In file: internal/llm/gemini_client.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// GeminiAgent talks to Google's Gemini models through the genai SDK.
type GeminiAgent struct {
	*core
	drv *geminiDriver
}

var _ Agent = (*GeminiAgent)(nil)

// NewGeminiAgent creates an adapter for modelID under the given vendor name
// ("gemini" or "vertex").
func NewGeminiAgent(vendor, modelID string) *GeminiAgent {
	if vendor == "" {
		vendor = VendorGemini
	}
	drv := &geminiDriver{newID: func() string { return "call_" + uuid.NewString() }}
	return &GeminiAgent{core: newCore(vendor, modelID, drv), drv: drv}
}

// Close releases the SDK client.
func (a *GeminiAgent) Close() error {
	if a.drv.client == nil {
		return nil
	}
	return a.drv.client.Close()
}

// geminiSender sends the last content of a converted history, with the rest
// as chat history, using the model settings of req.
type geminiSender func(ctx context.Context, req turnRequest, contents []*genai.Content) (*genai.GenerateContentResponse, error)

type geminiDriver struct {
	client *genai.Client
	send   geminiSender
	// Gemini does not issue call ids; newID mints one per function call.
	newID func() string
}

func (d *geminiDriver) requiredCredentials() []string { return []string{"api_key"} }

func (d *geminiDriver) connect(credentials map[string]string) error {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(credentials["api_key"]))
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if d.client != nil {
		_ = d.client.Close()
	}
	d.client = client
	d.send = func(ctx context.Context, req turnRequest, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
		model := client.GenerativeModel(req.model)
		configureGeminiModel(model, req)
		chat := model.StartChat()
		chat.History = contents[:len(contents)-1]
		return chat.SendMessage(ctx, contents[len(contents)-1].Parts...)
	}
	return nil
}

func (d *geminiDriver) configKeys() []string {
	return []string{ConfigMaxTokens, ConfigTemperature, ConfigTopP, ConfigStopSequences}
}

func (d *geminiDriver) complete(ctx context.Context, req turnRequest) (*completion, error) {
	if d.send == nil {
		return nil, ErrNotAuthenticated
	}
	contents := toGeminiContents(req.history)
	if len(contents) == 0 {
		return nil, errors.New("gemini: nothing to send")
	}

	resp, err := d.send(ctx, req, contents)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return &completion{finish: finishFiltered, rawFinish: "SAFETY"}, nil
		}
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return parseGeminiResponse(resp, d.newID)
}

// Results of one batch travel in a single user turn of function responses.
func (d *geminiDriver) toolResultMessages(results []conversation.Block) []conversation.Message {
	if len(results) == 0 {
		return nil
	}
	return []conversation.Message{conversation.NewBlocks(conversation.RoleTool, results...)}
}

// Function responses must be objects, so results are wrapped.
func (d *geminiDriver) renderToolOutput(result any) string {
	return renderJSON(map[string]any{"result": result})
}

// configureGeminiModel applies instructions, tunables and tools using the SDK
// setters.
func configureGeminiModel(model *genai.GenerativeModel, req turnRequest) {
	if req.instructions != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.instructions)}}
	}
	if req.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.config.MaxTokens))
	}
	if req.config.Temperature != nil {
		model.SetTemperature(float32(*req.config.Temperature))
	}
	if req.config.TopP != nil {
		model.SetTopP(float32(*req.config.TopP))
	}
	if len(req.config.Stop) > 0 {
		model.StopSequences = req.config.Stop
	}
	model.Tools = toGeminiTools(req.tools)
}

// toGeminiTools declares every tool in one genai.Tool; nil when none are
// registered.
func toGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(ts))
	for _, t := range ts {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  convertSchema(t.ParameterSchema()),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertSchema converts a tool schema to the SDK's schema type.
func convertSchema(s tools.JSONSchema) *genai.Schema {
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	}
	for _, e := range s.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(e))
	}
	if s.Items != nil {
		out.Items = convertSchema(*s.Items)
	}
	if s.Properties != nil {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			if v == nil {
				continue
			}
			out.Properties[k] = convertSchema(*v)
		}
	}
	return out
}

func geminiRole(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return "model"
	}
	return "user"
}

// toGeminiContents converts history into alternating user/model contents.
func toGeminiContents(history []conversation.Message) []*genai.Content {
	var filtered []conversation.Message
	for _, m := range history {
		if m.Role != conversation.RoleSystem {
			filtered = append(filtered, m)
		}
	}

	var out []*genai.Content
	for _, m := range mergeConsecutive(filtered, geminiRole) {
		content := &genai.Content{Role: geminiRole(m.Role)}
		for _, b := range m.Blocks {
			switch b.Type {
			case conversation.BlockText:
				if b.Text != "" {
					content.Parts = append(content.Parts, genai.Text(b.Text))
				}
			case conversation.BlockToolUse:
				content.Parts = append(content.Parts, genai.FunctionCall{Name: b.Name, Args: argumentsObject(b.Input)})
			case conversation.BlockToolResult:
				content.Parts = append(content.Parts, genai.FunctionResponse{Name: b.Name, Response: functionResponse(b.Content)})
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func functionResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": content}
}

func parseGeminiResponse(resp *genai.GenerateContentResponse, newID func() string) (*completion, error) {
	comp := &completion{}
	if resp.UsageMetadata != nil {
		comp.usage = api.NewUsage(int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			comp.finish = finishFiltered
			comp.rawFinish = "PROMPT_BLOCKED"
			return comp, nil
		}
		return nil, errors.New("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	comp.rawFinish = fmt.Sprint(candidate.FinishReason)
	switch candidate.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified:
		comp.finish = finishAnswer
	case genai.FinishReasonMaxTokens:
		comp.finish = finishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		comp.finish = finishFiltered
	default:
		comp.finish = finishUnknown
	}

	if candidate.Content == nil {
		return comp, nil
	}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			args := []byte("{}")
			if len(v.Args) > 0 {
				if raw, err := json.Marshal(v.Args); err == nil {
					args = raw
				}
			}
			comp.calls = append(comp.calls, toolCall{id: newID(), name: v.Name, arguments: string(args)})
		}
	}
	comp.text = strings.TrimSpace(text.String())
	if len(comp.calls) > 0 && comp.finish == finishAnswer {
		comp.finish = finishToolUse
	}
	return comp, nil
}
