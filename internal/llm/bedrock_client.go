// In file: internal/llm/bedrock_client.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
)

// converseAPI is the part of the Bedrock runtime client the adapter calls.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAgent talks to models hosted on Amazon Bedrock through the Converse
// API. SetAuth takes "access_key_id", "secret_access_key" and "region", and
// optionally "session_token".
type BedrockAgent struct {
	*core
	drv *bedrockDriver
}

var _ Agent = (*BedrockAgent)(nil)

func NewBedrockAgent(modelID string) *BedrockAgent {
	drv := &bedrockDriver{}
	return &BedrockAgent{core: newCore(VendorBedrock, modelID, drv), drv: drv}
}

// WithEndpoint points the adapter at another Bedrock runtime endpoint. It
// takes effect on the next SetAuth.
func (a *BedrockAgent) WithEndpoint(endpoint string) *BedrockAgent {
	a.drv.endpoint = endpoint
	return a
}

type bedrockDriver struct {
	endpoint string
	client   converseAPI
}

func (d *bedrockDriver) requiredCredentials() []string {
	return []string{"access_key_id", "secret_access_key", "region"}
}

func (d *bedrockDriver) connect(creds map[string]string) error {
	cfg := aws.Config{
		Region: creds["region"],
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			creds["access_key_id"], creds["secret_access_key"], creds["session_token"],
		)),
	}
	d.client = bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
		}
	})
	return nil
}

func (d *bedrockDriver) configKeys() []string {
	return []string{ConfigMaxTokens, ConfigTemperature, ConfigTopP, ConfigStopSequences}
}

func (d *bedrockDriver) complete(ctx context.Context, req turnRequest) (*completion, error) {
	if d.client == nil {
		return nil, ErrNotAuthenticated
	}
	input := buildConverseInput(req)
	if len(input.Messages) == 0 {
		return nil, errors.New("bedrock: nothing to send")
	}
	out, err := d.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse call failed: %w", err)
	}
	return parseConverseOutput(out)
}

// Results of one batch travel in a single user message.
func (d *bedrockDriver) toolResultMessages(results []conversation.Block) []conversation.Message {
	if len(results) == 0 {
		return nil
	}
	return []conversation.Message{conversation.NewBlocks(conversation.RoleTool, results...)}
}

func (d *bedrockDriver) renderToolOutput(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	return renderJSON(result)
}

func bedrockRole(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return string(types.ConversationRoleAssistant)
	}
	return string(types.ConversationRoleUser)
}

func buildConverseInput(req turnRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{ModelId: aws.String(req.model)}
	if req.instructions != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.instructions}}
	}

	inference := &types.InferenceConfiguration{}
	if req.config.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(req.config.MaxTokens))
	}
	if req.config.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*req.config.Temperature))
	}
	if req.config.TopP != nil {
		inference.TopP = aws.Float32(float32(*req.config.TopP))
	}
	if len(req.config.Stop) > 0 {
		inference.StopSequences = append([]string(nil), req.config.Stop...)
	}
	input.InferenceConfig = inference

	if len(req.tools) > 0 {
		specs := make([]types.Tool, 0, len(req.tools))
		for _, t := range req.tools {
			specs = append(specs, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
				Name:        aws.String(t.Name()),
				Description: aws.String(t.Description()),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.ParameterSchema().ToMap())},
			}})
		}
		input.ToolConfig = &types.ToolConfiguration{Tools: specs}
	}

	input.Messages = toConverseMessages(req.history)
	return input
}

// toConverseMessages converts history into alternating user/assistant
// messages. Tool results travel in user messages.
func toConverseMessages(history []conversation.Message) []types.Message {
	var filtered []conversation.Message
	for _, m := range history {
		if m.Role != conversation.RoleSystem {
			filtered = append(filtered, m)
		}
	}

	var out []types.Message
	for _, m := range mergeConsecutive(filtered, bedrockRole) {
		msg := types.Message{Role: types.ConversationRole(bedrockRole(m.Role))}
		for _, b := range m.Blocks {
			switch b.Type {
			case conversation.BlockText:
				if b.Text != "" {
					msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: b.Text})
				}
			case conversation.BlockToolUse:
				msg.Content = append(msg.Content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(b.ID),
					Name:      aws.String(b.Name),
					Input:     document.NewLazyDocument(argumentsObject(b.Input)),
				}})
			case conversation.BlockToolResult:
				result := types.ToolResultBlock{
					ToolUseId: aws.String(b.ToolUseID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: b.Content}},
				}
				if b.IsError {
					result.Status = types.ToolResultStatusError
				}
				msg.Content = append(msg.Content, &types.ContentBlockMemberToolResult{Value: result})
			}
		}
		if len(msg.Content) > 0 {
			out = append(out, msg)
		}
	}
	return out
}

func parseConverseOutput(out *bedrockruntime.ConverseOutput) (*completion, error) {
	if out == nil {
		return nil, errors.New("empty response from Bedrock")
	}
	comp := &completion{rawFinish: string(out.StopReason)}
	if out.Usage != nil {
		comp.usage = api.NewUsage(int(aws.ToInt32(out.Usage.InputTokens)), int(aws.ToInt32(out.Usage.OutputTokens)))
	}
	switch out.StopReason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		comp.finish = finishAnswer
	case types.StopReasonToolUse:
		comp.finish = finishToolUse
	case types.StopReasonMaxTokens:
		comp.finish = finishLength
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		comp.finish = finishFiltered
	default:
		comp.finish = finishUnknown
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		if comp.finish == finishAnswer || comp.finish == finishToolUse {
			return nil, errors.New("no message returned from Bedrock")
		}
		return comp, nil
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		switch v := block.(type) {
		case *types.ContentBlockMemberText:
			text.WriteString(v.Value)
		case *types.ContentBlockMemberToolUse:
			comp.calls = append(comp.calls, toolCall{
				id:        aws.ToString(v.Value.ToolUseId),
				name:      aws.ToString(v.Value.Name),
				arguments: documentText(v.Value.Input),
			})
		}
	}
	comp.text = strings.TrimSpace(text.String())
	if len(comp.calls) > 0 && comp.finish == finishAnswer {
		comp.finish = finishToolUse
	}
	return comp, nil
}

// documentText renders a tool input document as JSON text; a missing input
// is an empty object.
func documentText(doc document.Interface) string {
	if doc == nil {
		return "{}"
	}
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return "{}"
	}
	return string(raw)
}
