package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// stubConverse replays canned Converse outputs and records every input.
type stubConverse struct {
	outputs []*bedrockruntime.ConverseOutput
	err     error
	inputs  []*bedrockruntime.ConverseInput
}

func (s *stubConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	idx := len(s.inputs)
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return s.outputs[idx], nil
}

func newBedrockTestAgent(t *testing.T, stub *stubConverse) *BedrockAgent {
	t.Helper()
	agent := NewBedrockAgent("anthropic.claude-3-haiku-20240307-v1:0")
	require.NoError(t, agent.SetAuth(map[string]string{
		"access_key_id":     "AKIDEXAMPLE",
		"secret_access_key": "secret",
		"region":            "us-east-1",
	}))
	agent.drv.client = stub
	return agent
}

func converseMessage(stop types.StopReason, blocks ...types.ContentBlock) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: blocks,
		}},
		StopReason: stop,
		Usage:      &types.TokenUsage{InputTokens: aws.Int32(21), OutputTokens: aws.Int32(6), TotalTokens: aws.Int32(27)},
	}
}

func TestBedrockRequiresAllCredentials(t *testing.T) {
	agent := NewBedrockAgent("amazon.titan-text-express-v1")
	err := agent.SetAuth(map[string]string{"access_key_id": "AKID", "secret_access_key": "secret"})
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "region")
}

func TestBedrockConfigWhitelist(t *testing.T) {
	agent := NewBedrockAgent("amazon.titan-text-express-v1")
	assert.ErrorIs(t, agent.SetModelConfig(map[string]any{"model": "other"}), ErrInvalidConfigKey)
	assert.NoError(t, agent.SetModelConfig(map[string]any{"top_p": 0.9, "stop": []string{"##"}}))
}

func TestBedrockToolCallRoundTrip(t *testing.T) {
	stub := &stubConverse{outputs: []*bedrockruntime.ConverseOutput{
		converseMessage(types.StopReasonToolUse,
			&types.ContentBlockMemberText{Value: "Let me work that out."},
			&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String("tooluse_1"),
				Name:      aws.String(tools.CalculatorToolName),
				Input:     document.NewLazyDocument(map[string]any{"expression": "6*7"}),
			}},
		),
		converseMessage(types.StopReasonEndTurn, &types.ContentBlockMemberText{Value: "It is 42."}),
	}}
	agent := newBedrockTestAgent(t, stub)
	agent.SetInstructions("Use the calculator.")
	require.NoError(t, agent.SetModelConfig(map[string]any{"temperature": 0.5}))
	require.NoError(t, agent.AddTool(tools.NewCalculatorTool()))
	ctx := context.Background()
	id, err := agent.StartConversation(ctx)
	require.NoError(t, err)

	resp, err := agent.Run(ctx, UserInput("6*7?"), id)
	require.NoError(t, err)
	require.Equal(t, ResponseToolCall, resp.Type, resp.Content)
	inst := resp.Tools[0]
	assert.Equal(t, "tooluse_1", inst.InstanceID())
	assert.Equal(t, "6*7", inst.Parameters()["expression"])
	assert.Equal(t, 21, resp.Usage().PromptTokens)
	assert.Equal(t, 6, resp.Usage().CompletionTokens)

	first := stub.inputs[0]
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(first.ModelId))
	require.Len(t, first.System, 1)
	assert.Equal(t, "Use the calculator.", first.System[0].(*types.SystemContentBlockMemberText).Value)
	assert.Equal(t, int32(2000), aws.ToInt32(first.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.5, aws.ToFloat32(first.InferenceConfig.Temperature), 1e-6)
	require.NotNil(t, first.ToolConfig)
	require.Len(t, first.ToolConfig.Tools, 1)
	toolSpec := first.ToolConfig.Tools[0].(*types.ToolMemberToolSpec).Value
	assert.Equal(t, tools.CalculatorToolName, aws.ToString(toolSpec.Name))
	require.Len(t, first.Messages, 1)
	assert.Equal(t, types.ConversationRoleUser, first.Messages[0].Role)

	result, err := inst.Execute(ctx)
	require.NoError(t, err)
	resp, err = agent.Run(ctx, ToolResponse([]conversation.Block{agent.FormatToolOutput(inst, result)}), id)
	require.NoError(t, err)
	assert.Equal(t, ResponseAnswer, resp.Type)
	assert.Equal(t, "It is 42.", resp.Content)

	msgs := stub.inputs[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, types.ConversationRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	use := msgs[1].Content[1].(*types.ContentBlockMemberToolUse).Value
	assert.Equal(t, "tooluse_1", aws.ToString(use.ToolUseId))
	assert.Equal(t, types.ConversationRoleUser, msgs[2].Role)
	toolResult := msgs[2].Content[0].(*types.ContentBlockMemberToolResult).Value
	assert.Equal(t, "tooluse_1", aws.ToString(toolResult.ToolUseId))
	assert.JSONEq(t, `{"result":42}`, toolResult.Content[0].(*types.ToolResultContentBlockMemberText).Value)
	assert.Empty(t, toolResult.Status)
}

func TestBedrockZeroArgumentToolCall(t *testing.T) {
	ping := tools.NewFuncTool("ping", "Checks the service", tools.ObjectSchema(nil),
		func(context.Context, map[string]any) (any, error) { return "pong", nil })
	stub := &stubConverse{outputs: []*bedrockruntime.ConverseOutput{
		converseMessage(types.StopReasonToolUse, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String("tooluse_ping"),
			Name:      aws.String("ping"),
		}}),
	}}
	agent := newBedrockTestAgent(t, stub)
	require.NoError(t, agent.AddTool(ping))
	id, err := agent.StartConversation(context.Background())
	require.NoError(t, err)

	resp, err := agent.Run(context.Background(), UserInput("is it up?"), id)
	require.NoError(t, err)
	require.Equal(t, ResponseToolCall, resp.Type, resp.Content)
	assert.Empty(t, resp.Tools[0].Parameters())
}

func TestBedrockTerminalConditions(t *testing.T) {
	cases := map[types.StopReason]string{
		types.StopReasonMaxTokens:           "Response exceeded maximum token limit.",
		types.StopReasonGuardrailIntervened: "Response was filtered due to content safety.",
		types.StopReasonContentFiltered:     "Response was filtered due to content safety.",
	}
	for stop, want := range cases {
		t.Run(string(stop), func(t *testing.T) {
			stub := &stubConverse{outputs: []*bedrockruntime.ConverseOutput{
				converseMessage(stop, &types.ContentBlockMemberText{Value: "partial"}),
			}}
			agent := newBedrockTestAgent(t, stub)
			id, err := agent.StartConversation(context.Background())
			require.NoError(t, err)

			resp, err := agent.Run(context.Background(), UserInput("hi"), id)
			require.NoError(t, err)
			assert.Equal(t, ResponseError, resp.Type)
			assert.Equal(t, want, resp.Content)
		})
	}
}

func TestBedrockCallFailureIsErrorEnvelope(t *testing.T) {
	agent := newBedrockTestAgent(t, &stubConverse{err: errors.New("AccessDeniedException")})
	id, err := agent.StartConversation(context.Background())
	require.NoError(t, err)

	resp, err := agent.Run(context.Background(), UserInput("hi"), id)
	require.NoError(t, err)
	assert.Equal(t, ResponseError, resp.Type)
	assert.Contains(t, resp.Content, "AccessDeniedException")
}

func TestToConverseMessagesMarksFailedResults(t *testing.T) {
	failed := conversation.ToolResultBlock("tooluse_1", "ping", `{"error":"tool call was not executed"}`)
	failed.IsError = true
	msgs := toConverseMessages([]conversation.Message{
		conversation.NewText(conversation.RoleSystem, "skip me"),
		conversation.NewText(conversation.RoleUser, "hi"),
		conversation.NewBlocks(conversation.RoleTool, failed),
		conversation.NewText(conversation.RoleUser, "anything else?"),
	})
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Content, 3)
	result := msgs[0].Content[1].(*types.ContentBlockMemberToolResult).Value
	assert.Equal(t, types.ToolResultStatusError, result.Status)
}

func TestParseConverseOutputWithoutMessage(t *testing.T) {
	_, err := parseConverseOutput(&bedrockruntime.ConverseOutput{StopReason: types.StopReasonEndTurn})
	assert.Error(t, err)

	comp, err := parseConverseOutput(&bedrockruntime.ConverseOutput{StopReason: types.StopReasonMaxTokens})
	require.NoError(t, err)
	assert.Equal(t, finishLength, comp.finish)
}
