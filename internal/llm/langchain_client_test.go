package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// fakeLLM is a scripted llms.Model.
type fakeLLM struct {
	responses []*llms.ContentResponse
	err       error
	messages  [][]llms.MessageContent
	options   []llms.CallOptions
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	idx := len(f.messages)
	f.messages = append(f.messages, messages)
	f.options = append(f.options, opts)
	if f.err != nil {
		return nil, f.err
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "done", StopReason: "stop"}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func newLangChainTestAgent(t *testing.T, fake *fakeLLM) *LangChainAgent {
	t.Helper()
	agent, err := NewLangChainAgent(VendorGroq, "llama-3.1-8b-instant")
	require.NoError(t, err)
	require.NoError(t, agent.SetAuth(map[string]string{"api_key": "gsk-test"}))
	agent.drv.llm = fake
	return agent
}

func TestNewLangChainAgentRejectsUnknownVendor(t *testing.T) {
	_, err := NewLangChainAgent(VendorBedrock, "titan")
	assert.ErrorIs(t, err, ErrUnsupportedAgent)
}

func TestLangChainAgentToolCall(t *testing.T) {
	fake := &fakeLLM{responses: []*llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{
			StopReason: "tool_calls",
			ToolCalls: []llms.ToolCall{{
				ID:           "call_9",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: tools.CalculatorToolName, Arguments: `{"expression":"3*3"}`},
			}},
			GenerationInfo: map[string]any{"PromptTokens": 40, "CompletionTokens": 9},
		}}},
		{Choices: []*llms.ContentChoice{{Content: "Nine.", StopReason: "stop"}}},
	}}
	agent := newLangChainTestAgent(t, fake)
	agent.SetInstructions("Use tools.")
	require.NoError(t, agent.SetModelConfig(map[string]any{"max_tokens": 128, "top_p": 0.5, "stop_sequences": "END"}))
	require.NoError(t, agent.AddTool(tools.NewCalculatorTool()))
	id, err := agent.StartConversation(context.Background())
	require.NoError(t, err)

	resp, err := agent.Run(context.Background(), UserInput("3*3?"), id)
	require.NoError(t, err)
	require.Equal(t, ResponseToolCall, resp.Type)
	assert.Equal(t, "call_9", resp.Tools[0].InstanceID())
	assert.Equal(t, 40, resp.InputTokens)
	assert.Equal(t, 9, resp.OutputTokens)

	opts := fake.options[0]
	assert.Equal(t, "llama-3.1-8b-instant", opts.Model)
	assert.Equal(t, 128, opts.MaxTokens)
	assert.InDelta(t, 0.7, opts.Temperature, 1e-9)
	assert.InDelta(t, 0.5, opts.TopP, 1e-9)
	assert.Equal(t, []string{"END"}, opts.StopWords)
	require.Len(t, opts.Tools, 1)
	assert.Equal(t, tools.CalculatorToolName, opts.Tools[0].Function.Name)

	first := fake.messages[0]
	require.Len(t, first, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, first[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, first[1].Role)

	result, err := resp.Tools[0].Execute(context.Background())
	require.NoError(t, err)
	resp, err = agent.Run(context.Background(), ToolResponse([]conversation.Block{agent.FormatToolOutput(resp.Tools[0], result)}), id)
	require.NoError(t, err)
	assert.Equal(t, "Nine.", resp.Content)

	second := fake.messages[1]
	require.Len(t, second, 4)
	ai := second[2]
	assert.Equal(t, llms.ChatMessageTypeAI, ai.Role)
	call, ok := ai.Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call_9", call.ID)
	toolMsg := second[3]
	assert.Equal(t, llms.ChatMessageTypeTool, toolMsg.Role)
	res, ok := toolMsg.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_9", res.ToolCallID)
	assert.JSONEq(t, `{"result":9}`, res.Content)
}

func TestLangChainProviderError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("rate limited")}
	agent := newLangChainTestAgent(t, fake)
	id, err := agent.StartConversation(context.Background())
	require.NoError(t, err)

	resp, err := agent.Run(context.Background(), UserInput("hi"), id)
	require.NoError(t, err)
	assert.Equal(t, ResponseError, resp.Type)
	assert.Equal(t, "rate limited", resp.Content)
}

func TestLangChainConfigWhitelist(t *testing.T) {
	agent, err := NewLangChainAgent(VendorTogether, "meta-llama")
	require.NoError(t, err)
	assert.ErrorIs(t, agent.SetModelConfig(map[string]any{"model": "x"}), ErrInvalidConfigKey)
}

func TestParseLangChainResponse(t *testing.T) {
	_, err := parseLangChainResponse(&llms.ContentResponse{})
	assert.Error(t, err)

	comp, err := parseLangChainResponse(&llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "  cut  ",
		StopReason:     "length",
		GenerationInfo: map[string]any{"PromptTokens": int64(5), "CompletionTokens": float64(2)},
	}}})
	require.NoError(t, err)
	assert.Equal(t, "cut", comp.text)
	assert.Equal(t, finishLength, comp.finish)
	assert.Equal(t, 5, comp.usage.PromptTokens)
	assert.Equal(t, 2, comp.usage.CompletionTokens)
}

func TestToLangChainMessagesRawArguments(t *testing.T) {
	history := []conversation.Message{
		conversation.NewBlocks(conversation.RoleAssistant,
			conversation.TextBlock("thinking"),
			conversation.ToolUseBlock("c1", "calculate", argumentsJSON("oops")),
			conversation.ToolUseBlock("c2", "calculate", json.RawMessage(`{"expression":"1"}`))),
	}
	msgs := toLangChainMessages("", history)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 3)
	assert.Equal(t, llms.TextContent{Text: "thinking"}, msgs[0].Parts[0])
	assert.Equal(t, "oops", msgs[0].Parts[1].(llms.ToolCall).FunctionCall.Arguments)
	assert.Equal(t, `{"expression":"1"}`, msgs[0].Parts[2].(llms.ToolCall).FunctionCall.Arguments)
}

func TestLangChainAgentWithBaseURL(t *testing.T) {
	var paths []string
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		auth = append(auth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"llama-3.1-8b-instant",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	}))
	defer srv.Close()

	agent, err := NewLangChainAgent(VendorTogether, "llama-3.1-8b-instant")
	require.NoError(t, err)
	agent.WithBaseURL(srv.URL + "/v1")
	require.NoError(t, agent.SetAuth(map[string]string{"api_key": "tg-test"}))
	id, err := agent.StartConversation(context.Background())
	require.NoError(t, err)

	resp, err := agent.Run(context.Background(), UserInput("hello"), id)
	require.NoError(t, err)
	require.Equal(t, ResponseAnswer, resp.Type, resp.Content)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, []string{"/v1/chat/completions"}, paths)
	assert.Equal(t, []string{"Bearer tg-test"}, auth)
}
