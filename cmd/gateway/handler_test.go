package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/gateway"
	"github.com/santoshameti/agentgateway/internal/llm"
	"github.com/santoshameti/agentgateway/internal/tools"
)

const answerBody = `{"choices":[{"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}],` +
	`"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`

func newTestRouter(t *testing.T, status int, body string, opts ...gateway.Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(provider.Close)

	agent := llm.NewOpenAIAgent("gpt-4o-mini").WithEndpoint(provider.URL)
	require.NoError(t, agent.SetAuth(map[string]string{"api_key": "sk-test"}))

	gw := gateway.New(agent, append([]gateway.Option{gateway.WithLogger(log.New(io.Discard, "", 0))}, opts...)...)
	require.NoError(t, gw.Prepare("Be brief.", []tools.Tool{tools.NewCalculatorTool()}))

	r := gin.New()
	NewConversationHandler(gw, time.Second).Register(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startConversation(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var resp api.StartConversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ConversationID)
	return resp.ConversationID
}

func TestConversationLifecycle(t *testing.T) {
	r := newTestRouter(t, http.StatusOK, answerBody)
	id := startConversation(t, r)

	w := do(r, http.MethodPost, "/api/v1/conversations/"+id+"/messages", `{"input":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var run api.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, id, run.ConversationID)
	assert.Equal(t, "hello there", run.Answer)
	assert.False(t, run.Clarification)
	assert.Equal(t, api.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, run.Usage)
	assert.Equal(t, 1, run.LLMCalls)
	assert.Equal(t, 1, run.Iterations)

	w = do(r, http.MethodGet, "/api/v1/conversations/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var transcript api.TranscriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transcript))
	assert.Equal(t, id, transcript.ConversationID)
	assert.Contains(t, transcript.Transcript, "User: hi")
	assert.Contains(t, transcript.Transcript, "Assistant: hello there")

	w = do(r, http.MethodDelete, "/api/v1/conversations/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/api/v1/conversations/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transcript))
	assert.Empty(t, transcript.Transcript)
}

func TestMessageRequiresInput(t *testing.T) {
	r := newTestRouter(t, http.StatusOK, answerBody)
	id := startConversation(t, r)

	w := do(r, http.MethodPost, "/api/v1/conversations/"+id+"/messages", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request")
}

func TestProviderFailureIsBadGateway(t *testing.T) {
	r := newTestRouter(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`)
	id := startConversation(t, r)

	w := do(r, http.MethodPost, "/api/v1/conversations/"+id+"/messages", `{"input":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body["error"], "agent error"), body["error"])
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, http.StatusOK, answerBody)

	w := do(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string `json:"status"`
		Agent  string `json:"agent"`
		Build  struct {
			Version string `json:"version"`
		} `json:"build"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, strings.HasPrefix(body.Agent, "openai/gpt-4o-mini:"), body.Agent)
	assert.Equal(t, "dev", body.Build.Version)
}

func TestToolsListsDefinitions(t *testing.T) {
	r := newTestRouter(t, http.StatusOK, answerBody)

	w := do(r, http.MethodGet, "/api/v1/tools", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Tools []tools.Definition `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tools, 1)
	assert.Equal(t, tools.CalculatorToolName, body.Tools[0].Function.Name)
}

// cannedProfiles is a TurnObserver that reports fixed usage.
type cannedProfiles struct {
	err error
}

func (cannedProfiles) ObserveTurn(context.Context, string, *llm.Response) {}

func (p cannedProfiles) GetProfile(_ context.Context, model string) (*llm.UsageProfile, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.UsageProfile{ModelID: model, Status: "online", TotalTurns: 3}, nil
}

func TestProfile(t *testing.T) {
	r := newTestRouter(t, http.StatusOK, answerBody)
	w := do(r, http.MethodGet, "/api/v1/profile", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	r = newTestRouter(t, http.StatusOK, answerBody, gateway.WithObserver(cannedProfiles{}))
	w = do(r, http.MethodGet, "/api/v1/profile", "")
	require.Equal(t, http.StatusOK, w.Code)
	var profile llm.UsageProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, "gpt-4o-mini", profile.ModelID)
	assert.Equal(t, int64(3), profile.TotalTurns)

	w = do(r, http.MethodGet, "/api/v1/profile?model=gpt-4o", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, "gpt-4o", profile.ModelID)

	r = newTestRouter(t, http.StatusOK, answerBody, gateway.WithObserver(cannedProfiles{err: errors.New("redis down")}))
	w = do(r, http.MethodGet, "/api/v1/profile", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{conversation.ErrMissingConversationID, http.StatusBadRequest},
		{llm.ErrNoActiveConversation, http.StatusBadRequest},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{&gateway.AgentError{Response: &llm.Response{Type: llm.ResponseError, Content: "boom"}}, http.StatusBadGateway},
		{&gateway.UnsupportedToolError{Tool: "teleport", CallID: "c1"}, http.StatusBadGateway},
		{fmt.Errorf("%w: 10 model turns", gateway.ErrMaxIterations), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestConversationLocksSerializeSameID(t *testing.T) {
	locks := newConversationLocks()
	unlock := locks.lock("a")

	acquired := make(chan struct{})
	go func() {
		release := locks.lock("a")
		close(acquired)
		release()
	}()

	otherDone := make(chan struct{})
	go func() {
		release := locks.lock("b")
		release()
		close(otherDone)
	}()
	<-otherDone

	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked conversation")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
	assert.Eventually(t, func() bool {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		return len(locks.locks) == 0
	}, time.Second, time.Millisecond)
}
