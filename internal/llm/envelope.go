// In file: internal/llm/envelope.go
package llm

import (
	"fmt"
	"time"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// ResponseType classifies the outcome of one adapter turn.
type ResponseType string

const (
	ResponseAnswer        ResponseType = "answer"
	ResponseToolCall      ResponseType = "tool_use"
	ResponseClarification ResponseType = "ask_user"
	ResponseError         ResponseType = "error"
)

// CallRecord traces a single provider call.
type CallRecord struct {
	Latency      time.Duration `json:"latency"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
}

// Trace accumulates usage over the provider calls made for one Response.
type Trace struct {
	LLMCalls     int          `json:"llm_calls"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	Calls        []CallRecord `json:"calls,omitempty"`
}

// RecordCall adds one provider call to the trace.
func (t *Trace) RecordCall(latency time.Duration, usage api.Usage) {
	t.LLMCalls++
	t.InputTokens += usage.PromptTokens
	t.OutputTokens += usage.CompletionTokens
	t.Calls = append(t.Calls, CallRecord{
		Latency:      latency,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	})
}

// Usage returns the accumulated token counts.
func (t Trace) Usage() api.Usage {
	return api.NewUsage(t.InputTokens, t.OutputTokens)
}

// Response is the canonical outcome of one Agent.Run call.
//
// Tools is non-empty if and only if Type is ResponseToolCall. Content is set if
// and only if Type is ResponseAnswer, ResponseClarification or ResponseError.
// Build values with the New* constructors to keep that invariant.
type Response struct {
	Type           ResponseType
	Content        string
	Tools          []tools.Tool
	ConversationID string
	Trace

	// Err is the underlying cause of an error-classified response, if any.
	Err error
}

func NewAnswer(conversationID, content string) *Response {
	return &Response{Type: ResponseAnswer, Content: content, ConversationID: conversationID}
}

func NewToolCall(conversationID string, instances []tools.Tool) *Response {
	return &Response{Type: ResponseToolCall, Tools: instances, ConversationID: conversationID}
}

func NewClarification(conversationID, question string) *Response {
	return &Response{Type: ResponseClarification, Content: question, ConversationID: conversationID}
}

// NewError builds an error-classified response. cause may be nil.
func NewError(conversationID, content string, cause error) *Response {
	if content == "" {
		content = "model call failed"
		if cause != nil && cause.Error() != "" {
			content = cause.Error()
		}
	}
	return &Response{Type: ResponseError, Content: content, ConversationID: conversationID, Err: cause}
}

// Validate checks the tools/content invariant.
func (r *Response) Validate() error {
	switch r.Type {
	case ResponseToolCall:
		if len(r.Tools) == 0 {
			return fmt.Errorf("tool_use response without tools")
		}
		if r.Content != "" {
			return fmt.Errorf("tool_use response must not carry content")
		}
	case ResponseAnswer, ResponseClarification, ResponseError:
		if len(r.Tools) != 0 {
			return fmt.Errorf("%s response must not carry tools", r.Type)
		}
		if r.Content == "" {
			return fmt.Errorf("%s response without content", r.Type)
		}
	default:
		return fmt.Errorf("unknown response type %q", r.Type)
	}
	return nil
}
