// In file: internal/api/types.go

// Package api holds the types shared between the HTTP surface and the
// internal packages: token usage counters and the request/response bodies of
// the gateway's REST API.
package api

// Usage counts the tokens consumed by one or more model calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// NewUsage builds a Usage from input/output counts, deriving the total.
func NewUsage(input, output int) Usage {
	return Usage{PromptTokens: input, CompletionTokens: output, TotalTokens: input + output}
}

// =================================================================================
// REST API bodies
// =================================================================================

// StartConversationResponse is returned when a new conversation is created.
type StartConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// RunRequest is the body of a message sent to an existing conversation.
type RunRequest struct {
	Input string `json:"input" binding:"required"`
}

// RunResponse carries the terminal outcome of one agent loop.
type RunResponse struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
	// Clarification is true when Answer is a question the agent asks the user.
	Clarification bool  `json:"clarification"`
	Usage         Usage `json:"usage"`
	LLMCalls      int   `json:"llm_calls"`
	Iterations    int   `json:"iterations"`
	LatencyMS     int64 `json:"latency_ms"`
}

// TranscriptResponse is the human-readable history of a conversation.
type TranscriptResponse struct {
	ConversationID string `json:"conversation_id"`
	Transcript     string `json:"transcript"`
}
