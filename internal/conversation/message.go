// In file: internal/conversation/message.go

// Package conversation stores the ordered message history of agent
// conversations behind a single Store interface, with in-process, Redis and
// MySQL backends.
package conversation

import (
	"encoding/json"
	"strings"
)

// Role represents the originator of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType tags the variant held by a Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one element of a structured message. Only the fields belonging to
// its Type are meaningful.
type Block struct {
	Type BlockType `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockToolUse: ID is the provider-issued call id, Input the JSON arguments.
	// BlockToolResult: ToolUseID points back at the originating call.
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// TextBlock returns a plain text block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUseBlock records a tool invocation requested by the model.
func ToolUseBlock(id, name string, input json.RawMessage) Block {
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock carries the output of the tool call identified by toolUseID.
func ToolResultBlock(toolUseID, name, content string) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Name: name, Content: content}
}

// Message is a single entry in a conversation. Its content is either plain
// text (Blocks is empty) or a list of structured blocks.
type Message struct {
	Role   Role    `json:"role"`
	Text   string  `json:"text,omitempty"`
	Blocks []Block `json:"blocks,omitempty"`
}

// NewText creates a plain-text message.
func NewText(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// NewBlocks creates a structured message.
func NewBlocks(role Role, blocks ...Block) Message {
	return Message{Role: role, Blocks: blocks}
}

// IsPlain reports whether the message carries plain text rather than blocks.
func (m Message) IsPlain() bool {
	return len(m.Blocks) == 0
}

// TextContent returns the plain text, or the concatenation of all text blocks.
func (m Message) TextContent() string {
	if m.IsPlain() {
		return m.Text
	}
	var parts []string
	for _, b := range m.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the tool_use blocks of the message in order.
func (m Message) ToolUses() []Block {
	return m.blocksOf(BlockToolUse)
}

// ToolResults returns the tool_result blocks of the message in order.
func (m Message) ToolResults() []Block {
	return m.blocksOf(BlockToolResult)
}

func (m Message) blocksOf(t BlockType) []Block {
	var out []Block
	for _, b := range m.Blocks {
		if b.Type == t {
			out = append(out, b)
		}
	}
	return out
}

// clone returns a deep copy so callers cannot mutate stored history.
func (m Message) clone() Message {
	out := Message{Role: m.Role, Text: m.Text}
	if len(m.Blocks) > 0 {
		out.Blocks = make([]Block, len(m.Blocks))
		for i, b := range m.Blocks {
			if b.Input != nil {
				b.Input = append(json.RawMessage(nil), b.Input...)
			}
			out.Blocks[i] = b
		}
	}
	return out
}
