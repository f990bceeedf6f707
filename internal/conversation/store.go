// In file: internal/conversation/store.go
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrMissingConversationID is returned by every Store method that is called
// with an empty conversation id.
var ErrMissingConversationID = errors.New("conversation id is required")

// Store is the append-only message log shared by the gateway and the provider
// adapters. Reading an id that was never written yields an empty history.
//
// Implementations must be safe for concurrent use across distinct ids.
// Concurrent writers on the same id are not coordinated: backends that
// read-modify-write keep whichever write lands last.
type Store interface {
	// Start allocates a new, empty conversation and returns its id.
	Start(ctx context.Context) (string, error)
	// Append adds one message to the end of the conversation.
	Append(ctx context.Context, id string, msg Message) error
	// Extend adds a batch of messages, preserving their order.
	Extend(ctx context.Context, id string, msgs []Message) error
	// Read returns the full history in insertion order.
	Read(ctx context.Context, id string) ([]Message, error)
	// Clear discards the history of the conversation.
	Clear(ctx context.Context, id string) error
	// Format renders the history as a human-readable transcript.
	Format(ctx context.Context, id string) (string, error)
}

func newConversationID() string {
	return uuid.NewString()
}

// FormatTranscript renders messages one per line as "Role: content".
func FormatTranscript(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(capitalize(string(m.Role)))
		sb.WriteString(": ")
		sb.WriteString(renderContent(m))
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func renderContent(m Message) string {
	if m.IsPlain() {
		return m.Text
	}
	parts := make([]string, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Type {
		case BlockText:
			parts = append(parts, b.Text)
		case BlockToolUse:
			parts = append(parts, fmt.Sprintf("[tool_use %s %s]", b.Name, string(b.Input)))
		case BlockToolResult:
			parts = append(parts, fmt.Sprintf("[tool_result %s: %s]", b.ToolUseID, b.Content))
		}
	}
	return strings.Join(parts, " ")
}

// =================================================================================
// Read-modify-write backends
// =================================================================================

// blobBackend persists a whole conversation history as one opaque value.
type blobBackend interface {
	// load returns the stored blob, or ok=false if the id has never been written.
	load(ctx context.Context, id string) (blob []byte, ok bool, err error)
	save(ctx context.Context, id string, blob []byte) error
	remove(ctx context.Context, id string) error
}

// blobStore implements Store over a blobBackend by serialising the full history
// as a JSON array and rewriting it on every append.
type blobStore struct {
	backend blobBackend
}

func (s *blobStore) Start(ctx context.Context) (string, error) {
	id := newConversationID()
	if err := s.write(ctx, id, []Message{}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *blobStore) Append(ctx context.Context, id string, msg Message) error {
	return s.Extend(ctx, id, []Message{msg})
}

func (s *blobStore) Extend(ctx context.Context, id string, msgs []Message) error {
	if id == "" {
		return ErrMissingConversationID
	}
	history, err := s.Read(ctx, id)
	if err != nil {
		return err
	}
	return s.write(ctx, id, append(history, msgs...))
}

func (s *blobStore) Read(ctx context.Context, id string) ([]Message, error) {
	if id == "" {
		return nil, ErrMissingConversationID
	}
	blob, ok, err := s.backend.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	if !ok || len(blob) == 0 {
		return []Message{}, nil
	}
	var history []Message
	if err := json.Unmarshal(blob, &history); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	if history == nil {
		history = []Message{}
	}
	return history, nil
}

func (s *blobStore) Clear(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingConversationID
	}
	if err := s.backend.remove(ctx, id); err != nil {
		return fmt.Errorf("failed to clear conversation %s: %w", id, err)
	}
	return nil
}

func (s *blobStore) Format(ctx context.Context, id string) (string, error) {
	history, err := s.Read(ctx, id)
	if err != nil {
		return "", err
	}
	return FormatTranscript(history), nil
}

func (s *blobStore) write(ctx context.Context, id string, history []Message) error {
	blob, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", id, err)
	}
	if err := s.backend.save(ctx, id, blob); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", id, err)
	}
	return nil
}
