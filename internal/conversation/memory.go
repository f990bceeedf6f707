// In file: internal/conversation/memory.go
package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps conversations in process memory. Histories are lost when
// the process exits.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]Message
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string][]Message)}
}

func (s *MemoryStore) Start(_ context.Context) (string, error) {
	id := newConversationID()
	s.mu.Lock()
	s.conversations[id] = []Message{}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Append(ctx context.Context, id string, msg Message) error {
	return s.Extend(ctx, id, []Message{msg})
}

func (s *MemoryStore) Extend(_ context.Context, id string, msgs []Message) error {
	if id == "" {
		return ErrMissingConversationID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.conversations[id] = append(s.conversations[id], m.clone())
	}
	return nil
}

func (s *MemoryStore) Read(_ context.Context, id string) ([]Message, error) {
	if id == "" {
		return nil, ErrMissingConversationID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.conversations[id]
	out := make([]Message, len(history))
	for i, m := range history {
		out[i] = m.clone()
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	if id == "" {
		return ErrMissingConversationID
	}
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Format(ctx context.Context, id string) (string, error) {
	history, err := s.Read(ctx, id)
	if err != nil {
		return "", err
	}
	return FormatTranscript(history), nil
}
