package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore keeps conversation state in process memory. Used for
// local development and tests; values are deep-copied through JSON so
// callers never share a live pointer with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, conversationID string) (*ConversationState, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	raw, ok := m.items[conversationID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}

	var st ConversationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	return &st, nil
}

func (m *MemoryStore) Save(_ context.Context, st *ConversationState) error {
	if st == nil {
		return ErrNilState
	}
	if strings.TrimSpace(st.ConversationID) == "" {
		return ErrInvalidID
	}

	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal conversation state: %w", err)
	}

	m.mu.Lock()
	m.items[st.ConversationID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	delete(m.items, conversationID)
	m.mu.Unlock()
	return nil
}
