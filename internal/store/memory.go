package store

import (
	"encoding/json"
	"sync"

	"chat-widget-engine/internal/model"
)

// MemoryStore is an in-process Store for tests and ephemeral runs. Snapshots
// still pass through JSON so persistence semantics match BoltStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Load(key string) (model.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.records[key]
	if !ok {
		return model.ConversationState{}, ErrNotFound
	}
	var state model.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.ConversationState{}, ErrNotFound
	}
	return state, nil
}

func (s *MemoryStore) Save(key string, state model.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = data
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
