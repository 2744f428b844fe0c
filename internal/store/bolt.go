package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"chat-widget-engine/internal/model"
)

var conversationsBucket = []byte("conversations")

// BoltStore keeps one JSON snapshot per conversation scope in a single-file
// bbolt database.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load(key string) (model.ConversationState, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(conversationsBucket).Get([]byte(key)); v != nil {
			raw = append(raw, v...)
		}
		return nil
	})
	if err != nil {
		return model.ConversationState{}, fmt.Errorf("store: load %s: %w", key, err)
	}
	if raw == nil {
		return model.ConversationState{}, ErrNotFound
	}

	var state model.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		// A corrupt record is treated as absent rather than fatal.
		log.Printf("store: discarding malformed state for %s: %v", key, err)
		return model.ConversationState{}, ErrNotFound
	}
	return state, nil
}

func (s *BoltStore) Save(key string, state model.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", key, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("store: save %s: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}
