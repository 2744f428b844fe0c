// Package store persists conversation snapshots across widget reloads.
package store

import (
	"errors"

	"chat-widget-engine/internal/model"
)

var ErrNotFound = errors.New("store: conversation state not found")

// Store is durable key-value state keyed by business+agent scope. Load returns
// ErrNotFound for an absent or unreadable record; callers fall back to a fresh
// initial state.
type Store interface {
	Load(key string) (model.ConversationState, error)
	Save(key string, state model.ConversationState) error
	Delete(key string) error
}
