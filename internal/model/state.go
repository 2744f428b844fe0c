package model

import (
	"fmt"
	"time"
)

type ConversationStatus string

const (
	StatusAIOnly ConversationStatus = "ai_only"
	StatusLive   ConversationStatus = "live"
	StatusTicket ConversationStatus = "ticket"
	StatusClosed ConversationStatus = "closed"
)

const WorkflowTriggerFirstMessage = "first_message"

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type WorkflowStep struct {
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options,omitempty"`
}

// WorkflowConfig is the backend-supplied guided-prompt script mirrored from
// the session bootstrap response.
type WorkflowConfig struct {
	Active    bool          `json:"active"`
	Trigger   string        `json:"trigger,omitempty"`
	FirstStep *WorkflowStep `json:"firstStep,omitempty"`
}

// ConversationState is the full durable snapshot of one business+customer
// conversation. Timestamps round-trip through JSON as RFC 3339 strings.
type ConversationState struct {
	Contact          Contact            `json:"contact"`
	CustomerID       string             `json:"customerId,omitempty"`
	ConversationID   string             `json:"conversationId,omitempty"`
	SessionToken     string             `json:"sessionToken,omitempty"`
	Status           ConversationStatus `json:"status"`
	CurrentAgentName string             `json:"currentAgentName,omitempty"`
	Messages         []Message          `json:"messages"`
	Workflow         *WorkflowConfig    `json:"workflow,omitempty"`

	// LastSeen is the watermark of the most recently accepted message,
	// bounding subsequent history polls.
	LastSeen time.Time `json:"lastSeen,omitzero"`
}

func NewConversationState() ConversationState {
	return ConversationState{Status: StatusAIOnly}
}

// StateKey scopes a persisted conversation record to one business+agent
// pairing. Switching business context yields an independent record.
func StateKey(businessID, agentName string) string {
	return fmt.Sprintf("chat_state_%s_%s", businessID, agentName)
}

// HasLoader reports whether a transient loader placeholder is present.
func (s *ConversationState) HasLoader() bool {
	for _, m := range s.Messages {
		if m.Kind == KindLoader {
			return true
		}
	}
	return false
}

// RemoveLoader drops any loader placeholder from the log.
func (s *ConversationState) RemoveLoader() {
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if m.Kind != KindLoader {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
}

// FindByID returns the index of the message with the given identifier, or -1.
func (s *ConversationState) FindByID(id string) int {
	if id == "" {
		return -1
	}
	for i, m := range s.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// AdvanceWatermark moves LastSeen forward, never backward.
func (s *ConversationState) AdvanceWatermark(ts time.Time) {
	if ts.After(s.LastSeen) {
		s.LastSeen = ts
	}
}
