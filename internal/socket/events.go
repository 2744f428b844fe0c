package socket

import (
	"encoding/json"
	"time"

	"chat-widget-engine/internal/model"
)

// Live channel event names, shared with the devserver.
const (
	EventNewMessage          = "newMessage"
	EventConversationUpdated = "conversationUpdated"
	EventAgentTyping         = "agentTyping"
	EventAgentStoppedTyping  = "agentStoppedTyping"
	EventClosedBySystem      = "conversationClosedBySystem"
	EventClosedByAgent       = "conversationClosedByAgent"

	EventJoinRoom = "joinCustomerRoom"
	EventTyping   = "typing"
)

// Envelope frames every message on the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type NewMessagePayload struct {
	ID        string            `json:"_id"`
	Sender    string            `json:"sender"`
	Message   string            `json:"message"`
	AgentName string            `json:"agentName,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	CreatedAt string            `json:"createdAt,omitempty"`
	Options   []model.Option    `json:"options,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ResolveTimestamp picks whichever timestamp field the backend populated.
// A zero result means neither parsed.
func (p NewMessagePayload) ResolveTimestamp() time.Time {
	for _, raw := range []string{p.Timestamp, p.CreatedAt} {
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type ConversationUpdatedPayload struct {
	Status    string `json:"status"`
	AgentName string `json:"agentName,omitempty"`
}

type ClosedPayload struct {
	ConversationID string `json:"conversationId"`
	ClosedBy       string `json:"closedBy"`
}

type JoinRoomPayload struct {
	CustomerID string `json:"customerId"`
}

type TypingPayload struct {
	CustomerID string `json:"customerId"`
	BusinessID string `json:"businessId"`
	Source     string `json:"source"`
}
