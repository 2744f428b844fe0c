// Package devserver is a self-contained backend implementing the widget's
// wire contract: REST endpoints, the websocket fanout and a canned responder
// that plays the AI assistant and a human agent.
package devserver

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("devserver: not found")

// Customer is a visitor's durable record, one conversation per customer.
type Customer struct {
	CustomerID     string `json:"customerId" dynamodbav:"customerId"`
	BusinessID     string `json:"businessId" dynamodbav:"businessId"`
	AgentName      string `json:"agentName" dynamodbav:"agentName"`
	ConversationID string `json:"conversationId" dynamodbav:"conversationId"`
	Name           string `json:"name" dynamodbav:"name"`
	Phone          string `json:"phone" dynamodbav:"phone"`
	Email          string `json:"email" dynamodbav:"email"`
	Status         string `json:"status" dynamodbav:"status"`
	CreatedAt      string `json:"createdAt" dynamodbav:"createdAt"`
}

// StoredMessage is one transcript entry as persisted and served by history.
type StoredMessage struct {
	ID         string            `json:"_id" dynamodbav:"id"`
	CustomerID string            `json:"customerId" dynamodbav:"customerId"`
	BusinessID string            `json:"businessId" dynamodbav:"businessId"`
	Sender     string            `json:"sender" dynamodbav:"sender"`
	Message    string            `json:"message" dynamodbav:"message"`
	AgentName  string            `json:"agentName,omitempty" dynamodbav:"agentName"`
	Timestamp  string            `json:"timestamp" dynamodbav:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
}

type Repository interface {
	SaveCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, customerID string) (Customer, error)
	// FindCustomerByEmail maps a returning visitor back onto their
	// conversation. ErrNotFound for first-time visitors.
	FindCustomerByEmail(ctx context.Context, businessID, email string) (Customer, error)
	UpdateStatus(ctx context.Context, customerID, status, agentName string) error

	SaveMessage(ctx context.Context, m StoredMessage) error
	// MessagesSince returns messages with a timestamp strictly after since,
	// oldest first. An empty since returns the whole transcript.
	MessagesSince(ctx context.Context, customerID, since string, limit int) ([]StoredMessage, error)
	DeleteConversation(ctx context.Context, customerID string) error
}
