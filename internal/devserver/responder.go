package devserver

import (
	"context"
	"log"
	"strings"
	"time"

	"chat-widget-engine/internal/model"
	internalsocket "chat-widget-engine/internal/socket"

	"github.com/google/uuid"
)

// Notifier pushes an event to every connection on a conversation.
type Notifier interface {
	Notify(customerID, event string, payload any)
}

// Responder scripts the other side of the conversation: an AI persona that
// answers everything, a human agent that takes over when asked for, and a
// close when the visitor says goodbye.
type Responder struct {
	repo       Repository
	notifier   Notifier
	agentName  string
	replyDelay time.Duration
	now        func() time.Time
}

func NewResponder(repo Repository, notifier Notifier, agentName string, replyDelay time.Duration) *Responder {
	if agentName == "" {
		agentName = "Sam"
	}
	return &Responder{
		repo:       repo,
		notifier:   notifier,
		agentName:  agentName,
		replyDelay: replyDelay,
		now:        time.Now,
	}
}

// OnUserMessage is called after a visitor message has been stored and echoed.
// Runs synchronously; the send endpoint invokes it on its own goroutine.
func (r *Responder) OnUserMessage(ctx context.Context, c Customer, text string) {
	lower := strings.ToLower(text)

	switch {
	case c.Status == string(model.StatusAIOnly) && wantsHuman(lower):
		r.handoff(ctx, c)
	case c.Status != string(model.StatusAIOnly) && wantsClose(lower):
		r.close(ctx, c)
	default:
		r.reply(ctx, c, lower)
	}
}

func wantsHuman(lower string) bool {
	return strings.Contains(lower, "agent") || strings.Contains(lower, "human")
}

func wantsClose(lower string) bool {
	return strings.Contains(lower, "bye") || strings.Contains(lower, "goodbye")
}

// handoff flips the conversation to live and has the agent greet the visitor.
func (r *Responder) handoff(ctx context.Context, c Customer) {
	if err := r.repo.UpdateStatus(ctx, c.CustomerID, string(model.StatusLive), r.agentName); err != nil {
		log.Printf("responder: update status: %v", err)
		return
	}

	r.notifier.Notify(c.CustomerID, internalsocket.EventConversationUpdated, internalsocket.ConversationUpdatedPayload{
		Status:    string(model.StatusLive),
		AgentName: r.agentName,
	})

	time.Sleep(r.replyDelay)
	r.sendAs(ctx, c, "agent", r.agentName, "Hi, this is "+r.agentName+". I have the conversation in front of me, how can I help?")
}

func (r *Responder) close(ctx context.Context, c Customer) {
	if err := r.repo.UpdateStatus(ctx, c.CustomerID, string(model.StatusClosed), ""); err != nil {
		log.Printf("responder: update status: %v", err)
		return
	}

	r.sendAs(ctx, c, "agent", c.AgentName, "Thanks for reaching out, closing this conversation now.")
	r.notifier.Notify(c.CustomerID, internalsocket.EventClosedByAgent, internalsocket.ClosedPayload{
		ConversationID: c.ConversationID,
		ClosedBy:       "agent",
	})
}

func (r *Responder) reply(ctx context.Context, c Customer, lower string) {
	sender := "bot"
	name := ""
	if c.Status == string(model.StatusLive) {
		sender = "agent"
		name = c.AgentName

		r.notifier.Notify(c.CustomerID, internalsocket.EventAgentTyping, internalsocket.TypingPayload{
			CustomerID: c.CustomerID,
			BusinessID: c.BusinessID,
			Source:     "agent",
		})
	}

	time.Sleep(r.replyDelay)
	text := cannedReply(lower)

	if sender == "agent" {
		r.notifier.Notify(c.CustomerID, internalsocket.EventAgentStoppedTyping, internalsocket.TypingPayload{
			CustomerID: c.CustomerID,
			BusinessID: c.BusinessID,
			Source:     "agent",
		})
	}
	r.sendAs(ctx, c, sender, name, text)
}

func (r *Responder) sendAs(ctx context.Context, c Customer, sender, agentName, text string) {
	msg := StoredMessage{
		ID:         uuid.NewString(),
		CustomerID: c.CustomerID,
		BusinessID: c.BusinessID,
		Sender:     sender,
		Message:    text,
		AgentName:  agentName,
		Timestamp:  r.now().UTC().Format(time.RFC3339),
	}
	if err := r.repo.SaveMessage(ctx, msg); err != nil {
		log.Printf("responder: save message: %v", err)
		return
	}

	r.notifier.Notify(c.CustomerID, internalsocket.EventNewMessage, internalsocket.NewMessagePayload{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Message:   msg.Message,
		AgentName: msg.AgentName,
		Timestamp: msg.Timestamp,
	})
}

func cannedReply(lower string) string {
	switch {
	case strings.Contains(lower, "hour"), strings.Contains(lower, "open"):
		return "We are open Monday to Friday, 9:00 to 17:00."
	case strings.Contains(lower, "price"), strings.Contains(lower, "cost"):
		return "Pricing depends on the plan, the starter tier is free."
	case strings.Contains(lower, "hello"), strings.Contains(lower, "hi"):
		return "Hello! What can I help you with today?"
	default:
		return "I noted that down. Anything else I can help with?"
	}
}
