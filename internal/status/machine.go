// Package status tracks conversation handoff between the AI persona, a human
// agent, a ticket and the terminal closed state. Transitions are driven only
// by backend events, never inferred locally.
package status

import (
	"log"

	"chat-widget-engine/internal/model"
)

// Effects receives the side effects of transitions. Implemented by the
// widget root; all calls happen on its event loop.
type Effects interface {
	// AgentJoined fires once when a human agent takes over.
	AgentJoined(name string)
	// ClearLoader abandons a stale awaiting-AI placeholder.
	ClearLoader()
	// ConversationClosed schedules the collapse and wipe sequence.
	ConversationClosed(closedBy string)
}

type Machine struct {
	current   model.ConversationStatus
	agentName string
	effects   Effects
}

func NewMachine(effects Effects) *Machine {
	return &Machine{current: model.StatusAIOnly, effects: effects}
}

// Restore sets the machine to a persisted snapshot without firing effects.
func (m *Machine) Restore(status model.ConversationStatus, agentName string) {
	if status == "" {
		status = model.StatusAIOnly
	}
	m.current = status
	m.agentName = agentName
}

func (m *Machine) Current() model.ConversationStatus {
	return m.current
}

func (m *Machine) AgentName() string {
	return m.agentName
}

// LoaderAllowed reports whether outbound messages get an awaiting-reply
// placeholder. Only the AI answers promptly; humans may not.
func (m *Machine) LoaderAllowed() bool {
	return m.current == model.StatusAIOnly
}

// TypingAccepted reports whether agent typing indicators are honored.
func (m *Machine) TypingAccepted() bool {
	return m.current == model.StatusLive
}

// Apply handles a conversationUpdated event. Invalid transitions are dropped
// with a log line; agent name updates apply whenever the transition is legal
// or the status is unchanged.
func (m *Machine) Apply(status model.ConversationStatus, agentName string) bool {
	if status == "" || status == m.current {
		if agentName != "" {
			m.agentName = agentName
		}
		return false
	}
	if !m.allowed(status) {
		log.Printf("status: dropping illegal transition %s -> %s", m.current, status)
		return false
	}

	prev := m.current
	m.current = status
	if agentName != "" {
		m.agentName = agentName
	}

	switch status {
	case model.StatusLive:
		if prev == model.StatusAIOnly {
			// An AI reply that never arrived is abandoned, not waited for.
			m.effects.ClearLoader()
			m.effects.AgentJoined(m.agentName)
		}
	case model.StatusClosed:
		m.effects.ConversationClosed(agentName)
	}
	return true
}

// Close handles conversationClosedBySystem/ByAgent events.
func (m *Machine) Close(closedBy string) bool {
	if m.current == model.StatusClosed {
		return false
	}
	m.current = model.StatusClosed
	m.effects.ConversationClosed(closedBy)
	return true
}

func (m *Machine) allowed(next model.ConversationStatus) bool {
	switch m.current {
	case model.StatusAIOnly:
		return next == model.StatusLive || next == model.StatusTicket || next == model.StatusClosed
	case model.StatusLive:
		return next == model.StatusAIOnly || next == model.StatusTicket || next == model.StatusClosed
	case model.StatusTicket:
		// A ticket stays human-handled: it never goes back to live, only
		// to ai_only on an explicit signal, or closed.
		return next == model.StatusAIOnly || next == model.StatusClosed
	default:
		// closed is terminal
		return false
	}
}
