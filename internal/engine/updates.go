package engine

import (
	"chat-widget-engine/internal/model"
	"chat-widget-engine/internal/transport"
)

type UpdateKind int

const (
	// UpdateState carries a fresh conversation snapshot after any change
	// to the transcript, identifiers or status.
	UpdateState UpdateKind = iota
	// UpdateNotice is informational text for the user (agent joined, etc).
	UpdateNotice
	// UpdateError is a user-visible failure; RestoreInput carries the
	// text of a failed send so the user can retry.
	UpdateError
	// UpdateTyping toggles the human-agent typing indicator.
	UpdateTyping
	// UpdateConnection reflects live channel health for the status dot.
	UpdateConnection
	// UpdateCollapsed tells the front end the widget auto-collapsed.
	UpdateCollapsed
	// UpdateFAQs delivers the default question/answer pairs.
	UpdateFAQs
)

type Update struct {
	Kind         UpdateKind
	State        model.ConversationState
	Text         string
	RestoreInput string
	Active       bool
	FAQs         []transport.FAQEntry
}

// Snapshot is a point-in-time view of everything the front end renders.
type Snapshot struct {
	State       model.ConversationState
	Connected   bool
	PanelOpen   bool
	AgentTyping bool
	FAQs        []transport.FAQEntry
}
