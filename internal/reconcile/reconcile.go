// Package reconcile merges messages from optimistic sends, the push channel
// and the polling fallback into one ordered, duplicate-free conversation log.
// Both delivery paths feed the same entry point; deduplication by id and
// timestamp proximity compensates for cross-path reordering.
package reconcile

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-widget-engine/internal/model"
)

// DefaultWindow is the timestamp-proximity tolerance for treating two
// messages with equal text as the same event. Tunable, not contractual.
const DefaultWindow = 3 * time.Second

type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeAdopted // server id adopted onto an optimistic placeholder
	OutcomeIgnored // own echo with nothing left to reconcile
)

// Candidate is an inbound message candidate from either delivery path.
type Candidate struct {
	Sender    model.Sender
	Text      string // literal transmitted value
	Display   string // optional display text when it differs from Text
	ServerID  string
	Timestamp time.Time
	Options   []model.Option
}

type Reconciler struct {
	window time.Duration
	now    func() time.Time
}

func New() *Reconciler {
	return NewWithClock(DefaultWindow, nil)
}

func NewWithClock(window time.Duration, now func() time.Time) *Reconciler {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{window: window, now: now}
}

// NormalizeSender maps wire-level sender roles onto transcript senders. AI
// and human-agent replies both collapse to bot; attribution is carried by the
// conversation's current agent name, not the message.
func NormalizeSender(role string) model.Sender {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "visitor", "customer":
		return model.SenderUser
	case "system":
		return model.SenderSystem
	default:
		return model.SenderBot
	}
}

// Inbound merges one candidate into the log. Own echoes are never appended:
// they either resolve an optimistic placeholder's identifier or are ignored.
// Accepted messages clear any pending loader and advance the watermark.
func (r *Reconciler) Inbound(s *model.ConversationState, c Candidate) Outcome {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	display := c.Display
	if display == "" {
		display = c.Text
	}

	if c.Sender == model.SenderUser {
		if i := r.matchOptimistic(s, c, ts); i >= 0 {
			if c.ServerID != "" {
				s.Messages[i].ID = c.ServerID
				s.Messages[i].SentText = ""
			}
			s.AdvanceWatermark(ts)
			countAdopted()
			return OutcomeAdopted
		}
		countDropped()
		return OutcomeIgnored
	}

	if c.ServerID != "" && s.FindByID(c.ServerID) >= 0 {
		countDropped()
		return OutcomeDuplicate
	}

	for i := range s.Messages {
		m := &s.Messages[i]
		if m.Kind != model.KindText || m.Sender != c.Sender {
			continue
		}
		if m.Text != display || !within(m.Timestamp, ts, r.window) {
			continue
		}
		if !m.Resolved() && c.ServerID != "" {
			m.ID = c.ServerID
			s.AdvanceWatermark(ts)
			countAdopted()
			return OutcomeAdopted
		}
		countDropped()
		return OutcomeDuplicate
	}

	id := c.ServerID
	if id == "" {
		id = uuid.NewString()
	}
	s.RemoveLoader()
	s.Messages = append(s.Messages, model.Message{
		ID:        id,
		Text:      display,
		Sender:    c.Sender,
		Kind:      model.KindText,
		Timestamp: ts,
		Options:   c.Options,
	})
	s.AdvanceWatermark(ts)
	countAccepted()
	return OutcomeAccepted
}

// Outbound appends an optimistic user message. The returned temp id ties the
// entry to its eventual confirmation or rollback. withLoader adds the
// awaiting-AI-reply placeholder; the caller decides based on conversation
// status. Empty input produces no message.
func (r *Reconciler) Outbound(s *model.ConversationState, text, display string, withLoader bool) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if display == "" {
		display = text
	}

	now := r.now()
	tempID := model.NewTempID(now)
	msg := model.Message{
		ID:        tempID,
		Text:      display,
		Sender:    model.SenderUser,
		Kind:      model.KindText,
		Timestamp: now,
	}
	if display != text {
		msg.SentText = text
	}

	s.RemoveLoader()
	s.Messages = append(s.Messages, msg)
	s.AdvanceWatermark(now)

	if withLoader {
		s.Messages = append(s.Messages, model.Message{
			Sender:    model.SenderBot,
			Kind:      model.KindLoader,
			Timestamp: now,
		})
	}
	return tempID, true
}

// Rollback removes a failed optimistic entry and any loader tied to it.
// Harmless when the entry is already gone.
func (r *Reconciler) Rollback(s *model.ConversationState, tempID string) {
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if m.ID == tempID || m.Kind == model.KindLoader {
			continue
		}
		kept = append(kept, m)
	}
	s.Messages = kept
}

// AlreadySeen reports whether a candidate would be dropped as a duplicate,
// letting the polling fallback pre-filter responses without mutating state.
func (r *Reconciler) AlreadySeen(s *model.ConversationState, c Candidate) bool {
	if c.ServerID != "" && s.FindByID(c.ServerID) >= 0 {
		return true
	}
	ts := c.Timestamp
	display := c.Display
	if display == "" {
		display = c.Text
	}
	for _, m := range s.Messages {
		if m.Kind != model.KindText || m.Sender != c.Sender {
			continue
		}
		if m.Text == display && m.Resolved() && within(m.Timestamp, ts, r.window) {
			return true
		}
	}
	return false
}

func (r *Reconciler) matchOptimistic(s *model.ConversationState, c Candidate, ts time.Time) int {
	for i := range s.Messages {
		m := &s.Messages[i]
		if m.Sender != model.SenderUser || m.Kind != model.KindText || m.Resolved() {
			continue
		}
		// A pending workflow-option selection matches on the literal
		// transmitted value; plain text matches on the display text.
		if m.SentText != "" && m.SentText == c.Text {
			return i
		}
		if m.Text == c.Text && within(m.Timestamp, ts, r.window) {
			return i
		}
	}
	return -1
}

func within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}
