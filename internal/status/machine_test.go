package status

import (
	"testing"

	"chat-widget-engine/internal/model"
)

type recordedEffects struct {
	joined      []string
	loaderClear int
	closed      []string
}

func (e *recordedEffects) AgentJoined(name string) {
	e.joined = append(e.joined, name)
}

func (e *recordedEffects) ClearLoader() {
	e.loaderClear++
}

func (e *recordedEffects) ConversationClosed(closedBy string) {
	e.closed = append(e.closed, closedBy)
}

func TestAgentHandoff(t *testing.T) {
	effects := &recordedEffects{}
	m := NewMachine(effects)

	if !m.LoaderAllowed() {
		t.Fatal("ai_only should allow loaders")
	}
	if m.TypingAccepted() {
		t.Fatal("typing should not be accepted before handoff")
	}

	if !m.Apply(model.StatusLive, "Sam") {
		t.Fatal("handoff to live rejected")
	}
	if m.Current() != model.StatusLive || m.AgentName() != "Sam" {
		t.Fatalf("got %s/%s, want live/Sam", m.Current(), m.AgentName())
	}
	if len(effects.joined) != 1 || effects.joined[0] != "Sam" {
		t.Fatalf("joined notices: %v", effects.joined)
	}
	if effects.loaderClear != 1 {
		t.Fatalf("stale loader not cleared: %d", effects.loaderClear)
	}
	if m.LoaderAllowed() {
		t.Fatal("live must not add loaders")
	}
	if !m.TypingAccepted() {
		t.Fatal("live should accept typing indicators")
	}
}

func TestAgentJoinedNoticeIsOneTime(t *testing.T) {
	effects := &recordedEffects{}
	m := NewMachine(effects)

	m.Apply(model.StatusLive, "Sam")
	m.Apply(model.StatusLive, "Sam")
	m.Apply("", "Alex") // name update only

	if len(effects.joined) != 1 {
		t.Fatalf("joined notices: %v, want exactly one", effects.joined)
	}
	if m.AgentName() != "Alex" {
		t.Fatalf("agent name %q, want Alex", m.AgentName())
	}
}

func TestExplicitReturnToAIOnly(t *testing.T) {
	effects := &recordedEffects{}
	m := NewMachine(effects)

	m.Apply(model.StatusLive, "Sam")
	if !m.Apply(model.StatusAIOnly, "") {
		t.Fatal("explicit return to ai_only rejected")
	}
	if m.Current() != model.StatusAIOnly {
		t.Fatalf("got %s, want ai_only", m.Current())
	}
}

func TestTicketNeverReturnsToLive(t *testing.T) {
	effects := &recordedEffects{}
	m := NewMachine(effects)

	m.Apply(model.StatusLive, "Sam")
	m.Apply(model.StatusTicket, "")

	if m.Apply(model.StatusLive, "Sam") {
		t.Fatal("ticket -> live should be dropped")
	}
	if m.Current() != model.StatusTicket {
		t.Fatalf("got %s, want ticket", m.Current())
	}
	if m.LoaderAllowed() {
		t.Fatal("ticket must not add loaders")
	}
	if m.TypingAccepted() {
		t.Fatal("only live accepts typing indicators")
	}
}

func TestClosedIsTerminal(t *testing.T) {
	effects := &recordedEffects{}
	m := NewMachine(effects)

	if !m.Close("system") {
		t.Fatal("close rejected")
	}
	if len(effects.closed) != 1 || effects.closed[0] != "system" {
		t.Fatalf("closed effects: %v", effects.closed)
	}

	if m.Apply(model.StatusLive, "Sam") {
		t.Fatal("closed must be terminal")
	}
	if m.Close("agent") {
		t.Fatal("double close should be a no-op")
	}
	if len(effects.closed) != 1 {
		t.Fatalf("closed effects fired twice: %v", effects.closed)
	}
}

func TestRestoreDoesNotFireEffects(t *testing.T) {
	effects := &recordedEffects{}
	m := NewMachine(effects)

	m.Restore(model.StatusLive, "Sam")

	if m.Current() != model.StatusLive || m.AgentName() != "Sam" {
		t.Fatalf("restore failed: %s/%s", m.Current(), m.AgentName())
	}
	if len(effects.joined) != 0 || effects.loaderClear != 0 {
		t.Fatal("restore must not fire transition effects")
	}
}
