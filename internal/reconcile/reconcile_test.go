package reconcile

import (
	"testing"
	"time"

	"chat-widget-engine/internal/model"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testReconciler(now time.Time) *Reconciler {
	return NewWithClock(DefaultWindow, func() time.Time { return now })
}

func TestInboundDuplicateByID(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	push := Candidate{Sender: model.SenderBot, Text: "hi there", ServerID: "m-1", Timestamp: testBase}
	if got := r.Inbound(&s, push); got != OutcomeAccepted {
		t.Fatalf("first delivery: got %v, want accepted", got)
	}

	poll := Candidate{Sender: model.SenderBot, Text: "hi there", ServerID: "m-1", Timestamp: testBase.Add(time.Second)}
	if got := r.Inbound(&s, poll); got != OutcomeDuplicate {
		t.Fatalf("second delivery: got %v, want duplicate", got)
	}
	if len(s.Messages) != 1 {
		t.Fatalf("log length %d, want 1", len(s.Messages))
	}
}

func TestInboundDuplicateByTextProximity(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	r.Inbound(&s, Candidate{Sender: model.SenderBot, Text: "hi there", ServerID: "m-1", Timestamp: testBase})

	// Same text via the other path, no id, within the window.
	dup := Candidate{Sender: model.SenderBot, Text: "hi there", Timestamp: testBase.Add(2 * time.Second)}
	if got := r.Inbound(&s, dup); got != OutcomeDuplicate {
		t.Fatalf("got %v, want duplicate", got)
	}

	// Outside the window it is a new event.
	later := Candidate{Sender: model.SenderBot, Text: "hi there", Timestamp: testBase.Add(time.Minute)}
	if got := r.Inbound(&s, later); got != OutcomeAccepted {
		t.Fatalf("got %v, want accepted", got)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("log length %d, want 2", len(s.Messages))
	}
}

func TestSenderIsPartOfIdentity(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	r.Inbound(&s, Candidate{Sender: model.SenderSystem, Text: "Pick a language", Timestamp: testBase})
	got := r.Inbound(&s, Candidate{Sender: model.SenderBot, Text: "Pick a language", Timestamp: testBase.Add(time.Second)})

	if got != OutcomeAccepted {
		t.Fatalf("bot message with same text as system prompt: got %v, want accepted", got)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("log length %d, want 2", len(s.Messages))
	}
}

func TestOptimisticEchoAdoptsServerID(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	tempID, ok := r.Outbound(&s, "Hello", "", true)
	if !ok {
		t.Fatal("outbound rejected")
	}
	if len(s.Messages) != 2 {
		t.Fatalf("expected optimistic entry + loader, got %d messages", len(s.Messages))
	}

	echo := Candidate{Sender: model.SenderUser, Text: "Hello", ServerID: "abc123", Timestamp: testBase.Add(time.Second)}
	if got := r.Inbound(&s, echo); got != OutcomeAdopted {
		t.Fatalf("got %v, want adopted", got)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("echo changed log length: %d", len(s.Messages))
	}
	if s.Messages[0].ID != "abc123" {
		t.Fatalf("optimistic entry kept id %q, want abc123", s.Messages[0].ID)
	}
	if model.IsTempID(s.Messages[0].ID) {
		t.Fatal("temp id should be retired after adoption")
	}
	if s.Messages[0].ID == tempID {
		t.Fatal("temp id survived adoption")
	}
}

func TestWorkflowOptionEchoMatchesTransmittedValue(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	// Option with machine value "lang_en" displayed as "English".
	r.Outbound(&s, "lang_en", "English", false)

	echo := Candidate{Sender: model.SenderUser, Text: "lang_en", ServerID: "m-9", Timestamp: testBase.Add(time.Second)}
	if got := r.Inbound(&s, echo); got != OutcomeAdopted {
		t.Fatalf("got %v, want adopted", got)
	}
	if len(s.Messages) != 1 {
		t.Fatalf("option echo appended a duplicate: %d messages", len(s.Messages))
	}
	if s.Messages[0].ID != "m-9" || s.Messages[0].Text != "English" {
		t.Fatalf("unexpected reconciled entry: %+v", s.Messages[0])
	}
	if s.Messages[0].SentText != "" {
		t.Fatal("transmitted value should be cleared once the id resolves")
	}
}

func TestUnmatchedEchoIgnored(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	// Echo for an entry already rolled back by the error path.
	echo := Candidate{Sender: model.SenderUser, Text: "Hello", ServerID: "m-1", Timestamp: testBase}
	if got := r.Inbound(&s, echo); got != OutcomeIgnored {
		t.Fatalf("got %v, want ignored", got)
	}
	if len(s.Messages) != 0 {
		t.Fatalf("ignored echo mutated the log: %d messages", len(s.Messages))
	}
}

func TestLoaderLifecycle(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	r.Outbound(&s, "Hello", "", true)
	if !s.HasLoader() {
		t.Fatal("expected one loader before the first reply")
	}

	r.Inbound(&s, Candidate{Sender: model.SenderBot, Text: "Hi, how can I help?", ServerID: "m-2", Timestamp: testBase.Add(time.Second)})
	if s.HasLoader() {
		t.Fatal("loader should be gone after an accepted reply")
	}
}

func TestSecondOutboundReplacesLoader(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	r.Outbound(&s, "first", "", true)
	r.Outbound(&s, "second", "", true)

	loaders := 0
	for _, m := range s.Messages {
		if m.Kind == model.KindLoader {
			loaders++
		}
	}
	if loaders != 1 {
		t.Fatalf("got %d loaders, want exactly 1", loaders)
	}
	if s.Messages[len(s.Messages)-1].Kind != model.KindLoader {
		t.Fatal("loader must stay last")
	}
}

func TestOutboundRejectsBlankInput(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	if _, ok := r.Outbound(&s, "   \t", "", true); ok {
		t.Fatal("whitespace-only input must not produce a message")
	}
	if len(s.Messages) != 0 {
		t.Fatalf("log should stay empty, got %d messages", len(s.Messages))
	}
}

func TestRollbackRemovesEntryAndLoader(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	tempID, _ := r.Outbound(&s, "Hello", "", true)
	r.Rollback(&s, tempID)

	if len(s.Messages) != 0 {
		t.Fatalf("rollback left %d messages", len(s.Messages))
	}

	// A late echo after rollback must reconcile harmlessly.
	echo := Candidate{Sender: model.SenderUser, Text: "Hello", ServerID: "m-1", Timestamp: testBase.Add(2 * time.Second)}
	if got := r.Inbound(&s, echo); got != OutcomeIgnored {
		t.Fatalf("late echo: got %v, want ignored", got)
	}
}

func TestWatermarkAdvances(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	first := testBase.Add(time.Minute)
	r.Inbound(&s, Candidate{Sender: model.SenderBot, Text: "one", ServerID: "m-1", Timestamp: first})
	if !s.LastSeen.Equal(first) {
		t.Fatalf("watermark %v, want %v", s.LastSeen, first)
	}

	// Out-of-order arrival must not move the watermark backward.
	r.Inbound(&s, Candidate{Sender: model.SenderBot, Text: "zero", ServerID: "m-0", Timestamp: testBase})
	if !s.LastSeen.Equal(first) {
		t.Fatalf("watermark regressed to %v", s.LastSeen)
	}
}

func TestAlreadySeen(t *testing.T) {
	r := testReconciler(testBase)
	s := model.NewConversationState()

	r.Inbound(&s, Candidate{Sender: model.SenderBot, Text: "hi there", ServerID: "m-1", Timestamp: testBase})

	byID := Candidate{Sender: model.SenderBot, Text: "hi there", ServerID: "m-1", Timestamp: testBase}
	if !r.AlreadySeen(&s, byID) {
		t.Fatal("id match should be seen")
	}
	byText := Candidate{Sender: model.SenderBot, Text: "hi there", Timestamp: testBase.Add(time.Second)}
	if !r.AlreadySeen(&s, byText) {
		t.Fatal("text+proximity match should be seen")
	}
	fresh := Candidate{Sender: model.SenderBot, Text: "something new", ServerID: "m-2", Timestamp: testBase}
	if r.AlreadySeen(&s, fresh) {
		t.Fatal("fresh message should not be seen")
	}
}

func TestNormalizeSender(t *testing.T) {
	cases := map[string]model.Sender{
		"user":    model.SenderUser,
		"Visitor": model.SenderUser,
		"agent":   model.SenderBot,
		"ai":      model.SenderBot,
		"bot":     model.SenderBot,
		"system":  model.SenderSystem,
	}
	for role, want := range cases {
		if got := NormalizeSender(role); got != want {
			t.Errorf("NormalizeSender(%q) = %v, want %v", role, got, want)
		}
	}
}
