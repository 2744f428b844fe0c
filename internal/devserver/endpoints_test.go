package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chat-widget-engine/internal/httpserver"
	"chat-widget-engine/internal/model"
	"chat-widget-engine/internal/session"
	internalsocket "chat-widget-engine/internal/socket"
	"chat-widget-engine/internal/transport"
)

type notification struct {
	customerID string
	event      string
	payload    any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(customerID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{customerID: customerID, event: event, payload: payload})
}

func (n *recordingNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.event
	}
	return out
}

func (n *recordingNotifier) waitForEvent(t *testing.T, event string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range n.events() {
			if e == event {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s notification, saw %v", event, n.events())
}

func newTestEndpoints(t *testing.T) (*WidgetEndpoints, *MemoryRepository, *recordingNotifier) {
	t.Helper()
	repo := NewMemoryRepository()
	notifier := &recordingNotifier{}
	sessions := session.New("test-secret", time.Hour, nil)
	responder := NewResponder(repo, notifier, "Sam", time.Millisecond)

	config := BusinessConfig{
		BusinessID: "biz-1",
		AgentName:  "Nova",
		Workflow: &transport.BootstrapResult{
			WorkflowActive:  true,
			WorkflowTrigger: "first_message",
			FirstStep: &transport.WorkflowStepPayload{
				Prompt:  "Pick a language",
				Options: []transport.OptionPayload{{Value: "lang_en", Label: "English"}},
			},
		},
		FAQs: []transport.FAQEntry{{Question: "Hours?", Answer: "9 to 5."}},
	}
	return NewWidgetEndpoints(repo, sessions, notifier, responder, config), repo, notifier
}

func postJSON(t *testing.T, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func bootstrap(t *testing.T, h *WidgetEndpoints, email string) transport.BootstrapResult {
	t.Helper()
	rec := httptest.NewRecorder()
	req := postJSON(t, transport.BootstrapRequest{
		Name: "Ola", Email: email, BusinessID: "biz-1", AgentName: "Nova",
	})
	if err := h.Sessions(rec, req); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return decodeData[transport.BootstrapResult](t, rec)
}

func TestBootstrapValidatesContactFields(t *testing.T) {
	h, _, _ := newTestEndpoints(t)

	rec := httptest.NewRecorder()
	err := h.Sessions(rec, postJSON(t, transport.BootstrapRequest{Email: "not-an-email"}))

	var httpErr *httpserver.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", httpErr.StatusCode)
	}
	if httpErr.Fields["name"] == "" || httpErr.Fields["email"] == "" {
		t.Fatalf("field errors missing: %+v", httpErr.Fields)
	}
}

func TestBootstrapIssuesSessionAndWorkflow(t *testing.T) {
	h, _, _ := newTestEndpoints(t)

	result := bootstrap(t, h, "ola@example.com")
	if result.CustomerID == "" || result.SessionToken == "" {
		t.Fatalf("incomplete bootstrap: %+v", result)
	}
	if !result.WorkflowActive || result.FirstStep == nil || result.FirstStep.Prompt != "Pick a language" {
		t.Fatalf("workflow not advertised: %+v", result)
	}

	claims, err := h.sessions.Parse(result.SessionToken)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.CustomerID != result.CustomerID {
		t.Fatalf("token customer %q, want %q", claims.CustomerID, result.CustomerID)
	}
}

func TestBootstrapResumesByEmail(t *testing.T) {
	h, _, _ := newTestEndpoints(t)

	first := bootstrap(t, h, "ola@example.com")
	second := bootstrap(t, h, "ola@example.com")
	if first.CustomerID != second.CustomerID {
		t.Fatalf("same email produced different customers: %q vs %q", first.CustomerID, second.CustomerID)
	}

	other := bootstrap(t, h, "kasia@example.com")
	if other.CustomerID == first.CustomerID {
		t.Fatal("different emails must not share a conversation")
	}
}

func TestSendStoresEchoesAndTriggersReply(t *testing.T) {
	h, repo, notifier := newTestEndpoints(t)
	boot := bootstrap(t, h, "ola@example.com")

	rec := httptest.NewRecorder()
	err := h.SendMessage(rec, postJSON(t, transport.SendRequest{
		Message: "what are your hours?", BusinessID: "biz-1", CustomerID: boot.CustomerID,
	}))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	result := decodeData[transport.SendResult](t, rec)
	if result.MessageID == "" {
		t.Fatal("send result missing server message id")
	}

	notifier.waitForEvent(t, internalsocket.EventNewMessage)

	// Assistant reply lands asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		messages, _ := repo.MessagesSince(context.Background(), boot.CustomerID, "", 0)
		if len(messages) >= 2 {
			if messages[0].Sender != "user" {
				t.Fatalf("first stored message: %+v", messages[0])
			}
			last := messages[len(messages)-1]
			if last.Sender != "bot" || last.Message != "We are open Monday to Friday, 9:00 to 17:00." {
				t.Fatalf("assistant reply: %+v", last)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("assistant never replied, transcript: %+v", messages)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendPreservesWorkflowValueAsMetadata(t *testing.T) {
	h, repo, _ := newTestEndpoints(t)
	boot := bootstrap(t, h, "ola@example.com")

	rec := httptest.NewRecorder()
	err := h.SendMessage(rec, postJSON(t, transport.SendRequest{
		Message: "lang_en", DisplayText: "English", BusinessID: "biz-1", CustomerID: boot.CustomerID,
	}))
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	messages, _ := repo.MessagesSince(context.Background(), boot.CustomerID, "", 0)
	if len(messages) == 0 {
		t.Fatal("message not stored")
	}
	if messages[0].Message != "English" || messages[0].Metadata["value"] != "lang_en" {
		t.Fatalf("stored entry: %+v", messages[0])
	}
}

func TestSendToClosedConversationConflicts(t *testing.T) {
	h, repo, _ := newTestEndpoints(t)
	boot := bootstrap(t, h, "ola@example.com")
	if err := repo.UpdateStatus(context.Background(), boot.CustomerID, string(model.StatusClosed), ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	rec := httptest.NewRecorder()
	err := h.SendMessage(rec, postJSON(t, transport.SendRequest{
		Message: "hello?", BusinessID: "biz-1", CustomerID: boot.CustomerID,
	}))

	var httpErr *httpserver.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 HTTPError, got %v", err)
	}
}

func TestHandoffGoesLiveWithAgentGreeting(t *testing.T) {
	h, repo, notifier := newTestEndpoints(t)
	boot := bootstrap(t, h, "ola@example.com")

	rec := httptest.NewRecorder()
	err := h.SendMessage(rec, postJSON(t, transport.SendRequest{
		Message: "can I talk to a human agent please", BusinessID: "biz-1", CustomerID: boot.CustomerID,
	}))
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	notifier.waitForEvent(t, internalsocket.EventConversationUpdated)

	deadline := time.Now().Add(2 * time.Second)
	for {
		customer, err := repo.GetCustomer(context.Background(), boot.CustomerID)
		if err != nil {
			t.Fatalf("get customer: %v", err)
		}
		if customer.Status == string(model.StatusLive) {
			if customer.AgentName != "Sam" {
				t.Fatalf("agent name %q, want Sam", customer.AgentName)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("conversation never went live: %+v", customer)
		}
		time.Sleep(5 * time.Millisecond)
	}

	notifier.waitForEvent(t, internalsocket.EventNewMessage)
}

func TestHistoryFiltersBySince(t *testing.T) {
	h, repo, _ := newTestEndpoints(t)
	boot := bootstrap(t, h, "ola@example.com")

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		repo.SaveMessage(context.Background(), StoredMessage{
			ID:         text,
			CustomerID: boot.CustomerID,
			Sender:     "bot",
			Message:    text,
			Timestamp:  base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		})
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/?customerId="+boot.CustomerID+"&since="+base.Format(time.RFC3339), nil)
	if err := h.History(rec, req); err != nil {
		t.Fatalf("history: %v", err)
	}

	result := decodeData[transport.HistoryResult](t, rec)
	if len(result.Messages) != 2 {
		t.Fatalf("got %d messages, want the 2 after since", len(result.Messages))
	}
	if result.Messages[0].ID != "two" || result.Messages[1].ID != "three" {
		t.Fatalf("wrong slice: %+v", result.Messages)
	}
}

func TestDefaultResponses(t *testing.T) {
	h, _, _ := newTestEndpoints(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/business/biz-1/Nova/default-responses", nil)
	if err := h.DefaultResponses(rec, req); err != nil {
		t.Fatalf("default responses: %v", err)
	}

	result := decodeData[struct {
		DefaultFAQResponses []transport.FAQEntry `json:"defaultFAQResponses"`
	}](t, rec)
	if len(result.DefaultFAQResponses) != 1 || result.DefaultFAQResponses[0].Question != "Hours?" {
		t.Fatalf("faq payload: %+v", result)
	}
}
