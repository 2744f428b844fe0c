package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chat-widget-engine/internal/httpserver"
	"chat-widget-engine/internal/httpserver/middleware"
	"chat-widget-engine/internal/model"
	"chat-widget-engine/internal/session"
	internalsocket "chat-widget-engine/internal/socket"
	"chat-widget-engine/internal/transport"

	"github.com/google/uuid"
)

// BusinessConfig is the per-business setup the devserver plays back: the
// assistant persona, an optional guided workflow and the FAQ list.
type BusinessConfig struct {
	BusinessID string
	AgentName  string
	Workflow   *transport.BootstrapResult
	FAQs       []transport.FAQEntry
}

type WidgetEndpoints struct {
	repo      Repository
	sessions  *session.Manager
	notifier  Notifier
	responder *Responder
	config    BusinessConfig
	now       func() time.Time
}

func NewWidgetEndpoints(repo Repository, sessions *session.Manager, notifier Notifier, responder *Responder, config BusinessConfig) *WidgetEndpoints {
	return &WidgetEndpoints{
		repo:      repo,
		sessions:  sessions,
		notifier:  notifier,
		responder: responder,
		config:    config,
		now:       time.Now,
	}
}

func (h *WidgetEndpoints) Sessions(w http.ResponseWriter, r *http.Request) error {
	return httpserver.MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleBootstrap,
	})
}

func (h *WidgetEndpoints) SendMessage(w http.ResponseWriter, r *http.Request) error {
	return httpserver.MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleSend,
	})
}

func (h *WidgetEndpoints) History(w http.ResponseWriter, r *http.Request) error {
	return httpserver.MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleHistory,
	})
}

func (h *WidgetEndpoints) DefaultResponses(w http.ResponseWriter, r *http.Request) error {
	return httpserver.MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleDefaultResponses,
	})
}

func (h *WidgetEndpoints) handleBootstrap(w http.ResponseWriter, r *http.Request) error {
	var req transport.BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &httpserver.HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode bootstrap request: %w", err),
		}
	}

	fields := map[string]string{}
	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = "Name is required"
	}
	if strings.TrimSpace(req.Email) == "" {
		fields["email"] = "Email is required"
	} else if !strings.Contains(req.Email, "@") {
		fields["email"] = "Email is not valid"
	}
	if len(fields) > 0 {
		return &httpserver.HTTPError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "Validation failed",
			Fields:     fields,
		}
	}
	if req.BusinessID != h.config.BusinessID {
		return &httpserver.HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Unknown business",
			ErrorLog:   fmt.Errorf("bootstrap for unknown business %q", req.BusinessID),
		}
	}
	if req.AgentName == "" {
		req.AgentName = h.config.AgentName
	}

	ctx := r.Context()

	customer, err := h.repo.FindCustomerByEmail(ctx, req.BusinessID, req.Email)
	if errors.Is(err, ErrNotFound) {
		customer = Customer{
			CustomerID:     uuid.NewString(),
			BusinessID:     req.BusinessID,
			AgentName:      req.AgentName,
			ConversationID: uuid.NewString(),
			Name:           req.Name,
			Phone:          req.Phone,
			Email:          req.Email,
			Status:         string(model.StatusAIOnly),
			CreatedAt:      h.now().UTC().Format(time.RFC3339),
		}
		if err := h.repo.SaveCustomer(ctx, customer); err != nil {
			return fmt.Errorf("save customer: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("find customer: %w", err)
	}

	token, err := h.sessions.Issue(session.Claims{
		CustomerID: customer.CustomerID,
		BusinessID: customer.BusinessID,
		AgentName:  customer.AgentName,
	})
	if err != nil {
		return fmt.Errorf("issue session token: %w", err)
	}
	if err := h.sessions.Register(ctx, session.Record{
		CustomerID:     customer.CustomerID,
		BusinessID:     customer.BusinessID,
		ConversationID: customer.ConversationID,
		Email:          customer.Email,
	}); err != nil {
		return fmt.Errorf("register session: %w", err)
	}

	result := transport.BootstrapResult{
		CustomerID:     customer.CustomerID,
		ConversationID: customer.ConversationID,
		SessionToken:   token,
	}
	if wf := h.config.Workflow; wf != nil {
		result.WorkflowActive = wf.WorkflowActive
		result.WorkflowTrigger = wf.WorkflowTrigger
		result.FirstStep = wf.FirstStep
	}
	return httpserver.WriteData(w, http.StatusOK, result)
}

func (h *WidgetEndpoints) handleSend(w http.ResponseWriter, r *http.Request) error {
	var req transport.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &httpserver.HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode send request: %w", err),
		}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &httpserver.HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Message must not be empty",
		}
	}

	ctx := r.Context()

	customer, err := h.repo.GetCustomer(ctx, req.CustomerID)
	if errors.Is(err, ErrNotFound) {
		return &httpserver.HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Unknown conversation",
			ErrorLog:   fmt.Errorf("send for unknown customer %s", req.CustomerID),
		}
	} else if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}
	if customer.Status == string(model.StatusClosed) {
		return &httpserver.HTTPError{
			StatusCode: http.StatusConflict,
			Message:    "This conversation has ended",
		}
	}

	// Transcript keeps the human-readable text; the raw workflow value, when
	// it differs, rides along as metadata.
	display := req.Message
	var metadata map[string]string
	if req.DisplayText != "" && req.DisplayText != req.Message {
		display = req.DisplayText
		metadata = map[string]string{"value": req.Message}
	}

	msg := StoredMessage{
		ID:         uuid.NewString(),
		CustomerID: customer.CustomerID,
		BusinessID: customer.BusinessID,
		Sender:     "user",
		Message:    display,
		Timestamp:  h.now().UTC().Format(time.RFC3339),
		Metadata:   metadata,
	}
	if err := h.repo.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	h.notifier.Notify(customer.CustomerID, internalsocket.EventNewMessage, internalsocket.NewMessagePayload{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
		Metadata:  msg.Metadata,
	})

	go h.responder.OnUserMessage(context.Background(), customer, display)

	return httpserver.WriteData(w, http.StatusOK, transport.SendResult{
		MessageID:  msg.ID,
		CustomerID: customer.CustomerID,
	})
}

func (h *WidgetEndpoints) handleHistory(w http.ResponseWriter, r *http.Request) error {
	customerID := r.URL.Query().Get("customerId")
	if customerID == "" {
		return &httpserver.HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "customerId is required",
		}
	}
	since := r.URL.Query().Get("since")
	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		limit, _ = strconv.Atoi(rawLimit)
	}

	messages, err := h.repo.MessagesSince(r.Context(), customerID, since, limit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	result := transport.HistoryResult{Messages: make([]transport.MessageRecord, 0, len(messages))}
	for _, m := range messages {
		result.Messages = append(result.Messages, transport.MessageRecord{
			ID:        m.ID,
			Message:   m.Message,
			Sender:    m.Sender,
			Timestamp: m.Timestamp,
			Metadata:  m.Metadata,
		})
	}
	if wf := h.config.Workflow; wf != nil {
		result.WorkflowActive = wf.WorkflowActive
		result.WorkflowTrigger = wf.WorkflowTrigger
		result.FirstStep = wf.FirstStep
	}
	return httpserver.WriteData(w, http.StatusOK, result)
}

func (h *WidgetEndpoints) handleDefaultResponses(w http.ResponseWriter, r *http.Request) error {
	// Path: /api/v1/business/{businessId}/{agentName}/default-responses
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segments) < 3 || segments[len(segments)-1] != "default-responses" {
		return &httpserver.HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Not found",
		}
	}

	faqs := h.config.FAQs
	if faqs == nil {
		faqs = []transport.FAQEntry{}
	}
	return httpserver.WriteData(w, http.StatusOK, struct {
		DefaultFAQResponses []transport.FAQEntry `json:"defaultFAQResponses"`
	}{DefaultFAQResponses: faqs})
}

// Routes wires the widget API onto a server mux.
func Routes(prefix string, endpoints *WidgetEndpoints, handler *Handler, sessions *session.Manager) httpserver.RouteRegistrar {
	return func(mux *http.ServeMux, s *httpserver.Server) {
		auth := middleware.ValidateSession(sessions)

		mux.HandleFunc(prefix+"/sessions", s.MakeHTTPHandleFunc(endpoints.Sessions))
		mux.HandleFunc(prefix+"/messages/send", s.MakeHTTPHandleFunc(endpoints.SendMessage, auth))
		mux.HandleFunc(prefix+"/messages/history", s.MakeHTTPHandleFunc(endpoints.History, auth))
		mux.HandleFunc(prefix+"/business/", s.MakeHTTPHandleFunc(endpoints.DefaultResponses))
		mux.HandleFunc(prefix+"/ws", handler.ServeWS)
	}
}
