// Package engine is the widget root: it owns the conversation state, runs
// the single event loop every mutation is serialized through, and wires the
// reconciler, status machine, push channel, polling fallback and store
// together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chat-widget-engine/internal/model"
	"chat-widget-engine/internal/poll"
	"chat-widget-engine/internal/reconcile"
	"chat-widget-engine/internal/socket"
	"chat-widget-engine/internal/status"
	"chat-widget-engine/internal/store"
	"chat-widget-engine/internal/transport"
)

const (
	// DefaultCollapseDelay gives the user time to read a closing message
	// before the widget folds up; DefaultWipeDelay then clears the record.
	DefaultCollapseDelay = 5 * time.Second
	DefaultWipeDelay     = 2 * time.Second

	// DefaultTypingExpiry self-expires an agent typing indicator when no
	// follow-up event arrives.
	DefaultTypingExpiry = 4 * time.Second

	historyLimit   = 100
	requestTimeout = 15 * time.Second
)

// Transport is the request/response surface the engine depends on.
type Transport interface {
	Bootstrap(ctx context.Context, req transport.BootstrapRequest) (transport.BootstrapResult, error)
	SendMessage(ctx context.Context, token string, req transport.SendRequest) (transport.SendResult, error)
	History(ctx context.Context, token, customerID string, since time.Time, limit int) (transport.HistoryResult, error)
	DefaultResponses(ctx context.Context, businessID, agentName string) ([]transport.FAQEntry, error)
}

// PushChannel is the live duplex connection owned by the engine, created on
// start and torn down on a real stop.
type PushChannel interface {
	Start()
	Stop()
	JoinRoom(customerID string)
	SendTyping(businessID string)
}

type Config struct {
	BusinessID string
	AgentName  string

	Store     store.Store
	Transport Transport
	// NewPush builds the push channel around the engine's event handler.
	// Nil runs the engine in poll-only mode.
	NewPush func(socket.Handler) PushChannel

	CollapseDelay time.Duration
	WipeDelay     time.Duration
	TypingExpiry  time.Duration
	DedupWindow   time.Duration

	Now func() time.Time
}

type Engine struct {
	cfg Config
	key string

	rec     *reconcile.Reconciler
	machine *status.Machine
	push    PushChannel
	poller  *poll.Poller

	// Everything below is touched only on the event loop goroutine.
	state       model.ConversationState
	panelOpen   bool
	connected   bool
	agentTyping bool
	faqs        []transport.FAQEntry
	typingTimer *time.Timer

	cmds    chan func()
	updates chan Update
	done    chan struct{}
	now     func() time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.BusinessID == "" {
		return nil, errors.New("engine: business id is required")
	}
	if cfg.Store == nil || cfg.Transport == nil {
		return nil, errors.New("engine: store and transport are required")
	}
	if cfg.CollapseDelay <= 0 {
		cfg.CollapseDelay = DefaultCollapseDelay
	}
	if cfg.WipeDelay <= 0 {
		cfg.WipeDelay = DefaultWipeDelay
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = DefaultTypingExpiry
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:     cfg,
		key:     model.StateKey(cfg.BusinessID, cfg.AgentName),
		rec:     reconcile.NewWithClock(cfg.DedupWindow, now),
		cmds:    make(chan func(), 64),
		updates: make(chan Update, 64),
		done:    make(chan struct{}),
		now:     now,
	}
	e.machine = status.NewMachine(e)
	e.poller = poll.New(e.pollFetch)
	if cfg.NewPush != nil {
		e.push = cfg.NewPush(e)
	}
	return e, nil
}

// Start restores persisted state and brings up the delivery channels. The
// push connection is established regardless of whether a customer id is
// known yet.
func (e *Engine) Start() {
	loaded, err := e.cfg.Store.Load(e.key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("engine: load state: %v", err)
		}
		loaded = model.NewConversationState()
	}
	e.state = loaded
	e.machine.Restore(loaded.Status, loaded.CurrentAgentName)

	go e.run()

	if e.push != nil {
		e.push.Start()
		if loaded.CustomerID != "" {
			e.push.JoinRoom(loaded.CustomerID)
		}
	} else {
		// Poll-only mode: aggressive cadence from the start.
		e.poller.SetConnected(false)
	}
	e.poller.Start()
	e.syncPoller()
}

func (e *Engine) Stop() {
	// The push field is owned by the loop (Reset swaps it), so snapshot it
	// there before tearing down.
	var push PushChannel
	e.do(func() { push = e.push })
	if push != nil {
		push.Stop()
	}
	e.poller.Stop()
	close(e.done)
}

// Updates is the stream the front end renders from.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case fn := <-e.cmds:
			fn()
		}
	}
}

// enqueue posts a mutation onto the event loop.
func (e *Engine) enqueue(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.done:
	}
}

// do runs fn on the event loop and waits for it. Must not be called from the
// loop itself.
func (e *Engine) do(fn func()) {
	ran := make(chan struct{})
	e.enqueue(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
	case <-e.done:
	}
}

func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	e.do(func() {
		snap = Snapshot{
			State:       e.cloneState(),
			Connected:   e.connected,
			PanelOpen:   e.panelOpen,
			AgentTyping: e.agentTyping,
			FAQs:        append([]transport.FAQEntry(nil), e.faqs...),
		}
	})
	return snap
}

func (e *Engine) OpenPanel() {
	e.enqueue(func() {
		e.panelOpen = true
		e.syncPoller()
		e.emitState()
		if e.state.CustomerID != "" && len(e.faqs) == 0 {
			go e.fetchFAQs()
		}
	})
}

func (e *Engine) ClosePanel() {
	e.enqueue(func() {
		e.panelOpen = false
		e.syncPoller()
	})
}

// SubmitContact bootstraps the session: contact info is collected once and
// immutable afterwards. On failure the form stays open and field-level
// errors are surfaced for retry.
func (e *Engine) SubmitContact(name, phone, email string) {
	e.enqueue(func() {
		if e.state.CustomerID != "" {
			return
		}
		e.state.Contact = model.Contact{Name: name, Phone: phone, Email: email}
		req := transport.BootstrapRequest{
			Name:       name,
			Phone:      phone,
			Email:      email,
			BusinessID: e.cfg.BusinessID,
			AgentName:  e.cfg.AgentName,
		}
		go e.bootstrap(req)
	})
}

func (e *Engine) bootstrap(req transport.BootstrapRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	res, err := e.cfg.Transport.Bootstrap(ctx, req)
	if err != nil {
		e.enqueue(func() { e.emitTransportError("Could not start the conversation. Please try again.", err, "") })
		return
	}

	e.enqueue(func() {
		e.state.CustomerID = res.CustomerID
		e.state.ConversationID = res.ConversationID
		e.state.SessionToken = res.SessionToken
		if res.WorkflowActive {
			e.state.Workflow = &model.WorkflowConfig{
				Active:    true,
				Trigger:   res.WorkflowTrigger,
				FirstStep: workflowStep(res.FirstStep),
			}
		}
		e.save()
		if e.push != nil {
			e.push.JoinRoom(res.CustomerID)
		}
		e.syncPoller()
		e.emitState()
		go e.fetchFAQs()
	})
}

// Send transmits a free-form user message with an optimistic echo. The
// guided-workflow first-message trigger short-circuits transmission and
// injects the prompt locally instead.
func (e *Engine) Send(text string) {
	e.submit(text, "")
}

// SelectOption transmits a guided-workflow choice: the option's value goes
// on the wire while its label lands in the transcript.
func (e *Engine) SelectOption(opt model.Option) {
	e.submit(opt.Value, opt.Label)
}

func (e *Engine) submit(text, display string) {
	e.enqueue(func() {
		if e.machine.Current() == model.StatusClosed {
			e.emit(Update{Kind: UpdateNotice, Text: "This conversation has ended."})
			return
		}

		if display == "" && e.workflowIntercepts() {
			if _, ok := e.rec.Outbound(&e.state, text, "", false); !ok {
				return
			}
			step := e.state.Workflow.FirstStep
			e.rec.Inbound(&e.state, reconcile.Candidate{
				Sender:    model.SenderSystem,
				Text:      step.Prompt,
				Options:   step.Options,
				Timestamp: e.now(),
			})
			e.save()
			e.emitState()
			return
		}

		tempID, ok := e.rec.Outbound(&e.state, text, display, e.machine.LoaderAllowed())
		if !ok {
			return
		}
		e.save()
		e.emitState()
		go e.transmit(tempID, text, display)
	})
}

func (e *Engine) transmit(tempID, text, display string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var token, customerID string
	e.do(func() {
		token = e.state.SessionToken
		customerID = e.state.CustomerID
	})

	req := transport.SendRequest{
		Message:    text,
		BusinessID: e.cfg.BusinessID,
		CustomerID: customerID,
		AgentName:  e.cfg.AgentName,
	}
	if display != text && display != "" {
		req.DisplayText = display
	}

	res, err := e.cfg.Transport.SendMessage(ctx, token, req)
	if err != nil {
		e.enqueue(func() {
			e.rec.Rollback(&e.state, tempID)
			e.save()
			e.emitState()
			e.emitTransportError("Failed to send message. Please try again.", err, text)
		})
		return
	}

	e.enqueue(func() {
		if res.MessageID != "" {
			if i := e.state.FindByID(tempID); i >= 0 {
				e.state.Messages[i].ID = res.MessageID
				e.state.Messages[i].SentText = ""
			}
		}
		if res.CustomerID != "" && e.state.CustomerID == "" {
			e.state.CustomerID = res.CustomerID
			if e.push != nil {
				e.push.JoinRoom(res.CustomerID)
			}
			e.syncPoller()
		}
		e.save()
		e.emitState()
	})
}

// SelectFAQ appends a question/answer pair locally; no send request is made.
func (e *Engine) SelectFAQ(entry transport.FAQEntry) {
	e.enqueue(func() {
		if _, ok := e.rec.Outbound(&e.state, entry.Question, "", false); !ok {
			return
		}
		e.rec.Inbound(&e.state, reconcile.Candidate{
			Sender:    model.SenderBot,
			Text:      entry.Answer,
			Timestamp: e.now(),
		})
		e.save()
		e.emitState()
	})
}

// Typing forwards a visitor typing notification over the live channel.
func (e *Engine) Typing() {
	e.enqueue(func() {
		if e.push != nil {
			e.push.SendTyping(e.cfg.BusinessID)
		}
	})
}

// Reset wipes the conversation: durable record removed, identifiers
// discarded, push channel rebuilt for a fresh session.
func (e *Engine) Reset() {
	e.enqueue(func() {
		e.wipe()
		if e.push != nil {
			e.push.Stop()
			if e.cfg.NewPush != nil {
				e.push = e.cfg.NewPush(e)
				e.push.Start()
			}
		}
		e.panelOpen = false
		e.emit(Update{Kind: UpdateCollapsed})
		e.emitState()
	})
}

// --- socket.Handler ---
// Calls arrive on socket goroutines and hop onto the event loop.

func (e *Engine) HandleNewMessage(p socket.NewMessagePayload) {
	e.enqueue(func() {
		sender := reconcile.NormalizeSender(p.Sender)
		if sender != model.SenderUser {
			e.stopTyping()
		}
		outcome := e.rec.Inbound(&e.state, reconcile.Candidate{
			Sender:    sender,
			Text:      p.Message,
			ServerID:  p.ID,
			Timestamp: p.ResolveTimestamp(),
			Options:   p.Options,
		})
		if p.AgentName != "" {
			e.machine.Apply("", p.AgentName)
			e.state.CurrentAgentName = e.machine.AgentName()
		}
		if outcome == reconcile.OutcomeAccepted || outcome == reconcile.OutcomeAdopted {
			e.save()
			e.emitState()
		}
	})
}

func (e *Engine) HandleConversationUpdated(p socket.ConversationUpdatedPayload) {
	e.enqueue(func() {
		e.machine.Apply(model.ConversationStatus(p.Status), p.AgentName)
		e.state.Status = e.machine.Current()
		e.state.CurrentAgentName = e.machine.AgentName()
		e.save()
		e.emitState()
	})
}

func (e *Engine) HandleAgentTyping(active bool) {
	e.enqueue(func() {
		if !active {
			e.stopTyping()
			return
		}
		if !e.machine.TypingAccepted() {
			return
		}
		e.agentTyping = true
		e.emit(Update{Kind: UpdateTyping, Active: true})
		if e.typingTimer != nil {
			e.typingTimer.Stop()
		}
		e.typingTimer = time.AfterFunc(e.cfg.TypingExpiry, func() {
			e.enqueue(e.stopTyping)
		})
	})
}

func (e *Engine) HandleClosed(p socket.ClosedPayload, event string) {
	e.enqueue(func() {
		e.machine.Close(p.ClosedBy)
	})
}

func (e *Engine) HandleConnectionChange(connected bool) {
	e.enqueue(func() {
		e.connected = connected
		e.poller.SetConnected(connected)
		e.emit(Update{Kind: UpdateConnection, Active: connected})
	})
}

// --- status.Effects ---
// Fired synchronously by the machine while a transition runs on the loop.

func (e *Engine) AgentJoined(name string) {
	e.emit(Update{Kind: UpdateNotice, Text: fmt.Sprintf("%s joined the conversation", name)})
}

func (e *Engine) ClearLoader() {
	e.state.RemoveLoader()
}

func (e *Engine) ConversationClosed(closedBy string) {
	e.state.Status = model.StatusClosed
	e.save()
	e.emitState()
	e.stopTyping()

	time.AfterFunc(e.cfg.CollapseDelay, func() {
		e.enqueue(func() {
			e.panelOpen = false
			e.syncPoller()
			e.emit(Update{Kind: UpdateCollapsed})
		})
		time.AfterFunc(e.cfg.WipeDelay, func() {
			e.enqueue(func() {
				e.wipe()
				e.emitState()
			})
		})
	})
}

// --- internals, event loop only ---

func (e *Engine) workflowIntercepts() bool {
	wf := e.state.Workflow
	return wf != nil && wf.Active &&
		wf.Trigger == model.WorkflowTriggerFirstMessage &&
		wf.FirstStep != nil &&
		len(e.state.Messages) == 0
}

func (e *Engine) wipe() {
	if err := e.cfg.Store.Delete(e.key); err != nil {
		log.Printf("engine: wipe state: %v", err)
	}
	e.state = model.NewConversationState()
	e.machine.Restore(model.StatusAIOnly, "")
	e.agentTyping = false
	e.faqs = nil
	e.syncPoller()
}

func (e *Engine) stopTyping() {
	if e.typingTimer != nil {
		e.typingTimer.Stop()
		e.typingTimer = nil
	}
	if e.agentTyping {
		e.agentTyping = false
		e.emit(Update{Kind: UpdateTyping, Active: false})
	}
}

func (e *Engine) syncPoller() {
	e.poller.SetActive(e.panelOpen && e.state.CustomerID != "")
}

func (e *Engine) save() {
	if err := e.cfg.Store.Save(e.key, e.state); err != nil {
		log.Printf("engine: save state: %v", err)
	}
}

func (e *Engine) cloneState() model.ConversationState {
	snap := e.state
	snap.Messages = append([]model.Message(nil), e.state.Messages...)
	if e.state.Workflow != nil {
		wf := *e.state.Workflow
		snap.Workflow = &wf
	}
	return snap
}

func (e *Engine) emitState() {
	e.emit(Update{Kind: UpdateState, State: e.cloneState()})
}

func (e *Engine) emit(u Update) {
	select {
	case e.updates <- u:
	default:
		log.Printf("engine: dropping update, consumer is behind")
	}
}

func (e *Engine) emitTransportError(fallback string, err error, restore string) {
	msg := fallback
	var terr *transport.Error
	if errors.As(err, &terr) && terr.Message != "" {
		msg = terr.Message
	}
	log.Printf("engine: %v", err)
	e.emit(Update{Kind: UpdateError, Text: msg, RestoreInput: restore})
}

// fetchFAQs runs off-loop; failures are non-fatal.
func (e *Engine) fetchFAQs() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	faqs, err := e.cfg.Transport.DefaultResponses(ctx, e.cfg.BusinessID, e.cfg.AgentName)
	if err != nil {
		log.Printf("engine: fetch default responses: %v", err)
		return
	}
	e.enqueue(func() {
		e.faqs = faqs
		e.emit(Update{Kind: UpdateFAQs, FAQs: append([]transport.FAQEntry(nil), faqs...)})
	})
}

// pollFetch runs on the poller goroutine: it snapshots what it needs, does
// the network round trip, then hops back onto the loop to reconcile.
func (e *Engine) pollFetch() {
	var token, customerID string
	var since time.Time
	e.do(func() {
		token = e.state.SessionToken
		customerID = e.state.CustomerID
		since = e.state.LastSeen
	})
	if customerID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	res, err := e.cfg.Transport.History(ctx, token, customerID, since, historyLimit)
	if err != nil {
		log.Printf("engine: poll history: %v", err)
		return
	}

	e.enqueue(func() { e.deliverHistory(res) })
}

func (e *Engine) deliverHistory(res transport.HistoryResult) {
	if res.WorkflowActive && e.state.Workflow == nil {
		e.state.Workflow = &model.WorkflowConfig{
			Active:    true,
			Trigger:   res.WorkflowTrigger,
			FirstStep: workflowStep(res.FirstStep),
		}
	}

	changed := false
	for _, rec := range res.Messages {
		c := reconcile.Candidate{
			Sender:   reconcile.NormalizeSender(rec.Sender),
			Text:     rec.Message,
			ServerID: rec.ID,
		}
		if ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil {
			c.Timestamp = ts
		} else if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
			c.Timestamp = ts
		}

		// The fallback never reintroduces what the live channel already
		// delivered.
		if e.rec.AlreadySeen(&e.state, c) {
			continue
		}
		switch e.rec.Inbound(&e.state, c) {
		case reconcile.OutcomeAccepted, reconcile.OutcomeAdopted:
			changed = true
		}
	}

	if changed {
		e.save()
		e.emitState()
	}
}

func workflowStep(p *transport.WorkflowStepPayload) *model.WorkflowStep {
	if p == nil {
		return nil
	}
	step := &model.WorkflowStep{Prompt: p.Prompt}
	for _, opt := range p.Options {
		step.Options = append(step.Options, model.Option{Value: opt.Value, Label: opt.Label})
	}
	return step
}
