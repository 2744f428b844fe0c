// Package socket maintains the widget's live duplex connection: it joins a
// per-customer room and translates inbound protocol events into handler
// calls. When the connection degrades the polling fallback takes over.
package socket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// GraceWindow absorbs spurious disconnects right after connecting, as
	// happen under rapid mount/unmount/remount sequences.
	GraceWindow = time.Second

	MaxReconnectAttempts = 5
	ReconnectBackoff     = 2 * time.Second
)

// Handler receives decoded live-channel events. Calls arrive from the
// client's read goroutine.
type Handler interface {
	HandleNewMessage(NewMessagePayload)
	HandleConversationUpdated(ConversationUpdatedPayload)
	HandleAgentTyping(active bool)
	HandleClosed(ClosedPayload, string)
	HandleConnectionChange(connected bool)
}

type Client struct {
	url     string
	handler Handler

	maxAttempts int
	backoff     time.Duration

	mu          sync.Mutex
	conn        *websocket.Conn
	connectedAt time.Time
	customerID  string
	stopped     bool
	gaveUp      bool

	done chan struct{}
}

func NewClient(url string, handler Handler) *Client {
	return newClientWithRetry(url, handler, MaxReconnectAttempts, ReconnectBackoff)
}

func newClientWithRetry(url string, handler Handler, maxAttempts int, backoff time.Duration) *Client {
	return &Client{
		url:         url,
		handler:     handler,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		done:        make(chan struct{}),
	}
}

// Start dials once per widget session, independent of whether a customer id
// is known yet. Reconnection is automatic with bounded attempts; on give-up
// the connection is reported permanently disconnected.
func (c *Client) Start() {
	go c.run()
}

// Stop is a real teardown, distinct from the transient disconnects the grace
// window absorbs.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		conn.Close()
	}
}

// JoinRoom records the customer id and (re)issues the room join. Called when
// the id first becomes known and again on every reconnect.
func (c *Client) JoinRoom(customerID string) {
	c.mu.Lock()
	c.customerID = customerID
	conn := c.conn
	c.mu.Unlock()

	if conn != nil && customerID != "" {
		c.send(EventJoinRoom, JoinRoomPayload{CustomerID: customerID})
	}
}

// SendTyping notifies the backend that the visitor is typing.
func (c *Client) SendTyping(businessID string) {
	c.mu.Lock()
	customerID := c.customerID
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || customerID == "" {
		return
	}
	c.send(EventTyping, TypingPayload{CustomerID: customerID, BusinessID: businessID, Source: "visitor"})
}

// Connected reports the current channel state.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// GaveUp reports whether reconnection attempts are exhausted; polling is then
// the sole delivery path until a full restart.
func (c *Client) GaveUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gaveUp
}

func (c *Client) run() {
	attempts := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			attempts++
			log.Printf("socket: dial %s failed (attempt %d/%d): %v", c.url, attempts, c.maxAttempts, err)
			if attempts >= c.maxAttempts {
				c.giveUp()
				return
			}
			select {
			case <-c.done:
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		attempts = 0
		connectedAt := time.Now()

		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connectedAt = connectedAt
		customerID := c.customerID
		c.mu.Unlock()

		countConnect()
		c.handler.HandleConnectionChange(true)
		if customerID != "" {
			c.send(EventJoinRoom, JoinRoomPayload{CustomerID: customerID})
		}

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		stopped := c.stopped
		c.mu.Unlock()

		if stopped {
			return
		}

		if spurious(connectedAt, time.Now()) {
			// Transient remount churn; reconnect silently without
			// reporting a real disconnect.
			log.Printf("socket: ignoring disconnect within grace window")
			select {
			case <-c.done:
				return
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}

		countDisconnect()
		c.handler.HandleConnectionChange(false)

		select {
		case <-c.done:
			return
		case <-time.After(c.backoff):
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("socket: recovered from panic in read loop: %v", r)
		}
		conn.Close()
	}()

	conn.SetReadLimit(512 * 1024)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); !ok || closeErr.Code != websocket.CloseNormalClosure {
				log.Printf("socket: read error: %v", err)
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("socket: dropping unparseable event: %v", err)
		return
	}

	switch env.Event {
	case EventNewMessage:
		var p NewMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("socket: bad newMessage payload: %v", err)
			return
		}
		c.handler.HandleNewMessage(p)
	case EventConversationUpdated:
		var p ConversationUpdatedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("socket: bad conversationUpdated payload: %v", err)
			return
		}
		c.handler.HandleConversationUpdated(p)
	case EventAgentTyping:
		c.handler.HandleAgentTyping(true)
	case EventAgentStoppedTyping:
		c.handler.HandleAgentTyping(false)
	case EventClosedBySystem, EventClosedByAgent:
		var p ClosedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Printf("socket: bad closed payload: %v", err)
			return
		}
		c.handler.HandleClosed(p, env.Event)
	default:
		log.Printf("socket: ignoring unknown event %q", env.Event)
	}
	countEvent(env.Event)
}

func (c *Client) send(event string, data any) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		log.Printf("socket: marshal %s: %v", event, err)
		return
	}

	c.mu.Lock()
	conn := c.conn
	if conn != nil {
		err = conn.WriteJSON(env)
	}
	c.mu.Unlock()

	if err != nil {
		log.Printf("socket: send %s: %v", event, err)
	}
}

func (c *Client) giveUp() {
	c.mu.Lock()
	c.gaveUp = true
	c.mu.Unlock()
	log.Printf("socket: giving up after %d attempts, polling is now the only delivery path", c.maxAttempts)
	countDisconnect()
	c.handler.HandleConnectionChange(false)
}

func spurious(connectedAt, now time.Time) bool {
	return now.Sub(connectedAt) < GraceWindow
}
