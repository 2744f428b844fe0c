package devserver

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	internalsocket "chat-widget-engine/internal/socket"

	"github.com/gorilla/websocket"
)

type WSClient struct {
	Conn       *websocket.Conn
	Message    chan internalsocket.Envelope
	ID         string
	CustomerID string
	done       chan struct{}
	mu         sync.Mutex
	isClosed   bool
}

func (cl *WSClient) keepAlive() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteMessage(websocket.PingMessage, nil)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Ping error for client %s: %v", cl.ID, err)
				return
			}
		}
	}
}

func (cl *WSClient) writePump() {
	defer func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.Conn.Close()
		cl.mu.Unlock()
	}()

	for {
		select {
		case <-cl.done:
			return
		case env, ok := <-cl.Message:
			if !ok {
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteJSON(env)
			cl.mu.Unlock()

			if err != nil {
				log.Printf("Error sending message to client %s: %v", cl.ID, err)
				return
			}
		}
	}
}

// readPump consumes widget-to-server events. The first joinCustomerRoom
// registers the connection into that customer's room; typing events are
// fanned back out to the room.
func (cl *WSClient) readPump(h *Handler) {
	registered := false
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in readPump: %v", r)
		}

		if cl.done != nil {
			close(cl.done)
		}

		if registered {
			h.hub.Unregister <- cl
		} else {
			cl.mu.Lock()
			cl.isClosed = true
			cl.Conn.Close()
			cl.mu.Unlock()
		}
		log.Printf("Client %s disconnected from room %s", cl.ID, cl.CustomerID)
	}()

	cl.Conn.SetReadLimit(512 * 1024)

	for {
		_, raw, err := cl.Conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived {
					break
				}
			}
			log.Printf("Error reading message from client %s: %v", cl.ID, err)
			break
		}

		var env internalsocket.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("Client %s sent malformed envelope: %v", cl.ID, err)
			continue
		}

		switch env.Event {
		case internalsocket.EventJoinRoom:
			var join internalsocket.JoinRoomPayload
			if err := json.Unmarshal(env.Data, &join); err != nil || join.CustomerID == "" {
				continue
			}
			if registered && join.CustomerID == cl.CustomerID {
				continue
			}
			// The hub moves an already-registered connection between rooms.
			cl.CustomerID = join.CustomerID
			h.hub.Register <- cl
			registered = true

		case internalsocket.EventTyping:
			var typing internalsocket.TypingPayload
			if err := json.Unmarshal(env.Data, &typing); err != nil {
				continue
			}
			if cl.CustomerID != "" {
				h.onVisitorTyping(cl.CustomerID, typing)
			}

		default:
			log.Printf("Client %s sent unexpected event %q", cl.ID, env.Event)
		}
	}
}
