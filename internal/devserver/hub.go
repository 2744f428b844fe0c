package devserver

import (
	"chat-widget-engine/internal/socket"
)

// RoomMessage is one envelope addressed to every connection in a customer's
// room.
type RoomMessage struct {
	CustomerID string
	Envelope   socket.Envelope
}

type Room struct {
	ID      string
	Clients map[string]*WSClient
}

type Hub struct {
	Rooms      map[string]*Room
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *RoomMessage
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *RoomMessage),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// A rejoin moves the connection between rooms, so drop any
			// earlier membership first. Rooms are per customer and come
			// into existence with the first join, unlike a fixed room list.
			rejoined := false
			for id, room := range h.Rooms {
				if _, ok := room.Clients[client.ID]; !ok {
					continue
				}
				rejoined = true
				if id == client.CustomerID {
					continue
				}
				delete(room.Clients, client.ID)
				if len(room.Clients) == 0 {
					delete(h.Rooms, id)
				}
			}

			room, ok := h.Rooms[client.CustomerID]
			if !ok {
				room = &Room{ID: client.CustomerID, Clients: make(map[string]*WSClient)}
				h.Rooms[client.CustomerID] = room
			}
			room.Clients[client.ID] = client
			if !rejoined {
				incConnections()
			}
			setRooms(len(h.Rooms))

		case client := <-h.Unregister:
			room, ok := h.Rooms[client.CustomerID]
			if !ok {
				continue
			}
			if _, ok := room.Clients[client.ID]; ok {
				delete(room.Clients, client.ID)
				decConnections()
				close(client.Message)
			}
			if len(room.Clients) == 0 {
				delete(h.Rooms, room.ID)
				setRooms(len(h.Rooms))
			}

		case message := <-h.Broadcast:
			room, ok := h.Rooms[message.CustomerID]
			if !ok {
				continue
			}
			delivered := 0
			for _, client := range room.Clients {
				select {
				case client.Message <- message.Envelope:
					delivered++
				default:
					delete(room.Clients, client.ID)
					decConnections()
					close(client.Message)
				}
			}
			if delivered > 0 {
				addDelivered(delivered)
			}
		}
	}
}
