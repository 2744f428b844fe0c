package devserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	internalsocket "chat-widget-engine/internal/socket"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const eventChannelPrefix = "widget_events:"

// Handler owns the websocket side: upgrades, the room hub, and the Redis
// fanout that lets several devserver instances share one event stream. A nil
// Redis client short-circuits publishes straight into the local hub.
type Handler struct {
	hub         *Hub
	redisClient *redis.Client
}

func NewHandler(h *Hub, redisClient *redis.Client) *Handler {
	return &Handler{
		hub:         h,
		redisClient: redisClient,
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cl := &WSClient{
		Conn:    conn,
		Message: make(chan internalsocket.Envelope, 10),
		ID:      uuid.NewString(),
		done:    make(chan struct{}),
	}

	go cl.keepAlive()
	go cl.writePump()
	go cl.readPump(h)
}

// Notify delivers an event to every connection in a customer's room.
func (h *Handler) Notify(customerID, event string, payload any) {
	env, err := internalsocket.NewEnvelope(event, payload)
	if err != nil {
		log.Printf("notify: marshal %s payload: %v", event, err)
		return
	}

	if h.redisClient == nil {
		h.hub.Broadcast <- &RoomMessage{CustomerID: customerID, Envelope: env}
		return
	}

	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("notify: marshal envelope: %v", err)
		return
	}
	if err := h.redisClient.Publish(context.Background(), eventChannelPrefix+customerID, raw).Err(); err != nil {
		log.Printf("notify: redis publish: %v", err)
	}
}

// SubscribeToEventChannels forwards the shared Redis stream into the local
// hub. Runs until the subscription drops.
func (h *Handler) SubscribeToEventChannels() {
	if h.redisClient == nil {
		return
	}

	subscriber := h.redisClient.PSubscribe(context.Background(), eventChannelPrefix+"*")
	defer subscriber.Close()

	ch := subscriber.Channel()
	for msg := range ch {
		customerID := strings.TrimPrefix(msg.Channel, eventChannelPrefix)

		var env internalsocket.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("subscribe: malformed envelope on %s: %v", msg.Channel, err)
			continue
		}
		h.hub.Broadcast <- &RoomMessage{CustomerID: customerID, Envelope: env}
	}
	log.Printf("subscribe: event channel subscription closed")
}

// onVisitorTyping mirrors a widget typing event to the rest of the room so
// an agent console on the same conversation sees it.
func (h *Handler) onVisitorTyping(customerID string, typing internalsocket.TypingPayload) {
	typing.CustomerID = customerID
	typing.Source = "visitor"
	h.Notify(customerID, internalsocket.EventTyping, typing)
}
