package devserver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	internalsocket "chat-widget-engine/internal/socket"
)

func newHubClient(id, customerID string) *WSClient {
	return &WSClient{
		Message:    make(chan internalsocket.Envelope, 4),
		ID:         id,
		CustomerID: customerID,
		done:       make(chan struct{}),
	}
}

func TestHubBroadcastReachesOnlyTheRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := newHubClient("a", "cus-1")
	b := newHubClient("b", "cus-1")
	other := newHubClient("c", "cus-2")
	hub.Register <- a
	hub.Register <- b
	hub.Register <- other

	env, err := internalsocket.NewEnvelope(internalsocket.EventNewMessage, internalsocket.NewMessagePayload{ID: "m-1"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	hub.Broadcast <- &RoomMessage{CustomerID: "cus-1", Envelope: env}

	for _, cl := range []*WSClient{a, b} {
		select {
		case got := <-cl.Message:
			if got.Event != internalsocket.EventNewMessage {
				t.Fatalf("client %s got event %q", cl.ID, got.Event)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s never received the broadcast", cl.ID)
		}
	}

	select {
	case got := <-other.Message:
		t.Fatalf("client outside the room received %q", got.Event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubRejoinMovesClientBetweenRooms(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	cl := newHubClient("a", "cus-1")
	hub.Register <- cl

	// A returning visitor resumes under a different customer id; the old
	// membership must not linger.
	cl.CustomerID = "cus-2"
	hub.Register <- cl

	env, _ := internalsocket.NewEnvelope(internalsocket.EventNewMessage, internalsocket.NewMessagePayload{ID: "m-old"})
	hub.Broadcast <- &RoomMessage{CustomerID: "cus-1", Envelope: env}

	env, _ = internalsocket.NewEnvelope(internalsocket.EventNewMessage, internalsocket.NewMessagePayload{ID: "m-new"})
	hub.Broadcast <- &RoomMessage{CustomerID: "cus-2", Envelope: env}

	select {
	case got := <-cl.Message:
		var p internalsocket.NewMessagePayload
		if err := json.Unmarshal(got.Data, &p); err != nil || p.ID != "m-new" {
			t.Fatalf("expected only the new room's broadcast, got %s / %v", got.Data, err)
		}
	case <-time.After(time.Second):
		t.Fatal("client never received the new room's broadcast")
	}

	// Disconnecting now must tear the connection down exactly once.
	hub.Unregister <- cl
	if _, ok := <-cl.Message; ok {
		t.Fatal("message channel should be closed after unregister")
	}
}

func TestHubRejoinSameRoomIsIdempotent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	before := testutil.ToFloat64(wsConnections)

	cl := newHubClient("a", "cus-1")
	hub.Register <- cl
	hub.Register <- cl

	env, _ := internalsocket.NewEnvelope(internalsocket.EventNewMessage, internalsocket.NewMessagePayload{ID: "m-1"})
	hub.Broadcast <- &RoomMessage{CustomerID: "cus-1", Envelope: env}

	// The delivery proves the hub has drained both registers.
	<-cl.Message
	if got := testutil.ToFloat64(wsConnections); got != before+1 {
		t.Fatalf("connections gauge moved by %v after a rejoin, want 1", got-before)
	}

	hub.Unregister <- cl
	if _, ok := <-cl.Message; ok {
		t.Fatal("message channel should be closed after unregister")
	}
	if got := testutil.ToFloat64(wsConnections); got != before {
		t.Fatalf("connections gauge %v after disconnect, want %v", got, before)
	}
}

func TestHubUnregisterRemovesEmptyRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	cl := newHubClient("a", "cus-1")
	hub.Register <- cl
	hub.Unregister <- cl

	// The room is gone, so a broadcast to it is dropped rather than queued.
	env, _ := internalsocket.NewEnvelope(internalsocket.EventNewMessage, internalsocket.NewMessagePayload{ID: "m-1"})
	select {
	case hub.Broadcast <- &RoomMessage{CustomerID: "cus-1", Envelope: env}:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked after room removal")
	}

	if _, ok := <-cl.Message; ok {
		t.Fatal("message channel should be closed after unregister")
	}
}
