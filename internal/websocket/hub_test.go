package websocket

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func testHub() *Hub {
	return NewHub(&HubConfig{MaxConnections: 10}, zap.NewNop())
}

func testClient(id string) *Client {
	return &Client{
		ID:          id,
		Send:        make(chan Event, 8),
		ConnectedAt: time.Now(),
		IP:          "127.0.0.1",
	}
}

func TestHubConnectionEvents(t *testing.T) {
	t.Run("RegisterBroadcastsConnected", func(t *testing.T) {
		h := testHub()
		h.registerClient(testClient("c1"))

		select {
		case event := <-h.broadcast:
			if event.Type != EventTypeConnection {
				t.Fatalf("event type = %s, want %s", event.Type, EventTypeConnection)
			}
			data, ok := event.Data.(ConnectionEvent)
			if !ok {
				t.Fatalf("event data is %T, want ConnectionEvent", event.Data)
			}
			if data.Action != "connected" || data.ClientID != "c1" {
				t.Errorf("got action %q client %q, want connected c1", data.Action, data.ClientID)
			}
		case <-time.After(time.Second):
			t.Fatal("no connection event broadcast after register")
		}
	})

	t.Run("UnregisterBroadcastsDisconnected", func(t *testing.T) {
		h := testHub()
		client := testClient("c2")
		h.registerClient(client)
		<-h.broadcast // connected event

		h.unregisterClient(client)

		select {
		case event := <-h.broadcast:
			data, ok := event.Data.(ConnectionEvent)
			if !ok {
				t.Fatalf("event data is %T, want ConnectionEvent", event.Data)
			}
			if data.Action != "disconnected" {
				t.Errorf("action = %q, want disconnected", data.Action)
			}
		case <-time.After(time.Second):
			t.Fatal("no connection event broadcast after unregister")
		}
	})
}

func TestHubSubscriptionFilter(t *testing.T) {
	h := testHub()
	event := Event{Type: EventTypeEmbedding, Timestamp: time.Now()}

	t.Run("NoSubscriptionReceivesAll", func(t *testing.T) {
		if !h.shouldSendToClient(testClient("c1"), event) {
			t.Error("client without subscription should receive every event")
		}
	})

	t.Run("MatchingSubscription", func(t *testing.T) {
		client := testClient("c2")
		client.Subscription = &SubscriptionRequest{Events: []EventType{EventTypeEmbedding}}
		if !h.shouldSendToClient(client, event) {
			t.Error("subscribed event type should be delivered")
		}
	})

	t.Run("NonMatchingSubscription", func(t *testing.T) {
		client := testClient("c3")
		client.Subscription = &SubscriptionRequest{Events: []EventType{EventTypeClassification}}
		if h.shouldSendToClient(client, event) {
			t.Error("unsubscribed event type should be filtered out")
		}
	})
}
