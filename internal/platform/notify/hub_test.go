package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(topics ...string) *Client {
	return &Client{
		ID:     "test",
		Topics: topics,
		Send:   make(chan []byte, 8),
	}
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub()
	sub := newTestClient("patient:p1")
	other := newTestClient("patient:p2")
	hub.Register(sub)
	hub.Register(other)

	hub.Broadcast("patient:p1", Event{Kind: "note.saved", Topic: "patient:p1", Timestamp: time.Now()})

	select {
	case raw := <-sub.Send:
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Kind != "note.saved" {
			t.Errorf("kind = %q", ev.Kind)
		}
	default:
		t.Fatal("subscriber received nothing")
	}

	select {
	case <-other.Send:
		t.Fatal("non-subscriber received event")
	default:
	}
}

func TestPublishFillsTimestamp(t *testing.T) {
	hub := NewHub()
	sub := newTestClient("doctor:d1")
	hub.Register(sub)

	if err := hub.Publish(context.Background(), Event{Kind: "requisition.submitted", Topic: "doctor:d1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	raw := <-sub.Send
	var ev Event
	_ = json.Unmarshal(raw, &ev)
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not filled")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	c := newTestClient()
	hub.Register(c)

	hub.Subscribe(c, []string{"patient:p1"})
	if hub.TopicCount("patient:p1") != 1 {
		t.Fatal("subscribe did not register topic")
	}

	hub.Unsubscribe(c, []string{"patient:p1"})
	if hub.TopicCount("patient:p1") != 0 {
		t.Fatal("unsubscribe left topic registered")
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	c := newTestClient("t")
	hub.Register(c)
	hub.Unregister(c)

	if _, open := <-c.Send; open {
		t.Fatal("send channel should be closed")
	}
	if hub.ClientCount() != 0 {
		t.Fatal("client still counted")
	}
	// Double unregister is a no-op.
	hub.Unregister(c)
}
