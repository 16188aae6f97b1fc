package ws

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newBufferedClient(buffer int) *Client {
	return &Client{
		remote: "test",
		send:   make(chan Message, buffer),
		logger: zap.NewNop(),
	}
}

func TestBroadcastDeliversToAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := newBufferedClient(4)
	b := newBufferedClient(4)
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast(Message{Type: MessageSnapshot, Timestamp: time.Now()})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageSnapshot {
				t.Errorf("message type = %q, want %q", msg.Type, MessageSnapshot)
			}
		default:
			t.Error("client did not receive the broadcast")
		}
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newBufferedClient(1)
	hub.Register(c)

	// Fill the buffer; the second broadcast must not block.
	hub.Broadcast(Message{Type: MessageSnapshot})
	done := make(chan struct{})
	go func() {
		hub.Broadcast(Message{Type: MessageSnapshot})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newBufferedClient(1)
	hub.Register(c)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after unregister")
	}

	// Double unregister is a no-op, not a double close.
	hub.Unregister(c)
}
