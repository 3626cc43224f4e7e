package sse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesSubscriber(t *testing.T) {
	h := NewHub()
	go h.Run()

	ch := make(chan []byte, 16)
	h.Subscribe(ch, "42")
	defer h.Unsubscribe(ch, "42")

	h.PublishTopic("42", []byte("hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestHub_TopicsAreIsolated(t *testing.T) {
	h := NewHub()
	go h.Run()

	chA := make(chan []byte, 16)
	chB := make(chan []byte, 16)
	h.Subscribe(chA, "a")
	h.Subscribe(chB, "b")
	defer h.Unsubscribe(chA, "a")
	defer h.Unsubscribe(chB, "b")

	h.PublishTopic("a", []byte("only-a"))

	select {
	case msg := <-chA:
		require.Equal(t, "only-a", string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered to topic a")
	}
	select {
	case msg := <-chB:
		t.Fatalf("topic b should not receive %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	go h.Run()

	ch := make(chan []byte, 16)
	h.Subscribe(ch, "42")
	h.Unsubscribe(ch, "42")

	h.PublishTopic("42", []byte("late"))
	select {
	case msg := <-ch:
		t.Fatalf("unsubscribed channel should not receive %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
