package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_DeliversInOrder(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	b.Subscribe(TopicState, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Data.(int))
		if len(got) == 100 {
			close(done)
		}
	})

	for i := 0; i < 100; i++ {
		b.Publish(Event{Topic: TopicState, Data: i})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	b.Close(context.Background())

	for i, v := range got {
		if v != i {
			t.Fatalf("event %d = %d, out of order", i, v)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	calls := make(chan string, 10)
	unsubA := b.Subscribe(TopicState, func(Event) { calls <- "a" })
	b.Subscribe(TopicState, func(Event) { calls <- "b" })
	b.Subscribe(TopicObject, func(Event) { calls <- "object" })

	unsubA()
	unsubA()
	if n := b.Subscribers(TopicState); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}

	b.Publish(Event{Topic: TopicState})
	select {
	case got := <-calls:
		if got != "b" {
			t.Errorf("delivered to %q, want b", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case got := <-calls:
		t.Errorf("unexpected delivery to %q", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_RecoversPanics(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	delivered := make(chan struct{}, 1)
	b.Subscribe(TopicState, func(e Event) {
		if e.Data == "boom" {
			panic("boom")
		}
		delivered <- struct{}{}
	})

	b.Publish(Event{Topic: TopicState, Data: "boom"})
	b.Publish(Event{Topic: TopicState, Data: "ok"})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := New()
	called := false
	b.Subscribe(TopicState, func(Event) { called = true })

	b.Close(context.Background())
	b.Close(context.Background())
	b.Publish(Event{Topic: TopicState})

	select {
	case <-b.Closing():
	default:
		t.Error("Closing not signalled")
	}
	if called {
		t.Error("handler called after close")
	}
}
