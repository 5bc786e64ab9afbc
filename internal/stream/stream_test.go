package stream

import (
	"sync"
	"testing"
	"time"
)

func receive[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub[int]()
	sub := hub.Subscribe()
	defer sub.Close()

	for i := 0; i < 100; i++ {
		hub.Publish(i)
	}
	for i := 0; i < 100; i++ {
		if got := receive(t, sub); got != i {
			t.Fatalf("value %d = %d, want %d", i, got, i)
		}
	}
}

func TestHubInitialValuesFirst(t *testing.T) {
	hub := NewHub[string]()
	sub := hub.Subscribe("seed")
	defer sub.Close()
	hub.Publish("live")

	if got := receive(t, sub); got != "seed" {
		t.Fatalf("first value = %q, want seed", got)
	}
	if got := receive(t, sub); got != "live" {
		t.Fatalf("second value = %q, want live", got)
	}
}

func TestHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub[int]()
	slow := hub.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			hub.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}

func TestSubscriptionClose(t *testing.T) {
	hub := NewHub[int]()
	sub := hub.Subscribe(1, 2, 3)
	if hub.Len() != 1 {
		t.Fatalf("Len = %d, want 1", hub.Len())
	}
	sub.Close()
	sub.Close()
	if hub.Len() != 0 {
		t.Fatalf("Len after Close = %d, want 0", hub.Len())
	}

	select {
	case _, ok := <-sub.C():
		for ok {
			_, ok = <-sub.C()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after Close")
	}

	hub.Publish(4)
}

func TestHubConcurrentPublishers(t *testing.T) {
	hub := NewHub[int]()
	sub := hub.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			hub.Publish(v)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i := 0; i < 50; i++ {
		seen[receive(t, sub)] = true
	}
	if len(seen) != 50 {
		t.Fatalf("received %d distinct values, want 50", len(seen))
	}
}
