package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rate-ledger/internal/storage"
	"rate-ledger/internal/stream"
)

type captureNotifier struct {
	mu    sync.Mutex
	notes []Notification
	sent  chan struct{}
}

func (c *captureNotifier) Notify(ctx context.Context, n Notification) error {
	c.mu.Lock()
	c.notes = append(c.notes, n)
	c.mu.Unlock()
	c.sent <- struct{}{}
	return nil
}

func sample(v string) storage.Sample {
	return storage.NewSample(decimal.RequireFromString(v), time.Now())
}

func TestWatcherEvaluate(t *testing.T) {
	w := NewWatcher("BTC-USD", decimal.NewFromInt(1), nil, zerolog.Nop())

	if _, fire := w.evaluate(sample("100")); fire {
		t.Fatal("first sample only sets the reference")
	}
	if _, fire := w.evaluate(sample("100.5")); fire {
		t.Fatal("0.5% move is below threshold")
	}
	note, fire := w.evaluate(sample("101.5"))
	if !fire {
		t.Fatal("1.5% cumulative move should fire")
	}
	if note.Direction != "up" || !note.Previous.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected notification: %+v", note)
	}
	note, fire = w.evaluate(sample("99"))
	if !fire || note.Direction != "down" {
		t.Fatalf("drop from new reference should fire down: %+v %v", note, fire)
	}
}

func TestWatcherRunNotifies(t *testing.T) {
	hub := stream.NewHub[storage.Sample]()
	notifier := &captureNotifier{sent: make(chan struct{}, 4)}
	w := NewWatcher("BTC-USD", decimal.NewFromInt(2), notifier, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, hub.Subscribe())

	for _, v := range []string{"100", "101", "105"} {
		hub.Publish(sample(v))
	}

	select {
	case <-notifier.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.notes) != 1 || !notifier.notes[0].Current.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("notes = %+v", notifier.notes)
	}
}
