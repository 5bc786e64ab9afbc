package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"rate-ledger/internal/analytics"
)

type fakeWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	fail    bool
	written chan struct{}
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msgs...)
	f.mu.Unlock()
	if f.written != nil {
		f.written <- struct{}{}
	}
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishEncodesEvent(t *testing.T) {
	w := &fakeWriter{}
	r := New(w, zerolog.Nop())

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	event := analytics.Event{Name: analytics.EventRateUpdate, Parameters: map[string]string{"rate": "42"}, Timestamp: ts}
	if err := r.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != analytics.EventRateUpdate || !msg.Time.Equal(ts) {
		t.Fatalf("unexpected message: %+v", msg)
	}

	var decoded analytics.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.Param("rate") != "42" || !decoded.Timestamp.Equal(ts) {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	r := New(&fakeWriter{fail: true}, zerolog.Nop())
	err := r.Publish(context.Background(), analytics.Event{Name: "x", Timestamp: time.Now()})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRunForwardsLedgerEvents(t *testing.T) {
	ledger := analytics.NewLedger(zerolog.Nop())
	w := &fakeWriter{written: make(chan struct{}, 8)}
	r := New(w, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, ledger.Subscribe())

	ledger.Record(analytics.EventManualRefresh, nil)
	ledger.Record(analytics.EventRateUpdate, map[string]string{"rate": "1"})

	for i := 0; i < 2; i++ {
		select {
		case <-w.written:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if string(w.msgs[0].Key) != analytics.EventManualRefresh || string(w.msgs[1].Key) != analytics.EventRateUpdate {
		t.Fatalf("order not preserved: %q, %q", w.msgs[0].Key, w.msgs[1].Key)
	}
}

func TestCloseClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	if err := New(w, zerolog.Nop()).Close(); err != nil || !w.closed {
		t.Fatalf("close = %v, closed=%v", err, w.closed)
	}
}
