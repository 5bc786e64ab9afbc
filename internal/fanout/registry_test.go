package fanout

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rate-ledger/internal/analytics"
	"rate-ledger/internal/storage"
	"rate-ledger/internal/stream"
)

type hubStream struct {
	hub *stream.Hub[storage.Sample]
}

func (h hubStream) Subscribe() *stream.Subscription[storage.Sample] {
	return h.hub.Subscribe()
}

func countFor(l *analytics.Ledger, rate string) int {
	n := 0
	for _, e := range l.Query(analytics.Filter{Name: analytics.EventModuleRateUpdate}) {
		if e.Param("rate") == rate {
			n++
		}
	}
	return n
}

// waitForCount polls until want events tagged with rate exist, then
// checks that no extra ones trickle in.
func waitForCount(t *testing.T, l *analytics.Ledger, rate string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for countFor(l, rate) < want {
		if time.Now().After(deadline) {
			t.Fatalf("events for %s = %d, want %d", rate, countFor(l, rate), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := countFor(l, rate); got != want {
		t.Fatalf("events for %s = %d, want exactly %d", rate, got, want)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	hub := stream.NewHub[storage.Sample]()
	ledger := analytics.NewLedger(zerolog.Nop())
	reg := New(hubStream{hub}, ledger, zerolog.Nop())

	const k = 30
	if !reg.Start(k) {
		t.Fatal("first Start should register listeners")
	}
	hub.Publish(storage.NewSample(decimal.NewFromInt(111), time.Now()))
	waitForCount(t, ledger, "111", k)

	for _, count := range []int{k, 5, 100} {
		if reg.Start(count) {
			t.Fatalf("Start(%d) registered again", count)
		}
	}
	if reg.Size() != k {
		t.Fatalf("Size = %d, want %d", reg.Size(), k)
	}
	if hub.Len() != k {
		t.Fatalf("subscriptions = %d, want %d", hub.Len(), k)
	}

	hub.Publish(storage.NewSample(decimal.NewFromInt(222), time.Now()))
	waitForCount(t, ledger, "222", k)
}

func TestListenersTagEventsWithModule(t *testing.T) {
	hub := stream.NewHub[storage.Sample]()
	ledger := analytics.NewLedger(zerolog.Nop())
	reg := New(hubStream{hub}, ledger, zerolog.Nop())
	reg.Start(3)

	hub.Publish(storage.NewSample(decimal.RequireFromString("64000.5"), time.Now()))
	waitForCount(t, ledger, "64000.5", 3)

	seen := make(map[string]bool)
	for _, e := range ledger.Query(analytics.Filter{Name: analytics.EventModuleRateUpdate}) {
		seen[e.Param("module")] = true
	}
	for _, name := range []string{"module-1", "module-2", "module-3"} {
		if !seen[name] {
			t.Fatalf("no event from %s: %v", name, seen)
		}
	}
}
