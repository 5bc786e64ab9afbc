package analytics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rate-ledger/internal/stream"
)

// ErrDecode marks a malformed import payload.
var ErrDecode = errors.New("analytics: decode error")

// Filter narrows Query results. Zero fields are ignored.
type Filter struct {
	Name string
	From time.Time
	To   time.Time
}

func (f Filter) match(e Event) bool {
	if f.Name != "" && e.Name != f.Name {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source used by Record.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger is an append-only, thread-safe event store. Every call runs
// inside a single critical section.
type Ledger struct {
	mu     sync.Mutex
	events []Event

	hub    *stream.Hub[Event]
	now    func() time.Time
	logger zerolog.Logger
}

// NewLedger constructs an empty ledger.
func NewLedger(logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		hub:    stream.NewHub[Event](),
		now:    time.Now,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an event stamped with the current time and notifies
// live observers.
func (l *Ledger) Record(name string, params map[string]string) {
	event := Event{
		Name:       name,
		Parameters: copyParams(params),
		Timestamp:  l.now().UTC().Round(0),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.hub.Publish(event.clone())
}

// Subscribe attaches a live observer. Observers never slow Record down.
func (l *Ledger) Subscribe() *stream.Subscription[Event] {
	return l.hub.Subscribe()
}

// Query returns matching events in ascending timestamp order.
func (l *Ledger) Query(f Filter) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if f.match(e) {
			out = append(out, e.clone())
		}
	}
	sortByTime(out)
	return out
}

// All returns every event in ascending timestamp order.
func (l *Ledger) All() []Event {
	return l.Query(Filter{})
}

// Count returns the number of stored events.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Clear removes every event.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// RemoveOlderThan drops events stamped strictly before cutoff and reports
// how many were removed.
func (l *Ledger) RemoveOlderThan(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[:0]
	for _, e := range l.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(l.events) - len(kept)
	for i := len(kept); i < len(l.events); i++ {
		l.events[i] = Event{}
	}
	l.events = kept
	return removed
}

// Export serialises all events in ascending timestamp order. The output is
// deterministic: parameter keys are sorted and pretty output is indented
// with two spaces.
func (l *Ledger) Export(pretty bool) ([]byte, error) {
	return Encode(l.All(), pretty)
}

// Encode writes events in the export format, in the order given.
func Encode(events []Event, pretty bool) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(events, "", "  ")
	} else {
		data, err = json.Marshal(events)
	}
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return data, nil
}

// Import decodes an exported event set and appends it as-is.
func (l *Ledger) Import(data []byte) error {
	imported, err := Decode(data)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.events = append(l.events, imported...)
	l.mu.Unlock()

	l.logger.Debug().Int("count", len(imported)).Msg("events imported")
	return nil
}

// Decode parses the export format without touching any ledger.
func Decode(data []byte) ([]Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var events []Event
	if err := dec.Decode(&events); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after event list", ErrDecode)
	}
	return events, nil
}

func sortByTime(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
