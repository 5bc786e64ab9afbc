package fanout

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"rate-ledger/internal/analytics"
	"rate-ledger/internal/storage"
	"rate-ledger/internal/stream"
)

// RateStream hands out subscriptions to the deduplicated rate stream.
type RateStream interface {
	Subscribe() *stream.Subscription[storage.Sample]
}

// Recorder is the ledger surface listeners write to.
type Recorder interface {
	Record(name string, params map[string]string)
}

// Registry owns a fixed population of independent rate listeners, each
// recording one ledger event per received sample.
type Registry struct {
	rates    RateStream
	recorder Recorder
	logger   zerolog.Logger

	mu        sync.Mutex
	started   bool
	listeners []string
}

// New constructs an idle registry.
func New(rates RateStream, recorder Recorder, logger zerolog.Logger) *Registry {
	return &Registry{
		rates:    rates,
		recorder: recorder,
		logger:   logger.With().Str("component", "fanout").Logger(),
	}
}

// Start registers count listeners on the first call. Every later call is a
// no-op whatever count it passes. Listeners live for the rest of the
// process. It reports whether this call created the population.
func (r *Registry) Start(count int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		r.logger.Debug().Int("requested", count).Int("size", len(r.listeners)).Msg("listeners already registered")
		return false
	}
	r.started = true

	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("module-%d", i)
		sub := r.rates.Subscribe()
		r.listeners = append(r.listeners, name)
		go r.listen(name, sub)
	}
	r.logger.Info().Int("listeners", count).Msg("rate listeners registered")
	return true
}

// Size reports the number of registered listeners.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

func (r *Registry) listen(name string, sub *stream.Subscription[storage.Sample]) {
	for sample := range sub.C() {
		rate := sample.Value.String()
		r.logger.Debug().Str("module", name).Str("rate", rate).Time("observed_at", sample.ObservedAt).Msg("rate updated")
		r.recorder.Record(analytics.EventModuleRateUpdate, map[string]string{
			"module": name,
			"rate":   rate,
		})
	}
}
