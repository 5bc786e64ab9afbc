package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rate-ledger/internal/analytics"
	"rate-ledger/internal/fetcher"
	"rate-ledger/internal/scheduler"
	"rate-ledger/internal/storage"
	"rate-ledger/internal/stream"
)

// Recorder receives one ledger event per accepted quote.
type Recorder interface {
	Record(name string, params map[string]string)
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the observation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithAlignedTicks places scheduled ticks after the first on wall-clock
// multiples of the interval.
func WithAlignedTicks(align bool) Option {
	return func(e *Engine) {
		e.aligned = align
	}
}

// Engine keeps the current quote in sync with the rate source. It fetches
// on a schedule and on demand, persists and records every accepted quote,
// and republishes distinct values to subscribers.
//
// Fetches are never serialised against each other: whichever completes
// last owns the current sample.
type Engine struct {
	source   fetcher.RateSource
	cache    storage.RateCache
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
	aligned  bool

	mu            sync.Mutex
	current       *storage.Sample
	lastBroadcast *decimal.Decimal
	callback      func(float64)
	hub           *stream.Hub[storage.Sample]

	schedMu   sync.Mutex
	cancel    context.CancelFunc
	schedDone chan struct{}

	inflight sync.WaitGroup
}

// New constructs the engine and seeds the current sample from cache.
// A cache load failure is treated as an empty cache.
func New(source fetcher.RateSource, cache storage.RateCache, recorder Recorder, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		cache:    cache,
		recorder: recorder,
		logger:   logger.With().Str("component", "rate_engine").Logger(),
		now:      time.Now,
		hub:      stream.NewHub[storage.Sample](),
	}
	for _, opt := range opts {
		opt(e)
	}

	if cached, err := cache.Load(context.Background()); err == nil && cached != nil {
		seed := *cached
		value := seed.Value
		e.current = &seed
		e.lastBroadcast = &value
		e.logger.Info().Str("rate", value.String()).Time("observed_at", seed.ObservedAt).Msg("seeded from cache")
	}
	return e
}

// Start fetches once immediately and then every interval. A previous
// schedule is cancelled first, so at most one is ever active.
func (e *Engine) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}
	sched := scheduler.New(scheduler.Options{Interval: interval, Immediate: true, AlignToClock: e.aligned}, e.logger)

	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	e.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.schedDone = done

	go func() {
		defer close(done)
		_ = sched.Run(ctx, e.tick)
	}()

	e.logger.Info().Dur("interval", sched.Interval()).Msg("rate updates started")
	return nil
}

// Stop cancels future scheduled ticks. Fetches already dispatched still
// complete and are processed normally.
func (e *Engine) Stop() {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.stopLocked() {
		e.logger.Info().Msg("rate updates stopped")
	}
}

func (e *Engine) stopLocked() bool {
	if e.cancel == nil {
		return false
	}
	e.cancel()
	<-e.schedDone
	e.cancel = nil
	e.schedDone = nil
	return true
}

// RefreshNow dispatches exactly one fetch without waiting for it.
func (e *Engine) RefreshNow() {
	e.dispatch()
}

// Wait blocks until every dispatched fetch has been processed. Callers
// should Stop first so no new ticks race with Wait.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Subscribe returns a stream that first replays the current sample, if
// any, and then carries every distinct value accepted afterwards.
func (e *Engine) Subscribe() *stream.Subscription[storage.Sample] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return e.hub.Subscribe(*e.current)
	}
	return e.hub.Subscribe()
}

// SetRateCallback installs the single legacy callback; nil removes it.
func (e *Engine) SetRateCallback(fn func(float64)) {
	e.mu.Lock()
	e.callback = fn
	e.mu.Unlock()
}

// Current returns the latest accepted sample.
func (e *Engine) Current() (storage.Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return storage.Sample{}, false
	}
	return *e.current, true
}

func (e *Engine) tick(ctx context.Context, at time.Time) error {
	e.dispatch()
	return nil
}

func (e *Engine) dispatch() {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.fetchOnce(context.Background())
	}()
}

// fetchOnce drops failures silently: a failed fetch leaves cache, ledger
// and subscribers untouched.
func (e *Engine) fetchOnce(ctx context.Context) {
	value, err := e.source.FetchQuote(ctx)
	if err != nil {
		return
	}
	e.accept(ctx, storage.NewSample(value, e.now()))
}

func (e *Engine) accept(ctx context.Context, sample storage.Sample) {
	_ = e.cache.Save(ctx, sample)

	e.recorder.Record(analytics.EventRateUpdate, map[string]string{
		"rate": sample.Value.String(),
		"ts":   sample.ObservedAt.Format(time.RFC3339Nano),
	})

	e.mu.Lock()
	e.current = &sample
	changed := e.lastBroadcast == nil || !e.lastBroadcast.Equal(sample.Value)
	if changed {
		value := sample.Value
		e.lastBroadcast = &value
		e.hub.Publish(sample)
	}
	callback := e.callback
	e.mu.Unlock()

	if changed {
		e.logger.Debug().Str("rate", sample.Value.String()).Msg("rate broadcast")
	}
	if callback != nil {
		callback(sample.Value.InexactFloat64())
	}
}
