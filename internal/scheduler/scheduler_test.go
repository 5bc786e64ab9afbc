package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestImmediateTickBeforeInterval(t *testing.T) {
	s := New(Options{Interval: time.Hour, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	go func() {
		_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
			fired <- struct{}{}
			return nil
		})
	}()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate tick did not fire")
	}
}

func TestRecurringTicksAndCancel(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) error {
			ticks.Add(1)
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	time.Sleep(110 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if n := ticks.Load(); n < 2 {
		t.Fatalf("ticks = %d, want at least 2", n)
	}
	after := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	if ticks.Load() != after {
		t.Fatal("ticks fired after cancel")
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToClock: true}, zerolog.Nop())
	now := time.Date(2025, 8, 24, 10, 7, 30, 0, time.UTC)

	if got, want := s.nextTick(now), time.Date(2025, 8, 24, 10, 10, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("nextTick = %s, want %s", got, want)
	}
	if got := s.bucketStart(now); !got.Equal(time.Date(2025, 8, 24, 10, 5, 0, 0, time.UTC)) {
		t.Fatalf("bucketStart = %s", got)
	}
}

func TestNewPanicsOnNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
