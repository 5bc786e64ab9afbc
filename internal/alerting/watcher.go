package alerting

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rate-ledger/internal/storage"
	"rate-ledger/internal/stream"
)

var hundred = decimal.NewFromInt(100)

// Watcher raises a notification whenever the rate moves more than
// ThresholdPct away from the last value it alerted on.
type Watcher struct {
	pair      string
	threshold decimal.Decimal
	notifier  Notifier
	logger    zerolog.Logger

	reference *decimal.Decimal
}

// NewWatcher constructs a watcher for pair.
func NewWatcher(pair string, thresholdPct decimal.Decimal, notifier Notifier, logger zerolog.Logger) *Watcher {
	return &Watcher{
		pair:      pair,
		threshold: thresholdPct,
		notifier:  notifier,
		logger:    logger.With().Str("component", "alert_watcher").Logger(),
	}
}

// Run consumes samples until ctx is done or the subscription closes.
func (w *Watcher) Run(ctx context.Context, sub *stream.Subscription[storage.Sample]) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-sub.C():
			if !ok {
				return
			}
			note, fire := w.evaluate(sample)
			if !fire {
				continue
			}
			if err := w.notifier.Notify(ctx, note); err != nil {
				w.logger.Error().Err(err).Str("rate", sample.Value.String()).Msg("failed to dispatch alert")
			}
		}
	}
}

// evaluate moves the reference only when an alert fires, so slow drifts
// still trigger once they accumulate past the threshold.
func (w *Watcher) evaluate(sample storage.Sample) (Notification, bool) {
	if w.reference == nil || w.reference.IsZero() {
		ref := sample.Value
		w.reference = &ref
		return Notification{}, false
	}

	prev := *w.reference
	change := sample.Value.Sub(prev).Div(prev).Mul(hundred)
	if change.Abs().LessThanOrEqual(w.threshold) {
		return Notification{}, false
	}

	ref := sample.Value
	w.reference = &ref
	return Notification{
		Pair:         w.pair,
		ObservedAt:   sample.ObservedAt,
		Previous:     prev,
		Current:      sample.Value,
		ChangePct:    change,
		ThresholdPct: w.threshold,
		Direction:    classifyChange(change),
	}, true
}

func classifyChange(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}
