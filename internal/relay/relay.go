// Package relay forwards live ledger events to a Kafka topic.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"rate-ledger/internal/analytics"
	"rate-ledger/internal/stream"
)

// MessageWriter is the subset of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Options configure a Kafka writer.
type Options struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// NewWriter builds a kafka writer bound to opts.Topic.
func NewWriter(opts Options) *kafka.Writer {
	batch := opts.BatchTimeout
	if batch <= 0 {
		batch = time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(opts.Brokers...),
		Topic:                  opts.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           batch,
	}
}

// Relay copies every event observed on a ledger subscription to Kafka,
// keyed by event name.
type Relay struct {
	writer MessageWriter
	logger zerolog.Logger
}

// New wraps writer.
func New(writer MessageWriter, logger zerolog.Logger) *Relay {
	return &Relay{
		writer: writer,
		logger: logger.With().Str("component", "relay").Logger(),
	}
}

// Run forwards events until ctx is done or the subscription closes.
// Write failures are logged and the event is skipped.
func (r *Relay) Run(ctx context.Context, sub *stream.Subscription[analytics.Event]) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C():
			if !ok {
				return
			}
			if err := r.Publish(ctx, event); err != nil {
				r.logger.Error().Err(err).Str("event", event.Name).Msg("failed to relay event")
			}
		}
	}
}

// Publish writes a single event.
func (r *Relay) Publish(ctx context.Context, event analytics.Event) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	r.logger.Debug().Str("event", event.Name).Msg("event relayed")
	return nil
}

// Close closes the underlying writer.
func (r *Relay) Close() error {
	return r.writer.Close()
}

func encodeMessage(event analytics.Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.Name),
		Value: data,
		Time:  event.Timestamp,
	}, nil
}

var _ MessageWriter = (*kafka.Writer)(nil)
