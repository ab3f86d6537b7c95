// Package kafka publishes domain events to the message bus. Delivery is
// at-least-once from the publisher's perspective; consumers must treat
// redelivery of the same transaction as safe to re-process or discard.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/corebank/ledger-engine/internal/interfaces"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
)

// messageWriter is the slice of kafka.Writer the publisher needs. Tests
// substitute a stub.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher owns one writer connection to the bus. It is an explicitly-owned
// instance with its own lifecycle: construct at startup, Close at shutdown.
type Publisher struct {
	writer      messageWriter
	closer      interface{ Close() error }
	maxAttempts int
	backoff     time.Duration
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRetry sets the bounded retry budget for transient broker failures.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(p *Publisher) {
		p.maxAttempts = maxAttempts
		p.backoff = backoff
	}
}

func NewPublisher(brokers []string, opts ...Option) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	p := &Publisher{
		writer:      w,
		closer:      w,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish marshals the event and writes it to topic, retrying transient
// failures with doubling backoff until the budget is exhausted. It never
// blocks past the budget or the caller's context.
func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", topic, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Value: data,
	}

	backoff := p.backoff
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = p.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("publish to %s after %d attempts: %w", topic, p.maxAttempts, lastErr)
}

// Close releases the writer connection.
func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
