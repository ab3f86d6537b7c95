// Package notify is the notification worker's consumption logic. Each
// message is a best-effort, independently-actionable fact: the handler
// tolerates redelivery, loss and arbitrary ordering across topics, so
// re-processing a duplicate only repeats a log line.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/corebank/ledger-engine/internal/models/events"
)

// Topics is everything the worker subscribes to.
var Topics = []string{
	events.TopicTransactionCompleted,
	events.TopicTransactionFailed,
	events.TopicAccountFunded,
}

// Handler turns one bus message into a notification side effect.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Handle dispatches a raw message by topic. Unknown topics and malformed
// payloads are reported but never fail the worker.
func (h *Handler) Handle(topic string, value []byte) error {
	switch topic {
	case events.TopicTransactionCompleted:
		var e events.TransactionCompleted
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.logger.Info("transaction completed",
			"userId", e.UserID, "type", e.Type, "amount", e.Amount.String())
	case events.TopicTransactionFailed:
		var e events.TransactionFailed
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.logger.Info("transaction failed",
			"userId", e.UserID, "type", e.Type, "reason", e.Reason)
	case events.TopicAccountFunded:
		var e events.AccountFunded
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode %s: %w", topic, err)
		}
		h.logger.Info("account funded",
			"accountNumber", e.AccountNumber, "userId", e.UserID,
			"amount", e.Amount.String(), "balance", e.Balance.String())
	default:
		return fmt.Errorf("unknown topic %q", topic)
	}
	return nil
}

// messageReader is the slice of kafka.Reader the consumer needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads one topic in a consumer group and feeds the handler.
// ReadMessage commits offsets after delivery, so the worker sees each
// message at least once.
type Consumer struct {
	reader  messageReader
	handler *Handler
	logger  *slog.Logger
}

func NewConsumer(brokers []string, groupID, topic string, handler *Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}),
		handler: handler,
		logger:  logger,
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.handler.Handle(msg.Topic, msg.Value); err != nil {
			c.logger.Warn("dropping unprocessable message",
				"topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// Close releases the reader's group membership and connections.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
