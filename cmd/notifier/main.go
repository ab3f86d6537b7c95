// The notifier is the notification worker: an independent process consuming
// the settlement topics and performing side effects. It tolerates redelivery
// and message loss; each message is handled on its own.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/corebank/ledger-engine/internal/config"
	"github.com/corebank/ledger-engine/internal/notify"
)

const groupID = "notification-worker"

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := notify.NewHandler(logger)

	var wg sync.WaitGroup
	for _, topic := range notify.Topics {
		consumer := notify.NewConsumer(cfg.KafkaBrokers, groupID, topic, handler, logger)
		defer consumer.Close()

		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			logger.Info("consuming", "topic", topic, "group", groupID)
			if err := consumer.Run(ctx); err != nil {
				logger.Error("consumer stopped", "topic", topic, "error", err)
			}
		}(topic)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	stop()
	wg.Wait()
}
