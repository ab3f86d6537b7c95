package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/corebank/ledger-engine/internal/accounts"
	"github.com/corebank/ledger-engine/internal/api"
	"github.com/corebank/ledger-engine/internal/config"
	"github.com/corebank/ledger-engine/internal/events/kafka"
	"github.com/corebank/ledger-engine/internal/interfaces"
	"github.com/corebank/ledger-engine/internal/ledger"
	"github.com/corebank/ledger-engine/internal/storage/memory"
	"github.com/corebank/ledger-engine/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var store interfaces.LedgerStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("database open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := postgres.NewPostgresLedgerStore(db)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			logger.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		store = pg
		logger.Info("using postgres store")
	} else {
		store = memory.NewMemoryLedgerStore()
		logger.Info("no DATABASE_URL set, using in-memory store")
	}

	publisher := kafka.NewPublisher(cfg.KafkaBrokers,
		kafka.WithRetry(cfg.PublishRetries, cfg.PublishBackoff))
	defer publisher.Close()

	accountService := accounts.NewService(store, publisher, logger)
	ledgerService := ledger.NewLedger(store, publisher, logger,
		ledger.WithCommitTimeout(cfg.CommitTimeout))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(accountService, ledgerService, logger).Handler(),
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
