// gastos-audit tails the ledger event stream and logs every deposit and
// expense as it is applied. Useful as an external audit trail and as a
// smoke check that events are flowing.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gastos/internal/amqp"
	"gastos/internal/config"
	"gastos/internal/log"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentAMQP})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the audit consumer")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Audit consumer started", "queue", cfg.AMQPQueue)
	err = client.ConsumeLedgerEvents(ctx, func(msg *amqp.LedgerEventMessage) error {
		logger.Info("Ledger event",
			log.FieldEvent, msg.Event,
			log.FieldOwner, msg.Owner,
			log.FieldRecordID, msg.RecordID,
			log.FieldAmountCents, msg.AmountCents,
			"timestamp", msg.Timestamp)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Audit consumer stopped")
}
