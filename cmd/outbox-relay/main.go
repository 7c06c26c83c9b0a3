package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mealshare-backend/config"
	"mealshare-backend/database"
	"mealshare-backend/events"
	"mealshare-backend/repository"

	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	if os.Getenv("APP_ENV") == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required for the outbox relay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Warn("Failed to close kafka writer", zap.Error(err))
		}
	}()

	relay := events.NewRelay(
		repository.NewOutboxRepository(db),
		events.NewKafkaPublisher(writer),
		cfg.Outbox.PollInterval,
		cfg.Outbox.BatchSize,
	)

	logger.Info("Relaying outbox events",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic))
	relay.Run(ctx)
}
