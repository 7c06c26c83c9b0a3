package events

import (
	"context"
	"time"

	"mealshare-backend/models"
	"mealshare-backend/repository"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, evt models.OutboxEvent) error
}

type Relay struct {
	outbox    repository.OutboxRepository
	publisher Publisher
	interval  time.Duration
	batchSize int
}

func NewRelay(outbox repository.OutboxRepository, publisher Publisher, interval time.Duration, batchSize int) *Relay {
	return &Relay{outbox: outbox, publisher: publisher, interval: interval, batchSize: batchSize}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	zap.L().Info("Outbox relay started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				zap.L().Error("Failed to poll outbox", zap.Error(err))
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many events were delivered.
// A failed event stays pending and is retried on the next poll; later events
// in the batch are held back to keep order.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	batch, err := r.outbox.Poll(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, evt := range batch {
		if err := r.publisher.Publish(ctx, evt); err != nil {
			zap.L().Error("Failed to publish outbox event",
				zap.String("event_id", evt.ID),
				zap.String("event_type", evt.EventType),
				zap.Error(err))
			return sent, nil
		}
		if err := r.outbox.MarkProcessed(ctx, evt.ID); err != nil {
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		zap.L().Debug("Relayed outbox events", zap.Int("count", sent))
	}
	return sent, nil
}
