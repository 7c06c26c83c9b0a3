package services

import (
	"context"
	"encoding/json"
	"fmt"

	"mealshare-backend/models"
	"mealshare-backend/repository"

	"github.com/google/uuid"
)

// recordEvent queues an integration event in the same transaction as the
// change it describes. cmd/outbox-relay publishes it later.
func recordEvent(ctx context.Context, outbox repository.OutboxRepository, aggregateType, aggregateID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}
	evt := &models.OutboxEvent{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}
	if err := outbox.Create(ctx, evt); err != nil {
		return fmt.Errorf("recording %s event: %w", eventType, err)
	}
	return nil
}
