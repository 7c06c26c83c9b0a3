package repository

import (
	"context"
	"fmt"

	"mealshare-backend/database"
	"mealshare-backend/models"
)

// OutboxRepository stores domain events in the same transaction as the change
// that produced them; a relay publishes them later.
type OutboxRepository interface {
	Create(ctx context.Context, event *models.OutboxEvent) error
	Poll(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id string) error
	WithTx(tx database.Querier) OutboxRepository
}

type outboxRepository struct {
	db *database.DB
	tx database.Querier
}

func NewOutboxRepository(db *database.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) WithTx(tx database.Querier) OutboxRepository {
	return &outboxRepository{db: r.db, tx: tx}
}

func (r *outboxRepository) getQuerier() database.Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Pool
}

func (r *outboxRepository) Create(ctx context.Context, e *models.OutboxEvent) error {
	query := `INSERT INTO event_outbox (id, aggregate_type, aggregate_id, event_type, payload)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at`

	err := r.getQuerier().QueryRow(ctx, query, e.ID, e.AggregateType, e.AggregateID, e.EventType, []byte(e.Payload)).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) Poll(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
	          FROM event_outbox WHERE processed_at IS NULL
	          ORDER BY created_at LIMIT $1`

	rows, err := r.getQuerier().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("polling outbox: %w", err)
	}
	defer rows.Close()

	events := make([]models.OutboxEvent, 0)
	for rows.Next() {
		var e models.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string) error {
	if _, err := r.getQuerier().Exec(ctx, `UPDATE event_outbox SET processed_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("marking outbox event processed: %w", err)
	}
	return nil
}
