package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"mealshare-backend/database"
	"mealshare-backend/models"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByProviderOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	GetByProviderOrderIDForUpdate(ctx context.Context, orderID string) (*models.Payment, error)
	MarkSucceeded(ctx context.Context, id string, amountCents int64, walletTxID string, meta json.RawMessage) error
	WithTx(tx database.Querier) PaymentRepository
}

type paymentRepository struct {
	db *database.DB
	tx database.Querier
}

func NewPaymentRepository(db *database.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithTx(tx database.Querier) PaymentRepository {
	return &paymentRepository{db: r.db, tx: tx}
}

func (r *paymentRepository) getQuerier() database.Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Pool
}

const paymentColumns = `id, user_id, provider, kind, amount_cents, currency, status, provider_order_id,
	          provider_meta, wallet_tx_id, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }, p *models.Payment) error {
	return row.Scan(
		&p.ID, &p.UserID, &p.Provider, &p.Kind, &p.AmountCents, &p.Currency, &p.Status, &p.ProviderOrderID,
		&p.ProviderMeta, &p.WalletTxID, &p.CreatedAt, &p.UpdatedAt,
	)
}

func (r *paymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `INSERT INTO payments (id, user_id, provider, kind, amount_cents, currency, status, provider_order_id, provider_meta)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING created_at, updated_at`

	err := r.getQuerier().QueryRow(ctx, query,
		p.ID, p.UserID, p.Provider, p.Kind, p.AmountCents, p.Currency, p.Status, p.ProviderOrderID, []byte(p.ProviderMeta),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByProviderOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_order_id = $1`
	if err := scanPayment(r.getQuerier().QueryRow(ctx, query, orderID), &p); err != nil {
		return nil, fmt.Errorf("getting payment by order id: %w", err)
	}
	return &p, nil
}

func (r *paymentRepository) GetByProviderOrderIDForUpdate(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_order_id = $1 FOR UPDATE`
	if err := scanPayment(r.getQuerier().QueryRow(ctx, query, orderID), &p); err != nil {
		return nil, fmt.Errorf("locking payment by order id: %w", err)
	}
	return &p, nil
}

func (r *paymentRepository) MarkSucceeded(ctx context.Context, id string, amountCents int64, walletTxID string, meta json.RawMessage) error {
	query := `UPDATE payments SET status = 'succeeded', amount_cents = $2, wallet_tx_id = $3,
	              provider_meta = COALESCE($4, provider_meta), updated_at = now()
	          WHERE id = $1 AND status <> 'succeeded'`

	var metaArg any
	if len(meta) > 0 {
		metaArg = []byte(meta)
	}
	tag, err := r.getQuerier().Exec(ctx, query, id, amountCents, walletTxID, metaArg)
	if err != nil {
		return fmt.Errorf("marking payment succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("marking payment succeeded: payment %s already settled", id)
	}
	return nil
}
