package repository

import (
	"context"
	"fmt"

	"mealshare-backend/database"
	"mealshare-backend/models"
)

type PayoutRepository interface {
	Create(ctx context.Context, payout *models.Payout) error
	GetByID(ctx context.Context, id string) (*models.Payout, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Payout, error)
	GetByPayPalItemIDForUpdate(ctx context.Context, itemID string) (*models.Payout, error)
	Update(ctx context.Context, payout *models.Payout) error
	ListForUser(ctx context.Context, userID string) ([]models.Payout, error)
	// ListBetweenUsers returns payouts addressed to a user that are still or
	// already moving money: processing, unclaimed and success.
	ListBetweenUsers(ctx context.Context) ([]models.Payout, error)
	WithTx(tx database.Querier) PayoutRepository
}

type payoutRepository struct {
	db *database.DB
	tx database.Querier
}

func NewPayoutRepository(db *database.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) WithTx(tx database.Querier) PayoutRepository {
	return &payoutRepository{db: r.db, tx: tx}
}

func (r *payoutRepository) getQuerier() database.Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Pool
}

const payoutColumns = `id, from_user_id, to_user_id, to_paypal_email, amount_cents, currency, method, status, note,
	          paypal_batch_id, paypal_item_id, paypal_txn_id, error_code, error_message,
	          tx_out_id, tx_in_id, created_at, updated_at`

func scanPayout(row interface{ Scan(...any) error }, p *models.Payout) error {
	return row.Scan(
		&p.ID, &p.FromUserID, &p.ToUserID, &p.ToPayPalEmail, &p.AmountCents, &p.Currency, &p.Method, &p.Status, &p.Note,
		&p.PayPalBatchID, &p.PayPalItemID, &p.PayPalTxnID, &p.ErrorCode, &p.ErrorMessage,
		&p.TxOutID, &p.TxInID, &p.CreatedAt, &p.UpdatedAt,
	)
}

func (r *payoutRepository) Create(ctx context.Context, p *models.Payout) error {
	query := `INSERT INTO payouts (id, from_user_id, to_user_id, to_paypal_email, amount_cents, currency, method, status, note, tx_out_id, tx_in_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          RETURNING created_at, updated_at`

	err := r.getQuerier().QueryRow(ctx, query,
		p.ID, p.FromUserID, p.ToUserID, p.ToPayPalEmail, p.AmountCents, p.Currency, p.Method, p.Status, p.Note,
		p.TxOutID, p.TxInID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating payout: %w", err)
	}
	return nil
}

func (r *payoutRepository) GetByID(ctx context.Context, id string) (*models.Payout, error) {
	var p models.Payout
	if err := scanPayout(r.getQuerier().QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id), &p); err != nil {
		return nil, fmt.Errorf("getting payout by id: %w", err)
	}
	return &p, nil
}

func (r *payoutRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Payout, error) {
	var p models.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1 FOR UPDATE`
	if err := scanPayout(r.getQuerier().QueryRow(ctx, query, id), &p); err != nil {
		return nil, fmt.Errorf("locking payout: %w", err)
	}
	return &p, nil
}

func (r *payoutRepository) GetByPayPalItemIDForUpdate(ctx context.Context, itemID string) (*models.Payout, error) {
	var p models.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE paypal_item_id = $1 FOR UPDATE`
	if err := scanPayout(r.getQuerier().QueryRow(ctx, query, itemID), &p); err != nil {
		return nil, fmt.Errorf("locking payout by paypal item: %w", err)
	}
	return &p, nil
}

func (r *payoutRepository) Update(ctx context.Context, p *models.Payout) error {
	query := `UPDATE payouts SET
	              status = $2, paypal_batch_id = $3, paypal_item_id = $4, paypal_txn_id = $5,
	              error_code = $6, error_message = $7, tx_out_id = $8, tx_in_id = $9, updated_at = now()
	          WHERE id = $1
	          RETURNING updated_at`

	err := r.getQuerier().QueryRow(ctx, query,
		p.ID, p.Status, p.PayPalBatchID, p.PayPalItemID, p.PayPalTxnID,
		p.ErrorCode, p.ErrorMessage, p.TxOutID, p.TxInID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating payout: %w", err)
	}
	return nil
}

func (r *payoutRepository) ListForUser(ctx context.Context, userID string) ([]models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts
	          WHERE from_user_id = $1 OR to_user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *payoutRepository) ListBetweenUsers(ctx context.Context) ([]models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts
	          WHERE to_user_id IS NOT NULL AND status IN ('processing', 'unclaimed', 'success')
	          ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *payoutRepository) list(ctx context.Context, query string, args ...any) ([]models.Payout, error) {
	rows, err := r.getQuerier().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payouts: %w", err)
	}
	defer rows.Close()

	payouts := make([]models.Payout, 0)
	for rows.Next() {
		var p models.Payout
		if err := scanPayout(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
