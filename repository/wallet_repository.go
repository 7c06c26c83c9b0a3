package repository

import (
	"context"
	"errors"
	"fmt"

	"mealshare-backend/database"
	"mealshare-backend/models"

	"github.com/jackc/pgx/v5"
)

type WalletRepository interface {
	GetAccount(ctx context.Context, userID string) (*models.WalletAccount, error)
	// LockAccount returns the account row locked for update, creating an empty
	// account first when the user has none.
	LockAccount(ctx context.Context, userID, currency string) (*models.WalletAccount, error)
	UpdateBalance(ctx context.Context, userID string, balanceCents int64) error
	CreateTx(ctx context.Context, tx *models.WalletTx) error
	GetLastTx(ctx context.Context, userID string) (*models.WalletTx, error)
	ListTx(ctx context.Context, userID string, limit int) ([]models.WalletTx, error)
	SumTx(ctx context.Context, userID string) (int64, error)
	GetTopupByProviderRef(ctx context.Context, provider, providerRef string) (*models.WalletTx, error)
	GetBalances(ctx context.Context) (map[string]int64, error)
	WithTx(tx database.Querier) WalletRepository
}

type walletRepository struct {
	db *database.DB
	tx database.Querier
}

func NewWalletRepository(db *database.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) WithTx(tx database.Querier) WalletRepository {
	return &walletRepository{db: r.db, tx: tx}
}

func (r *walletRepository) getQuerier() database.Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Pool
}

func (r *walletRepository) GetAccount(ctx context.Context, userID string) (*models.WalletAccount, error) {
	var acct models.WalletAccount
	query := `SELECT user_id, balance_cents, currency, updated_at FROM wallet_accounts WHERE user_id = $1`

	err := r.getQuerier().QueryRow(ctx, query, userID).Scan(&acct.UserID, &acct.BalanceCents, &acct.Currency, &acct.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting wallet account: %w", err)
	}
	return &acct, nil
}

func (r *walletRepository) LockAccount(ctx context.Context, userID, currency string) (*models.WalletAccount, error) {
	q := r.getQuerier()
	if _, err := q.Exec(ctx,
		`INSERT INTO wallet_accounts (user_id, currency) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, currency,
	); err != nil {
		return nil, fmt.Errorf("ensuring wallet account: %w", err)
	}

	var acct models.WalletAccount
	query := `SELECT user_id, balance_cents, currency, updated_at FROM wallet_accounts WHERE user_id = $1 FOR UPDATE`
	if err := q.QueryRow(ctx, query, userID).Scan(&acct.UserID, &acct.BalanceCents, &acct.Currency, &acct.UpdatedAt); err != nil {
		return nil, fmt.Errorf("locking wallet account: %w", err)
	}
	return &acct, nil
}

func (r *walletRepository) UpdateBalance(ctx context.Context, userID string, balanceCents int64) error {
	query := `UPDATE wallet_accounts SET balance_cents = $2, updated_at = now() WHERE user_id = $1`
	if _, err := r.getQuerier().Exec(ctx, query, userID, balanceCents); err != nil {
		return fmt.Errorf("updating wallet balance: %w", err)
	}
	return nil
}

func (r *walletRepository) CreateTx(ctx context.Context, tx *models.WalletTx) error {
	query := `INSERT INTO wallet_txs (id, user_id, type, amount_cents, affects_balance, balance_after_cents,
	              provider, provider_ref, payment_id, payout_id, related_user_id, note)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          RETURNING created_at`

	err := r.getQuerier().QueryRow(ctx, query,
		tx.ID, tx.UserID, tx.Type, tx.AmountCents, tx.AffectsBalance, tx.BalanceAfterCents,
		tx.Provider, tx.ProviderRef, tx.PaymentID, tx.PayoutID, tx.RelatedUserID, tx.Note,
	).Scan(&tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating wallet tx: %w", err)
	}
	return nil
}

const walletTxColumns = `id, user_id, type, amount_cents, affects_balance, balance_after_cents,
	          provider, provider_ref, payment_id, payout_id, related_user_id, note, created_at`

func scanWalletTx(row interface{ Scan(...any) error }, t *models.WalletTx) error {
	return row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.AmountCents, &t.AffectsBalance, &t.BalanceAfterCents,
		&t.Provider, &t.ProviderRef, &t.PaymentID, &t.PayoutID, &t.RelatedUserID, &t.Note, &t.CreatedAt,
	)
}

func (r *walletRepository) GetLastTx(ctx context.Context, userID string) (*models.WalletTx, error) {
	query := `SELECT ` + walletTxColumns + ` FROM wallet_txs
	          WHERE user_id = $1 AND affects_balance ORDER BY seq DESC LIMIT 1`

	var t models.WalletTx
	err := scanWalletTx(r.getQuerier().QueryRow(ctx, query, userID), &t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting last wallet tx: %w", err)
	}
	return &t, nil
}

func (r *walletRepository) ListTx(ctx context.Context, userID string, limit int) ([]models.WalletTx, error) {
	query := `SELECT ` + walletTxColumns + ` FROM wallet_txs WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`

	rows, err := r.getQuerier().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing wallet txs: %w", err)
	}
	defer rows.Close()

	txs := make([]models.WalletTx, 0)
	for rows.Next() {
		var t models.WalletTx
		if err := scanWalletTx(rows, &t); err != nil {
			return nil, fmt.Errorf("scanning wallet tx: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *walletRepository) SumTx(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COALESCE(SUM(CASE
	              WHEN type IN ('withdraw', 'payout_out') THEN -amount_cents
	              ELSE amount_cents END), 0)::BIGINT
	          FROM wallet_txs WHERE user_id = $1 AND affects_balance`

	var sum int64
	if err := r.getQuerier().QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing wallet txs: %w", err)
	}
	return sum, nil
}

func (r *walletRepository) GetTopupByProviderRef(ctx context.Context, provider, providerRef string) (*models.WalletTx, error) {
	query := `SELECT ` + walletTxColumns + ` FROM wallet_txs
	          WHERE type = 'topup' AND provider = $1 AND provider_ref = $2`

	var t models.WalletTx
	err := scanWalletTx(r.getQuerier().QueryRow(ctx, query, provider, providerRef), &t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting topup by provider ref: %w", err)
	}
	return &t, nil
}

func (r *walletRepository) GetBalances(ctx context.Context) (map[string]int64, error) {
	rows, err := r.getQuerier().Query(ctx, `SELECT user_id, balance_cents FROM wallet_accounts`)
	if err != nil {
		return nil, fmt.Errorf("getting wallet balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]int64)
	for rows.Next() {
		var (
			userID  string
			balance int64
		)
		if err := rows.Scan(&userID, &balance); err != nil {
			return nil, fmt.Errorf("scanning wallet balance: %w", err)
		}
		balances[userID] = balance
	}
	return balances, rows.Err()
}
