package services

import (
	"context"
	"sort"

	"mealshare-backend/database"
	apperrors "mealshare-backend/errors"
	"mealshare-backend/metrics"
	"mealshare-backend/models"
	"mealshare-backend/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BalanceCache holds display copies of wallet balances. The database is the
// source of truth.
type BalanceCache interface {
	Get(ctx context.Context, userID string) (int64, bool, error)
	Set(ctx context.Context, userID string, cents int64) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

type WalletService interface {
	Get(ctx context.Context, userID string) (*models.WalletSummary, error)
	Transactions(ctx context.Context, userID string) ([]models.WalletTx, error)
	Withdraw(ctx context.Context, userID string, amountCents int64, note string) (*models.WalletTx, error)
	Audit(ctx context.Context, userID string) (*models.WalletAudit, error)
}

// walletEntry is one balance change to append to a user's ledger.
// For adjustments AmountCents carries the sign.
type walletEntry struct {
	UserID        string
	Type          models.WalletTxType
	AmountCents   int64
	Provider      *string
	ProviderRef   *string
	PaymentID     *string
	PayoutID      *string
	RelatedUserID *string
	Note          *string
}

// walletLedger is the only writer of wallet balances. Every call runs inside
// a transaction owned by the caller.
type walletLedger struct {
	walletRepo repository.WalletRepository
	outboxRepo repository.OutboxRepository
	currency   string
}

// lock takes the account row locks in user id order.
func (l *walletLedger) lock(ctx context.Context, q database.Querier, userIDs ...string) error {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	repo := l.walletRepo.WithTx(q)
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if _, err := repo.LockAccount(ctx, id, l.currency); err != nil {
			return apperrors.DatabaseError("locking wallet account", err)
		}
	}
	return nil
}

func (l *walletLedger) apply(ctx context.Context, q database.Querier, e walletEntry) (*models.WalletTx, error) {
	repo := l.walletRepo.WithTx(q)

	acct, err := repo.LockAccount(ctx, e.UserID, l.currency)
	if err != nil {
		return nil, apperrors.DatabaseError("locking wallet account", err)
	}

	last, err := repo.GetLastTx(ctx, e.UserID)
	if err != nil {
		return nil, apperrors.DatabaseError("reading wallet ledger", err)
	}
	var ledgerBalance int64
	if last != nil {
		ledgerBalance = last.BalanceAfterCents
	}
	if ledgerBalance != acct.BalanceCents {
		metrics.ConsistencyViolations.Inc()
		zap.L().Error("Wallet balance disagrees with ledger",
			zap.String("user_id", e.UserID),
			zap.Int64("balance_cents", acct.BalanceCents),
			zap.Int64("ledger_cents", ledgerBalance))
		return nil, apperrors.ConsistencyViolation(e.UserID, acct.BalanceCents, ledgerBalance)
	}

	tx := &models.WalletTx{
		ID:             uuid.New().String(),
		UserID:         e.UserID,
		Type:           e.Type,
		AmountCents:    e.AmountCents,
		AffectsBalance: true,
		Provider:       e.Provider,
		ProviderRef:    e.ProviderRef,
		PaymentID:      e.PaymentID,
		PayoutID:       e.PayoutID,
		RelatedUserID:  e.RelatedUserID,
		Note:           e.Note,
	}
	newBalance := acct.BalanceCents + tx.SignedAmount()
	if newBalance < 0 {
		return nil, apperrors.InsufficientFunds(acct.BalanceCents, -tx.SignedAmount())
	}
	tx.BalanceAfterCents = newBalance

	if err := repo.UpdateBalance(ctx, e.UserID, newBalance); err != nil {
		return nil, apperrors.DatabaseError("updating wallet balance", err)
	}
	if err := repo.CreateTx(ctx, tx); err != nil {
		return nil, apperrors.DatabaseError("creating wallet tx", err)
	}
	if err := recordEvent(ctx, l.outboxRepo.WithTx(q), AggregateWallet, e.UserID, EventWalletTxApplied, tx); err != nil {
		return nil, apperrors.DatabaseError("recording wallet event", err)
	}

	return tx, nil
}

// observeWalletTxs counts committed wallet rows.
func observeWalletTxs(txs ...*models.WalletTx) {
	for _, tx := range txs {
		if tx == nil {
			continue
		}
		amount := tx.AmountCents
		if amount < 0 {
			amount = -amount
		}
		metrics.WalletTxs.WithLabelValues(string(tx.Type)).Inc()
		metrics.WalletTxCents.WithLabelValues(string(tx.Type)).Add(float64(amount))
	}
}

func invalidateBalances(ctx context.Context, cache BalanceCache, userIDs ...string) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, userIDs...); err != nil {
		zap.L().Warn("Failed to invalidate cached balances", zap.Strings("user_ids", userIDs), zap.Error(err))
	}
}

type walletService struct {
	ledger     *walletLedger
	walletRepo repository.WalletRepository
	cache      BalanceCache
	db         database.Transactor
	currency   string
}

func NewWalletService(walletRepo repository.WalletRepository, outboxRepo repository.OutboxRepository, cache BalanceCache, db database.Transactor, currency string) WalletService {
	return &walletService{
		ledger:     &walletLedger{walletRepo: walletRepo, outboxRepo: outboxRepo, currency: currency},
		walletRepo: walletRepo,
		cache:      cache,
		db:         db,
		currency:   currency,
	}
}

func (s *walletService) account(ctx context.Context, userID string) (*models.WalletAccount, error) {
	acct, err := s.walletRepo.GetAccount(ctx, userID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return &models.WalletAccount{UserID: userID, Currency: s.currency}, nil
		}
		return nil, apperrors.DatabaseError("getting wallet account", err)
	}
	return acct, nil
}

func (s *walletService) Get(ctx context.Context, userID string) (*models.WalletSummary, error) {
	if s.cache != nil {
		cents, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			zap.L().Warn("Balance cache read failed", zap.String("user_id", userID), zap.Error(err))
		} else if ok {
			return &models.WalletSummary{
				Account: models.WalletAccount{UserID: userID, BalanceCents: cents, Currency: s.currency},
				Cached:  true,
			}, nil
		}
	}

	acct, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, acct.BalanceCents); err != nil {
			zap.L().Warn("Balance cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return &models.WalletSummary{Account: *acct}, nil
}

func (s *walletService) Transactions(ctx context.Context, userID string) ([]models.WalletTx, error) {
	txs, err := s.walletRepo.ListTx(ctx, userID, WalletTxHistoryLimit)
	if err != nil {
		zap.L().Error("Failed to list wallet txs", zap.String("user_id", userID), zap.Error(err))
		return nil, apperrors.DatabaseError("listing wallet txs", err)
	}
	if txs == nil {
		txs = []models.WalletTx{}
	}
	return txs, nil
}

func (s *walletService) Withdraw(ctx context.Context, userID string, amountCents int64, note string) (*models.WalletTx, error) {
	if amountCents <= 0 {
		return nil, apperrors.InvalidAmount("Withdrawal amount must be positive.")
	}

	var tx *models.WalletTx
	err := s.db.WithTx(database.WithPurpose(ctx, "wallet.withdraw"), func(q database.Querier) error {
		var err error
		tx, err = s.ledger.apply(ctx, q, walletEntry{
			UserID:      userID,
			Type:        models.WalletTxWithdraw,
			AmountCents: amountCents,
			Note:        optionalString(note),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	observeWalletTxs(tx)
	invalidateBalances(ctx, s.cache, userID)
	zap.L().Info("Wallet withdrawal recorded", zap.String("user_id", userID), zap.Int64("amount_cents", amountCents))
	return tx, nil
}

// Audit recomputes the balance from the ledger. A mismatch is reported,
// never repaired.
func (s *walletService) Audit(ctx context.Context, userID string) (*models.WalletAudit, error) {
	acct, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.walletRepo.SumTx(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError("summing wallet txs", err)
	}

	audit := &models.WalletAudit{
		UserID:       userID,
		BalanceCents: acct.BalanceCents,
		LedgerCents:  sum,
		Consistent:   sum == acct.BalanceCents,
	}
	if !audit.Consistent {
		metrics.ConsistencyViolations.Inc()
		zap.L().Error("Wallet audit found inconsistent ledger",
			zap.String("user_id", userID),
			zap.Int64("balance_cents", acct.BalanceCents),
			zap.Int64("ledger_cents", sum))
		return audit, apperrors.ConsistencyViolation(userID, acct.BalanceCents, sum)
	}
	return audit, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
