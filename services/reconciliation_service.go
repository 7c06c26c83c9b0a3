package services

import (
	"context"

	"mealshare-backend/calculator"
	apperrors "mealshare-backend/errors"
	"mealshare-backend/models"
	"mealshare-backend/repository"

	"go.uber.org/zap"
)

// ReconciliationService serves the derived debt views. Every call reads the
// ledger afresh; nothing is cached or persisted.
type ReconciliationService interface {
	Nets(ctx context.Context, r models.DateRange) ([]models.NetBalance, error)
	Settlements(ctx context.Context, r models.DateRange) ([]models.ReceivableRow, error)
	SettlementsMinimal(ctx context.Context) ([]models.ReceivableRow, error)
	Reconciled(ctx context.Context) (*models.Reconciliation, error)
	Receivables(ctx context.Context, userID string) ([]models.ReceivableRow, error)
	Payable(ctx context.Context, userID string) ([]models.ReceivableRow, error)
}

type reconciliationService struct {
	userRepo    repository.UserRepository
	expenseRepo repository.ExpenseRepository
	payoutRepo  repository.PayoutRepository
	walletRepo  repository.WalletRepository
}

func NewReconciliationService(
	userRepo repository.UserRepository,
	expenseRepo repository.ExpenseRepository,
	payoutRepo repository.PayoutRepository,
	walletRepo repository.WalletRepository,
) ReconciliationService {
	return &reconciliationService{
		userRepo:    userRepo,
		expenseRepo: expenseRepo,
		payoutRepo:  payoutRepo,
		walletRepo:  walletRepo,
	}
}

func (s *reconciliationService) Nets(ctx context.Context, r models.DateRange) ([]models.NetBalance, error) {
	if err := calculator.ValidateRange(r); err != nil {
		return nil, err
	}
	users, err := s.userRepo.ListIDs(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("listing users", err)
	}
	expenses, err := s.expenseRepo.List(ctx, r, false)
	if err != nil {
		zap.L().Error("Failed to load expenses for nets", zap.Error(err))
		return nil, apperrors.DatabaseError("listing expenses", err)
	}
	return calculator.ComputeNets(users, expenses, r)
}

type ledgerSnapshot struct {
	edges   []models.SettlementEdge
	payouts []models.Payout
	wallets map[string]int64
}

func (s *reconciliationService) snapshot(ctx context.Context, r models.DateRange) (*ledgerSnapshot, error) {
	nets, err := s.Nets(ctx, r)
	if err != nil {
		return nil, err
	}
	payouts, err := s.payoutRepo.ListBetweenUsers(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("listing payouts", err)
	}
	wallets, err := s.walletRepo.GetBalances(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("getting wallet balances", err)
	}
	return &ledgerSnapshot{
		edges:   calculator.Resolve(nets),
		payouts: payouts,
		wallets: wallets,
	}, nil
}

// Settlements returns every resolved edge for the range with its
// reconciliation, including rows that are already covered.
func (s *reconciliationService) Settlements(ctx context.Context, r models.DateRange) ([]models.ReceivableRow, error) {
	snap, err := s.snapshot(ctx, r)
	if err != nil {
		return nil, err
	}
	return calculator.Reconcile(snap.edges, snap.payouts, snap.wallets).Edges, nil
}

// SettlementsMinimal is the all-time settlement list without covered rows.
func (s *reconciliationService) SettlementsMinimal(ctx context.Context) ([]models.ReceivableRow, error) {
	rows, err := s.Settlements(ctx, models.DateRange{})
	if err != nil {
		return nil, err
	}
	return calculator.Outstanding(rows), nil
}

func (s *reconciliationService) Reconciled(ctx context.Context) (*models.Reconciliation, error) {
	snap, err := s.snapshot(ctx, models.DateRange{})
	if err != nil {
		return nil, err
	}
	rec := calculator.Reconcile(snap.edges, snap.payouts, snap.wallets)
	return &rec, nil
}

func (s *reconciliationService) Receivables(ctx context.Context, userID string) ([]models.ReceivableRow, error) {
	snap, err := s.snapshot(ctx, models.DateRange{})
	if err != nil {
		return nil, err
	}
	return calculator.ReceivablesFor(userID, snap.edges, snap.payouts), nil
}

func (s *reconciliationService) Payable(ctx context.Context, userID string) ([]models.ReceivableRow, error) {
	snap, err := s.snapshot(ctx, models.DateRange{})
	if err != nil {
		return nil, err
	}
	return calculator.PayableFor(userID, snap.edges, snap.payouts, snap.wallets[userID]), nil
}
