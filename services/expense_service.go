package services

import (
	"context"
	"strings"
	"time"

	"mealshare-backend/calculator"
	"mealshare-backend/database"
	apperrors "mealshare-backend/errors"
	"mealshare-backend/models"
	"mealshare-backend/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ExpenseService interface {
	Create(ctx context.Context, actorID string, in models.NewExpense) (*models.Expense, error)
	List(ctx context.Context, r models.DateRange, includeVoid bool) ([]models.Expense, error)
	GetByID(ctx context.Context, expenseID string) (*models.Expense, error)
	SetStatus(ctx context.Context, expenseID, actorID string, status models.ExpenseStatus) (*models.Expense, error)
	Delete(ctx context.Context, expenseID, actorID string) error
}

type expenseService struct {
	expenseRepo    repository.ExpenseRepository
	userRepo       repository.UserRepository
	attendanceRepo repository.AttendanceRepository
	outboxRepo     repository.OutboxRepository
	db             database.Transactor
	currency       string
}

func NewExpenseService(
	expenseRepo repository.ExpenseRepository,
	userRepo repository.UserRepository,
	attendanceRepo repository.AttendanceRepository,
	outboxRepo repository.OutboxRepository,
	db database.Transactor,
	currency string,
) ExpenseService {
	return &expenseService{
		expenseRepo:    expenseRepo,
		userRepo:       userRepo,
		attendanceRepo: attendanceRepo,
		outboxRepo:     outboxRepo,
		db:             db,
		currency:       currency,
	}
}

func (s *expenseService) Create(ctx context.Context, actorID string, in models.NewExpense) (*models.Expense, error) {
	if in.PayerID == "" {
		in.PayerID = actorID
	}
	if in.Amount <= 0 {
		return nil, apperrors.InvalidAmount("Expense amount must be positive.")
	}
	description := strings.TrimSpace(in.Description)
	if len(description) < MinDescriptionLength || len(description) > MaxDescriptionLength {
		return nil, apperrors.InvalidRequest("Description must be between 1 and 200 characters.")
	}
	if in.Notes != nil && len(*in.Notes) > MaxNoteLength {
		return nil, apperrors.InvalidRequest("Notes are too long.")
	}

	shares, err := s.resolveShares(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.requireUsers(ctx, in.PayerID, shares); err != nil {
		return nil, err
	}

	occurredOn := in.OccurredOn
	if occurredOn.IsZero() {
		occurredOn = time.Now().UTC().Truncate(24 * time.Hour)
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = s.currency
	}

	expense := &models.Expense{
		ID:          uuid.New().String(),
		EventID:     in.EventID,
		PayerID:     in.PayerID,
		Amount:      in.Amount,
		Currency:    currency,
		Description: description,
		OccurredOn:  occurredOn,
		Status:      models.ExpenseStatusOpen,
		Notes:       in.Notes,
	}
	for i := range shares {
		shares[i].ExpenseID = expense.ID
	}
	expense.Shares = shares

	err = s.db.WithTx(database.WithPurpose(ctx, "expense.create"), func(q database.Querier) error {
		txRepo := s.expenseRepo.WithTx(q)
		if err := txRepo.Create(ctx, expense); err != nil {
			return apperrors.DatabaseError("creating expense", err)
		}
		for i := range expense.Shares {
			if err := txRepo.CreateShare(ctx, &expense.Shares[i]); err != nil {
				return apperrors.DatabaseError("creating expense share", err)
			}
		}
		if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregateExpense, expense.ID, EventExpenseCreated, expense); err != nil {
			return apperrors.DatabaseError("recording expense event", err)
		}
		return nil
	})
	if err != nil {
		zap.L().Error("Failed to create expense", zap.String("payer_id", in.PayerID), zap.Error(err))
		return nil, err
	}

	zap.L().Info("Expense created",
		zap.String("expense_id", expense.ID),
		zap.String("payer_id", expense.PayerID),
		zap.Int64("amount", expense.Amount),
		zap.Int("shares", len(expense.Shares)))
	return expense, nil
}

// resolveShares picks the first share source present: explicit shares, an
// equal split over participants, or an equal split over the event's
// "going" attendees.
func (s *expenseService) resolveShares(ctx context.Context, in models.NewExpense) ([]models.ParticipantShare, error) {
	if len(in.Shares) > 0 {
		seen := make(map[string]bool, len(in.Shares))
		var total int64
		shares := make([]models.ParticipantShare, 0, len(in.Shares))
		for _, sh := range in.Shares {
			if sh.UserID == "" {
				return nil, apperrors.MissingRequiredField("user_id")
			}
			if seen[sh.UserID] {
				return nil, apperrors.InvalidRequestWithDetails("Each participant may appear once.", sh.UserID)
			}
			if sh.ShareAmount < 0 {
				return nil, apperrors.InvalidAmount("Share amounts must not be negative.")
			}
			seen[sh.UserID] = true
			total += sh.ShareAmount
			shares = append(shares, models.ParticipantShare{UserID: sh.UserID, ShareAmount: sh.ShareAmount})
		}
		if total > in.Amount {
			return nil, apperrors.SharesExceedAmount(total, in.Amount)
		}
		return shares, nil
	}

	var ids []string
	switch {
	case len(in.Participants) > 0:
		ids = append(ids, in.Participants...)
	case in.EventID != nil:
		going, err := s.attendanceRepo.GetGoingUserIDs(ctx, *in.EventID)
		if err != nil {
			return nil, apperrors.DatabaseError("getting event attendees", err)
		}
		ids = going
	}
	if in.IncludePayer {
		ids = append(ids, in.PayerID)
	}

	shares := calculator.EqualSplit(in.Amount, ids)
	if len(shares) == 0 {
		return nil, apperrors.InvalidRequest("An expense needs at least one participant.")
	}
	return shares, nil
}

func (s *expenseService) requireUsers(ctx context.Context, payerID string, shares []models.ParticipantShare) error {
	ids := []string{payerID}
	for _, sh := range shares {
		if sh.UserID != payerID {
			ids = append(ids, sh.UserID)
		}
	}
	for _, id := range ids {
		if _, err := s.userRepo.GetByID(ctx, id); err != nil {
			if apperrors.IsNotFoundError(err) {
				return apperrors.Wrap(err, apperrors.UserNotFound())
			}
			return apperrors.DatabaseError("getting user", err)
		}
	}
	return nil
}

func (s *expenseService) List(ctx context.Context, r models.DateRange, includeVoid bool) ([]models.Expense, error) {
	if err := calculator.ValidateRange(r); err != nil {
		return nil, err
	}
	expenses, err := s.expenseRepo.List(ctx, r, includeVoid)
	if err != nil {
		zap.L().Error("Failed to list expenses", zap.Error(err))
		return nil, apperrors.DatabaseError("listing expenses", err)
	}
	if expenses == nil {
		expenses = []models.Expense{}
	}
	return expenses, nil
}

func (s *expenseService) GetByID(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := s.expenseRepo.GetByID(ctx, expenseID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.ExpenseNotFound()
		}
		return nil, apperrors.DatabaseError("getting expense", err)
	}
	if err := s.attachShares(ctx, s.expenseRepo, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *expenseService) attachShares(ctx context.Context, repo repository.ExpenseRepository, expense *models.Expense) error {
	shares, err := repo.GetSharesByExpenseIDs(ctx, []string{expense.ID})
	if err != nil {
		return apperrors.DatabaseError("getting expense shares", err)
	}
	expense.Shares = shares[expense.ID]
	if expense.Shares == nil {
		expense.Shares = []models.ParticipantShare{}
	}
	return nil
}

// lockOwned loads the expense for update and checks that actorID paid it.
func (s *expenseService) lockOwned(ctx context.Context, repo repository.ExpenseRepository, expenseID, actorID string) (*models.Expense, error) {
	expense, err := repo.GetByIDForUpdate(ctx, expenseID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.ExpenseNotFound()
		}
		return nil, apperrors.DatabaseError("getting expense", err)
	}
	if expense.PayerID != actorID {
		return nil, apperrors.Forbidden("Only the payer can change this expense.")
	}
	return expense, nil
}

// SetStatus locks or voids an open expense. Setting the current status again
// is a no-op.
func (s *expenseService) SetStatus(ctx context.Context, expenseID, actorID string, status models.ExpenseStatus) (*models.Expense, error) {
	if status != models.ExpenseStatusLocked && status != models.ExpenseStatusVoid {
		return nil, apperrors.InvalidFieldFormat("status", "locked or void")
	}

	var expense *models.Expense
	err := s.db.WithTx(database.WithPurpose(ctx, "expense.set_status"), func(q database.Querier) error {
		txRepo := s.expenseRepo.WithTx(q)
		var err error
		expense, err = s.lockOwned(ctx, txRepo, expenseID, actorID)
		if err != nil {
			return err
		}
		if expense.Status == status {
			return s.attachShares(ctx, txRepo, expense)
		}
		if expense.Status != models.ExpenseStatusOpen {
			return apperrors.ExpenseNotOpen(string(expense.Status))
		}

		if err := txRepo.UpdateStatus(ctx, expenseID, status); err != nil {
			return apperrors.DatabaseError("updating expense status", err)
		}
		expense.Status = status
		if err := s.attachShares(ctx, txRepo, expense); err != nil {
			return err
		}
		payload := map[string]string{"expense_id": expenseID, "status": string(status), "actor_id": actorID}
		if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregateExpense, expenseID, EventExpenseStatus, payload); err != nil {
			return apperrors.DatabaseError("recording expense event", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Expense status changed", zap.String("expense_id", expenseID), zap.String("status", string(status)))
	return expense, nil
}

func (s *expenseService) Delete(ctx context.Context, expenseID, actorID string) error {
	err := s.db.WithTx(database.WithPurpose(ctx, "expense.delete"), func(q database.Querier) error {
		txRepo := s.expenseRepo.WithTx(q)
		expense, err := s.lockOwned(ctx, txRepo, expenseID, actorID)
		if err != nil {
			return err
		}
		if expense.Status != models.ExpenseStatusOpen {
			return apperrors.ExpenseNotOpen(string(expense.Status))
		}
		if err := txRepo.Delete(ctx, expenseID); err != nil {
			return apperrors.DatabaseError("deleting expense", err)
		}
		payload := map[string]string{"expense_id": expenseID, "actor_id": actorID}
		if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregateExpense, expenseID, EventExpenseDeleted, payload); err != nil {
			return apperrors.DatabaseError("recording expense event", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.L().Info("Expense deleted", zap.String("expense_id", expenseID), zap.String("actor_id", actorID))
	return nil
}
