package repository

import (
	"context"
	"fmt"
	"strings"

	"mealshare-backend/database"
	"mealshare-backend/models"
)

type ExpenseRepository interface {
	GetByID(ctx context.Context, id string) (*models.Expense, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Expense, error)
	List(ctx context.Context, r models.DateRange, includeVoid bool) ([]models.Expense, error)
	Create(ctx context.Context, expense *models.Expense) error
	CreateShare(ctx context.Context, share *models.ParticipantShare) error
	UpdateStatus(ctx context.Context, id string, status models.ExpenseStatus) error
	Delete(ctx context.Context, id string) error
	GetSharesByExpenseIDs(ctx context.Context, expenseIDs []string) (map[string][]models.ParticipantShare, error)
	WithTx(tx database.Querier) ExpenseRepository
}

type expenseRepository struct {
	db *database.DB
	tx database.Querier
}

func NewExpenseRepository(db *database.DB) ExpenseRepository {
	return &expenseRepository{db: db}
}

func (r *expenseRepository) WithTx(tx database.Querier) ExpenseRepository {
	return &expenseRepository{db: r.db, tx: tx}
}

func (r *expenseRepository) getQuerier() database.Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Pool
}

const expenseColumns = `id, event_id, payer_id, amount, currency, description, occurred_on,
	          status, notes, created_at, updated_at`

func scanExpense(row interface{ Scan(...any) error }, e *models.Expense) error {
	return row.Scan(
		&e.ID, &e.EventID, &e.PayerID, &e.Amount, &e.Currency, &e.Description, &e.OccurredOn,
		&e.Status, &e.Notes, &e.CreatedAt, &e.UpdatedAt,
	)
}

func (r *expenseRepository) GetByID(ctx context.Context, id string) (*models.Expense, error) {
	return r.getOne(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)
}

func (r *expenseRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Expense, error) {
	return r.getOne(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1 FOR UPDATE`, id)
}

func (r *expenseRepository) getOne(ctx context.Context, query, id string) (*models.Expense, error) {
	var expense models.Expense
	if err := scanExpense(r.getQuerier().QueryRow(ctx, query, id), &expense); err != nil {
		return nil, fmt.Errorf("getting expense by id: %w", err)
	}

	shares, err := r.GetSharesByExpenseIDs(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("getting expense shares: %w", err)
	}
	expense.Shares = shares[id]
	if expense.Shares == nil {
		expense.Shares = []models.ParticipantShare{}
	}

	return &expense, nil
}

func (r *expenseRepository) List(ctx context.Context, dr models.DateRange, includeVoid bool) ([]models.Expense, error) {
	var (
		conds []string
		args  []any
	)
	if !includeVoid {
		conds = append(conds, "status <> 'void'")
	}
	if dr.From != nil {
		args = append(args, *dr.From)
		conds = append(conds, fmt.Sprintf("occurred_on >= $%d", len(args)))
	}
	if dr.To != nil {
		args = append(args, *dr.To)
		conds = append(conds, fmt.Sprintf("occurred_on <= $%d", len(args)))
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_on DESC, created_at DESC"

	rows, err := r.getQuerier().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]models.Expense, 0)
	expenseIDs := make([]string, 0)
	for rows.Next() {
		var expense models.Expense
		if err := scanExpense(rows, &expense); err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		expenses = append(expenses, expense)
		expenseIDs = append(expenseIDs, expense.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expenses: %w", err)
	}

	if len(expenseIDs) > 0 {
		allShares, err := r.GetSharesByExpenseIDs(ctx, expenseIDs)
		if err != nil {
			return nil, fmt.Errorf("batch getting shares: %w", err)
		}
		for i := range expenses {
			expenses[i].Shares = allShares[expenses[i].ID]
			if expenses[i].Shares == nil {
				expenses[i].Shares = []models.ParticipantShare{}
			}
		}
	}

	return expenses, nil
}

func (r *expenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	query := `INSERT INTO expenses (id, event_id, payer_id, amount, currency, description, occurred_on, status, notes)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING created_at, updated_at`

	err := r.getQuerier().QueryRow(ctx, query,
		expense.ID, expense.EventID, expense.PayerID, expense.Amount, expense.Currency,
		expense.Description, expense.OccurredOn, expense.Status, expense.Notes,
	).Scan(&expense.CreatedAt, &expense.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating expense: %w", err)
	}
	return nil
}

func (r *expenseRepository) CreateShare(ctx context.Context, share *models.ParticipantShare) error {
	query := `INSERT INTO expense_shares (expense_id, user_id, share_amount) VALUES ($1, $2, $3)`
	if _, err := r.getQuerier().Exec(ctx, query, share.ExpenseID, share.UserID, share.ShareAmount); err != nil {
		return fmt.Errorf("creating expense share: %w", err)
	}
	return nil
}

func (r *expenseRepository) UpdateStatus(ctx context.Context, id string, status models.ExpenseStatus) error {
	query := `UPDATE expenses SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.getQuerier().Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("updating expense status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating expense status: expense not found")
	}
	return nil
}

func (r *expenseRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM expenses WHERE id = $1 AND status = 'open'`
	tag, err := r.getQuerier().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting expense: open expense not found")
	}
	return nil
}

func (r *expenseRepository) GetSharesByExpenseIDs(ctx context.Context, expenseIDs []string) (map[string][]models.ParticipantShare, error) {
	query := `SELECT expense_id, user_id, share_amount FROM expense_shares
	          WHERE expense_id = ANY($1) ORDER BY expense_id, user_id`

	rows, err := r.getQuerier().Query(ctx, query, expenseIDs)
	if err != nil {
		return nil, fmt.Errorf("getting shares by expense ids: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]models.ParticipantShare)
	for rows.Next() {
		var s models.ParticipantShare
		if err := rows.Scan(&s.ExpenseID, &s.UserID, &s.ShareAmount); err != nil {
			return nil, fmt.Errorf("scanning share: %w", err)
		}
		result[s.ExpenseID] = append(result[s.ExpenseID], s)
	}
	return result, rows.Err()
}
