package repository

import (
	"context"
	"fmt"

	"mealshare-backend/database"
	"mealshare-backend/models"
)

// UserRepository reads the user directory. Accounts themselves are managed by
// the identity provider; Upsert exists for seeding.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	ListIDs(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, user *models.User) error
	WithTx(tx database.Querier) UserRepository
}

type userRepository struct {
	db *database.DB
	tx database.Querier
}

func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) WithTx(tx database.Querier) UserRepository {
	return &userRepository{db: r.db, tx: tx}
}

func (r *userRepository) getQuerier() database.Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db.Pool
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, display_name, paypal_email, created_at FROM users WHERE id = $1`

	err := r.getQuerier().QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PayPalEmail, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context) ([]models.User, error) {
	query := `SELECT id, email, display_name, paypal_email, created_at FROM users ORDER BY display_name ASC`

	rows, err := r.getQuerier().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PayPalEmail, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *userRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.getQuerier().Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing user ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, email, display_name, paypal_email)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (id) DO UPDATE SET
	              email = EXCLUDED.email,
	              display_name = EXCLUDED.display_name,
	              paypal_email = EXCLUDED.paypal_email
	          RETURNING created_at`

	err := r.getQuerier().QueryRow(ctx, query, user.ID, user.Email, user.DisplayName, user.PayPalEmail).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}
