package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"mealshare-backend/config"
	"mealshare-backend/database"
	"mealshare-backend/models"
	"mealshare-backend/repository"
	"mealshare-backend/services"

	"github.com/google/uuid"
)

// Fixed ids so tokens from scripts/generate_token keep working across reseeds.
const (
	aliceID = "d5a2089c-e39a-4b62-a973-778f6729323d"
	bobID   = "38c072a2-43f9-42b9-b603-6061c49d5c2d"
	carolID = "ad655801-23a9-4a33-8695-81d4426604fb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Starting database seeding...")

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	if err := clearDatabase(ctx, db); err != nil {
		log.Fatalf("Failed to clear database: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	users, err := seedUsers(ctx, userRepo)
	if err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}
	log.Printf("✓ Seeded %d users", len(users))

	outboxRepo := repository.NewOutboxRepository(db)
	expenseService := services.NewExpenseService(
		repository.NewExpenseRepository(db), userRepo, repository.NewAttendanceRepository(db), outboxRepo, db, cfg.DefaultCurrency,
	)
	expenses, err := seedExpenses(ctx, expenseService)
	if err != nil {
		log.Fatalf("Failed to seed expenses: %v", err)
	}
	log.Printf("✓ Seeded %d expenses", expenses)

	if err := seedWallet(ctx, db, repository.NewWalletRepository(db), bobID, 600, cfg.DefaultCurrency); err != nil {
		log.Fatalf("Failed to seed wallet: %v", err)
	}
	log.Println("✓ Seeded Bob's wallet with 6.00")

	log.Println("✓ Database seeding completed successfully!")
}

func clearDatabase(ctx context.Context, db *database.DB) error {
	log.Println("Clearing existing data...")

	tables := []string{
		"event_outbox", "wallet_txs", "payouts", "payments", "wallet_accounts",
		"expense_shares", "expenses", "event_attendance", "users",
	}
	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

func seedUsers(ctx context.Context, repo repository.UserRepository) ([]models.User, error) {
	alicePayPal := "alice-buyer@example.com"
	users := []models.User{
		{ID: aliceID, Email: "alice@example.com", DisplayName: "Alice", PayPalEmail: &alicePayPal},
		{ID: bobID, Email: "bob@example.com", DisplayName: "Bob"},
		{ID: carolID, Email: "carol@example.com", DisplayName: "Carol"},
	}
	for i := range users {
		if err := repo.Upsert(ctx, &users[i]); err != nil {
			return nil, fmt.Errorf("seeding %s: %w", users[i].Email, err)
		}
	}
	return users, nil
}

func seedExpenses(ctx context.Context, svc services.ExpenseService) (int, error) {
	day := func(s string) time.Time {
		t, _ := time.Parse("2006-01-02", s)
		return t
	}
	inputs := []struct {
		actor string
		in    models.NewExpense
	}{
		{aliceID, models.NewExpense{
			Amount: 3000, Description: "Dinner at Luigi's", OccurredOn: day("2026-05-01"),
			Participants: []string{bobID, carolID}, IncludePayer: true,
		}},
		{carolID, models.NewExpense{
			Amount: 1250, Description: "Groceries", OccurredOn: day("2026-05-03"),
			Shares: []models.ParticipantShare{{UserID: aliceID, ShareAmount: 500}, {UserID: bobID, ShareAmount: 500}},
		}},
	}
	for _, e := range inputs {
		if _, err := svc.Create(ctx, e.actor, e.in); err != nil {
			return 0, fmt.Errorf("seeding %q: %w", e.in.Description, err)
		}
	}
	return len(inputs), nil
}

// seedWallet credits an opening balance directly. Real top-ups go through the
// payment capture flow.
func seedWallet(ctx context.Context, db *database.DB, repo repository.WalletRepository, userID string, cents int64, currency string) error {
	return db.WithTx(database.WithPurpose(ctx, "seed.wallet"), func(q database.Querier) error {
		txRepo := repo.WithTx(q)
		acct, err := txRepo.LockAccount(ctx, userID, currency)
		if err != nil {
			return err
		}
		balance := acct.BalanceCents + cents
		if err := txRepo.UpdateBalance(ctx, userID, balance); err != nil {
			return err
		}
		provider, note := "seed", "opening balance"
		return txRepo.CreateTx(ctx, &models.WalletTx{
			ID:                uuid.New().String(),
			UserID:            userID,
			Type:              models.WalletTxTopup,
			AmountCents:       cents,
			AffectsBalance:    true,
			BalanceAfterCents: balance,
			Provider:          &provider,
			ProviderRef:       &userID,
			Note:              &note,
		})
	})
}
