package main

import (
	"context"
	"fmt"
	"log"

	"mealshare-backend/config"
	"mealshare-backend/database"
	"mealshare-backend/money"
	"mealshare-backend/repository"
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

	users, err := repository.NewUserRepository(db).List(ctx)
	if err != nil {
		log.Fatalf("Listing users failed: %v", err)
	}
	balances, err := repository.NewWalletRepository(db).GetBalances(ctx)
	if err != nil {
		log.Fatalf("Reading wallets failed: %v", err)
	}

	fmt.Println("Users in Database:")
	fmt.Println("------------------")
	for _, u := range users {
		paypal := "-"
		if u.PayPalEmail != nil {
			paypal = *u.PayPalEmail
		}
		fmt.Printf("ID: %s | Email: %-20s | Name: %-10s | PayPal: %-24s | Wallet: %s %s\n",
			u.ID, u.Email, u.DisplayName, paypal, money.Format(balances[u.ID]), cfg.DefaultCurrency)
	}
}
