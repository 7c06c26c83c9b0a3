package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"time"

	"mealshare-backend/config"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	userID := flag.String("user", "d5a2089c-e39a-4b62-a973-778f6729323d", "user id to put in the sub claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.SupabaseJWTSecret == "" {
		log.Fatalf("SUPABASE_JWT_SECRET not found in .env")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  *userID,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(*ttl).Unix(),
		"iss":  "supabase",
		"aud":  "authenticated",
		"role": "authenticated",
	})

	var secret []byte
	decoded, err := base64.StdEncoding.DecodeString(cfg.SupabaseJWTSecret)
	if err == nil {
		secret = decoded
	} else {
		secret = []byte(cfg.SupabaseJWTSecret)
	}

	tokenString, err := token.SignedString(secret)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("Token for %s (valid %s):\n", *userID, *ttl)
	fmt.Println(tokenString)
	fmt.Println("\nSeeded user ids:")
	fmt.Println("Alice: d5a2089c-e39a-4b62-a973-778f6729323d")
	fmt.Println("Bob:   38c072a2-43f9-42b9-b603-6061c49d5c2d")
	fmt.Println("Carol: ad655801-23a9-4a33-8695-81d4426604fb")
}
