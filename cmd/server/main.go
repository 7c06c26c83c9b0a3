package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mealshare-backend/cache"
	"mealshare-backend/config"
	"mealshare-backend/database"
	"mealshare-backend/handlers"
	authmiddleware "mealshare-backend/middleware"
	"mealshare-backend/paypal"
	"mealshare-backend/repository"
	"mealshare-backend/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	if os.Getenv("APP_ENV") == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	var balanceCache services.BalanceCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, balances will be read from the database", zap.Error(err))
		}
		balanceCache = cache.NewBalanceCache(rdb, cfg.Redis.BalanceTTL)
	}

	userRepo := repository.NewUserRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	paypalClient := paypal.NewClient(paypal.Config{
		BaseURL:      cfg.PayPal.BaseURL,
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		WebhookID:    cfg.PayPal.WebhookID,
		ReturnURL:    cfg.PayPal.ReturnURL,
		CancelURL:    cfg.PayPal.CancelURL,
		BrandName:    cfg.PayPal.BrandName,
		Timeout:      cfg.PayPal.Timeout,
	})

	expenseService := services.NewExpenseService(expenseRepo, userRepo, attendanceRepo, outboxRepo, db, cfg.DefaultCurrency)
	reconciliationService := services.NewReconciliationService(userRepo, expenseRepo, payoutRepo, walletRepo)
	walletService := services.NewWalletService(walletRepo, outboxRepo, balanceCache, db, cfg.DefaultCurrency)
	payoutService := services.NewPayoutService(payoutRepo, userRepo, walletRepo, outboxRepo, paypalClient, balanceCache, db, cfg.DefaultCurrency)
	paymentService := services.NewPaymentService(paymentRepo, walletRepo, outboxRepo, paypalClient, balanceCache, db, cfg.DefaultCurrency)
	webhookService := services.NewWebhookService(paypalClient, paymentService, payoutService)

	var explanationService services.ExplanationService
	if cfg.GeminiAPIKey != "" {
		generator, err := services.NewGeminiGenerator(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Fatal("Failed to create explanation service", zap.Error(err))
		}
		defer generator.Close()
		explanationService = services.NewExplanationService(generator, expenseRepo, payoutRepo, userRepo, reconciliationService)
	} else {
		logger.Warn("GEMINI_API_KEY not set, debt explanations are disabled")
	}

	authMiddleware := authmiddleware.NewAuthMiddleware(cfg.SupabaseJWTSecret, cfg.SupabaseURL)

	h := handlers.NewHandlers(
		expenseService,
		reconciliationService,
		payoutService,
		walletService,
		paymentService,
		webhookService,
		explanationService,
	)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmiddleware.ZapLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(authmiddleware.Metrics)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(authmiddleware.SecurityHeaders)
	r.Use(authmiddleware.MaxBodySize(cfg.MaxBodySize))
	if cfg.Env == "production" {
		r.Use(authmiddleware.StrictTransportSecurity)
	}

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	r.Use(cors.Handler(corsOptions))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// signature verification stands in for auth here
	r.Post("/webhooks/paypal", h.PayPalWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Use(httprate.LimitByIP(services.GeneralRateLimit, 1*time.Minute))

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(services.PaymentsRateLimit, 1*time.Minute))
			h.RegisterPaymentRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(services.AIRateLimit, 1*time.Minute))
			h.RegisterExplanationRoutes(r)
		})

		h.RegisterRoutes(r)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
