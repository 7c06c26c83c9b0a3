package services

import (
	"context"
	"strings"

	"mealshare-backend/database"
	apperrors "mealshare-backend/errors"
	"mealshare-backend/metrics"
	"mealshare-backend/models"
	"mealshare-backend/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentGateway is the checkout side of the payment provider.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, payerID string, amountCents int64, currency string) (*models.ProviderOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*models.ProviderCapture, error)
}

type PaymentService interface {
	CreateOrder(ctx context.Context, userID string, amountCents int64, currency string) (*models.OrderResult, error)
	// CaptureOrder settles an approved order into a wallet top-up. actorID is
	// empty for provider callbacks.
	CaptureOrder(ctx context.Context, orderID, actorID string) (*models.CaptureResult, error)
}

type paymentService struct {
	paymentRepo repository.PaymentRepository
	walletRepo  repository.WalletRepository
	outboxRepo  repository.OutboxRepository
	ledger      *walletLedger
	gateway     PaymentGateway
	cache       BalanceCache
	db          database.Transactor
	currency    string
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	walletRepo repository.WalletRepository,
	outboxRepo repository.OutboxRepository,
	gateway PaymentGateway,
	cache BalanceCache,
	db database.Transactor,
	currency string,
) PaymentService {
	return &paymentService{
		paymentRepo: paymentRepo,
		walletRepo:  walletRepo,
		outboxRepo:  outboxRepo,
		ledger:      &walletLedger{walletRepo: walletRepo, outboxRepo: outboxRepo, currency: currency},
		gateway:     gateway,
		cache:       cache,
		db:          db,
		currency:    currency,
	}
}

func (s *paymentService) CreateOrder(ctx context.Context, userID string, amountCents int64, currency string) (*models.OrderResult, error) {
	if amountCents <= 0 {
		return nil, apperrors.InvalidAmount("Top-up amount must be positive.")
	}
	currency = strings.ToUpper(currency)
	if currency == "" {
		currency = s.currency
	}

	order, err := s.gateway.CreateOrder(ctx, userID, amountCents, currency)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("create_order").Inc()
		zap.L().Error("PayPal order creation failed", zap.String("user_id", userID), zap.Error(err))
		return nil, apperrors.ProviderError("creating order", err)
	}

	payment := &models.Payment{
		ID:              uuid.New().String(),
		UserID:          userID,
		Provider:        ProviderPayPal,
		Kind:            PaymentKindTopup,
		AmountCents:     amountCents,
		Currency:        currency,
		Status:          models.PaymentStatusPending,
		ProviderOrderID: order.OrderID,
		ProviderMeta:    order.Raw,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		zap.L().Error("Failed to persist payment", zap.String("order_id", order.OrderID), zap.Error(err))
		return nil, apperrors.DatabaseError("creating payment", err)
	}

	zap.L().Info("Top-up order created",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", order.OrderID),
		zap.Int64("amount_cents", amountCents))
	return &models.OrderResult{
		OrderID:     order.OrderID,
		ApprovalURL: order.ApprovalURL,
		PaymentID:   payment.ID,
	}, nil
}

func settledResult(p *models.Payment) *models.CaptureResult {
	return &models.CaptureResult{
		OrderID:         p.ProviderOrderID,
		PaymentID:       p.ID,
		Status:          p.Status,
		ProviderStatus:  ProviderCompleted,
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		WalletTxID:      p.WalletTxID,
		AlreadyCaptured: true,
	}
}

// CaptureOrder is safe to call any number of times for the same order: the
// wallet is credited at most once.
func (s *paymentService) CaptureOrder(ctx context.Context, orderID, actorID string) (*models.CaptureResult, error) {
	payment, err := s.paymentRepo.GetByProviderOrderID(ctx, orderID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.PaymentNotFound(orderID)
		}
		return nil, apperrors.DatabaseError("getting payment", err)
	}
	if actorID != "" && payment.UserID != actorID {
		return nil, apperrors.PaymentNotFound(orderID)
	}
	if payment.Status == models.PaymentStatusSucceeded {
		metrics.Captures.WithLabelValues("already_captured").Inc()
		return settledResult(payment), nil
	}

	capture, err := s.gateway.CaptureOrder(ctx, orderID)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("capture_order").Inc()
		metrics.Captures.WithLabelValues("provider_error").Inc()
		zap.L().Error("PayPal capture failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, apperrors.ProviderError("capturing order", err)
	}

	if capture.Status != ProviderCompleted {
		metrics.Captures.WithLabelValues("not_completed").Inc()
		zap.L().Info("Capture not completed yet", zap.String("order_id", orderID), zap.String("provider_status", capture.Status))
		return &models.CaptureResult{
			OrderID:        orderID,
			PaymentID:      payment.ID,
			Status:         payment.Status,
			ProviderStatus: capture.Status,
			AmountCents:    payment.AmountCents,
			Currency:       payment.Currency,
		}, nil
	}

	amount := capture.AmountCents
	if amount <= 0 {
		amount = payment.AmountCents
	}
	if capture.Currency != "" && capture.Currency != payment.Currency {
		zap.L().Warn("Captured currency differs from order",
			zap.String("order_id", orderID),
			zap.String("order_currency", payment.Currency),
			zap.String("captured_currency", capture.Currency))
	}

	var (
		result *models.CaptureResult
		topup  *models.WalletTx
	)
	err = s.db.WithTx(database.WithPurpose(ctx, "payment.capture"), func(q database.Querier) error {
		payRepo := s.paymentRepo.WithTx(q)
		locked, err := payRepo.GetByProviderOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return apperrors.DatabaseError("locking payment", err)
		}
		if locked.Status == models.PaymentStatusSucceeded {
			result = settledResult(locked)
			return nil
		}

		existing, err := s.walletRepo.WithTx(q).GetTopupByProviderRef(ctx, ProviderPayPal, orderID)
		if err != nil {
			return apperrors.DatabaseError("checking existing topup", err)
		}
		txID := ""
		if existing != nil {
			zap.L().Warn("Top-up already applied for order, linking it", zap.String("order_id", orderID), zap.String("wallet_tx_id", existing.ID))
			txID = existing.ID
			amount = existing.AmountCents
		} else {
			provider, ref := ProviderPayPal, orderID
			topup, err = s.ledger.apply(ctx, q, walletEntry{
				UserID:      locked.UserID,
				Type:        models.WalletTxTopup,
				AmountCents: amount,
				Provider:    &provider,
				ProviderRef: &ref,
				PaymentID:   &locked.ID,
			})
			if err != nil {
				return err
			}
			txID = topup.ID
		}

		if err := payRepo.MarkSucceeded(ctx, locked.ID, amount, txID, capture.Raw); err != nil {
			return apperrors.DatabaseError("marking payment succeeded", err)
		}
		locked.Status = models.PaymentStatusSucceeded
		locked.AmountCents = amount
		locked.WalletTxID = &txID

		payload := map[string]any{
			"payment_id":   locked.ID,
			"order_id":     orderID,
			"user_id":      locked.UserID,
			"amount_cents": amount,
			"wallet_tx_id": txID,
		}
		if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregatePayment, locked.ID, EventPaymentSucceeded, payload); err != nil {
			return apperrors.DatabaseError("recording payment event", err)
		}

		result = &models.CaptureResult{
			OrderID:        orderID,
			PaymentID:      locked.ID,
			Status:         locked.Status,
			ProviderStatus: capture.Status,
			AmountCents:    amount,
			Currency:       locked.Currency,
			WalletTxID:     locked.WalletTxID,
		}
		return nil
	})
	if err != nil {
		metrics.Captures.WithLabelValues("failed").Inc()
		zap.L().Error("Failed to settle captured order", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}

	if result.AlreadyCaptured {
		metrics.Captures.WithLabelValues("already_captured").Inc()
		return result, nil
	}

	metrics.Captures.WithLabelValues("captured").Inc()
	observeWalletTxs(topup)
	invalidateBalances(ctx, s.cache, payment.UserID)
	zap.L().Info("Top-up captured",
		zap.String("order_id", orderID),
		zap.String("payment_id", result.PaymentID),
		zap.Int64("amount_cents", result.AmountCents))
	return result, nil
}
