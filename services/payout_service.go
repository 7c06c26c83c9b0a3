package services

import (
	"context"
	"fmt"
	"strings"

	"mealshare-backend/calculator"
	"mealshare-backend/database"
	apperrors "mealshare-backend/errors"
	"mealshare-backend/metrics"
	"mealshare-backend/models"
	"mealshare-backend/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayoutSender submits a payout to the external provider.
type PayoutSender interface {
	CreatePayout(ctx context.Context, payout *models.Payout) (*models.ProviderPayout, error)
}

type PayoutService interface {
	RequestPayout(ctx context.Context, req models.PayoutRequest) (*models.Payout, error)
	ConfirmPayout(ctx context.Context, payoutID, actorID string) (*models.Payout, error)
	MarkPaidOutOfBand(ctx context.Context, actorID string, req models.PayoutRequest) (*models.Payout, error)
	ApplyProviderStatus(ctx context.Context, update models.ProviderPayoutUpdate) (*models.Payout, error)
	GetByID(ctx context.Context, payoutID, userID string) (*models.Payout, error)
	ListForUser(ctx context.Context, userID string) ([]models.Payout, error)
}

type payoutService struct {
	payoutRepo repository.PayoutRepository
	userRepo   repository.UserRepository
	outboxRepo repository.OutboxRepository
	ledger     *walletLedger
	sender     PayoutSender
	cache      BalanceCache
	db         database.Transactor
	currency   string
}

func NewPayoutService(
	payoutRepo repository.PayoutRepository,
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	outboxRepo repository.OutboxRepository,
	sender PayoutSender,
	cache BalanceCache,
	db database.Transactor,
	currency string,
) PayoutService {
	return &payoutService{
		payoutRepo: payoutRepo,
		userRepo:   userRepo,
		outboxRepo: outboxRepo,
		ledger:     &walletLedger{walletRepo: walletRepo, outboxRepo: outboxRepo, currency: currency},
		sender:     sender,
		cache:      cache,
		db:         db,
		currency:   currency,
	}
}

// committed holds the side effects to publish once a transaction commits.
type committed struct {
	txs         []*models.WalletTx
	transitions []models.PayoutStatus
	users       []string
}

func (s *payoutService) publish(ctx context.Context, method models.PayoutMethod, c *committed) {
	observeWalletTxs(c.txs...)
	for _, st := range c.transitions {
		metrics.PayoutTransitions.WithLabelValues(string(method), string(st)).Inc()
	}
	if len(c.users) > 0 {
		invalidateBalances(ctx, s.cache, c.users...)
	}
}

func (s *payoutService) validateRequest(ctx context.Context, req *models.PayoutRequest) error {
	if req.AmountCents <= 0 {
		return apperrors.InvalidAmount("Payout amount must be positive.")
	}
	if req.ToUserID == "" && !(req.Method == models.PayoutMethodPayPal && req.ToPayPalEmail != "") {
		return apperrors.MissingRequiredField("to_user_id")
	}
	if req.ToUserID == req.FromUserID {
		return apperrors.SelfTransfer()
	}
	if len(req.Note) > MaxNoteLength {
		return apperrors.InvalidRequest("Note is too long.")
	}
	req.Currency = strings.ToUpper(req.Currency)
	if req.Currency == "" {
		req.Currency = s.currency
	}

	if req.ToUserID != "" {
		to, err := s.userRepo.GetByID(ctx, req.ToUserID)
		if err != nil {
			if apperrors.IsNotFoundError(err) {
				return apperrors.UserNotFound()
			}
			return apperrors.DatabaseError("getting recipient", err)
		}
		if req.Method == models.PayoutMethodPayPal && req.ToPayPalEmail == "" {
			if to.PayPalEmail == nil || *to.PayPalEmail == "" {
				return apperrors.InvalidRequest("The recipient has no PayPal email on file.")
			}
			req.ToPayPalEmail = *to.PayPalEmail
		}
	}
	return nil
}

func newPayout(req models.PayoutRequest, status models.PayoutStatus) *models.Payout {
	p := &models.Payout{
		ID:          uuid.New().String(),
		FromUserID:  req.FromUserID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Method:      req.Method,
		Status:      status,
		Note:        optionalString(req.Note),
	}
	if req.ToUserID != "" {
		to := req.ToUserID
		p.ToUserID = &to
	}
	if req.ToPayPalEmail != "" {
		email := req.ToPayPalEmail
		p.ToPayPalEmail = &email
	}
	return p
}

// RequestPayout starts a transfer from req.FromUserID. Wallet transfers settle
// at once, PayPal transfers debit the wallet and wait for the provider, and
// manual transfers wait for the recipient to confirm.
func (s *payoutService) RequestPayout(ctx context.Context, req models.PayoutRequest) (*models.Payout, error) {
	switch req.Method {
	case models.PayoutMethodCash:
		return s.MarkPaidOutOfBand(ctx, req.FromUserID, req)
	case models.PayoutMethodWallet, models.PayoutMethodPayPal, models.PayoutMethodManual:
	default:
		return nil, apperrors.InvalidFieldFormat("method", "wallet, paypal, manual or cash")
	}
	if err := s.validateRequest(ctx, &req); err != nil {
		return nil, err
	}

	switch req.Method {
	case models.PayoutMethodWallet:
		return s.walletTransfer(ctx, req)
	case models.PayoutMethodPayPal:
		return s.paypalPayout(ctx, req)
	default:
		return s.manualPayout(ctx, req)
	}
}

func (s *payoutService) walletTransfer(ctx context.Context, req models.PayoutRequest) (*models.Payout, error) {
	payout := newPayout(req, models.PayoutStatusProcessing)
	c := &committed{users: []string{req.FromUserID, req.ToUserID}}

	err := s.db.WithTx(database.WithPurpose(ctx, "payout.wallet_transfer"), func(q database.Querier) error {
		txRepo := s.payoutRepo.WithTx(q)
		if err := s.ledger.lock(ctx, q, req.FromUserID, req.ToUserID); err != nil {
			return err
		}
		if err := txRepo.Create(ctx, payout); err != nil {
			return apperrors.DatabaseError("creating payout", err)
		}

		out, err := s.ledger.apply(ctx, q, walletEntry{
			UserID:        req.FromUserID,
			Type:          models.WalletTxPayoutOut,
			AmountCents:   req.AmountCents,
			PayoutID:      &payout.ID,
			RelatedUserID: payout.ToUserID,
			Note:          payout.Note,
		})
		if err != nil {
			return err
		}
		in, err := s.ledger.apply(ctx, q, walletEntry{
			UserID:        req.ToUserID,
			Type:          models.WalletTxPayoutIn,
			AmountCents:   req.AmountCents,
			PayoutID:      &payout.ID,
			RelatedUserID: &payout.FromUserID,
			Note:          payout.Note,
		})
		if err != nil {
			return err
		}
		payout.TxOutID = &out.ID
		payout.TxInID = &in.ID
		c.txs = append(c.txs, out, in)

		if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregatePayout, payout.ID, EventPayoutRequested, payout); err != nil {
			return apperrors.DatabaseError("recording payout event", err)
		}
		return s.transition(ctx, q, payout, models.PayoutStatusSuccess, nil, c)
	})
	if err != nil {
		zap.L().Warn("Wallet transfer rejected",
			zap.String("from_user_id", req.FromUserID),
			zap.String("to_user_id", req.ToUserID),
			zap.Int64("amount_cents", req.AmountCents),
			zap.Error(err))
		return nil, err
	}

	s.publish(ctx, payout.Method, c)
	zap.L().Info("Wallet transfer completed", zap.String("payout_id", payout.ID), zap.Int64("amount_cents", payout.AmountCents))
	return payout, nil
}

func (s *payoutService) paypalPayout(ctx context.Context, req models.PayoutRequest) (*models.Payout, error) {
	payout := newPayout(req, models.PayoutStatusProcessing)
	c := &committed{users: []string{req.FromUserID}}

	err := s.db.WithTx(database.WithPurpose(ctx, "payout.paypal_reserve"), func(q database.Querier) error {
		txRepo := s.payoutRepo.WithTx(q)
		if err := txRepo.Create(ctx, payout); err != nil {
			return apperrors.DatabaseError("creating payout", err)
		}
		out, err := s.ledger.apply(ctx, q, walletEntry{
			UserID:        req.FromUserID,
			Type:          models.WalletTxPayoutOut,
			AmountCents:   req.AmountCents,
			PayoutID:      &payout.ID,
			RelatedUserID: payout.ToUserID,
			Note:          payout.Note,
		})
		if err != nil {
			return err
		}
		payout.TxOutID = &out.ID
		c.txs = append(c.txs, out)
		if err := txRepo.Update(ctx, payout); err != nil {
			return apperrors.DatabaseError("updating payout", err)
		}
		if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregatePayout, payout.ID, EventPayoutRequested, payout); err != nil {
			return apperrors.DatabaseError("recording payout event", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.transitions = append(c.transitions, models.PayoutStatusProcessing)
	s.publish(ctx, payout.Method, c)

	res, sendErr := s.sender.CreatePayout(ctx, payout)
	if sendErr != nil {
		metrics.ProviderErrors.WithLabelValues("create_payout").Inc()
		zap.L().Error("PayPal payout submission failed", zap.String("payout_id", payout.ID), zap.Error(sendErr))

		update := models.ProviderPayoutUpdate{
			PayoutID:     payout.ID,
			Status:       models.PayoutStatusFailed,
			ErrorCode:    "SUBMISSION_FAILED",
			ErrorMessage: sendErr.Error(),
		}
		if _, err := s.ApplyProviderStatus(ctx, update); err != nil {
			zap.L().Error("Failed to reverse unsent payout", zap.String("payout_id", payout.ID), zap.Error(err))
			return nil, err
		}
		return nil, apperrors.ProviderError("creating payout", sendErr)
	}

	err = s.db.WithTx(database.WithPurpose(ctx, "payout.paypal_submitted"), func(q database.Querier) error {
		txRepo := s.payoutRepo.WithTx(q)
		current, err := txRepo.GetByIDForUpdate(ctx, payout.ID)
		if err != nil {
			return apperrors.DatabaseError("locking payout", err)
		}
		current.PayPalBatchID = optionalString(res.BatchID)
		if res.ItemID != "" {
			current.PayPalItemID = optionalString(res.ItemID)
		}
		if err := txRepo.Update(ctx, current); err != nil {
			return apperrors.DatabaseError("updating payout", err)
		}
		payout = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("PayPal payout submitted", zap.String("payout_id", payout.ID), zap.String("batch_id", res.BatchID))
	return payout, nil
}

func (s *payoutService) manualPayout(ctx context.Context, req models.PayoutRequest) (*models.Payout, error) {
	payout := newPayout(req, models.PayoutStatusProcessing)
	err := s.db.WithTx(database.WithPurpose(ctx, "payout.manual"), func(q database.Querier) error {
		if err := s.payoutRepo.WithTx(q).Create(ctx, payout); err != nil {
			return apperrors.DatabaseError("creating payout", err)
		}
		if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregatePayout, payout.ID, EventPayoutRequested, payout); err != nil {
			return apperrors.DatabaseError("recording payout event", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, payout.Method, &committed{transitions: []models.PayoutStatus{models.PayoutStatusProcessing}})
	zap.L().Info("Manual payout recorded", zap.String("payout_id", payout.ID))
	return payout, nil
}

// transition moves p to status "to" and writes the wallet effects of entering
// that state. p is updated in place. Same-state moves do nothing.
func (s *payoutService) transition(ctx context.Context, q database.Querier, p *models.Payout, to models.PayoutStatus, update *models.ProviderPayoutUpdate, c *committed) error {
	changed, err := calculator.PayoutTransition(p.Status, to)
	if err != nil {
		zap.L().Warn("Rejected payout transition",
			zap.String("payout_id", p.ID),
			zap.String("from", string(p.Status)),
			zap.String("to", string(to)))
		return err
	}
	if !changed {
		return nil
	}

	switch to {
	case models.PayoutStatusSuccess:
		if p.Method == models.PayoutMethodWallet && p.TxInID == nil && p.ToUserID != nil {
			in, err := s.ledger.apply(ctx, q, walletEntry{
				UserID:        *p.ToUserID,
				Type:          models.WalletTxPayoutIn,
				AmountCents:   p.AmountCents,
				PayoutID:      &p.ID,
				RelatedUserID: &p.FromUserID,
			})
			if err != nil {
				return err
			}
			p.TxInID = &in.ID
			c.txs = append(c.txs, in)
			c.users = append(c.users, *p.ToUserID)
		}
	case models.PayoutStatusFailed, models.PayoutStatusReturned:
		if p.TxOutID != nil {
			note := fmt.Sprintf("reversal of payout %s (%s)", p.ID, to)
			adj, err := s.ledger.apply(ctx, q, walletEntry{
				UserID:        p.FromUserID,
				Type:          models.WalletTxAdjustment,
				AmountCents:   p.AmountCents,
				PayoutID:      &p.ID,
				RelatedUserID: p.ToUserID,
				Note:          &note,
			})
			if err != nil {
				return err
			}
			c.txs = append(c.txs, adj)
			c.users = append(c.users, p.FromUserID)
		}
	}

	p.Status = to
	if update != nil {
		if update.ItemID != "" {
			p.PayPalItemID = optionalString(update.ItemID)
		}
		if update.TxnID != "" {
			p.PayPalTxnID = optionalString(update.TxnID)
		}
		if update.ErrorCode != "" {
			p.ErrorCode = optionalString(update.ErrorCode)
		}
		if update.ErrorMessage != "" {
			p.ErrorMessage = optionalString(update.ErrorMessage)
		}
	}
	if err := s.payoutRepo.WithTx(q).Update(ctx, p); err != nil {
		return apperrors.DatabaseError("updating payout", err)
	}

	payload := map[string]any{
		"payout_id":    p.ID,
		"status":       p.Status,
		"method":       p.Method,
		"from_user_id": p.FromUserID,
		"to_user_id":   p.ToUserID,
		"amount_cents": p.AmountCents,
	}
	if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregatePayout, p.ID, EventPayoutStatus, payload); err != nil {
		return apperrors.DatabaseError("recording payout event", err)
	}
	c.transitions = append(c.transitions, to)
	return nil
}

func (s *payoutService) lockPayout(ctx context.Context, repo repository.PayoutRepository, payoutID, itemID string) (*models.Payout, error) {
	var (
		p   *models.Payout
		err error
	)
	if payoutID != "" {
		p, err = repo.GetByIDForUpdate(ctx, payoutID)
	} else {
		p, err = repo.GetByPayPalItemIDForUpdate(ctx, itemID)
	}
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.PayoutNotFound()
		}
		return nil, apperrors.DatabaseError("locking payout", err)
	}
	return p, nil
}

// ConfirmPayout lets the recipient acknowledge a manual or unclaimed payout.
func (s *payoutService) ConfirmPayout(ctx context.Context, payoutID, actorID string) (*models.Payout, error) {
	var payout *models.Payout
	c := &committed{}
	err := s.db.WithTx(database.WithPurpose(ctx, "payout.confirm"), func(q database.Querier) error {
		p, err := s.lockPayout(ctx, s.payoutRepo.WithTx(q), payoutID, "")
		if err != nil {
			return err
		}
		if p.RecipientID() != actorID {
			return apperrors.Forbidden("Only the recipient can confirm this payout.")
		}
		payout = p
		if p.Status == models.PayoutStatusSuccess {
			return nil
		}
		if !calculator.CanConfirm(p.Status) {
			return apperrors.InvalidTransition(string(p.Status), string(models.PayoutStatusSuccess))
		}
		return s.transition(ctx, q, p, models.PayoutStatusSuccess, nil, c)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, payout.Method, c)
	zap.L().Info("Payout confirmed", zap.String("payout_id", payoutID), zap.String("actor_id", actorID))
	return payout, nil
}

// MarkPaidOutOfBand records a debt settled outside the system, typically in
// cash. Either party may record it; no wallet moves.
func (s *payoutService) MarkPaidOutOfBand(ctx context.Context, actorID string, req models.PayoutRequest) (*models.Payout, error) {
	if actorID != req.FromUserID && actorID != req.ToUserID {
		return nil, apperrors.Forbidden("Only the debtor or the creditor can record this payment.")
	}
	if req.FromUserID == "" {
		return nil, apperrors.MissingRequiredField("from_user_id")
	}
	req.Method = models.PayoutMethodCash
	req.ToPayPalEmail = ""
	if err := s.validateRequest(ctx, &req); err != nil {
		return nil, err
	}
	if _, err := s.userRepo.GetByID(ctx, req.FromUserID); err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.UserNotFound()
		}
		return nil, apperrors.DatabaseError("getting payer", err)
	}

	payout := newPayout(req, models.PayoutStatusSuccess)
	err := s.db.WithTx(database.WithPurpose(ctx, "payout.out_of_band"), func(q database.Querier) error {
		if err := s.payoutRepo.WithTx(q).Create(ctx, payout); err != nil {
			return apperrors.DatabaseError("creating payout", err)
		}
		if err := recordEvent(ctx, s.outboxRepo.WithTx(q), AggregatePayout, payout.ID, EventPayoutStatus, payout); err != nil {
			return apperrors.DatabaseError("recording payout event", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, payout.Method, &committed{transitions: []models.PayoutStatus{models.PayoutStatusSuccess}})
	zap.L().Info("Out-of-band payment recorded",
		zap.String("payout_id", payout.ID),
		zap.String("actor_id", actorID),
		zap.Int64("amount_cents", payout.AmountCents))
	return payout, nil
}

// ApplyProviderStatus applies a status reported by the provider. The payout is
// found by its own id, or by the provider item id when that is all we have.
func (s *payoutService) ApplyProviderStatus(ctx context.Context, update models.ProviderPayoutUpdate) (*models.Payout, error) {
	if update.PayoutID == "" && update.ItemID == "" {
		return nil, apperrors.MissingRequiredField("payout_id")
	}
	if !calculator.ValidPayoutStatus(update.Status) {
		return nil, apperrors.InvalidFieldFormat("status", "a payout status")
	}

	var payout *models.Payout
	c := &committed{}
	err := s.db.WithTx(database.WithPurpose(ctx, "payout.provider_status"), func(q database.Querier) error {
		p, err := s.lockPayout(ctx, s.payoutRepo.WithTx(q), update.PayoutID, update.ItemID)
		if err != nil {
			return err
		}
		if p.Method != models.PayoutMethodPayPal {
			return apperrors.InvalidRequest("Only PayPal payouts take provider updates.")
		}
		payout = p
		return s.transition(ctx, q, p, update.Status, &update, c)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, payout.Method, c)
	zap.L().Info("Provider payout status applied",
		zap.String("payout_id", payout.ID),
		zap.String("status", string(payout.Status)))
	return payout, nil
}

func (s *payoutService) GetByID(ctx context.Context, payoutID, userID string) (*models.Payout, error) {
	p, err := s.payoutRepo.GetByID(ctx, payoutID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.PayoutNotFound()
		}
		return nil, apperrors.DatabaseError("getting payout", err)
	}
	if p.FromUserID != userID && p.RecipientID() != userID {
		return nil, apperrors.PayoutNotFound()
	}
	return p, nil
}

func (s *payoutService) ListForUser(ctx context.Context, userID string) ([]models.Payout, error) {
	payouts, err := s.payoutRepo.ListForUser(ctx, userID)
	if err != nil {
		zap.L().Error("Failed to list payouts", zap.String("user_id", userID), zap.Error(err))
		return nil, apperrors.DatabaseError("listing payouts", err)
	}
	if payouts == nil {
		payouts = []models.Payout{}
	}
	return payouts, nil
}
