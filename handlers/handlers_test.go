package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "mealshare-backend/errors"
	"mealshare-backend/middleware"
	"mealshare-backend/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceID = "5f0c1f1e-3b0a-4d7e-9a55-0a4f3c1e2b01"
	bobID   = "8a2d6c3b-1e4f-4b6a-8c9d-2e7f1a3b4c02"
	itemID  = "c3d4e5f6-a7b8-4c9d-8e0f-1a2b3c4d5e06"
)

type stubExpenses struct {
	created models.NewExpense
	actor   string
	status  models.ExpenseStatus
	r       models.DateRange
	err     error
}

func (s *stubExpenses) Create(ctx context.Context, actorID string, in models.NewExpense) (*models.Expense, error) {
	s.actor, s.created = actorID, in
	if s.err != nil {
		return nil, s.err
	}
	return &models.Expense{ID: itemID, PayerID: actorID, Amount: in.Amount, Shares: in.Shares}, nil
}

func (s *stubExpenses) List(ctx context.Context, r models.DateRange, includeVoid bool) ([]models.Expense, error) {
	s.r = r
	return []models.Expense{}, s.err
}

func (s *stubExpenses) GetByID(ctx context.Context, id string) (*models.Expense, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Expense{ID: id}, nil
}

func (s *stubExpenses) SetStatus(ctx context.Context, id, actorID string, status models.ExpenseStatus) (*models.Expense, error) {
	s.actor, s.status = actorID, status
	if s.err != nil {
		return nil, s.err
	}
	return &models.Expense{ID: id, Status: status}, nil
}

func (s *stubExpenses) Delete(ctx context.Context, id, actorID string) error {
	s.actor = actorID
	return s.err
}

type stubReconciliation struct {
	userID string
	rows   []models.ReceivableRow
	err    error
}

func (s *stubReconciliation) Nets(ctx context.Context, r models.DateRange) ([]models.NetBalance, error) {
	return []models.NetBalance{}, s.err
}

func (s *stubReconciliation) Settlements(ctx context.Context, r models.DateRange) ([]models.ReceivableRow, error) {
	return s.rows, s.err
}

func (s *stubReconciliation) SettlementsMinimal(ctx context.Context) ([]models.ReceivableRow, error) {
	return s.rows, s.err
}

func (s *stubReconciliation) Reconciled(ctx context.Context) (*models.Reconciliation, error) {
	return &models.Reconciliation{}, s.err
}

func (s *stubReconciliation) Receivables(ctx context.Context, userID string) ([]models.ReceivableRow, error) {
	s.userID = userID
	return s.rows, s.err
}

func (s *stubReconciliation) Payable(ctx context.Context, userID string) ([]models.ReceivableRow, error) {
	s.userID = userID
	return s.rows, s.err
}

type stubPayouts struct {
	req   models.PayoutRequest
	actor string
	err   error
}

func (s *stubPayouts) RequestPayout(ctx context.Context, req models.PayoutRequest) (*models.Payout, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payout{ID: itemID, FromUserID: req.FromUserID, Status: models.PayoutStatusProcessing}, nil
}

func (s *stubPayouts) ConfirmPayout(ctx context.Context, payoutID, actorID string) (*models.Payout, error) {
	s.actor = actorID
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payout{ID: payoutID, Status: models.PayoutStatusSuccess}, nil
}

func (s *stubPayouts) MarkPaidOutOfBand(ctx context.Context, actorID string, req models.PayoutRequest) (*models.Payout, error) {
	s.actor, s.req = actorID, req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payout{ID: itemID, Method: models.PayoutMethodCash, Status: models.PayoutStatusSuccess}, nil
}

func (s *stubPayouts) ApplyProviderStatus(ctx context.Context, update models.ProviderPayoutUpdate) (*models.Payout, error) {
	return nil, s.err
}

func (s *stubPayouts) GetByID(ctx context.Context, payoutID, userID string) (*models.Payout, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payout{ID: payoutID}, nil
}

func (s *stubPayouts) ListForUser(ctx context.Context, userID string) ([]models.Payout, error) {
	return []models.Payout{}, s.err
}

type stubWallet struct {
	withdrawn int64
	err       error
}

func (s *stubWallet) Get(ctx context.Context, userID string) (*models.WalletSummary, error) {
	return &models.WalletSummary{Account: models.WalletAccount{UserID: userID, BalanceCents: 600}}, s.err
}

func (s *stubWallet) Transactions(ctx context.Context, userID string) ([]models.WalletTx, error) {
	return []models.WalletTx{}, s.err
}

func (s *stubWallet) Withdraw(ctx context.Context, userID string, amountCents int64, note string) (*models.WalletTx, error) {
	s.withdrawn = amountCents
	if s.err != nil {
		return nil, s.err
	}
	return &models.WalletTx{UserID: userID, Type: models.WalletTxWithdraw, AmountCents: amountCents}, nil
}

func (s *stubWallet) Audit(ctx context.Context, userID string) (*models.WalletAudit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.WalletAudit{UserID: userID, Consistent: true}, nil
}

type stubPayments struct {
	orderID, actor string
	err            error
}

func (s *stubPayments) CreateOrder(ctx context.Context, userID string, amountCents int64, currency string) (*models.OrderResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.OrderResult{OrderID: "ORDER-1", ApprovalURL: "https://paypal.example/approve"}, nil
}

func (s *stubPayments) CaptureOrder(ctx context.Context, orderID, actorID string) (*models.CaptureResult, error) {
	s.orderID, s.actor = orderID, actorID
	if s.err != nil {
		return nil, s.err
	}
	return &models.CaptureResult{OrderID: orderID, Status: models.PaymentStatusSucceeded}, nil
}

type stubWebhooks struct {
	body []byte
	err  error
}

func (s *stubWebhooks) HandlePayPal(ctx context.Context, headers http.Header, body []byte) error {
	s.body = body
	return s.err
}

type stubs struct {
	expenses       *stubExpenses
	reconciliation *stubReconciliation
	payouts        *stubPayouts
	wallet         *stubWallet
	payments       *stubPayments
	webhooks       *stubWebhooks
}

func newRouter() (http.Handler, *stubs) {
	s := &stubs{
		expenses:       &stubExpenses{},
		reconciliation: &stubReconciliation{rows: []models.ReceivableRow{}},
		payouts:        &stubPayouts{},
		wallet:         &stubWallet{},
		payments:       &stubPayments{},
		webhooks:       &stubWebhooks{},
	}
	h := NewHandlers(s.expenses, s.reconciliation, s.payouts, s.wallet, s.payments, s.webhooks, nil)

	r := chi.NewRouter()
	r.Post("/webhooks/paypal", h.PayPalWebhook)
	r.Route("/api", func(r chi.Router) {
		h.RegisterRoutes(r)
		h.RegisterPaymentRoutes(r)
		h.RegisterExplanationRoutes(r)
	})
	return r, s
}

func do(t *testing.T, router http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      apperrors.ErrorCode
		wantRetryable bool
	}{
		{name: "validation", err: apperrors.InvalidAmount("bad"), wantStatus: http.StatusBadRequest, wantCode: apperrors.CodeInvalidAmount},
		{name: "insufficient funds", err: apperrors.InsufficientFunds(100, 400), wantStatus: http.StatusUnprocessableEntity, wantCode: apperrors.CodeInsufficientFunds},
		{name: "invalid transition", err: apperrors.InvalidTransition("success", "failed"), wantStatus: http.StatusConflict, wantCode: apperrors.CodeInvalidTransition},
		{name: "transition out of order", err: apperrors.TransitionOutOfOrder("processing", "returned"), wantStatus: http.StatusConflict, wantCode: apperrors.CodeTransitionOutOfOrder, wantRetryable: true},
		{name: "provider", err: apperrors.ProviderError("capturing order", errors.New("503")), wantStatus: http.StatusServiceUnavailable, wantCode: apperrors.CodeProviderError, wantRetryable: true},
		{name: "consistency", err: apperrors.ConsistencyViolation(aliceID, 600, 500), wantStatus: http.StatusInternalServerError, wantCode: apperrors.CodeConsistencyViolation},
		{name: "plain error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: apperrors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, string(tt.wantCode), resp.Code)
			assert.Equal(t, tt.wantRetryable, resp.Retryable)
		})
	}
}

func TestCreateExpenseHandler(t *testing.T) {
	router, s := newRouter()

	body := `{"amount":3000,"description":"Dinner","occurred_on":"2026-05-01","participants":["` + bobID + `"],"include_payer":true}`
	rec := do(t, router, http.MethodPost, "/api/expenses", aliceID, body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, aliceID, s.expenses.actor)
	assert.Equal(t, int64(3000), s.expenses.created.Amount)
	assert.Equal(t, "2026-05-01", s.expenses.created.OccurredOn.Format(dateLayout))
	assert.True(t, s.expenses.created.IncludePayer)
}

func TestCreateExpenseHandlerRejects(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		body     string
		status   int
		wantCode apperrors.ErrorCode
	}{
		{name: "unauthenticated", body: `{}`, status: http.StatusUnauthorized, wantCode: apperrors.CodeUnauthorized},
		{name: "malformed json", userID: aliceID, body: `{"amount":`, status: http.StatusBadRequest, wantCode: apperrors.CodeInvalidRequest},
		{name: "bad date", userID: aliceID, body: `{"amount":1,"description":"x","occurred_on":"01/05/2026"}`, status: http.StatusBadRequest, wantCode: apperrors.CodeInvalidFieldFormat},
		{name: "bad participant id", userID: aliceID, body: `{"amount":1,"description":"x","participants":["bob"]}`, status: http.StatusBadRequest, wantCode: apperrors.CodeInvalidUUID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newRouter()
			rec := do(t, router, http.MethodPost, "/api/expenses", tt.userID, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeError(t, rec).Code)
		})
	}
}

func TestExpenseRoutes(t *testing.T) {
	router, s := newRouter()

	rec := do(t, router, http.MethodGet, "/api/expenses?from=2026-01-01&to=2026-01-31", aliceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.expenses.r.From)
	assert.Equal(t, "2026-01-31", s.expenses.r.To.Format(dateLayout))

	rec = do(t, router, http.MethodPatch, "/api/expenses/"+itemID+"/status", aliceID, `{"status":"locked"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ExpenseStatusLocked, s.expenses.status)

	rec = do(t, router, http.MethodDelete, "/api/expenses/"+itemID, aliceID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/expenses/not-a-uuid", aliceID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.expenses.err = apperrors.ExpenseNotOpen("locked")
	rec = do(t, router, http.MethodDelete, "/api/expenses/"+itemID, aliceID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBalanceRoutes(t *testing.T) {
	router, s := newRouter()

	for _, path := range []string{
		"/api/balances/nets", "/api/balances/settlements?from=2026-01-01",
		"/api/balances/settlements/minimal", "/api/balances/reconciled",
	} {
		rec := do(t, router, http.MethodGet, path, aliceID, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := do(t, router, http.MethodGet, "/api/users/"+bobID+"/payable", aliceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bobID, s.reconciliation.userID)

	rec = do(t, router, http.MethodGet, "/api/balances/nets?from=2026-02-01&to=2026-01-01", aliceID, "")
	assert.Equal(t, http.StatusOK, rec.Code, "range order is checked by the service")

	rec = do(t, router, http.MethodGet, "/api/balances/nets?from=yesterday", aliceID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// explanations are disabled without a generator
	rec = do(t, router, http.MethodPost, "/api/explain/debt", aliceID, `{"counterparty_id":"`+bobID+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPayoutRoutes(t *testing.T) {
	router, s := newRouter()

	rec := do(t, router, http.MethodPost, "/api/payouts", bobID, `{"to_user_id":"`+aliceID+`","amount_cents":400,"method":"wallet"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, bobID, s.payouts.req.FromUserID)
	assert.Equal(t, aliceID, s.payouts.req.ToUserID)
	assert.Equal(t, models.PayoutMethodWallet, s.payouts.req.Method)

	rec = do(t, router, http.MethodPost, "/api/payouts/out-of-band", aliceID, `{"from_user_id":"`+bobID+`","to_user_id":"`+aliceID+`","amount_cents":400}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, aliceID, s.payouts.actor)
	assert.Equal(t, bobID, s.payouts.req.FromUserID)

	rec = do(t, router, http.MethodPost, "/api/payouts/"+itemID+"/confirm", aliceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, aliceID, s.payouts.actor)

	s.payouts.err = apperrors.InsufficientFunds(100, 400)
	rec = do(t, router, http.MethodPost, "/api/payouts", bobID, `{"to_user_id":"`+aliceID+`","amount_cents":400,"method":"wallet"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWalletRoutes(t *testing.T) {
	router, s := newRouter()

	rec := do(t, router, http.MethodGet, "/api/wallet", aliceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.WalletSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(600), summary.Account.BalanceCents)

	rec = do(t, router, http.MethodPost, "/api/wallet/withdraw", aliceID, `{"amount_cents":250}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(250), s.wallet.withdrawn)

	s.wallet.err = apperrors.ConsistencyViolation(aliceID, 600, 500)
	rec = do(t, router, http.MethodGet, "/api/wallet/audit", aliceID, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(apperrors.CodeConsistencyViolation), decodeError(t, rec).Code)
}

func TestPaymentRoutes(t *testing.T) {
	router, s := newRouter()

	rec := do(t, router, http.MethodPost, "/api/payments/orders", aliceID, `{"amount_cents":2500}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/payments/orders/ORDER-1/capture", aliceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ORDER-1", s.payments.orderID)
	assert.Equal(t, aliceID, s.payments.actor)

	s.payments.err = apperrors.ProviderError("capturing order", errors.New("timeout"))
	rec = do(t, router, http.MethodPost, "/api/payments/orders/ORDER-1/capture", aliceID, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, decodeError(t, rec).Retryable)
}

func TestPayPalWebhookHandler(t *testing.T) {
	router, s := newRouter()

	body := `{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`
	rec := do(t, router, http.MethodPost, "/webhooks/paypal", "", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, string(s.webhooks.body))

	s.webhooks.err = apperrors.Unauthorized("Webhook signature verification failed.")
	rec = do(t, router, http.MethodPost, "/webhooks/paypal", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
