package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "mealshare-backend/errors"
	"mealshare-backend/middleware"
	"mealshare-backend/models"
	"mealshare-backend/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type ErrorResponse struct {
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type Handlers struct {
	expenseService        services.ExpenseService
	reconciliationService services.ReconciliationService
	payoutService         services.PayoutService
	walletService         services.WalletService
	paymentService        services.PaymentService
	webhookService        services.WebhookService
	explanationService    services.ExplanationService
}

func NewHandlers(
	expenseService services.ExpenseService,
	reconciliationService services.ReconciliationService,
	payoutService services.PayoutService,
	walletService services.WalletService,
	paymentService services.PaymentService,
	webhookService services.WebhookService,
	explanationService services.ExplanationService,
) *Handlers {
	return &Handlers{
		expenseService:        expenseService,
		reconciliationService: reconciliationService,
		payoutService:         payoutService,
		walletService:         walletService,
		paymentService:        paymentService,
		webhookService:        webhookService,
		explanationService:    explanationService,
	}
}

// RegisterRoutes mounts the authenticated API. Payment and explanation routes
// are registered separately so they can carry their own rate limits.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/expenses", func(r chi.Router) {
		r.Post("/", h.CreateExpense)
		r.Get("/", h.ListExpenses)
		r.Get("/{expenseID}", h.GetExpense)
		r.Patch("/{expenseID}/status", h.SetExpenseStatus)
		r.Delete("/{expenseID}", h.DeleteExpense)
	})

	r.Route("/balances", func(r chi.Router) {
		r.Get("/nets", h.GetNets)
		r.Get("/settlements", h.GetSettlements)
		r.Get("/settlements/minimal", h.GetSettlementsMinimal)
		r.Get("/reconciled", h.GetReconciled)
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/receivables", h.GetReceivables)
		r.Get("/payable", h.GetPayable)
	})

	r.Route("/payouts", func(r chi.Router) {
		r.Post("/", h.RequestPayout)
		r.Get("/", h.ListPayouts)
		r.Post("/out-of-band", h.MarkPaidOutOfBand)
		r.Get("/{payoutID}", h.GetPayout)
		r.Post("/{payoutID}/confirm", h.ConfirmPayout)
	})

	r.Route("/wallet", func(r chi.Router) {
		r.Get("/", h.GetWallet)
		r.Get("/transactions", h.GetWalletTransactions)
		r.Post("/withdraw", h.Withdraw)
		r.Get("/audit", h.AuditWallet)
	})
}

func (h *Handlers) RegisterPaymentRoutes(r chi.Router) {
	r.Route("/payments/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Post("/{orderID}/capture", h.CaptureOrder)
	})
}

func (h *Handlers) RegisterExplanationRoutes(r chi.Router) {
	r.Post("/explain/debt", h.ExplainDebt)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("Failed to encode JSON response", zap.Error(err))
	}
}

func handleError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	if appErr, ok := apperrors.AsAppError(err); ok {
		status := apperrors.GetHTTPStatus(appErr.Type)

		switch {
		case appErr.Code == apperrors.CodeConsistencyViolation:
			zap.L().Error("Wallet ledger inconsistent",
				zap.String("code", string(appErr.Code)),
				zap.String("details", appErr.Details))
		case appErr.Code == apperrors.CodeInvalidTransition, appErr.Code == apperrors.CodeTransitionOutOfOrder:
			zap.L().Warn("Rejected state transition",
				zap.String("code", string(appErr.Code)),
				zap.String("message", appErr.Message))
		case status >= 500:
			zap.L().Error("App Error (Internal)",
				zap.String("code", string(appErr.Code)),
				zap.Error(appErr.Err))
		default:
			zap.L().Debug("App Error (Client)",
				zap.String("code", string(appErr.Code)),
				zap.String("message", appErr.Message))
		}

		respondJSON(w, status, ErrorResponse{
			Error:     appErr.Message,
			Code:      string(appErr.Code),
			Details:   appErr.Details,
			Retryable: appErr.Retryable,
		})
		return
	}

	zap.L().Error("Non-AppError returned (bug)",
		zap.Error(err),
		zap.String("error_type", fmt.Sprintf("%T", err)))

	respondJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "An unexpected error occurred. Please try again later.",
		Code:  string(apperrors.CodeInternalError),
	})
}

func getUserID(r *http.Request) (string, error) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		return "", apperrors.Unauthorized("User ID not found in authentication context")
	}
	return userID, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.InvalidRequest("Invalid request body. Please provide valid JSON.")
	}
	return nil
}

// uuidParam reads a chi path parameter that must be a UUID.
func uuidParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if v == "" {
		return "", apperrors.MissingRequiredField(name)
	}
	if _, err := uuid.Parse(v); err != nil {
		return "", apperrors.InvalidUUID(name)
	}
	return v, nil
}

func parseDate(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, apperrors.InvalidFieldFormat(field, "YYYY-MM-DD")
	}
	return &t, nil
}

// parseDateRange reads the optional from/to query parameters.
func parseDateRange(r *http.Request) (models.DateRange, error) {
	q := r.URL.Query()
	from, err := parseDate("from", q.Get("from"))
	if err != nil {
		return models.DateRange{}, err
	}
	to, err := parseDate("to", q.Get("to"))
	if err != nil {
		return models.DateRange{}, err
	}
	return models.DateRange{From: from, To: to}, nil
}
