package handlers

import (
	"io"
	"net/http"

	apperrors "mealshare-backend/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxWebhookBody caps what is read from a provider notification.
const maxWebhookBody = 1 << 20

type CreateOrderRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}

	order, err := h.paymentService.CreateOrder(r.Context(), userID, req.AmountCents, req.Currency)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

// CaptureOrder is hit when the payer returns from the approval page.
func (h *Handlers) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		handleError(w, apperrors.MissingRequiredField("orderID"))
		return
	}

	result, err := h.paymentService.CaptureOrder(r.Context(), orderID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// PayPalWebhook is mounted outside /api; the signature check replaces auth.
func (h *Handlers) PayPalWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		handleError(w, apperrors.InvalidRequest("Could not read webhook body."))
		return
	}

	if err := h.webhookService.HandlePayPal(r.Context(), r.Header, body); err != nil {
		zap.L().Warn("PayPal webhook not acknowledged", zap.Error(err))
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
