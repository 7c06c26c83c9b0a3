package handlers

import (
	"net/http"

	apperrors "mealshare-backend/errors"
	"mealshare-backend/models"

	"github.com/google/uuid"
)

// PayoutRequest moves money from the caller to another user. amount_cents is
// an integer number of cents.
type PayoutRequest struct {
	FromUserID    string              `json:"from_user_id,omitempty"`
	ToUserID      string              `json:"to_user_id,omitempty"`
	ToPayPalEmail string              `json:"to_paypal_email,omitempty"`
	AmountCents   int64               `json:"amount_cents"`
	Currency      string              `json:"currency,omitempty"`
	Method        models.PayoutMethod `json:"method"`
	Note          string              `json:"note,omitempty"`
}

func (req PayoutRequest) toModel(fromUserID string) (models.PayoutRequest, error) {
	if req.ToUserID != "" {
		if _, err := uuid.Parse(req.ToUserID); err != nil {
			return models.PayoutRequest{}, apperrors.InvalidUUID("to_user_id")
		}
	}
	return models.PayoutRequest{
		FromUserID:    fromUserID,
		ToUserID:      req.ToUserID,
		ToPayPalEmail: req.ToPayPalEmail,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Method:        req.Method,
		Note:          req.Note,
	}, nil
}

func (h *Handlers) RequestPayout(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req PayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}
	in, err := req.toModel(userID)
	if err != nil {
		handleError(w, err)
		return
	}

	payout, err := h.payoutService.RequestPayout(r.Context(), in)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, payout)
}

// MarkPaidOutOfBand records a debt settled outside the app. Either party may
// record it; from_user_id defaults to the caller.
func (h *Handlers) MarkPaidOutOfBand(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req PayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}
	from := userID
	if req.FromUserID != "" {
		if _, err := uuid.Parse(req.FromUserID); err != nil {
			handleError(w, apperrors.InvalidUUID("from_user_id"))
			return
		}
		from = req.FromUserID
	}
	in, err := req.toModel(from)
	if err != nil {
		handleError(w, err)
		return
	}

	payout, err := h.payoutService.MarkPaidOutOfBand(r.Context(), userID, in)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, payout)
}

func (h *Handlers) ConfirmPayout(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	payoutID, err := uuidParam(r, "payoutID")
	if err != nil {
		handleError(w, err)
		return
	}

	payout, err := h.payoutService.ConfirmPayout(r.Context(), payoutID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payout)
}

func (h *Handlers) GetPayout(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	payoutID, err := uuidParam(r, "payoutID")
	if err != nil {
		handleError(w, err)
		return
	}

	payout, err := h.payoutService.GetByID(r.Context(), payoutID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payout)
}

func (h *Handlers) ListPayouts(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	payouts, err := h.payoutService.ListForUser(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payouts)
}
