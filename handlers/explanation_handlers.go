package handlers

import (
	"net/http"

	apperrors "mealshare-backend/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (h *Handlers) ExplainDebt(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req struct {
		CounterpartyID string `json:"counterparty_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}

	if req.CounterpartyID == "" {
		handleError(w, apperrors.MissingRequiredField("counterparty_id"))
		return
	}
	if _, err := uuid.Parse(req.CounterpartyID); err != nil {
		handleError(w, apperrors.InvalidUUID("counterparty_id"))
		return
	}
	if h.explanationService == nil {
		handleError(w, apperrors.AIServiceError(nil))
		return
	}

	zap.L().Debug("Debt explanation requested",
		zap.String("user_id", userID),
		zap.String("counterparty_id", req.CounterpartyID))
	explanation, err := h.explanationService.ExplainDebt(r.Context(), userID, req.CounterpartyID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, explanation)
}
