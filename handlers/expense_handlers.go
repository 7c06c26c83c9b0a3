package handlers

import (
	"net/http"
	"strconv"

	apperrors "mealshare-backend/errors"
	"mealshare-backend/models"

	"github.com/google/uuid"
)

type ShareRequest struct {
	UserID      string `json:"user_id"`
	ShareAmount int64  `json:"share_amount"`
}

// CreateExpenseRequest carries amounts in cents. Exactly one of
// participant_shares, participants or event_id decides who owes what.
type CreateExpenseRequest struct {
	PayerID      string         `json:"payer_id,omitempty"`
	Amount       int64          `json:"amount"`
	Currency     string         `json:"currency,omitempty"`
	Description  string         `json:"description"`
	OccurredOn   string         `json:"occurred_on,omitempty"`
	Notes        *string        `json:"notes,omitempty"`
	EventID      *string        `json:"event_id,omitempty"`
	Shares       []ShareRequest `json:"participant_shares,omitempty"`
	Participants []string       `json:"participants,omitempty"`
	IncludePayer bool           `json:"include_payer"`
}

type SetExpenseStatusRequest struct {
	Status models.ExpenseStatus `json:"status"`
}

func (req CreateExpenseRequest) toModel() (models.NewExpense, error) {
	in := models.NewExpense{
		PayerID:      req.PayerID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Description:  req.Description,
		Notes:        req.Notes,
		EventID:      req.EventID,
		Participants: req.Participants,
		IncludePayer: req.IncludePayer,
	}
	if req.PayerID != "" {
		if _, err := uuid.Parse(req.PayerID); err != nil {
			return in, apperrors.InvalidUUID("payer_id")
		}
	}
	if req.EventID != nil {
		if _, err := uuid.Parse(*req.EventID); err != nil {
			return in, apperrors.InvalidUUID("event_id")
		}
	}
	for _, id := range req.Participants {
		if _, err := uuid.Parse(id); err != nil {
			return in, apperrors.InvalidUUID("participants")
		}
	}
	for _, sh := range req.Shares {
		if _, err := uuid.Parse(sh.UserID); err != nil {
			return in, apperrors.InvalidUUID("participant_shares.user_id")
		}
		in.Shares = append(in.Shares, models.ParticipantShare{UserID: sh.UserID, ShareAmount: sh.ShareAmount})
	}
	occurredOn, err := parseDate("occurred_on", req.OccurredOn)
	if err != nil {
		return in, err
	}
	if occurredOn != nil {
		in.OccurredOn = *occurredOn
	}
	return in, nil
}

func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req CreateExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}
	in, err := req.toModel()
	if err != nil {
		handleError(w, err)
		return
	}

	expense, err := h.expenseService.Create(r.Context(), userID, in)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, expense)
}

func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserID(r); err != nil {
		handleError(w, err)
		return
	}

	dr, err := parseDateRange(r)
	if err != nil {
		handleError(w, err)
		return
	}
	includeVoid, _ := strconv.ParseBool(r.URL.Query().Get("include_void"))

	expenses, err := h.expenseService.List(r.Context(), dr, includeVoid)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, expenses)
}

func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserID(r); err != nil {
		handleError(w, err)
		return
	}

	expenseID, err := uuidParam(r, "expenseID")
	if err != nil {
		handleError(w, err)
		return
	}

	expense, err := h.expenseService.GetByID(r.Context(), expenseID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, expense)
}

func (h *Handlers) SetExpenseStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	expenseID, err := uuidParam(r, "expenseID")
	if err != nil {
		handleError(w, err)
		return
	}

	var req SetExpenseStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}

	expense, err := h.expenseService.SetStatus(r.Context(), expenseID, userID, req.Status)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, expense)
}

func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	expenseID, err := uuidParam(r, "expenseID")
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.expenseService.Delete(r.Context(), expenseID, userID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
