package handlers

import (
	"net/http"
)

type WithdrawRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note,omitempty"`
}

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	wallet, err := h.walletService.Get(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, wallet)
}

func (h *Handlers) GetWalletTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	txs, err := h.walletService.Transactions(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, txs)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req WithdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}

	tx, err := h.walletService.Withdraw(r.Context(), userID, req.AmountCents, req.Note)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

func (h *Handlers) AuditWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r)
	if err != nil {
		handleError(w, err)
		return
	}

	audit, err := h.walletService.Audit(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, audit)
}
