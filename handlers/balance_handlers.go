package handlers

import (
	"net/http"
)

func (h *Handlers) GetNets(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserID(r); err != nil {
		handleError(w, err)
		return
	}

	dr, err := parseDateRange(r)
	if err != nil {
		handleError(w, err)
		return
	}

	nets, err := h.reconciliationService.Nets(r.Context(), dr)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, nets)
}

func (h *Handlers) GetSettlements(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserID(r); err != nil {
		handleError(w, err)
		return
	}

	dr, err := parseDateRange(r)
	if err != nil {
		handleError(w, err)
		return
	}

	rows, err := h.reconciliationService.Settlements(r.Context(), dr)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rows)
}

func (h *Handlers) GetSettlementsMinimal(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserID(r); err != nil {
		handleError(w, err)
		return
	}

	rows, err := h.reconciliationService.SettlementsMinimal(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rows)
}

func (h *Handlers) GetReconciled(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserID(r); err != nil {
		handleError(w, err)
		return
	}

	rec, err := h.reconciliationService.Reconciled(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (h *Handlers) GetReceivables(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserID(r); err != nil {
		handleError(w, err)
		return
	}

	userID, err := uuidParam(r, "userID")
	if err != nil {
		handleError(w, err)
		return
	}

	rows, err := h.reconciliationService.Receivables(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rows)
}

func (h *Handlers) GetPayable(w http.ResponseWriter, r *http.Request) {
	if _, err := getUserID(r); err != nil {
		handleError(w, err)
		return
	}

	userID, err := uuidParam(r, "userID")
	if err != nil {
		handleError(w, err)
		return
	}

	rows, err := h.reconciliationService.Payable(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rows)
}
