// Package calculator holds the pure ledger arithmetic: net balances, the
// settlement resolver, reconciliation against payouts and wallets, equal
// splits and the payout state machine. Nothing here touches storage.
package calculator

import (
	"sort"

	apperrors "mealshare-backend/errors"
	"mealshare-backend/models"
)

const dateLayout = "2006-01-02"

// ValidateRange fails when the range ends before it starts.
func ValidateRange(r models.DateRange) error {
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return apperrors.InvalidRange(r.From.Format(dateLayout), r.To.Format(dateLayout))
	}
	return nil
}

// ComputeNets aggregates paid and owed per user over non-void expenses whose
// occurred_on falls in r. Every id in users is reported even without activity.
func ComputeNets(users []string, expenses []models.Expense, r models.DateRange) ([]models.NetBalance, error) {
	if err := ValidateRange(r); err != nil {
		return nil, err
	}

	byUser := make(map[string]*models.NetBalance, len(users))
	get := func(userID string) *models.NetBalance {
		nb, ok := byUser[userID]
		if !ok {
			nb = &models.NetBalance{UserID: userID}
			byUser[userID] = nb
		}
		return nb
	}
	for _, u := range users {
		get(u)
	}

	for _, e := range expenses {
		if e.Status == models.ExpenseStatusVoid || !r.Contains(e.OccurredOn) {
			continue
		}
		get(e.PayerID).Paid += e.Amount
		for _, sh := range e.Shares {
			get(sh.UserID).Owed += sh.ShareAmount
		}
	}

	nets := make([]models.NetBalance, 0, len(byUser))
	for _, nb := range byUser {
		nb.Net = nb.Paid - nb.Owed
		nets = append(nets, *nb)
	}
	sort.Slice(nets, func(i, j int) bool { return nets[i].UserID < nets[j].UserID })
	return nets, nil
}
