package calculator

import (
	"sort"

	"mealshare-backend/models"
)

type party struct {
	userID string
	amount int64
}

// Resolve turns net balances into debtor->creditor transfers. The largest
// debtor is matched with the largest creditor until one side runs out; ties
// are broken by user id so the output is reproducible.
//
// Amounts are cents, so half a cent of tolerance means any non-zero value
// takes part.
func Resolve(nets []models.NetBalance) []models.SettlementEdge {
	var creditors, debtors []party
	for _, nb := range nets {
		switch {
		case nb.Net > 0:
			creditors = append(creditors, party{userID: nb.UserID, amount: nb.Net})
		case nb.Net < 0:
			debtors = append(debtors, party{userID: nb.UserID, amount: -nb.Net})
		}
	}
	sortParties(creditors)
	sortParties(debtors)

	edges := make([]models.SettlementEdge, 0, len(debtors))
	ci, di := 0, 0
	for ci < len(creditors) && di < len(debtors) {
		c, d := &creditors[ci], &debtors[di]
		transfer := min(c.amount, d.amount)
		edges = append(edges, models.SettlementEdge{
			FromUserID: d.userID,
			ToUserID:   c.userID,
			Amount:     transfer,
		})
		c.amount -= transfer
		d.amount -= transfer
		if c.amount <= 0 {
			ci++
		}
		if d.amount <= 0 {
			di++
		}
	}
	return edges
}

func sortParties(ps []party) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].amount != ps[j].amount {
			return ps[i].amount > ps[j].amount
		}
		return ps[i].userID < ps[j].userID
	})
}

// ApplyEdges returns the nets left over after every edge is paid.
func ApplyEdges(nets []models.NetBalance, edges []models.SettlementEdge) map[string]int64 {
	left := make(map[string]int64, len(nets))
	for _, nb := range nets {
		left[nb.UserID] = nb.Net
	}
	for _, e := range edges {
		left[e.FromUserID] += e.Amount
		left[e.ToUserID] -= e.Amount
	}
	return left
}
