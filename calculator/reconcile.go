package calculator

import (
	"sort"

	"mealshare-backend/models"
)

// MatchTolerance is how far apart, in cents, a delivered payout and an edge
// may be and still count as the same debt.
const MatchTolerance int64 = 1

type pair struct {
	from, to string
}

type payoutTotals struct {
	// counted reduces what the debtor still has to pay: processing and success.
	counted map[pair]int64
	// delivered is what reached the creditor: success only.
	delivered map[pair]int64
	// inFlight is money on its way: processing and unclaimed.
	inFlight  map[pair]int64
	successes map[pair][]int64
}

// ReducesDebt reports whether a payout in this status lowers the payable
// residual. Unclaimed funds can still come back, so they do not.
func ReducesDebt(s models.PayoutStatus) bool {
	return s == models.PayoutStatusProcessing || s == models.PayoutStatusSuccess
}

func totalPayouts(payouts []models.Payout) payoutTotals {
	t := payoutTotals{
		counted:   make(map[pair]int64),
		delivered: make(map[pair]int64),
		inFlight:  make(map[pair]int64),
		successes: make(map[pair][]int64),
	}
	for _, p := range payouts {
		if p.ToUserID == nil {
			continue
		}
		k := pair{from: p.FromUserID, to: *p.ToUserID}
		if ReducesDebt(p.Status) {
			t.counted[k] += p.AmountCents
		}
		switch p.Status {
		case models.PayoutStatusSuccess:
			t.delivered[k] += p.AmountCents
			t.successes[k] = append(t.successes[k], p.AmountCents)
		case models.PayoutStatusProcessing, models.PayoutStatusUnclaimed:
			t.inFlight[k] += p.AmountCents
		}
	}
	return t
}

func sortEdges(edges []models.SettlementEdge) []models.SettlementEdge {
	sorted := make([]models.SettlementEdge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FromUserID != sorted[j].FromUserID {
			return sorted[i].FromUserID < sorted[j].FromUserID
		}
		return sorted[i].ToUserID < sorted[j].ToUserID
	})
	return sorted
}

// debtorRows applies the debtor's wallet and then payouts to every edge.
// Edges are walked by debtor, then creditor id; each debtor's wallet is a
// running balance so one cent of wallet covers at most one cent of debt.
// The wallet split depends on gross amounts only, so a payout on one pair
// leaves every other pair's residual untouched.
func debtorRows(edges []models.SettlementEdge, payouts []models.Payout, wallets map[string]int64) []models.ReceivableRow {
	totals := totalPayouts(payouts)
	walletLeft := make(map[string]int64, len(wallets))
	for userID, bal := range wallets {
		walletLeft[userID] = max(0, bal)
	}

	sorted := sortEdges(edges)
	rows := make([]models.ReceivableRow, 0, len(sorted))
	for _, e := range sorted {
		k := pair{from: e.FromUserID, to: e.ToUserID}
		offset := min(e.Amount, walletLeft[e.FromUserID])
		walletLeft[e.FromUserID] -= offset

		owed := e.Amount - offset
		paid := min(owed, totals.counted[k])

		rows = append(rows, models.ReceivableRow{
			FromUserID:   e.FromUserID,
			ToUserID:     e.ToUserID,
			Gross:        e.Amount,
			Paid:         paid,
			InFlight:     totals.inFlight[k],
			WalletOffset: offset,
			Residual:     owed - paid,
		})
	}
	return rows
}

// Reconcile annotates every edge with payouts and wallet offsets and derives
// per-user positions from the result. Zero rows are kept. The output depends
// only on its inputs.
func Reconcile(edges []models.SettlementEdge, payouts []models.Payout, wallets map[string]int64) models.Reconciliation {
	rows := debtorRows(edges, payouts, wallets)

	byUser := make(map[string]*models.ReconciledNet)
	get := func(userID string) *models.ReconciledNet {
		n, ok := byUser[userID]
		if !ok {
			n = &models.ReconciledNet{UserID: userID}
			byUser[userID] = n
		}
		return n
	}
	for _, r := range rows {
		debtor, creditor := get(r.FromUserID), get(r.ToUserID)
		debtor.Net -= r.Gross
		creditor.Net += r.Gross
		debtor.Settled += r.Paid
		creditor.Settled -= r.Paid
		debtor.WalletOffset += r.WalletOffset
		debtor.ResidualNet -= r.Residual
		creditor.ResidualNet += r.Residual
	}

	nets := make([]models.ReconciledNet, 0, len(byUser))
	for _, n := range byUser {
		nets = append(nets, *n)
	}
	sort.Slice(nets, func(i, j int) bool { return nets[i].UserID < nets[j].UserID })

	return models.Reconciliation{Nets: nets, Edges: rows}
}

// PayableFor is the debtor view: what debtorID still owes each creditor after
// processing/successful payouts and the wallet offset. Covered rows are dropped.
func PayableFor(debtorID string, edges []models.SettlementEdge, payouts []models.Payout, walletBalance int64) []models.ReceivableRow {
	own := make([]models.SettlementEdge, 0)
	for _, e := range edges {
		if e.FromUserID == debtorID {
			own = append(own, e)
		}
	}
	rows := debtorRows(own, payouts, map[string]int64{debtorID: walletBalance})
	return Outstanding(rows)
}

// ReceivablesFor is the creditor view: edges owed to creditorID that no
// delivered payout has paid yet. A single payout within MatchTolerance of the
// edge settles it, as does a remainder within MatchTolerance.
func ReceivablesFor(creditorID string, edges []models.SettlementEdge, payouts []models.Payout) []models.ReceivableRow {
	totals := totalPayouts(payouts)
	rows := make([]models.ReceivableRow, 0)
	for _, e := range sortEdges(edges) {
		if e.ToUserID != creditorID {
			continue
		}
		k := pair{from: e.FromUserID, to: e.ToUserID}
		if matchesAny(e.Amount, totals.successes[k]) {
			continue
		}
		remaining := e.Amount - totals.delivered[k]
		if remaining <= MatchTolerance {
			continue
		}
		rows = append(rows, models.ReceivableRow{
			FromUserID: e.FromUserID,
			ToUserID:   e.ToUserID,
			Gross:      e.Amount,
			Paid:       totals.delivered[k],
			InFlight:   totals.inFlight[k],
			Residual:   remaining,
		})
	}
	return rows
}

func matchesAny(amount int64, candidates []int64) bool {
	for _, c := range candidates {
		d := amount - c
		if d < 0 {
			d = -d
		}
		if d <= MatchTolerance {
			return true
		}
	}
	return false
}

// Outstanding drops rows with nothing left to pay.
func Outstanding(rows []models.ReceivableRow) []models.ReceivableRow {
	out := make([]models.ReceivableRow, 0, len(rows))
	for _, r := range rows {
		if r.Residual > 0 {
			out = append(out, r)
		}
	}
	return out
}
