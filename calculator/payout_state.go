package calculator

import (
	apperrors "mealshare-backend/errors"
	"mealshare-backend/models"
)

var payoutTransitions = map[models.PayoutStatus][]models.PayoutStatus{
	models.PayoutStatusProcessing: {models.PayoutStatusSuccess, models.PayoutStatusUnclaimed, models.PayoutStatusFailed},
	models.PayoutStatusUnclaimed:  {models.PayoutStatusSuccess, models.PayoutStatusReturned},
}

// IsTerminal reports whether no further status change is allowed.
func IsTerminal(s models.PayoutStatus) bool {
	return len(payoutTransitions[s]) == 0
}

func ValidPayoutStatus(s models.PayoutStatus) bool {
	switch s {
	case models.PayoutStatusProcessing, models.PayoutStatusSuccess, models.PayoutStatusUnclaimed,
		models.PayoutStatusReturned, models.PayoutStatusFailed:
		return true
	}
	return false
}

// Reachable reports whether to can follow from through one or more steps.
func Reachable(from, to models.PayoutStatus) bool {
	seen := map[models.PayoutStatus]bool{from: true}
	queue := []models.PayoutStatus{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range payoutTransitions[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// PayoutTransition checks a status change. It returns changed=false for a
// repeat of the current status, which callers treat as a no-op. A status that
// is only reachable through a missing intermediate step is TransitionOutOfOrder.
func PayoutTransition(from, to models.PayoutStatus) (changed bool, err error) {
	if !ValidPayoutStatus(to) {
		return false, apperrors.InvalidTransition(string(from), string(to))
	}
	if from == to {
		return false, nil
	}
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true, nil
		}
	}
	if Reachable(from, to) {
		return false, apperrors.TransitionOutOfOrder(string(from), string(to))
	}
	return false, apperrors.InvalidTransition(string(from), string(to))
}

// CanConfirm reports whether the recipient may still confirm receipt.
func CanConfirm(s models.PayoutStatus) bool {
	return s == models.PayoutStatusProcessing || s == models.PayoutStatusUnclaimed
}
