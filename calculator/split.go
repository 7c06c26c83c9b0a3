package calculator

import (
	"sort"

	"mealshare-backend/models"
)

// EqualSplit divides amount over the distinct users. Leftover cents go one
// each to the first users in id order, so the shares always add up to amount.
func EqualSplit(amount int64, userIDs []string) []models.ParticipantShare {
	seen := make(map[string]bool, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	n := int64(len(ids))
	base, rem := amount/n, amount%n
	shares := make([]models.ParticipantShare, len(ids))
	for i, id := range ids {
		share := base
		if int64(i) < rem {
			share++
		}
		shares[i] = models.ParticipantShare{UserID: id, ShareAmount: share}
	}
	return shares
}
