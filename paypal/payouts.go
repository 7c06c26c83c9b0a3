package paypal

import (
	"context"
	"fmt"
	"net/http"

	"mealshare-backend/models"
	"mealshare-backend/money"
)

// CreatePayout sends one payout item. The payout id doubles as the sender
// batch id, which PayPal deduplicates.
func (c *Client) CreatePayout(ctx context.Context, p *models.Payout) (*models.ProviderPayout, error) {
	if p.ToPayPalEmail == nil || *p.ToPayPalEmail == "" {
		return nil, fmt.Errorf("creating payout %s: no receiver email", p.ID)
	}
	note := ""
	if p.Note != nil {
		note = *p.Note
	}

	body := map[string]any{
		"sender_batch_header": map[string]any{
			"sender_batch_id": p.ID,
			"email_subject":   "You received a payment",
		},
		"items": []map[string]any{{
			"recipient_type": "EMAIL",
			"receiver":       *p.ToPayPalEmail,
			"note":           note,
			"sender_item_id": p.ID,
			"amount": map[string]string{
				"currency": p.Currency,
				"value":    money.Format(p.AmountCents),
			},
		}},
	}

	var resp struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
			BatchStatus   string `json:"batch_status"`
		} `json:"batch_header"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/payments/payouts", body, &resp, nil); err != nil {
		return nil, fmt.Errorf("creating payout %s: %w", p.ID, err)
	}
	return &models.ProviderPayout{
		BatchID: resp.BatchHeader.PayoutBatchID,
		Status:  resp.BatchHeader.BatchStatus,
	}, nil
}
