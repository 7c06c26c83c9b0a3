package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"mealshare-backend/models"
)

const (
	EventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventPayoutSucceeded  = "PAYMENT.PAYOUTS-ITEM.SUCCEEDED"
	EventPayoutUnclaimed  = "PAYMENT.PAYOUTS-ITEM.UNCLAIMED"
	EventPayoutReturned   = "PAYMENT.PAYOUTS-ITEM.RETURNED"
	EventPayoutFailed     = "PAYMENT.PAYOUTS-ITEM.FAILED"
	EventPayoutDenied     = "PAYMENT.PAYOUTS-ITEM.DENIED"
	EventPayoutBlocked    = "PAYMENT.PAYOUTS-ITEM.BLOCKED"
	EventPayoutCanceled   = "PAYMENT.PAYOUTS-ITEM.CANCELED"
)

type Event struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("decoding webhook event: %w", err)
	}
	if evt.EventType == "" {
		return nil, fmt.Errorf("decoding webhook event: missing event_type")
	}
	return &evt, nil
}

// OrderID extracts the checkout order an order or capture event refers to.
// Capture events carry it under supplementary_data.
func (e *Event) OrderID() (string, error) {
	var res struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	}
	if err := json.Unmarshal(e.Resource, &res); err != nil {
		return "", fmt.Errorf("decoding order resource: %w", err)
	}
	if res.SupplementaryData.RelatedIDs.OrderID != "" {
		return res.SupplementaryData.RelatedIDs.OrderID, nil
	}
	if res.ID == "" {
		return "", fmt.Errorf("order id missing from %s resource", e.EventType)
	}
	return res.ID, nil
}

var payoutStatusByEvent = map[string]models.PayoutStatus{
	EventPayoutSucceeded: models.PayoutStatusSuccess,
	EventPayoutUnclaimed: models.PayoutStatusUnclaimed,
	EventPayoutReturned:  models.PayoutStatusReturned,
	EventPayoutFailed:    models.PayoutStatusFailed,
	EventPayoutDenied:    models.PayoutStatusFailed,
	EventPayoutBlocked:   models.PayoutStatusFailed,
	EventPayoutCanceled:  models.PayoutStatusFailed,
}

func IsPayoutEvent(eventType string) bool {
	_, ok := payoutStatusByEvent[eventType]
	return ok
}

// PayoutUpdate maps a payout item event to the status it reports.
func (e *Event) PayoutUpdate() (*models.ProviderPayoutUpdate, error) {
	status, ok := payoutStatusByEvent[e.EventType]
	if !ok {
		return nil, fmt.Errorf("%s is not a payout event", e.EventType)
	}
	var res struct {
		PayoutItemID  string `json:"payout_item_id"`
		TransactionID string `json:"transaction_id"`
		PayoutItem    struct {
			SenderItemID string `json:"sender_item_id"`
		} `json:"payout_item"`
		Errors struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(e.Resource, &res); err != nil {
		return nil, fmt.Errorf("decoding payout resource: %w", err)
	}
	if res.PayoutItem.SenderItemID == "" && res.PayoutItemID == "" {
		return nil, fmt.Errorf("payout reference missing from %s resource", e.EventType)
	}
	return &models.ProviderPayoutUpdate{
		PayoutID:     res.PayoutItem.SenderItemID,
		ItemID:       res.PayoutItemID,
		Status:       status,
		TxnID:        res.TransactionID,
		ErrorCode:    res.Errors.Name,
		ErrorMessage: res.Errors.Message,
	}, nil
}

// VerifyWebhook asks PayPal whether the delivery headers sign this body.
func (c *Client) VerifyWebhook(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	if c.cfg.WebhookID == "" {
		return false, fmt.Errorf("verifying webhook: webhook id not configured")
	}
	req := map[string]any{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        c.cfg.WebhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var resp struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", req, &resp, nil); err != nil {
		return false, fmt.Errorf("verifying webhook: %w", err)
	}
	return resp.VerificationStatus == "SUCCESS", nil
}
