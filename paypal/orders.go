package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mealshare-backend/models"
	"mealshare-backend/money"

	"github.com/shopspring/decimal"
)

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount amount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateOrder opens a CAPTURE order for a wallet top-up. The approval link is
// handed to the client for redirect.
func (c *Client) CreateOrder(ctx context.Context, payerID string, amountCents int64, currency string) (*models.ProviderOrder, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id": payerID,
			"amount":    amount{CurrencyCode: currency, Value: money.Format(amountCents)},
		}},
		"application_context": map[string]any{
			"return_url":          c.cfg.ReturnURL,
			"cancel_url":          c.cfg.CancelURL,
			"brand_name":          c.cfg.BrandName,
			"user_action":         "PAY_NOW",
			"shipping_preference": "NO_SHIPPING",
		},
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &raw, nil); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding order: %w", err)
	}

	order := &models.ProviderOrder{OrderID: resp.ID, Raw: raw}
	for _, l := range resp.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			order.ApprovalURL = l.Href
			break
		}
	}
	if order.OrderID == "" || order.ApprovalURL == "" {
		return nil, fmt.Errorf("creating order: response without id or approval link")
	}
	return order, nil
}

// CaptureOrder captures an approved order. An order that was already
// captured is read back instead, so a retried capture reports the original
// outcome.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*models.ProviderCapture, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", orderID)
	headers := map[string]string{"PayPal-Request-Id": "capture-" + orderID}
	err := c.do(ctx, http.MethodPost, path, map[string]any{}, &raw, headers)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity && apiErr.HasIssue("ORDER_ALREADY_CAPTURED") {
		return c.GetOrder(ctx, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("capturing order %s: %w", orderID, err)
	}
	return parseCapture(orderID, raw)
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.ProviderCapture, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &raw, nil); err != nil {
		return nil, fmt.Errorf("getting order %s: %w", orderID, err)
	}
	return parseCapture(orderID, raw)
}

func parseCapture(orderID string, raw json.RawMessage) (*models.ProviderCapture, error) {
	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding capture: %w", err)
	}

	result := &models.ProviderCapture{OrderID: orderID, Status: resp.Status, Raw: raw}
	if len(resp.PurchaseUnits) > 0 && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
		capture := resp.PurchaseUnits[0].Payments.Captures[0]
		result.CaptureID = capture.ID
		result.Currency = capture.Amount.CurrencyCode
		if result.Status == "" {
			result.Status = capture.Status
		}
		if capture.Amount.Value != "" {
			d, err := decimal.NewFromString(capture.Amount.Value)
			if err != nil {
				return nil, fmt.Errorf("parsing captured amount: %w", err)
			}
			result.AmountCents = money.FromDecimal(d)
		}
	}
	return result, nil
}
