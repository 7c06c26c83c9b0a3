package services

import (
	"context"
	"net/http"

	apperrors "mealshare-backend/errors"
	"mealshare-backend/paypal"

	"go.uber.org/zap"
)

type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, headers http.Header, body []byte) (bool, error)
}

type WebhookService interface {
	HandlePayPal(ctx context.Context, headers http.Header, body []byte) error
}

type webhookService struct {
	verifier WebhookVerifier
	payments PaymentService
	payouts  PayoutService
}

func NewWebhookService(verifier WebhookVerifier, payments PaymentService, payouts PayoutService) WebhookService {
	return &webhookService{verifier: verifier, payments: payments, payouts: payouts}
}

// HandlePayPal verifies and dispatches one provider notification. A nil
// return acknowledges the delivery; errors ask the provider to redeliver.
func (s *webhookService) HandlePayPal(ctx context.Context, headers http.Header, body []byte) error {
	ok, err := s.verifier.VerifyWebhook(ctx, headers, body)
	if err != nil {
		return apperrors.ProviderError("verifying webhook", err)
	}
	if !ok {
		zap.L().Warn("Rejected PayPal webhook with bad signature",
			zap.String("transmission_id", headers.Get("Paypal-Transmission-Id")))
		return apperrors.Unauthorized("Webhook signature verification failed.")
	}

	evt, err := paypal.ParseEvent(body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.InvalidRequest("Malformed webhook event."))
	}
	log := zap.L().With(zap.String("event_id", evt.ID), zap.String("event_type", evt.EventType))

	switch {
	case evt.EventType == paypal.EventOrderApproved || evt.EventType == paypal.EventCaptureCompleted:
		orderID, err := evt.OrderID()
		if err != nil {
			return apperrors.Wrap(err, apperrors.InvalidRequest("Webhook event has no order id."))
		}
		res, err := s.payments.CaptureOrder(ctx, orderID, "")
		if apperrors.HasCode(err, apperrors.CodePaymentNotFound) {
			log.Warn("Webhook for unknown order", zap.String("order_id", orderID))
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("Order webhook processed",
			zap.String("order_id", orderID),
			zap.String("status", string(res.Status)),
			zap.Bool("already_captured", res.AlreadyCaptured))
		return nil

	case paypal.IsPayoutEvent(evt.EventType):
		update, err := evt.PayoutUpdate()
		if err != nil {
			return apperrors.Wrap(err, apperrors.InvalidRequest("Webhook event has no payout reference."))
		}
		_, err = s.payouts.ApplyProviderStatus(ctx, *update)
		switch {
		case apperrors.HasCode(err, apperrors.CodeTransitionOutOfOrder):
			// the intermediate event has not landed yet; a redelivery will apply it
			log.Error("Payout webhook arrived out of order",
				zap.String("payout_id", update.PayoutID),
				zap.String("item_id", update.ItemID),
				zap.String("status", string(update.Status)),
				zap.Error(err))
			return err
		case apperrors.HasCode(err, apperrors.CodeInvalidTransition):
			// out-of-order or repeated delivery; the stored state stands
			log.Warn("Ignoring stale payout webhook", zap.String("payout_id", update.PayoutID), zap.Error(err))
			return nil
		case apperrors.HasCode(err, apperrors.CodePayoutNotFound):
			log.Warn("Webhook for unknown payout", zap.String("payout_id", update.PayoutID), zap.String("item_id", update.ItemID))
			return nil
		case err != nil:
			return err
		}
		log.Info("Payout webhook processed", zap.String("payout_id", update.PayoutID), zap.String("status", string(update.Status)))
		return nil

	default:
		log.Debug("Ignoring unhandled webhook event")
		return nil
	}
}
