package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tundeabiodun/lms-backend/internal/gateway/paystack"
	"github.com/tundeabiodun/lms-backend/internal/metrics"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

// WebhookEvent is the provider's event envelope after the handler has
// verified its signature against the raw body.
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ReconcileByWebhook applies an asynchronous provider callback. Delivery is
// at-least-once, so every branch must tolerate replays: a transaction that is
// already terminal is acknowledged without side effects.
func (s *SettlementService) ReconcileByWebhook(ctx context.Context, evt WebhookEvent) error {
	switch evt.Event {
	case "charge.success":
		return s.webhookChargeSuccess(ctx, evt)
	case "subscription.create":
		return s.webhookSubscription(ctx, evt, models.SubscriptionActive, nil)
	case "subscription.disable":
		now := time.Now().UTC()
		return s.webhookSubscription(ctx, evt, models.SubscriptionCancelled, &now)
	default:
		s.log.Debug("ignoring webhook event", "event", evt.Event)
		metrics.WebhookEvents.WithLabelValues(evt.Event, "ignored").Inc()
		return nil
	}
}

func (s *SettlementService) webhookChargeSuccess(ctx context.Context, evt WebhookEvent) error {
	var data struct {
		Reference     string                 `json:"reference"`
		Status        string                 `json:"status"`
		PaidAt        string                 `json:"paid_at"`
		Authorization paystack.Authorization `json:"authorization"`
	}
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return err
	}

	txn, err := s.txns.GetByReference(ctx, data.Reference)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown reference: acknowledge so the provider stops retrying.
		s.log.Warn("webhook for unknown reference", "reference", data.Reference)
		metrics.WebhookEvents.WithLabelValues(evt.Event, "unknown").Inc()
		return nil
	}
	if err != nil {
		return err
	}
	if txn.Status.Terminal() {
		metrics.WebhookEvents.WithLabelValues(evt.Event, "replay").Inc()
		return nil
	}

	payment, err := s.pays.GetByTransactionID(ctx, txn.ID)
	if err != nil {
		return err
	}
	outcome := paystack.ChargeOutcome{
		Success:       true,
		Status:        data.Status,
		Reference:     data.Reference,
		Authorization: data.Authorization,
		Raw:           evt.Data,
	}
	if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
		outcome.PaidAt = t
	}

	_, applied, err := s.finalizeSuccess(ctx, txn, payment, outcome)
	if err != nil {
		return err
	}
	if applied {
		metrics.WebhookEvents.WithLabelValues(evt.Event, "settled").Inc()
	} else {
		metrics.WebhookEvents.WithLabelValues(evt.Event, "replay").Inc()
	}
	return nil
}

// webhookSubscription only moves the subscription's status; there are no
// enrollment side effects on lifecycle events.
func (s *SettlementService) webhookSubscription(ctx context.Context, evt WebhookEvent, status models.SubscriptionStatus, cancelledAt *time.Time) error {
	var data struct {
		SubscriptionCode string `json:"subscription_code"`
	}
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return err
	}
	if data.SubscriptionCode == "" {
		return nil
	}
	if err := s.subs.UpdateStatusByCode(ctx, data.SubscriptionCode, status, cancelledAt); err != nil {
		return err
	}
	metrics.WebhookEvents.WithLabelValues(evt.Event, "applied").Inc()
	return nil
}
