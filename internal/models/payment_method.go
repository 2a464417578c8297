package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod stores a reusable charge authorization issued by the
// provider. Only the tokenized handle and display metadata are kept, never
// raw card data.
type PaymentMethod struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	AuthorizationCode string    `json:"-"`
	CardType          string    `json:"card_type"`
	Last4             string    `json:"last4"`
	ExpMonth          string    `json:"exp_month"`
	ExpYear           string    `json:"exp_year"`
	Bank              string    `json:"bank"`
	IsDefault         bool      `json:"is_default"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription mirrors a provider-managed subscription. Webhook lifecycle
// events only ever touch the status fields.
type Subscription struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	Plan             string             `json:"plan"`
	Status           SubscriptionStatus `json:"status"`
	SubscriptionCode string             `json:"subscription_code"`
	Amount           decimal.Decimal    `json:"amount"`
	NextPaymentDate  *time.Time         `json:"next_payment_date,omitempty"`
	CancelledAt      *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}
