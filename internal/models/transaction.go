package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxnCoursePurchase TransactionType = "course_purchase"
	TxnSubscription   TransactionType = "subscription"
)

type TransactionStatus string

const (
	TxnPending TransactionStatus = "pending"
	TxnSuccess TransactionStatus = "success"
	TxnFailed  TransactionStatus = "failed"
)

// Terminal reports whether no further status transitions are permitted.
func (s TransactionStatus) Terminal() bool {
	return s == TxnSuccess || s == TxnFailed
}

// Transaction is the durable record of a single charge attempt. Created once
// per purchase intent; only the settlement engine moves it from pending to a
// terminal state. Rows are never deleted.
type Transaction struct {
	ID                string            `json:"id"`
	Reference         string            `json:"reference"`
	UserID            string            `json:"user_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Type              TransactionType   `json:"transaction_type"`
	Status            TransactionStatus `json:"status"`
	ProviderReference *string           `json:"provider_reference,omitempty"`
	AuthorizationCode string            `json:"-"`
	// Raw provider payload, kept server-side for audit only.
	GatewayResponse []byte     `json:"-"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Payment carries the pricing breakdown of a course purchase. 1:1 with its
// Transaction, same lifetime.
type Payment struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	CourseID       string          `json:"course_id"`
	OriginalPrice  decimal.Decimal `json:"original_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	EnrollmentID   *string         `json:"enrollment_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
