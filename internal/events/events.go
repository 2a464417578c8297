// Package events publishes settlement outcomes for the external
// notification and analytics consumers. The original system wired these
// through model-save signals; here there is exactly one publish call site,
// in the settlement engine, after the terminal transition commits.
package events

import (
	"context"
	"time"
)

type PaymentSettled struct {
	Reference    string    `json:"reference"`
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	EnrollmentID string    `json:"enrollment_id,omitempty"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	CouponCode   string    `json:"coupon_code,omitempty"`
	SettledAt    time.Time `json:"settled_at"`
}

type Publisher interface {
	PaymentSettled(ctx context.Context, evt PaymentSettled) error
}

// Nop is used when no brokers are configured.
type Nop struct{}

func (Nop) PaymentSettled(context.Context, PaymentSettled) error { return nil }
