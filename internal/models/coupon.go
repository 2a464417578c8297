package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Description   string          `json:"description"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	ValidFrom     time.Time       `json:"valid_from"`
	ValidUntil    time.Time       `json:"valid_until"`
	MinimumAmount decimal.Decimal `json:"minimum_amount"`
	// MaxUses of 0 means unlimited.
	MaxUses   int64 `json:"max_uses"`
	UsedCount int64 `json:"used_count"`
	// CourseIDs restricts the coupon to a set of courses. Empty means any.
	CourseIDs []string  `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// IsValidAt checks the validity window and the usage cap.
func (c Coupon) IsValidAt(now time.Time) bool {
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return false
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return false
	}
	return true
}

// AppliesTo reports whether the coupon may be used for the given course.
func (c Coupon) AppliesTo(courseID string) bool {
	if len(c.CourseIDs) == 0 {
		return true
	}
	for _, id := range c.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// CalculateDiscount returns the discount for the given order amount. The
// result is clamped to [0, amount] so the final price can never go negative.
func (c Coupon) CalculateDiscount(amount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = amount.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		discount = c.DiscountValue
	default:
		return decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(amount) {
		return amount
	}
	return discount
}
