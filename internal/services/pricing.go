package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/tundeabiodun/lms-backend/internal/models"
	repo "github.com/tundeabiodun/lms-backend/internal/repository"
)

// Quote is the resolved price of an order before any provider interaction.
type Quote struct {
	OriginalPrice  decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	// Coupon is set when a coupon participated in the quote.
	Coupon *models.Coupon
}

// CouponValidation is the response shape of the coupon validation endpoint.
type CouponValidation struct {
	Valid          bool                `json:"valid"`
	Code           string              `json:"code"`
	Description    string              `json:"description,omitempty"`
	DiscountType   models.DiscountType `json:"discount_type"`
	DiscountValue  decimal.Decimal     `json:"discount_value"`
	DiscountAmount *decimal.Decimal    `json:"discount_amount,omitempty"`
	FinalPrice     *decimal.Decimal    `json:"final_price,omitempty"`
}

// PricingService resolves the final charge amount from a course price and an
// optional coupon. It never mutates coupon state: used_count moves only at
// settlement success.
type PricingService struct {
	coupons repo.Coupons
	courses repo.Courses
}

func NewPricingService(coupons repo.Coupons, courses repo.Courses) *PricingService {
	return &PricingService{coupons: coupons, courses: courses}
}

func (s *PricingService) Quote(ctx context.Context, course models.Course, couponCode string) (Quote, error) {
	q := Quote{
		OriginalPrice:  course.Price,
		DiscountAmount: decimal.Zero,
		FinalAmount:    course.Price,
	}
	if couponCode == "" {
		return q, nil
	}

	coupon, err := s.coupons.GetByCode(ctx, couponCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrCouponInvalid
	}
	if err != nil {
		return Quote{}, err
	}
	if !coupon.IsValidAt(time.Now()) {
		return Quote{}, ErrCouponInvalid
	}
	if !coupon.AppliesTo(course.ID) {
		return Quote{}, ErrCouponNotApplicable
	}
	if course.Price.LessThan(coupon.MinimumAmount) {
		return Quote{}, ErrCouponNotApplicable
	}

	q.DiscountAmount = coupon.CalculateDiscount(course.Price)
	q.FinalAmount = course.Price.Sub(q.DiscountAmount)
	q.Coupon = &coupon
	return q, nil
}

// ValidateCoupon answers the standalone validation endpoint. With a course it
// also prices the discount; without one it only reports the coupon terms.
func (s *PricingService) ValidateCoupon(ctx context.Context, code, courseID string) (CouponValidation, error) {
	coupon, err := s.coupons.GetByCode(ctx, code)
	if errors.Is(err, pgx.ErrNoRows) {
		return CouponValidation{}, ErrCouponInvalid
	}
	if err != nil {
		return CouponValidation{}, err
	}
	if !coupon.IsValidAt(time.Now()) {
		return CouponValidation{}, ErrCouponInvalid
	}

	out := CouponValidation{
		Valid:         true,
		Code:          coupon.Code,
		Description:   coupon.Description,
		DiscountType:  coupon.DiscountType,
		DiscountValue: coupon.DiscountValue,
	}
	if courseID == "" {
		return out, nil
	}

	course, err := s.courses.GetByID(ctx, courseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return CouponValidation{}, ErrInvalidCourse
	}
	if err != nil {
		return CouponValidation{}, err
	}
	q, err := s.Quote(ctx, course, code)
	if err != nil {
		return CouponValidation{}, err
	}
	out.DiscountAmount = &q.DiscountAmount
	out.FinalPrice = &q.FinalAmount
	return out, nil
}
