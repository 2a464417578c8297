package services

import (
	"errors"

	"github.com/tundeabiodun/lms-backend/internal/gateway/paystack"
)

// Settlement error taxonomy. Handlers map these to HTTP statuses; messages
// are safe to show to clients and never carry provider internals.
var (
	ErrAlreadyEnrolled      = errors.New("you are already enrolled in this course")
	ErrInvalidCourse        = errors.New("course is not available for purchase")
	ErrCouponInvalid        = errors.New("invalid or expired coupon")
	ErrCouponNotApplicable  = errors.New("coupon cannot be applied to this order")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrSignatureInvalid     = errors.New("invalid webhook signature")
	ErrEmailTaken           = errors.New("email already registered")

	// Gateway-originated conditions keep their adapter identity so
	// errors.Is works across the boundary.
	ErrGatewayUnavailable = paystack.ErrGatewayUnavailable
	ErrProviderRejected   = paystack.ErrProviderRejected
)
