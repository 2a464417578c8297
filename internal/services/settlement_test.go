package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tundeabiodun/lms-backend/internal/events"
	"github.com/tundeabiodun/lms-backend/internal/gateway/paystack"
	"github.com/tundeabiodun/lms-backend/internal/models"
	"github.com/tundeabiodun/lms-backend/internal/worker"
)

func newTestEngine(t *testing.T, s *memStore, gw *fakeGateway) *SettlementService {
	t.Helper()
	wp := worker.NewPool(1)
	t.Cleanup(wp.Stop)
	return NewSettlementService(
		SettlementConfig{CallbackURL: "https://app.example.test/payments/verify"},
		SettlementRepos{
			Users:          fakeUsers{s},
			Courses:        fakeCourses{s},
			Enrollments:    fakeEnrollments{s},
			Transactions:   fakeTxns{s},
			Payments:       fakePayments{s},
			Coupons:        fakeCoupons{s},
			PaymentMethods: fakeMethods{s},
			Subscriptions:  fakeSubs{s},
			AuditLogs:      fakeAudits{s},
		},
		NewPricingService(fakeCoupons{s}, fakeCourses{s}),
		gw,
		events.Nop{},
		wp,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func seedUser(s *memStore) models.User {
	u := models.User{ID: "user-1", Username: "ada", Email: "ada@example.test", Role: "student"}
	s.users[u.ID] = u
	return u
}

func seedCourse(s *memStore, price string) models.Course {
	c := models.Course{ID: "course-1", Title: "Distributed Systems", Status: models.CoursePublished, Price: decimal.RequireFromString(price), Currency: "NGN"}
	s.courses[c.ID] = c
	return c
}

func successOutcome(reference string) paystack.ChargeOutcome {
	return paystack.ChargeOutcome{
		Success:   true,
		Status:    "success",
		Reference: reference,
		PaidAt:    time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Raw:       []byte(`{"status":"success"}`),
	}
}

func TestOpenIntentRejectsBeforeCreatingTransaction(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	s.enrollments[enrollKey(user.ID, course.ID)] = models.Enrollment{
		ID: "enr-1", StudentID: user.ID, CourseID: course.ID, Status: models.EnrollmentActive,
	}
	gw := &fakeGateway{}
	engine := newTestEngine(t, s, gw)

	_, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID})
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	assert.Empty(t, s.txns, "no transaction row may exist for a rejected intent")
}

func TestOpenIntentRejectsUnpurchasableCourse(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	s.courses["draft"] = models.Course{ID: "draft", Status: models.CourseDraft, Price: decimal.NewFromInt(50)}
	s.courses["free"] = models.Course{ID: "free", Status: models.CoursePublished, IsFree: true}
	engine := newTestEngine(t, s, &fakeGateway{})

	for _, id := range []string{"draft", "free", "missing"} {
		_, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: id})
		assert.ErrorIs(t, err, ErrInvalidCourse, "course %s", id)
	}
	assert.Empty(t, s.txns)
}

func TestOpenIntentAppliesCoupon(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	seedCoupon(s, models.Coupon{
		Code:          "SAVE20",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
	})
	gw := &fakeGateway{
		initFn: func(req paystack.InitializeRequest) (paystack.InitializeResult, error) {
			assert.True(t, req.Amount.Equal(decimal.RequireFromString("80.00")), "charge amount %s", req.Amount)
			assert.Equal(t, user.Email, req.Email)
			return paystack.InitializeResult{AuthorizationURL: "https://checkout.test/abc", AccessCode: "abc"}, nil
		},
	}
	engine := newTestEngine(t, s, gw)

	res, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID, CouponCode: "SAVE20"})
	require.NoError(t, err)
	assert.Equal(t, models.TxnPending, res.Status)
	assert.NotEmpty(t, res.Reference)
	assert.Equal(t, "https://checkout.test/abc", res.AuthorizationURL)

	txn := s.txns[res.TransactionID]
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("80.00")))
	payment := s.payments[res.TransactionID]
	assert.True(t, payment.OriginalPrice.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, payment.DiscountAmount.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, "SAVE20", payment.CouponCode)
	assert.Equal(t, int(0), s.couponUses["coupon-SAVE20"], "usage moves only at settlement")
}

func TestOpenIntentInitializeFailureClosesIntent(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	gw := &fakeGateway{
		initFn: func(paystack.InitializeRequest) (paystack.InitializeResult, error) {
			return paystack.InitializeResult{}, ErrGatewayUnavailable
		},
	}
	engine := newTestEngine(t, s, gw)

	_, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	require.Len(t, s.txns, 1)
	for _, txn := range s.txns {
		assert.Equal(t, models.TxnFailed, txn.Status)
	}
}

func TestOpenIntentStoredChargeTimeoutStaysPending(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	s.methods["pm-1"] = models.PaymentMethod{ID: "pm-1", UserID: user.ID, AuthorizationCode: "AUTH_x1", IsActive: true}
	gw := &fakeGateway{
		chargeFn: func(paystack.ChargeRequest) (paystack.ChargeOutcome, error) {
			return paystack.ChargeOutcome{}, ErrGatewayUnavailable
		},
	}
	engine := newTestEngine(t, s, gw)

	res, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID, PaymentMethodID: "pm-1"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	// The charge may have landed provider-side, so the intent survives for
	// later verification.
	assert.NotEmpty(t, res.Reference)
	txn := s.txns[res.TransactionID]
	assert.Equal(t, models.TxnPending, txn.Status)
	assert.Empty(t, s.enrollments)
}

func TestOpenIntentStoredChargeSuccess(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	s.methods["pm-1"] = models.PaymentMethod{ID: "pm-1", UserID: user.ID, AuthorizationCode: "AUTH_x1", IsActive: true}
	gw := &fakeGateway{
		chargeFn: func(req paystack.ChargeRequest) (paystack.ChargeOutcome, error) {
			assert.Equal(t, "AUTH_x1", req.AuthorizationCode)
			out := successOutcome(req.Reference)
			out.Authorization = paystack.Authorization{AuthorizationCode: "AUTH_x1", Reusable: true, Last4: "4242"}
			return out, nil
		},
	}
	engine := newTestEngine(t, s, gw)

	res, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID, PaymentMethodID: "pm-1"})
	require.NoError(t, err)
	assert.Equal(t, models.TxnSuccess, res.Status)
	assert.NotEmpty(t, res.EnrollmentID)

	e, ok := s.enrollments[enrollKey(user.ID, course.ID)]
	require.True(t, ok)
	assert.Equal(t, models.EnrollmentActive, e.Status)
	assert.Equal(t, int64(1), s.enrollmentCounts[course.ID])
}

func TestOpenIntentUnknownStoredMethod(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	engine := newTestEngine(t, s, &fakeGateway{})

	res, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID, PaymentMethodID: "pm-missing"})
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	assert.Empty(t, res.Reference)
	require.Len(t, s.txns, 1)
	for _, txn := range s.txns {
		assert.Equal(t, models.TxnFailed, txn.Status)
	}
}

func TestReconcileByReferenceSettlesExactlyOnce(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	seedCoupon(s, models.Coupon{
		Code:          "SAVE20",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
	})
	gw := &fakeGateway{
		initFn: func(paystack.InitializeRequest) (paystack.InitializeResult, error) {
			return paystack.InitializeResult{AuthorizationURL: "https://checkout.test/x"}, nil
		},
		verifyFn: func(ref string) (paystack.ChargeOutcome, error) {
			out := successOutcome(ref)
			out.Authorization = paystack.Authorization{AuthorizationCode: "AUTH_new", Reusable: true, CardType: "visa", Last4: "4081"}
			return out, nil
		},
	}
	engine := newTestEngine(t, s, gw)

	opened, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID, CouponCode: "SAVE20"})
	require.NoError(t, err)

	first, err := engine.ReconcileByReference(context.Background(), opened.Reference, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxnSuccess, first.Status)
	assert.False(t, first.AlreadySettled)
	assert.NotEmpty(t, first.EnrollmentID)

	second, err := engine.ReconcileByReference(context.Background(), opened.Reference, user.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.Equal(t, first.EnrollmentID, second.EnrollmentID)

	assert.Len(t, s.enrollments, 1)
	assert.Equal(t, int64(1), s.enrollmentCounts[course.ID])
	assert.Equal(t, 1, s.couponUses["coupon-SAVE20"])
	assert.Equal(t, 1, s.methodUpserts, "reusable authorization stored once")
	assert.Equal(t, 1, gw.verifyCalls, "terminal transaction never re-verified")
}

func TestReconcileByReferenceFailure(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	gw := &fakeGateway{
		initFn: func(paystack.InitializeRequest) (paystack.InitializeResult, error) {
			return paystack.InitializeResult{}, nil
		},
		verifyFn: func(ref string) (paystack.ChargeOutcome, error) {
			return paystack.ChargeOutcome{Success: false, Status: "failed", Reference: ref, Raw: []byte(`{"status":"failed"}`)}, nil
		},
	}
	engine := newTestEngine(t, s, gw)

	opened, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID})
	require.NoError(t, err)

	res, err := engine.ReconcileByReference(context.Background(), opened.Reference, user.ID)
	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.Equal(t, models.TxnFailed, res.Status)
	assert.Empty(t, s.enrollments)

	// Replays short-circuit on the stored terminal state.
	res, err = engine.ReconcileByReference(context.Background(), opened.Reference, user.ID)
	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.True(t, res.AlreadySettled)
	assert.Equal(t, 1, gw.verifyCalls)
}

func TestReconcileByReferenceGatewayDownLeavesPending(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	gw := &fakeGateway{
		initFn: func(paystack.InitializeRequest) (paystack.InitializeResult, error) {
			return paystack.InitializeResult{}, nil
		},
		verifyFn: func(string) (paystack.ChargeOutcome, error) {
			return paystack.ChargeOutcome{}, ErrGatewayUnavailable
		},
	}
	engine := newTestEngine(t, s, gw)

	opened, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID})
	require.NoError(t, err)

	_, err = engine.ReconcileByReference(context.Background(), opened.Reference, user.ID)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, models.TxnPending, s.txns[opened.TransactionID].Status)
}

func TestReconcileByReferenceScopedToUser(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	gw := &fakeGateway{
		initFn: func(paystack.InitializeRequest) (paystack.InitializeResult, error) {
			return paystack.InitializeResult{}, nil
		},
	}
	engine := newTestEngine(t, s, gw)

	opened, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID})
	require.NoError(t, err)

	_, err = engine.ReconcileByReference(context.Background(), opened.Reference, "someone-else")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = engine.ReconcileByReference(context.Background(), "nosuchref", user.ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func webhookPayload(t *testing.T, reference string) WebhookEvent {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"reference": reference,
		"status":    "success",
		"paid_at":   "2025-06-15T12:00:00Z",
		"authorization": map[string]any{
			"authorization_code": "AUTH_hook",
			"reusable":           true,
			"last4":              "1234",
		},
	})
	require.NoError(t, err)
	return WebhookEvent{Event: "charge.success", Data: data}
}

func TestWebhookSettlesPending(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	gw := &fakeGateway{
		initFn: func(paystack.InitializeRequest) (paystack.InitializeResult, error) {
			return paystack.InitializeResult{}, nil
		},
	}
	engine := newTestEngine(t, s, gw)

	opened, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID})
	require.NoError(t, err)

	require.NoError(t, engine.ReconcileByWebhook(context.Background(), webhookPayload(t, opened.Reference)))
	assert.Equal(t, models.TxnSuccess, s.txns[opened.TransactionID].Status)
	assert.Len(t, s.enrollments, 1)
	assert.Equal(t, 0, gw.verifyCalls, "signed webhook payload is trusted without re-verification")
}

func TestWebhookReplayIsNoOp(t *testing.T) {
	s := newMemStore()
	user := seedUser(s)
	course := seedCourse(s, "100.00")
	gw := &fakeGateway{
		initFn: func(paystack.InitializeRequest) (paystack.InitializeResult, error) {
			return paystack.InitializeResult{}, nil
		},
	}
	engine := newTestEngine(t, s, gw)

	opened, err := engine.OpenIntent(context.Background(), user.ID, IntentInput{CourseID: course.ID})
	require.NoError(t, err)

	evt := webhookPayload(t, opened.Reference)
	require.NoError(t, engine.ReconcileByWebhook(context.Background(), evt))
	require.NoError(t, engine.ReconcileByWebhook(context.Background(), evt))
	require.NoError(t, engine.ReconcileByWebhook(context.Background(), evt))

	assert.Len(t, s.enrollments, 1)
	assert.Equal(t, int64(1), s.enrollmentCounts[course.ID])
	assert.Equal(t, 1, s.methodUpserts)
}

func TestWebhookUnknownReferenceAcked(t *testing.T) {
	s := newMemStore()
	engine := newTestEngine(t, s, &fakeGateway{})

	err := engine.ReconcileByWebhook(context.Background(), webhookPayload(t, "unknown-ref"))
	assert.NoError(t, err, "unknown references are acknowledged so the provider stops retrying")
	assert.Empty(t, s.txns)
}

func TestWebhookIgnoresUnhandledEvents(t *testing.T) {
	s := newMemStore()
	engine := newTestEngine(t, s, &fakeGateway{})

	err := engine.ReconcileByWebhook(context.Background(), WebhookEvent{Event: "transfer.success", Data: []byte(`{}`)})
	assert.NoError(t, err)
}
