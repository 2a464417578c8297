package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/tundeabiodun/lms-backend/internal/events"
	"github.com/tundeabiodun/lms-backend/internal/gateway/paystack"
	"github.com/tundeabiodun/lms-backend/internal/metrics"
	"github.com/tundeabiodun/lms-backend/internal/models"
	repo "github.com/tundeabiodun/lms-backend/internal/repository"
	"github.com/tundeabiodun/lms-backend/internal/worker"
)

// Gateway is the provider surface the engine relies on.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (paystack.InitializeResult, error)
	ChargeAuthorization(ctx context.Context, req paystack.ChargeRequest) (paystack.ChargeOutcome, error)
	VerifyTransaction(ctx context.Context, reference string) (paystack.ChargeOutcome, error)
}

type SettlementConfig struct {
	CallbackURL     string
	DefaultCurrency string
}

// SettlementService drives a purchase intent through the provider and
// reconciles the outcome exactly once, whether it arrives by synchronous
// verification or asynchronous webhook.
type SettlementService struct {
	cfg     SettlementConfig
	users   repo.Users
	courses repo.Courses
	enrolls repo.Enrollments
	txns    repo.Transactions
	pays    repo.Payments
	coupons repo.Coupons
	methods repo.PaymentMethods
	subs    repo.Subscriptions
	audits  repo.AuditLogs
	pricing *PricingService
	gateway Gateway
	pub     events.Publisher
	wp      *worker.Pool
	log     *slog.Logger
}

func NewSettlementService(
	cfg SettlementConfig,
	repos SettlementRepos,
	pricing *PricingService,
	gateway Gateway,
	pub events.Publisher,
	wp *worker.Pool,
	log *slog.Logger,
) *SettlementService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "NGN"
	}
	return &SettlementService{
		cfg:     cfg,
		users:   repos.Users,
		courses: repos.Courses,
		enrolls: repos.Enrollments,
		txns:    repos.Transactions,
		pays:    repos.Payments,
		coupons: repos.Coupons,
		methods: repos.PaymentMethods,
		subs:    repos.Subscriptions,
		audits:  repos.AuditLogs,
		pricing: pricing,
		gateway: gateway,
		pub:     pub,
		wp:      wp,
		log:     log,
	}
}

// SettlementRepos groups the ledger stores the engine writes through.
type SettlementRepos struct {
	Users          repo.Users
	Courses        repo.Courses
	Enrollments    repo.Enrollments
	Transactions   repo.Transactions
	Payments       repo.Payments
	Coupons        repo.Coupons
	PaymentMethods repo.PaymentMethods
	Subscriptions  repo.Subscriptions
	AuditLogs      repo.AuditLogs
}

type IntentInput struct {
	CourseID        string
	CouponCode      string
	PaymentMethodID string
}

type IntentResult struct {
	TransactionID    string                   `json:"transaction_id"`
	Reference        string                   `json:"reference"`
	Amount           decimal.Decimal          `json:"amount"`
	Status           models.TransactionStatus `json:"status"`
	AuthorizationURL string                   `json:"authorization_url,omitempty"`
	AccessCode       string                   `json:"access_code,omitempty"`
	EnrollmentID     string                   `json:"enrollment_id,omitempty"`
}

type ReconcileResult struct {
	Reference    string                   `json:"reference"`
	Status       models.TransactionStatus `json:"status"`
	EnrollmentID string                   `json:"enrollment_id,omitempty"`
	// AlreadySettled marks the idempotent short-circuit: the transaction
	// was terminal before this call and nothing was re-applied.
	AlreadySettled bool `json:"-"`
}

func newReference() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// OpenIntent validates the purchase, opens the Transaction/Payment pair and
// starts the provider interaction. The pair is created atomically before any
// provider call; a definitive provider refusal during initiation moves it
// straight to failed so no orphaned pending rows are left behind.
func (s *SettlementService) OpenIntent(ctx context.Context, userID string, in IntentInput) (IntentResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return IntentResult{}, err
	}

	course, err := s.courses.GetByID(ctx, in.CourseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return IntentResult{}, ErrInvalidCourse
	}
	if err != nil {
		return IntentResult{}, err
	}
	if !course.Purchasable() {
		return IntentResult{}, ErrInvalidCourse
	}

	enrolled, err := s.enrolls.ActiveExists(ctx, userID, course.ID)
	if err != nil {
		return IntentResult{}, err
	}
	if enrolled {
		return IntentResult{}, ErrAlreadyEnrolled
	}

	quote, err := s.pricing.Quote(ctx, course, in.CouponCode)
	if err != nil {
		return IntentResult{}, err
	}

	currency := course.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	txn, payment, err := s.txns.CreateWithPayment(ctx,
		models.Transaction{
			Reference: newReference(),
			UserID:    userID,
			Amount:    quote.FinalAmount,
			Currency:  currency,
			Type:      models.TxnCoursePurchase,
			Status:    models.TxnPending,
		},
		models.Payment{
			CourseID:       course.ID,
			OriginalPrice:  quote.OriginalPrice,
			DiscountAmount: quote.DiscountAmount,
			FinalAmount:    quote.FinalAmount,
			CouponCode:     in.CouponCode,
		},
	)
	if err != nil {
		return IntentResult{}, err
	}
	s.audit(txn.ID, "intent_opened", "course "+course.ID)

	if in.PaymentMethodID != "" {
		return s.chargeStored(ctx, user, txn, payment, in.PaymentMethodID)
	}
	return s.initialize(ctx, user, txn)
}

func (s *SettlementService) initialize(ctx context.Context, user models.User, txn models.Transaction) (IntentResult, error) {
	res, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       user.Email,
		Amount:      txn.Amount,
		Reference:   txn.Reference,
		CallbackURL: s.cfg.CallbackURL,
		Metadata: map[string]string{
			"transaction_id": txn.ID,
			"user_id":        txn.UserID,
		},
	})
	if err != nil {
		// Nothing can have been charged before a checkout session exists,
		// so any initialize failure closes the intent as failed.
		if _, markErr := s.txns.MarkFailed(ctx, txn.ID, errAudit(err)); markErr != nil {
			s.log.Error("mark failed after initialize error", "txn", txn.ID, "err", markErr)
		}
		s.audit(txn.ID, "initialize_failed", err.Error())
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return IntentResult{}, err
	}

	if res.ProviderReference != "" {
		if err := s.txns.SetProviderReference(ctx, txn.ID, res.ProviderReference); err != nil {
			s.log.Error("set provider reference", "txn", txn.ID, "err", err)
		}
	}
	metrics.IntentsOpened.Inc()
	return IntentResult{
		TransactionID:    txn.ID,
		Reference:        txn.Reference,
		Amount:           txn.Amount,
		Status:           models.TxnPending,
		AuthorizationURL: res.AuthorizationURL,
		AccessCode:       res.AccessCode,
	}, nil
}

func (s *SettlementService) chargeStored(ctx context.Context, user models.User, txn models.Transaction, payment models.Payment, methodID string) (IntentResult, error) {
	pm, err := s.methods.GetActive(ctx, methodID, user.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		// The intent was opened against an instrument we will never charge.
		if _, markErr := s.txns.MarkFailed(ctx, txn.ID, []byte(`{"error":"unknown payment method"}`)); markErr != nil {
			s.log.Error("mark failed for unknown method", "txn", txn.ID, "err", markErr)
		}
		return IntentResult{}, ErrInvalidPaymentMethod
	}
	if err != nil {
		return IntentResult{}, err
	}

	outcome, err := s.gateway.ChargeAuthorization(ctx, paystack.ChargeRequest{
		Email:             user.Email,
		Amount:            txn.Amount,
		Reference:         txn.Reference,
		AuthorizationCode: pm.AuthorizationCode,
	})
	result := IntentResult{
		TransactionID: txn.ID,
		Reference:     txn.Reference,
		Amount:        txn.Amount,
		Status:        models.TxnPending,
	}
	switch {
	case errors.Is(err, ErrGatewayUnavailable):
		// The charge may have landed; the transaction stays pending and the
		// client re-polls verification.
		s.audit(txn.ID, "charge_timeout", err.Error())
		return result, err
	case errors.Is(err, ErrProviderRejected):
		if _, markErr := s.txns.MarkFailed(ctx, txn.ID, errAudit(err)); markErr != nil {
			s.log.Error("mark failed after charge rejection", "txn", txn.ID, "err", markErr)
		}
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return IntentResult{}, err
	case err != nil:
		return IntentResult{}, err
	}

	if !outcome.Success {
		if _, markErr := s.txns.MarkFailed(ctx, txn.ID, outcome.Raw); markErr != nil {
			s.log.Error("mark failed after declined charge", "txn", txn.ID, "err", markErr)
		}
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return IntentResult{}, ErrProviderRejected
	}

	enrollmentID, _, err := s.finalizeSuccess(ctx, txn, payment, outcome)
	if err != nil {
		return IntentResult{}, err
	}
	result.Status = models.TxnSuccess
	result.EnrollmentID = enrollmentID
	return result, nil
}

// ReconcileByReference is the synchronous, client-triggered verification
// path. Already-terminal transactions short-circuit without touching the
// provider or re-running side effects.
func (s *SettlementService) ReconcileByReference(ctx context.Context, reference, expectedUserID string) (ReconcileResult, error) {
	txn, err := s.txns.GetByReference(ctx, reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReconcileResult{}, ErrTransactionNotFound
	}
	if err != nil {
		return ReconcileResult{}, err
	}
	if expectedUserID != "" && txn.UserID != expectedUserID {
		return ReconcileResult{}, ErrTransactionNotFound
	}

	if txn.Status == models.TxnSuccess {
		payment, err := s.pays.GetByTransactionID(ctx, txn.ID)
		if err != nil {
			return ReconcileResult{}, err
		}
		res := ReconcileResult{Reference: reference, Status: models.TxnSuccess, AlreadySettled: true}
		if payment.EnrollmentID != nil {
			res.EnrollmentID = *payment.EnrollmentID
		}
		return res, nil
	}
	if txn.Status == models.TxnFailed {
		return ReconcileResult{Reference: reference, Status: models.TxnFailed, AlreadySettled: true}, ErrProviderRejected
	}

	outcome, err := s.gateway.VerifyTransaction(ctx, reference)
	switch {
	case errors.Is(err, ErrGatewayUnavailable):
		// Retryable; the transaction state is untouched.
		return ReconcileResult{}, err
	case errors.Is(err, ErrProviderRejected):
		if _, markErr := s.txns.MarkFailed(ctx, txn.ID, errAudit(err)); markErr != nil {
			s.log.Error("mark failed after verify rejection", "txn", txn.ID, "err", markErr)
		}
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return ReconcileResult{Reference: reference, Status: models.TxnFailed}, ErrProviderRejected
	case err != nil:
		return ReconcileResult{}, err
	}

	if !outcome.Success {
		if _, markErr := s.txns.MarkFailed(ctx, txn.ID, outcome.Raw); markErr != nil {
			s.log.Error("mark failed after negative verify", "txn", txn.ID, "err", markErr)
		}
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return ReconcileResult{Reference: reference, Status: models.TxnFailed}, ErrProviderRejected
	}

	payment, err := s.pays.GetByTransactionID(ctx, txn.ID)
	if err != nil {
		return ReconcileResult{}, err
	}
	enrollmentID, applied, err := s.finalizeSuccess(ctx, txn, payment, outcome)
	if err != nil {
		return ReconcileResult{}, err
	}
	return ReconcileResult{
		Reference:      reference,
		Status:         models.TxnSuccess,
		EnrollmentID:   enrollmentID,
		AlreadySettled: !applied,
	}, nil
}

// finalizeSuccess runs the terminal transition and every success side effect
// as one atomic unit. The conditional status update decides a single winner
// under concurrent reconciliation; losers observe the existing outcome and
// apply nothing.
func (s *SettlementService) finalizeSuccess(ctx context.Context, txn models.Transaction, payment models.Payment, outcome paystack.ChargeOutcome) (enrollmentID string, applied bool, err error) {
	var coupon *models.Coupon
	if payment.CouponCode != "" {
		c, err := s.coupons.GetByCode(ctx, payment.CouponCode)
		if err == nil {
			coupon = &c
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return "", false, err
		}
	}

	paidAt := outcome.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	err = s.txns.WithTx(ctx, func(tx pgx.Tx) error {
		won, err := s.txns.MarkSucceeded(ctx, tx, txn.ID, outcome.Raw, outcome.Authorization.AuthorizationCode, paidAt)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		applied = true

		if txn.Type != models.TxnCoursePurchase {
			return nil
		}

		e, created, err := s.enrolls.Create(ctx, tx, models.Enrollment{
			StudentID: txn.UserID,
			CourseID:  payment.CourseID,
			Status:    models.EnrollmentActive,
		})
		if err != nil {
			return err
		}
		enrollmentID = e.ID
		if created {
			if err := s.courses.IncrementEnrollments(ctx, tx, payment.CourseID); err != nil {
				return err
			}
		}
		if err := s.pays.SetEnrollment(ctx, tx, payment.ID, e.ID); err != nil {
			return err
		}
		if coupon != nil {
			if err := s.coupons.IncrementUsage(ctx, tx, coupon.ID); err != nil {
				return err
			}
		}
		if outcome.Authorization.Reusable && outcome.Authorization.AuthorizationCode != "" {
			if err := s.methods.Upsert(ctx, tx, models.PaymentMethod{
				UserID:            txn.UserID,
				AuthorizationCode: outcome.Authorization.AuthorizationCode,
				CardType:          outcome.Authorization.CardType,
				Last4:             outcome.Authorization.Last4,
				ExpMonth:          outcome.Authorization.ExpMonth,
				ExpYear:           outcome.Authorization.ExpYear,
				Bank:              outcome.Authorization.Bank,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}

	if !applied {
		// Lost the race; report the winner's enrollment.
		p, err := s.pays.GetByTransactionID(ctx, txn.ID)
		if err != nil {
			return "", false, err
		}
		if p.EnrollmentID != nil {
			enrollmentID = *p.EnrollmentID
		}
		return enrollmentID, false, nil
	}

	metrics.SettlementsTotal.WithLabelValues("success").Inc()
	s.audit(txn.ID, "settled", "reference "+txn.Reference)
	s.publishSettled(txn, payment, enrollmentID, paidAt)
	return enrollmentID, true, nil
}

func (s *SettlementService) publishSettled(txn models.Transaction, payment models.Payment, enrollmentID string, settledAt time.Time) {
	evt := events.PaymentSettled{
		Reference:    txn.Reference,
		UserID:       txn.UserID,
		CourseID:     payment.CourseID,
		EnrollmentID: enrollmentID,
		Amount:       txn.Amount.StringFixed(2),
		Currency:     txn.Currency,
		Status:       string(models.TxnSuccess),
		CouponCode:   payment.CouponCode,
		SettledAt:    settledAt,
	}
	s.wp.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.pub.PaymentSettled(ctx, evt); err != nil {
			s.log.Warn("settlement event not published", "reference", evt.Reference, "err", err)
		}
	})
}

func (s *SettlementService) audit(entityID, action, details string) {
	id := entityID
	s.wp.Submit(func() {
		var det map[string]any
		if details != "" {
			det = map[string]any{"message": details}
		}
		if err := s.audits.Create(context.Background(), models.AuditLog{
			EntityType: "transaction",
			EntityID:   &id,
			Action:     action,
			Details:    det,
		}); err != nil {
			s.log.Warn("audit write failed", "action", action, "err", err)
		}
	})
}

func errAudit(err error) []byte {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
