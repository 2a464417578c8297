package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tundeabiodun/lms-backend/internal/gateway/paystack"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

// memStore is a single in-memory ledger shared by the per-interface fakes.
// MarkSucceeded keeps the conditional-transition semantics of the real
// store: only a pending row moves, everyone else loses the race.
type memStore struct {
	mu sync.Mutex

	users       map[string]models.User
	courses     map[string]models.Course
	enrollments map[string]models.Enrollment // keyed by student|course
	txns        map[string]models.Transaction
	txnByRef    map[string]string
	payments    map[string]models.Payment // keyed by transaction ID
	coupons     map[string]models.Coupon  // keyed by code
	methods     map[string]models.PaymentMethod
	audits      []models.AuditLog

	enrollmentCounts map[string]int64
	couponUses       map[string]int
	methodUpserts    int
}

func newMemStore() *memStore {
	return &memStore{
		users:            map[string]models.User{},
		courses:          map[string]models.Course{},
		enrollments:      map[string]models.Enrollment{},
		txns:             map[string]models.Transaction{},
		txnByRef:         map[string]string{},
		payments:         map[string]models.Payment{},
		coupons:          map[string]models.Coupon{},
		methods:          map[string]models.PaymentMethod{},
		enrollmentCounts: map[string]int64{},
		couponUses:       map[string]int{},
	}
}

func enrollKey(studentID, courseID string) string { return studentID + "|" + courseID }

type fakeUsers struct{ s *memStore }

func (f fakeUsers) Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u := models.User{ID: uuid.NewString(), Username: username, Email: email, PasswordHash: passwordHash, Role: role}
	f.s.users[u.ID] = u
	return u, nil
}

func (f fakeUsers) GetByID(ctx context.Context, id string) (models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[id]
	if !ok {
		return models.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f fakeUsers) GetByEmail(ctx context.Context, email string) (models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, u := range f.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, pgx.ErrNoRows
}

type fakeCourses struct{ s *memStore }

func (f fakeCourses) GetByID(ctx context.Context, id string) (models.Course, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.courses[id]
	if !ok {
		return models.Course{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f fakeCourses) IncrementEnrollments(ctx context.Context, tx pgx.Tx, courseID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.enrollmentCounts[courseID]++
	return nil
}

type fakeEnrollments struct{ s *memStore }

func (f fakeEnrollments) ActiveExists(ctx context.Context, studentID, courseID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.enrollments[enrollKey(studentID, courseID)]
	return ok && e.Status == models.EnrollmentActive, nil
}

func (f fakeEnrollments) Create(ctx context.Context, tx pgx.Tx, e models.Enrollment) (models.Enrollment, bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	key := enrollKey(e.StudentID, e.CourseID)
	if existing, ok := f.s.enrollments[key]; ok {
		return existing, false, nil
	}
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now()
	f.s.enrollments[key] = e
	return e, true, nil
}

type fakeTxns struct{ s *memStore }

func (f fakeTxns) CreateWithPayment(ctx context.Context, txn models.Transaction, p models.Payment) (models.Transaction, models.Payment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	txn.ID = uuid.NewString()
	txn.CreatedAt = time.Now()
	p.ID = uuid.NewString()
	p.TransactionID = txn.ID
	f.s.txns[txn.ID] = txn
	f.s.txnByRef[txn.Reference] = txn.ID
	f.s.payments[txn.ID] = p
	return txn, p, nil
}

func (f fakeTxns) GetByReference(ctx context.Context, reference string) (models.Transaction, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	id, ok := f.s.txnByRef[reference]
	if !ok {
		return models.Transaction{}, pgx.ErrNoRows
	}
	return f.s.txns[id], nil
}

func (f fakeTxns) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.Transaction
	for _, t := range f.s.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f fakeTxns) SetProviderReference(ctx context.Context, id, providerRef string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.txns[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.ProviderReference = &providerRef
	f.s.txns[id] = t
	return nil
}

func (f fakeTxns) MarkSucceeded(ctx context.Context, tx pgx.Tx, id string, rawResponse []byte, authCode string, paidAt time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.txns[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if t.Status != models.TxnPending {
		return false, nil
	}
	t.Status = models.TxnSuccess
	t.GatewayResponse = rawResponse
	t.AuthorizationCode = authCode
	t.PaidAt = &paidAt
	f.s.txns[id] = t
	return true, nil
}

func (f fakeTxns) MarkFailed(ctx context.Context, id string, rawResponse []byte) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.txns[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if t.Status != models.TxnPending {
		return false, nil
	}
	t.Status = models.TxnFailed
	t.GatewayResponse = rawResponse
	f.s.txns[id] = t
	return true, nil
}

func (f fakeTxns) CountStuckPending(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f fakeTxns) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

type fakePayments struct{ s *memStore }

func (f fakePayments) GetByTransactionID(ctx context.Context, transactionID string) (models.Payment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.payments[transactionID]
	if !ok {
		return models.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f fakePayments) SetEnrollment(ctx context.Context, tx pgx.Tx, paymentID, enrollmentID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for txnID, p := range f.s.payments {
		if p.ID == paymentID {
			id := enrollmentID
			p.EnrollmentID = &id
			f.s.payments[txnID] = p
			return nil
		}
	}
	return pgx.ErrNoRows
}

type fakeCoupons struct{ s *memStore }

func (f fakeCoupons) GetByCode(ctx context.Context, code string) (models.Coupon, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.coupons[code]
	if !ok {
		return models.Coupon{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f fakeCoupons) IncrementUsage(ctx context.Context, tx pgx.Tx, couponID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.couponUses[couponID]++
	return nil
}

type fakeMethods struct{ s *memStore }

func (f fakeMethods) GetActive(ctx context.Context, id, userID string) (models.PaymentMethod, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	pm, ok := f.s.methods[id]
	if !ok || pm.UserID != userID || !pm.IsActive {
		return models.PaymentMethod{}, pgx.ErrNoRows
	}
	return pm, nil
}

func (f fakeMethods) ListByUser(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.PaymentMethod
	for _, pm := range f.s.methods {
		if pm.UserID == userID {
			out = append(out, pm)
		}
	}
	return out, nil
}

func (f fakeMethods) Upsert(ctx context.Context, tx pgx.Tx, pm models.PaymentMethod) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.methodUpserts++
	for id, existing := range f.s.methods {
		if existing.UserID == pm.UserID && existing.AuthorizationCode == pm.AuthorizationCode {
			pm.ID = id
			pm.IsActive = true
			f.s.methods[id] = pm
			return nil
		}
	}
	pm.ID = uuid.NewString()
	pm.IsActive = true
	f.s.methods[pm.ID] = pm
	return nil
}

type fakeSubs struct{ s *memStore }

func (f fakeSubs) GetByCode(ctx context.Context, code string) (models.Subscription, error) {
	return models.Subscription{}, pgx.ErrNoRows
}

func (f fakeSubs) UpdateStatusByCode(ctx context.Context, code string, status models.SubscriptionStatus, cancelledAt *time.Time) error {
	return nil
}

type fakeAudits struct{ s *memStore }

func (f fakeAudits) Create(ctx context.Context, l models.AuditLog) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.audits = append(f.s.audits, l)
	return nil
}

// fakeGateway scripts provider behavior per call and counts invocations.
type fakeGateway struct {
	mu          sync.Mutex
	initFn      func(paystack.InitializeRequest) (paystack.InitializeResult, error)
	chargeFn    func(paystack.ChargeRequest) (paystack.ChargeOutcome, error)
	verifyFn    func(string) (paystack.ChargeOutcome, error)
	verifyCalls int
}

func (g *fakeGateway) InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (paystack.InitializeResult, error) {
	return g.initFn(req)
}

func (g *fakeGateway) ChargeAuthorization(ctx context.Context, req paystack.ChargeRequest) (paystack.ChargeOutcome, error) {
	return g.chargeFn(req)
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (paystack.ChargeOutcome, error) {
	g.mu.Lock()
	g.verifyCalls++
	g.mu.Unlock()
	return g.verifyFn(reference)
}
