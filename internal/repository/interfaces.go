package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

// Methods that must run inside the settlement's atomic unit take a pgx.Tx
// explicitly; everything else runs on the pool.

type Users interface {
	Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

type Courses interface {
	GetByID(ctx context.Context, id string) (models.Course, error)
	// IncrementEnrollments runs inside the settlement transaction.
	IncrementEnrollments(ctx context.Context, tx pgx.Tx, courseID string) error
}

type Enrollments interface {
	ActiveExists(ctx context.Context, studentID, courseID string) (bool, error)
	// Create inserts the enrollment inside the settlement transaction. The
	// returned bool is false when an enrollment already existed and the
	// insert was a no-op.
	Create(ctx context.Context, tx pgx.Tx, e models.Enrollment) (models.Enrollment, bool, error)
}

type Transactions interface {
	// CreateWithPayment atomically opens the Transaction/Payment pair.
	CreateWithPayment(ctx context.Context, txn models.Transaction, p models.Payment) (models.Transaction, models.Payment, error)
	GetByReference(ctx context.Context, reference string) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
	SetProviderReference(ctx context.Context, id, providerRef string) error
	// MarkSucceeded is the conditional pending→success transition. It
	// returns false when the row was already terminal, in which case the
	// caller lost the reconciliation race and must not apply side effects.
	MarkSucceeded(ctx context.Context, tx pgx.Tx, id string, rawResponse []byte, authCode string, paidAt time.Time) (bool, error)
	// MarkFailed is the conditional pending→failed transition.
	MarkFailed(ctx context.Context, id string, rawResponse []byte) (bool, error)
	CountStuckPending(ctx context.Context, olderThan time.Duration) (int64, error)
	// WithTx runs fn inside a single database transaction.
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type Payments interface {
	GetByTransactionID(ctx context.Context, transactionID string) (models.Payment, error)
	SetEnrollment(ctx context.Context, tx pgx.Tx, paymentID, enrollmentID string) error
}

type Wallets interface {
	// GetOrCreate lazily creates the wallet on first access.
	GetOrCreate(ctx context.Context, userID string) (models.Wallet, error)
	// Append writes a ledger entry and updates the cached balance in one
	// atomic unit, keeping balance == sum(entries). Debits that would take
	// the balance negative are rejected.
	Append(ctx context.Context, walletID string, entry models.WalletTransaction) (models.Wallet, error)
	RecentTransactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error)
}

type Coupons interface {
	GetByCode(ctx context.Context, code string) (models.Coupon, error)
	// IncrementUsage runs inside the settlement transaction.
	IncrementUsage(ctx context.Context, tx pgx.Tx, couponID string) error
}

type PaymentMethods interface {
	GetActive(ctx context.Context, id, userID string) (models.PaymentMethod, error)
	ListByUser(ctx context.Context, userID string) ([]models.PaymentMethod, error)
	// Upsert is keyed by (user, authorization code) and runs inside the
	// settlement transaction.
	Upsert(ctx context.Context, tx pgx.Tx, pm models.PaymentMethod) error
}

type Subscriptions interface {
	GetByCode(ctx context.Context, code string) (models.Subscription, error)
	UpdateStatusByCode(ctx context.Context, code string, status models.SubscriptionStatus, cancelledAt *time.Time) error
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
