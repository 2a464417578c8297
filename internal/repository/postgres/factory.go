package postgres

import (
	repo "github.com/tundeabiodun/lms-backend/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repositories struct {
	Users          repo.Users
	Courses        repo.Courses
	Enrollments    repo.Enrollments
	Transactions   repo.Transactions
	Payments       repo.Payments
	Wallets        repo.Wallets
	Coupons        repo.Coupons
	PaymentMethods repo.PaymentMethods
	Subscriptions  repo.Subscriptions
	AuditLogs      repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:          &usersRepo{pool},
		Courses:        &coursesRepo{pool},
		Enrollments:    &enrollmentsRepo{pool},
		Transactions:   &transactionsRepo{pool},
		Payments:       &paymentsRepo{pool},
		Wallets:        &walletsRepo{pool},
		Coupons:        &couponsRepo{pool},
		PaymentMethods: &paymentMethodsRepo{pool},
		Subscriptions:  &subscriptionsRepo{pool},
		AuditLogs:      &auditLogsRepo{pool},
	}
}
