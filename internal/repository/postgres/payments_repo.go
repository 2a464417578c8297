package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

type paymentsRepo struct{ pool *pgxpool.Pool }

func (r *paymentsRepo) GetByTransactionID(ctx context.Context, transactionID string) (models.Payment, error) {
	var p models.Payment
	err := r.pool.QueryRow(ctx, `
SELECT id, transaction_id, course_id, original_price, discount_amount, final_amount,
       coupon_code, enrollment_id, created_at
  FROM payments
 WHERE transaction_id=$1`,
		transactionID,
	).Scan(&p.ID, &p.TransactionID, &p.CourseID, &p.OriginalPrice, &p.DiscountAmount,
		&p.FinalAmount, &p.CouponCode, &p.EnrollmentID, &p.CreatedAt)
	return p, err
}

func (r *paymentsRepo) SetEnrollment(ctx context.Context, tx pgx.Tx, paymentID, enrollmentID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE payments SET enrollment_id=$2 WHERE id=$1`,
		paymentID, enrollmentID,
	)
	return err
}
