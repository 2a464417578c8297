package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

type couponsRepo struct{ pool *pgxpool.Pool }

func (r *couponsRepo) GetByCode(ctx context.Context, code string) (models.Coupon, error) {
	var c models.Coupon
	err := r.pool.QueryRow(ctx, `
SELECT id, code, description, discount_type, discount_value, valid_from, valid_until,
       minimum_amount, max_uses, used_count, created_at
  FROM coupons
 WHERE code=$1`,
		code,
	).Scan(&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue,
		&c.ValidFrom, &c.ValidUntil, &c.MinimumAmount, &c.MaxUses, &c.UsedCount, &c.CreatedAt)
	if err != nil {
		return models.Coupon{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT course_id FROM coupon_courses WHERE coupon_id=$1`, c.ID)
	if err != nil {
		return models.Coupon{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return models.Coupon{}, err
		}
		c.CourseIDs = append(c.CourseIDs, id)
	}
	return c, rows.Err()
}

// IncrementUsage runs on the winning reconcile's transaction so the counter
// moves exactly once per successful settlement.
func (r *couponsRepo) IncrementUsage(ctx context.Context, tx pgx.Tx, couponID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE coupons SET used_count = used_count + 1 WHERE id=$1`,
		couponID,
	)
	return err
}
