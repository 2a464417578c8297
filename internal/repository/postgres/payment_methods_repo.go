package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

type paymentMethodsRepo struct{ pool *pgxpool.Pool }

func (r *paymentMethodsRepo) GetActive(ctx context.Context, id, userID string) (models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := r.pool.QueryRow(ctx, `
SELECT id, user_id, authorization_code, card_type, last4, exp_month, exp_year,
       bank, is_default, is_active, created_at
  FROM payment_methods
 WHERE id=$1 AND user_id=$2 AND is_active=true`,
		id, userID,
	).Scan(&pm.ID, &pm.UserID, &pm.AuthorizationCode, &pm.CardType, &pm.Last4,
		&pm.ExpMonth, &pm.ExpYear, &pm.Bank, &pm.IsDefault, &pm.IsActive, &pm.CreatedAt)
	return pm, err
}

func (r *paymentMethodsRepo) ListByUser(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, authorization_code, card_type, last4, exp_month, exp_year,
       bank, is_default, is_active, created_at
  FROM payment_methods
 WHERE user_id=$1 AND is_active=true
 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PaymentMethod
	for rows.Next() {
		var pm models.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.UserID, &pm.AuthorizationCode, &pm.CardType, &pm.Last4,
			&pm.ExpMonth, &pm.ExpYear, &pm.Bank, &pm.IsDefault, &pm.IsActive, &pm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

func (r *paymentMethodsRepo) Upsert(ctx context.Context, tx pgx.Tx, pm models.PaymentMethod) error {
	if pm.ID == "" {
		pm.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
INSERT INTO payment_methods (id, user_id, authorization_code, card_type, last4, exp_month, exp_year, bank, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true)
ON CONFLICT (user_id, authorization_code) DO UPDATE
   SET card_type=EXCLUDED.card_type, last4=EXCLUDED.last4,
       exp_month=EXCLUDED.exp_month, exp_year=EXCLUDED.exp_year,
       bank=EXCLUDED.bank, is_active=true`,
		pm.ID, pm.UserID, pm.AuthorizationCode, pm.CardType, pm.Last4, pm.ExpMonth, pm.ExpYear, pm.Bank,
	)
	return err
}

type subscriptionsRepo struct{ pool *pgxpool.Pool }

func (r *subscriptionsRepo) GetByCode(ctx context.Context, code string) (models.Subscription, error) {
	var s models.Subscription
	err := r.pool.QueryRow(ctx, `
SELECT id, user_id, plan, status, subscription_code, amount, next_payment_date, cancelled_at, created_at
  FROM subscriptions
 WHERE subscription_code=$1`,
		code,
	).Scan(&s.ID, &s.UserID, &s.Plan, &s.Status, &s.SubscriptionCode, &s.Amount,
		&s.NextPaymentDate, &s.CancelledAt, &s.CreatedAt)
	return s, err
}

func (r *subscriptionsRepo) UpdateStatusByCode(ctx context.Context, code string, status models.SubscriptionStatus, cancelledAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE subscriptions SET status=$2, cancelled_at=$3 WHERE subscription_code=$1`,
		code, status, cancelledAt,
	)
	return err
}
