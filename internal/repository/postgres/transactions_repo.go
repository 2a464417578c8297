package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

func (r *transactionsRepo) CreateWithPayment(ctx context.Context, txn models.Transaction, p models.Payment) (models.Transaction, models.Payment, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.TransactionID = txn.ID

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
INSERT INTO transactions (id, reference, user_id, amount, currency, transaction_type, status)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING created_at`,
			txn.ID, txn.Reference, txn.UserID, txn.Amount, txn.Currency, txn.Type, txn.Status,
		).Scan(&txn.CreatedAt); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
INSERT INTO payments (id, transaction_id, course_id, original_price, discount_amount, final_amount, coupon_code)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING created_at`,
			p.ID, p.TransactionID, p.CourseID, p.OriginalPrice, p.DiscountAmount, p.FinalAmount, p.CouponCode,
		).Scan(&p.CreatedAt)
	})
	if err != nil {
		return models.Transaction{}, models.Payment{}, err
	}
	return txn, p, nil
}

func (r *transactionsRepo) GetByReference(ctx context.Context, reference string) (models.Transaction, error) {
	var t models.Transaction
	err := r.pool.QueryRow(ctx, `
SELECT id, reference, user_id, amount, currency, transaction_type, status,
       provider_reference, authorization_code, gateway_response, paid_at, created_at
  FROM transactions
 WHERE reference=$1`,
		reference,
	).Scan(&t.ID, &t.Reference, &t.UserID, &t.Amount, &t.Currency, &t.Type, &t.Status,
		&t.ProviderReference, &t.AuthorizationCode, &t.GatewayResponse, &t.PaidAt, &t.CreatedAt)
	return t, err
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, reference, user_id, amount, currency, transaction_type, status,
       provider_reference, authorization_code, gateway_response, paid_at, created_at
  FROM transactions
 WHERE user_id=$1
 ORDER BY created_at DESC
 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Reference, &t.UserID, &t.Amount, &t.Currency, &t.Type, &t.Status,
			&t.ProviderReference, &t.AuthorizationCode, &t.GatewayResponse, &t.PaidAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) SetProviderReference(ctx context.Context, id, providerRef string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE transactions SET provider_reference=$2 WHERE id=$1`,
		id, providerRef,
	)
	return err
}

// MarkSucceeded is a single-row conditional update: only a pending row can
// move to success, and only one concurrent reconciler sees the row come back.
func (r *transactionsRepo) MarkSucceeded(ctx context.Context, tx pgx.Tx, id string, rawResponse []byte, authCode string, paidAt time.Time) (bool, error) {
	var won string
	err := tx.QueryRow(ctx, `
UPDATE transactions
   SET status=$2, gateway_response=$3, authorization_code=$4, paid_at=$5
 WHERE id=$1 AND status=$6
RETURNING id`,
		id, models.TxnSuccess, rawResponse, authCode, paidAt, models.TxnPending,
	).Scan(&won)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *transactionsRepo) MarkFailed(ctx context.Context, id string, rawResponse []byte) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE transactions
   SET status=$2, gateway_response=$3
 WHERE id=$1 AND status=$4`,
		id, models.TxnFailed, rawResponse, models.TxnPending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *transactionsRepo) CountStuckPending(ctx context.Context, olderThan time.Duration) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM transactions WHERE status=$1 AND created_at < $2`,
		models.TxnPending, time.Now().Add(-olderThan),
	).Scan(&n)
	return n, err
}

func (r *transactionsRepo) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
