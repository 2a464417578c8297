package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

// ErrInsufficientBalance is returned when a debit would take the wallet
// balance below zero.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

type walletsRepo struct{ pool *pgxpool.Pool }

func (r *walletsRepo) GetOrCreate(ctx context.Context, userID string) (models.Wallet, error) {
	if w, err := r.get(ctx, userID); err == nil {
		return w, nil
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO wallets (id, user_id, balance, is_active)
VALUES ($1, $2, 0, true)
ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID,
	)
	if err != nil {
		return models.Wallet{}, err
	}
	return r.get(ctx, userID)
}

func (r *walletsRepo) get(ctx context.Context, userID string) (models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
SELECT id, user_id, balance, is_active, created_at, updated_at
  FROM wallets
 WHERE user_id=$1`,
		userID,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// Append writes the ledger entry and the derived balance in one database
// transaction so the cached balance always equals the sum of entries. The
// balance update is conditional: a debit that would go negative updates no
// row and the whole unit rolls back.
func (r *walletsRepo) Append(ctx context.Context, walletID string, entry models.WalletTransaction) (models.Wallet, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.WalletID = walletID
	delta := entry.Delta()

	var w models.Wallet
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
UPDATE wallets
   SET balance = balance + $2, updated_at = now()
 WHERE id = $1 AND balance + $2 >= 0
RETURNING id, user_id, balance, is_active, created_at, updated_at`,
			walletID, delta,
		).Scan(&w.ID, &w.UserID, &w.Balance, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientBalance
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
INSERT INTO wallet_transactions (id, wallet_id, transaction_type, amount, balance_after, description, reference)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			entry.ID, entry.WalletID, entry.Type, entry.Amount, w.Balance, entry.Description, entry.Reference,
		)
		return err
	})
	if err != nil {
		return models.Wallet{}, err
	}
	return w, nil
}

func (r *walletsRepo) RecentTransactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, wallet_id, transaction_type, amount, balance_after, description, reference, created_at
  FROM wallet_transactions
 WHERE wallet_id=$1
 ORDER BY created_at DESC
 LIMIT $2`,
		walletID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.BalanceAfter,
			&t.Description, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
