package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a cached balance per user. The balance is derived state: it
// must always equal the sum of applied WalletTransactions, so it is only
// mutated together with a ledger append in the same database transaction.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type WalletTxnType string

const (
	WalletCredit WalletTxnType = "credit"
	WalletDebit  WalletTxnType = "debit"
)

// WalletTransaction is an immutable, append-only ledger entry.
type WalletTransaction struct {
	ID           string          `json:"id"`
	WalletID     string          `json:"wallet_id"`
	Type         WalletTxnType   `json:"transaction_type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Delta is the signed balance effect of the entry.
func (t WalletTransaction) Delta() decimal.Decimal {
	if t.Type == WalletDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
