package services

import (
	"context"

	"github.com/tundeabiodun/lms-backend/internal/models"
	repo "github.com/tundeabiodun/lms-backend/internal/repository"
)

// WalletService is the read surface over the wallet ledger. Wallet-funded
// checkout is deliberately not offered; balances only move through explicit
// ledger appends.
type WalletService struct {
	wallets repo.Wallets
}

func NewWalletService(wallets repo.Wallets) *WalletService {
	return &WalletService{wallets: wallets}
}

type WalletView struct {
	models.Wallet
	RecentTransactions []models.WalletTransaction `json:"recent_transactions"`
}

// Current returns the caller's wallet, creating it lazily on first access.
func (s *WalletService) Current(ctx context.Context, userID string) (WalletView, error) {
	w, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return WalletView{}, err
	}
	recent, err := s.wallets.RecentTransactions(ctx, w.ID, 5)
	if err != nil {
		return WalletView{}, err
	}
	return WalletView{Wallet: w, RecentTransactions: recent}, nil
}

// Credit appends a credit entry to the ledger; the cached balance moves in
// the same atomic unit.
func (s *WalletService) Credit(ctx context.Context, userID string, entry models.WalletTransaction) (models.Wallet, error) {
	w, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	entry.Type = models.WalletCredit
	return s.wallets.Append(ctx, w.ID, entry)
}
