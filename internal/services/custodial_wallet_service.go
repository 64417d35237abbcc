package services

import (
	"context"
	"fmt"

	"wallet-backend/internal/models"
	"wallet-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// CustodialWalletService provisions server-custodied wallets: it mints a
// keypair and stores the encrypted keystore on the wallet row, so the server
// can later sign on the wallet's behalf.
type CustodialWalletService struct {
	store    repository.WalletStore
	accounts *AccountService
	coinType string
	logger   *logrus.Logger
}

// NewCustodialWalletService wires the provisioner.
func NewCustodialWalletService(store repository.WalletStore, accounts *AccountService, coinType string, logger *logrus.Logger) *CustodialWalletService {
	return &CustodialWalletService{
		store:    store,
		accounts: accounts,
		coinType: coinType,
		logger:   logger,
	}
}

// Provision creates an internal wallet for userID. The plaintext key never
// leaves the account service; only the keystore blob is persisted.
func (s *CustodialWalletService) Provision(ctx context.Context, userID uint) (*models.Wallet, error) {
	account, err := s.accounts.CreateAccount()
	if err != nil {
		return nil, err
	}

	wallet, err := s.store.CreateInternal(ctx, userID, account.Address, s.coinType, account.Keystore)
	if err != nil {
		return nil, fmt.Errorf("failed to store custodial wallet: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"address":   wallet.Address,
		"wallet_id": wallet.ID,
	}).Info("custodial wallet provisioned")

	return wallet, nil
}
