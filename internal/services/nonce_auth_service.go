package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"wallet-backend/internal/clients"
	"wallet-backend/internal/config"
	"wallet-backend/internal/metrics"
	"wallet-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// NonceAuthService implements the signed-challenge login: a one-time nonce is
// bound to an address, the holder signs it, and the signer recovered from the
// signature must match the address that requested the challenge.
//
// A challenge is consumed by the first verification attempt, successful or
// not, so a captured signature can never be replayed.
type NonceAuthService struct {
	store    repository.WalletStore
	chain    clients.ChainClient
	coinType string
	ttl      time.Duration
	now      func() time.Time
	logger   *logrus.Logger
}

// NewNonceAuthService wires the authenticator.
func NewNonceAuthService(store repository.WalletStore, chain clients.ChainClient, authCfg *config.AuthConfig, coinType string, logger *logrus.Logger) *NonceAuthService {
	return &NonceAuthService{
		store:    store,
		chain:    chain,
		coinType: coinType,
		ttl:      authCfg.NonceTTLDuration(),
		now:      time.Now,
		logger:   logger,
	}
}

// IssueChallenge stores a fresh nonce on the wallet bound to address,
// creating an external wallet (and its bare owning user) on first contact.
// Any previously issued challenge for the address is superseded.
func (s *NonceAuthService) IssueChallenge(ctx context.Context, address string) (string, error) {
	wallet, err := s.store.GetOrCreateExternal(ctx, address, s.coinType)
	if err != nil {
		return "", fmt.Errorf("failed to resolve wallet for challenge: %w", err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	if err := s.store.SetNonce(ctx, wallet.ID, nonce, s.now()); err != nil {
		return "", fmt.Errorf("failed to store challenge nonce: %w", err)
	}

	metrics.AuthChallengesIssued.Inc()
	s.logger.WithFields(logrus.Fields{
		"address":   wallet.Address,
		"wallet_id": wallet.ID,
	}).Debug("login challenge issued")

	return nonce, nil
}

// Verify consumes the active challenge of address and checks the signature
// over it. The consume happens before any signature work: whatever the
// outcome, the nonce is spent.
func (s *NonceAuthService) Verify(ctx context.Context, address, signatureHex string) (*SessionClaim, error) {
	wallet, err := s.store.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	nonce := wallet.Nonce
	issuedAt := wallet.NonceIssuedAt
	if nonce == "" {
		metrics.AuthVerifications.WithLabelValues("no_challenge").Inc()
		return nil, fmt.Errorf("%w: no active challenge", ErrInvalidSignature)
	}

	consumed, err := s.store.ConsumeNonce(ctx, wallet.ID, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge nonce: %w", err)
	}
	if !consumed {
		// A concurrent attempt spent the nonce first.
		metrics.AuthVerifications.WithLabelValues("replayed").Inc()
		return nil, fmt.Errorf("%w: challenge already consumed", ErrInvalidSignature)
	}

	if issuedAt == nil || s.now().Sub(*issuedAt) > s.ttl {
		metrics.AuthVerifications.WithLabelValues("expired").Inc()
		return nil, ErrChallengeExpired
	}

	recovered, err := s.chain.RecoverSigner(nonce, signatureHex)
	if err != nil {
		metrics.AuthVerifications.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if !strings.EqualFold(recovered.Hex(), address) {
		metrics.AuthVerifications.WithLabelValues("rejected").Inc()
		s.logger.WithFields(logrus.Fields{
			"claimed":   address,
			"recovered": recovered.Hex(),
		}).Warn("challenge signature recovered to a different address")
		return nil, ErrInvalidSignature
	}

	metrics.AuthVerifications.WithLabelValues("verified").Inc()
	return &SessionClaim{UserID: wallet.UserID, Address: wallet.Address}, nil
}

// generateNonce returns 16 random bytes hex-encoded.
func generateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
