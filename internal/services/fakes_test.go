package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"wallet-backend/internal/clients"
	"wallet-backend/internal/models"
	"wallet-backend/internal/repository"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeChain is an in-memory clients.ChainClient for exercising the engine
// without a node.
type fakeChain struct {
	mu sync.Mutex

	wrapped       common.Address
	amountsOut    []*big.Int
	amountsOutErr error

	nativeBalances map[common.Address]*big.Int
	tokenBalances  map[string]*big.Int // token/owner
	allowances     map[string]*big.Int // token/owner

	gasPrice    *big.Int
	gasEstimate uint64
	estimateErr error

	pendingNonce uint64
	chainID      *big.Int

	sent    []*types.Transaction
	sendErr error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		wrapped:        common.HexToAddress("0x000000000000000000000000000000000000aaaa"),
		nativeBalances: make(map[common.Address]*big.Int),
		tokenBalances:  make(map[string]*big.Int),
		allowances:     make(map[string]*big.Int),
		gasPrice:       big.NewInt(1_000_000_000), // 1 gwei
		gasEstimate:    21000,
		chainID:        big.NewInt(369),
	}
}

func holdingKey(token, owner common.Address) string {
	return token.Hex() + "/" + owner.Hex()
}

func (f *fakeChain) setNative(owner common.Address, wei *big.Int) {
	f.nativeBalances[owner] = wei
}

func (f *fakeChain) setToken(token, owner common.Address, wei *big.Int) {
	f.tokenBalances[holdingKey(token, owner)] = wei
}

func (f *fakeChain) setAllowance(token, owner common.Address, wei *big.Int) {
	f.allowances[holdingKey(token, owner)] = wei
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (f *fakeChain) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	return orZero(f.nativeBalances[account]), nil
}

func (f *fakeChain) TokenBalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	return orZero(f.tokenBalances[holdingKey(token, owner)]), nil
}

func (f *fakeChain) Allowance(_ context.Context, token, owner, _ common.Address) (*big.Int, error) {
	return orZero(f.allowances[holdingKey(token, owner)]), nil
}

func (f *fakeChain) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.gasEstimate, nil
}

// PendingNonceAt mirrors a node's pending view: the base nonce advanced by
// every transaction already broadcast.
func (f *fakeChain) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingNonce + uint64(len(f.sent)), nil
}

func (f *fakeChain) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	f.mu.Unlock()
	return nil
}

func (f *fakeChain) WrappedNative(_ context.Context) (common.Address, error) {
	return f.wrapped, nil
}

func (f *fakeChain) AmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if f.amountsOutErr != nil {
		return nil, f.amountsOutErr
	}
	if f.amountsOut != nil {
		return f.amountsOut, nil
	}
	// Identity quote spanning the path.
	amounts := make([]*big.Int, len(path))
	for i := range path {
		amounts[i] = new(big.Int).Set(amountIn)
	}
	return amounts, nil
}

func (f *fakeChain) RecoverSigner(message, signatureHex string) (common.Address, error) {
	return clients.RecoverPersonalSigner(message, signatureHex)
}

// fakeWalletStore is an in-memory repository.WalletStore.
type fakeWalletStore struct {
	mu      sync.Mutex
	nextID  uint
	wallets map[string]*models.Wallet // by address
}

func newFakeWalletStore() *fakeWalletStore {
	return &fakeWalletStore{wallets: make(map[string]*models.Wallet)}
}

var _ repository.WalletStore = (*fakeWalletStore)(nil)

func (s *fakeWalletStore) Create(_ context.Context, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	wallet.ID = s.nextID
	s.wallets[normalizeAddr(wallet.Address)] = wallet
	return nil
}

func (s *fakeWalletStore) GetByAddress(_ context.Context, address string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[normalizeAddr(address)]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	copied := *wallet
	return &copied, nil
}

func (s *fakeWalletStore) GetOwned(_ context.Context, userID uint, address string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[normalizeAddr(address)]
	if !ok || wallet.UserID != userID {
		return nil, repository.ErrWalletNotFound
	}
	copied := *wallet
	return &copied, nil
}

func (s *fakeWalletStore) ListByUser(_ context.Context, userID uint) ([]*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Wallet
	for _, wallet := range s.wallets {
		if wallet.UserID == userID {
			copied := *wallet
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeWalletStore) GetOrCreateExternal(ctx context.Context, address, coinType string) (*models.Wallet, error) {
	if wallet, err := s.GetByAddress(ctx, address); err == nil {
		return wallet, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	wallet := &models.Wallet{
		ID:       s.nextID,
		UserID:   s.nextID,
		Address:  normalizeAddr(address),
		CoinType: coinType,
		Kind:     models.WalletKindExternal,
	}
	s.wallets[wallet.Address] = wallet
	copied := *wallet
	return &copied, nil
}

func (s *fakeWalletStore) SetNonce(_ context.Context, walletID uint, nonce string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wallet := range s.wallets {
		if wallet.ID == walletID {
			wallet.Nonce = nonce
			at := issuedAt
			wallet.NonceIssuedAt = &at
			return nil
		}
	}
	return repository.ErrWalletNotFound
}

func (s *fakeWalletStore) ConsumeNonce(_ context.Context, walletID uint, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wallet := range s.wallets {
		if wallet.ID == walletID {
			if wallet.Nonce != nonce || nonce == "" {
				return false, nil
			}
			wallet.Nonce = ""
			wallet.NonceIssuedAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeWalletStore) AddExternal(ctx context.Context, userID uint, address, coinType string) (*models.Wallet, error) {
	wallet := &models.Wallet{
		UserID:   userID,
		Address:  address,
		CoinType: coinType,
		Kind:     models.WalletKindExternal,
	}
	if err := s.Create(ctx, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *fakeWalletStore) CreateInternal(ctx context.Context, userID uint, address, coinType, keystore string) (*models.Wallet, error) {
	wallet := &models.Wallet{
		UserID:   userID,
		Address:  address,
		CoinType: coinType,
		Kind:     models.WalletKindInternal,
		Keystore: keystore,
	}
	if err := s.Create(ctx, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

func normalizeAddr(address string) string {
	return common.HexToAddress(address).Hex()
}
