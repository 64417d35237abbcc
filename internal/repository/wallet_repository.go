// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"wallet-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrWalletNotFound is returned when no wallet row matches the query.
var ErrWalletNotFound = errors.New("wallet not found")

// WalletStore defines the interface for wallet data access
type WalletStore interface {
	// Basic CRUD operations
	Create(ctx context.Context, wallet *models.Wallet) error
	GetByAddress(ctx context.Context, address string) (*models.Wallet, error)
	GetOwned(ctx context.Context, userID uint, address string) (*models.Wallet, error)
	ListByUser(ctx context.Context, userID uint) ([]*models.Wallet, error)

	// Challenge nonce lifecycle
	GetOrCreateExternal(ctx context.Context, address, coinType string) (*models.Wallet, error)
	SetNonce(ctx context.Context, walletID uint, nonce string, issuedAt time.Time) error
	ConsumeNonce(ctx context.Context, walletID uint, nonce string) (bool, error)

	// AddExternal binds an already-known address to an existing user.
	AddExternal(ctx context.Context, userID uint, address, coinType string) (*models.Wallet, error)
	// CreateInternal stores a custodial wallet with its encrypted keystore.
	CreateInternal(ctx context.Context, userID uint, address, coinType, keystore string) (*models.Wallet, error)
}

// walletStore implements WalletStore
type walletStore struct {
	db *gorm.DB
}

// NewWalletStore creates a new WalletStore instance
func NewWalletStore(db *gorm.DB) WalletStore {
	return &walletStore{db: db}
}

// Create creates a new wallet row
func (r *walletStore) Create(ctx context.Context, wallet *models.Wallet) error {
	wallet.Address = normalize(wallet.Address)
	return r.db.WithContext(ctx).Create(wallet).Error
}

// GetByAddress retrieves a wallet by its chain address
func (r *walletStore) GetByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).Where("address = ?", normalize(address)).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetOwned retrieves a wallet by address, scoped to its owning user
func (r *walletStore) GetOwned(ctx context.Context, userID uint, address string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND address = ?", userID, normalize(address)).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ListByUser lists all wallets of a user
func (r *walletStore) ListByUser(ctx context.Context, userID uint) ([]*models.Wallet, error) {
	var wallets []*models.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// GetOrCreateExternal returns the wallet bound to address, creating a bare
// user plus an external wallet row when none exists yet. The insert relies on
// the unique address index, so two concurrent first logins cannot both create
// a row.
func (r *walletStore) GetOrCreateExternal(ctx context.Context, address, coinType string) (*models.Wallet, error) {
	addr := normalize(address)

	wallet, err := r.GetByAddress(ctx, addr)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	created := &models.Wallet{Address: addr, CoinType: coinType, Kind: models.WalletKindExternal}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := &models.User{}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		created.UserID = user.ID
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).Create(created).Error
	})
	if err != nil {
		return nil, err
	}

	// Re-read so a concurrent winner's row is returned instead of the
	// conflicting insert.
	return r.GetByAddress(ctx, addr)
}

// SetNonce overwrites the active login challenge of a wallet
func (r *walletStore) SetNonce(ctx context.Context, walletID uint, nonce string, issuedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"nonce":           nonce,
			"nonce_issued_at": issuedAt,
		}).Error
}

// ConsumeNonce clears the challenge only if it still matches the value the
// caller read. A false return means a concurrent verification attempt won the
// race and the nonce must be treated as spent.
func (r *walletStore) ConsumeNonce(ctx context.Context, walletID uint, nonce string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND nonce = ?", walletID, nonce).
		Updates(map[string]interface{}{
			"nonce":           "",
			"nonce_issued_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AddExternal binds an external address to an existing user
func (r *walletStore) AddExternal(ctx context.Context, userID uint, address, coinType string) (*models.Wallet, error) {
	wallet := &models.Wallet{
		UserID:   userID,
		Address:  normalize(address),
		CoinType: coinType,
		Kind:     models.WalletKindExternal,
	}
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return nil, err
	}
	return wallet, nil
}

// CreateInternal stores a custodial wallet with its keystore blob
func (r *walletStore) CreateInternal(ctx context.Context, userID uint, address, coinType, keystore string) (*models.Wallet, error) {
	wallet := &models.Wallet{
		UserID:   userID,
		Address:  normalize(address),
		CoinType: coinType,
		Kind:     models.WalletKindInternal,
		Keystore: keystore,
	}
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return nil, err
	}
	return wallet, nil
}

// normalize stores addresses lowercased so lookups are case-insensitive.
func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
