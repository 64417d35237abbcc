package models

import (
	"time"
)

// WalletKind distinguishes server-custodied wallets from user-owned ones.
type WalletKind string

const (
	// WalletKindInternal wallets carry an encrypted keystore; the server
	// signs on their behalf.
	WalletKindInternal WalletKind = "internal"
	// WalletKindExternal wallets are owned by the end user; the server never
	// sees their key and only returns unsigned transaction intents.
	WalletKindExternal WalletKind = "external"
)

// User owns wallets. A row may be created lazily at first wallet login, in
// which case it carries no email.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email,omitempty" gorm:"size:255;index"`
	Role      string    `json:"role,omitempty" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wallet is a chain address bound to a user. The address never changes after
// creation. Nonce holds the active login challenge; it is cleared the moment
// a verification attempt consumes it.
type Wallet struct {
	ID       uint       `json:"id" gorm:"primaryKey"`
	UserID   uint       `json:"user_id" gorm:"not null;index"`
	Address  string     `json:"wallet_address" gorm:"not null;uniqueIndex;size:42"`
	CoinType string     `json:"coin_type" gorm:"size:16"`
	Kind     WalletKind `json:"kind" gorm:"not null;default:external;size:16"`

	// Keystore is the scrypt-encrypted key material of internal wallets,
	// empty for external ones.
	Keystore string `json:"-" gorm:"type:text"`

	Nonce         string     `json:"-" gorm:"size:64"`
	NonceIssuedAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name of the original schema.
func (Wallet) TableName() string {
	return "wallets"
}
