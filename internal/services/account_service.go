package services

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Account is a freshly generated custodial keypair. The private key never
// leaves CreateAccount unencrypted.
type Account struct {
	Address  string
	Keystore string // web3 keystore JSON, scrypt-encrypted with the server secret
}

// AccountService mints keypairs for internal (server-custodied) wallets.
type AccountService struct {
	secret  string
	scryptN int
	scryptP int
}

// NewAccountService uses the standard scrypt cost parameters.
func NewAccountService(secret string) *AccountService {
	return NewAccountServiceWithScrypt(secret, keystore.StandardScryptN, keystore.StandardScryptP)
}

// NewAccountServiceWithScrypt allows cheaper scrypt parameters, e.g.
// keystore.LightScryptN in tests.
func NewAccountServiceWithScrypt(secret string, scryptN, scryptP int) *AccountService {
	return &AccountService{secret: secret, scryptN: scryptN, scryptP: scryptP}
}

// CreateAccount generates a new chain keypair and encrypts the private key
// with the server secret.
func (s *AccountService) CreateAccount() (*Account, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}

	encrypted, err := keystore.EncryptKey(key, s.secret, s.scryptN, s.scryptP)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt keystore: %w", err)
	}

	return &Account{
		Address:  key.Address.Hex(),
		Keystore: string(encrypted),
	}, nil
}
