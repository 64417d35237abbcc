package services

import (
	"context"
	"fmt"
	"math/big"

	"wallet-backend/internal/clients"

	"github.com/ethereum/go-ethereum/common"
)

// AllowanceSnapshot captures, in integer minor units, what an owner can spend
// right now: the router allowance on a token, the owner's native balance, and
// the owner's token balance.
type AllowanceSnapshot struct {
	Allowance     *big.Int
	NativeBalance *big.Int
	TokenBalance  *big.Int
}

// HasAllowance reports whether the spender may move at least amount.
func (s *AllowanceSnapshot) HasAllowance(amount *big.Int) bool {
	return s.Allowance.Cmp(amount) >= 0
}

// HasNative reports whether the native balance covers at least amount.
func (s *AllowanceSnapshot) HasNative(amount *big.Int) bool {
	return s.NativeBalance.Cmp(amount) >= 0
}

// HasToken reports whether the token balance covers at least amount.
func (s *AllowanceSnapshot) HasToken(amount *big.Int) bool {
	return s.TokenBalance.Cmp(amount) >= 0
}

// AllowanceChecker fetches spendability snapshots from the chain.
type AllowanceChecker struct {
	chain clients.ChainClient
}

// NewAllowanceChecker wires the checker.
func NewAllowanceChecker(chain clients.ChainClient) *AllowanceChecker {
	return &AllowanceChecker{chain: chain}
}

// Snapshot queries the allowance granted by owner to spender on token, the
// owner's native balance, and the owner's token balance. It never partially
// succeeds: one failed query fails the snapshot.
func (c *AllowanceChecker) Snapshot(ctx context.Context, token, owner, spender common.Address) (*AllowanceSnapshot, error) {
	allowance, err := c.chain.Allowance(ctx, token, owner, spender)
	if err != nil {
		return nil, fmt.Errorf("allowance query failed: %w", err)
	}

	nativeBalance, err := c.chain.BalanceAt(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("native balance query failed: %w", err)
	}

	tokenBalance, err := c.chain.TokenBalanceOf(ctx, token, owner)
	if err != nil {
		return nil, fmt.Errorf("token balance query failed: %w", err)
	}

	return &AllowanceSnapshot{
		Allowance:     allowance,
		NativeBalance: nativeBalance,
		TokenBalance:  tokenBalance,
	}, nil
}
