package services

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"
	"testing"
	"time"

	"wallet-backend/internal/clients"
	"wallet-backend/internal/config"
	"wallet-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	routerAddr   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	targetWallet = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

func newTestBuilder(t *testing.T, chain *fakeChain) (*TransactionBuilder, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	custodian := crypto.PubkeyToAddress(key.PublicKey)

	cfg := &config.ChainConfig{
		RouterContract:      routerAddr.Hex(),
		CustodianPrivateKey: hex.EncodeToString(crypto.FromECDSA(key)),
	}

	builder, err := NewTransactionBuilder(chain, NewAllowanceChecker(chain), NewSwapRouter(chain, testLogger()), nil, cfg, testLogger())
	require.NoError(t, err)
	return builder, custodian
}

func wei(t *testing.T, amount string) *big.Int {
	t.Helper()
	v, err := utils.ToWei(amount)
	require.NoError(t, err)
	return v
}

func TestBuildTransferNative(t *testing.T) {
	chain := newFakeChain()
	builder, _ := newTestBuilder(t, chain)

	from := common.HexToAddress("0x4444444444444444444444444444444444444444")
	to := common.HexToAddress("0x5555555555555555555555555555555555555555")
	chain.setNative(from, wei(t, "2"))
	chain.pendingNonce = 7

	quote, err := builder.BuildTransfer(context.Background(), &TransferRequest{
		From:   from.Hex(),
		To:     to.Hex(),
		Token:  "native",
		Amount: "1.5",
	})
	require.NoError(t, err)

	assert.Equal(t, to.Hex(), quote.Tx.To)
	assert.Equal(t, "0x14d1120d7b160000", quote.Tx.Value) // 1.5e18
	assert.Equal(t, "0x7", quote.Tx.Nonce)
	// 21000 gas at 1 gwei
	assert.Equal(t, "0.000021", quote.Commission)
	assert.Empty(t, chain.sent, "transfer preparation must not broadcast")
}

func TestBuildTransferNativeInsufficientBalance(t *testing.T) {
	chain := newFakeChain()
	builder, _ := newTestBuilder(t, chain)

	from := common.HexToAddress("0x4444444444444444444444444444444444444444")
	chain.setNative(from, wei(t, "1"))

	_, err := builder.BuildTransfer(context.Background(), &TransferRequest{
		From:   from.Hex(),
		To:     tokenB.Hex(),
		Token:  "native",
		Amount: "1.5",
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, chain.sent)
}

func TestBuildTransferNativeBalanceMustCoverFee(t *testing.T) {
	chain := newFakeChain()
	builder, _ := newTestBuilder(t, chain)

	from := common.HexToAddress("0x4444444444444444444444444444444444444444")
	// Exactly the value, nothing left for the commission.
	chain.setNative(from, wei(t, "1.5"))

	_, err := builder.BuildTransfer(context.Background(), &TransferRequest{
		From:   from.Hex(),
		To:     tokenB.Hex(),
		Token:  "native",
		Amount: "1.5",
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestBuildTransferToken(t *testing.T) {
	chain := newFakeChain()
	builder, _ := newTestBuilder(t, chain)

	from := common.HexToAddress("0x4444444444444444444444444444444444444444")
	chain.setNative(from, wei(t, "1"))
	chain.setToken(tokenA, from, wei(t, "10"))

	quote, err := builder.BuildTransfer(context.Background(), &TransferRequest{
		From:   from.Hex(),
		To:     tokenB.Hex(),
		Token:  tokenA.Hex(),
		Amount: "10",
	})
	require.NoError(t, err)

	// Token transfers target the token contract with zero value.
	assert.Equal(t, tokenA.Hex(), quote.Tx.To)
	assert.Equal(t, "0x0", quote.Tx.Value)
	assert.NotEqual(t, "0x", quote.Tx.Data)
}

func TestBuildTransferTokenInsufficientBalance(t *testing.T) {
	chain := newFakeChain()
	builder, _ := newTestBuilder(t, chain)

	from := common.HexToAddress("0x4444444444444444444444444444444444444444")
	chain.setNative(from, wei(t, "1"))
	chain.setToken(tokenA, from, wei(t, "5"))

	_, err := builder.BuildTransfer(context.Background(), &TransferRequest{
		From:   from.Hex(),
		To:     tokenB.Hex(),
		Token:  tokenA.Hex(),
		Amount: "10",
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestExecuteSwapNativeToToken(t *testing.T) {
	chain := newFakeChain()
	builder, custodian := newTestBuilder(t, chain)
	chain.setNative(custodian, wei(t, "5"))
	builder.router.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	result, err := builder.ExecuteSwap(context.Background(), &SwapRequest{
		Target:   targetWallet.Hex(),
		From:     chain.wrapped.Hex(),
		To:       tokenA.Hex(),
		Amount:   "1",
		Slippage: 5,
		Deadline: 10,
	})
	require.NoError(t, err)

	require.Len(t, chain.sent, 1)
	sent := chain.sent[0]
	assert.Equal(t, routerAddr, *sent.To())
	assert.Equal(t, wei(t, "1"), sent.Value())
	assert.Equal(t, result.TxHash, sent.Hash().Hex())
	assert.Len(t, result.Route, 2)

	// The swap output goes to the user's target wallet, not the custodian.
	expected, err := clients.PackSwapExactNativeForTokens(
		minAmountOut(wei(t, "1"), 5),
		[]common.Address{chain.wrapped, tokenA},
		targetWallet,
		big.NewInt(1_700_000_600),
	)
	require.NoError(t, err)
	assert.Equal(t, expected, sent.Data())
}

func TestExecuteSwapInsufficientNative(t *testing.T) {
	chain := newFakeChain()
	builder, _ := newTestBuilder(t, chain)

	_, err := builder.ExecuteSwap(context.Background(), &SwapRequest{
		Target:   tokenA.Hex(),
		From:     chain.wrapped.Hex(),
		To:       tokenA.Hex(),
		Amount:   "1",
		Deadline: 10,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, chain.sent, "insufficient balance must never broadcast")
}

func TestExecuteSwapTokenToToken(t *testing.T) {
	chain := newFakeChain()
	builder, custodian := newTestBuilder(t, chain)
	chain.setNative(custodian, wei(t, "1"))
	chain.setToken(tokenA, custodian, wei(t, "10"))
	chain.setAllowance(tokenA, custodian, new(big.Int).Set(wei(t, "100")))
	builder.router.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	result, err := builder.ExecuteSwap(context.Background(), &SwapRequest{
		Target:   targetWallet.Hex(),
		From:     tokenA.Hex(),
		To:       tokenB.Hex(),
		Amount:   "10",
		Slippage: 5,
		Deadline: 10,
	})
	require.NoError(t, err)

	require.Len(t, chain.sent, 1)
	sent := chain.sent[0]
	assert.Equal(t, routerAddr, *sent.To())
	assert.Zero(t, sent.Value().Sign())
	assert.Equal(t, []string{tokenA.Hex(), chain.wrapped.Hex(), tokenB.Hex()}, result.Route)

	expected, err := clients.PackSwapExactTokensForTokens(
		wei(t, "10"),
		minAmountOut(wei(t, "10"), 5),
		[]common.Address{tokenA, chain.wrapped, tokenB},
		targetWallet,
		big.NewInt(1_700_000_600),
	)
	require.NoError(t, err)
	assert.Equal(t, expected, sent.Data())
}

func TestExecuteSwapTokenToNativePaysTarget(t *testing.T) {
	chain := newFakeChain()
	builder, custodian := newTestBuilder(t, chain)
	chain.setNative(custodian, wei(t, "1"))
	chain.setToken(tokenA, custodian, wei(t, "10"))
	chain.setAllowance(tokenA, custodian, wei(t, "100"))
	builder.router.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	_, err := builder.ExecuteSwap(context.Background(), &SwapRequest{
		Target:   targetWallet.Hex(),
		From:     tokenA.Hex(),
		To:       chain.wrapped.Hex(),
		Amount:   "10",
		Deadline: 10,
	})
	require.NoError(t, err)

	require.Len(t, chain.sent, 1)
	expected, err := clients.PackSwapExactTokensForNative(
		wei(t, "10"),
		minAmountOut(wei(t, "10"), 0),
		[]common.Address{tokenA, chain.wrapped},
		targetWallet,
		big.NewInt(1_700_000_600),
	)
	require.NoError(t, err)
	assert.Equal(t, expected, chain.sent[0].Data())
}

func TestExecuteSwapSerializesCustodianNonce(t *testing.T) {
	chain := newFakeChain()
	builder, custodian := newTestBuilder(t, chain)
	chain.setNative(custodian, wei(t, "100"))

	const swaps = 8
	var wg sync.WaitGroup
	for i := 0; i < swaps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := builder.ExecuteSwap(context.Background(), &SwapRequest{
				Target:   targetWallet.Hex(),
				From:     chain.wrapped.Hex(),
				To:       tokenA.Hex(),
				Amount:   "1",
				Deadline: 10,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every broadcast got a distinct, gap-free account nonce.
	require.Len(t, chain.sent, swaps)
	seen := make(map[uint64]bool, swaps)
	for _, tx := range chain.sent {
		seen[tx.Nonce()] = true
	}
	for nonce := uint64(0); nonce < swaps; nonce++ {
		assert.True(t, seen[nonce], "nonce %d missing or duplicated", nonce)
	}
}

func TestExecuteSwapBroadcastsApprovalWhenAllowanceLow(t *testing.T) {
	chain := newFakeChain()
	builder, custodian := newTestBuilder(t, chain)
	chain.setNative(custodian, wei(t, "1"))
	chain.setToken(tokenA, custodian, wei(t, "10"))
	// No allowance set.

	result, err := builder.ExecuteSwap(context.Background(), &SwapRequest{
		Target:   tokenA.Hex(),
		From:     tokenA.Hex(),
		To:       tokenB.Hex(),
		Amount:   "10",
		Deadline: 10,
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	var approvalErr *ApprovalRequiredError
	require.ErrorAs(t, err, &approvalErr)
	assert.Equal(t, tokenA.Hex(), approvalErr.Token)

	// The approval itself went out, targeting the token contract.
	require.Len(t, chain.sent, 1)
	sent := chain.sent[0]
	assert.Equal(t, tokenA, *sent.To())
	assert.Equal(t, approvalErr.TxHash, sent.Hash().Hex())
}

func TestExecuteSwapInsufficientTokenBalance(t *testing.T) {
	chain := newFakeChain()
	builder, custodian := newTestBuilder(t, chain)
	chain.setNative(custodian, wei(t, "1"))
	chain.setToken(tokenA, custodian, wei(t, "1"))

	_, err := builder.ExecuteSwap(context.Background(), &SwapRequest{
		Target:   tokenA.Hex(),
		From:     tokenA.Hex(),
		To:       tokenB.Hex(),
		Amount:   "10",
		Deadline: 10,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, chain.sent)
}

func TestExecuteSwapFeeExceedsNativeBalance(t *testing.T) {
	chain := newFakeChain()
	builder, custodian := newTestBuilder(t, chain)
	chain.setToken(tokenA, custodian, wei(t, "10"))
	chain.setAllowance(tokenA, custodian, wei(t, "100"))
	// Nothing to pay the commission with.

	_, err := builder.ExecuteSwap(context.Background(), &SwapRequest{
		Target:   tokenA.Hex(),
		From:     tokenA.Hex(),
		To:       tokenB.Hex(),
		Amount:   "10",
		Deadline: 10,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, chain.sent, "fee shortfall must never broadcast")
}

func TestNewTransactionBuilderRejectsMismatchedCustodian(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := &config.ChainConfig{
		RouterContract:      routerAddr.Hex(),
		CustodianPrivateKey: hex.EncodeToString(crypto.FromECDSA(key)),
		CustodianAddress:    tokenA.Hex(), // not the key's address
	}
	chain := newFakeChain()
	_, err = NewTransactionBuilder(chain, NewAllowanceChecker(chain), NewSwapRouter(chain, testLogger()), nil, cfg, testLogger())
	assert.Error(t, err)
}

func TestExecuteSwapWithoutCustodianKey(t *testing.T) {
	chain := newFakeChain()
	cfg := &config.ChainConfig{RouterContract: routerAddr.Hex()}
	builder, err := NewTransactionBuilder(chain, NewAllowanceChecker(chain), NewSwapRouter(chain, testLogger()), nil, cfg, testLogger())
	require.NoError(t, err)

	_, err = builder.ExecuteSwap(context.Background(), &SwapRequest{
		Target:   tokenA.Hex(),
		From:     tokenA.Hex(),
		To:       tokenB.Hex(),
		Amount:   "1",
		Deadline: 10,
	})
	assert.Error(t, err)
}
