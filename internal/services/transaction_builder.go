package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"wallet-backend/internal/clients"
	"wallet-backend/internal/config"
	"wallet-backend/internal/events"
	"wallet-backend/internal/metrics"
	"wallet-backend/internal/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// NativeToken marks a transfer of the chain's own coin instead of an ERC20.
const NativeToken = "native"

// TransferRequest asks for an unsigned transfer transaction. Token is either
// an ERC20 contract address or the native marker.
type TransferRequest struct {
	From   string `json:"from" binding:"required"`
	To     string `json:"to" binding:"required"`
	Token  string `json:"token" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// TransactionIntent is an unsigned transaction in the hex encoding wallets
// expect, ready to be signed client-side and broadcast.
type TransactionIntent struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	Data         string `json:"data"`
	Gas          string `json:"gas"`
	MaxFeePerGas string `json:"maxFeePerGas"`
	Nonce        string `json:"nonce"`
}

// TransferQuote is an unsigned transfer plus its estimated network commission
// in decimal coin units.
type TransferQuote struct {
	Tx         *TransactionIntent `json:"tx"`
	Commission string             `json:"commission"`
}

// TransactionResult reports a transaction the engine signed and broadcast.
type TransactionResult struct {
	TxHash     string   `json:"tx"`
	Route      []string `json:"route,omitempty"`
	Commission string   `json:"commission"`
}

// TransactionBuilder prepares unsigned transfers for external wallets and
// signs and broadcasts swaps from the custodial account.
type TransactionBuilder struct {
	chain   clients.ChainClient
	checker *AllowanceChecker
	router  *SwapRouter
	events  *events.Publisher
	logger  *logrus.Logger

	routerAddr    common.Address
	custodianKey  *ecdsa.PrivateKey
	custodianAddr common.Address

	mu          sync.Mutex
	senderLocks map[common.Address]*sync.Mutex
}

// NewTransactionBuilder wires the builder. The custodian key is optional;
// without it only transfer preparation works and swaps are rejected.
func NewTransactionBuilder(chain clients.ChainClient, checker *AllowanceChecker, router *SwapRouter, publisher *events.Publisher, cfg *config.ChainConfig, logger *logrus.Logger) (*TransactionBuilder, error) {
	b := &TransactionBuilder{
		chain:       chain,
		checker:     checker,
		router:      router,
		events:      publisher,
		logger:      logger,
		routerAddr:  common.HexToAddress(cfg.RouterContract),
		senderLocks: make(map[common.Address]*sync.Mutex),
	}

	if cfg.CustodianPrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.CustodianPrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid custodian private key: %w", err)
		}
		b.custodianKey = key
		b.custodianAddr = crypto.PubkeyToAddress(key.PublicKey)
		if cfg.CustodianAddress != "" && !strings.EqualFold(cfg.CustodianAddress, b.custodianAddr.Hex()) {
			return nil, fmt.Errorf("custodian key does not match configured address %s", cfg.CustodianAddress)
		}
	}

	return b, nil
}

// BuildTransfer prepares an unsigned transfer from an externally held wallet.
// The balance of the sender must cover the value plus the estimated
// commission before the intent is handed out.
func (b *TransactionBuilder) BuildTransfer(ctx context.Context, req *TransferRequest) (*TransferQuote, error) {
	if !common.IsHexAddress(req.From) || !common.IsHexAddress(req.To) {
		return nil, fmt.Errorf("invalid address in transfer request")
	}

	amount, err := utils.ToWei(req.Amount)
	if err != nil {
		return nil, err
	}

	from := common.HexToAddress(req.From)
	to := common.HexToAddress(req.To)

	gasPrice, err := b.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	var (
		msg   ethereum.CallMsg
		value *big.Int
		data  []byte
	)

	if strings.EqualFold(req.Token, NativeToken) {
		balance, err := b.chain.BalanceAt(ctx, from)
		if err != nil {
			return nil, err
		}
		// Checked before estimation: a value above the balance makes the
		// node reject the estimate call itself.
		if balance.Cmp(amount) < 0 {
			return nil, ErrInsufficientBalance
		}
		value = amount
		msg = ethereum.CallMsg{From: from, To: &to, Value: amount}
	} else {
		if !common.IsHexAddress(req.Token) {
			return nil, fmt.Errorf("invalid token address: %s", req.Token)
		}
		token := common.HexToAddress(req.Token)

		tokenBalance, err := b.chain.TokenBalanceOf(ctx, token, from)
		if err != nil {
			return nil, err
		}
		if tokenBalance.Cmp(amount) < 0 {
			return nil, ErrInsufficientBalance
		}

		data, err = clients.PackERC20Transfer(to, amount)
		if err != nil {
			return nil, fmt.Errorf("failed to pack transfer calldata: %w", err)
		}
		value = new(big.Int)
		to = token
		msg = ethereum.CallMsg{From: from, To: &token, Data: data}
	}

	gas, err := b.chain.EstimateGas(ctx, msg)
	if err != nil {
		return nil, err
	}

	commission := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))

	nativeBalance, err := b.chain.BalanceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Add(value, commission)
	if nativeBalance.Cmp(required) < 0 {
		return nil, ErrInsufficientBalance
	}

	nonce, err := b.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}

	metrics.TransfersPrepared.Inc()
	b.logger.WithFields(logrus.Fields{
		"from":       from.Hex(),
		"to":         to.Hex(),
		"commission": commission.String(),
	}).Debug("transfer prepared")

	return &TransferQuote{
		Tx: &TransactionIntent{
			From:         from.Hex(),
			To:           to.Hex(),
			Value:        hexutil.EncodeBig(value),
			Data:         hexutil.Encode(data),
			Gas:          hexutil.EncodeUint64(gas),
			MaxFeePerGas: hexutil.EncodeBig(gasPrice),
			Nonce:        hexutil.EncodeUint64(nonce),
		},
		Commission: utils.FromWei(commission),
	}, nil
}

// ExecuteSwap plans, signs and broadcasts a swap from the custodial account.
// When the router allowance on the input token is too low, an unlimited
// approval is broadcast instead and an ApprovalRequiredError is returned so
// the caller can retry the swap after the approval mines.
func (b *TransactionBuilder) ExecuteSwap(ctx context.Context, req *SwapRequest) (*TransactionResult, error) {
	if b.custodianKey == nil {
		return nil, fmt.Errorf("custodian signer not configured")
	}
	if !common.IsHexAddress(req.Target) {
		return nil, fmt.Errorf("invalid target wallet address: %s", req.Target)
	}
	// The swap output is delivered to the user's wallet, not the custodian.
	target := common.HexToAddress(req.Target)

	plan, err := b.router.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	fromToken := plan.Route[0]
	snapshot, err := b.checker.Snapshot(ctx, fromToken, b.custodianAddr, b.routerAddr)
	if err != nil {
		return nil, err
	}

	var (
		data  []byte
		value = new(big.Int)
	)

	switch plan.Case {
	case TradeNativeToToken:
		if !snapshot.HasNative(plan.AmountIn) {
			return nil, ErrInsufficientBalance
		}
		value = plan.AmountIn
		data, err = clients.PackSwapExactNativeForTokens(plan.MinAmountOut, plan.Route, target, plan.Deadline)

	case TradeTokenToNative:
		if !snapshot.HasToken(plan.AmountIn) {
			return nil, ErrInsufficientBalance
		}
		if !snapshot.HasAllowance(plan.AmountIn) {
			return b.broadcastApproval(ctx, fromToken)
		}
		data, err = clients.PackSwapExactTokensForNative(plan.AmountIn, plan.MinAmountOut, plan.Route, target, plan.Deadline)

	case TradeTokenToToken:
		if !snapshot.HasToken(plan.AmountIn) {
			return nil, ErrInsufficientBalance
		}
		if !snapshot.HasAllowance(plan.AmountIn) {
			return b.broadcastApproval(ctx, fromToken)
		}
		data, err = clients.PackSwapExactTokensForTokens(plan.AmountIn, plan.MinAmountOut, plan.Route, target, plan.Deadline)

	default:
		return nil, fmt.Errorf("unknown trade case: %s", plan.Case)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pack swap calldata: %w", err)
	}

	txHash, commission, err := b.signAndBroadcast(ctx, b.routerAddr, value, data, snapshot.NativeBalance)
	if err != nil {
		return nil, err
	}

	metrics.TransactionsBroadcast.WithLabelValues("swap").Inc()
	b.events.PublishTransaction(&events.TransactionEvent{
		Kind:       "swap",
		TxHash:     txHash,
		From:       b.custodianAddr.Hex(),
		To:         b.routerAddr.Hex(),
		Route:      plan.RouteHex(),
		Commission: commission,
	})
	b.logger.WithFields(logrus.Fields{
		"tx_hash":    txHash,
		"trade_case": plan.Case,
		"route":      plan.RouteHex(),
	}).Info("swap broadcast")

	return &TransactionResult{
		TxHash:     txHash,
		Route:      plan.RouteHex(),
		Commission: commission,
	}, nil
}

// broadcastApproval grants the router an unlimited allowance on token. It
// always returns a non-nil error carrying the approval hash.
func (b *TransactionBuilder) broadcastApproval(ctx context.Context, token common.Address) (*TransactionResult, error) {
	data, err := clients.PackERC20Approve(b.routerAddr, clients.MaxUint256)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve calldata: %w", err)
	}

	nativeBalance, err := b.chain.BalanceAt(ctx, b.custodianAddr)
	if err != nil {
		return nil, err
	}

	txHash, commission, err := b.signAndBroadcast(ctx, token, new(big.Int), data, nativeBalance)
	if err != nil {
		return nil, err
	}

	metrics.TransactionsBroadcast.WithLabelValues("approve").Inc()
	b.events.PublishTransaction(&events.TransactionEvent{
		Kind:       "approve",
		TxHash:     txHash,
		From:       b.custodianAddr.Hex(),
		To:         token.Hex(),
		Commission: commission,
	})
	b.logger.WithFields(logrus.Fields{
		"tx_hash": txHash,
		"token":   token.Hex(),
	}).Info("router approval broadcast")

	return nil, &ApprovalRequiredError{Token: token.Hex(), TxHash: txHash}
}

// signAndBroadcast serializes all custodian sends behind a per-sender lock so
// concurrent requests cannot race on the account nonce. The native balance
// must cover the value plus the commission before broadcast.
func (b *TransactionBuilder) signAndBroadcast(ctx context.Context, to common.Address, value *big.Int, data []byte, nativeBalance *big.Int) (string, string, error) {
	lock := b.senderLock(b.custodianAddr)
	lock.Lock()
	defer lock.Unlock()

	nonce, err := b.chain.PendingNonceAt(ctx, b.custodianAddr)
	if err != nil {
		return "", "", err
	}

	gasPrice, err := b.chain.SuggestGasPrice(ctx)
	if err != nil {
		return "", "", err
	}

	gas, err := b.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:  b.custodianAddr,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", "", fmt.Errorf("gas estimation failed: %w", err)
	}

	commission := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))
	required := new(big.Int).Add(value, commission)
	if nativeBalance.Cmp(required) < 0 {
		return "", "", ErrInsufficientBalance
	}

	chainID, err := b.chain.ChainID(ctx)
	if err != nil {
		return "", "", err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), b.custodianKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := b.chain.SendTransaction(sendCtx, signed); err != nil {
		return "", "", err
	}

	return signed.Hash().Hex(), utils.FromWei(commission), nil
}

// senderLock returns the mutex serializing sends from addr.
func (b *TransactionBuilder) senderLock(addr common.Address) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.senderLocks[addr]
	if !ok {
		lock = &sync.Mutex{}
		b.senderLocks[addr] = lock
	}
	return lock
}
