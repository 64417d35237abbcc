package clients

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"wallet-backend/internal/config"
	"wallet-backend/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// readRetries bounds the transparent retry of read-only chain queries.
const readRetries = 3

// ChainClient is the RPC surface the wallet engine needs from the chain node
// and the deployed router contract. Read-only queries may be called from any
// goroutine; SendTransaction is issued exactly once per signed transaction.
type ChainClient interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// Router contract views.
	WrappedNative(ctx context.Context) (common.Address, error)
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)

	// RecoverSigner recovers the address that personal-signed message.
	RecoverSigner(message, signatureHex string) (common.Address, error)
}

// chainClient implements ChainClient over a go-ethereum ethclient.
type chainClient struct {
	eth     *ethclient.Client
	router  common.Address
	timeout time.Duration
	logger  *logrus.Logger

	mu            sync.Mutex
	wrappedNative *common.Address // cached after the first router lookup
}

// DialChainClient connects to the first RPC endpoint that answers a ChainID
// probe, the way the node list is walked at startup.
func DialChainClient(cfg *config.ChainConfig, logger *logrus.Logger) (ChainClient, error) {
	if !common.IsHexAddress(cfg.RouterContract) {
		return nil, fmt.Errorf("invalid router contract address: %s", cfg.RouterContract)
	}

	var lastErr error
	for _, endpoint := range cfg.RPCEndpoints {
		eth, err := ethclient.Dial(endpoint)
		if err != nil {
			lastErr = err
			logger.WithFields(logrus.Fields{
				"endpoint": endpoint,
				"error":    err.Error(),
			}).Warn("chain rpc dial failed")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		chainID, err := eth.ChainID(ctx)
		cancel()
		if err != nil {
			lastErr = err
			logger.WithFields(logrus.Fields{
				"endpoint": endpoint,
				"error":    err.Error(),
			}).Warn("chain rpc probe failed")
			eth.Close()
			continue
		}

		logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"chain_id": chainID.String(),
		}).Info("chain rpc connected")

		return &chainClient{
			eth:     eth,
			router:  common.HexToAddress(cfg.RouterContract),
			timeout: cfg.Timeout(),
			logger:  logger,
		}, nil
	}

	return nil, fmt.Errorf("no chain rpc endpoint reachable: %w", lastErr)
}

// withRetry runs a read-only query with bounded backoff. The final failure is
// surfaced as an RPCError so callers can classify it as transient.
func (c *chainClient) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	backoff := 250 * time.Millisecond
	for attempt := 1; attempt <= readRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == readRetries {
			break
		}
		c.logger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("chain rpc query failed, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			metrics.ChainRPCErrors.WithLabelValues(op).Inc()
			return &RPCError{Op: op, Err: ctx.Err()}
		}
		backoff *= 2
	}
	metrics.ChainRPCErrors.WithLabelValues(op).Inc()
	return &RPCError{Op: op, Err: err}
}

func (c *chainClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.withRetry(ctx, "balance_at", func(ctx context.Context) error {
		var err error
		balance, err = c.eth.BalanceAt(ctx, account, nil)
		return err
	})
	return balance, err
}

func (c *chainClient) TokenBalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callUint256(ctx, "token_balance_of", token, "balanceOf", owner)
}

func (c *chainClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callUint256(ctx, "allowance", token, "allowance", owner, spender)
}

func (c *chainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.withRetry(ctx, "suggest_gas_price", func(ctx context.Context) error {
		var err error
		price, err = c.eth.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

func (c *chainClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.withRetry(ctx, "estimate_gas", func(ctx context.Context) error {
		var err error
		gas, err = c.eth.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

func (c *chainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.withRetry(ctx, "pending_nonce_at", func(ctx context.Context) error {
		var err error
		nonce, err = c.eth.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

func (c *chainClient) ChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := c.withRetry(ctx, "chain_id", func(ctx context.Context) error {
		var err error
		chainID, err = c.eth.ChainID(ctx)
		return err
	})
	return chainID, err
}

// SendTransaction broadcasts a signed transaction. Broadcasts are never
// retried: a duplicate send with the same nonce is worse than a surfaced
// failure.
func (c *chainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.eth.SendTransaction(callCtx, tx); err != nil {
		metrics.ChainRPCErrors.WithLabelValues("send_transaction").Inc()
		return &RPCError{Op: "send_transaction", Err: err}
	}
	return nil
}

func (c *chainClient) WrappedNative(ctx context.Context) (common.Address, error) {
	c.mu.Lock()
	if c.wrappedNative != nil {
		cached := *c.wrappedNative
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	data, err := routerABI.Pack("WETH")
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack WETH call: %w", err)
	}

	var addr common.Address
	err = c.withRetry(ctx, "wrapped_native", func(ctx context.Context) error {
		output, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.router, Data: data}, nil)
		if err != nil {
			return err
		}
		values, err := routerABI.Unpack("WETH", output)
		if err != nil {
			return err
		}
		addr = values[0].(common.Address)
		return nil
	})
	if err != nil {
		return common.Address{}, err
	}

	c.mu.Lock()
	c.wrappedNative = &addr
	c.mu.Unlock()
	return addr, nil
}

func (c *chainClient) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut call: %w", err)
	}

	var amounts []*big.Int
	err = c.withRetry(ctx, "amounts_out", func(ctx context.Context) error {
		output, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.router, Data: data}, nil)
		if err != nil {
			return err
		}
		values, err := routerABI.Unpack("getAmountsOut", output)
		if err != nil {
			return err
		}
		amounts = values[0].([]*big.Int)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

func (c *chainClient) RecoverSigner(message, signatureHex string) (common.Address, error) {
	return RecoverPersonalSigner(message, signatureHex)
}

// callUint256 issues an eth_call against an ERC20 view method returning a
// single uint256.
func (c *chainClient) callUint256(ctx context.Context, op string, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	var value *big.Int
	err = c.withRetry(ctx, op, func(ctx context.Context) error {
		output, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		if err != nil {
			return err
		}
		values, err := erc20ABI.Unpack(method, output)
		if err != nil {
			return err
		}
		value = values[0].(*big.Int)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}
