package services

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"wallet-backend/internal/clients"
	"wallet-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// TradeCase classifies a swap relative to the chain's wrapped-native token.
type TradeCase string

const (
	TradeNativeToToken TradeCase = "native_to_token"
	TradeTokenToNative TradeCase = "token_to_native"
	TradeTokenToToken  TradeCase = "token_to_token"
)

// SwapRequest is a swap order against a wallet the user owns. Amount is a
// decimal coin string. Slippage is the tolerated output shortfall in percent;
// -1 disables the minimum-output guard entirely. Deadline is in minutes.
type SwapRequest struct {
	Target   string  `json:"target" binding:"required"`
	From     string  `json:"from" binding:"required"`
	To       string  `json:"to" binding:"required"`
	Amount   string  `json:"amount" binding:"required"`
	Slippage float64 `json:"slippage"`
	Deadline int64   `json:"deadline" binding:"required"`
}

// SwapPlan is the routed and quoted form of a SwapRequest, ready for the
// transaction builder.
type SwapPlan struct {
	Case         TradeCase
	Route        []common.Address
	AmountIn     *big.Int
	AmountOut    *big.Int
	MinAmountOut *big.Int
	Deadline     *big.Int // unix seconds
}

// RouteHex renders the hop path as hex addresses.
func (p *SwapPlan) RouteHex() []string {
	route := make([]string, len(p.Route))
	for i, hop := range p.Route {
		route[i] = hop.Hex()
	}
	return route
}

// SwapRouter classifies trades and quotes routes against the router contract.
type SwapRouter struct {
	chain  clients.ChainClient
	now    func() time.Time
	logger *logrus.Logger
}

// NewSwapRouter wires the router planner.
func NewSwapRouter(chain clients.ChainClient, logger *logrus.Logger) *SwapRouter {
	return &SwapRouter{chain: chain, now: time.Now, logger: logger}
}

// Plan classifies the trade, picks the hop route, quotes the output and
// derives the minimum acceptable output and the execution deadline.
//
// Trades touching the wrapped-native token go direct; everything else is
// bridged through it.
func (r *SwapRouter) Plan(ctx context.Context, req *SwapRequest) (*SwapPlan, error) {
	if !common.IsHexAddress(req.From) || !common.IsHexAddress(req.To) {
		return nil, fmt.Errorf("invalid token address in swap request")
	}

	amountIn, err := utils.ToWei(req.Amount)
	if err != nil {
		return nil, err
	}

	wrapped, err := r.chain.WrappedNative(ctx)
	if err != nil {
		return nil, err
	}

	from := common.HexToAddress(req.From)
	to := common.HexToAddress(req.To)

	var tradeCase TradeCase
	switch {
	case from == wrapped:
		tradeCase = TradeNativeToToken
	case to == wrapped:
		tradeCase = TradeTokenToNative
	default:
		tradeCase = TradeTokenToToken
	}

	route := []common.Address{from, to}
	if tradeCase == TradeTokenToToken {
		route = []common.Address{from, wrapped, to}
	}

	amounts, err := r.chain.AmountsOut(ctx, amountIn, route)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteNotFound, err)
	}
	if len(amounts) == 0 {
		return nil, fmt.Errorf("%w: empty quote", ErrRouteNotFound)
	}
	amountOut := amounts[len(amounts)-1]

	plan := &SwapPlan{
		Case:         tradeCase,
		Route:        route,
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		MinAmountOut: minAmountOut(amountOut, req.Slippage),
		Deadline:     big.NewInt(r.now().Unix() + req.Deadline*60),
	}

	r.logger.WithFields(logrus.Fields{
		"trade_case": tradeCase,
		"route":      plan.RouteHex(),
		"amount_in":  amountIn.String(),
		"amount_out": amountOut.String(),
		"min_out":    plan.MinAmountOut.String(),
	}).Debug("swap planned")

	return plan, nil
}

// minAmountOut applies the slippage tolerance to a quoted output. A negative
// slippage disables the guard; 100% or more clamps it to zero.
func minAmountOut(amountOut *big.Int, slippage float64) *big.Int {
	if slippage < 0 {
		return new(big.Int)
	}
	bps := int64(math.Round(slippage * 100))
	if bps >= 10000 {
		return new(big.Int)
	}
	min := new(big.Int).Mul(amountOut, big.NewInt(10000-bps))
	return min.Quo(min, big.NewInt(10000))
}
