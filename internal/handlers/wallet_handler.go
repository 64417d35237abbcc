package handlers

import (
	"errors"
	"net/http"

	"wallet-backend/internal/clients"
	"wallet-backend/internal/middleware"
	"wallet-backend/internal/models"
	"wallet-backend/internal/repository"
	"wallet-backend/internal/services"
	"wallet-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WalletHandler exposes wallet records and the transaction engine.
type WalletHandler struct {
	store   repository.WalletStore
	chain   clients.ChainClient
	builder *services.TransactionBuilder
	logger  *logrus.Logger
}

// NewWalletHandler wires the handler.
func NewWalletHandler(store repository.WalletStore, chain clients.ChainClient, builder *services.TransactionBuilder, logger *logrus.Logger) *WalletHandler {
	return &WalletHandler{store: store, chain: chain, builder: builder, logger: logger}
}

type addWalletRequest struct {
	Address  string `json:"address" binding:"required"`
	CoinType string `json:"coin_type"`
}

type walletResponse struct {
	*models.Wallet
	Balance string `json:"balance,omitempty"`
}

// Get handles GET /wallet/. It returns the user's primary wallet with its
// live native balance.
func (h *WalletHandler) Get(c *gin.Context) {
	userID := c.GetUint(middleware.ContextUserID)

	wallets, err := h.store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list wallets")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to load wallet"})
		return
	}
	if len(wallets) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "wallet not found"})
		return
	}

	wallet := wallets[0]
	resp := walletResponse{Wallet: wallet}

	balance, err := h.chain.BalanceAt(c.Request.Context(), common.HexToAddress(wallet.Address))
	if err != nil {
		// The record is still useful without a live balance.
		h.logger.WithFields(logrus.Fields{
			"address": wallet.Address,
			"error":   err.Error(),
		}).Warn("failed to fetch wallet balance")
	} else {
		resp.Balance = utils.FromWei(balance)
	}

	c.JSON(http.StatusOK, resp)
}

// GetAll handles GET /wallet/all.
func (h *WalletHandler) GetAll(c *gin.Context) {
	userID := c.GetUint(middleware.ContextUserID)

	wallets, err := h.store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list wallets")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to load wallets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

// Add handles POST /wallet/add, binding another external address to the
// authenticated user.
func (h *WalletHandler) Add(c *gin.Context) {
	userID := c.GetUint(middleware.ContextUserID)

	var req addWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "address is required"})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid wallet address"})
		return
	}

	wallet, err := h.store.AddExternal(c.Request.Context(), userID, req.Address, req.CoinType)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"address": req.Address,
			"error":   err.Error(),
		}).Error("failed to add wallet")
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "wallet address already registered"})
		return
	}

	c.JSON(http.StatusCreated, wallet)
}

// Swap handles POST /wallet/swap. The target wallet must belong to the
// authenticated user; the swap executes from the custodial account.
func (h *WalletHandler) Swap(c *gin.Context) {
	userID := c.GetUint(middleware.ContextUserID)

	var req services.SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if _, err := h.store.GetOwned(c.Request.Context(), userID, req.Target); err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.builder.ExecuteSwap(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Transfer handles POST /wallet/transfer. It returns an unsigned intent plus
// the estimated commission for the caller's wallet to sign.
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID := c.GetUint(middleware.ContextUserID)

	var req services.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if _, err := h.store.GetOwned(c.Request.Context(), userID, req.From); err != nil {
		h.writeError(c, err)
		return
	}

	quote, err := h.builder.BuildTransfer(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// writeError maps engine errors onto HTTP statuses. Validation-class failures
// are 4xx; transient chain failures are 502 so callers know to retry.
func (h *WalletHandler) writeError(c *gin.Context, err error) {
	var rpcErr *clients.RPCError
	var approvalErr *services.ApprovalRequiredError

	switch {
	case errors.Is(err, services.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "wallet not found"})
	case errors.As(err, &approvalErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": approvalErr.Error(),
			"approve": gin.H{"token": approvalErr.Token, "tx": approvalErr.TxHash},
		})
	case errors.Is(err, services.ErrInsufficientBalance),
		errors.Is(err, services.ErrInsufficientAllowance),
		errors.Is(err, services.ErrRouteNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	case errors.As(err, &rpcErr):
		h.logger.WithFields(logrus.Fields{
			"op":    rpcErr.Op,
			"error": rpcErr.Error(),
		}).Error("chain rpc failure")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "chain node unavailable, try again"})
	default:
		h.logger.WithError(err).Error("transaction request failed")
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	}
}
