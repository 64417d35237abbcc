package handlers

import (
	"errors"
	"net/http"

	"wallet-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthHandler exposes the nonce-challenge login flow.
type AuthHandler struct {
	auth   *services.NonceAuthService
	tokens *services.TokenService
	logger *logrus.Logger
}

// NewAuthHandler wires the handler.
func NewAuthHandler(auth *services.NonceAuthService, tokens *services.TokenService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, logger: logger}
}

type loginRequest struct {
	Signature string `json:"signature" binding:"required"`
}

// GetNonce handles GET /auth/:address/nonce. It issues a fresh challenge for
// the address, creating the wallet record on first contact.
func (h *AuthHandler) GetNonce(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid wallet address",
		})
		return
	}

	nonce, err := h.auth.IssueChallenge(c.Request.Context(), address)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err.Error(),
		}).Error("failed to issue login challenge")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to issue challenge",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

// Login handles POST /auth/:address/login. It verifies the signature over the
// active challenge and exchanges it for a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"verified": false,
			"message":  "invalid wallet address",
		})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"verified": false,
			"message":  "signature is required",
		})
		return
	}

	claim, err := h.auth.Verify(c.Request.Context(), address, req.Signature)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrWalletNotFound) {
			status = http.StatusNotFound
		}
		h.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err.Error(),
		}).Warn("login verification failed")
		c.JSON(status, gin.H{
			"verified": false,
			"message":  err.Error(),
		})
		return
	}

	token, err := h.tokens.Issue(claim)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue session token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"verified": false,
			"message":  "failed to issue session token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
