package router

import (
	"net/http"
	"time"

	"wallet-backend/internal/handlers"
	"wallet-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Setup builds the gin engine with all routes wired.
func Setup(authHandler *handlers.AuthHandler, walletHandler *handlers.WalletHandler, authMW *middleware.AuthMiddleware, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/auth")
	{
		auth.GET("/:address/nonce", authHandler.GetNonce)
		auth.POST("/:address/login", authHandler.Login)
	}

	wallet := r.Group("/wallet")
	wallet.Use(authMW.RequireAuth())
	{
		wallet.GET("/", walletHandler.Get)
		wallet.GET("/all", walletHandler.GetAll)
		wallet.POST("/add", walletHandler.Add)
		wallet.POST("/swap", walletHandler.Swap)
		wallet.POST("/transfer", walletHandler.Transfer)
	}

	return r
}

// requestLogger logs each request with latency and status.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}).Info("request handled")
	}
}
