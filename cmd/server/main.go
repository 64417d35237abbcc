package main

import (
	"flag"
	"fmt"
	"os"

	"wallet-backend/internal/clients"
	"wallet-backend/internal/config"
	"wallet-backend/internal/db"
	"wallet-backend/internal/events"
	"wallet-backend/internal/handlers"
	"wallet-backend/internal/middleware"
	"wallet-backend/internal/repository"
	"wallet-backend/internal/router"
	"wallet-backend/internal/services"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	database, err := db.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}

	chain, err := clients.DialChainClient(&cfg.Chain, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect chain rpc")
	}

	publisher, err := events.NewPublisher(&cfg.NATS, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect nats")
	}
	defer publisher.Close()

	store := repository.NewWalletStore(database)
	tokens := services.NewTokenService(&cfg.Auth)
	auth := services.NewNonceAuthService(store, chain, &cfg.Auth, cfg.Chain.CoinType, logger)
	checker := services.NewAllowanceChecker(chain)
	swapRouter := services.NewSwapRouter(chain, logger)
	builder, err := services.NewTransactionBuilder(chain, checker, swapRouter, publisher, &cfg.Chain, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize transaction builder")
	}

	authHandler := handlers.NewAuthHandler(auth, tokens, logger)
	walletHandler := handlers.NewWalletHandler(store, chain, builder, logger)
	authMW := middleware.NewAuthMiddleware(tokens, logger)

	engine := router.Setup(authHandler, walletHandler, authMW, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.WithFields(logrus.Fields{"addr": addr}).Info("server starting")
	if err := engine.Run(addr); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
