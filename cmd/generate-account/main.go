package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"wallet-backend/internal/config"
	"wallet-backend/internal/db"
	"wallet-backend/internal/repository"
	"wallet-backend/internal/services"

	"github.com/sirupsen/logrus"
)

// Mints a custodial keypair. With -user it provisions the wallet into the
// database; without it the address and encrypted keystore are printed for
// manual insertion.
func main() {
	configPath := flag.String("config", "", "path to config file")
	secret := flag.String("secret", os.Getenv("SECRET_KEY"), "keystore encryption secret (overrides config)")
	userID := flag.Uint("user", 0, "owning user id; when set, the wallet is stored")
	flag.Parse()

	logger := logrus.New()

	if *userID > 0 {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			logger.WithError(err).Fatal("failed to load configuration")
		}
		keySecret := cfg.Auth.Secret
		if *secret != "" {
			keySecret = *secret
		}

		database, err := db.InitDB(&cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize database")
		}

		provisioner := services.NewCustodialWalletService(
			repository.NewWalletStore(database),
			services.NewAccountService(keySecret),
			cfg.Chain.CoinType,
			logger,
		)
		wallet, err := provisioner.Provision(context.Background(), *userID)
		if err != nil {
			logger.WithError(err).Fatal("failed to provision custodial wallet")
		}

		fmt.Printf("Wallet %d stored for user %d\n", wallet.ID, *userID)
		fmt.Printf("Address: %s\n", wallet.Address)
		return
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "a keystore secret is required (-secret or SECRET_KEY)")
		os.Exit(1)
	}

	account, err := services.NewAccountService(*secret).CreateAccount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate account: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Address:")
	fmt.Println(account.Address)
	fmt.Println()
	fmt.Println("Keystore:")
	fmt.Println(account.Keystore)
}
