package db

import (
	"fmt"

	"wallet-backend/internal/config"
	"wallet-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB connects to postgres and migrates the schema. The returned handle is
// passed to the repositories; there is no package-level connection.
func InitDB(cfg *config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	log.Info("database connected")

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Wallet{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}

	log.Info("database schema migrated")
	return gdb, nil
}
