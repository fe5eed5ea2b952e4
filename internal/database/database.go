package database

import (
	"fmt"

	"github.com/blockchain/bitcoin-exchange-client/internal/config"
	"github.com/blockchain/bitcoin-exchange-client/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the schema and seeds the receive-address pool from the
// config. Seeding is idempotent; existing rows keep their reservation
// state.
func Migrate(db *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(&models.TradeRow{}, &models.PoolAddress{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	for i, address := range cfg.Wallet.Addresses {
		entry := models.PoolAddress{Address: address, AccountIndex: i}
		if err := db.FirstOrCreate(&entry, models.PoolAddress{Address: address}).Error; err != nil {
			return fmt.Errorf("failed to seed pool address '%s': %w", address, err)
		}
	}

	return nil
}
