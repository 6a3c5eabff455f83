package database

import (
	"github.com/ksred/lobby-trading-api/internal/ledger"
	"github.com/ksred/lobby-trading-api/internal/lobby"
	"github.com/ksred/lobby-trading-api/internal/positions"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "lobby.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&lobby.Lobby{},
		&ledger.Ledger{},
		&ledger.BalanceHistory{},
		&positions.PlayerPosition{},
		&positions.SimulatedPosition{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
