package ledger

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrInsufficientFunds is returned when a debit would drive a balance
	// negative. No mutation happens in that case.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLedgerNotFound is returned when no ledger row exists for the
	// player/lobby pair.
	ErrLedgerNotFound = errors.New("ledger not found")
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateLedger(address, lobbyID string, buyIn float64) (*Ledger, error) {
	row := &Ledger{
		Address:          address,
		LobbyID:          lobbyID,
		Balance:          buyIn,
		ValueInPositions: 0,
	}
	if err := d.db.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (d *Database) GetLedger(address, lobbyID string) (*Ledger, error) {
	var row Ledger
	if err := d.db.Where("address = ? AND lobby_id = ?", address, lobbyID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	return &row, nil
}

// GetLedgersByLobby returns a lobby's ledgers in join order (row creation
// order), which is also the leaderboard's tie-break order.
func (d *Database) GetLedgersByLobby(lobbyID string) ([]Ledger, error) {
	var rows []Ledger
	if err := d.db.Where("lobby_id = ?", lobbyID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetBalanceHistory returns the append-only history for a player in a lobby,
// oldest first.
func (d *Database) GetBalanceHistory(address, lobbyID string) ([]BalanceHistory, error) {
	var rows []BalanceHistory
	if err := d.db.Where("address = ? AND lobby_id = ?", address, lobbyID).
		Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// debit atomically reduces balance, guarding against negative balances with
// a conditional update so concurrent opens cannot lose writes.
func (d *Database) debit(tx *gorm.DB, address, lobbyID string, amount float64) error {
	result := tx.Model(&Ledger{}).
		Where("address = ? AND lobby_id = ? AND balance >= ?", address, lobbyID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the row is missing or the balance guard failed.
		var row Ledger
		if err := tx.Where("address = ? AND lobby_id = ?", address, lobbyID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLedgerNotFound
			}
			return err
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (d *Database) credit(tx *gorm.DB, address, lobbyID string, amount float64) error {
	result := tx.Model(&Ledger{}).
		Where("address = ? AND lobby_id = ?", address, lobbyID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

func (d *Database) setValueInPositions(tx *gorm.DB, address, lobbyID string, value float64) error {
	result := tx.Model(&Ledger{}).
		Where("address = ? AND lobby_id = ?", address, lobbyID).
		Update("value_in_positions", value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

func (d *Database) appendHistory(tx *gorm.DB, row *Ledger) error {
	entry := BalanceHistory{
		Address:          row.Address,
		LobbyID:          row.LobbyID,
		Balance:          row.Balance,
		ValueInPositions: row.ValueInPositions,
		Timestamp:        time.Now(),
	}
	return tx.Create(&entry).Error
}

func (d *Database) getForUpdate(tx *gorm.DB, address, lobbyID string) (*Ledger, error) {
	var row Ledger
	if err := tx.Where("address = ? AND lobby_id = ?", address, lobbyID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	return &row, nil
}
