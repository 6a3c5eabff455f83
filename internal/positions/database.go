package positions

import (
	"errors"

	"github.com/ksred/lobby-trading-api/internal/types"
	"gorm.io/gorm"
)

// ErrPositionNotFound is returned when no position exists for the given ID.
var ErrPositionNotFound = errors.New("position not found")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreatePlayerPosition records ownership of a freshly confirmed position in
// the open state.
func (d *Database) CreatePlayerPosition(positionID, address, lobbyID string, marginUsed float64) (*PlayerPosition, error) {
	row := &PlayerPosition{
		PositionID: positionID,
		Address:    address,
		LobbyID:    lobbyID,
		State:      types.PositionStateOpen,
		MarginUsed: marginUsed,
	}
	if err := d.db.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (d *Database) GetPlayerPosition(positionID string) (*PlayerPosition, error) {
	var row PlayerPosition
	if err := d.db.Where("position_id = ?", positionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return &row, nil
}

// GetOpenPositionsByLobby returns every open position in a lobby.
func (d *Database) GetOpenPositionsByLobby(lobbyID string) ([]PlayerPosition, error) {
	var rows []PlayerPosition
	if err := d.db.Where("lobby_id = ? AND state = ?", lobbyID, types.PositionStateOpen).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetPositionsByPlayer returns a player's positions in a lobby, optionally
// filtered by state. An empty state returns all.
func (d *Database) GetPositionsByPlayer(address, lobbyID, state string) ([]PlayerPosition, error) {
	query := d.db.Where("address = ? AND lobby_id = ?", address, lobbyID)
	if state != "" {
		query = query.Where("state = ?", state)
	}
	var rows []PlayerPosition
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkClosed flips an open position to closed. The conditional update makes
// a repeated close a no-op: the second caller sees closed=false and must not
// credit the ledger again.
func (d *Database) MarkClosed(positionID string) (closed bool, err error) {
	result := d.db.Model(&PlayerPosition{}).
		Where("position_id = ? AND state = ?", positionID, types.PositionStateOpen).
		Update("state", types.PositionStateClosed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreateSimulated persists the economics of a new paper trade.
func (d *Database) CreateSimulated(row *SimulatedPosition) error {
	return d.db.Create(row).Error
}

func (d *Database) GetSimulated(positionID string) (*SimulatedPosition, error) {
	var row SimulatedPosition
	if err := d.db.Where("position_id = ?", positionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (d *Database) GetSimulatedByAddress(address string) ([]SimulatedPosition, error) {
	var rows []SimulatedPosition
	if err := d.db.Where("address = ?", address).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteSimulated removes a paper trade's economics row once the position is
// closed. Returns whether a row was deleted.
func (d *Database) DeleteSimulated(positionID string) (bool, error) {
	result := d.db.Where("position_id = ?", positionID).Delete(&SimulatedPosition{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
