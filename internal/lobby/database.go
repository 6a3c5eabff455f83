package lobby

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateLobby(row *Lobby) error {
	return d.db.Create(row).Error
}

func (d *Database) GetLobby(lobbyID string) (*Lobby, error) {
	var row Lobby
	if err := d.db.Where("lobby_id = ?", lobbyID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLobbyNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (d *Database) ListLobbies() ([]Lobby, error) {
	var rows []Lobby
	if err := d.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *Database) UpdateLobby(row *Lobby) error {
	return d.db.Save(row).Error
}
