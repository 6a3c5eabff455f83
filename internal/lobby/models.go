package lobby

import (
	"time"

	"gorm.io/gorm"
)

// Lobby statuses.
const (
	StatusNotStarted = "NOT_STARTED"
	StatusActive     = "ACTIVE"
	StatusEnded      = "ENDED"
)

// Lobby is a time-boxed trading competition with a fixed buy-in. The demo
// flag selects the paper-trading execution path for every position opened in
// the lobby.
type Lobby struct {
	gorm.Model `json:"-"`
	LobbyID    string    `gorm:"uniqueIndex" json:"lobby_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	CreatedBy  string    `json:"created_by"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	BuyIn      float64   `json:"buy_in"`
	Split      float64   `json:"split"`
	IsDemo     bool      `json:"is_demo"`
}
