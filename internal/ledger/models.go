package ledger

import (
	"time"

	"gorm.io/gorm"
)

// Ledger is the authoritative cash record for one player in one lobby.
// Balance and ValueInPositions are mutated only through the Service; every
// mutation appends a BalanceHistory row.
type Ledger struct {
	gorm.Model       `json:"-"`
	Address          string  `gorm:"index:idx_ledger_player,unique" json:"address"`
	LobbyID          string  `gorm:"index:idx_ledger_player,unique" json:"lobby_id"`
	Balance          float64 `json:"balance"`
	ValueInPositions float64 `json:"value_in_positions"`
}

// TotalValue is the ranking metric: cash plus mark-to-market value of open
// positions.
func (l *Ledger) TotalValue() float64 {
	return l.Balance + l.ValueInPositions
}

// BalanceHistory is an append-only snapshot taken on every ledger mutation.
// Entries are never updated or deleted.
type BalanceHistory struct {
	gorm.Model       `json:"-"`
	Address          string    `gorm:"index" json:"address"`
	LobbyID          string    `gorm:"index" json:"lobby_id"`
	Balance          float64   `json:"balance"`
	ValueInPositions float64   `json:"value_in_positions"`
	Timestamp        time.Time `json:"timestamp"`
}
