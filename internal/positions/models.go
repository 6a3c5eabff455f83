package positions

import (
	"gorm.io/gorm"
)

// PlayerPosition is the ownership and lifecycle record of one trade. The
// position identifier is issued by the execution provider; once closed the
// row is immutable.
type PlayerPosition struct {
	gorm.Model `json:"-"`
	PositionID string  `gorm:"uniqueIndex" json:"position_id"`
	Address    string  `gorm:"index" json:"address"`
	LobbyID    string  `gorm:"index" json:"lobby_id"`
	State      string  `json:"state"` // open or closed
	MarginUsed float64 `json:"margin_used"`
}

// SimulatedPosition holds the economics of a paper trade: both entry prices
// are fixed at creation and every later valuation derives from them.
type SimulatedPosition struct {
	gorm.Model     `json:"-"`
	PositionID     string  `gorm:"uniqueIndex" json:"position_id"`
	Address        string  `gorm:"index" json:"address"`
	LobbyID        string  `gorm:"index" json:"lobby_id"`
	LongAsset      string  `json:"long_asset"`
	ShortAsset     string  `json:"short_asset"`
	Leverage       float64 `json:"leverage"`
	UsdValue       float64 `json:"usd_value"`
	EntryPriceLong  float64 `json:"entry_price_long"`
	EntryPriceShort float64 `json:"entry_price_short"`
}

// MarginUsed is the ledger amount committed for the position's lifetime.
func (p *SimulatedPosition) MarginUsed() float64 {
	if p.Leverage == 0 {
		return 0
	}
	return p.UsdValue / p.Leverage
}
