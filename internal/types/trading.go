package types

import "time"

// Position lifecycle states.
const (
	PositionStateOpen   = "open"
	PositionStateClosed = "closed"
)

// Confirmation is the outcome of a venue order relative to observed state.
// A submitted order is not a fill: the venue acknowledges first and the
// position appears (or disappears) later, so callers must be able to tell
// "definitely rejected" apart from "submitted but not yet observed".
type Confirmation string

const (
	ConfirmationConfirmed   Confirmation = "CONFIRMED"
	ConfirmationUnconfirmed Confirmation = "UNCONFIRMED"
	ConfirmationRejected    Confirmation = "REJECTED"
)

// AssetPosition is one leg of a pair position as reported by the venue.
type AssetPosition struct {
	Coin               string  `json:"coin"`
	EntryPrice         float64 `json:"entryPrice"`
	ActualSize         float64 `json:"actualSize"`
	Leverage           float64 `json:"leverage"`
	MarginUsed         float64 `json:"marginUsed"`
	PositionValue      float64 `json:"positionValue"`
	UnrealizedPnl      float64 `json:"unrealizedPnl"`
	EntryPositionValue float64 `json:"entryPositionValue"`
	InitialWeight      float64 `json:"initialWeight"`
	FundingPaid        float64 `json:"fundingPaid"`
}

// TriggerOrder mirrors the venue's stop-loss/take-profit attachment.
type TriggerOrder struct {
	Type                    string  `json:"type"`
	Value                   float64 `json:"value"`
	IsTrailing              bool    `json:"isTrailing"`
	TrailingDeltaValue      float64 `json:"trailingDeltaValue"`
	TrailingActivationValue float64 `json:"trailingActivationValue"`
}

// PositionSnapshot is a live valuation of one open pair position, in the
// shape both execution providers report.
type PositionSnapshot struct {
	PositionID              string          `json:"positionId"`
	Address                 string          `json:"address"`
	ExecutionFlag           string          `json:"executionFlag"`
	StopLoss                TriggerOrder    `json:"stopLoss"`
	TakeProfit              TriggerOrder    `json:"takeProfit"`
	EntryRatio              float64         `json:"entryRatio"`
	MarkRatio               float64         `json:"markRatio"`
	EntryPositionValue      float64         `json:"entryPositionValue"`
	PositionValue           float64         `json:"positionValue"`
	MarginUsed              float64         `json:"marginUsed"`
	UnrealizedPnl           float64         `json:"unrealizedPnl"`
	UnrealizedPnlPercentage float64         `json:"unrealizedPnlPercentage"`
	LongAssets              []AssetPosition `json:"longAssets"`
	ShortAssets             []AssetPosition `json:"shortAssets"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// HasLongCoin reports whether any long leg trades the given coin.
func (s *PositionSnapshot) HasLongCoin(coin string) bool {
	for _, leg := range s.LongAssets {
		if leg.Coin == coin {
			return true
		}
	}
	return false
}

// HasShortCoin reports whether any short leg trades the given coin.
func (s *PositionSnapshot) HasShortCoin(coin string) bool {
	for _, leg := range s.ShortAssets {
		if leg.Coin == coin {
			return true
		}
	}
	return false
}

// HasLeverage reports whether any long leg carries the given leverage.
func (s *PositionSnapshot) HasLeverage(leverage float64) bool {
	for _, leg := range s.LongAssets {
		if leg.Leverage == leverage {
			return true
		}
	}
	return false
}

// CreatePositionRequest asks a provider to open a paired long/short position.
type CreatePositionRequest struct {
	Address       string  `json:"address"`
	LobbyID       string  `json:"lobby_id"`
	LongAsset     string  `json:"long_asset"`
	ShortAsset    string  `json:"short_asset"`
	Leverage      float64 `json:"leverage"`
	UsdValue      float64 `json:"usd_value"`
	Slippage      float64 `json:"slippage"`
	ExecutionType string  `json:"execution_type"` // MARKET or TWAP
}

// MarginCost returns the ledger amount committed when the position opens.
func (r *CreatePositionRequest) MarginCost() float64 {
	if r.Leverage == 0 {
		return 0
	}
	return r.UsdValue / r.Leverage
}

// CreatePositionResult is the provider's answer to a create request.
type CreatePositionResult struct {
	Confirmation Confirmation `json:"confirmation"`
	OrderID      string       `json:"order_id,omitempty"`
	PositionID   string       `json:"position_id,omitempty"`
	MarginUsed   float64      `json:"margin_used,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// ClosePositionRequest asks a provider to close one position.
type ClosePositionRequest struct {
	PositionID    string `json:"position_id"`
	Address       string `json:"address"`
	LobbyID       string `json:"lobby_id"`
	ExecutionType string `json:"execution_type"`
}

// ClosePositionResult is the provider's answer to a close request.
type ClosePositionResult struct {
	Confirmation  Confirmation `json:"confirmation"`
	RealizedValue float64      `json:"realized_value"`
	Error         string       `json:"error,omitempty"`
}

// CloseAllPositionsRequest asks a provider to flatten an address in a lobby.
type CloseAllPositionsRequest struct {
	Address       string `json:"address"`
	LobbyID       string `json:"lobby_id"`
	ExecutionType string `json:"execution_type"`
}

// ClosedPositionResult is one entry of a bulk close outcome.
type ClosedPositionResult struct {
	PositionID    string  `json:"position_id"`
	Success       bool    `json:"success"`
	RealizedValue float64 `json:"realized_value"`
	Error         string  `json:"error,omitempty"`
}

// CloseAllPositionsResult aggregates a bulk close. Success requires zero
// per-position failures; partial outcomes keep their counts and results.
type CloseAllPositionsResult struct {
	Success            bool                   `json:"success"`
	ClosedCount        int                    `json:"closed_count"`
	FailedCount        int                    `json:"failed_count"`
	TotalRealizedValue float64                `json:"total_realized_value"`
	Results            []ClosedPositionResult `json:"results"`
	Error              string                 `json:"error,omitempty"`
}
