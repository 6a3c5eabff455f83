package leaderboard

import (
	"sort"

	"github.com/ksred/lobby-trading-api/internal/ledger"
	"github.com/ksred/lobby-trading-api/internal/lobby"
)

// Entry is one ranked row of a lobby's standings.
type Entry struct {
	Rank       int     `json:"rank"`
	Address    string  `json:"address"`
	Balance    float64 `json:"balance"`
	TotalValue float64 `json:"total_value"`
	Pnl        float64 `json:"pnl"`
}

// Service derives standings from ledger snapshots. It reads only; the
// ledger and lobby services own their data.
type Service struct {
	ledger  *ledger.Service
	lobbies *lobby.Service
}

func NewService(ledgerService *ledger.Service, lobbyService *lobby.Service) *Service {
	return &Service{ledger: ledgerService, lobbies: lobbyService}
}

// GetLeaderboard ranks a lobby's players by total account value descending.
// The sort is stable over join order, which is the only tie-break.
func (s *Service) GetLeaderboard(lobbyID string) ([]Entry, error) {
	lobbyRow, err := s.lobbies.GetLobby(lobbyID)
	if err != nil {
		return nil, err
	}

	ledgers, err := s.ledger.GetLedgersByLobby(lobbyID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ledgers))
	for i := range ledgers {
		totalValue := ledgers[i].TotalValue()
		entries = append(entries, Entry{
			Address:    ledgers[i].Address,
			Balance:    ledgers[i].Balance,
			TotalValue: totalValue,
			Pnl:        totalValue - lobbyRow.BuyIn,
		})
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].TotalValue > entries[b].TotalValue
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries, nil
}

// GetBalanceHistory returns a player's account-value-over-time series for
// charting.
func (s *Service) GetBalanceHistory(address, lobbyID string) ([]ledger.BalanceHistory, error) {
	return s.ledger.GetBalanceHistory(address, lobbyID)
}
