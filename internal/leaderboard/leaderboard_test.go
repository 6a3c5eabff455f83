package leaderboard

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ksred/lobby-trading-api/internal/ledger"
	"github.com/ksred/lobby-trading-api/internal/lobby"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *ledger.Service, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&lobby.Lobby{}, &ledger.Ledger{}, &ledger.BalanceHistory{}))

	ledgerService := ledger.NewService(db)
	lobbyService := lobby.NewService(db, ledgerService)

	now := time.Now()
	row, err := lobbyService.CreateLobby("0xcreator", lobby.CreateLobbyInput{
		Name:      "standings test",
		StartTime: now.Add(time.Minute),
		EndTime:   now.Add(time.Hour),
		BuyIn:     1000,
		IsDemo:    true,
	})
	require.NoError(t, err)

	for _, address := range []string{"0xalice", "0xbob"} {
		_, err := lobbyService.Join(address, row.LobbyID)
		require.NoError(t, err)
	}

	return NewService(ledgerService, lobbyService), ledgerService, row.LobbyID
}

func TestLeaderboardRanksByTotalValue(t *testing.T) {
	service, ledgerService, lobbyID := newTestService(t)

	// Alice trades well, Bob trades badly, the creator sits out.
	_, err := ledgerService.Credit("0xalice", lobbyID, 300)
	require.NoError(t, err)
	_, err = ledgerService.Debit("0xbob", lobbyID, 200)
	require.NoError(t, err)

	entries, err := service.GetLeaderboard(lobbyID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "0xalice", entries[0].Address)
	assert.Equal(t, 1300.0, entries[0].TotalValue)
	assert.Equal(t, 300.0, entries[0].Pnl)

	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "0xcreator", entries[1].Address)
	assert.Equal(t, 0.0, entries[1].Pnl)

	assert.Equal(t, 3, entries[2].Rank)
	assert.Equal(t, "0xbob", entries[2].Address)
	assert.Equal(t, -200.0, entries[2].Pnl)
}

func TestLeaderboardIncludesOpenPositionValue(t *testing.T) {
	service, ledgerService, lobbyID := newTestService(t)

	// Cash in positions still counts: alice moved 400 of cash into margin
	// which is now marked at 550.
	_, err := ledgerService.Debit("0xalice", lobbyID, 400)
	require.NoError(t, err)
	_, err = ledgerService.SetValueInPositions("0xalice", lobbyID, 550)
	require.NoError(t, err)

	entries, err := service.GetLeaderboard(lobbyID)
	require.NoError(t, err)

	assert.Equal(t, "0xalice", entries[0].Address)
	assert.Equal(t, 600.0, entries[0].Balance)
	assert.Equal(t, 1150.0, entries[0].TotalValue)
	assert.Equal(t, 150.0, entries[0].Pnl)
}

func TestLeaderboardTiesBreakByJoinOrder(t *testing.T) {
	service, _, lobbyID := newTestService(t)

	entries, err := service.GetLeaderboard(lobbyID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// All three hold exactly the buy-in; join order decides the ranks.
	assert.Equal(t, "0xcreator", entries[0].Address)
	assert.Equal(t, "0xalice", entries[1].Address)
	assert.Equal(t, "0xbob", entries[2].Address)
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Rank)
		assert.Equal(t, 1000.0, entry.TotalValue)
	}
}

func TestLeaderboardUnknownLobby(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.GetLeaderboard("lobby-missing")
	assert.ErrorIs(t, err, lobby.ErrLobbyNotFound)
}

func TestGetBalanceHistoryPassthrough(t *testing.T) {
	service, ledgerService, lobbyID := newTestService(t)

	_, err := ledgerService.Credit("0xalice", lobbyID, 10)
	require.NoError(t, err)
	_, err = ledgerService.Credit("0xalice", lobbyID, 20)
	require.NoError(t, err)

	history, err := service.GetBalanceHistory("0xalice", lobbyID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1010.0, history[0].Balance)
	assert.Equal(t, 1030.0, history[1].Balance)
}
