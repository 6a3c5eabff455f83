package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ksred/lobby-trading-api/internal/positions"
	"github.com/ksred/lobby-trading-api/internal/prices"
	"github.com/ksred/lobby-trading-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMarkPairFlatMarketIsZero(t *testing.T) {
	longPnl, shortPnl := markPair(500, 5, 60000, 3000, 60000, 3000)
	assert.Equal(t, 0.0, longPnl)
	assert.Equal(t, 0.0, shortPnl)
}

func TestMarkPairLongLegGain(t *testing.T) {
	// Long leg up 10%, short leg flat: half the notional is 250, so the
	// long leg gains 25 before leverage.
	longPnl, shortPnl := markPair(500, 5, 60000, 3000, 66000, 3000)
	assert.InDelta(t, 125.0, longPnl, 1e-9)
	assert.InDelta(t, 0.0, shortPnl, 1e-9)
}

func TestMarkPairShortLegProfitsWhenPriceFalls(t *testing.T) {
	longPnl, shortPnl := markPair(500, 5, 60000, 3000, 60000, 2700)
	assert.InDelta(t, 0.0, longPnl, 1e-9)
	assert.InDelta(t, 125.0, shortPnl, 1e-9)
}

func TestMarkPairMarketNeutralUnderUniformMove(t *testing.T) {
	// Both legs up 10%: the long gain cancels the short loss exactly, so a
	// uniform market move leaves the pair's P&L at zero.
	longPnl, shortPnl := markPair(500, 5, 60000, 3000, 66000, 3300)
	assert.InDelta(t, 125.0, longPnl, 1e-9)
	assert.InDelta(t, -125.0, shortPnl, 1e-9)
	assert.InDelta(t, 0.0, longPnl+shortPnl, 1e-9)
}

func TestMarkPairScalesWithLeverage(t *testing.T) {
	long1, short1 := markPair(500, 1, 60000, 3000, 63000, 2850)
	long5, short5 := markPair(500, 5, 60000, 3000, 63000, 2850)
	assert.InDelta(t, 5*long1, long5, 1e-9)
	assert.InDelta(t, 5*short1, short5, 1e-9)
}

// priceFeed is a minimal ticker endpoint backed by a mutable price table.
type priceFeed struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (f *priceFeed) set(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

func (f *priceFeed) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var symbols []string
		if err := json.Unmarshal([]byte(r.URL.Query().Get("symbols")), &symbols); err != nil {
			http.Error(w, `{"msg":"bad symbols"}`, http.StatusBadRequest)
			return
		}

		var payload []map[string]string
		for _, symbol := range symbols {
			if price, ok := f.prices[symbol]; ok {
				payload = append(payload, map[string]string{
					"symbol": symbol,
					"price":  fmt.Sprintf("%f", price),
				})
			}
		}
		json.NewEncoder(w).Encode(payload)
	}
}

func newSimulatedFixture(t *testing.T, tickers map[string]float64) (*SimulatedProvider, *priceFeed, *positions.Database) {
	t.Helper()

	feed := &priceFeed{prices: tickers}
	server := httptest.NewServer(feed.handler())
	t.Cleanup(server.Close)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&positions.PlayerPosition{}, &positions.SimulatedPosition{}))

	store := positions.NewDatabase(db)
	provider := NewSimulatedProvider(prices.NewOracle(server.URL), store)
	return provider, feed, store
}

func TestSimulatedCreatePosition(t *testing.T) {
	provider, _, store := newSimulatedFixture(t, map[string]float64{
		"BTCUSDT": 60000,
		"ETHUSDT": 3000,
	})

	result, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
		Address:    "0xabc",
		LobbyID:    "lobby-1",
		LongAsset:  "BTC",
		ShortAsset: "ETH",
		Leverage:   5,
		UsdValue:   500,
	}, "")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationConfirmed, result.Confirmation)
	assert.True(t, strings.HasPrefix(result.PositionID, "sim_"))
	assert.Equal(t, 100.0, result.MarginUsed)

	row, err := store.GetSimulated(result.PositionID)
	require.NoError(t, err)
	assert.Equal(t, 60000.0, row.EntryPriceLong)
	assert.Equal(t, 3000.0, row.EntryPriceShort)
}

func TestSimulatedCreateRejectsUnknownAsset(t *testing.T) {
	provider, _, _ := newSimulatedFixture(t, map[string]float64{
		"BTCUSDT": 60000,
	})

	result, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
		Address:    "0xabc",
		LobbyID:    "lobby-1",
		LongAsset:  "BTC",
		ShortAsset: "NOPE",
		Leverage:   5,
		UsdValue:   500,
	}, "")
	require.NoError(t, err)

	assert.Equal(t, types.ConfirmationRejected, result.Confirmation)
	assert.Contains(t, result.Error, "NOPE")
}

func TestSimulatedSnapshotMarksToMarket(t *testing.T) {
	provider, feed, _ := newSimulatedFixture(t, map[string]float64{
		"BTCUSDT": 60000,
		"ETHUSDT": 3000,
	})

	created, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
		Address:    "0xabc",
		LobbyID:    "lobby-1",
		LongAsset:  "BTC",
		ShortAsset: "ETH",
		Leverage:   5,
		UsdValue:   500,
	}, "")
	require.NoError(t, err)
	require.Equal(t, types.ConfirmationConfirmed, created.Confirmation)

	// Move the long leg up 10% and wait out the oracle's cache.
	feed.set("BTCUSDT", 66000)
	time.Sleep(1100 * time.Millisecond)

	snapshots, err := provider.GetPositions(context.Background(), "0xabc", "")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	snapshot := snapshots[0]
	assert.Equal(t, created.PositionID, snapshot.PositionID)
	assert.Equal(t, "SIMULATED", snapshot.ExecutionFlag)
	assert.Equal(t, 100.0, snapshot.MarginUsed)
	assert.Equal(t, 100.0, snapshot.PositionValue)
	assert.InDelta(t, 125.0, snapshot.UnrealizedPnl, 1e-9)
	assert.InDelta(t, 125.0, snapshot.UnrealizedPnlPercentage, 1e-9)
	assert.InDelta(t, 20.0, snapshot.EntryRatio, 1e-9)
	assert.InDelta(t, 22.0, snapshot.MarkRatio, 1e-9)

	require.Len(t, snapshot.LongAssets, 1)
	require.Len(t, snapshot.ShortAssets, 1)
	assert.Equal(t, "BTC", snapshot.LongAssets[0].Coin)
	assert.InDelta(t, 125.0, snapshot.LongAssets[0].UnrealizedPnl, 1e-9)
	assert.Equal(t, "ETH", snapshot.ShortAssets[0].Coin)
	assert.Negative(t, snapshot.ShortAssets[0].ActualSize)
}

func TestSimulatedCloseRealizesMarginPlusPnl(t *testing.T) {
	provider, _, store := newSimulatedFixture(t, map[string]float64{
		"BTCUSDT": 60000,
		"ETHUSDT": 3000,
	})

	created, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
		Address:    "0xabc",
		LobbyID:    "lobby-1",
		LongAsset:  "BTC",
		ShortAsset: "ETH",
		Leverage:   5,
		UsdValue:   500,
	}, "")
	require.NoError(t, err)

	// Prices unchanged, so the close returns exactly the committed margin.
	closed, err := provider.ClosePosition(context.Background(), &types.ClosePositionRequest{
		PositionID: created.PositionID,
		Address:    "0xabc",
		LobbyID:    "lobby-1",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, types.ConfirmationConfirmed, closed.Confirmation)
	assert.InDelta(t, 100.0, closed.RealizedValue, 1e-9)

	_, err = store.GetSimulated(created.PositionID)
	assert.ErrorIs(t, err, positions.ErrPositionNotFound)

	// Closing again is a rejection, not an error.
	again, err := provider.ClosePosition(context.Background(), &types.ClosePositionRequest{
		PositionID: created.PositionID,
		Address:    "0xabc",
		LobbyID:    "lobby-1",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, types.ConfirmationRejected, again.Confirmation)
}

func TestSimulatedCloseAllPositions(t *testing.T) {
	provider, _, _ := newSimulatedFixture(t, map[string]float64{
		"BTCUSDT": 60000,
		"ETHUSDT": 3000,
		"SOLUSDT": 150,
	})

	for _, pair := range [][2]string{{"BTC", "ETH"}, {"SOL", "ETH"}} {
		_, err := provider.CreatePosition(context.Background(), &types.CreatePositionRequest{
			Address:    "0xabc",
			LobbyID:    "lobby-1",
			LongAsset:  pair[0],
			ShortAsset: pair[1],
			Leverage:   2,
			UsdValue:   200,
		}, "")
		require.NoError(t, err)
	}

	result, err := provider.CloseAllPositions(context.Background(), &types.CloseAllPositionsRequest{
		Address: "0xabc",
		LobbyID: "lobby-1",
	}, "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ClosedCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.InDelta(t, 200.0, result.TotalRealizedValue, 1e-9)

	remaining, err := provider.GetPositions(context.Background(), "0xabc", "")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
