package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/lobby-trading-api/internal/positions"
	"github.com/ksred/lobby-trading-api/internal/prices"
	"github.com/ksred/lobby-trading-api/internal/types"
	"github.com/rs/zerolog/log"
)

const simulatedPollInterval = 2 * time.Second

// SimulatedProvider is the paper-trading execution path. Fills are synthetic
// and synchronous: entry prices come from the price oracle at creation time
// and every later valuation is computed analytically from them, so there is
// no confirmation delay and no polling.
type SimulatedProvider struct {
	oracle *prices.Oracle
	store  *positions.Database
}

func NewSimulatedProvider(oracle *prices.Oracle, store *positions.Database) *SimulatedProvider {
	return &SimulatedProvider{oracle: oracle, store: store}
}

func (p *SimulatedProvider) GetPositions(ctx context.Context, address, _ string) ([]types.PositionSnapshot, error) {
	rows, err := p.store.GetSimulatedByAddress(address)
	if err != nil {
		return nil, err
	}

	snapshots := make([]types.PositionSnapshot, 0, len(rows))
	for i := range rows {
		snapshot, err := p.snapshot(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}

func (p *SimulatedProvider) CreatePosition(ctx context.Context, req *types.CreatePositionRequest, _ string) (*types.CreatePositionResult, error) {
	quotes, err := p.oracle.GetPrices(ctx, []string{req.LongAsset, req.ShortAsset})
	if err != nil {
		return nil, err
	}

	entryPriceLong := quotes[req.LongAsset]
	entryPriceShort := quotes[req.ShortAsset]
	if entryPriceLong == 0 || entryPriceShort == 0 {
		return &types.CreatePositionResult{
			Confirmation: types.ConfirmationRejected,
			Error:        fmt.Sprintf("could not get prices for %s or %s", req.LongAsset, req.ShortAsset),
		}, nil
	}

	row := &positions.SimulatedPosition{
		PositionID:      "sim_" + uuid.New().String(),
		Address:         req.Address,
		LobbyID:         req.LobbyID,
		LongAsset:       req.LongAsset,
		ShortAsset:      req.ShortAsset,
		Leverage:        req.Leverage,
		UsdValue:        req.UsdValue,
		EntryPriceLong:  entryPriceLong,
		EntryPriceShort: entryPriceShort,
	}
	if err := p.store.CreateSimulated(row); err != nil {
		return nil, err
	}

	log.Info().
		Str("position_id", row.PositionID).
		Str("address", req.Address).
		Str("long_asset", req.LongAsset).
		Str("short_asset", req.ShortAsset).
		Float64("leverage", req.Leverage).
		Float64("usd_value", req.UsdValue).
		Msg("simulated position created")

	return &types.CreatePositionResult{
		Confirmation: types.ConfirmationConfirmed,
		OrderID:      "sim_order_" + uuid.New().String(),
		PositionID:   row.PositionID,
		MarginUsed:   row.MarginUsed(),
	}, nil
}

func (p *SimulatedProvider) ClosePosition(ctx context.Context, req *types.ClosePositionRequest, _ string) (*types.ClosePositionResult, error) {
	row, err := p.store.GetSimulated(req.PositionID)
	if err != nil {
		if err == positions.ErrPositionNotFound {
			return &types.ClosePositionResult{
				Confirmation: types.ConfirmationRejected,
				Error:        "position not found or already closed",
			}, nil
		}
		return nil, err
	}

	snapshot, err := p.snapshot(ctx, row)
	if err != nil {
		return nil, err
	}
	realizedValue := snapshot.MarginUsed + snapshot.UnrealizedPnl

	if _, err := p.store.DeleteSimulated(req.PositionID); err != nil {
		return nil, err
	}

	log.Info().
		Str("position_id", req.PositionID).
		Float64("realized_value", realizedValue).
		Msg("simulated position closed")

	return &types.ClosePositionResult{
		Confirmation:  types.ConfirmationConfirmed,
		RealizedValue: realizedValue,
	}, nil
}

func (p *SimulatedProvider) CloseAllPositions(ctx context.Context, req *types.CloseAllPositionsRequest, authToken string) (*types.CloseAllPositionsResult, error) {
	snapshots, err := p.GetPositions(ctx, req.Address, authToken)
	if err != nil {
		return nil, err
	}

	result := &types.CloseAllPositionsResult{Success: true}
	for _, snapshot := range snapshots {
		closeResult, err := p.ClosePosition(ctx, &types.ClosePositionRequest{
			PositionID: snapshot.PositionID,
			Address:    req.Address,
			LobbyID:    req.LobbyID,
		}, authToken)

		switch {
		case err != nil:
			result.FailedCount++
			result.Results = append(result.Results, types.ClosedPositionResult{
				PositionID: snapshot.PositionID,
				Error:      err.Error(),
			})
		case closeResult.Confirmation != types.ConfirmationConfirmed:
			result.FailedCount++
			result.Results = append(result.Results, types.ClosedPositionResult{
				PositionID: snapshot.PositionID,
				Error:      closeResult.Error,
			})
		default:
			result.ClosedCount++
			result.TotalRealizedValue += closeResult.RealizedValue
			result.Results = append(result.Results, types.ClosedPositionResult{
				PositionID:    snapshot.PositionID,
				Success:       true,
				RealizedValue: closeResult.RealizedValue,
			})
		}
	}

	if result.FailedCount > 0 {
		result.Success = false
		result.Error = fmt.Sprintf("%d positions failed to close", result.FailedCount)
	}
	return result, nil
}

// SubscribeToPositions polls the owner's paper trades at a fixed interval
// and re-marks them against the oracle's latest prices.
func (p *SimulatedProvider) SubscribeToPositions(address, _ string, callback SnapshotCallback) (func(), error) {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(simulatedPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), simulatedPollInterval)
				snapshots, err := p.GetPositions(ctx, address, "")
				cancel()
				if err != nil {
					log.Debug().Err(err).Str("address", address).Msg("simulated position poll failed")
					continue
				}
				if len(snapshots) > 0 {
					callback(snapshots)
				}
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}, nil
}

// markPair values both legs of an equal-weighted pair trade. Half the
// notional sizes each leg at its entry price; each leg's P&L scales with
// leverage. The short leg profits when its price falls, so the combined
// P&L depends only on the relative move between the legs, not on market
// direction.
func markPair(usdValue, leverage, entryLong, entryShort, currentLong, currentShort float64) (longPnl, shortPnl float64) {
	halfValue := usdValue / 2

	longSize := halfValue / entryLong
	shortSize := halfValue / entryShort

	longCurrentValue := longSize * currentLong
	shortCurrentValue := shortSize * currentShort

	longPnl = (longCurrentValue - halfValue) * leverage
	shortPnl = (halfValue - shortCurrentValue) * leverage
	return longPnl, shortPnl
}

// snapshot marks a paper trade to market. Both legs are equal-weighted at
// 0.5 of the notional; each leg's P&L scales with leverage, so the combined
// P&L depends only on the relative move between the two legs.
func (p *SimulatedProvider) snapshot(ctx context.Context, row *positions.SimulatedPosition) (*types.PositionSnapshot, error) {
	quotes, err := p.oracle.GetPrices(ctx, []string{row.LongAsset, row.ShortAsset})
	if err != nil {
		return nil, err
	}

	currentPriceLong := quotes[row.LongAsset]
	if currentPriceLong == 0 {
		currentPriceLong = row.EntryPriceLong
	}
	currentPriceShort := quotes[row.ShortAsset]
	if currentPriceShort == 0 {
		currentPriceShort = row.EntryPriceShort
	}

	halfValue := row.UsdValue / 2
	marginUsed := row.MarginUsed()

	longSize := halfValue / row.EntryPriceLong
	shortSize := halfValue / row.EntryPriceShort

	longPnl, shortPnl := markPair(row.UsdValue, row.Leverage,
		row.EntryPriceLong, row.EntryPriceShort, currentPriceLong, currentPriceShort)
	totalUnrealizedPnl := longPnl + shortPnl
	positionValue := marginUsed
	unrealizedPnlPercentage := 0.0
	if marginUsed != 0 {
		unrealizedPnlPercentage = totalUnrealizedPnl / marginUsed * 100
	}

	entryRatio := row.EntryPriceLong / row.EntryPriceShort
	markRatio := currentPriceLong / currentPriceShort

	return &types.PositionSnapshot{
		PositionID:              row.PositionID,
		Address:                 row.Address,
		ExecutionFlag:           "SIMULATED",
		StopLoss:                types.TriggerOrder{Type: "none"},
		TakeProfit:              types.TriggerOrder{Type: "none"},
		EntryRatio:              entryRatio,
		MarkRatio:               markRatio,
		EntryPositionValue:      row.UsdValue,
		PositionValue:           positionValue,
		MarginUsed:              marginUsed,
		UnrealizedPnl:           totalUnrealizedPnl,
		UnrealizedPnlPercentage: unrealizedPnlPercentage,
		LongAssets: []types.AssetPosition{{
			Coin:               row.LongAsset,
			EntryPrice:         row.EntryPriceLong,
			ActualSize:         longSize,
			Leverage:           row.Leverage,
			MarginUsed:         marginUsed / 2,
			PositionValue:      positionValue / 2,
			UnrealizedPnl:      longPnl,
			EntryPositionValue: halfValue,
			InitialWeight:      0.5,
		}},
		ShortAssets: []types.AssetPosition{{
			Coin:               row.ShortAsset,
			EntryPrice:         row.EntryPriceShort,
			ActualSize:         -shortSize,
			Leverage:           row.Leverage,
			MarginUsed:         marginUsed / 2,
			PositionValue:      positionValue / 2,
			UnrealizedPnl:      shortPnl,
			EntryPositionValue: halfValue,
			InitialWeight:      0.5,
		}},
		CreatedAt: row.CreatedAt,
		UpdatedAt: time.Now(),
	}, nil
}
