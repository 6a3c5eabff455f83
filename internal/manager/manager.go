// Package manager orchestrates the position lifecycle: it validates against
// the ledger, submits to an execution provider, and on confirmation applies
// the ledger and position-store writes atomically enough that the venue
// remains the source of truth for whether a position exists.
package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/ksred/lobby-trading-api/internal/execution"
	"github.com/ksred/lobby-trading-api/internal/ledger"
	"github.com/ksred/lobby-trading-api/internal/lobby"
	"github.com/ksred/lobby-trading-api/internal/positions"
	"github.com/ksred/lobby-trading-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrInsufficientFunds re-exports the ledger sentinel so callers need not
// import the ledger package to classify open failures.
var ErrInsufficientFunds = ledger.ErrInsufficientFunds

// Service coordinates execution providers with the ledger and position
// stores, and owns the valuation-sync subscription registry.
type Service struct {
	ledger    *ledger.Service
	positions *positions.Database
	lobbies   *lobby.Service
	providers *execution.Selector
	registry  *subscriptionRegistry
}

func NewService(gormDB *gorm.DB, ledgerService *ledger.Service, lobbyService *lobby.Service, providers *execution.Selector) *Service {
	return &Service{
		ledger:    ledgerService,
		positions: positions.NewDatabase(gormDB),
		lobbies:   lobbyService,
		providers: providers,
		registry:  newSubscriptionRegistry(),
	}
}

// OpenPositionResult is the structured outcome of an open request. Success
// with a non-empty Warning means the venue-side trade went through but a
// local write did not; the ledger is reconciled out-of-band in that case.
type OpenPositionResult struct {
	Success    bool     `json:"success"`
	OrderID    string   `json:"order_id,omitempty"`
	PositionID string   `json:"position_id,omitempty"`
	MarginUsed float64  `json:"margin_used,omitempty"`
	NewBalance *float64 `json:"new_balance,omitempty"`
	Warning    string   `json:"warning,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ClosePositionResult is the structured outcome of a close request.
type ClosePositionResult struct {
	Success       bool     `json:"success"`
	AlreadyClosed bool     `json:"already_closed,omitempty"`
	RealizedValue float64  `json:"realized_value,omitempty"`
	NewBalance    *float64 `json:"new_balance,omitempty"`
	Warning       string   `json:"warning,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// OpenPosition opens a paired long/short position for a player in a lobby.
// The balance precondition is checked before any venue call; a confirmed
// fill debits the margin cost, records the position and appends history.
func (s *Service) OpenPosition(ctx context.Context, req *types.CreatePositionRequest, authToken string) (*OpenPositionResult, error) {
	req.Address = strings.ToLower(req.Address)

	lobbyRow, err := s.lobbies.GetLobby(req.LobbyID)
	if err != nil {
		return nil, err
	}

	account, err := s.ledger.GetLedger(req.Address, req.LobbyID)
	if err != nil {
		return nil, err
	}
	if account.Balance < req.MarginCost() {
		return nil, ErrInsufficientFunds
	}

	provider := s.providers.For(lobbyRow.IsDemo)
	created, err := provider.CreatePosition(ctx, req, authToken)
	if err != nil {
		return nil, err
	}

	switch created.Confirmation {
	case types.ConfirmationRejected:
		return &OpenPositionResult{Success: false, Error: created.Error}, nil

	case types.ConfirmationUnconfirmed:
		// The order may still fill on the venue. No ledger write happens
		// until the position is observed.
		return &OpenPositionResult{
			Success: true,
			OrderID: created.OrderID,
			Warning: created.Error,
		}, nil
	}

	marginUsed := created.MarginUsed
	if marginUsed == 0 {
		marginUsed = req.MarginCost()
	}

	updated, err := s.ledger.Debit(req.Address, req.LobbyID, marginUsed)
	if err != nil {
		// The venue position exists regardless; surface the gap instead of
		// pretending the trade failed.
		log.Error().Err(err).
			Str("position_id", created.PositionID).
			Str("address", req.Address).
			Msg("ledger debit failed after confirmed fill")
		return &OpenPositionResult{
			Success:    true,
			OrderID:    created.OrderID,
			PositionID: created.PositionID,
			MarginUsed: marginUsed,
			Warning:    "position created but failed to update ledger: " + err.Error(),
		}, nil
	}

	if _, err := s.positions.CreatePlayerPosition(created.PositionID, req.Address, req.LobbyID, marginUsed); err != nil {
		log.Error().Err(err).
			Str("position_id", created.PositionID).
			Msg("position record write failed after confirmed fill")
		balance := updated.Balance
		return &OpenPositionResult{
			Success:    true,
			OrderID:    created.OrderID,
			PositionID: created.PositionID,
			MarginUsed: marginUsed,
			NewBalance: &balance,
			Warning:    "position created but failed to record ownership: " + err.Error(),
		}, nil
	}

	log.Info().
		Str("position_id", created.PositionID).
		Str("address", req.Address).
		Str("lobby_id", req.LobbyID).
		Float64("margin_used", marginUsed).
		Float64("new_balance", updated.Balance).
		Msg("position opened")

	balance := updated.Balance
	return &OpenPositionResult{
		Success:    true,
		OrderID:    created.OrderID,
		PositionID: created.PositionID,
		MarginUsed: marginUsed,
		NewBalance: &balance,
	}, nil
}

// ClosePosition closes one position and credits the realized value. A close
// of an already-closed position is an idempotent success that credits
// nothing.
func (s *Service) ClosePosition(ctx context.Context, positionID, authToken string) (*ClosePositionResult, error) {
	position, err := s.positions.GetPlayerPosition(positionID)
	if err != nil {
		return nil, err
	}
	if position.State == types.PositionStateClosed {
		return &ClosePositionResult{Success: true, AlreadyClosed: true}, nil
	}

	lobbyRow, err := s.lobbies.GetLobby(position.LobbyID)
	if err != nil {
		return nil, err
	}

	provider := s.providers.For(lobbyRow.IsDemo)
	closed, err := provider.ClosePosition(ctx, &types.ClosePositionRequest{
		PositionID: positionID,
		Address:    position.Address,
		LobbyID:    position.LobbyID,
	}, authToken)
	if err != nil {
		return nil, err
	}

	switch closed.Confirmation {
	case types.ConfirmationRejected:
		return &ClosePositionResult{Success: false, Error: closed.Error}, nil
	case types.ConfirmationUnconfirmed:
		return &ClosePositionResult{Success: false, Error: closed.Error}, nil
	}

	flipped, err := s.positions.MarkClosed(positionID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		// A concurrent close won the state flip and credited the ledger.
		return &ClosePositionResult{Success: true, AlreadyClosed: true}, nil
	}

	updated, err := s.ledger.Credit(position.Address, position.LobbyID, closed.RealizedValue)
	if err != nil {
		log.Error().Err(err).
			Str("position_id", positionID).
			Float64("realized_value", closed.RealizedValue).
			Msg("ledger credit failed after confirmed close")
		return &ClosePositionResult{
			Success:       true,
			RealizedValue: closed.RealizedValue,
			Warning:       "position closed but failed to update ledger: " + err.Error(),
		}, nil
	}

	log.Info().
		Str("position_id", positionID).
		Str("address", position.Address).
		Float64("realized_value", closed.RealizedValue).
		Float64("new_balance", updated.Balance).
		Msg("position closed")

	balance := updated.Balance
	return &ClosePositionResult{
		Success:       true,
		RealizedValue: closed.RealizedValue,
		NewBalance:    &balance,
	}, nil
}

// CloseAllPositions flattens a player in a lobby. The valuation sync is
// stopped first so a stale re-mark cannot race in after positions are gone.
// Partial failures keep their per-position results and already-completed
// credits.
func (s *Service) CloseAllPositions(ctx context.Context, address, lobbyID, authToken string) (*types.CloseAllPositionsResult, error) {
	address = strings.ToLower(address)
	s.StopValuationSync(address, lobbyID)

	open, err := s.positions.GetPositionsByPlayer(address, lobbyID, types.PositionStateOpen)
	if err != nil {
		return nil, err
	}

	result := &types.CloseAllPositionsResult{Success: true}
	for _, position := range open {
		closed, err := s.ClosePosition(ctx, position.PositionID, authToken)

		switch {
		case err != nil:
			result.FailedCount++
			result.Results = append(result.Results, types.ClosedPositionResult{
				PositionID: position.PositionID,
				Error:      err.Error(),
			})
		case !closed.Success:
			result.FailedCount++
			result.Results = append(result.Results, types.ClosedPositionResult{
				PositionID: position.PositionID,
				Error:      closed.Error,
			})
		case closed.AlreadyClosed:
			// Nothing to credit; count it as closed.
			result.ClosedCount++
			result.Results = append(result.Results, types.ClosedPositionResult{
				PositionID: position.PositionID,
				Success:    true,
			})
		default:
			result.ClosedCount++
			result.TotalRealizedValue += closed.RealizedValue
			result.Results = append(result.Results, types.ClosedPositionResult{
				PositionID:    position.PositionID,
				Success:       true,
				RealizedValue: closed.RealizedValue,
			})
		}
	}

	if result.FailedCount > 0 {
		result.Success = false
		result.Error = fmt.Sprintf("%d positions failed to close", result.FailedCount)
	}

	log.Info().
		Str("address", address).
		Str("lobby_id", lobbyID).
		Int("closed", result.ClosedCount).
		Int("failed", result.FailedCount).
		Float64("total_realized_value", result.TotalRealizedValue).
		Msg("bulk close completed")

	return result, nil
}

// StartValuationSync begins continuous re-marking of a player's open
// positions into their ledger. Starting an already-active sync is a no-op.
func (s *Service) StartValuationSync(address, lobbyID, authToken string) error {
	address = strings.ToLower(address)
	key := syncKey{address: address, lobbyID: lobbyID}

	if s.registry.active(key) {
		return nil
	}

	lobbyRow, err := s.lobbies.GetLobby(lobbyID)
	if err != nil {
		return err
	}

	provider := s.providers.For(lobbyRow.IsDemo)
	cancel, err := provider.SubscribeToPositions(address, lobbyID, func(snapshots []types.PositionSnapshot) {
		s.applyValuations(lobbyID, snapshots)
	})
	if err != nil {
		return err
	}

	if !s.registry.add(key, cancel) {
		// Lost a start race; the earlier subscription stands.
		cancel()
		return nil
	}

	log.Info().Str("address", address).Str("lobby_id", lobbyID).Msg("valuation sync started")
	return nil
}

// StopValuationSync cancels a player's re-marking subscription. Safe to call
// when no sync is active.
func (s *Service) StopValuationSync(address, lobbyID string) {
	address = strings.ToLower(address)
	if cancel, ok := s.registry.remove(syncKey{address: address, lobbyID: lobbyID}); ok {
		cancel()
		log.Info().Str("address", address).Str("lobby_id", lobbyID).Msg("valuation sync stopped")
	}
}

// IsValuationSyncActive reports whether any lobby currently re-marks the
// player's positions.
func (s *Service) IsValuationSyncActive(address string) bool {
	return s.registry.activeForAddress(strings.ToLower(address))
}

// StopAllValuationSyncs cancels every active subscription; used at shutdown.
func (s *Service) StopAllValuationSyncs() {
	for _, cancel := range s.registry.drain() {
		cancel()
	}
}

// GetPositions returns the player's live position snapshots from the
// lobby's provider.
func (s *Service) GetPositions(ctx context.Context, address, lobbyID, authToken string) ([]types.PositionSnapshot, error) {
	lobbyRow, err := s.lobbies.GetLobby(lobbyID)
	if err != nil {
		return nil, err
	}
	return s.providers.For(lobbyRow.IsDemo).GetPositions(ctx, strings.ToLower(address), authToken)
}

// applyValuations is the re-marking path: it attributes each snapshot to its
// owning player via the position store, sums positionValue+unrealizedPnl per
// player, and writes the aggregate as that player's absolute
// valueInPositions. Each tick computes an absolute value, so the latest tick
// always wins with no read-modify-write race.
func (s *Service) applyValuations(lobbyID string, snapshots []types.PositionSnapshot) {
	open, err := s.positions.GetOpenPositionsByLobby(lobbyID)
	if err != nil {
		log.Error().Err(err).Str("lobby_id", lobbyID).Msg("valuation sync: failed to load open positions")
		return
	}

	valueBySnapshot := make(map[string]float64, len(snapshots))
	for i := range snapshots {
		valueBySnapshot[snapshots[i].PositionID] = snapshots[i].PositionValue + snapshots[i].UnrealizedPnl
	}

	totals := make(map[string]float64)
	for _, position := range open {
		if value, ok := valueBySnapshot[position.PositionID]; ok {
			totals[position.Address] += value
		}
	}

	for address, total := range totals {
		if _, err := s.ledger.SetValueInPositions(address, lobbyID, total); err != nil {
			log.Error().Err(err).
				Str("address", address).
				Str("lobby_id", lobbyID).
				Msg("valuation sync: ledger write failed")
		}
	}
}
