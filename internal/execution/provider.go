// Package execution opens and closes pair positions against a market. Two
// providers implement the same contract: a live adapter for the external
// venue and a synchronous paper-trading simulator. Callers select a provider
// by the lobby's demo flag and never branch on it past that point.
package execution

import (
	"context"

	"github.com/ksred/lobby-trading-api/internal/types"
)

// SnapshotCallback receives a batch of live position valuations.
type SnapshotCallback func(snapshots []types.PositionSnapshot)

// Provider is the execution contract shared by the live venue adapter and
// the paper-trading simulator.
type Provider interface {
	// GetPositions returns the owner's open positions with live valuations.
	GetPositions(ctx context.Context, address, authToken string) ([]types.PositionSnapshot, error)

	// CreatePosition submits a paired long/short position. The result's
	// Confirmation distinguishes an observed fill from a submission that
	// timed out unobserved and from a venue rejection.
	CreatePosition(ctx context.Context, req *types.CreatePositionRequest, authToken string) (*types.CreatePositionResult, error)

	// ClosePosition submits closure of one position and reports the value
	// realized at the moment of confirmed closure.
	ClosePosition(ctx context.Context, req *types.ClosePositionRequest, authToken string) (*types.ClosePositionResult, error)

	// CloseAllPositions closes every position the owner holds, reporting
	// per-position outcomes.
	CloseAllPositions(ctx context.Context, req *types.CloseAllPositionsRequest, authToken string) (*types.CloseAllPositionsResult, error)

	// SubscribeToPositions streams the owner's position valuations to the
	// callback until the returned cancel function is called. Cancel is
	// idempotent.
	SubscribeToPositions(address, lobbyID string, callback SnapshotCallback) (func(), error)
}

// Selector picks the provider for a lobby. All demo-flag dispatch lives
// here.
type Selector struct {
	live      Provider
	simulated Provider
}

func NewSelector(live, simulated Provider) *Selector {
	return &Selector{live: live, simulated: simulated}
}

// For returns the simulated provider for demo lobbies and the live venue
// adapter otherwise.
func (s *Selector) For(isDemo bool) Provider {
	if isDemo {
		return s.simulated
	}
	return s.live
}
