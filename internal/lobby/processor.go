package lobby

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor advances lobby statuses against their time windows: lobbies
// activate when their start time passes and end when their end time passes.
// Ranking reads are unaffected; the status only gates new trading activity.
type Processor struct {
	db           *Database
	processDelay time.Duration
}

func NewProcessor(db *Database) *Processor {
	return &Processor{
		db:           db,
		processDelay: 30 * time.Second,
	}
}

// Start begins the lobby lifecycle loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "lobby_processor").Logger()
	logger.Info().Msg("starting lobby processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down lobby processor")
			return
		case <-ticker.C:
			if err := p.processLobbies(); err != nil {
				logger.Error().Err(err).Msg("failed to process lobby transitions")
			}
		}
	}
}

func (p *Processor) processLobbies() error {
	logger := log.With().Str("component", "lobby_processor").Logger()

	lobbies, err := p.db.ListLobbies()
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range lobbies {
		row := &lobbies[i]

		switch row.Status {
		case StatusNotStarted:
			if now.After(row.StartTime) {
				row.Status = StatusActive
				logger.Info().Str("lobby_id", row.LobbyID).Msg("lobby started")
			}
		case StatusActive:
			if now.After(row.EndTime) {
				row.Status = StatusEnded
				logger.Info().Str("lobby_id", row.LobbyID).Msg("lobby ended")
			}
		default:
			continue
		}

		if err := p.db.UpdateLobby(row); err != nil {
			logger.Error().Err(err).Str("lobby_id", row.LobbyID).Msg("failed to update lobby status")
		}
	}

	return nil
}
