package lobby

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/lobby-trading-api/internal/ledger"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrLobbyNotFound = errors.New("lobby not found")
	ErrAlreadyJoined = errors.New("already joined this lobby")

	errStartInPast     = errors.New("start time has already passed")
	errEndBeforeStart  = errors.New("end time must be after start time")
	errDurationTooLong = errors.New("lobby duration cannot exceed 24 hours")
)

const maxDuration = 24 * time.Hour

// Service manages lobby records and membership. Joining a lobby creates the
// player's ledger with the buy-in as starting balance; that ledger row is
// also the membership record.
type Service struct {
	db     *Database
	ledger *ledger.Service
}

func NewService(gormDB *gorm.DB, ledgerService *ledger.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledgerService,
	}
}

// CreateLobbyInput carries the caller-supplied lobby parameters.
type CreateLobbyInput struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	BuyIn     float64   `json:"buy_in"`
	Split     float64   `json:"split"`
	IsDemo    bool      `json:"is_demo"`
}

// CreateLobby validates the time window, persists the lobby and joins the
// creator automatically.
func (s *Service) CreateLobby(creator string, input CreateLobbyInput) (*Lobby, error) {
	if input.StartTime.Before(time.Now()) {
		return nil, errStartInPast
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, errEndBeforeStart
	}
	if input.EndTime.Sub(input.StartTime) > maxDuration {
		return nil, errDurationTooLong
	}

	row := &Lobby{
		LobbyID:   uuid.New().String(),
		Name:      input.Name,
		Status:    StatusNotStarted,
		CreatedBy: strings.ToLower(creator),
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
		BuyIn:     input.BuyIn,
		Split:     input.Split,
		IsDemo:    input.IsDemo,
	}
	if err := s.db.CreateLobby(row); err != nil {
		return nil, err
	}

	if _, err := s.Join(creator, row.LobbyID); err != nil {
		return nil, err
	}

	log.Info().
		Str("lobby_id", row.LobbyID).
		Str("created_by", row.CreatedBy).
		Float64("buy_in", row.BuyIn).
		Bool("is_demo", row.IsDemo).
		Msg("lobby created")

	return row, nil
}

// Join adds a player to a lobby by opening their ledger with the lobby's
// buy-in. Double joins are rejected.
func (s *Service) Join(address, lobbyID string) (*ledger.Ledger, error) {
	address = strings.ToLower(address)

	row, err := s.db.GetLobby(lobbyID)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.GetLedger(address, lobbyID); err == nil {
		return nil, ErrAlreadyJoined
	} else if !errors.Is(err, ledger.ErrLedgerNotFound) {
		return nil, err
	}

	account, err := s.ledger.CreateLedger(address, lobbyID, row.BuyIn)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("lobby_id", lobbyID).
		Str("address", address).
		Float64("buy_in", row.BuyIn).
		Msg("player joined lobby")

	return account, nil
}

func (s *Service) GetLobby(lobbyID string) (*Lobby, error) {
	return s.db.GetLobby(lobbyID)
}

func (s *Service) ListLobbies() ([]Lobby, error) {
	return s.db.ListLobbies()
}
