package ledger

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the only authorized mutator of ledger rows. Debit, Credit and
// SetValueInPositions each run in one transaction together with their
// balance-history append, and return the resulting row.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// CreateLedger opens a player's account in a lobby with the buy-in as the
// starting balance.
func (s *Service) CreateLedger(address, lobbyID string, buyIn float64) (*Ledger, error) {
	return s.db.CreateLedger(address, lobbyID, buyIn)
}

func (s *Service) GetLedger(address, lobbyID string) (*Ledger, error) {
	return s.db.GetLedger(address, lobbyID)
}

func (s *Service) GetLedgersByLobby(lobbyID string) ([]Ledger, error) {
	return s.db.GetLedgersByLobby(lobbyID)
}

func (s *Service) GetBalanceHistory(address, lobbyID string) ([]BalanceHistory, error) {
	return s.db.GetBalanceHistory(address, lobbyID)
}

// Debit reduces the player's cash balance by amount, failing with
// ErrInsufficientFunds before any mutation if the balance cannot cover it.
func (s *Service) Debit(address, lobbyID string, amount float64) (*Ledger, error) {
	var row *Ledger
	err := s.db.db.Transaction(func(tx *gorm.DB) error {
		if err := s.db.debit(tx, address, lobbyID, amount); err != nil {
			return err
		}
		updated, err := s.db.getForUpdate(tx, address, lobbyID)
		if err != nil {
			return err
		}
		if err := s.db.appendHistory(tx, updated); err != nil {
			return err
		}
		row = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("address", address).
		Str("lobby_id", lobbyID).
		Float64("amount", amount).
		Float64("balance", row.Balance).
		Msg("ledger debited")

	return row, nil
}

// Credit increases the player's cash balance by amount.
func (s *Service) Credit(address, lobbyID string, amount float64) (*Ledger, error) {
	var row *Ledger
	err := s.db.db.Transaction(func(tx *gorm.DB) error {
		if err := s.db.credit(tx, address, lobbyID, amount); err != nil {
			return err
		}
		updated, err := s.db.getForUpdate(tx, address, lobbyID)
		if err != nil {
			return err
		}
		if err := s.db.appendHistory(tx, updated); err != nil {
			return err
		}
		row = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("address", address).
		Str("lobby_id", lobbyID).
		Float64("amount", amount).
		Float64("balance", row.Balance).
		Msg("ledger credited")

	return row, nil
}

// SetValueInPositions writes the absolute mark-to-market value of the
// player's open positions. The write is delta-free, so the latest valuation
// tick always wins regardless of tick ordering.
func (s *Service) SetValueInPositions(address, lobbyID string, value float64) (*Ledger, error) {
	var row *Ledger
	err := s.db.db.Transaction(func(tx *gorm.DB) error {
		if err := s.db.setValueInPositions(tx, address, lobbyID, value); err != nil {
			return err
		}
		updated, err := s.db.getForUpdate(tx, address, lobbyID)
		if err != nil {
			return err
		}
		if err := s.db.appendHistory(tx, updated); err != nil {
			return err
		}
		row = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}
