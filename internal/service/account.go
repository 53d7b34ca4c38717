package service

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/ledger"
)

// AccountService exposes account snapshots and money movements.
type AccountService struct {
	ledger *ledger.Ledger
}

// NewAccountService creates a new AccountService.
func NewAccountService(l *ledger.Ledger) *AccountService {
	return &AccountService{ledger: l}
}

// Get returns the account snapshot.
func (s *AccountService) Get(accountID string) (ledger.Snapshot, error) {
	return s.ledger.Snapshot(accountID)
}

// Deposit adds a positive amount to the account balance.
func (s *AccountService) Deposit(accountID string, amount float64) (ledger.Snapshot, error) {
	d, err := parsePositive(amount)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return s.ledger.Deposit(accountID, d)
}

// Withdraw removes a positive amount from the account balance. It fails
// with domain.ErrInsufficientFunds when available margin is short.
func (s *AccountService) Withdraw(accountID string, amount float64) (ledger.Snapshot, error) {
	d, err := parsePositive(amount)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return s.ledger.Withdraw(accountID, d)
}

// Adjust deposits a positive amount or withdraws a negative one.
func (s *AccountService) Adjust(accountID string, amount float64) (ledger.Snapshot, error) {
	if amount < 0 {
		return s.Withdraw(accountID, -amount)
	}
	return s.Deposit(accountID, amount)
}

func parsePositive(amount float64) (decimal.Decimal, error) {
	d, err := domain.ParseAmount(amount, domain.MoneyPlaces)
	if err != nil {
		return decimal.Zero, &domain.ValidationError{Message: err.Error()}
	}
	if !d.IsPositive() {
		return decimal.Zero, &domain.ValidationError{Message: "amount must be non-zero"}
	}
	return d, nil
}
