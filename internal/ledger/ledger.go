// Package ledger keeps per-account funds, margin and positions.
//
// Every mutation of an account happens under that account's mutex, so
// fills arriving from several symbol books are applied one at a time.
// Balance, order margin and position margin are the only stored money
// figures; available margin and equity are derived from them, which
// keeps equity == available + frozen + unrealized PnL true at all times.
package ledger

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/store"
)

// ReserveRequest describes the order an account must reserve for.
// Price is the limit price or, for market orders, the best estimate.
type ReserveRequest struct {
	OrderID string
	Symbol  string
	Side    domain.Side
	Offset  domain.Offset
	Volume  int64
	Price   decimal.Decimal
}

// PositionSnapshot is a read-only copy of a position.
type PositionSnapshot struct {
	Symbol        string
	Direction     domain.Direction
	Volume        int64
	FrozenVolume  int64
	OpenPrice     decimal.Decimal
	LastPrice     decimal.Decimal
	Margin        decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Snapshot is a consistent read-only view of an account.
type Snapshot struct {
	AccountID       string
	MarketGatewayID string
	Balance         decimal.Decimal
	Equity          decimal.Decimal
	AvailableMargin decimal.Decimal
	FrozenMargin    decimal.Decimal
	OrderMargin     decimal.Decimal
	PositionMargin  decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	Positions       []PositionSnapshot
}

// Ledger owns every account and position.
type Ledger struct {
	accounts  *store.AccountStore
	contracts *domain.ContractRegistry
	logger    *slog.Logger
}

// New creates a Ledger over the given account store.
func New(accounts *store.AccountStore, contracts *domain.ContractRegistry, logger *slog.Logger) *Ledger {
	return &Ledger{
		accounts:  accounts,
		contracts: contracts,
		logger:    logger,
	}
}

// Open registers a zero-balance account bound to a market gateway. The
// account id is also the id of its trade gateway.
func (l *Ledger) Open(accountID, marketGatewayID string) error {
	a := &domain.Account{
		AccountID:            accountID,
		BoundMarketGatewayID: marketGatewayID,
		BoundTradeGatewayID:  accountID,
		Positions:            make(map[domain.PositionKey]*domain.Position),
		Reservations:         make(map[string]*domain.Reservation),
		CreatedAt:            time.Now(),
	}
	if err := l.accounts.Create(a); err != nil {
		return err
	}
	l.logger.Info("account opened",
		slog.String("account_id", accountID),
		slog.String("market_gateway_id", marketGatewayID),
	)
	return nil
}

// Close destroys an account. Unknown accounts are ignored.
func (l *Ledger) Close(accountID string) {
	l.accounts.Delete(accountID)
	l.logger.Info("account closed", slog.String("account_id", accountID))
}

// Deposit adds funds to an account.
func (l *Ledger) Deposit(accountID string, amount decimal.Decimal) (Snapshot, error) {
	if !amount.IsPositive() {
		return Snapshot{}, domain.Invalidf("deposit amount must be > 0")
	}
	return l.mutate(accountID, func(a *domain.Account) error {
		a.Balance = a.Balance.Add(amount)
		return nil
	})
}

// Withdraw removes funds from an account. It fails with
// domain.ErrInsufficientFunds if available margin would turn negative.
func (l *Ledger) Withdraw(accountID string, amount decimal.Decimal) (Snapshot, error) {
	if !amount.IsPositive() {
		return Snapshot{}, domain.Invalidf("withdrawal amount must be > 0")
	}
	return l.mutate(accountID, func(a *domain.Account) error {
		if a.AvailableMargin().LessThan(amount) {
			return domain.ErrInsufficientFunds
		}
		a.Balance = a.Balance.Sub(amount)
		return nil
	})
}

// Snapshot returns a consistent view of the account.
func (l *Ledger) Snapshot(accountID string) (Snapshot, error) {
	return l.mutate(accountID, func(*domain.Account) error { return nil })
}

// ReserveMargin holds what an accepted order needs. Open orders move
// their margin requirement from available to frozen; close orders
// freeze position volume. Nothing changes when an error is returned.
func (l *Ledger) ReserveMargin(accountID string, req ReserveRequest) error {
	contract, err := l.contracts.Get(req.Symbol)
	if err != nil {
		return err
	}
	if req.Volume <= 0 {
		return domain.Invalidf("volume must be > 0")
	}
	dir := domain.PositionDirection(req.Side, req.Offset)

	_, err = l.mutate(accountID, func(a *domain.Account) error {
		if _, exists := a.Reservations[req.OrderID]; exists {
			return fmt.Errorf("order %s already holds a reservation: %w", req.OrderID, domain.ErrInvalidConfig)
		}
		res := &domain.Reservation{
			OrderID:   req.OrderID,
			Symbol:    req.Symbol,
			Direction: dir,
			Offset:    req.Offset,
			Volume:    req.Volume,
		}

		if req.Offset == domain.OffsetOpen {
			res.MarginPerLot = contract.MarginPerLot(req.Price, dir)
			required := res.Margin()
			if a.AvailableMargin().LessThan(required) {
				return domain.ErrInsufficientMargin
			}
			a.OrderMargin = a.OrderMargin.Add(required)
		} else {
			pos := a.Positions[domain.PositionKey{Symbol: req.Symbol, Direction: dir}]
			if pos == nil || pos.AvailableVolume() < req.Volume {
				return domain.ErrInsufficientPosition
			}
			pos.FrozenVolume += req.Volume
		}

		a.Reservations[req.OrderID] = res
		return nil
	})
	return err
}

// ReleaseMargin returns whatever an order still holds: frozen margin for
// open orders, frozen volume for close orders. Releasing an order without
// a reservation is a no-op.
func (l *Ledger) ReleaseMargin(accountID, orderID string) error {
	_, err := l.mutate(accountID, func(a *domain.Account) error {
		res, ok := a.Reservations[orderID]
		if !ok {
			return nil
		}
		delete(a.Reservations, orderID)

		if res.Offset == domain.OffsetOpen {
			a.OrderMargin = a.OrderMargin.Sub(res.Margin())
			return nil
		}
		if pos := a.Positions[domain.PositionKey{Symbol: res.Symbol, Direction: res.Direction}]; pos != nil {
			pos.FrozenVolume -= res.Volume
		}
		return nil
	})
	return err
}

// SettleFill applies a trade against the order's reservation.
func (l *Ledger) SettleFill(accountID string, trade *domain.Trade) error {
	contract, err := l.contracts.Get(trade.Symbol)
	if err != nil {
		return err
	}

	_, err = l.mutate(accountID, func(a *domain.Account) error {
		res, ok := a.Reservations[trade.OrderID]
		if !ok {
			return fmt.Errorf("settle trade %s: order %s has no reservation", trade.TradeID, trade.OrderID)
		}
		if trade.Volume <= 0 || trade.Volume > res.Volume {
			return fmt.Errorf("settle trade %s: volume %d outside reserved %d", trade.TradeID, trade.Volume, res.Volume)
		}

		key := domain.PositionKey{Symbol: trade.Symbol, Direction: res.Direction}
		vol := decimal.NewFromInt(trade.Volume)

		if res.Offset == domain.OffsetOpen {
			a.OrderMargin = a.OrderMargin.Sub(res.MarginPerLot.Mul(vol))
			held := contract.PositionMarginPerLot(trade.Price, res.Direction).Mul(vol)
			a.PositionMargin = a.PositionMargin.Add(held)
			a.Balance = a.Balance.Sub(contract.Commission(trade.Volume))

			pos := a.Positions[key]
			if pos == nil {
				pos = &domain.Position{
					Symbol:     trade.Symbol,
					Direction:  res.Direction,
					Multiplier: contract.Multiplier,
				}
				a.Positions[key] = pos
			}
			total := decimal.NewFromInt(pos.Volume + trade.Volume)
			pos.OpenPrice = pos.OpenPrice.Mul(decimal.NewFromInt(pos.Volume)).Add(trade.Price.Mul(vol)).Div(total)
			pos.Volume += trade.Volume
			pos.Margin = pos.Margin.Add(held)
			pos.LastPrice = trade.Price
		} else {
			pos := a.Positions[key]
			if pos == nil || pos.Volume < trade.Volume || pos.FrozenVolume < trade.Volume {
				return fmt.Errorf("settle trade %s: %w", trade.TradeID, domain.ErrInsufficientPosition)
			}
			pnl := trade.Price.Sub(pos.OpenPrice).Mul(vol).Mul(pos.Multiplier).Mul(res.Direction.Sign())
			a.Balance = a.Balance.Add(pnl)

			released := pos.Margin
			if trade.Volume < pos.Volume {
				released = pos.Margin.Mul(vol).Div(decimal.NewFromInt(pos.Volume))
			}
			pos.Margin = pos.Margin.Sub(released)
			a.PositionMargin = a.PositionMargin.Sub(released)
			pos.Volume -= trade.Volume
			pos.FrozenVolume -= trade.Volume
			pos.LastPrice = trade.Price
			if pos.Volume == 0 {
				delete(a.Positions, key)
			}
		}

		res.Volume -= trade.Volume
		if res.Volume == 0 {
			delete(a.Reservations, trade.OrderID)
		}
		return nil
	})
	return err
}

// MarkPrice updates the last price of every position in symbol held by
// accounts bound to the market gateway.
func (l *Ledger) MarkPrice(marketGatewayID, symbol string, price decimal.Decimal) {
	for _, a := range l.accounts.ListByMarketGateway(marketGatewayID) {
		a.Mu.Lock()
		for _, dir := range []domain.Direction{domain.DirectionLong, domain.DirectionShort} {
			if pos := a.Positions[domain.PositionKey{Symbol: symbol, Direction: dir}]; pos != nil {
				pos.LastPrice = price
			}
		}
		a.Mu.Unlock()
	}
}

// mutate runs fn under the account lock and returns the resulting
// snapshot. fn must leave the account untouched when it returns an error.
func (l *Ledger) mutate(accountID string, fn func(a *domain.Account) error) (Snapshot, error) {
	a, err := l.accounts.Get(accountID)
	if err != nil {
		return Snapshot{}, err
	}

	a.Mu.Lock()
	defer a.Mu.Unlock()

	if err := fn(a); err != nil {
		return Snapshot{}, err
	}
	return snapshot(a), nil
}

func snapshot(a *domain.Account) Snapshot {
	s := Snapshot{
		AccountID:       a.AccountID,
		MarketGatewayID: a.BoundMarketGatewayID,
		Balance:         a.Balance,
		Equity:          a.Equity(),
		AvailableMargin: a.AvailableMargin(),
		FrozenMargin:    a.FrozenMargin(),
		OrderMargin:     a.OrderMargin,
		PositionMargin:  a.PositionMargin,
		UnrealizedPnL:   a.UnrealizedPnL(),
		Positions:       make([]PositionSnapshot, 0, len(a.Positions)),
	}
	for _, p := range a.Positions {
		s.Positions = append(s.Positions, PositionSnapshot{
			Symbol:        p.Symbol,
			Direction:     p.Direction,
			Volume:        p.Volume,
			FrozenVolume:  p.FrozenVolume,
			OpenPrice:     p.OpenPrice,
			LastPrice:     p.LastPrice,
			Margin:        p.Margin,
			UnrealizedPnL: p.UnrealizedPnL(),
		})
	}
	sort.Slice(s.Positions, func(i, j int) bool {
		if s.Positions[i].Symbol != s.Positions[j].Symbol {
			return s.Positions[i].Symbol < s.Positions[j].Symbol
		}
		return s.Positions[i].Direction < s.Positions[j].Direction
	})
	return s
}
