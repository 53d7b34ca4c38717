package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the direction of a position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() decimal.Decimal {
	if d == DirectionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// PositionDirection maps an order's side and offset to the position it
// affects: buying to open or selling to close refers to a long position.
func PositionDirection(side Side, offset Offset) Direction {
	if (side == SideBuy) == (offset == OffsetOpen) {
		return DirectionLong
	}
	return DirectionShort
}

// PositionKey identifies a position inside an account.
type PositionKey struct {
	Symbol    string
	Direction Direction
}

// Position is an account's holding in one symbol and direction.
type Position struct {
	Symbol       string
	Direction    Direction
	Volume       int64
	FrozenVolume int64           // volume pending close, never above Volume
	OpenPrice    decimal.Decimal // volume-weighted
	LastPrice    decimal.Decimal
	Margin       decimal.Decimal // margin held for the open volume
	Multiplier   decimal.Decimal
}

// AvailableVolume returns the volume that can still be closed.
func (p *Position) AvailableVolume() int64 {
	return p.Volume - p.FrozenVolume
}

// UnrealizedPnL is (lastPrice - openPrice) × volume × multiplier × sign.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.Volume == 0 || p.LastPrice.IsZero() {
		return decimal.Zero
	}
	return p.LastPrice.Sub(p.OpenPrice).
		Mul(decimal.NewFromInt(p.Volume)).
		Mul(p.Multiplier).
		Mul(p.Direction.Sign())
}

// Reservation records what an accepted order holds until it is filled,
// cancelled or rejected.
type Reservation struct {
	OrderID      string
	Symbol       string
	Direction    Direction
	Offset       Offset
	Volume       int64           // unfilled volume still reserved
	MarginPerLot decimal.Decimal // zero for close orders
}

// Margin returns the margin still frozen by the reservation.
func (r *Reservation) Margin() decimal.Decimal {
	return r.MarginPerLot.Mul(decimal.NewFromInt(r.Volume))
}

// Account holds the funds and positions of one trading gateway.
type Account struct {
	AccountID            string
	BoundMarketGatewayID string
	BoundTradeGatewayID  string
	Balance              decimal.Decimal // deposits - withdrawals + realized PnL
	OrderMargin          decimal.Decimal // frozen by open orders
	PositionMargin       decimal.Decimal // frozen by open positions
	Positions            map[PositionKey]*Position
	Reservations         map[string]*Reservation // order_id → reservation
	CreatedAt            time.Time
	Mu                   sync.Mutex // per-account lock for every ledger mutation
}

// FrozenMargin is the margin held by orders and positions.
func (a *Account) FrozenMargin() decimal.Decimal {
	return a.OrderMargin.Add(a.PositionMargin)
}

// AvailableMargin is the balance not frozen by orders or positions.
func (a *Account) AvailableMargin() decimal.Decimal {
	return a.Balance.Sub(a.FrozenMargin())
}

// UnrealizedPnL sums the unrealized PnL of all positions.
func (a *Account) UnrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.Positions {
		total = total.Add(p.UnrealizedPnL())
	}
	return total
}

// Equity is available + frozen + unrealized PnL.
func (a *Account) Equity() decimal.Decimal {
	return a.Balance.Add(a.UnrealizedPnL())
}
