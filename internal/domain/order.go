package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Offset tells whether an order opens a new position or closes an existing one.
type Offset string

const (
	OffsetOpen  Offset = "open"
	OffsetClose Offset = "close"
)

// PriceType selects the matching rule applied to an order.
type PriceType string

const (
	PriceTypeLimit   PriceType = "limit"
	PriceTypeMarket  PriceType = "market"
	PriceTypeQueued  PriceType = "queued"
	PriceTypeCounter PriceType = "counter"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Order is a trading instruction submitted on behalf of an account.
// Accounts are referenced by id only.
type Order struct {
	OrderID         string
	ClientOrderID   string
	GatewayID       string // market gateway whose book holds the order
	AccountID       string
	Symbol          string
	Side            Side
	Offset          Offset
	PriceType       PriceType
	Price           decimal.Decimal // limit, queued or counter price; zero for market orders
	Volume          int64
	FilledVolume    int64
	CancelledVolume int64
	Status          OrderStatus
	RejectReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Trades          []*Trade
}

// RemainingVolume is the part of the order that is neither filled nor cancelled.
func (o *Order) RemainingVolume() int64 {
	if o.Status.Terminal() {
		return 0
	}
	return o.Volume - o.FilledVolume
}

// Direction returns the direction of the position this order opens or closes.
func (o *Order) Direction() Direction {
	return PositionDirection(o.Side, o.Offset)
}

// AveragePrice computes the volume-weighted average fill price.
// Returns (price, true) when trades exist, or (zero, false) otherwise.
func (o *Order) AveragePrice() (decimal.Decimal, bool) {
	if len(o.Trades) == 0 || o.FilledVolume == 0 {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, t := range o.Trades {
		total = total.Add(t.Price.Mul(decimal.NewFromInt(t.Volume)))
	}
	return total.Div(decimal.NewFromInt(o.FilledVolume)), true
}
