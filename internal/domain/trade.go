package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a single fill against an order. Trades are append-only.
type Trade struct {
	TradeID   string
	OrderID   string
	AccountID string
	GatewayID string
	Symbol    string
	Side      Side
	Offset    Offset
	Price     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}
