package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a top-of-book market-data update for one symbol.
type Tick struct {
	GatewayID string
	Symbol    string
	LastPrice decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	BidVolume int64
	AskVolume int64
	Volume    int64
	Timestamp time.Time
}

// Bar is an OHLCV aggregate. Timestamp is the start of the bar period.
type Bar struct {
	GatewayID string
	Symbol    string
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}

// ReferenceTick derives the tick that drives matching from a bar:
// bid, ask and last all sit at the close.
func (b Bar) ReferenceTick() Tick {
	return Tick{
		GatewayID: b.GatewayID,
		Symbol:    b.Symbol,
		LastPrice: b.Close,
		Bid:       b.Close,
		Ask:       b.Close,
		Volume:    b.Volume,
		Timestamp: b.Timestamp.Add(time.Minute),
	}
}

// MarketEvent is one element of a replayed sequence. Exactly one of Tick
// and Bar is set.
type MarketEvent struct {
	Tick *Tick
	Bar  *Bar
}

// Time returns the timestamp of the carried tick or bar.
func (e MarketEvent) Time() time.Time {
	if e.Tick != nil {
		return e.Tick.Timestamp
	}
	if e.Bar != nil {
		return e.Bar.Timestamp
	}
	return time.Time{}
}

// Symbol returns the symbol of the carried tick or bar.
func (e MarketEvent) Symbol() string {
	if e.Tick != nil {
		return e.Tick.Symbol
	}
	if e.Bar != nil {
		return e.Bar.Symbol
	}
	return ""
}

// PlaybackStatus reports the progress of a replay session.
type PlaybackStatus string

const (
	PlaybackStatusIdle     PlaybackStatus = "idle"
	PlaybackStatusRunning  PlaybackStatus = "running"
	PlaybackStatusComplete PlaybackStatus = "complete"
	PlaybackStatusStopped  PlaybackStatus = "stopped"
)
