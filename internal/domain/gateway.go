package domain

import "time"

// GatewayKind is the closed set of gateway kinds.
type GatewayKind string

const (
	GatewayKindSimMarketData GatewayKind = "sim_market_data"
	GatewayKindSimTrade      GatewayKind = "sim_trade"
	GatewayKindPlayback      GatewayKind = "playback"
)

// IsMarketData reports whether gateways of this kind feed prices.
func (k GatewayKind) IsMarketData() bool {
	return k == GatewayKindSimMarketData || k == GatewayKindPlayback
}

// ConnectionState is the lifecycle state of a gateway.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

// Precision is the granularity of replayed market data.
type Precision string

const (
	PrecisionTick      Precision = "tick"
	PrecisionMinuteBar Precision = "minute_bar"
)

// GatewaySettings is the kind-specific configuration of a gateway.
// The set of implementations is closed: SimMarketSettings,
// SimTradeSettings and PlaybackSettings.
type GatewaySettings interface {
	Kind() GatewayKind
	Validate() error
	gatewaySettings()
}

// SimMarketSettings configures a simulated live market-data gateway.
type SimMarketSettings struct {
	Symbols []string
}

func (SimMarketSettings) Kind() GatewayKind { return GatewayKindSimMarketData }
func (SimMarketSettings) gatewaySettings()  {}

func (s SimMarketSettings) Validate() error {
	return validateSymbols(s.Symbols)
}

// SimTradeSettings configures a simulated trade gateway. The gateway id
// doubles as the id of the account it trades for.
type SimTradeSettings struct {
	MarketGatewayID string
}

func (SimTradeSettings) Kind() GatewayKind { return GatewayKindSimTrade }
func (SimTradeSettings) gatewaySettings()  {}

func (s SimTradeSettings) Validate() error {
	if s.MarketGatewayID == "" {
		return Invalidf("marketGatewayId is required for a sim_trade gateway")
	}
	return nil
}

// PlaybackSettings configures a historical replay gateway.
type PlaybackSettings struct {
	Symbols   []string
	Start     time.Time
	End       time.Time
	Precision Precision
	Speed     float64 // simulated time per wall-clock time
}

func (PlaybackSettings) Kind() GatewayKind { return GatewayKindPlayback }
func (PlaybackSettings) gatewaySettings()  {}

func (s PlaybackSettings) Validate() error {
	if err := validateSymbols(s.Symbols); err != nil {
		return err
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return Invalidf("playback start and end dates are required")
	}
	if !s.Start.Before(s.End) {
		return Invalidf("playback start must be before end")
	}
	switch s.Precision {
	case PrecisionTick, PrecisionMinuteBar:
	default:
		return Invalidf("unknown playback precision: %q", s.Precision)
	}
	if s.Speed <= 0 {
		return Invalidf("playback speed must be > 0")
	}
	return nil
}

func validateSymbols(symbols []string) error {
	if len(symbols) == 0 {
		return Invalidf("symbols must not be empty")
	}
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if s == "" {
			return Invalidf("symbols must not contain empty values")
		}
		if seen[s] {
			return Invalidf("duplicate symbol: %s", s)
		}
		seen[s] = true
	}
	return nil
}

// Gateway is a logical connection: a market-data feed or a trade channel.
type Gateway struct {
	GatewayID string
	State     ConnectionState
	Settings  GatewaySettings
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kind returns the kind carried by the gateway's settings.
func (g *Gateway) Kind() GatewayKind {
	return g.Settings.Kind()
}

// SubscribedSymbols returns the symbol set of market-data gateways.
// Trade gateways subscribe to nothing.
func (g *Gateway) SubscribedSymbols() []string {
	switch s := g.Settings.(type) {
	case SimMarketSettings:
		return s.Symbols
	case PlaybackSettings:
		return s.Symbols
	default:
		return nil
	}
}

// MarketGatewayID returns the market gateway a trade gateway is bound to,
// or the gateway's own id for market-data gateways.
func (g *Gateway) MarketGatewayID() string {
	if s, ok := g.Settings.(SimTradeSettings); ok {
		return s.MarketGatewayID
	}
	return g.GatewayID
}
