// Package gateway owns gateway lifetimes: creation, connection,
// disconnection and deletion of market-data and trade gateways, and the
// feeds and playback sessions that run while they are connected.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/engine"
	"github.com/efreitasn/futuresim/internal/ledger"
	"github.com/efreitasn/futuresim/internal/marketdata"
	"github.com/efreitasn/futuresim/internal/playback"
	"github.com/efreitasn/futuresim/internal/store"
)

var gatewayIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,64}$`)

// Config holds the tunables of connected gateways.
type Config struct {
	SimTickInterval time.Duration
	Liquidity       engine.LiquidityPolicy
}

// Deps groups the stores and services the manager wires gateways into.
type Deps struct {
	Gateways  *store.GatewayStore
	Orders    *store.OrderStore
	Trades    *store.TradeStore
	Bars      *store.BarStore
	Ledger    *ledger.Ledger
	Contracts *domain.ContractRegistry
	Source    playback.Source
	Publisher engine.Publisher

	// OnAccountDeleted runs after a trade gateway and its account are
	// deleted.
	OnAccountDeleted func(accountID string)
}

// runtime is what runs while a market gateway is connected.
type runtime struct {
	feed    *marketdata.SimFeed
	session *playback.Session
}

func (r *runtime) stop() {
	if r.feed != nil {
		r.feed.Stop()
	}
	if r.session != nil {
		r.session.Stop()
	}
}

// Manager is the gateway connection manager. Lifecycle operations are
// serialized; a connect that loads history releases the lock while it
// loads and leaves the gateway in state connecting meanwhile.
type Manager struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	matchers map[string]*engine.Matcher
	routers  map[string]*marketRouter
	runtimes map[string]*runtime
}

// NewManager creates a Manager.
func NewManager(deps Deps, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Liquidity == nil {
		cfg.Liquidity = engine.UnlimitedLiquidity{}
	}
	if cfg.SimTickInterval <= 0 {
		cfg.SimTickInterval = 500 * time.Millisecond
	}
	return &Manager{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		matchers: make(map[string]*engine.Matcher),
		routers:  make(map[string]*marketRouter),
		runtimes: make(map[string]*runtime),
	}
}

// Create validates the kind-specific settings and registers a gateway in
// state disconnected. Creating a sim_trade gateway opens its account.
func (m *Manager) Create(gatewayID string, settings domain.GatewaySettings) (domain.Gateway, error) {
	if !gatewayIDRegex.MatchString(gatewayID) {
		return domain.Gateway{}, &domain.ValidationError{Message: "gatewayId must match ^[a-zA-Z0-9_.@-]{1,64}$"}
	}
	if settings == nil {
		return domain.Gateway{}, domain.Invalidf("gateway settings are required")
	}
	if err := settings.Validate(); err != nil {
		return domain.Gateway{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.deps.Gateways.Get(gatewayID); err == nil {
		return domain.Gateway{}, domain.ErrGatewayExists
	}

	switch s := settings.(type) {
	case domain.SimMarketSettings:
		if err := m.checkSymbols(s.Symbols); err != nil {
			return domain.Gateway{}, err
		}
	case domain.PlaybackSettings:
		if err := m.checkSymbols(s.Symbols); err != nil {
			return domain.Gateway{}, err
		}
	case domain.SimTradeSettings:
		market, err := m.deps.Gateways.Get(s.MarketGatewayID)
		if err != nil {
			return domain.Gateway{}, domain.Invalidf("market gateway %q does not exist", s.MarketGatewayID)
		}
		if !market.Kind().IsMarketData() {
			return domain.Gateway{}, domain.Invalidf("gateway %q is not a market-data gateway", s.MarketGatewayID)
		}
		if err := m.deps.Ledger.Open(gatewayID, s.MarketGatewayID); err != nil {
			if errors.Is(err, domain.ErrAccountExists) {
				return domain.Gateway{}, domain.ErrGatewayExists
			}
			return domain.Gateway{}, err
		}
	}

	now := time.Now()
	g := &domain.Gateway{
		GatewayID: gatewayID,
		State:     domain.StateDisconnected,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.deps.Gateways.Create(g); err != nil {
		if settings.Kind() == domain.GatewayKindSimTrade {
			m.deps.Ledger.Close(gatewayID)
		}
		return domain.Gateway{}, err
	}

	if settings.Kind().IsMarketData() {
		matcher := engine.NewMatcher(gatewayID, m.deps.Ledger, m.deps.Orders, m.deps.Trades, m.cfg.Liquidity, m.deps.Publisher, m.logger)
		m.matchers[gatewayID] = matcher
		m.routers[gatewayID] = newMarketRouter(gatewayID, matcher, m.deps.Bars, m.deps.Publisher)
	}

	m.logger.Info("gateway created",
		slog.String("gateway_id", gatewayID),
		slog.String("kind", string(settings.Kind())),
	)
	return *g, nil
}

func (m *Manager) checkSymbols(symbols []string) error {
	for _, s := range symbols {
		if !m.deps.Contracts.Exists(s) {
			return domain.Invalidf("unknown symbol: %s", s)
		}
	}
	return nil
}

// Connect moves a gateway from disconnected (or failed) through
// connecting to connected. Market gateways start their sim feed or
// playback session; sim_trade gateways require their market gateway to
// be connected. Connecting a connected gateway is a no-op.
func (m *Manager) Connect(ctx context.Context, gatewayID string) (domain.Gateway, error) {
	m.mu.Lock()
	g, err := m.deps.Gateways.Get(gatewayID)
	if err != nil {
		m.mu.Unlock()
		return domain.Gateway{}, err
	}
	switch g.State {
	case domain.StateConnected:
		m.mu.Unlock()
		return g, nil
	case domain.StateConnecting:
		m.mu.Unlock()
		return domain.Gateway{}, domain.ErrGatewayBusy
	}

	if s, ok := g.Settings.(domain.SimTradeSettings); ok {
		defer m.mu.Unlock()
		market, err := m.deps.Gateways.Get(s.MarketGatewayID)
		if err != nil || market.State != domain.StateConnected {
			return domain.Gateway{}, domain.ErrDependencyNotConnected
		}
		if matcher := m.matchers[s.MarketGatewayID]; matcher != nil {
			matcher.OpenAccount(gatewayID)
		}
		return m.setState(gatewayID, domain.StateConnected, "")
	}

	if _, err := m.setState(gatewayID, domain.StateConnecting, ""); err != nil {
		m.mu.Unlock()
		return domain.Gateway{}, err
	}
	router := m.routers[gatewayID]
	m.mu.Unlock()

	rt, err := m.startRuntime(ctx, g, router)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.logger.Error("gateway connect failed",
			slog.String("gateway_id", gatewayID),
			slog.String("error", err.Error()),
		)
		if _, serr := m.setState(gatewayID, domain.StateFailed, err.Error()); serr != nil {
			return domain.Gateway{}, serr
		}
		return domain.Gateway{}, err
	}
	m.runtimes[gatewayID] = rt
	if matcher := m.matchers[gatewayID]; matcher != nil {
		matcher.Open()
	}
	return m.setState(gatewayID, domain.StateConnected, "")
}

// startRuntime launches the feed of a market gateway. The feed outlives
// the connect request, so it runs on its own context.
func (m *Manager) startRuntime(ctx context.Context, g domain.Gateway, router *marketRouter) (*runtime, error) {
	switch s := g.Settings.(type) {
	case domain.SimMarketSettings:
		contracts := make([]domain.Contract, 0, len(s.Symbols))
		for _, sym := range s.Symbols {
			c, err := m.deps.Contracts.Get(sym)
			if err != nil {
				return nil, err
			}
			contracts = append(contracts, c)
		}
		sim := marketdata.NewSimFeed(g.GatewayID, contracts, m.cfg.SimTickInterval, nil, router, m.logger)
		sim.Start(context.Background())
		return &runtime{feed: sim}, nil

	case domain.PlaybackSettings:
		if m.deps.Source == nil {
			return nil, fmt.Errorf("no history source configured")
		}
		events, err := playback.LoadSequence(ctx, m.deps.Source, s)
		if err != nil {
			return nil, err
		}
		session := playback.NewSession(g.GatewayID, events, s, router, m.logger)
		session.Start(context.Background())
		return &runtime{session: session}, nil
	}
	return nil, fmt.Errorf("gateway kind %s has no feed", g.Kind())
}

// Disconnect stops whatever runs for the gateway, rejects its resting
// orders with gateway_disconnected and moves it to disconnected.
// Disconnecting a market gateway also disconnects the sim_trade
// gateways bound to it. Disconnecting a disconnected gateway is a no-op.
func (m *Manager) Disconnect(gatewayID string) (domain.Gateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectLocked(gatewayID)
}

func (m *Manager) disconnectLocked(gatewayID string) (domain.Gateway, error) {
	g, err := m.deps.Gateways.Get(gatewayID)
	if err != nil {
		return domain.Gateway{}, err
	}
	switch g.State {
	case domain.StateDisconnected:
		return g, nil
	case domain.StateConnecting:
		return domain.Gateway{}, domain.ErrGatewayBusy
	}

	if g.Kind() == domain.GatewayKindSimTrade {
		if matcher := m.matchers[g.MarketGatewayID()]; matcher != nil {
			drained := matcher.DrainAccount(gatewayID)
			m.logDrain(gatewayID, len(drained))
		}
		return m.setState(gatewayID, domain.StateDisconnected, "")
	}

	if rt := m.runtimes[gatewayID]; rt != nil {
		rt.stop()
		delete(m.runtimes, gatewayID)
	}
	matcher := m.matchers[gatewayID]
	for _, trade := range m.deps.Gateways.List(domain.GatewayKindSimTrade) {
		if trade.MarketGatewayID() == gatewayID && trade.State != domain.StateDisconnected {
			if matcher != nil {
				m.logDrain(trade.GatewayID, len(matcher.DrainAccount(trade.GatewayID)))
			}
			if _, err := m.setState(trade.GatewayID, domain.StateDisconnected, ""); err != nil {
				return domain.Gateway{}, err
			}
		}
	}
	if matcher != nil {
		m.logDrain(gatewayID, len(matcher.DrainAll()))
	}
	if router := m.routers[gatewayID]; router != nil {
		router.agg.Reset()
	}
	return m.setState(gatewayID, domain.StateDisconnected, "")
}

func (m *Manager) logDrain(gatewayID string, n int) {
	if n > 0 {
		m.logger.Info("resting orders rejected on disconnect",
			slog.String("gateway_id", gatewayID),
			slog.Int("orders", n),
		)
	}
}

// Delete destroys a disconnected gateway. Unknown ids are ignored. A
// market gateway that still has sim_trade gateways bound to it cannot be
// deleted.
func (m *Manager) Delete(gatewayID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.deps.Gateways.Get(gatewayID)
	if errors.Is(err, domain.ErrGatewayNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if g.State != domain.StateDisconnected && g.State != domain.StateFailed {
		return domain.ErrGatewayBusy
	}

	if g.Kind().IsMarketData() {
		for _, trade := range m.deps.Gateways.List(domain.GatewayKindSimTrade) {
			if trade.MarketGatewayID() == gatewayID {
				return domain.ErrGatewayBusy
			}
		}
		delete(m.matchers, gatewayID)
		delete(m.routers, gatewayID)
		m.deps.Bars.DeleteGateway(gatewayID)
	} else {
		m.deps.Ledger.Close(gatewayID)
		m.deps.Orders.DeleteByAccount(gatewayID)
		m.deps.Trades.DeleteByAccount(gatewayID)
		if m.deps.OnAccountDeleted != nil {
			m.deps.OnAccountDeleted(gatewayID)
		}
	}

	if err := m.deps.Gateways.Delete(gatewayID); err != nil {
		return err
	}
	m.logger.Info("gateway deleted", slog.String("gateway_id", gatewayID))
	return nil
}

// Get returns a gateway by id.
func (m *Manager) Get(gatewayID string) (domain.Gateway, error) {
	return m.deps.Gateways.Get(gatewayID)
}

// List returns the gateways of a kind, or all of them for an empty kind.
func (m *Manager) List(kind domain.GatewayKind) []domain.Gateway {
	return m.deps.Gateways.List(kind)
}

// Matcher returns the matcher of a market gateway.
func (m *Manager) Matcher(marketGatewayID string) (*engine.Matcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matcher, ok := m.matchers[marketGatewayID]
	if !ok {
		return nil, domain.ErrGatewayNotFound
	}
	return matcher, nil
}

// Route returns the matcher orders of an account are placed on. The
// account's trade gateway and the market gateway it is bound to must
// both be connected.
func (m *Manager) Route(accountID string) (*engine.Matcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trade, err := m.deps.Gateways.Get(accountID)
	if errors.Is(err, domain.ErrGatewayNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if trade.Kind() != domain.GatewayKindSimTrade {
		return nil, domain.ErrAccountNotFound
	}
	if trade.State != domain.StateConnected {
		return nil, domain.ErrDependencyNotConnected
	}
	market, err := m.deps.Gateways.Get(trade.MarketGatewayID())
	if err != nil || market.State != domain.StateConnected {
		return nil, domain.ErrDependencyNotConnected
	}
	matcher, ok := m.matchers[market.GatewayID]
	if !ok {
		return nil, domain.ErrDependencyNotConnected
	}
	return matcher, nil
}

// Playback returns the progress of a playback gateway's session.
func (m *Manager) Playback(gatewayID string) (playback.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := m.runtimes[gatewayID]
	if rt == nil || rt.session == nil {
		return playback.Progress{}, false
	}
	return rt.session.Progress(), true
}

// Shutdown disconnects every connected gateway.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.deps.Gateways.List("") {
		if g.Kind().IsMarketData() && g.State == domain.StateConnected {
			if _, err := m.disconnectLocked(g.GatewayID); err != nil {
				m.logger.Error("disconnect on shutdown failed",
					slog.String("gateway_id", g.GatewayID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (m *Manager) setState(gatewayID string, state domain.ConnectionState, lastError string) (domain.Gateway, error) {
	err := m.deps.Gateways.Update(gatewayID, func(g *domain.Gateway) {
		g.State = state
		g.LastError = lastError
		g.UpdatedAt = time.Now()
	})
	if err != nil {
		return domain.Gateway{}, err
	}
	m.logger.Info("gateway state changed",
		slog.String("gateway_id", gatewayID),
		slog.String("state", string(state)),
	)
	return m.deps.Gateways.Get(gatewayID)
}
