package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/engine"
	"github.com/efreitasn/futuresim/internal/store"
)

// olderBarsPage is the page size when a chart scrolls back in time.
const olderBarsPage = 100

var endOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// BarsRequest selects chart bars of one series.
type BarsRequest struct {
	GatewayID string
	Symbol    string
	RefStart  time.Time // exclusive upper bound; zero means now
	FirstLoad bool
}

// BookResponse is an aggregated depth snapshot of resting simulated orders.
type BookResponse struct {
	GatewayID  string
	Symbol     string
	Bids       []engine.PriceLevel
	Asks       []engine.PriceLevel
	Spread     *decimal.Decimal // nil if either side empty
	SnapshotAt time.Time
}

// MarketService answers chart, quote and depth queries.
type MarketService struct {
	router       Router
	bars         *store.BarStore
	contracts    *domain.ContractRegistry
	historyLimit int
}

// NewMarketService creates a new MarketService. historyLimit caps the
// bars returned on a first load.
func NewMarketService(router Router, bars *store.BarStore, contracts *domain.ContractRegistry, historyLimit int) *MarketService {
	if historyLimit <= 0 {
		historyLimit = 500
	}
	return &MarketService{
		router:       router,
		bars:         bars,
		contracts:    contracts,
		historyLimit: historyLimit,
	}
}

// Bars returns minute bars before RefStart, oldest first: up to
// historyLimit of them on a first load or without RefStart, otherwise
// one page.
func (s *MarketService) Bars(req BarsRequest) ([]domain.Bar, error) {
	if err := s.checkSeries(req.GatewayID, req.Symbol); err != nil {
		return nil, err
	}
	if req.RefStart.IsZero() {
		return s.bars.Before(req.GatewayID, req.Symbol, endOfTime, s.historyLimit), nil
	}
	limit := olderBarsPage
	if req.FirstLoad {
		limit = s.historyLimit
	}
	return s.bars.Before(req.GatewayID, req.Symbol, req.RefStart, limit), nil
}

// Quote returns the last reference tick of a symbol on a market gateway.
func (s *MarketService) Quote(gatewayID, symbol string) (domain.Tick, error) {
	if err := s.checkSeries(gatewayID, symbol); err != nil {
		return domain.Tick{}, err
	}
	matcher, err := s.router.Matcher(gatewayID)
	if err != nil {
		return domain.Tick{}, err
	}
	tick, ok := matcher.Quote(symbol)
	if !ok {
		return domain.Tick{}, domain.ErrNoReferencePrice
	}
	return tick, nil
}

// Book returns up to depth aggregated price levels per side.
func (s *MarketService) Book(gatewayID, symbol string, depth int) (*BookResponse, error) {
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{Message: "depth must be between 1 and 50"}
	}
	if err := s.checkSeries(gatewayID, symbol); err != nil {
		return nil, err
	}
	matcher, err := s.router.Matcher(gatewayID)
	if err != nil {
		return nil, err
	}

	bids, asks := matcher.Depth(symbol, depth)
	resp := &BookResponse{
		GatewayID:  gatewayID,
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		SnapshotAt: time.Now(),
	}
	if len(bids) > 0 && len(asks) > 0 {
		spread := asks[0].Price.Sub(bids[0].Price)
		resp.Spread = &spread
	}
	return resp, nil
}

// Contracts lists the tradable contracts.
func (s *MarketService) Contracts() []domain.Contract {
	return s.contracts.List()
}

func (s *MarketService) checkSeries(gatewayID, symbol string) error {
	if gatewayID == "" || symbol == "" {
		return &domain.ValidationError{Message: "gatewayId and unifiedSymbol are required"}
	}
	g, err := s.router.Get(gatewayID)
	if err != nil {
		return err
	}
	if !g.Kind().IsMarketData() {
		return &domain.ValidationError{Message: "gateway " + gatewayID + " does not carry market data"}
	}
	if !s.contracts.Exists(symbol) {
		return domain.ErrSymbolNotFound
	}
	return nil
}
