package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/engine"
	"github.com/efreitasn/futuresim/internal/service"
)

// MarketHandler handles HTTP requests for chart, quote and depth endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// barResponse is one chart bar. Timestamp is the bar start in epoch
// milliseconds.
type barResponse struct {
	GatewayID string  `json:"gatewayId"`
	Symbol    string  `json:"unifiedSymbol"`
	Open      float64 `json:"openPrice"`
	High      float64 `json:"highPrice"`
	Low       float64 `json:"lowPrice"`
	Close     float64 `json:"closePrice"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"actionTimestamp"`
}

type quoteResponse struct {
	GatewayID string  `json:"gatewayId"`
	Symbol    string  `json:"unifiedSymbol"`
	LastPrice float64 `json:"lastPrice"`
	Bid       float64 `json:"bidPrice"`
	Ask       float64 `json:"askPrice"`
	BidVolume int64   `json:"bidVolume"`
	AskVolume int64   `json:"askVolume"`
	Volume    int64   `json:"volume"`
	Timestamp string  `json:"timestamp"`
}

type levelResponse struct {
	Price       float64 `json:"price"`
	TotalVolume int64   `json:"totalVolume"`
	OrderCount  int     `json:"orderCount"`
}

type bookResponse struct {
	GatewayID  string          `json:"gatewayId"`
	Symbol     string          `json:"unifiedSymbol"`
	Bids       []levelResponse `json:"bids"`
	Asks       []levelResponse `json:"asks"`
	Spread     *float64        `json:"spread"`
	SnapshotAt string          `json:"snapshotAt"`
}

type contractResponse struct {
	Symbol           string  `json:"unifiedSymbol"`
	Name             string  `json:"name"`
	Multiplier       float64 `json:"multiplier"`
	LongMarginRatio  float64 `json:"longMarginRatio"`
	ShortMarginRatio float64 `json:"shortMarginRatio"`
	PriceTick        float64 `json:"priceTick"`
	CommissionTicks  int64   `json:"commissionTicks"`
}

// Bars handles GET /data/bar/min.
func (h *MarketHandler) Bars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.BarsRequest{
		GatewayID: q.Get("gatewayId"),
		Symbol:    q.Get("unifiedSymbol"),
	}
	if s := q.Get("refStartTimestamp"); s != "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(), "refStartTimestamp must be epoch milliseconds")
			return
		}
		if ms > 0 {
			req.RefStart = time.UnixMilli(ms)
		}
	}
	if s := q.Get("firstLoad"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(), "firstLoad must be true or false")
			return
		}
		req.FirstLoad = v
	}

	bars, err := h.marketSvc.Bars(req)
	if err != nil {
		mapError(w, err)
		return
	}
	resp := make([]barResponse, len(bars))
	for i, b := range bars {
		resp[i] = barResponse{
			GatewayID: b.GatewayID,
			Symbol:    b.Symbol,
			Open:      domain.ToFloat(b.Open),
			High:      domain.ToFloat(b.High),
			Low:       domain.ToFloat(b.Low),
			Close:     domain.ToFloat(b.Close),
			Volume:    b.Volume,
			Timestamp: b.Timestamp.UnixMilli(),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Quote handles GET /market/quote.
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tick, err := h.marketSvc.Quote(q.Get("gatewayId"), q.Get("unifiedSymbol"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, quoteResponse{
		GatewayID: tick.GatewayID,
		Symbol:    tick.Symbol,
		LastPrice: domain.ToFloat(tick.LastPrice),
		Bid:       domain.ToFloat(tick.Bid),
		Ask:       domain.ToFloat(tick.Ask),
		BidVolume: tick.BidVolume,
		AskVolume: tick.AskVolume,
		Volume:    tick.Volume,
		Timestamp: formatTime(tick.Timestamp),
	})
}

// Book handles GET /market/book.
func (h *MarketHandler) Book(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	depth := 10
	if d := q.Get("depth"); d != "" {
		var err error
		depth, err = strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(), "depth must be a valid integer")
			return
		}
	}

	book, err := h.marketSvc.Book(q.Get("gatewayId"), q.Get("unifiedSymbol"), depth)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := bookResponse{
		GatewayID:  book.GatewayID,
		Symbol:     book.Symbol,
		Bids:       buildLevels(book.Bids),
		Asks:       buildLevels(book.Asks),
		SnapshotAt: formatTime(book.SnapshotAt),
	}
	if book.Spread != nil {
		v := domain.ToFloat(*book.Spread)
		resp.Spread = &v
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Contracts handles GET /market/contracts.
func (h *MarketHandler) Contracts(w http.ResponseWriter, r *http.Request) {
	contracts := h.marketSvc.Contracts()
	resp := make([]contractResponse, len(contracts))
	for i, c := range contracts {
		resp[i] = contractResponse{
			Symbol:           c.UnifiedSymbol,
			Name:             c.Name,
			Multiplier:       domain.ToFloat(c.Multiplier),
			LongMarginRatio:  domain.ToFloat(c.LongMarginRatio),
			ShortMarginRatio: domain.ToFloat(c.ShortMarginRatio),
			PriceTick:        domain.ToFloat(c.PriceTick),
			CommissionTicks:  c.CommissionTicks,
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildLevels(levels []engine.PriceLevel) []levelResponse {
	out := make([]levelResponse, len(levels))
	for i, l := range levels {
		out[i] = levelResponse{
			Price:       domain.ToFloat(l.Price),
			TotalVolume: l.TotalVolume,
			OrderCount:  l.OrderCount,
		}
	}
	return out
}
