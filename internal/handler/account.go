package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/ledger"
	"github.com/efreitasn/futuresim/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accountSvc *service.AccountService
	orderSvc   *service.OrderService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc *service.AccountService, orderSvc *service.OrderService) *AccountHandler {
	return &AccountHandler{
		accountSvc: accountSvc,
		orderSvc:   orderSvc,
	}
}

// amountRequest is the JSON request body of the money endpoints.
type amountRequest struct {
	Amount *float64 `json:"amount"`
}

// positionResponse is a single position in the account response.
type positionResponse struct {
	Symbol          string  `json:"unifiedSymbol"`
	Direction       string  `json:"direction"`
	Volume          int64   `json:"volume"`
	FrozenVolume    int64   `json:"frozenVolume"`
	AvailableVolume int64   `json:"availableVolume"`
	OpenPrice       float64 `json:"openPrice"`
	LastPrice       float64 `json:"lastPrice"`
	Margin          float64 `json:"margin"`
	UnrealizedPnL   float64 `json:"unrealizedPnl"`
}

// accountResponse is the JSON response for account snapshots.
type accountResponse struct {
	AccountID       string             `json:"accountId"`
	MarketGatewayID string             `json:"marketGatewayId"`
	Balance         float64            `json:"balance"`
	Equity          float64            `json:"equity"`
	AvailableMargin float64            `json:"availableMargin"`
	FrozenMargin    float64            `json:"frozenMargin"`
	OrderMargin     float64            `json:"orderMargin"`
	PositionMargin  float64            `json:"positionMargin"`
	UnrealizedPnL   float64            `json:"unrealizedPnl"`
	Positions       []positionResponse `json:"positions"`
}

// orderListResponse is the JSON response for GET /accounts/{account_id}/orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

type tradeListResponse struct {
	Trades []tradeResponse `json:"trades"`
}

// submitOrderRequest is the JSON request body for POST /accounts/{account_id}/orders.
type submitOrderRequest struct {
	ClientOrderID string   `json:"clientOrderId"`
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Offset        string   `json:"offset"`
	PriceType     string   `json:"priceType"`
	LimitPrice    *float64 `json:"limitPrice"`
	Volume        int64    `json:"volume"`
}

// Get handles GET /accounts/{account_id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.accountSvc.Get(chi.URLParam(r, "account_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(snap))
}

// Money handles POST /accounts/{account_id}/money with a signed amount.
func (h *AccountHandler) Money(w http.ResponseWriter, r *http.Request) {
	h.moneyOp(w, r, h.accountSvc.Adjust)
}

// Deposit handles POST /accounts/{account_id}/deposit.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moneyOp(w, r, h.accountSvc.Deposit)
}

// Withdraw handles POST /accounts/{account_id}/withdraw.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moneyOp(w, r, h.accountSvc.Withdraw)
}

func (h *AccountHandler) moneyOp(w http.ResponseWriter, r *http.Request, op func(string, float64) (ledger.Snapshot, error)) {
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Amount == nil {
		WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(), "amount is required")
		return
	}

	snap, err := op(chi.URLParam(r, "account_id"), *req.Amount)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(snap))
}

// ListOrders handles GET /accounts/{account_id}/orders.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	// Parse query params.
	var statusFilter *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.OrderStatus(s)
		statusFilter = &status
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(), "page must be a valid integer")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, domain.ErrInvalidConfig.Error(), "limit must be a valid integer")
			return
		}
	}

	orders, total, err := h.orderSvc.ListOrders(accountID, statusFilter, page, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
		resp.Orders[i].Trades = nil
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListTrades handles GET /accounts/{account_id}/trades.
func (h *AccountHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.orderSvc.ListTrades(chi.URLParam(r, "account_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	resp := tradeListResponse{Trades: make([]tradeResponse, len(trades))}
	for i, t := range trades {
		resp.Trades[i] = buildTradeResponse(t)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// SubmitOrder handles POST /accounts/{account_id}/orders. A rejected
// order is still a created order; a resubmitted clientOrderId returns
// the original with 200.
func (h *AccountHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, created, err := h.orderSvc.SubmitOrder(service.SubmitOrderRequest{
		AccountID:     chi.URLParam(r, "account_id"),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          domain.Side(req.Side),
		Offset:        domain.Offset(req.Offset),
		PriceType:     domain.PriceType(req.PriceType),
		LimitPrice:    req.LimitPrice,
		Volume:        req.Volume,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	WriteJSON(w, status, buildOrderResponse(order))
}

func buildAccountResponse(snap ledger.Snapshot) accountResponse {
	positions := make([]positionResponse, len(snap.Positions))
	for i, p := range snap.Positions {
		positions[i] = positionResponse{
			Symbol:          p.Symbol,
			Direction:       string(p.Direction),
			Volume:          p.Volume,
			FrozenVolume:    p.FrozenVolume,
			AvailableVolume: p.Volume - p.FrozenVolume,
			OpenPrice:       domain.ToFloat(p.OpenPrice),
			LastPrice:       domain.ToFloat(p.LastPrice),
			Margin:          domain.ToFloat(p.Margin),
			UnrealizedPnL:   domain.ToFloat(p.UnrealizedPnL),
		}
	}
	return accountResponse{
		AccountID:       snap.AccountID,
		MarketGatewayID: snap.MarketGatewayID,
		Balance:         domain.ToFloat(snap.Balance),
		Equity:          domain.ToFloat(snap.Equity),
		AvailableMargin: domain.ToFloat(snap.AvailableMargin),
		FrozenMargin:    domain.ToFloat(snap.FrozenMargin),
		OrderMargin:     domain.ToFloat(snap.OrderMargin),
		PositionMargin:  domain.ToFloat(snap.PositionMargin),
		UnrealizedPnL:   domain.ToFloat(snap.UnrealizedPnL),
		Positions:       positions,
	}
}
