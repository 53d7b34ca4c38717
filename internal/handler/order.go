package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// orderResponse is the JSON view of an order. Price is null for market
// orders and for orders rejected before pricing.
type orderResponse struct {
	OrderID         string          `json:"orderId"`
	ClientOrderID   string          `json:"clientOrderId,omitempty"`
	GatewayID       string          `json:"gatewayId"`
	AccountID       string          `json:"accountId"`
	Symbol          string          `json:"unifiedSymbol"`
	Side            string          `json:"side"`
	Offset          string          `json:"offset"`
	PriceType       string          `json:"priceType"`
	Price           *float64        `json:"price"`
	Volume          int64           `json:"volume"`
	FilledVolume    int64           `json:"filledVolume"`
	CancelledVolume int64           `json:"cancelledVolume"`
	RemainingVolume int64           `json:"remainingVolume"`
	Status          string          `json:"status"`
	RejectReason    string          `json:"rejectReason,omitempty"`
	AveragePrice    *float64        `json:"averagePrice"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
	Trades          []tradeResponse `json:"trades,omitempty"`
}

// tradeResponse is a single fill.
type tradeResponse struct {
	TradeID   string  `json:"tradeId"`
	OrderID   string  `json:"orderId"`
	AccountID string  `json:"accountId"`
	GatewayID string  `json:"gatewayId"`
	Symbol    string  `json:"unifiedSymbol"`
	Side      string  `json:"side"`
	Offset    string  `json:"offset"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Timestamp string  `json:"timestamp"`
}

// alreadyTerminalResponse is the soft error of cancelling a finished
// order: it carries the order as it stands.
type alreadyTerminalResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Order   orderResponse `json:"order"`
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.CancelOrder(chi.URLParam(r, "order_id"))
	if errors.Is(err, domain.ErrAlreadyTerminal) && order.OrderID != "" {
		WriteJSON(w, http.StatusConflict, alreadyTerminalResponse{
			Error:   domain.ErrAlreadyTerminal.Error(),
			Message: "order is " + string(order.Status) + " and can no longer be cancelled",
			Order:   buildOrderResponse(order),
		})
		return
	}
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

func buildOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:         o.OrderID,
		ClientOrderID:   o.ClientOrderID,
		GatewayID:       o.GatewayID,
		AccountID:       o.AccountID,
		Symbol:          o.Symbol,
		Side:            string(o.Side),
		Offset:          string(o.Offset),
		PriceType:       string(o.PriceType),
		Volume:          o.Volume,
		FilledVolume:    o.FilledVolume,
		CancelledVolume: o.CancelledVolume,
		RemainingVolume: o.RemainingVolume(),
		Status:          string(o.Status),
		RejectReason:    o.RejectReason,
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
		Trades:          make([]tradeResponse, len(o.Trades)),
	}
	if !o.Price.IsZero() {
		p := domain.ToFloat(o.Price)
		resp.Price = &p
	}
	if avg, ok := o.AveragePrice(); ok {
		v := domain.ToFloat(avg)
		resp.AveragePrice = &v
	}
	for i, t := range o.Trades {
		resp.Trades[i] = buildTradeResponse(*t)
	}
	return resp
}

func buildTradeResponse(t domain.Trade) tradeResponse {
	return tradeResponse{
		TradeID:   t.TradeID,
		OrderID:   t.OrderID,
		AccountID: t.AccountID,
		GatewayID: t.GatewayID,
		Symbol:    t.Symbol,
		Side:      string(t.Side),
		Offset:    string(t.Offset),
		Price:     domain.ToFloat(t.Price),
		Volume:    t.Volume,
		Timestamp: formatTime(t.Timestamp),
	}
}
