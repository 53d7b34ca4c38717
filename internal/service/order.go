package service

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/engine"
	"github.com/efreitasn/futuresim/internal/ledger"
	"github.com/efreitasn/futuresim/internal/store"
)

var clientOrderIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:         true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
	domain.OrderStatusRejected:        true,
}

// Router resolves the matcher an order belongs to.
type Router interface {
	Route(accountID string) (*engine.Matcher, error)
	Matcher(marketGatewayID string) (*engine.Matcher, error)
	Get(gatewayID string) (domain.Gateway, error)
}

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	AccountID     string
	ClientOrderID string
	Symbol        string
	Side          domain.Side
	Offset        domain.Offset
	PriceType     domain.PriceType
	LimitPrice    *float64 // required for limit, must be nil otherwise
	Volume        int64
}

// OrderService handles order submission, retrieval, cancellation and listing.
type OrderService struct {
	router    Router
	ledger    *ledger.Ledger
	orders    *store.OrderStore
	trades    *store.TradeStore
	contracts *domain.ContractRegistry
	logger    *slog.Logger

	// clientMu serializes submissions carrying a client order id so a
	// retry cannot race the original.
	clientMu sync.Mutex
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(
	router Router,
	l *ledger.Ledger,
	orders *store.OrderStore,
	trades *store.TradeStore,
	contracts *domain.ContractRegistry,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		router:    router,
		ledger:    l,
		orders:    orders,
		trades:    trades,
		contracts: contracts,
		logger:    logger,
	}
}

// SubmitOrder validates the request and places the order on the matcher
// of the account's market gateway. The returned bool is false when a
// resubmitted client order id returned the existing order.
//
// Margin and position shortfalls do not fail the request: the order is
// returned in status rejected.
func (s *OrderService) SubmitOrder(req SubmitOrderRequest) (domain.Order, bool, error) {
	price, err := s.validate(req)
	if err != nil {
		return domain.Order{}, false, err
	}

	if req.ClientOrderID != "" {
		s.clientMu.Lock()
		defer s.clientMu.Unlock()
		if existing := s.orders.GetByClientID(req.AccountID, req.ClientOrderID); existing != nil {
			return s.snapshot(existing), false, nil
		}
	}

	matcher, err := s.router.Route(req.AccountID)
	if err != nil {
		return domain.Order{}, false, err
	}
	market, err := s.router.Get(matcher.GatewayID())
	if err != nil {
		return domain.Order{}, false, err
	}
	if !slices.Contains(market.SubscribedSymbols(), req.Symbol) {
		return domain.Order{}, false, &domain.ValidationError{
			Message: fmt.Sprintf("symbol %s is not subscribed on gateway %s", req.Symbol, market.GatewayID),
		}
	}

	order, err := matcher.PlaceOrder(&domain.Order{
		ClientOrderID: req.ClientOrderID,
		AccountID:     req.AccountID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Offset:        req.Offset,
		PriceType:     req.PriceType,
		Price:         price,
		Volume:        req.Volume,
	})
	if err != nil {
		return domain.Order{}, false, err
	}

	snap := matcher.Snapshot(order)
	s.logger.Info("order placed",
		slog.String("order_id", snap.OrderID),
		slog.String("account_id", snap.AccountID),
		slog.String("symbol", snap.Symbol),
		slog.String("price_type", string(snap.PriceType)),
		slog.String("status", string(snap.Status)),
	)
	return snap, true, nil
}

func (s *OrderService) validate(req SubmitOrderRequest) (decimal.Decimal, error) {
	if req.AccountID == "" {
		return decimal.Zero, &domain.ValidationError{Message: "account id is required"}
	}
	if req.ClientOrderID != "" && !clientOrderIDRegex.MatchString(req.ClientOrderID) {
		return decimal.Zero, &domain.ValidationError{Message: "clientOrderId must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return decimal.Zero, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if req.Offset != domain.OffsetOpen && req.Offset != domain.OffsetClose {
		return decimal.Zero, &domain.ValidationError{Message: "offset must be 'open' or 'close'"}
	}
	if req.Volume <= 0 {
		return decimal.Zero, &domain.ValidationError{Message: "volume must be a positive integer"}
	}
	contract, err := s.contracts.Get(req.Symbol)
	if err != nil {
		return decimal.Zero, &domain.ValidationError{Message: fmt.Sprintf("unknown symbol: %q", req.Symbol)}
	}

	switch req.PriceType {
	case domain.PriceTypeLimit:
		if req.LimitPrice == nil {
			return decimal.Zero, &domain.ValidationError{Message: "limitPrice is required for limit orders"}
		}
		if *req.LimitPrice <= 0 {
			return decimal.Zero, &domain.ValidationError{Message: "limitPrice must be greater than 0"}
		}
		price := decimal.NewFromFloat(*req.LimitPrice)
		if contract.PriceTick.IsPositive() && !price.Mod(contract.PriceTick).IsZero() {
			return decimal.Zero, &domain.ValidationError{
				Message: fmt.Sprintf("limitPrice must be a multiple of the price tick %s", contract.PriceTick),
			}
		}
		return price, nil
	case domain.PriceTypeMarket, domain.PriceTypeQueued, domain.PriceTypeCounter:
		if req.LimitPrice != nil {
			return decimal.Zero, &domain.ValidationError{Message: fmt.Sprintf("%s orders must not include limitPrice", req.PriceType)}
		}
		return decimal.Zero, nil
	}
	return decimal.Zero, &domain.ValidationError{
		Message: fmt.Sprintf("Unknown price type: %s. Must be one of: limit, market, queued, counter", req.PriceType),
	}
}

// GetOrder retrieves an order by ID with all its trades.
func (s *OrderService) GetOrder(orderID string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return s.snapshot(order), nil
}

// CancelOrder cancels a pending or partially filled order. Cancelling a
// terminal order returns the order together with domain.ErrAlreadyTerminal.
func (s *OrderService) CancelOrder(orderID string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	matcher, err := s.router.Matcher(order.GatewayID)
	if err != nil {
		return s.snapshot(order), domain.ErrAlreadyTerminal
	}
	cancelled, err := matcher.CancelOrder(orderID)
	if cancelled == nil {
		return domain.Order{}, err
	}
	return matcher.Snapshot(cancelled), err
}

// ListOrders returns a paginated list of orders for an account with
// optional status filtering.
func (s *OrderService) ListOrders(accountID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	if _, err := s.ledger.Snapshot(accountID); err != nil {
		return nil, 0, err
	}
	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: pending, partially_filled, filled, cancelled, rejected", *status),
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}

	orders, total := s.orders.ListByAccount(accountID, status, page, limit)
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		out[i] = s.snapshot(o)
	}
	return out, total, nil
}

// ListTrades returns every trade of an account, oldest first.
func (s *OrderService) ListTrades(accountID string) ([]domain.Trade, error) {
	if _, err := s.ledger.Snapshot(accountID); err != nil {
		return nil, err
	}
	trades := s.trades.ListByAccount(accountID)
	out := make([]domain.Trade, len(trades))
	for i, t := range trades {
		out[i] = *t
	}
	return out, nil
}

// snapshot copies an order under its book lock when its matcher is still
// around.
func (s *OrderService) snapshot(o *domain.Order) domain.Order {
	if matcher, err := s.router.Matcher(o.GatewayID); err == nil {
		return matcher.Snapshot(o)
	}
	c := *o
	c.Trades = append([]*domain.Trade(nil), o.Trades...)
	return c
}
