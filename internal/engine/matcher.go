package engine

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/feed"
	"github.com/efreitasn/futuresim/internal/ledger"
	"github.com/efreitasn/futuresim/internal/store"
)

// Ledger is the part of the account ledger the matcher drives.
type Ledger interface {
	ReserveMargin(accountID string, req ledger.ReserveRequest) error
	ReleaseMargin(accountID, orderID string) error
	SettleFill(accountID string, trade *domain.Trade) error
	MarkPrice(marketGatewayID, symbol string, price decimal.Decimal)
}

// Publisher receives order and trade events.
type Publisher interface {
	Publish(ev feed.Event)
}

// Matcher owns the order books of one market-data gateway. Each book is
// a single-writer unit: placements, cancels and ticks for a symbol run
// one at a time under the book lock.
type Matcher struct {
	gatewayID string
	books     *BookManager
	ledger    Ledger
	orders    *store.OrderStore
	trades    *store.TradeStore
	liquidity LiquidityPolicy
	publisher Publisher
	logger    *slog.Logger
	seq       atomic.Uint64
	now       func() time.Time

	// gate guards admission. A drained matcher or account takes no new
	// orders until it is opened again.
	gate           sync.RWMutex
	closed         bool
	closedAccounts map[string]struct{}
}

// NewMatcher creates a Matcher for the given market gateway.
func NewMatcher(
	gatewayID string,
	l Ledger,
	orders *store.OrderStore,
	trades *store.TradeStore,
	liquidity LiquidityPolicy,
	publisher Publisher,
	logger *slog.Logger,
) *Matcher {
	if liquidity == nil {
		liquidity = UnlimitedLiquidity{}
	}
	return &Matcher{
		gatewayID: gatewayID,
		books:     NewBookManager(),
		ledger:    l,
		orders:    orders,
		trades:    trades,
		liquidity: liquidity,
		publisher: publisher,
		logger:    logger.With(slog.String("gateway_id", gatewayID)),
		now:       time.Now,

		closedAccounts: make(map[string]struct{}),
	}
}

// GatewayID returns the market gateway the matcher serves.
func (m *Matcher) GatewayID() string {
	return m.gatewayID
}

// PlaceOrder accepts an order and runs it through the matching rules of
// its price type.
//
// The caller provides AccountID, Symbol, Side, Offset, PriceType, Volume
// and, for limit orders, Price. The matcher assigns OrderID, GatewayID
// and timestamps and drives every status transition.
//
// Business rejections (insufficient margin or position, no reference
// price) produce an order in status rejected and a nil error. A non-nil
// error means nothing was recorded; domain.ErrDependencyNotConnected is
// returned once the matcher or the account has been drained.
func (m *Matcher) PlaceOrder(order *domain.Order) (*domain.Order, error) {
	book := m.books.GetOrCreate(order.Symbol)

	book.mu.Lock()
	defer book.mu.Unlock()

	if !m.accepts(order.AccountID) {
		return nil, domain.ErrDependencyNotConnected
	}

	now := m.now()
	order.OrderID = m.gatewayID + "_" + uuid.New().String()
	order.GatewayID = m.gatewayID
	order.CreatedAt = now
	order.UpdatedAt = now
	order.FilledVolume = 0
	order.CancelledVolume = 0
	order.Status = domain.OrderStatusPending
	order.Trades = []*domain.Trade{}

	// Step 1: Price the order against the reference quote.
	reservePrice, err := m.priceOrder(book, order)

	// Step 2: Reserve margin or position volume.
	if err == nil {
		err = m.ledger.ReserveMargin(order.AccountID, ledger.ReserveRequest{
			OrderID: order.OrderID,
			Symbol:  order.Symbol,
			Side:    order.Side,
			Offset:  order.Offset,
			Volume:  order.Volume,
			Price:   reservePrice,
		})
	}
	if err != nil {
		if !isBusinessRejection(err) {
			return nil, err
		}
		m.reject(order, err, now)
		m.orders.Create(order)
		m.logger.Debug("order rejected",
			slog.String("order_id", order.OrderID),
			slog.String("account_id", order.AccountID),
			slog.String("reason", order.RejectReason),
		)
		m.publishOrder(order)
		return order, nil
	}
	m.orders.Create(order)

	// Step 3: Immediate matching.
	switch order.PriceType {
	case domain.PriceTypeMarket, domain.PriceTypeCounter:
		price := oppositeQuote(book.lastTick, order.Side)
		if !m.fill(order, price, order.Volume, now) {
			_ = m.ledger.ReleaseMargin(order.AccountID, order.OrderID)
			m.reject(order, errSettlement, now)
			m.publishOrder(order)
			return order, nil
		}
		book.consume(order.Side, order.Volume)
	case domain.PriceTypeLimit:
		if price, ok := crossPrice(book.lastTick, order); ok {
			qty := capVolume(order.RemainingVolume(), book.remaining(order.Side))
			if qty > 0 && m.fill(order, price, qty, now) {
				book.consume(order.Side, qty)
			}
		}
	case domain.PriceTypeQueued:
		// Rests until a later tick reaches it.
	}

	// Step 4: Rest the remainder.
	if !order.Status.Terminal() {
		book.Insert(OrderBookEntry{
			Price:   order.Price,
			Seq:     m.seq.Add(1),
			OrderID: order.OrderID,
			Order:   order,
		})
	}

	m.publishOrder(order)
	return order, nil
}

// CancelOrder cancels the unfilled remainder of an order. It returns the
// order together with domain.ErrAlreadyTerminal when the order is no
// longer pending or partially filled.
func (m *Matcher) CancelOrder(orderID string) (*domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return nil, err
	}

	book := m.books.GetOrCreate(order.Symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	// Re-check status under lock (a tick may have filled it meanwhile).
	if order.Status.Terminal() {
		return order, domain.ErrAlreadyTerminal
	}

	book.Remove(orderID)
	if err := m.ledger.ReleaseMargin(order.AccountID, orderID); err != nil {
		m.logger.Error("release on cancel failed", slog.String("order_id", orderID), slog.String("error", err.Error()))
	}

	now := m.now()
	order.CancelledVolume = order.Volume - order.FilledVolume
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = now

	m.publishOrder(order)
	return order, nil
}

// OnTick records the tick as the symbol's reference quote, marks
// positions to market and fills resting orders the tick reaches: buys
// when ask <= price, sells when bid >= price, at the order price and in
// book priority, within the liquidity budget of the tick.
func (m *Matcher) OnTick(tick domain.Tick) {
	book := m.books.GetOrCreate(tick.Symbol)

	book.mu.Lock()
	defer book.mu.Unlock()

	t := tick
	t.GatewayID = m.gatewayID
	book.lastTick = &t
	book.buyBudget = m.liquidity.Budget(t, domain.SideBuy)
	book.sellBudget = m.liquidity.Budget(t, domain.SideSell)
	if !tick.LastPrice.IsZero() {
		m.ledger.MarkPrice(m.gatewayID, tick.Symbol, tick.LastPrice)
	}

	ask := oppositeQuote(&t, domain.SideBuy)
	bid := oppositeQuote(&t, domain.SideSell)

	var buys, sells []OrderBookEntry
	if !ask.IsZero() {
		book.WalkBuys(func(e OrderBookEntry) bool {
			if ask.GreaterThan(e.Price) {
				return false
			}
			buys = append(buys, e)
			return true
		})
	}
	if !bid.IsZero() {
		book.WalkSells(func(e OrderBookEntry) bool {
			if bid.LessThan(e.Price) {
				return false
			}
			sells = append(sells, e)
			return true
		})
	}

	m.fillResting(book, buys, domain.SideBuy, t.Timestamp)
	m.fillResting(book, sells, domain.SideSell, t.Timestamp)
}

func (m *Matcher) fillResting(book *OrderBook, entries []OrderBookEntry, side domain.Side, ts time.Time) {
	if ts.IsZero() {
		ts = m.now()
	}
	for _, e := range entries {
		if book.remaining(side) == 0 {
			return
		}
		order := e.Order
		qty := capVolume(order.RemainingVolume(), book.remaining(side))
		if !m.fill(order, e.Price, qty, ts) {
			book.Remove(order.OrderID)
			_ = m.ledger.ReleaseMargin(order.AccountID, order.OrderID)
			m.reject(order, errSettlement, ts)
			m.publishOrder(order)
			continue
		}
		book.consume(side, qty)
		if order.Status == domain.OrderStatusFilled {
			book.Remove(order.OrderID)
		}
		m.publishOrder(order)
	}
}

// DrainAccount stops the account from placing orders, then rejects its
// resting orders with domain.ErrGatewayDisconnected and releases what
// they reserved. OpenAccount lifts the stop.
func (m *Matcher) DrainAccount(accountID string) []*domain.Order {
	m.gate.Lock()
	m.closedAccounts[accountID] = struct{}{}
	m.gate.Unlock()
	return m.drain(func(o *domain.Order) bool { return o.AccountID == accountID })
}

// DrainAll closes the matcher to new orders and rejects every resting
// order on every book. Open reopens it.
func (m *Matcher) DrainAll() []*domain.Order {
	m.gate.Lock()
	m.closed = true
	m.gate.Unlock()
	return m.drain(func(*domain.Order) bool { return true })
}

// Open lets the matcher take orders again after DrainAll.
func (m *Matcher) Open() {
	m.gate.Lock()
	defer m.gate.Unlock()
	m.closed = false
}

// OpenAccount lets an account drained by DrainAccount place orders again.
func (m *Matcher) OpenAccount(accountID string) {
	m.gate.Lock()
	defer m.gate.Unlock()
	delete(m.closedAccounts, accountID)
}

// accepts is checked under the book lock, so a drain that closes the
// gate before taking the lock sees every order admitted before it.
func (m *Matcher) accepts(accountID string) bool {
	m.gate.RLock()
	defer m.gate.RUnlock()
	if m.closed {
		return false
	}
	_, closed := m.closedAccounts[accountID]
	return !closed
}

func (m *Matcher) drain(match func(*domain.Order) bool) []*domain.Order {
	var drained []*domain.Order
	for _, book := range m.books.All() {
		book.mu.Lock()
		now := m.now()
		for _, e := range book.Entries() {
			if !match(e.Order) {
				continue
			}
			book.Remove(e.OrderID)
			if err := m.ledger.ReleaseMargin(e.Order.AccountID, e.OrderID); err != nil {
				m.logger.Error("release on drain failed", slog.String("order_id", e.OrderID), slog.String("error", err.Error()))
			}
			m.reject(e.Order, domain.ErrGatewayDisconnected, now)
			m.publishOrder(e.Order)
			drained = append(drained, e.Order)
		}
		book.mu.Unlock()
	}
	return drained
}

// Quote returns the last reference tick of a symbol.
func (m *Matcher) Quote(symbol string) (domain.Tick, bool) {
	book, ok := m.books.Get(symbol)
	if !ok {
		return domain.Tick{}, false
	}
	book.mu.Lock()
	defer book.mu.Unlock()
	if book.lastTick == nil {
		return domain.Tick{}, false
	}
	return *book.lastTick, true
}

// Depth returns up to n aggregated resting levels per side.
func (m *Matcher) Depth(symbol string, n int) (buys, sells []PriceLevel) {
	book, ok := m.books.Get(symbol)
	if !ok {
		return []PriceLevel{}, []PriceLevel{}
	}
	book.mu.Lock()
	defer book.mu.Unlock()
	return book.TopBuys(n), book.TopSells(n)
}

// Snapshot copies an order of this matcher under its book lock.
func (m *Matcher) Snapshot(order *domain.Order) domain.Order {
	book := m.books.GetOrCreate(order.Symbol)
	book.mu.Lock()
	defer book.mu.Unlock()
	return copyOrder(order)
}

// RestingCount returns the number of orders resting on all books.
func (m *Matcher) RestingCount() int {
	n := 0
	for _, book := range m.books.All() {
		book.mu.Lock()
		n += book.Len()
		book.mu.Unlock()
	}
	return n
}

// errSettlement marks an order whose fill the ledger refused.
var errSettlement = errors.New("settlement_failed")

// fill books a trade of qty lots at price. It returns false if the
// ledger refused the settlement, in which case the order is unchanged.
func (m *Matcher) fill(order *domain.Order, price decimal.Decimal, qty int64, ts time.Time) bool {
	trade := &domain.Trade{
		TradeID:   uuid.New().String(),
		OrderID:   order.OrderID,
		AccountID: order.AccountID,
		GatewayID: m.gatewayID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Offset:    order.Offset,
		Price:     price,
		Volume:    qty,
		Timestamp: ts,
	}
	if err := m.ledger.SettleFill(order.AccountID, trade); err != nil {
		m.logger.Error("fill settlement failed",
			slog.String("order_id", order.OrderID),
			slog.String("error", err.Error()),
		)
		return false
	}

	order.FilledVolume += qty
	order.Trades = append(order.Trades, trade)
	order.UpdatedAt = ts
	if order.FilledVolume == order.Volume {
		order.Status = domain.OrderStatusFilled
	} else {
		order.Status = domain.OrderStatusPartiallyFilled
	}

	m.trades.Append(trade)
	m.publisher.Publish(feed.Event{
		Type:      feed.TopicTrade,
		GatewayID: m.gatewayID,
		AccountID: order.AccountID,
		Data:      *trade,
	})
	return true
}

func (m *Matcher) reject(order *domain.Order, reason error, ts time.Time) {
	order.CancelledVolume = order.Volume - order.FilledVolume
	order.Status = domain.OrderStatusRejected
	order.RejectReason = reason.Error()
	order.UpdatedAt = ts
}

func (m *Matcher) publishOrder(order *domain.Order) {
	m.publisher.Publish(feed.Event{
		Type:      feed.TopicOrder,
		GatewayID: m.gatewayID,
		AccountID: order.AccountID,
		Data:      copyOrder(order),
	})
}

// priceOrder fixes the order price for queued and counter orders and
// returns the price margin is reserved at.
func (m *Matcher) priceOrder(book *OrderBook, order *domain.Order) (decimal.Decimal, error) {
	if order.PriceType == domain.PriceTypeLimit {
		return order.Price, nil
	}
	if book.lastTick == nil {
		return decimal.Zero, domain.ErrNoReferencePrice
	}

	var price decimal.Decimal
	switch order.PriceType {
	case domain.PriceTypeQueued:
		price = ownQuote(book.lastTick, order.Side)
		order.Price = price
	case domain.PriceTypeCounter:
		price = oppositeQuote(book.lastTick, order.Side)
		order.Price = price
	case domain.PriceTypeMarket:
		price = oppositeQuote(book.lastTick, order.Side)
		order.Price = decimal.Zero
	}
	if !price.IsPositive() {
		return decimal.Zero, domain.ErrNoReferencePrice
	}
	return price, nil
}

// oppositeQuote is the price an order of side trades against: the ask
// for buys, the bid for sells. Missing quotes fall back to the last price.
func oppositeQuote(t *domain.Tick, side domain.Side) decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	q := t.Ask
	if side == domain.SideSell {
		q = t.Bid
	}
	if q.IsZero() {
		return t.LastPrice
	}
	return q
}

// ownQuote is the passive price on the order's own side.
func ownQuote(t *domain.Tick, side domain.Side) decimal.Decimal {
	return oppositeQuote(t, side.Opposite())
}

// crossPrice reports whether a limit order crosses the reference quote
// and at what price: the better of the limit and the quote.
func crossPrice(t *domain.Tick, order *domain.Order) (decimal.Decimal, bool) {
	q := oppositeQuote(t, order.Side)
	if q.IsZero() {
		return decimal.Zero, false
	}
	if order.Side == domain.SideBuy {
		if q.GreaterThan(order.Price) {
			return decimal.Zero, false
		}
		return decimal.Min(q, order.Price), true
	}
	if q.LessThan(order.Price) {
		return decimal.Zero, false
	}
	return decimal.Max(q, order.Price), true
}

func capVolume(remaining, budget int64) int64 {
	if budget == Unlimited || budget > remaining {
		return remaining
	}
	return budget
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, domain.ErrInsufficientMargin) ||
		errors.Is(err, domain.ErrInsufficientPosition) ||
		errors.Is(err, domain.ErrNoReferencePrice)
}

func copyOrder(o *domain.Order) domain.Order {
	c := *o
	c.Trades = append([]*domain.Trade(nil), o.Trades...)
	return c
}
