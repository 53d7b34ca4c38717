package engine

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
)

// OrderBookEntry represents a single order resting on the book.
type OrderBookEntry struct {
	Price   decimal.Decimal
	Seq     uint64 // arrival sequence, unique per matcher
	OrderID string
	Order   *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price       decimal.Decimal
	TotalVolume int64
	OrderCount  int
}

// buyLess orders the buy side by price descending, then arrival.
// Min() returns the best buy.
func buyLess(a, b OrderBookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return a.Seq < b.Seq
}

// sellLess orders the sell side by price ascending, then arrival.
func sellLess(a, b OrderBookEntry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return a.Seq < b.Seq
}

// OrderBook holds the resting orders and the last reference tick of a
// single symbol. All access goes through mu; the matcher holds it for a
// whole placement, cancel or tick pass.
type OrderBook struct {
	symbol   string
	mu       sync.Mutex
	buys     *btree.BTreeG[OrderBookEntry]
	sells    *btree.BTreeG[OrderBookEntry]
	index    map[string]OrderBookEntry // order_id → entry
	lastTick *domain.Tick

	// Volume lastTick still offers buyers and sellers; Unlimited or >= 0.
	buyBudget  int64
	sellBudget int64
}

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol: symbol,
		buys:   btree.NewG[OrderBookEntry](degree, buyLess),
		sells:  btree.NewG[OrderBookEntry](degree, sellLess),
		index:  make(map[string]OrderBookEntry),
	}
}

// remaining returns what the last tick still offers orders of side.
func (ob *OrderBook) remaining(side domain.Side) int64 {
	if side == domain.SideBuy {
		return ob.buyBudget
	}
	return ob.sellBudget
}

// consume takes qty from the side's budget, never below zero.
func (ob *OrderBook) consume(side domain.Side, qty int64) {
	budget := &ob.sellBudget
	if side == domain.SideBuy {
		budget = &ob.buyBudget
	}
	if *budget == Unlimited {
		return
	}
	*budget = max(*budget-qty, 0)
}

// Insert rests an entry on the side of its order.
func (ob *OrderBook) Insert(entry OrderBookEntry) {
	if entry.Order.Side == domain.SideBuy {
		ob.buys.ReplaceOrInsert(entry)
	} else {
		ob.sells.ReplaceOrInsert(entry)
	}
	ob.index[entry.OrderID] = entry
}

// Remove deletes an order from the book by order ID. Unknown ids are ignored.
func (ob *OrderBook) Remove(orderID string) {
	entry, ok := ob.index[orderID]
	if !ok {
		return
	}
	delete(ob.index, orderID)
	if entry.Order.Side == domain.SideBuy {
		ob.buys.Delete(entry)
	} else {
		ob.sells.Delete(entry)
	}
}

// Contains reports whether the order rests on the book.
func (ob *OrderBook) Contains(orderID string) bool {
	_, ok := ob.index[orderID]
	return ok
}

// BestBuy returns the highest-priority resting buy.
func (ob *OrderBook) BestBuy() (OrderBookEntry, bool) {
	return ob.buys.Min()
}

// BestSell returns the highest-priority resting sell.
func (ob *OrderBook) BestSell() (OrderBookEntry, bool) {
	return ob.sells.Min()
}

// WalkBuys iterates buys by priority (highest price first) until fn
// returns false.
func (ob *OrderBook) WalkBuys(fn func(OrderBookEntry) bool) {
	ob.buys.Ascend(fn)
}

// WalkSells iterates sells by priority (lowest price first) until fn
// returns false.
func (ob *OrderBook) WalkSells(fn func(OrderBookEntry) bool) {
	ob.sells.Ascend(fn)
}

// Entries returns every resting entry, buys first, each side by priority.
func (ob *OrderBook) Entries() []OrderBookEntry {
	out := make([]OrderBookEntry, 0, len(ob.index))
	collect := func(e OrderBookEntry) bool {
		out = append(out, e)
		return true
	}
	ob.buys.Ascend(collect)
	ob.sells.Ascend(collect)
	return out
}

// Len returns the number of resting orders on both sides.
func (ob *OrderBook) Len() int {
	return len(ob.index)
}

// TopBuys returns up to n aggregated buy levels, price descending.
func (ob *OrderBook) TopBuys(n int) []PriceLevel {
	return topLevels(ob.buys, n)
}

// TopSells returns up to n aggregated sell levels, price ascending.
func (ob *OrderBook) TopSells(n int) []PriceLevel {
	return topLevels(ob.sells, n)
}

func topLevels(tree *btree.BTreeG[OrderBookEntry], n int) []PriceLevel {
	if n <= 0 {
		return []PriceLevel{}
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry OrderBookEntry) bool {
		remaining := entry.Order.RemainingVolume()
		if last := len(levels) - 1; last >= 0 && levels[last].Price.Equal(entry.Price) {
			levels[last].TotalVolume += remaining
			levels[last].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:       entry.Price,
			TotalVolume: remaining,
			OrderCount:  1,
		})
		return true
	})
	return levels
}

// BookManager is a thread-safe map of symbol → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	bm.books[symbol] = book
	return book
}

// Get returns the book for symbol if it exists.
func (bm *BookManager) Get(symbol string) (*OrderBook, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	book, ok := bm.books[symbol]
	return book, ok
}

// All returns every book sorted by symbol.
func (bm *BookManager) All() []*OrderBook {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	out := make([]*OrderBook, 0, len(bm.books))
	for _, b := range bm.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].symbol < out[j].symbol })
	return out
}
