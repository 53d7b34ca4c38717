package marketdata

import (
	"sync"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
)

// Aggregator folds ticks into one-minute bars per symbol.
type Aggregator struct {
	gatewayID string
	mu        sync.Mutex
	current   map[string]*domain.Bar
}

func NewAggregator(gatewayID string) *Aggregator {
	return &Aggregator{
		gatewayID: gatewayID,
		current:   make(map[string]*domain.Bar),
	}
}

// Add folds a tick into the bar of its minute and returns that bar as it
// stands. closed is set when the tick opened a new minute, and holds the
// final state of the previous bar.
func (a *Aggregator) Add(t domain.Tick) (bar domain.Bar, closed *domain.Bar) {
	price := t.LastPrice
	if price.IsZero() {
		price = t.Bid
	}
	start := t.Timestamp.Truncate(time.Minute)

	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.current[t.Symbol]
	if cur != nil && !cur.Timestamp.Equal(start) {
		prev := *cur
		closed = &prev
		cur = nil
	}
	if cur == nil {
		cur = &domain.Bar{
			GatewayID: a.gatewayID,
			Symbol:    t.Symbol,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Timestamp: start,
		}
		a.current[t.Symbol] = cur
	} else {
		if price.GreaterThan(cur.High) {
			cur.High = price
		}
		if price.LessThan(cur.Low) {
			cur.Low = price
		}
		cur.Close = price
	}
	cur.Volume += t.Volume
	return *cur, closed
}

// Reset drops every partial bar.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = make(map[string]*domain.Bar)
}
