package marketdata

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
)

// TickSink receives generated ticks.
type TickSink interface {
	OnTick(t domain.Tick)
}

type walk struct {
	contract domain.Contract
	price    decimal.Decimal
}

// SimFeed generates a random-walk quote stream for a set of contracts.
// Prices start at the contract's initial price and move by whole price
// ticks; the ask sits one tick above the bid.
type SimFeed struct {
	gatewayID string
	interval  time.Duration
	sink      TickSink
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	rng   *rand.Rand
	walks []*walk

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewSimFeed creates a feed. A nil rng is seeded from the clock.
func NewSimFeed(gatewayID string, contracts []domain.Contract, interval time.Duration, rng *rand.Rand, sink TickSink, logger *slog.Logger) *SimFeed {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	walks := make([]*walk, 0, len(contracts))
	for _, c := range contracts {
		price := c.InitialPrice
		if !price.IsPositive() {
			price = c.PriceTick.Mul(decimal.NewFromInt(1000))
		}
		walks = append(walks, &walk{contract: c, price: price})
	}
	return &SimFeed{
		gatewayID: gatewayID,
		interval:  interval,
		sink:      sink,
		logger:    logger.With(slog.String("gateway_id", gatewayID)),
		now:       time.Now,
		rng:       rng,
		walks:     walks,
	}
}

// Start launches a goroutine that emits one tick per symbol every
// interval until Stop is called or ctx is cancelled.
func (f *SimFeed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	f.logger.Info("sim feed started", slog.Int("symbols", len(f.walks)), slog.Duration("interval", f.interval))

	go func() {
		defer close(done)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.Step()
			}
		}
	}()
}

// Stop ends the feed and waits for its goroutine. It is safe to call
// more than once.
func (f *SimFeed) Stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		cancel, done := f.cancel, f.done
		f.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-done
		f.logger.Info("sim feed stopped")
	})
}

// Step moves every walk once and emits the resulting ticks.
func (f *SimFeed) Step() {
	now := f.now()
	ticks := make([]domain.Tick, 0, len(f.walks))

	f.mu.Lock()
	for _, w := range f.walks {
		tick := w.contract.PriceTick
		w.price = w.price.Add(tick.Mul(decimal.NewFromInt(int64(f.rng.Intn(3) - 1))))
		if w.price.LessThan(tick) {
			w.price = tick
		}
		bid, ask := w.price, w.price.Add(tick)
		last := bid
		if f.rng.Intn(2) == 1 {
			last = ask
		}
		bidVol := int64(f.rng.Intn(20) + 1)
		askVol := int64(f.rng.Intn(20) + 1)
		ticks = append(ticks, domain.Tick{
			GatewayID: f.gatewayID,
			Symbol:    w.contract.UnifiedSymbol,
			LastPrice: last,
			Bid:       bid,
			Ask:       ask,
			BidVolume: bidVol,
			AskVolume: askVol,
			Volume:    int64(f.rng.Intn(10) + 1),
			Timestamp: now,
		})
	}
	f.mu.Unlock()

	for _, t := range ticks {
		f.sink.OnTick(t)
	}
}
