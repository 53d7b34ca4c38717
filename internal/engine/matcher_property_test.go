package engine

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/efreitasn/futuresim/internal/domain"
)

// Cancelling every unfilled order after any sequence of placements and
// ticks leaves no order margin frozen, and the equity identity holds.
func TestProperty_CancelAllReleasesOrderMargin(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		env := newTestEnv(rt, TickVolumeLiquidity{Ratio: 1})
		env.tick("1000", "1001")

		var placed []*domain.Order
		n := rapid.IntRange(1, 30).Draw(rt, "n")
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(rt, fmt.Sprintf("tick-%d", i)) {
				bid := rapid.Int64Range(950, 1050).Draw(rt, "bid")
				env.tick(fmt.Sprint(bid), fmt.Sprint(bid+1))
				continue
			}
			side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(rt, "side")
			offset := rapid.SampledFrom([]domain.Offset{domain.OffsetOpen, domain.OffsetClose}).Draw(rt, "offset")
			pt := rapid.SampledFrom([]domain.PriceType{domain.PriceTypeLimit, domain.PriceTypeMarket, domain.PriceTypeQueued, domain.PriceTypeCounter}).Draw(rt, "pt")
			price := ""
			if pt == domain.PriceTypeLimit {
				price = fmt.Sprint(rapid.Int64Range(950, 1050).Draw(rt, "price"))
			}
			vol := rapid.Int64Range(1, 10).Draw(rt, "vol")
			placed = append(placed, env.place(rt, side, offset, pt, price, vol))
		}

		for _, o := range placed {
			if !o.Status.Terminal() {
				if _, err := env.m.CancelOrder(o.OrderID); err != nil {
					rt.Fatalf("cancel %s: %v", o.OrderID, err)
				}
			}
			if o.FilledVolume+o.CancelledVolume != o.Volume {
				rt.Fatalf("order %s: filled %d + cancelled %d != volume %d", o.OrderID, o.FilledVolume, o.CancelledVolume, o.Volume)
			}
		}

		s := env.snapshot(rt)
		if !s.OrderMargin.IsZero() {
			rt.Fatalf("order margin %s left after cancelling everything", s.OrderMargin)
		}
		for _, p := range s.Positions {
			if p.FrozenVolume != 0 {
				rt.Fatalf("frozen volume %d left", p.FrozenVolume)
			}
		}
		if !s.Equity.Equal(s.AvailableMargin.Add(s.FrozenMargin).Add(s.UnrealizedPnL)) {
			rt.Fatalf("equity identity broken: %+v", s)
		}
		if env.m.RestingCount() != 0 {
			rt.Fatalf("%d orders still rest", env.m.RestingCount())
		}
	})
}
