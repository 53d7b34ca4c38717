package engine

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/efreitasn/futuresim/internal/domain"
)

// Walking either side yields entries in price priority, then arrival.
func TestProperty_BookSidesStaySorted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook("TEST")
		n := rapid.IntRange(1, 60).Draw(t, "n")
		for i := 1; i <= n; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, fmt.Sprintf("side-%d", i))
			price := rapid.Int64Range(90, 110).Draw(t, fmt.Sprintf("price-%d", i))
			book.Insert(makeEntry(side, price, uint64(i), 1))
		}

		var prev *OrderBookEntry
		book.WalkBuys(func(e OrderBookEntry) bool {
			if prev != nil && (e.Price.GreaterThan(prev.Price) || (e.Price.Equal(prev.Price) && e.Seq < prev.Seq)) {
				t.Fatalf("buy side out of order: %s/%d after %s/%d", e.Price, e.Seq, prev.Price, prev.Seq)
			}
			cur := e
			prev = &cur
			return true
		})

		prev = nil
		book.WalkSells(func(e OrderBookEntry) bool {
			if prev != nil && (e.Price.LessThan(prev.Price) || (e.Price.Equal(prev.Price) && e.Seq < prev.Seq)) {
				t.Fatalf("sell side out of order: %s/%d after %s/%d", e.Price, e.Seq, prev.Price, prev.Seq)
			}
			cur := e
			prev = &cur
			return true
		})

		if book.Len() != n {
			t.Fatalf("Len() = %d, want %d", book.Len(), n)
		}
	})
}
