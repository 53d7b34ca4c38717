package engine

import (
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
)

func makeEntry(side domain.Side, price int64, seq uint64, volume int64) OrderBookEntry {
	id := string(side) + "-" + strconv.FormatUint(seq, 10)
	return OrderBookEntry{
		Price:   decimal.NewFromInt(price),
		Seq:     seq,
		OrderID: id,
		Order: &domain.Order{
			OrderID: id,
			Side:    side,
			Price:   decimal.NewFromInt(price),
			Volume:  volume,
			Status:  domain.OrderStatusPending,
		},
	}
}

func TestBuyLess(t *testing.T) {
	high := makeEntry(domain.SideBuy, 200, 2, 1)
	low := makeEntry(domain.SideBuy, 100, 1, 1)
	if !buyLess(high, low) || buyLess(low, high) {
		t.Error("higher buy price should sort first")
	}
	early := makeEntry(domain.SideBuy, 100, 1, 1)
	late := makeEntry(domain.SideBuy, 100, 2, 1)
	if !buyLess(early, late) || buyLess(late, early) {
		t.Error("earlier arrival should sort first at the same price")
	}
}

func TestSellLess(t *testing.T) {
	low := makeEntry(domain.SideSell, 100, 2, 1)
	high := makeEntry(domain.SideSell, 200, 1, 1)
	if !sellLess(low, high) || sellLess(high, low) {
		t.Error("lower sell price should sort first")
	}
	early := makeEntry(domain.SideSell, 100, 1, 1)
	late := makeEntry(domain.SideSell, 100, 2, 1)
	if !sellLess(early, late) {
		t.Error("earlier arrival should sort first at the same price")
	}
}

func TestOrderBook_InsertBestRemove(t *testing.T) {
	book := NewOrderBook("X")
	if _, ok := book.BestBuy(); ok {
		t.Fatal("empty book has a best buy")
	}

	book.Insert(makeEntry(domain.SideBuy, 100, 1, 1))
	book.Insert(makeEntry(domain.SideBuy, 105, 2, 1))
	book.Insert(makeEntry(domain.SideSell, 110, 3, 1))
	book.Insert(makeEntry(domain.SideSell, 108, 4, 1))

	if best, _ := book.BestBuy(); !best.Price.Equal(decimal.NewFromInt(105)) {
		t.Errorf("best buy = %s, want 105", best.Price)
	}
	if best, _ := book.BestSell(); !best.Price.Equal(decimal.NewFromInt(108)) {
		t.Errorf("best sell = %s, want 108", best.Price)
	}
	if book.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", book.Len())
	}

	book.Remove("buy-2")
	book.Remove("missing")
	if best, _ := book.BestBuy(); !best.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("best buy after remove = %s, want 100", best.Price)
	}
	if book.Contains("buy-2") || !book.Contains("sell-4") {
		t.Error("Contains does not track removals")
	}

	entries := book.Entries()
	if len(entries) != 3 || entries[0].OrderID != "buy-1" || entries[1].OrderID != "sell-4" {
		t.Errorf("Entries() order = %v", entries)
	}
}

func TestOrderBook_TopLevels(t *testing.T) {
	book := NewOrderBook("X")
	book.Insert(makeEntry(domain.SideBuy, 100, 1, 2))
	book.Insert(makeEntry(domain.SideBuy, 100, 2, 3))
	book.Insert(makeEntry(domain.SideBuy, 99, 3, 1))
	book.Insert(makeEntry(domain.SideBuy, 98, 4, 1))

	levels := book.TopBuys(2)
	if len(levels) != 2 {
		t.Fatalf("TopBuys(2) returned %d levels", len(levels))
	}
	if levels[0].TotalVolume != 5 || levels[0].OrderCount != 2 {
		t.Errorf("level 0 = %+v, want volume 5 across 2 orders", levels[0])
	}
	if !levels[1].Price.Equal(decimal.NewFromInt(99)) {
		t.Errorf("level 1 price = %s, want 99", levels[1].Price)
	}
	if got := book.TopSells(5); len(got) != 0 {
		t.Errorf("TopSells on empty side = %v", got)
	}
	if got := book.TopBuys(0); len(got) != 0 {
		t.Errorf("TopBuys(0) = %v", got)
	}
}

func TestOrderBook_WalkStopsEarly(t *testing.T) {
	book := NewOrderBook("X")
	for i := uint64(1); i <= 5; i++ {
		book.Insert(makeEntry(domain.SideSell, 100+int64(i), i, 1))
	}
	var seen []string
	book.WalkSells(func(e OrderBookEntry) bool {
		seen = append(seen, e.Price.String())
		return len(seen) < 2
	})
	if len(seen) != 2 || seen[0] != "101" || seen[1] != "102" {
		t.Errorf("WalkSells visited %v", seen)
	}
}

func TestBookManager_GetOrCreate_Concurrent(t *testing.T) {
	bm := NewBookManager()
	var wg sync.WaitGroup
	books := make([]*OrderBook, 50)
	for i := range books {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			books[i] = bm.GetOrCreate("X")
		}(i)
	}
	wg.Wait()
	for _, b := range books {
		if b != books[0] {
			t.Fatal("GetOrCreate returned different books for the same symbol")
		}
	}
	bm.GetOrCreate("A")
	if all := bm.All(); len(all) != 2 || all[0].symbol != "A" {
		t.Errorf("All() = %d books", len(all))
	}
	if _, ok := bm.Get("missing"); ok {
		t.Error("Get(missing) ok = true")
	}
}
