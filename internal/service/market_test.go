package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
)

func TestMarketService_Bars(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 250; i++ {
		p := decimal.NewFromInt(int64(5000 + i))
		env.bars.Append(domain.Bar{
			GatewayID: "SIM", Symbol: simSymbol,
			Open: p, High: p, Low: p, Close: p,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	first, err := env.marketSvc.Bars(BarsRequest{GatewayID: "SIM", Symbol: simSymbol, FirstLoad: true})
	if err != nil {
		t.Fatalf("Bars(firstLoad) error: %v", err)
	}
	if len(first) != 250 {
		t.Errorf("first load = %d bars, want 250", len(first))
	}

	ref := base.Add(200 * time.Minute)
	older, err := env.marketSvc.Bars(BarsRequest{GatewayID: "SIM", Symbol: simSymbol, RefStart: ref})
	if err != nil {
		t.Fatalf("Bars(ref) error: %v", err)
	}
	if len(older) != 100 {
		t.Fatalf("older = %d bars, want 100", len(older))
	}
	if !older[len(older)-1].Timestamp.Before(ref) || !older[0].Timestamp.Equal(base.Add(100*time.Minute)) {
		t.Errorf("older range = %s..%s", older[0].Timestamp, older[len(older)-1].Timestamp)
	}

	firstBefore, err := env.marketSvc.Bars(BarsRequest{GatewayID: "SIM", Symbol: simSymbol, RefStart: ref, FirstLoad: true})
	if err != nil {
		t.Fatalf("Bars(firstLoad, ref) error: %v", err)
	}
	if len(firstBefore) != 200 {
		t.Fatalf("first load before ref = %d bars, want 200", len(firstBefore))
	}
	if !firstBefore[len(firstBefore)-1].Timestamp.Before(ref) || !firstBefore[0].Timestamp.Equal(base) {
		t.Errorf("first load range = %s..%s", firstBefore[0].Timestamp, firstBefore[len(firstBefore)-1].Timestamp)
	}

	if _, err := env.marketSvc.Bars(BarsRequest{GatewayID: "nope", Symbol: simSymbol}); !errors.Is(err, domain.ErrGatewayNotFound) {
		t.Errorf("unknown gateway error = %v", err)
	}
	if _, err := env.marketSvc.Bars(BarsRequest{GatewayID: "acc", Symbol: simSymbol}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("trade gateway error = %v", err)
	}
	if _, err := env.marketSvc.Bars(BarsRequest{GatewayID: "SIM", Symbol: "nope"}); !errors.Is(err, domain.ErrSymbolNotFound) {
		t.Errorf("unknown symbol error = %v", err)
	}
}

func TestMarketService_QuoteAndBook(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	if _, err := env.marketSvc.Quote("SIM", simSymbol); !errors.Is(err, domain.ErrNoReferencePrice) {
		t.Fatalf("Quote() before ticks error = %v", err)
	}
	env.tick(t, 5000, 5001)
	q, err := env.marketSvc.Quote("SIM", simSymbol)
	if err != nil || q.Bid.String() != "5000" {
		t.Fatalf("Quote() = %+v, %v", q, err)
	}

	book, err := env.marketSvc.Book("SIM", simSymbol, 5)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if book.Spread != nil || len(book.Bids) != 0 {
		t.Errorf("empty book = %+v", book)
	}

	if _, _, err := env.orderSvc.SubmitOrder(limitReq(domain.SideBuy, domain.OffsetOpen, 4990, 2)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.orderSvc.SubmitOrder(limitReq(domain.SideSell, domain.OffsetOpen, 5010, 1)); err != nil {
		t.Fatal(err)
	}
	book, _ = env.marketSvc.Book("SIM", simSymbol, 5)
	if len(book.Bids) != 1 || book.Bids[0].TotalVolume != 2 || len(book.Asks) != 1 {
		t.Fatalf("book = %+v", book)
	}
	if book.Spread == nil || book.Spread.String() != "20" {
		t.Errorf("spread = %v, want 20", book.Spread)
	}

	if _, err := env.marketSvc.Book("SIM", simSymbol, 0); err == nil {
		t.Error("accepted depth 0")
	}
	if len(env.marketSvc.Contracts()) != 2 {
		t.Error("default contracts missing")
	}
}
