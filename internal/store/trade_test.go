package store

import (
	"testing"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/shopspring/decimal"
)

func TestTradeStore_AppendAndList(t *testing.T) {
	s := NewTradeStore()
	s.Append(&domain.Trade{TradeID: "t1", AccountID: "acc", Price: decimal.NewFromInt(1000), Volume: 1})
	s.Append(&domain.Trade{TradeID: "t2", AccountID: "acc", Price: decimal.NewFromInt(1001), Volume: 2})
	s.Append(&domain.Trade{TradeID: "t3", AccountID: "other", Volume: 1})

	got := s.ListByAccount("acc")
	if len(got) != 2 || got[0].TradeID != "t1" || got[1].TradeID != "t2" {
		t.Fatalf("ListByAccount = %v, want [t1 t2]", got)
	}

	got[0] = nil
	if s.ListByAccount("acc")[0] == nil {
		t.Fatal("ListByAccount must return a copy")
	}

	if len(s.ListByAccount("nobody")) != 0 {
		t.Fatal("unknown account should have no trades")
	}

	s.DeleteByAccount("acc")
	if len(s.ListByAccount("acc")) != 0 {
		t.Fatal("DeleteByAccount left trades behind")
	}
}

func TestBarStore_AppendReplaceAndBefore(t *testing.T) {
	s := NewBarStore(3)
	base := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		s.Append(domain.Bar{GatewayID: "SIM", Symbol: "x", Close: decimal.NewFromInt(int64(i)), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	// Same timestamp replaces the last bar.
	s.Append(domain.Bar{GatewayID: "SIM", Symbol: "x", Close: decimal.NewFromInt(99), Timestamp: base.Add(3 * time.Minute)})

	all := s.Before("SIM", "x", base.Add(time.Hour), 0)
	if len(all) != 3 {
		t.Fatalf("capacity not enforced: got %d bars", len(all))
	}
	if !all[2].Close.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("last close = %s, want replaced 99", all[2].Close)
	}

	older := s.Before("SIM", "x", base.Add(3*time.Minute), 1)
	if len(older) != 1 || !older[0].Timestamp.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("Before(3m, 1) = %v, want the 2m bar", older)
	}

	s.DeleteGateway("SIM")
	if len(s.Before("SIM", "x", base.Add(time.Hour), 0)) != 0 {
		t.Fatal("DeleteGateway left bars behind")
	}
}

func TestGatewayStore_Lifecycle(t *testing.T) {
	s := NewGatewayStore()
	g := &domain.Gateway{GatewayID: "SIM", State: domain.StateDisconnected, Settings: domain.SimMarketSettings{Symbols: []string{"x"}}}
	if err := s.Create(g); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(g); err != domain.ErrGatewayExists {
		t.Fatalf("duplicate Create = %v, want ErrGatewayExists", err)
	}

	if err := s.Update("SIM", func(g *domain.Gateway) { g.State = domain.StateConnected }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := s.Get("SIM")
	if got.State != domain.StateConnected {
		t.Fatalf("state = %s, want connected", got.State)
	}

	s.Create(&domain.Gateway{GatewayID: "acc", Settings: domain.SimTradeSettings{MarketGatewayID: "SIM"}})
	if n := len(s.List(domain.GatewayKindSimTrade)); n != 1 {
		t.Fatalf("List(sim_trade) = %d, want 1", n)
	}
	if n := len(s.List("")); n != 2 {
		t.Fatalf("List() = %d, want 2", n)
	}

	if err := s.Delete("SIM"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("SIM"); err != domain.ErrGatewayNotFound {
		t.Fatalf("Get after delete = %v", err)
	}
}

func TestAccountStore(t *testing.T) {
	s := NewAccountStore()
	a := &domain.Account{AccountID: "b", BoundMarketGatewayID: "SIM"}
	if err := s.Create(a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(a); err != domain.ErrAccountExists {
		t.Fatalf("duplicate = %v", err)
	}
	s.Create(&domain.Account{AccountID: "a", BoundMarketGatewayID: "SIM"})
	s.Create(&domain.Account{AccountID: "c", BoundMarketGatewayID: "PB"})

	bound := s.ListByMarketGateway("SIM")
	if len(bound) != 2 || bound[0].AccountID != "a" {
		t.Fatalf("ListByMarketGateway = %v", bound)
	}
	s.Delete("a")
	if _, err := s.Get("a"); err != domain.ErrAccountNotFound {
		t.Fatalf("Get after delete = %v", err)
	}
}
