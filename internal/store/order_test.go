package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestOrder(id, accountID string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		OrderID:   id,
		AccountID: accountID,
		GatewayID: "SIM",
		Symbol:    "sim9901@SHFE@FUTURES",
		Side:      domain.SideBuy,
		Offset:    domain.OffsetOpen,
		PriceType: domain.PriceTypeLimit,
		Price:     decimal.NewFromInt(1000),
		Volume:    1,
		Status:    domain.OrderStatusPending,
		CreatedAt: createdAt,
	}
}

func TestOrderStore_CreateAndGet(t *testing.T) {
	s := NewOrderStore()
	s.Create(newTestOrder("o-1", "acc", time.Now()))

	got, err := s.Get("o-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.AccountID != "acc" {
		t.Fatalf("expected acc, got %s", got.AccountID)
	}
	if _, err := s.Get("missing"); err != domain.ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStore_ClientOrderID(t *testing.T) {
	s := NewOrderStore()
	o := newTestOrder("o-1", "acc", time.Now())
	o.ClientOrderID = "c-1"
	s.Create(o)

	if got := s.GetByClientID("acc", "c-1"); got == nil || got.OrderID != "o-1" {
		t.Fatalf("GetByClientID = %v, want o-1", got)
	}
	if got := s.GetByClientID("other", "c-1"); got != nil {
		t.Fatal("client ids must be scoped per account")
	}
}

func TestOrderStore_ListByAccount(t *testing.T) {
	s := NewOrderStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		o := newTestOrder(fmt.Sprintf("o-%d", i), "acc", base.Add(time.Duration(i)*time.Minute))
		if i%2 == 0 {
			o.Status = domain.OrderStatusFilled
		}
		s.Create(o)
	}
	s.Create(newTestOrder("x", "other", base))

	all, total := s.ListByAccount("acc", nil, 1, 10)
	if total != 5 || len(all) != 5 {
		t.Fatalf("total = %d len = %d, want 5", total, len(all))
	}
	if all[0].OrderID != "o-4" {
		t.Fatalf("first = %s, want newest o-4", all[0].OrderID)
	}

	filled := domain.OrderStatusFilled
	got, total := s.ListByAccount("acc", &filled, 1, 2)
	if total != 3 || len(got) != 2 {
		t.Fatalf("filled total = %d len = %d, want 3 and 2", total, len(got))
	}

	page, _ := s.ListByAccount("acc", nil, 3, 2)
	if len(page) != 1 || page[0].OrderID != "o-0" {
		t.Fatalf("page 3 = %v, want [o-0]", page)
	}

	empty, total := s.ListByAccount("acc", nil, 9, 10)
	if len(empty) != 0 || total != 5 {
		t.Fatalf("out of range page returned %d orders", len(empty))
	}
}

func TestOrderStore_DeleteByAccount(t *testing.T) {
	s := NewOrderStore()
	o := newTestOrder("o-1", "acc", time.Now())
	o.ClientOrderID = "c"
	s.Create(o)
	s.DeleteByAccount("acc")

	if _, err := s.Get("o-1"); err != domain.ErrOrderNotFound {
		t.Fatalf("order survived DeleteByAccount: %v", err)
	}
	if s.GetByClientID("acc", "c") != nil {
		t.Fatal("client index survived DeleteByAccount")
	}
}

func TestOrderStore_ConcurrentAccess(t *testing.T) {
	s := NewOrderStore()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Create(newTestOrder(fmt.Sprintf("o-%d", i), "acc", time.Now()))
		}(i)
		go func() {
			defer wg.Done()
			s.ListByAccount("acc", nil, 1, 20)
		}()
	}
	wg.Wait()

	_, total := s.ListByAccount("acc", nil, 1, 1)
	if total != 100 {
		t.Fatalf("total = %d, want 100", total)
	}
}
