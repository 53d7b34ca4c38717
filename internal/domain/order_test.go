package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderStatus_Terminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusPending, false},
		{OrderStatusPartiallyFilled, false},
		{OrderStatusFilled, true},
		{OrderStatusCancelled, true},
		{OrderStatusRejected, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestOrder_RemainingVolume(t *testing.T) {
	o := &Order{Volume: 5, FilledVolume: 2, Status: OrderStatusPartiallyFilled}
	if got := o.RemainingVolume(); got != 3 {
		t.Errorf("RemainingVolume() = %d, want 3", got)
	}
	o.Status = OrderStatusCancelled
	if got := o.RemainingVolume(); got != 0 {
		t.Errorf("RemainingVolume() after cancel = %d, want 0", got)
	}
}

func TestPositionDirection(t *testing.T) {
	tests := []struct {
		side   Side
		offset Offset
		want   Direction
	}{
		{SideBuy, OffsetOpen, DirectionLong},
		{SideSell, OffsetOpen, DirectionShort},
		{SideSell, OffsetClose, DirectionLong},
		{SideBuy, OffsetClose, DirectionShort},
	}
	for _, tt := range tests {
		if got := PositionDirection(tt.side, tt.offset); got != tt.want {
			t.Errorf("PositionDirection(%s, %s) = %s, want %s", tt.side, tt.offset, got, tt.want)
		}
	}
}

func TestOrder_AveragePrice(t *testing.T) {
	o := &Order{}
	if _, ok := o.AveragePrice(); ok {
		t.Error("AveragePrice() ok = true with no trades")
	}

	o.FilledVolume = 3
	o.Trades = []*Trade{
		{Price: decimal.NewFromInt(1000), Volume: 1},
		{Price: decimal.NewFromInt(1003), Volume: 2},
	}
	got, ok := o.AveragePrice()
	if !ok {
		t.Fatal("AveragePrice() ok = false with trades")
	}
	if !got.Equal(decimal.NewFromInt(1002)) {
		t.Errorf("AveragePrice() = %s, want 1002", got)
	}
}

func TestSide_Opposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Error("Opposite() does not swap sides")
	}
}
