package engine

import (
	"fmt"
	"math"

	"github.com/efreitasn/futuresim/internal/domain"
)

// Unlimited is the budget returned when a tick puts no cap on fills.
const Unlimited int64 = -1

// LiquidityPolicy decides how many lots resting orders on one side may
// fill against a single tick. Resting buys consume the tick's ask side,
// resting sells its bid side.
type LiquidityPolicy interface {
	Budget(tick domain.Tick, side domain.Side) int64
}

// UnlimitedLiquidity fills every crossing order in full.
type UnlimitedLiquidity struct{}

func (UnlimitedLiquidity) Budget(domain.Tick, domain.Side) int64 { return Unlimited }

// TickVolumeLiquidity caps fills at the opposite-side volume of the tick
// times Ratio, falling back to the tick's traded volume. A tick carrying
// no volume at all does not cap fills.
type TickVolumeLiquidity struct {
	Ratio float64
}

func (p TickVolumeLiquidity) Budget(tick domain.Tick, side domain.Side) int64 {
	vol := tick.AskVolume
	if side == domain.SideSell {
		vol = tick.BidVolume
	}
	if vol <= 0 {
		vol = tick.Volume
	}
	if vol <= 0 {
		return Unlimited
	}
	budget := int64(math.Floor(float64(vol) * p.Ratio))
	if budget < 1 {
		budget = 1
	}
	return budget
}

// NewLiquidityPolicy resolves a policy by its configured name.
func NewLiquidityPolicy(name string, ratio float64) (LiquidityPolicy, error) {
	switch name {
	case "", "unlimited":
		return UnlimitedLiquidity{}, nil
	case "tick_volume":
		if ratio <= 0 {
			return nil, fmt.Errorf("liquidity ratio must be > 0, got %v", ratio)
		}
		return TickVolumeLiquidity{Ratio: ratio}, nil
	}
	return nil, fmt.Errorf("unknown liquidity policy %q", name)
}
