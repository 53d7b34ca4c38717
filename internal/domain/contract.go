package domain

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Contract describes a tradable futures instrument.
type Contract struct {
	UnifiedSymbol    string
	Name             string
	Multiplier       decimal.Decimal
	LongMarginRatio  decimal.Decimal
	ShortMarginRatio decimal.Decimal
	PriceTick        decimal.Decimal
	CommissionTicks  int64 // price ticks charged per lot on open
	InitialPrice     decimal.Decimal
}

// MarginRatio returns the ratio applied to positions of direction d.
func (c Contract) MarginRatio(d Direction) decimal.Decimal {
	if d == DirectionShort {
		return c.ShortMarginRatio
	}
	return c.LongMarginRatio
}

// MarginPerLot is price × multiplier × ratio plus the commission
// of one lot.
func (c Contract) MarginPerLot(price decimal.Decimal, d Direction) decimal.Decimal {
	m := price.Mul(c.Multiplier).Mul(c.MarginRatio(d))
	return m.Add(c.PriceTick.Mul(decimal.NewFromInt(c.CommissionTicks)))
}

// PositionMarginPerLot is the margin a filled lot holds, commission excluded.
func (c Contract) PositionMarginPerLot(price decimal.Decimal, d Direction) decimal.Decimal {
	return price.Mul(c.Multiplier).Mul(c.MarginRatio(d))
}

// Commission is the fee charged for opening volume lots.
func (c Contract) Commission(volume int64) decimal.Decimal {
	return c.PriceTick.Mul(decimal.NewFromInt(c.CommissionTicks * volume))
}

// DefaultContracts are the instruments known without a contracts file.
func DefaultContracts() []Contract {
	return []Contract{
		{
			UnifiedSymbol:    "sim9901@SHFE@FUTURES",
			Name:             "模拟合约",
			Multiplier:       decimal.NewFromInt(10),
			LongMarginRatio:  decimal.RequireFromString("0.08"),
			ShortMarginRatio: decimal.RequireFromString("0.08"),
			PriceTick:        decimal.NewFromInt(1),
			InitialPrice:     decimal.NewFromInt(5000),
		},
		{
			UnifiedSymbol:    "rb0000@SHFE@FUTURES",
			Name:             "螺纹钢指数",
			Multiplier:       decimal.NewFromInt(10),
			LongMarginRatio:  decimal.RequireFromString("0.1"),
			ShortMarginRatio: decimal.RequireFromString("0.1"),
			PriceTick:        decimal.NewFromInt(1),
			InitialPrice:     decimal.NewFromInt(3800),
		},
	}
}

// ContractRegistry tracks known contracts in a thread-safe manner.
type ContractRegistry struct {
	mu        sync.RWMutex
	contracts map[string]Contract
}

// NewContractRegistry creates a registry holding the given contracts.
func NewContractRegistry(contracts ...Contract) *ContractRegistry {
	r := &ContractRegistry{contracts: make(map[string]Contract, len(contracts))}
	for _, c := range contracts {
		r.contracts[c.UnifiedSymbol] = c
	}
	return r
}

// Register adds or replaces a contract. Safe for concurrent use.
func (r *ContractRegistry) Register(c Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[c.UnifiedSymbol] = c
}

// Get returns the contract for symbol or ErrSymbolNotFound.
func (r *ContractRegistry) Get(symbol string) (Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[symbol]
	if !ok {
		return Contract{}, ErrSymbolNotFound
	}
	return c, nil
}

// Exists returns true if the symbol is registered.
func (r *ContractRegistry) Exists(symbol string) bool {
	_, err := r.Get(symbol)
	return err == nil
}

// List returns all contracts sorted by symbol.
func (r *ContractRegistry) List() []Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnifiedSymbol < out[j].UnifiedSymbol })
	return out
}
