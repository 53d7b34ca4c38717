package config

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
)

// contractRecord is one row of a contracts file.
type contractRecord struct {
	UnifiedSymbol    string `csv:"unified_symbol"`
	Name             string `csv:"name"`
	Multiplier       string `csv:"multiplier"`
	LongMarginRatio  string `csv:"long_margin_ratio"`
	ShortMarginRatio string `csv:"short_margin_ratio"`
	PriceTick        string `csv:"price_tick"`
	CommissionTicks  int64  `csv:"commission_ticks"`
	InitialPrice     string `csv:"initial_price"`
}

// Contracts returns the built-in contracts overlaid with the rows of
// path. A row whose symbol is built in replaces it. An empty path yields
// the built-ins alone.
func Contracts(path string) ([]domain.Contract, error) {
	contracts := domain.DefaultContracts()
	if path == "" {
		return contracts, nil
	}

	extra, err := ReadContractsFile(path)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(contracts))
	for i, c := range contracts {
		index[c.UnifiedSymbol] = i
	}
	for _, c := range extra {
		if i, ok := index[c.UnifiedSymbol]; ok {
			contracts[i] = c
			continue
		}
		index[c.UnifiedSymbol] = len(contracts)
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// ReadContractsFile parses a CSV file of contract definitions.
func ReadContractsFile(path string) ([]domain.Contract, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open contracts file: %w", err)
	}
	defer f.Close()

	var records []contractRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make([]domain.Contract, 0, len(records))
	for i, r := range records {
		c, err := r.toContract()
		if err != nil {
			return nil, fmt.Errorf("parse %s row %d: %w", path, i+1, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r contractRecord) toContract() (domain.Contract, error) {
	if r.UnifiedSymbol == "" {
		return domain.Contract{}, fmt.Errorf("unified_symbol is required")
	}
	if r.CommissionTicks < 0 {
		return domain.Contract{}, fmt.Errorf("%s: commission_ticks must not be negative", r.UnifiedSymbol)
	}
	c := domain.Contract{
		UnifiedSymbol:   r.UnifiedSymbol,
		Name:            r.Name,
		CommissionTicks: r.CommissionTicks,
	}
	for _, f := range []struct {
		column string
		raw    string
		dst    *decimal.Decimal
	}{
		{"multiplier", r.Multiplier, &c.Multiplier},
		{"long_margin_ratio", r.LongMarginRatio, &c.LongMarginRatio},
		{"short_margin_ratio", r.ShortMarginRatio, &c.ShortMarginRatio},
		{"price_tick", r.PriceTick, &c.PriceTick},
		{"initial_price", r.InitialPrice, &c.InitialPrice},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.Contract{}, fmt.Errorf("%s: invalid %s %q", r.UnifiedSymbol, f.column, f.raw)
		}
		if !d.IsPositive() {
			return domain.Contract{}, fmt.Errorf("%s: %s must be positive", r.UnifiedSymbol, f.column)
		}
		*f.dst = d
	}
	return c, nil
}
