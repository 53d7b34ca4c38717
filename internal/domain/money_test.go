package domain

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   float64
		places  int32
		want    string
		wantErr bool
	}{
		{"zero", 0.0, 2, "0", false},
		{"whole", 50000, 2, "50000", false},
		{"two places", 148.50, 2, "148.5", false},
		{"negative", -50.25, 2, "-50.25", false},
		{"0.10 float artifact", 0.10, 2, "0.1", false},
		{"1.10 float artifact", 1.10, 2, "1.1", false},
		{"three places rejected", 1.234, 2, "", true},
		{"price with four places", 3801.2345, 4, "3801.2345", false},
		{"NaN", math.NaN(), 2, "", true},
		{"Inf", math.Inf(1), 2, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.places)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAmount(%v) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%v) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%v) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	if got := ToFloat(decimal.RequireFromString("49200.5")); got != 49200.5 {
		t.Errorf("ToFloat = %v, want 49200.5", got)
	}
}
