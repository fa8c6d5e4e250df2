package tier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"4.50", "4.50", true},
		{"$4.50", "4.50", true},
		{"$ 1,250.00", "1250.00", true},
		{"0.99", "0.99", true},
		{"", "", false},
		{"n/a", "", false},
		{"4.5.0", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parsePrice(tt.in)
			require.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.True(t, got.Decimal.Equal(decimal.RequireFromString(tt.want)), "got %s", got.Decimal)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"6", 6},
		{" 24 ", 24},
		{"12.0", 12},
		{"12.000", 12},
		{"12.5", 0},
		{"", 0},
		{"-3", 0},
		{"six", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseQuantity(tt.in), "input %q", tt.in)
	}
}
