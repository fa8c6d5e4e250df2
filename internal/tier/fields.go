package tier

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// parsePrice normalizes a money string ("$12.50", "1,250.00") into a
// NullDecimal; invalid input yields an empty value, never an error, because
// a missing price is a validator concern, not a tier failure.
func parsePrice(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// parseQuantity extracts a positive integer quantity; 0 means missing.
func parseQuantity(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	// tolerate "12.0" style quantities from table cells
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if rest := strings.TrimRight(s[i+1:], "0"); rest == "" {
			s = s[:i]
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
