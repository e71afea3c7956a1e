package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Format renders an amount held in minor units, e.g. 123456 ZAR -> "ZAR 1234.56".
func Format(minor int64, currency string) string {
	return fmt.Sprintf("%s %s", currency, decimal.New(minor, -2).StringFixed(2))
}

// ToMinor converts a major unit string such as "12.5" to minor units. More
// than two decimal places is rejected rather than rounded.
func ToMinor(major string) (int64, error) {
	d, err := decimal.NewFromString(major)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", major, err)
	}
	scaled := d.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more than two decimal places", major)
	}
	return scaled.IntPart(), nil
}
