package calc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// RatioFromDecimal scales a fraction such as 0.1 to its 1e18 fixed-point
// representation. Digits beyond 18 decimals are truncated.
func RatioFromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("ratio %s must not be negative", d.String())
	}
	return FromBig(d.Shift(18).Truncate(0).BigInt())
}

// RatioToDecimal is the inverse of RatioFromDecimal.
func RatioToDecimal(r *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(r.ToBig(), -18)
}

// ParseUnits parses a base-10 unsigned integer string.
func ParseUnits(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	z, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return z, nil
}

// ParseSigned parses a base-10 signed integer string such as "-1500".
func ParseSigned(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid delta %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("delta %q must be an integer", s)
	}
	return d.BigInt(), nil
}

// ToDecimal renders units as a decimal.Decimal with the given number of
// decimals, for display.
func ToDecimal(units *uint256.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units.ToBig(), -decimals)
}
