package calc

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/fault"
)

var (
	ErrOverflow       = fault.New(fault.Arithmetic, "ARITHMETIC_OVERFLOW")
	ErrUnderflow      = fault.New(fault.Arithmetic, "ARITHMETIC_UNDERFLOW")
	ErrDivisionByZero = fault.New(fault.Arithmetic, "DIVISION_BY_ZERO")
)

// Scale is the 1e18 fixed-point unit used by ratios.
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns x-y or ErrUnderflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	if x.Lt(y) {
		return nil, ErrUnderflow
	}
	return new(uint256.Int).Sub(x, y), nil
}

// Mul returns x*y or ErrOverflow.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDiv returns floor(x*y/d). The intermediate product must fit in 256 bits.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	p, err := Mul(x, y)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(p, d), nil
}

// FromBig converts a non-negative big.Int, failing when it does not fit.
func FromBig(b *big.Int) (*uint256.Int, error) {
	if b.Sign() < 0 {
		return nil, ErrUnderflow
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Abs splits a signed delta into its magnitude and sign.
func Abs(delta *big.Int) (*uint256.Int, bool, error) {
	neg := delta.Sign() < 0
	z, err := FromBig(new(big.Int).Abs(delta))
	if err != nil {
		return nil, false, err
	}
	return z, neg, nil
}
