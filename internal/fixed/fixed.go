// Package fixed implements the overflow-checked integer arithmetic used by the
// rewards accounting: 128-bit token amounts, 256-bit volumes (amount integrated
// over time) and floor-rounded ratio multiplication.
package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a result does not fit its type
	ErrOverflow = errors.New("fixed: overflow")
	// ErrUnderflow is returned when a subtraction would go below zero
	ErrUnderflow = errors.New("fixed: underflow")
	// ErrDivideByZero is returned by ratio operations with a zero denominator
	ErrDivideByZero = errors.New("fixed: divide by zero")
	// ErrInvalidNumber is returned when parsing malformed input
	ErrInvalidNumber = errors.New("fixed: invalid number")
)

const amountBits = 128

// Accumulate projects an accumulating value forward:
// total + value * elapsed.
func Accumulate(total Volume, elapsed uint64, value Amount) (Volume, error) {
	var product, sum uint256.Int
	if _, overflow := product.MulOverflow(&value.v, uint256.NewInt(elapsed)); overflow {
		return Volume{}, fmt.Errorf("accumulate %s * %d: %w", value, elapsed, ErrOverflow)
	}
	if _, overflow := sum.AddOverflow(&total.v, &product); overflow {
		return Volume{}, fmt.Errorf("accumulate %s + %s: %w", total, Volume{v: product}, ErrOverflow)
	}
	return Volume{v: sum}, nil
}

// mulDiv computes floor(x * num / den) with a 512-bit intermediate.
func mulDiv(x, num, den *uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if den.IsZero() {
		return z, ErrDivideByZero
	}
	if _, overflow := z.MulDivOverflow(x, num, den); overflow {
		return z, ErrOverflow
	}
	return z, nil
}

func parseDecimal(s string) (uint256.Int, error) {
	var z uint256.Int
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" {
		return z, fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	if err := z.SetFromDecimal(s); err != nil {
		return z, fmt.Errorf("%w: %q: %v", ErrInvalidNumber, s, err)
	}
	return z, nil
}

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
