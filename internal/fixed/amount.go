package fixed

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amount is a token quantity bounded to 128 bits
type Amount struct {
	v uint256.Int
}

// NewAmount creates an Amount from a uint64
func NewAmount(n uint64) Amount {
	return Amount{v: *uint256.NewInt(n)}
}

// MaxAmount returns 2^128 - 1
func MaxAmount() Amount {
	var a Amount
	a.v.Lsh(uint256.NewInt(1), amountBits)
	a.v.SubUint64(&a.v, 1)
	return a
}

// ParseAmount parses a base-10 string
func ParseAmount(s string) (Amount, error) {
	v, err := parseDecimal(s)
	if err != nil {
		return Amount{}, err
	}
	if v.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("amount %s: %w", s, ErrOverflow)
	}
	return Amount{v: v}, nil
}

// MustAmount parses s and panics on error. Intended for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBytes decodes a big-endian encoding produced by Bytes
func AmountFromBytes(b []byte) (Amount, error) {
	if len(b) > 32 {
		return Amount{}, fmt.Errorf("amount: %d bytes: %w", len(b), ErrOverflow)
	}
	var a Amount
	a.v.SetBytes(b)
	if a.v.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("amount: %w", ErrOverflow)
	}
	return a, nil
}

// Bytes returns the 16-byte big-endian encoding
func (a Amount) Bytes() []byte {
	full := a.v.Bytes32()
	out := make([]byte, 16)
	copy(out, full[16:])
	return out
}

// Add returns a + b, failing when the sum exceeds 128 bits
func (a Amount) Add(b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow || z.v.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("%s + %s: %w", a, b, ErrOverflow)
	}
	return z, nil
}

// Sub returns a - b, failing when b > a
func (a Amount) Sub(b Amount) (Amount, error) {
	var z Amount
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, fmt.Errorf("%s - %s: %w", a, b, ErrUnderflow)
	}
	return z, nil
}

// SatSub returns a - b, or zero when b > a
func (a Amount) SatSub(b Amount) Amount {
	if a.v.Lt(&b.v) {
		return Amount{}
	}
	var z Amount
	z.v.Sub(&a.v, &b.v)
	return z
}

// MulRatio returns floor(a * num / den)
func (a Amount) MulRatio(num, den Volume) (Amount, error) {
	z, err := mulDiv(&a.v, &num.v, &den.v)
	if err != nil {
		return Amount{}, fmt.Errorf("%s * %s / %s: %w", a, num, den, err)
	}
	if z.BitLen() > amountBits {
		return Amount{}, fmt.Errorf("%s * %s / %s: %w", a, num, den, ErrOverflow)
	}
	return Amount{v: z}, nil
}

// Volume widens the amount
func (a Amount) Volume() Volume {
	return Volume{v: a.v}
}

// Cmp returns -1, 0 or +1
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Lt reports a < b
func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

// Equal reports a == b
func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }

// IsZero reports a == 0
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Float64 is a lossy conversion for metrics and reports
func (a Amount) Float64() float64 { return toFloat(&a.v) }

func (a Amount) String() string { return a.v.ToBig().String() }

// MarshalText encodes the amount as a base-10 string
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a base-10 string
func (a *Amount) UnmarshalText(b []byte) error {
	parsed, err := ParseAmount(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MinAmount returns the smaller of a and b
func MinAmount(a, b Amount) Amount {
	if a.Lt(b) {
		return a
	}
	return b
}
