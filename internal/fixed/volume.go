package fixed

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// Volume is an amount integrated over time. It uses the full 256 bits.
type Volume struct {
	v uint256.Int
}

// NewVolume creates a Volume from a uint64
func NewVolume(n uint64) Volume {
	return Volume{v: *uint256.NewInt(n)}
}

// ParseVolume parses a base-10 string
func ParseVolume(s string) (Volume, error) {
	v, err := parseDecimal(s)
	if err != nil {
		return Volume{}, err
	}
	return Volume{v: v}, nil
}

// VolumeFromBytes decodes a big-endian encoding produced by Bytes
func VolumeFromBytes(b []byte) (Volume, error) {
	if len(b) > 32 {
		return Volume{}, fmt.Errorf("volume: %d bytes: %w", len(b), ErrOverflow)
	}
	var vol Volume
	vol.v.SetBytes(b)
	return vol, nil
}

// Bytes returns the 32-byte big-endian encoding
func (x Volume) Bytes() []byte {
	b := x.v.Bytes32()
	return b[:]
}

// Add returns x + y, failing on 256-bit overflow
func (x Volume) Add(y Volume) (Volume, error) {
	var z Volume
	if _, overflow := z.v.AddOverflow(&x.v, &y.v); overflow {
		return Volume{}, fmt.Errorf("%s + %s: %w", x, y, ErrOverflow)
	}
	return z, nil
}

// Sub returns x - y, failing when y > x
func (x Volume) Sub(y Volume) (Volume, error) {
	var z Volume
	if _, underflow := z.v.SubOverflow(&x.v, &y.v); underflow {
		return Volume{}, fmt.Errorf("%s - %s: %w", x, y, ErrUnderflow)
	}
	return z, nil
}

// Cmp returns -1, 0 or +1
func (x Volume) Cmp(y Volume) int { return x.v.Cmp(&y.v) }

// Lt reports x < y
func (x Volume) Lt(y Volume) bool { return x.v.Lt(&y.v) }

// Gt reports x > y
func (x Volume) Gt(y Volume) bool { return x.v.Gt(&y.v) }

// Equal reports x == y
func (x Volume) Equal(y Volume) bool { return x.v.Eq(&y.v) }

// IsZero reports x == 0
func (x Volume) IsZero() bool { return x.v.IsZero() }

// Float64 is a lossy conversion for metrics and reports
func (x Volume) Float64() float64 { return toFloat(&x.v) }

func (x Volume) String() string { return x.v.ToBig().String() }

// MarshalText encodes the volume as a base-10 string
func (x Volume) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

// UnmarshalText decodes a base-10 string
func (x *Volume) UnmarshalText(b []byte) error {
	parsed, err := ParseVolume(string(b))
	if err != nil {
		return err
	}
	*x = parsed
	return nil
}

// Ratio is a numerator/denominator pair, encoded as a two-element array
type Ratio struct {
	Num Volume
	Den Volume
}

// NewRatio builds a ratio of two volumes
func NewRatio(num, den Volume) Ratio {
	return Ratio{Num: num, Den: den}
}

// AmountRatio builds a ratio of two amounts
func AmountRatio(num, den Amount) Ratio {
	return Ratio{Num: num.Volume(), Den: den.Volume()}
}

// IsUndefined reports a zero denominator
func (r Ratio) IsUndefined() bool { return r.Den.IsZero() }

// Float64 returns num/den, or 0 when the denominator is zero
func (r Ratio) Float64() float64 {
	if r.Den.IsZero() {
		return 0
	}
	return r.Num.Float64() / r.Den.Float64()
}

// MarshalJSON encodes the ratio as ["num","den"]
func (r Ratio) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Volume{r.Num, r.Den})
}

// UnmarshalJSON decodes ["num","den"]
func (r *Ratio) UnmarshalJSON(b []byte) error {
	var pair [2]Volume
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	r.Num, r.Den = pair[0], pair[1]
	return nil
}
