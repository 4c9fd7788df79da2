package fixed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulate(t *testing.T) {
	tests := []struct {
		name    string
		total   Volume
		elapsed uint64
		value   Amount
		want    string
	}{
		{"nothing elapsed", NewVolume(100), 0, NewAmount(50), "100"},
		{"zero stake", NewVolume(100), 1000, NewAmount(0), "100"},
		{"from zero", NewVolume(0), 10, NewAmount(3600), "36000"},
		{"adds product", NewVolume(200), 5, NewAmount(20), "300"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accumulate(tt.total, tt.elapsed, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAccumulate_Overflow(t *testing.T) {
	huge, err := ParseVolume("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)

	_, err = Accumulate(huge, 1, NewAmount(1))
	assert.ErrorIs(t, err, ErrOverflow)

	// 2^128-1 * 2^64-1 still fits in 256 bits
	_, err = Accumulate(NewVolume(0), ^uint64(0), MaxAmount())
	assert.NoError(t, err)
}

func TestAmount_Bounds(t *testing.T) {
	limit := MaxAmount()
	assert.Equal(t, "340282366920938463463374607431768211455", limit.String())

	_, err := limit.Add(NewAmount(1))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = ParseAmount("340282366920938463463374607431768211456")
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = NewAmount(1).Sub(NewAmount(2))
	assert.ErrorIs(t, err, ErrUnderflow)

	assert.True(t, NewAmount(1).SatSub(NewAmount(2)).IsZero())
	assert.Equal(t, "3", NewAmount(5).SatSub(NewAmount(2)).String())
	assert.Equal(t, "2", MinAmount(NewAmount(5), NewAmount(2)).String())
}

func TestAmount_ParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "-1", "abc", "1.5"} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrInvalidNumber, in)
	}
}

func TestAmount_MulRatio(t *testing.T) {
	budget := NewAmount(1000)

	got, err := budget.MulRatio(NewVolume(36000), NewVolume(36000))
	require.NoError(t, err)
	assert.Equal(t, "1000", got.String())

	got, err = budget.MulRatio(NewVolume(1000), NewVolume(4000))
	require.NoError(t, err)
	assert.Equal(t, "250", got.String())

	// floor rounding
	got, err = NewAmount(10).MulRatio(NewVolume(1), NewVolume(3))
	require.NoError(t, err)
	assert.Equal(t, "3", got.String())

	_, err = budget.MulRatio(NewVolume(1), NewVolume(0))
	assert.ErrorIs(t, err, ErrDivideByZero)

	_, err = MaxAmount().MulRatio(NewVolume(2), NewVolume(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestBytesRoundTrip(t *testing.T) {
	a := MustAmount("123456789012345678901234567890")
	decoded, err := AmountFromBytes(a.Bytes())
	require.NoError(t, err)
	assert.True(t, a.Equal(decoded))
	assert.Len(t, a.Bytes(), 16)

	v, err := ParseVolume("98765432109876543210987654321098765432109876543210")
	require.NoError(t, err)
	dv, err := VolumeFromBytes(v.Bytes())
	require.NoError(t, err)
	assert.True(t, v.Equal(dv))
	assert.Len(t, v.Bytes(), 32)
}

func TestJSONEncoding(t *testing.T) {
	payload := struct {
		Amount Amount `json:"amount"`
		Share  Ratio  `json:"share"`
	}{
		Amount: NewAmount(42),
		Share:  AmountRatio(NewAmount(100), NewAmount(400)),
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"42","share":["100","400"]}`, string(raw))

	var decoded struct {
		Amount Amount `json:"amount"`
		Share  Ratio  `json:"share"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "42", decoded.Amount.String())
	assert.InDelta(t, 0.25, decoded.Share.Float64(), 1e-9)
	assert.Zero(t, Ratio{}.Float64())
}
