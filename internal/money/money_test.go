package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    ZNC
		wantErr bool
	}{
		{"whole with cents", "18.00", FromCents(1800), false},
		{"no fraction", "18", FromCents(1800), false},
		{"negative", "-5.5", FromCents(-550), false},
		{"tie rounds to even, retained digit even", "0.125", FromCents(12), false},
		{"non-tie below half rounds down", "100.004", FromCents(10000), false},
		{"tie, retained digit 0 (even) stays", "100.005", FromCents(10000), false},
		{"tie, retained digit 1 (odd) rounds up", "100.015", FromCents(10002), false},
		{"empty string", "", 0, true},
		{"max valid amount", "99999999.99", FromCents(9999999999), false},
		{"overflow", "100000000.00", 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse(c.in)
			if c.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "18.00", FromCents(1800).String())
	assert.Equal(t, "-5.50", FromCents(-550).String())
	assert.Equal(t, "0.00", Zero.String())
}

func TestAddSubOverflow(t *testing.T) {
	max := FromCents(maxAtomic)
	_, err := max.Add(FromCents(1))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = max.Neg().Sub(FromCents(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestPercent(t *testing.T) {
	amount := FromFloat(150.00)
	bonus := amount.Percent(10.0)
	assert.Equal(t, "15.00", bonus.String())
}

func TestCmp(t *testing.T) {
	a := FromFloat(100.00)
	b := FromFloat(100.01)
	assert.Negative(t, a.Cmp(b))
	assert.Zero(t, a.Cmp(a))
}

func TestIsPositiveNegative(t *testing.T) {
	assert.True(t, FromFloat(1.00).IsPositive())
	assert.True(t, FromFloat(-1.00).IsNegative())
	assert.False(t, Zero.IsPositive())
	assert.False(t, Zero.IsNegative())
}
