package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceTable(t *testing.T) {
	cases := map[int]string{
		1:   "1.00",
		12:  "10.00",
		24:  "18.00",
		168: "100.00",
		720: "300.00",
	}
	for duration, want := range cases {
		price, ok := Price(duration)
		require.Truef(t, ok, "expected duration %d to have a price", duration)
		assert.Equal(t, want, price.String())
	}
}

func TestPriceTableRejectsUnknownDuration(t *testing.T) {
	_, ok := Price(999)
	assert.False(t, ok)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 32)
}
