package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "0.00000001", "1.5", "21000000"}
	for _, c := range cases {
		amt, err := Parse(c)
		require.NoError(t, err)
		assert.Equal(t, c, amt.String())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	require.Error(t, err)
}

func TestAddOverflow(t *testing.T) {
	_, err := Add(MaxAmount, MaxAmount)
	require.Error(t, err)
}

func TestSubAllowsNegativeResult(t *testing.T) {
	diff, err := Sub(Zero, MinUnit)
	require.NoError(t, err)
	assert.Equal(t, Amount(-1), diff)
}

func TestDivFloor(t *testing.T) {
	assert.Equal(t, Amount(3), DivFloor(Amount(10), 3))
	assert.Equal(t, Amount(0), DivFloor(Amount(2), 3))
}

func TestFromWhole(t *testing.T) {
	assert.Equal(t, Amount(Scale), FromWhole(1))
}
