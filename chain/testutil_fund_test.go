//go:build testutil

package chain

import (
	"testing"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/chaincfg"
	"github.com/bt2c-network/bt2c-core/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFundForTestCreditsBalance(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)
	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)
	addr := kp.Address()

	FundForTest(l, "seed", amount.FromWhole(10), addr, 1, time.Now().Unix())

	assert.Equal(t, amount.FromWhole(10), l.Balance(addr))
}
