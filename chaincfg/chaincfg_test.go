package chaincfg

import (
	"testing"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMainNetParamsShape(t *testing.T) {
	p := MainNetParams()
	assert.Equal(t, tx.NetworkMainnet, p.NetworkType)
	assert.Equal(t, amount.FromWhole(1000), p.DeveloperReward)
	assert.Equal(t, 300*time.Second, p.TargetBlockTime)
	assert.Equal(t, halvingInterval(fourYears, 300*time.Second), p.HalvingInterval)
}

func TestTestNetParamsHasHistoricalDeveloperReward(t *testing.T) {
	p := TestNetParams()
	assert.Equal(t, tx.NetworkTestnet, p.NetworkType)
	assert.Equal(t, amount.FromWhole(100), p.DeveloperReward)
	// Testnet keeps mainnet's block-time-derived schedule shape.
	assert.Equal(t, MainNetParams().TargetBlockTime, p.TargetBlockTime)
}

func TestDevNetParamsIsFastIteration(t *testing.T) {
	p := DevNetParams()
	assert.Equal(t, tx.NetworkDevnet, p.NetworkType)
	assert.Equal(t, 5*time.Second, p.TargetBlockTime)
	assert.Equal(t, uint64(20), p.DistributionBlocks)
}

func TestMempoolExpirySchedule(t *testing.T) {
	for _, p := range []*Params{MainNetParams(), TestNetParams(), DevNetParams()} {
		// Eviction schedule is ordered suspicious < low-fee < default:
		// suspicious transactions are dropped soonest, ordinary ones held
		// longest.
		assert.Less(t, p.MempoolExpirySuspicious, p.MempoolExpiryLowFee)
		assert.Less(t, p.MempoolExpiryLowFee, p.MempoolExpiryDefault)
		assert.Greater(t, p.MinStakeLockBlocks, uint64(0))
	}
}

func TestForNetworkDispatch(t *testing.T) {
	p, err := ForNetwork(tx.NetworkMainnet)
	require.NoError(t, err)
	assert.Equal(t, tx.NetworkMainnet, p.NetworkType)

	p, err = ForNetwork(tx.NetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, tx.NetworkTestnet, p.NetworkType)

	p, err = ForNetwork(tx.NetworkDevnet)
	require.NoError(t, err)
	assert.Equal(t, tx.NetworkDevnet, p.NetworkType)
}

func TestForNetworkRejectsUnknown(t *testing.T) {
	_, err := ForNetwork(tx.NetworkType(99))
	require.Error(t, err)
}

func TestHalvingIntervalMath(t *testing.T) {
	assert.Equal(t, uint64(2), halvingInterval(10*time.Second, 5*time.Second))
	assert.Equal(t, uint64(0), halvingInterval(time.Second, 5*time.Second))
}

func TestLoadFallsBackToNetworkDefaults(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v, tx.NetworkDevnet)
	require.NoError(t, err)

	params := DevNetParams()
	assert.Equal(t, params.TargetBlockTime, cfg.TargetBlockTime)
	assert.Equal(t, params.MaxMempoolSize, cfg.MaxMempoolSize)
	assert.Equal(t, params.MinStake, cfg.MinStake)
	assert.Equal(t, params.DistributionReward, cfg.DistributionReward)
	assert.Equal(t, params.HalvingInterval, cfg.HalvingInterval)
}

func TestLoadHonorsOverrides(t *testing.T) {
	v := viper.New()
	v.Set("max_mempool_size", int64(1024))
	v.Set("min_stake", "5")

	cfg, err := Load(v, tx.NetworkMainnet)
	require.NoError(t, err)

	assert.Equal(t, int64(1024), cfg.MaxMempoolSize)
	assert.Equal(t, amount.FromWhole(5), cfg.MinStake)
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	v := viper.New()
	_, err := Load(v, tx.NetworkType(99))
	require.Error(t, err)
}

func TestParseNetworkTypeEnv(t *testing.T) {
	n, err := ParseNetworkTypeEnv("  MainNet ")
	require.NoError(t, err)
	assert.Equal(t, tx.NetworkMainnet, n)

	_, err = ParseNetworkTypeEnv("bogus")
	require.Error(t, err)
}
