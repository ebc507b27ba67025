// Package chaincfg defines the per-network consensus parameters and
// genesis configuration for BT2C (spec §4.8, §6), following the
// mainnet/testnet/devnet Params pattern of the teacher's upstream
// chaincfg convention (grounded on EXCCoin-exccd's
// chaincfg/mainnetparams.go and chaincfg/testnetparams.go: one
// constructor function per network returning a *Params value).
package chaincfg

import (
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/tx"
)

// Params holds every tunable named in spec §6's enumerated
// configuration surface.
type Params struct {
	NetworkType tx.NetworkType

	GenesisHash         string
	GenesisTimestamp    int64
	GenesisNonce        uint64
	DeveloperAddress    string
	DeveloperReward     amount.Amount
	EarlyValidatorReward amount.Amount

	TargetBlockTime time.Duration

	MaxMempoolSize int64

	MempoolExpiryDefault    time.Duration
	MempoolExpiryLowFee     time.Duration
	MempoolExpirySuspicious time.Duration

	MinStake amount.Amount

	// MinStakeLockBlocks is how many blocks must separate a STAKE from
	// the UNSTAKE that draws it down (spec §4.8/SUPPLEMENTED FEATURES:
	// "registered at least min_stake_lock blocks ago").
	MinStakeLockBlocks uint64

	DistributionBlocks uint64
	DistributionReward amount.Amount

	InitialBlockReward amount.Amount
	HalvingPeriod      time.Duration
	HalvingInterval    uint64
	MinReward          amount.Amount
	MaxSupply          amount.Amount
}

const (
	fourYears = 4 * 365 * 24 * time.Hour
	fourteenDays = 14 * 24 * time.Hour
)

// halvingInterval computes halving_period_seconds / target_block_time
// (spec §4.8).
func halvingInterval(period, blockTime time.Duration) uint64 {
	return uint64(period / blockTime)
}

// MainNetParams returns BT2C mainnet parameters (developer reward
// 1000 BT2C per spec v1.1).
func MainNetParams() *Params {
	blockTime := 300 * time.Second
	return &Params{
		NetworkType:             tx.NetworkMainnet,
		GenesisHash:             "bt2c_mainnet_genesis_00000000000000000000000000000000000000",
		GenesisTimestamp:        1704067200, // 2024-01-01T00:00:00Z
		GenesisNonce:            0,
		DeveloperAddress:        "bt2c_developer0000000000000000000000",
		DeveloperReward:         1000 * amount.Scale,
		EarlyValidatorReward:    amount.Scale, // 1.0 BT2C
		TargetBlockTime:         blockTime,
		MaxMempoolSize:          100 * 1024 * 1024,
		MempoolExpiryDefault:    24 * time.Hour,
		MempoolExpiryLowFee:     time.Hour,
		MempoolExpirySuspicious: 10 * time.Minute,
		MinStake:                amount.Scale,
		MinStakeLockBlocks:      uint64(24 * time.Hour / blockTime),
		DistributionBlocks:      uint64(fourteenDays / blockTime),
		DistributionReward:      amount.Scale / 10, // placeholder flat distribution-phase reward
		InitialBlockReward:      21 * amount.Scale,
		HalvingPeriod:           fourYears,
		HalvingInterval:         halvingInterval(fourYears, blockTime),
		MinReward:               amount.MinUnit,
		MaxSupply:               amount.MaxSupply,
	}
}

// TestNetParams returns BT2C testnet parameters: same schedule shape
// as mainnet but a historical 100 BT2C developer reward, permitted by
// spec §4.8 ("historical 100 BT2C acceptable if the config says so").
func TestNetParams() *Params {
	p := MainNetParams()
	p.NetworkType = tx.NetworkTestnet
	p.GenesisHash = "bt2c_testnet_genesis_00000000000000000000000000000000000000"
	p.DeveloperReward = 100 * amount.Scale
	return p
}

// DevNetParams returns BT2C devnet parameters: short block time and
// short distribution phase to make local iteration fast.
func DevNetParams() *Params {
	blockTime := 5 * time.Second
	return &Params{
		NetworkType:             tx.NetworkDevnet,
		GenesisHash:             "bt2c_devnet_genesis_000000000000000000000000000000000000",
		GenesisTimestamp:        1704067200,
		GenesisNonce:            0,
		DeveloperAddress:        "bt2c_developer0000000000000000000000",
		DeveloperReward:         100 * amount.Scale,
		EarlyValidatorReward:    amount.Scale,
		TargetBlockTime:         blockTime,
		MaxMempoolSize:          16 * 1024 * 1024,
		MempoolExpiryDefault:    10 * time.Minute,
		MempoolExpiryLowFee:     5 * time.Minute,
		MempoolExpirySuspicious: time.Minute,
		MinStake:                amount.Scale,
		MinStakeLockBlocks:      5, // short lock window to keep local iteration fast
		DistributionBlocks:      20,
		DistributionReward:      amount.Scale / 10,
		InitialBlockReward:      21 * amount.Scale,
		HalvingPeriod:           10 * time.Minute,
		HalvingInterval:         halvingInterval(10*time.Minute, blockTime),
		MinReward:               amount.MinUnit,
		MaxSupply:               amount.MaxSupply,
	}
}

// ForNetwork resolves Params by NetworkType.
func ForNetwork(n tx.NetworkType) (*Params, error) {
	switch n {
	case tx.NetworkMainnet:
		return MainNetParams(), nil
	case tx.NetworkTestnet:
		return TestNetParams(), nil
	case tx.NetworkDevnet:
		return DevNetParams(), nil
	default:
		return nil, errUnknownNetwork(n)
	}
}

type errUnknownNetwork tx.NetworkType

func (e errUnknownNetwork) Error() string {
	return "chaincfg: unknown network type"
}
