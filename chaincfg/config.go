package chaincfg

import (
	"strings"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/spf13/viper"
)

// Config is the runtime-tunable configuration surface of spec §6,
// backed by spf13/viper (already present, indirectly, in the
// teacher's go.mod) so operators can set values via file, env, or
// flags without the core prescribing a CLI surface itself.
type Config struct {
	NetworkType    tx.NetworkType
	TargetBlockTime time.Duration
	MaxMempoolSize int64

	MempoolExpiryDefault    time.Duration
	MempoolExpiryLowFee     time.Duration
	MempoolExpirySuspicious time.Duration

	MinStake amount.Amount

	DistributionBlocks uint64
	DistributionReward amount.Amount
	DeveloperReward    amount.Amount
	EarlyValidatorReward amount.Amount

	HalvingPeriod   time.Duration
	HalvingInterval uint64
}

// Load reads configuration from v, falling back to network defaults
// for any key v has not set. v is expected to already have its
// sources (file/env/flags) bound by the caller.
func Load(v *viper.Viper, network tx.NetworkType) (*Config, error) {
	params, err := ForNetwork(network)
	if err != nil {
		return nil, err
	}

	v.SetDefault("target_block_time_seconds", int64(params.TargetBlockTime.Seconds()))
	v.SetDefault("max_mempool_size", params.MaxMempoolSize)
	v.SetDefault("mempool_expiry_default_seconds", int64(params.MempoolExpiryDefault.Seconds()))
	v.SetDefault("mempool_expiry_low_fee_seconds", int64(params.MempoolExpiryLowFee.Seconds()))
	v.SetDefault("mempool_expiry_suspicious_seconds", int64(params.MempoolExpirySuspicious.Seconds()))
	v.SetDefault("min_stake", params.MinStake.String())
	v.SetDefault("distribution_blocks", params.DistributionBlocks)
	v.SetDefault("distribution_reward", params.DistributionReward.String())
	v.SetDefault("developer_reward", params.DeveloperReward.String())
	v.SetDefault("early_validator_reward", params.EarlyValidatorReward.String())
	v.SetDefault("halving_period_seconds", int64(params.HalvingPeriod.Seconds()))

	minStake, err := amount.Parse(v.GetString("min_stake"))
	if err != nil {
		return nil, err
	}
	distReward, err := amount.Parse(v.GetString("distribution_reward"))
	if err != nil {
		return nil, err
	}
	devReward, err := amount.Parse(v.GetString("developer_reward"))
	if err != nil {
		return nil, err
	}
	earlyReward, err := amount.Parse(v.GetString("early_validator_reward"))
	if err != nil {
		return nil, err
	}

	halvingPeriod := time.Duration(v.GetInt64("halving_period_seconds")) * time.Second
	blockTime := time.Duration(v.GetInt64("target_block_time_seconds")) * time.Second

	return &Config{
		NetworkType:             network,
		TargetBlockTime:         blockTime,
		MaxMempoolSize:          v.GetInt64("max_mempool_size"),
		MempoolExpiryDefault:    time.Duration(v.GetInt64("mempool_expiry_default_seconds")) * time.Second,
		MempoolExpiryLowFee:     time.Duration(v.GetInt64("mempool_expiry_low_fee_seconds")) * time.Second,
		MempoolExpirySuspicious: time.Duration(v.GetInt64("mempool_expiry_suspicious_seconds")) * time.Second,
		MinStake:                minStake,
		DistributionBlocks:      v.GetUint64("distribution_blocks"),
		DistributionReward:      distReward,
		DeveloperReward:         devReward,
		EarlyValidatorReward:    earlyReward,
		HalvingPeriod:           halvingPeriod,
		HalvingInterval:         halvingInterval(halvingPeriod, blockTime),
	}, nil
}

// ParseNetworkTypeEnv parses the network_type configuration value
// (spec §6: "{mainnet, testnet, devnet} — selects genesis").
func ParseNetworkTypeEnv(s string) (tx.NetworkType, error) {
	return tx.ParseNetworkType(strings.ToLower(strings.TrimSpace(s)))
}
