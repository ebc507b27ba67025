package chain

import (
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/google/uuid"
)

// rewardForHeightLocked implements spec §4.8's reward schedule:
// during the distribution phase every block pays a flat
// distribution_reward; afterward the validator must be registered and
// the reward halves every halving_interval blocks, clamped to
// min_reward. Caller holds l.mu.
func (l *Ledger) rewardForHeightLocked(height uint64, validatorAddr string) (amount.Amount, error) {
	if height < l.params.DistributionBlocks {
		return l.params.DistributionReward, nil
	}
	if _, ok := l.validators[validatorAddr]; !ok {
		return 0, ledgererr.NewUnauthorizedError("validator is not registered")
	}
	halvings := height / l.params.HalvingInterval
	reward := halveReward(l.params.InitialBlockReward, halvings)
	if reward < l.params.MinReward {
		reward = l.params.MinReward
	}
	return reward, nil
}

// halveReward divides initial by 2^halvings without floating point,
// saturating at zero if halvings exceeds the width of Amount.
func halveReward(initial amount.Amount, halvings uint64) amount.Amount {
	if halvings >= 63 {
		return 0
	}
	return amount.Amount(int64(initial) >> halvings)
}

// creditValidatorRewardLocked credits the reward to validatorAddr's
// auto-stake (spec §4.8: "credit validator stake by reward
// (auto-stake)") and updates their production metrics. Caller holds
// l.mu.
func (l *Ledger) creditValidatorRewardLocked(validatorAddr string, reward amount.Amount, height uint64, now time.Time) {
	v, ok := l.validators[validatorAddr]
	if !ok {
		// Distribution-phase bootstrap validator with no prior
		// registration: auto-registration already ran in
		// registerEarlyValidatorLocked before this is called.
		return
	}
	v.Stake += reward
	l.stakes[validatorAddr] += reward
	v.BlocksProduced++
	v.LastBlockTime = now.Unix()
	v.Reputation = reputationAfterBlock(v.Reputation)
}

// reputationAfterBlock implements the SUPPLEMENTED-FEATURE reputation
// boost: each successfully produced block adds 1, capped at 100.
func reputationAfterBlock(current float64) float64 {
	boosted := current + 1
	if boosted > 100 {
		return 100
	}
	return boosted
}

// registerEarlyValidatorLocked auto-registers validatorAddr during the
// distribution phase if it isn't already registered, crediting the
// SUPPLEMENTED-FEATURE early-validator bonus exactly once (spec §4.8's
// early_validator_reward). Caller holds l.mu.
func (l *Ledger) registerEarlyValidatorLocked(validatorAddr string, height uint64, now time.Time) {
	if height >= l.params.DistributionBlocks {
		return
	}
	if _, ok := l.validators[validatorAddr]; ok {
		return
	}
	l.validators[validatorAddr] = &Validator{
		RegistrationID: uuid.NewString(),
		Address:        validatorAddr,
		Stake:          l.params.EarlyValidatorReward,
		RegisteredAt:   now.Unix(),
		Status:         ValidatorActive,
		Reputation:     100,
	}
	l.stakes[validatorAddr] += l.params.EarlyValidatorReward
	l.utxo.AddUTXO(validatorAddr+"_early_validator_bonus", l.params.EarlyValidatorReward, validatorAddr, height, now.Unix())
}
