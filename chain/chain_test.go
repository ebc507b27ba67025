package chain

import (
	"testing"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/block"
	"github.com/bt2c-network/bt2c-core/chaincfg"
	"github.com/bt2c-network/bt2c-core/crypto"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devnetNow(params *chaincfg.Params) time.Time {
	return time.Unix(params.GenesisTimestamp, 0).Add(time.Hour)
}

func TestNewGenesisSeedsDeveloperReward(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), l.Height())
	assert.Equal(t, params.DeveloperReward, l.Balance(params.DeveloperAddress))
}

func TestAddBlockHappyPathDuringDistribution(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)

	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)
	now := devnetNow(params)

	b, err := l.ProduceBlock(kp.Address(), kp, nil, now)
	require.NoError(t, err)
	require.NoError(t, l.AddBlock(b, kp.Address(), now, nil))

	assert.Equal(t, uint64(1), l.Height())
	v, ok := l.Validator(kp.Address())
	require.True(t, ok)
	assert.Equal(t, params.EarlyValidatorReward+params.DistributionReward, v.Stake)
	assert.Equal(t, uint64(1), v.BlocksProduced)
}

func TestAddBlockRejectsWrongPreviousHash(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)
	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)

	b := block.New(1, "not-the-tail-hash", nil, kp.Address(), 0, devnetNow(params).Unix())
	err = l.AddBlock(b, kp.Address(), devnetNow(params), nil)
	require.Error(t, err)
}

func TestAddBlockRejectsMismatchedRewardAmount(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)
	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)
	now := devnetNow(params)

	wrongReward, err := tx.New(tx.NewParams{
		Sender: tx.CoinbaseAddress, Recipient: kp.Address(),
		Amount: params.DistributionReward * 2, Fee: amount.MinUnit,
		Nonce: 1, Expiry: 86400, Network: params.NetworkType, Type: tx.TypeReward,
	}, now)
	require.NoError(t, err)

	b := block.New(1, l.Tail().Hash(), []*tx.Transaction{wrongReward}, kp.Address(), 0, now.Unix())
	require.NoError(t, b.Sign(kp))

	err = l.AddBlock(b, kp.Address(), now, nil)
	require.Error(t, err)
}

func TestHalveRewardMath(t *testing.T) {
	assert.Equal(t, amount.Amount(100), halveReward(100, 0))
	assert.Equal(t, amount.Amount(50), halveReward(100, 1))
	assert.Equal(t, amount.Amount(25), halveReward(100, 2))
	assert.Equal(t, amount.Amount(0), halveReward(100, 64))
}

func TestReputationAfterBlockMovesTowardCap(t *testing.T) {
	assert.InDelta(t, 51, reputationAfterBlock(50), 0.001)
	assert.Equal(t, 100.0, reputationAfterBlock(99.5))
	assert.Equal(t, 100.0, reputationAfterBlock(100))
}

func TestRewardForHeightFlatDuringDistribution(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)

	l.mu.Lock()
	reward, err := l.rewardForHeightLocked(0, "anyone")
	l.mu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, params.DistributionReward, reward)
}

func TestRewardForHeightRequiresRegisteredValidatorPostDistribution(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)

	l.mu.Lock()
	_, err = l.rewardForHeightLocked(params.DistributionBlocks, "bt2c_unregistered0000000000000000000")
	l.mu.Unlock()
	require.Error(t, err)
}

func TestValidatorRegistrationAndStakingFlow(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)
	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)
	addr := kp.Address()
	now := devnetNow(params)

	l.utxo.AddUTXO("seed", amount.FromWhole(10), addr, 1, now.Unix())

	stakeTx, err := tx.New(tx.NewParams{
		Sender: addr, Recipient: addr, Amount: amount.FromWhole(2), Fee: amount.MinUnit,
		Nonce: 0, Expiry: 3600, Network: params.NetworkType, Type: tx.TypeStake,
	}, now)
	require.NoError(t, err)
	require.NoError(t, stakeTx.Sign(kp))

	validatorTx, err := tx.New(tx.NewParams{
		Sender: addr, Recipient: addr, Amount: amount.MinUnit, Fee: amount.MinUnit,
		Nonce: 1, Expiry: 3600, Network: params.NetworkType, Type: tx.TypeValidator,
		Payload: map[string]interface{}{"validator": true},
	}, now)
	require.NoError(t, err)
	require.NoError(t, validatorTx.Sign(kp))

	rewardTx, err := tx.New(tx.NewParams{
		Sender: tx.CoinbaseAddress, Recipient: addr, Amount: params.DistributionReward, Fee: amount.MinUnit,
		Nonce: 1, Expiry: 86400, Network: params.NetworkType, Type: tx.TypeReward,
	}, now)
	require.NoError(t, err)

	txs := []*tx.Transaction{rewardTx, stakeTx, validatorTx}
	b := block.New(1, l.Tail().Hash(), txs, addr, 0, now.Unix())
	require.NoError(t, b.Sign(kp))
	require.NoError(t, l.AddBlock(b, addr, now, nil))

	v, ok := l.Validator(addr)
	require.True(t, ok)
	assert.True(t, v.Stake > 0)
	assert.Equal(t, amount.FromWhole(2)+params.DistributionReward, l.Stake(addr))
}

func TestApplyUnstakeLockedRespectsLockDuration(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)
	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)
	addr := kp.Address()
	now := devnetNow(params)
	stakedAtHeight := uint64(10)

	l.mu.Lock()
	l.stakes[addr] = amount.FromWhole(5)
	l.stakeLockedAtHeight[addr] = stakedAtHeight
	l.mu.Unlock()

	tooEarly, err := tx.New(tx.NewParams{
		Sender: addr, Recipient: addr, Amount: amount.FromWhole(1), Fee: amount.MinUnit,
		Nonce: 0, Expiry: 3600, Network: params.NetworkType, Type: tx.TypeUnstake,
		Payload: map[string]interface{}{"stake_id": "s1"},
	}, now)
	require.NoError(t, err)

	// Fewer than MinStakeLockBlocks have elapsed since staking.
	l.mu.Lock()
	err = l.applyUnstakeLocked(tooEarly, stakedAtHeight+params.MinStakeLockBlocks-1, now)
	l.mu.Unlock()
	require.Error(t, err)

	later := now.Add(time.Hour)
	afterLock, err := tx.New(tx.NewParams{
		Sender: addr, Recipient: addr, Amount: amount.FromWhole(1), Fee: amount.MinUnit,
		Nonce: 1, Expiry: 3600, Network: params.NetworkType, Type: tx.TypeUnstake,
		Payload: map[string]interface{}{"stake_id": "s1"},
	}, later)
	require.NoError(t, err)

	// At least MinStakeLockBlocks have elapsed.
	l.mu.Lock()
	err = l.applyUnstakeLocked(afterLock, stakedAtHeight+params.MinStakeLockBlocks, later)
	l.mu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, amount.FromWhole(4), l.stakes[addr])
}

func TestResolveForkAdoptsLongerCompetingChain(t *testing.T) {
	params := chaincfg.DevNetParams()
	now := devnetNow(params)

	main, err := NewGenesis(params)
	require.NoError(t, err)
	kpMain, err := crypto.GenerateRandom()
	require.NoError(t, err)
	b1, err := main.ProduceBlock(kpMain.Address(), kpMain, nil, now)
	require.NoError(t, err)
	require.NoError(t, main.AddBlock(b1, kpMain.Address(), now, nil))
	assert.Equal(t, uint64(1), main.Height())

	competing, err := NewGenesis(params)
	require.NoError(t, err)
	kpAlt, err := crypto.GenerateRandom()
	require.NoError(t, err)
	c1, err := competing.ProduceBlock(kpAlt.Address(), kpAlt, nil, now)
	require.NoError(t, err)
	require.NoError(t, competing.AddBlock(c1, kpAlt.Address(), now, nil))
	c2, err := competing.ProduceBlock(kpAlt.Address(), kpAlt, nil, now)
	require.NoError(t, err)
	require.NoError(t, competing.AddBlock(c2, kpAlt.Address(), now, nil))
	assert.Equal(t, uint64(2), competing.Height())

	require.NoError(t, main.ResolveFork(competing.blocks, nil, now))
	assert.Equal(t, uint64(2), main.Height())
}

func TestFinalityForConfirmations(t *testing.T) {
	assert.Equal(t, FinalityPending, finalityForConfirmations(0))
	assert.Equal(t, FinalityTentative, finalityForConfirmations(1))
	assert.Equal(t, FinalityTentative, finalityForConfirmations(2))
	assert.Equal(t, FinalityProbable, finalityForConfirmations(3))
	assert.Equal(t, FinalityFinal, finalityForConfirmations(6))
}

func TestGetTransactionByHashFindsConfirmedReward(t *testing.T) {
	params := chaincfg.DevNetParams()
	l, err := NewGenesis(params)
	require.NoError(t, err)
	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)
	now := devnetNow(params)

	b, err := l.ProduceBlock(kp.Address(), kp, nil, now)
	require.NoError(t, err)
	require.NoError(t, l.AddBlock(b, kp.Address(), now, nil))

	rewardTx := b.Transactions[0]
	found, tier, ok := l.GetTransactionByHash(rewardTx.Hash(), nil)
	require.True(t, ok)
	assert.Equal(t, FinalityTentative, tier)
	assert.Equal(t, rewardTx.Hash(), found.Hash())
}

func TestExportImportRoundTrip(t *testing.T) {
	params := chaincfg.DevNetParams()
	now := devnetNow(params)
	l, err := NewGenesis(params)
	require.NoError(t, err)
	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)

	b, err := l.ProduceBlock(kp.Address(), kp, nil, now)
	require.NoError(t, err)
	require.NoError(t, l.AddBlock(b, kp.Address(), now, nil))

	state, err := l.ExportState()
	require.NoError(t, err)

	restored, err := ImportState(params, state)
	require.NoError(t, err)
	assert.Equal(t, l.Height(), restored.Height())
	assert.Equal(t, l.Balance(kp.Address()), restored.Balance(kp.Address()))
	assert.Equal(t, l.Balance(params.DeveloperAddress), restored.Balance(params.DeveloperAddress))
}
