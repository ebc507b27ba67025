package doublespend

import (
	"testing"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/replay"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/bt2c-network/bt2c-core/utxo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTx(t *testing.T, amt, fee amount.Amount) *tx.Transaction {
	t.Helper()
	txn, err := tx.New(tx.NewParams{
		Sender: "alice", Recipient: "bob", Amount: amt, Fee: fee,
		Nonce: 0, Expiry: 3600, Network: tx.NetworkMainnet, Type: tx.TypeTransfer,
	}, time.Now())
	require.NoError(t, err)
	return txn
}

func TestProcessAppliesAndAdvances(t *testing.T) {
	r := replay.New()
	u := utxo.New()
	u.AddUTXO("seed", amount.FromWhole(10), "alice", 1, 0)
	d := New(r, u)

	txn := buildTx(t, amount.FromWhole(2), amount.MinUnit)
	require.NoError(t, d.Process(txn, 2, time.Now(), "validator1"))

	assert.Equal(t, amount.FromWhole(2), u.Balance("bob"))
	assert.Equal(t, uint64(1), r.ExpectedNonce("alice"))
}

func TestProcessRejectsDoubleSpendAcrossSameHash(t *testing.T) {
	r := replay.New()
	u := utxo.New()
	u.AddUTXO("seed", amount.FromWhole(10), "alice", 1, 0)
	d := New(r, u)

	txn := buildTx(t, amount.FromWhole(2), amount.MinUnit)
	require.NoError(t, d.Process(txn, 2, time.Now(), "validator1"))

	err := d.Validate(txn, time.Now())
	require.Error(t, err)
}

func TestSuspiciousHighFee(t *testing.T) {
	txn := buildTx(t, amount.FromWhole(1), amount.FromWhole(1))
	assert.True(t, Suspicious(txn))
}

func TestSuspiciousLargeRoundAmount(t *testing.T) {
	txn := buildTx(t, amount.FromWhole(10), amount.MinUnit)
	assert.True(t, Suspicious(txn))
}

func TestNotSuspiciousOrdinaryTransfer(t *testing.T) {
	txn := buildTx(t, amount.FromWhole(3), amount.MinUnit)
	assert.False(t, Suspicious(txn))
}
