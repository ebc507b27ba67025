package mempool

import (
	"testing"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	nonces map[string]uint64
	spent  map[string]bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{nonces: make(map[string]uint64), spent: make(map[string]bool)}
}

func (f *fakeChain) ChainNonce(addr string) uint64 { return f.nonces[addr] }
func (f *fakeChain) IsSpent(hash string) bool       { return f.spent[hash] }
func (f *fakeChain) Suspicious(t *tx.Transaction) bool { return false }

func buildTx(t *testing.T, sender string, nonce uint64, fee amount.Amount, now time.Time) *tx.Transaction {
	t.Helper()
	txn, err := tx.New(tx.NewParams{
		Sender: sender, Recipient: "bt2c_recipient000000000000000000",
		Amount: amount.FromWhole(1), Fee: fee,
		Nonce: nonce, Expiry: 3600, Network: tx.NetworkMainnet, Type: tx.TypeTransfer,
	}, now)
	require.NoError(t, err)
	return txn
}

func TestAddAcceptsInOrderNonce(t *testing.T) {
	now := time.Now()
	mp := New(newFakeChain())
	require.NoError(t, mp.Add(buildTx(t, "alice", 0, amount.MinUnit, now), now))
	assert.Equal(t, 1, mp.Len())
}

func TestAddRejectsNonceGap(t *testing.T) {
	now := time.Now()
	mp := New(newFakeChain())
	err := mp.Add(buildTx(t, "alice", 5, amount.MinUnit, now), now)
	require.Error(t, err)
}

func TestAddRejectsDuplicateHash(t *testing.T) {
	now := time.Now()
	mp := New(newFakeChain())
	txn := buildTx(t, "alice", 0, amount.MinUnit, now)
	require.NoError(t, mp.Add(txn, now))
	assert.Error(t, mp.Add(txn, now))
}

func TestRBFReplacesWithHigherFee(t *testing.T) {
	now := time.Now()
	mp := New(newFakeChain())
	original := buildTx(t, "alice", 0, amount.MinUnit, now)
	require.NoError(t, mp.Add(original, now))

	bumped, err := tx.New(tx.NewParams{
		Sender: "alice", Recipient: "bt2c_recipient000000000000000000",
		Amount: amount.FromWhole(1), Fee: amount.MinUnit * 2,
		Nonce: 0, Expiry: 3600, Network: tx.NetworkMainnet, Type: tx.TypeTransfer,
	}, now)
	require.NoError(t, err)

	require.NoError(t, mp.Add(bumped, now))
	assert.Equal(t, 1, mp.Len())
	_, ok := mp.Get(original.Hash())
	assert.False(t, ok)
	_, ok = mp.Get(bumped.Hash())
	assert.True(t, ok)
}

func TestRBFRejectsInsufficientBump(t *testing.T) {
	now := time.Now()
	mp := New(newFakeChain())
	original := buildTx(t, "alice", 0, amount.MinUnit*100, now)
	require.NoError(t, mp.Add(original, now))

	// Same fee, same nonce: not a sufficient bump (needs >=1.10x).
	replacement, err := tx.New(tx.NewParams{
		Sender: "alice", Recipient: "bt2c_recipient000000000000000001",
		Amount: amount.FromWhole(2), Fee: amount.MinUnit * 100,
		Nonce: 0, Expiry: 3600, Network: tx.NetworkMainnet, Type: tx.TypeTransfer,
	}, now)
	require.NoError(t, err)

	assert.Error(t, mp.Add(replacement, now))
}

func TestTopRespectsPerSenderNonceOrder(t *testing.T) {
	now := time.Now()
	mp := New(newFakeChain())
	t0 := buildTx(t, "alice", 0, amount.MinUnit, now)
	require.NoError(t, mp.Add(t0, now))
	t1 := buildTx(t, "alice", 1, amount.MinUnit, now)
	require.NoError(t, mp.Add(t1, now))

	top := mp.Top(10)
	require.Len(t, top, 2)
	assert.Equal(t, uint64(0), top[0].Tx.Nonce)
	assert.Equal(t, uint64(1), top[1].Tx.Nonce)
}

func TestRemoveDeletesEntry(t *testing.T) {
	now := time.Now()
	mp := New(newFakeChain())
	txn := buildTx(t, "alice", 0, amount.MinUnit, now)
	require.NoError(t, mp.Add(txn, now))
	mp.Remove(txn.Hash())
	assert.Equal(t, 0, mp.Len())
}
