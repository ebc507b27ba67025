package tx

import (
	"testing"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKeyPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateRandom()
	require.NoError(t, err)
	return kp
}

func TestNewValidatesRanges(t *testing.T) {
	_, err := New(NewParams{
		Sender:    "a",
		Recipient: "b",
		Amount:    0,
		Fee:       amount.MinUnit,
		Nonce:     0,
		Expiry:    3600,
		Network:   NetworkMainnet,
		Type:      TypeTransfer,
	}, time.Now())
	require.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	kp := mustKeyPair(t)
	txn, err := New(NewParams{
		Sender:    kp.Address(),
		Recipient: "bt2c_recipient000000000000000000",
		Amount:    amount.FromWhole(1),
		Fee:       amount.MinUnit,
		Nonce:     0,
		Expiry:    3600,
		Network:   NetworkMainnet,
		Type:      TypeTransfer,
	}, time.Now())
	require.NoError(t, err)

	require.NoError(t, txn.Sign(kp))
	assert.True(t, txn.Verify())
}

func TestVerifyFailsOnTamper(t *testing.T) {
	kp := mustKeyPair(t)
	txn, err := New(NewParams{
		Sender:    kp.Address(),
		Recipient: "bt2c_recipient000000000000000000",
		Amount:    amount.FromWhole(1),
		Fee:       amount.MinUnit,
		Nonce:     0,
		Expiry:    3600,
		Network:   NetworkMainnet,
		Type:      TypeTransfer,
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, txn.Sign(kp))

	txn.Amount = amount.FromWhole(1000)
	assert.False(t, txn.Verify())
}

func TestHashDeterministic(t *testing.T) {
	kp := mustKeyPair(t)
	now := time.Unix(1700000000, 0)
	build := func() *Transaction {
		txn, err := New(NewParams{
			Sender:    kp.Address(),
			Recipient: "bt2c_recipient000000000000000000",
			Amount:    amount.FromWhole(2),
			Fee:       amount.MinUnit,
			Nonce:     1,
			Expiry:    3600,
			Network:   NetworkMainnet,
			Type:      TypeTransfer,
		}, now)
		require.NoError(t, err)
		return txn
	}
	a := build()
	b := build()
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestCanonicalRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)
	txn, err := New(NewParams{
		Sender:    kp.Address(),
		Recipient: "bt2c_recipient000000000000000000",
		Amount:    amount.FromWhole(3),
		Fee:       amount.MinUnit,
		Nonce:     2,
		Expiry:    3600,
		Network:   NetworkMainnet,
		Type:      TypeTransfer,
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, txn.Sign(kp))

	raw, err := txn.MarshalCanonical()
	require.NoError(t, err)

	restored, err := FromCanonical(raw)
	require.NoError(t, err)
	assert.Equal(t, txn.Hash(), restored.Hash())
	assert.True(t, restored.Verify())
}

func TestStakeRequiresSelfTransfer(t *testing.T) {
	kp := mustKeyPair(t)
	_, err := New(NewParams{
		Sender:    kp.Address(),
		Recipient: "bt2c_someone_else00000000000000000",
		Amount:    amount.FromWhole(5),
		Fee:       amount.MinUnit,
		Nonce:     0,
		Expiry:    3600,
		Network:   NetworkMainnet,
		Type:      TypeStake,
	}, time.Now())
	require.Error(t, err)
}

func TestIsExpired(t *testing.T) {
	kp := mustKeyPair(t)
	now := time.Unix(1700000000, 0)
	txn, err := New(NewParams{
		Sender:    kp.Address(),
		Recipient: "bt2c_recipient000000000000000000",
		Amount:    amount.FromWhole(1),
		Fee:       amount.MinUnit,
		Nonce:     0,
		Expiry:    300,
		Network:   NetworkMainnet,
		Type:      TypeTransfer,
	}, now)
	require.NoError(t, err)

	assert.False(t, txn.IsExpired(now.Add(100*time.Second)))
	assert.True(t, txn.IsExpired(now.Add(400*time.Second)))
}
