//go:build testutil

package chain

import "github.com/bt2c-network/bt2c-core/amount"

// FundForTest credits addr with a synthetic UTXO, bypassing every
// consensus check (replay, signature, fee). It exists only so test
// code can set up balances without constructing a full signed
// transaction history; the testutil build tag keeps it out of every
// production build and out of the default `go test` invocation.
func FundForTest(l *Ledger, hash string, amt amount.Amount, owner string, height uint64, timestamp int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.utxo.AddUTXO(hash, amt, owner, height, timestamp)
}
