package chain

import (
	"github.com/bt2c-network/bt2c-core/doublespend"
	"github.com/bt2c-network/bt2c-core/tx"
)

// chainView adapts *Ledger to mempool.ChainView without exposing any
// mutating method, enforcing spec §5's "Mempool reads chain state
// ... through a read-only interface and never writes to it" at the
// type level: chainView has no exported mutator.
type chainView Ledger

func (c *chainView) ledger() *Ledger { return (*Ledger)(c) }

func (c *chainView) ChainNonce(address string) uint64 {
	l := c.ledger()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replay.ExpectedNonce(address)
}

func (c *chainView) IsSpent(hash string) bool {
	l := c.ledger()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replay.Spent(hash)
}

func (c *chainView) Suspicious(t *tx.Transaction) bool {
	return doublespend.Suspicious(t)
}
