package chain

import (
	"time"

	"github.com/bt2c-network/bt2c-core/block"
	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/mempool"
	"github.com/bt2c-network/bt2c-core/tx"
)

// ResolveFork implements spec §4.8's longest-valid-chain rule: accept
// competing iff every block validates and len(competing) > current
// height+1. On acceptance, C3/C4 are rebuilt from competing and any
// transaction present in the discarded chain but absent from the new
// one (excluding coinbase-sourced transactions) is re-admitted to mp.
func (l *Ledger) ResolveFork(competing []*block.Block, mp *mempool.Mempool, now time.Time) error {
	l.mu.Lock()
	currentLen := len(l.blocks)
	oldBlocks := make([]*block.Block, len(l.blocks))
	copy(oldBlocks, l.blocks)
	params := l.params
	logger := l.logger
	metrics := l.metrics
	l.mu.Unlock()

	if len(competing) <= currentLen {
		return ledgererr.NewConflictError("competing chain is not longer than the current chain")
	}
	if len(competing) == 0 || competing[0].Hash() != oldBlocks[0].Hash() {
		return ledgererr.NewInvalidFormatError("competing chain does not share this network's genesis")
	}

	replacement, err := NewGenesis(params, WithLogger(logger), WithMetrics(metrics))
	if err != nil {
		return err
	}
	for i := 1; i < len(competing); i++ {
		b := competing[i]
		if err := replacement.AddBlock(b, b.Validator, now, nil); err != nil {
			return ledgererr.NewIntegrityFailureError("competing chain failed validation", err)
		}
	}

	oldHashes := make(map[string]*tx.Transaction)
	for _, b := range oldBlocks {
		for _, t := range b.Transactions {
			oldHashes[t.Hash()] = t
		}
	}
	newHashes := make(map[string]struct{})
	for _, b := range competing {
		for _, t := range b.Transactions {
			newHashes[t.Hash()] = struct{}{}
		}
	}

	l.mu.Lock()
	l.blocks = replacement.blocks
	l.blockByHash = replacement.blockByHash
	l.blockByHeight = replacement.blockByHeight
	l.validators = replacement.validators
	l.stakes = replacement.stakes
	l.stakeLockedAtHeight = replacement.stakeLockedAtHeight
	l.replay = replacement.replay
	l.utxo = replacement.utxo
	l.detector = replacement.detector
	l.mu.Unlock()

	if mp != nil {
		for hash, t := range oldHashes {
			if _, stillPresent := newHashes[hash]; stillPresent {
				continue
			}
			if t.Sender == tx.CoinbaseAddress {
				continue
			}
			if err := mp.Add(t, now); err != nil {
				logger.Debugf("[Ledger] orphaned transaction %s not re-admitted to mempool: %v", hash, err)
			}
		}
	}

	metrics.IncCounter("chain_reorgs_total", nil)
	logger.Warnf("[Ledger] reorg: switched to competing chain of height %d (was %d)", len(competing)-1, currentLen-1)
	return nil
}
