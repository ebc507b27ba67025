// Package replay implements the replay-protection layer (spec §4.3,
// component C3): per-address monotonic nonces and a spent-transaction
// set bounding transaction lifetimes.
//
// Grounded on the teacher's mutex-guarded in-memory store idiom (see
// stores/utxo/memory/memory.go: a single sync.Mutex guarding a plain
// Go map, no external datastore).
package replay

import (
	"sync"
	"time"

	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/tx"
)

// Tracker owns the expected-nonce map and the spent-hash set. It is
// owned by the chain (spec §3) and is recomputable from the chain
// after a reorg.
type Tracker struct {
	mu             sync.Mutex
	expectedNonce  map[string]uint64
	spent          map[string]struct{}
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		expectedNonce: make(map[string]uint64),
		spent:         make(map[string]struct{}),
	}
}

// ExpectedNonce returns the next nonce the tracker will accept from
// addr (0 if addr has never transacted).
func (tr *Tracker) ExpectedNonce(addr string) uint64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.expectedNonce[addr]
}

// ValidateExpiry returns an Expired error iff t is expired at now.
func ValidateExpiry(t *tx.Transaction, now time.Time) error {
	if t.IsExpired(now) {
		return ledgererr.NewExpiredError("transaction expired")
	}
	return nil
}

// IsReplay reports whether t's hash has already been spent.
func (tr *Tracker) IsReplay(t *tx.Transaction) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	_, ok := tr.spent[t.Hash()]
	return ok
}

// ValidateNonce reports whether t.Nonce equals the sender's expected
// nonce. On success, it does NOT itself advance the counter — callers
// that intend to commit the transaction must call Advance explicitly,
// keeping "check" and "commit" separate so a failed downstream step
// (e.g. UTXO validation) never corrupts the nonce sequence.
func (tr *Tracker) ValidateNonce(t *tx.Transaction) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	expected := tr.expectedNonce[t.Sender]
	if t.Nonce != expected {
		if t.Nonce < expected {
			return ledgererr.NewNonceReplayError("nonce already used")
		}
		return ledgererr.NewNonceGapError("nonce gap")
	}
	return nil
}

// Advance increments the sender's expected nonce. Called once a
// transaction with the current expected nonce is committed.
func (tr *Tracker) Advance(addr string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.expectedNonce[addr]++
}

// MarkSpent inserts t's hash into the spent set.
func (tr *Tracker) MarkSpent(t *tx.Transaction) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.spent[t.Hash()] = struct{}{}
}

// Spent reports whether hash has been marked spent.
func (tr *Tracker) Spent(hash string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	_, ok := tr.spent[hash]
	return ok
}

// Unspend removes hash from the spent set, used when rebuilding C3
// after a fork switch discards the block that spent it.
func (tr *Tracker) Unspend(hash string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.spent, hash)
}

// SetExpectedNonce forces the expected nonce for addr, used when
// rebuilding C3 from a replayed chain.
func (tr *Tracker) SetExpectedNonce(addr string, nonce uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.expectedNonce[addr] = nonce
}

// Process runs the full admission sequence of spec §4.3: expiry, then
// replay, then nonce, then marks spent and advances the nonce on
// success.
func (tr *Tracker) Process(t *tx.Transaction, now time.Time) error {
	if err := ValidateExpiry(t, now); err != nil {
		return err
	}
	if tr.IsReplay(t) {
		return ledgererr.NewReplayDetectedError("transaction hash already spent")
	}
	if err := tr.ValidateNonce(t); err != nil {
		return err
	}
	tr.MarkSpent(t)
	tr.Advance(t.Sender)
	return nil
}

// Snapshot returns a copy of the tracker's state for export (spec §6).
func (tr *Tracker) Snapshot() (nonces map[string]uint64, spent []string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	nonces = make(map[string]uint64, len(tr.expectedNonce))
	for k, v := range tr.expectedNonce {
		nonces[k] = v
	}
	spent = make([]string, 0, len(tr.spent))
	for h := range tr.spent {
		spent = append(spent, h)
	}
	return nonces, spent
}

// Restore replaces the tracker's state wholesale, used by
// import_state/rebuild-after-reorg.
func (tr *Tracker) Restore(nonces map[string]uint64, spent []string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.expectedNonce = make(map[string]uint64, len(nonces))
	for k, v := range nonces {
		tr.expectedNonce[k] = v
	}
	tr.spent = make(map[string]struct{}, len(spent))
	for _, h := range spent {
		tr.spent[h] = struct{}{}
	}
}
