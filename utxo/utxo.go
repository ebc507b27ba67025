// Package utxo implements the UTXO-style value tracker (spec §4.4,
// component C4): the authoritative owner->UTXO index and balance
// cache, spend/rollback, and validator-fee routing.
//
// Grounded on the teacher's in-memory UTXO store
// (stores/utxo/memory/memory.go: a mutex-guarded map keyed by output
// identity, a BlockHeight counter, Store/Get/Spend operations) adapted
// from teranode's single-output-per-tx Bitcoin model to BT2C's
// per-owner UTXO set with change/fee outputs.
package utxo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/tx"
)

// Entry is a single unspent output (spec §3's UTXOEntry).
type Entry struct {
	TxHash        string
	Amount        amount.Amount
	Owner         string
	BlockHeight   uint64
	Timestamp     int64
	Confirmations uint64
}

// Tracker is the owner-indexed UTXO set (spec §4.4).
type Tracker struct {
	mu               sync.Mutex
	utxos            map[string]map[string]*Entry // owner -> txHash -> entry
	spentOutputs     map[string][]string           // txHash -> owners consumed from
	currentHeight    uint64
	minConfirmations uint64
}

// New returns an empty Tracker with the default minimum confirmations
// of 1 (spec §4.4).
func New() *Tracker {
	return &Tracker{
		utxos:            make(map[string]map[string]*Entry),
		spentOutputs:     make(map[string][]string),
		minConfirmations: 1,
	}
}

// SetMinConfirmations overrides the default minimum confirmations.
func (u *Tracker) SetMinConfirmations(n uint64) { u.minConfirmations = n }

// AddUTXO credits owner with a new unspent output.
func (u *Tracker) AddUTXO(txHash string, amt amount.Amount, owner string, height uint64, timestamp int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.addUTXOLocked(txHash, amt, owner, height, timestamp)
}

func (u *Tracker) addUTXOLocked(txHash string, amt amount.Amount, owner string, height uint64, timestamp int64) {
	if u.utxos[owner] == nil {
		u.utxos[owner] = make(map[string]*Entry)
	}
	confirmations := uint64(0)
	if height > 0 && height <= u.currentHeight {
		confirmations = u.currentHeight - height + 1
	}
	u.utxos[owner][txHash] = &Entry{
		TxHash:        txHash,
		Amount:        amt,
		Owner:         owner,
		BlockHeight:   height,
		Timestamp:     timestamp,
		Confirmations: confirmations,
	}
}

// RemoveUTXO deletes owner's output keyed by txHash, reporting whether
// it existed.
func (u *Tracker) RemoveUTXO(txHash, owner string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.removeUTXOLocked(txHash, owner)
}

func (u *Tracker) removeUTXOLocked(txHash, owner string) bool {
	set, ok := u.utxos[owner]
	if !ok {
		return false
	}
	if _, ok := set[txHash]; !ok {
		return false
	}
	delete(set, txHash)
	return true
}

// Balance returns the sum of owner's unspent outputs. Per spec §4.4
// this is the authoritative invariant: balance(a) ==
// sum(u.amount for u in utxos[a]).
func (u *Tracker) Balance(owner string) amount.Amount {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.balanceLocked(owner)
}

func (u *Tracker) balanceLocked(owner string) amount.Amount {
	var total amount.Amount
	for _, e := range u.utxos[owner] {
		total += e.Amount
	}
	return total
}

// Validate checks sender sufficiency (amount+fee, unless coinbase) and
// rejects double-spent transaction hashes.
func (u *Tracker) Validate(t *tx.Transaction) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.spentOutputs[t.Hash()]; ok {
		return ledgererr.NewDoubleSpendError("transaction hash already consumed")
	}
	if t.Sender == tx.CoinbaseAddress {
		return nil
	}
	need, err := amount.Add(t.Amount, t.Fee)
	if err != nil {
		return ledgererr.NewInvalidFormatError("amount+fee overflow", err)
	}
	if u.balanceLocked(t.Sender) < need {
		return ledgererr.NewInsufficientFundsError(
			fmt.Sprintf("sender %s balance %s insufficient for %s", t.Sender, u.balanceLocked(t.Sender), need))
	}
	return nil
}

// selectable returns owner's UTXOs ordered by (confirmations ASC,
// amount ASC), the consumption order spec §4.4 mandates.
func (u *Tracker) selectable(owner string) []*Entry {
	set := u.utxos[owner]
	entries := make([]*Entry, 0, len(set))
	for _, e := range set {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Confirmations != entries[j].Confirmations {
			return entries[i].Confirmations < entries[j].Confirmations
		}
		if entries[i].Amount != entries[j].Amount {
			return entries[i].Amount < entries[j].Amount
		}
		return entries[i].TxHash < entries[j].TxHash
	})
	return entries
}

// Apply implements spec §4.4's apply(): credit the recipient, consume
// sender inputs (emitting a change output when positive), and route
// the fee to validatorAddress if set (otherwise it is burned).
func (u *Tracker) Apply(t *tx.Transaction, height uint64, validatorAddress string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.addUTXOLocked(t.Hash(), t.Amount, t.Recipient, height, t.Timestamp)

	consumedOwners := []string{t.Recipient}

	if t.Sender != tx.CoinbaseAddress {
		need, err := amount.Add(t.Amount, t.Fee)
		if err != nil {
			return ledgererr.NewInvalidFormatError("amount+fee overflow", err)
		}
		covered := amount.Zero
		for _, e := range u.selectable(t.Sender) {
			if covered >= need {
				break
			}
			covered += e.Amount
			u.removeUTXOLocked(e.TxHash, t.Sender)
		}
		if covered < need {
			// Should not happen if Validate was called first; restore
			// nothing since nothing was credited for the sender side
			// beyond what Validate already guaranteed. Surface as
			// insufficient funds for the caller to abort the apply.
			return ledgererr.NewInsufficientFundsError("sender balance insufficient during apply")
		}
		consumedOwners = append(consumedOwners, t.Sender)
		if change, err := amount.Sub(covered, need); err == nil && change > 0 {
			u.addUTXOLocked(t.Hash()+"_change", change, t.Sender, height, t.Timestamp)
		}
	}

	if t.Fee > 0 && validatorAddress != "" {
		u.addUTXOLocked(t.Hash()+"_fee", t.Fee, validatorAddress, height, t.Timestamp)
	}

	u.spentOutputs[t.Hash()] = consumedOwners
	return nil
}

// Rollback reverses Apply, using a synthetic "<hash>_rollback" marker
// to credit back whatever this transaction consumed and remove what it
// created. It is the exact inverse needed when a block is discarded by
// fork resolution.
func (u *Tracker) Rollback(t *tx.Transaction, height uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var change amount.Amount
	if e, ok := u.utxos[t.Sender][t.Hash()+"_change"]; ok {
		change = e.Amount
	}
	u.removeUTXOLocked(t.Hash(), t.Recipient)
	u.removeUTXOLocked(t.Hash()+"_change", t.Sender)
	for owner := range u.utxos {
		u.removeUTXOLocked(t.Hash()+"_fee", owner)
	}

	if t.Sender != tx.CoinbaseAddress {
		need, err := amount.Add(t.Amount, t.Fee)
		if err == nil {
			u.addUTXOLocked(t.Hash()+"_rollback", need+change, t.Sender, height, t.Timestamp)
		}
	}

	delete(u.spentOutputs, t.Hash())
}

// UpdateConfirmations bumps every on-chain UTXO's confirmation count by
// the height delta, called whenever the chain tip advances.
func (u *Tracker) UpdateConfirmations(newHeight uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if newHeight <= u.currentHeight {
		u.currentHeight = newHeight
		return
	}
	delta := newHeight - u.currentHeight
	for _, set := range u.utxos {
		for _, e := range set {
			if e.BlockHeight > 0 {
				e.Confirmations += delta
			}
		}
	}
	u.currentHeight = newHeight
}

// Confirmations returns the confirmation count the tracker has
// recorded for owner's output keyed by txHash, or 0 if not found.
func (u *Tracker) Confirmations(owner, txHash string) uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	set, ok := u.utxos[owner]
	if !ok {
		return 0
	}
	e, ok := set[txHash]
	if !ok {
		return 0
	}
	return e.Confirmations
}

// Snapshot returns a flattened copy of every UTXO, for export (spec §6).
func (u *Tracker) Snapshot() []Entry {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]Entry, 0)
	for _, set := range u.utxos {
		for _, e := range set {
			out = append(out, *e)
		}
	}
	return out
}

// Restore replaces the tracker's state wholesale from a snapshot,
// used by import_state and by post-reorg rebuild.
func (u *Tracker) Restore(entries []Entry, height uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.utxos = make(map[string]map[string]*Entry)
	u.spentOutputs = make(map[string][]string)
	u.currentHeight = height
	for _, e := range entries {
		cp := e
		if u.utxos[cp.Owner] == nil {
			u.utxos[cp.Owner] = make(map[string]*Entry)
		}
		u.utxos[cp.Owner][cp.TxHash] = &cp
	}
}
