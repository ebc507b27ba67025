// Package doublespend composes replay protection (C3) and the UTXO
// tracker (C4) into the combined validation/processing pipeline of
// spec §4.5 (component C5), plus the non-rejecting suspicion flag used
// for mempool eviction priority.
package doublespend

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/replay"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/bt2c-network/bt2c-core/utxo"
	"github.com/greatroar/blobloom"
)

// suspicionIntegerFloor is the coin floor of spec §4.5's suspicion
// predicate: fee > 0.05 x amount (computed inline in Suspicious), or
// amount is an integer number of coins >= 10.
const suspicionIntegerFloor = 10 * amount.Scale

// Detector composes replay.Tracker and utxo.Tracker (spec §4.5).
type Detector struct {
	Replay *replay.Tracker
	UTXO   *utxo.Tracker

	// seen is a probabilistic pre-filter over "sender:nonce" pairs,
	// grounded on the teacher's use of greatroar/blobloom in
	// model/Block.go for fast membership pre-checks ahead of an exact
	// lookup. It never rejects on its own and Validate never consults
	// it; it only feeds the suspicion signal, never short-circuiting
	// correctness-critical validation.
	seen *blobloom.Filter
}

// New builds a Detector over the given replay and UTXO trackers.
func New(r *replay.Tracker, u *utxo.Tracker) *Detector {
	filter := blobloom.NewOptimized(blobloom.Config{
		Capacity: 1_000_000,
		FPRate:   0.01,
	})
	return &Detector{Replay: r, UTXO: u, seen: filter}
}

// Validate runs expiry -> replay -> nonce -> UTXO validation in order,
// short-circuiting on the first failure (spec §4.5).
func (d *Detector) Validate(t *tx.Transaction, now time.Time) error {
	if err := replay.ValidateExpiry(t, now); err != nil {
		return err
	}
	if d.Replay.IsReplay(t) {
		return ledgererr.NewReplayDetectedError("transaction hash already spent")
	}
	if err := d.Replay.ValidateNonce(t); err != nil {
		return err
	}
	if err := d.UTXO.Validate(t); err != nil {
		return err
	}
	return nil
}

// Process validates, then marks spent, then applies. If apply fails
// the replay mark is NOT rolled back (spec §4.5: a failed apply
// implies inconsistent state that the chain layer discards wholesale).
func (d *Detector) Process(t *tx.Transaction, height uint64, now time.Time, validatorAddress string) error {
	if err := d.Validate(t, now); err != nil {
		return err
	}
	d.Replay.MarkSpent(t)
	d.Replay.Advance(t.Sender)
	if d.seen != nil {
		d.seen.Add(sensitivityKey(t))
	}
	if err := d.UTXO.Apply(t, height, validatorAddress); err != nil {
		return err
	}
	return nil
}

func sensitivityKey(t *tx.Transaction) uint64 {
	sum := sha256.Sum256([]byte(t.Sender + ":" + strconv.FormatUint(t.Nonce, 10)))
	return binary.BigEndian.Uint64(sum[:8])
}

// Suspicious reports spec §4.5's non-rejecting suspicion predicate:
// fee > 0.05 x amount, or amount is an integer number of coins >= 10.
func Suspicious(t *tx.Transaction) bool {
	threshold := amount.Amount(int64(t.Amount) / 20) // 0.05 x amount
	if t.Fee > threshold {
		return true
	}
	if int64(t.Amount)%amount.Scale == 0 && t.Amount >= suspicionIntegerFloor {
		return true
	}
	return false
}

// RecentlySeen reports whether the detector's probabilistic pre-filter
// has observed this sender/nonce pair before. Used only as an
// eviction-priority and observability signal, never for rejection.
func (d *Detector) RecentlySeen(t *tx.Transaction) bool {
	if d.seen == nil {
		return false
	}
	return d.seen.Has(sensitivityKey(t))
}

// Flags combines the fee/amount suspicion predicate with the
// probabilistic recently-seen signal into the single observability
// flag mempool entries carry (spec §4.5's "suspicion does not reject").
func (d *Detector) Flags(t *tx.Transaction) bool {
	return Suspicious(t) || d.RecentlySeen(t)
}
