package mempool

import (
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/tx"
)

// Entry wraps a Transaction with the bookkeeping spec §3's
// MempoolEntry names: priority inputs, dependency hashes, and the
// eviction/suspicion bookkeeping §4.6 operates on.
type Entry struct {
	Tx         *tx.Transaction
	ReceivedAt time.Time
	SizeBytes  int
	FeePerByte float64

	PriorityScore float64

	AncestorFee    amount.Amount
	AncestorSize   int
	DescendantFee  amount.Amount
	DescendantSize int

	// Dependencies holds the hash of the same-sender entry with nonce-1,
	// recorded at insertion if that entry was then in the mempool.
	Dependencies []string
	ReplacedBy   string
	Suspicious   bool

	evictionClass evictionClass
	heapIndex     int
}

type evictionClass int

const (
	classDefault evictionClass = iota
	classLowFee
	classSuspicious
)

func (e *Entry) hash() string { return e.Tx.Hash() }

func (e *Entry) ancestorFeeRate() float64 {
	if e.AncestorSize == 0 {
		return 0
	}
	return float64(e.AncestorFee) / float64(e.AncestorSize)
}

func (e *Entry) descendantFeeRate() float64 {
	if e.DescendantSize == 0 {
		return 0
	}
	return float64(e.DescendantFee) / float64(e.DescendantSize)
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// computeScore implements spec §4.6's priority score formula.
func computeScore(e *Entry, now time.Time) float64 {
	age := now.Sub(e.ReceivedAt).Seconds()
	ageBonus := 1 + min(0.20, age/3600)
	sizeBonus := 1 + max(0, min(0.10, 1-float64(e.SizeBytes)/10000))
	ancestorBonus := 1 + min(0.15, e.ancestorFeeRate()/10)
	descendantBonus := 1 + min(0.15, e.descendantFeeRate()/10)
	return e.FeePerByte * 1000 * ageBonus * sizeBonus * ancestorBonus * descendantBonus
}
