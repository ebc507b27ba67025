// Package mempool implements the fee-priority transaction pool (spec
// §4.6, component C6): admission, RBF, ancestor/descendant
// accounting, congestion-driven minimum fees, and time-based eviction.
//
// Grounded on the teacher's block-assembly queue
// (services/blockassembly/subtreeprocessor/queue.go) for the
// single-writer-serialized-mutation idiom, and on
// services/blockvalidation/Server.go for jellydator/ttlcache/v3 as the
// time-based-expiry primitive. The hash and (sender,nonce) indices use
// github.com/dolthub/swiss (also in the teacher's go.mod) for its
// lower-overhead hot-path lookups versus a built-in map.
package mempool

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/ledgermetrics"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/bt2c-network/bt2c-core/ulog"
	"github.com/dolthub/swiss"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
)

// ChainView is the read-only window into chain state the mempool is
// allowed (spec §5: "the Mempool reads chain state ... through a
// read-only interface and never writes to it").
type ChainView interface {
	ChainNonce(address string) uint64
	IsSpent(hash string) bool
	Suspicious(t *tx.Transaction) bool
}

const (
	rbfMinBumpNumerator   = 110
	rbfMinBumpDenominator = 100
	softPressure          = 0.70
	hardPressure          = 0.90
	congestionTickPeriod  = 10 * time.Second
)

// Mempool is the fee-priority transaction pool.
type Mempool struct {
	mu sync.Mutex

	byHash        *swiss.Map[string, *Entry]
	bySenderNonce *swiss.Map[string, string] // "sender|nonce" -> hash
	bySender      map[string]map[string]struct{}
	byRecipient   map[string]map[string]struct{}
	dependents    map[string]map[string]struct{} // hash -> dependents

	heap entryHeap

	totalBytes int64
	maxBytes   int64
	congestion congestionModel

	expiryDefault    time.Duration
	expiryLowFee     time.Duration
	expirySuspicious time.Duration

	ttl *ttlcache.Cache[string, struct{}]

	chain   ChainView
	logger  ulog.Logger
	metrics ledgermetrics.Sink

	stopCh chan struct{}
	wg     *errgroup.Group
}

// Option configures a Mempool at construction.
type Option func(*Mempool)

func WithLogger(l ulog.Logger) Option        { return func(m *Mempool) { m.logger = l } }
func WithMetrics(s ledgermetrics.Sink) Option { return func(m *Mempool) { m.metrics = s } }
func WithMaxBytes(n int64) Option             { return func(m *Mempool) { m.maxBytes = n } }

// WithExpirySchedule wires the chaincfg.Params eviction TTLs (spec
// §4.6) into the pool instead of a hardcoded schedule.
func WithExpirySchedule(def, lowFee, suspicious time.Duration) Option {
	return func(m *Mempool) {
		m.expiryDefault = def
		m.expiryLowFee = lowFee
		m.expirySuspicious = suspicious
	}
}

// New builds an empty Mempool backed by chain.
func New(chain ChainView, opts ...Option) *Mempool {
	m := &Mempool{
		byHash:        swiss.NewMap[string, *Entry](1024),
		bySenderNonce: swiss.NewMap[string, string](1024),
		bySender:      make(map[string]map[string]struct{}),
		byRecipient:   make(map[string]map[string]struct{}),
		dependents:    make(map[string]map[string]struct{}),
		maxBytes:      100 * 1024 * 1024,
		chain:         chain,
		logger:        ulog.Nop(),
		metrics:       ledgermetrics.Nop{},
		stopCh:        make(chan struct{}),

		expiryDefault:    24 * time.Hour,
		expiryLowFee:     time.Hour,
		expirySuspicious: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ttl = ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](24 * time.Hour),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	m.ttl.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, struct{}]) {
		if reason == ttlcache.EvictionReasonExpired {
			m.mu.Lock()
			m.removeLocked(item.Key())
			m.mu.Unlock()
			m.logger.Debugf("[Mempool] evicted expired entry %s", item.Key())
		}
	})
	return m
}

// ttlFor maps an eviction class to its configured expiry (spec §4.6's
// suspicious/low-fee/default eviction schedule).
func (m *Mempool) ttlFor(class evictionClass) time.Duration {
	switch class {
	case classSuspicious:
		return m.expirySuspicious
	case classLowFee:
		return m.expiryLowFee
	default:
		return m.expiryDefault
	}
}

func senderNonceKey(sender string, nonce uint64) string {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(nonce)
		nonce >>= 8
	}
	return sender + "|" + string(b[:])
}

// Start launches the background congestion/eviction tick (§5's
// "awaiting eviction scan tick" suspension point) and the ttlcache's
// own cleanup goroutine under a shared errgroup so Stop can wait for
// both to exit cleanly. Callers MUST call Stop to drain it.
func (m *Mempool) Start(ctx context.Context) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { m.ttl.Start(); return nil })
	g.Go(func() error { m.tickLoop(ctx); return nil })
	m.wg = g
}

// Stop drains the background workers.
func (m *Mempool) Stop() {
	close(m.stopCh)
	m.ttl.Stop()
	if m.wg != nil {
		_ = m.wg.Wait()
	}
}

func (m *Mempool) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(congestionTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Mempool) tick() {
	m.mu.Lock()
	utilization := float64(m.totalBytes) / float64(m.maxBytes)
	m.congestion.update(utilization)
	minRate := m.congestion.minFeeRate()
	congestion := m.congestion.value
	m.mu.Unlock()
	m.metrics.SetGauge("mempool_congestion", congestion, nil)
	m.metrics.SetGauge("mempool_utilization", utilization, nil)
	m.metrics.SetGauge("mempool_min_fee_rate", minRate, nil)
	m.applyPressureScan()
}

// Add implements spec §4.6's admission pipeline.
func (m *Mempool) Add(t *tx.Transaction, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := t.Hash()
	if _, ok := m.byHash.Get(hash); ok {
		return ledgererr.NewInvalidFormatError("duplicate transaction")
	}
	if t.IsExpired(now) {
		return ledgererr.NewExpiredError("transaction expired")
	}
	if t.Type.IsSystemOnly() {
		return ledgererr.NewUnauthorizedError("system-only transaction type is not admissible through the mempool")
	}

	key := senderNonceKey(t.Sender, t.Nonce)
	var replaced *Entry
	if existingHash, ok := m.bySenderNonce.Get(key); ok {
		existing, _ := m.byHash.Get(existingHash)
		if existing == nil {
			return ledgererr.NewStateCorruptionError("sender/nonce index points to missing entry")
		}
		minRequired := existing.Tx.Fee * rbfMinBumpNumerator / rbfMinBumpDenominator
		if t.Fee < minRequired {
			return ledgererr.NewFeeTooLowError("RBF replacement fee bump insufficient")
		}
		replaced = existing
	} else {
		chainNonce := m.chain.ChainNonce(t.Sender)
		mempoolMax, hasMempoolMax := m.maxMempoolNonceLocked(t.Sender)
		var expected uint64
		if hasMempoolMax && mempoolMax+1 > chainNonce {
			expected = mempoolMax + 1
		} else {
			expected = chainNonce
		}
		if t.Nonce != expected {
			return ledgererr.NewNonceGapError("nonce does not extend sender's chain")
		}
	}

	if m.chain.IsSpent(hash) {
		return ledgererr.NewReplayDetectedError("transaction already applied to chain")
	}

	size, err := t.SizeBytes()
	if err != nil {
		return err
	}
	feePerByte := float64(t.Fee) / float64(size)
	if m.congestion.congested() && feePerByte < m.congestion.minFeeRate() {
		return ledgererr.NewFeeTooLowError("fee below congestion floor")
	}

	entry := &Entry{
		Tx:         t,
		ReceivedAt: now,
		SizeBytes:  size,
		FeePerByte: feePerByte,
		Suspicious: m.chain.Suspicious(t),
	}
	entry.evictionClass = m.classifyLocked(entry)
	entry.PriorityScore = computeScore(entry, now)

	if replaced != nil {
		replaced.ReplacedBy = hash
		m.removeLocked(replaced.hash())
	}

	m.insertLocked(entry)
	m.recomputeNeighborsLocked(entry)

	if m.totalBytes > int64(float64(m.maxBytes)*hardPressure) {
		m.evictUntilUnderLocked(softPressure)
	}
	m.metrics.IncCounter("mempool_admitted_total", nil)
	return nil
}

func (m *Mempool) maxMempoolNonceLocked(sender string) (uint64, bool) {
	set, ok := m.bySender[sender]
	if !ok || len(set) == 0 {
		return 0, false
	}
	var maxNonce uint64
	found := false
	for hash := range set {
		e, ok := m.byHash.Get(hash)
		if !ok {
			continue
		}
		if !found || e.Tx.Nonce > maxNonce {
			maxNonce = e.Tx.Nonce
			found = true
		}
	}
	return maxNonce, found
}

func (m *Mempool) classifyLocked(e *Entry) evictionClass {
	if e.Suspicious {
		return classSuspicious
	}
	if m.isLowFeeQuartileLocked(e.FeePerByte) {
		return classLowFee
	}
	return classDefault
}

func (m *Mempool) isLowFeeQuartileLocked(feePerByte float64) bool {
	n := m.byHash.Count()
	if n < 4 {
		return false
	}
	rates := make([]float64, 0, n)
	m.byHash.Iter(func(_ string, e *Entry) (stop bool) {
		rates = append(rates, e.FeePerByte)
		return false
	})
	sort.Float64s(rates)
	q1 := rates[len(rates)/4]
	return feePerByte <= q1
}

func (m *Mempool) insertLocked(e *Entry) {
	hash := e.hash()
	m.byHash.Put(hash, e)
	m.bySenderNonce.Put(senderNonceKey(e.Tx.Sender, e.Tx.Nonce), hash)
	if m.bySender[e.Tx.Sender] == nil {
		m.bySender[e.Tx.Sender] = make(map[string]struct{})
	}
	m.bySender[e.Tx.Sender][hash] = struct{}{}
	if m.byRecipient[e.Tx.Recipient] == nil {
		m.byRecipient[e.Tx.Recipient] = make(map[string]struct{})
	}
	m.byRecipient[e.Tx.Recipient][hash] = struct{}{}

	if e.Tx.Nonce > 0 {
		if parentHash, ok := m.bySenderNonce.Get(senderNonceKey(e.Tx.Sender, e.Tx.Nonce-1)); ok && parentHash != hash {
			e.Dependencies = append(e.Dependencies, parentHash)
			if m.dependents[parentHash] == nil {
				m.dependents[parentHash] = make(map[string]struct{})
			}
			m.dependents[parentHash][hash] = struct{}{}
		}
	}

	heap.Push(&m.heap, e)
	m.totalBytes += int64(e.SizeBytes)
	m.ttl.Set(hash, struct{}{}, m.ttlFor(e.evictionClass))
}

// recomputeNeighborsLocked updates ancestor/descendant aggregates and
// re-scores the entry's direct dependency and dependents (spec §4.6
// step 7: "update dependency graph and ancestor/descendant aggregates
// of neighbors (recompute their scores)").
func (m *Mempool) recomputeNeighborsLocked(e *Entry) {
	now := time.Now()
	for _, depHash := range e.Dependencies {
		if dep, ok := m.byHash.Get(depHash); ok {
			dep.DescendantFee += e.Tx.Fee
			dep.DescendantSize += e.SizeBytes
			dep.PriorityScore = computeScore(dep, now)
			m.fixHeapLocked(dep)

			e.AncestorFee += dep.Tx.Fee + dep.AncestorFee
			e.AncestorSize += dep.SizeBytes + dep.AncestorSize
		}
	}
	if deps, ok := m.dependents[e.hash()]; ok {
		for depHash := range deps {
			if child, ok := m.byHash.Get(depHash); ok {
				child.AncestorFee += e.Tx.Fee
				child.AncestorSize += e.SizeBytes
				child.PriorityScore = computeScore(child, now)
				m.fixHeapLocked(child)
			}
		}
	}
	e.PriorityScore = computeScore(e, now)
	m.fixHeapLocked(e)
}

func (m *Mempool) fixHeapLocked(e *Entry) {
	if e.heapIndex >= 0 && e.heapIndex < len(m.heap) {
		heap.Fix(&m.heap, e.heapIndex)
	}
}

// removeLocked deletes hash from every index and the heap. Safe to
// call for a hash not present.
func (m *Mempool) removeLocked(hash string) {
	e, ok := m.byHash.Get(hash)
	if !ok {
		return
	}
	m.byHash.Delete(hash)
	m.bySenderNonce.Delete(senderNonceKey(e.Tx.Sender, e.Tx.Nonce))
	if set, ok := m.bySender[e.Tx.Sender]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(m.bySender, e.Tx.Sender)
		}
	}
	if set, ok := m.byRecipient[e.Tx.Recipient]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(m.byRecipient, e.Tx.Recipient)
		}
	}
	delete(m.dependents, hash)
	if e.heapIndex >= 0 && e.heapIndex < len(m.heap) {
		heap.Remove(&m.heap, e.heapIndex)
	}
	m.totalBytes -= int64(e.SizeBytes)
	m.ttl.Delete(hash)
}

// Remove deletes a transaction hash (e.g. once the chain has applied
// it in a block).
func (m *Mempool) Remove(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(hash)
}

// Len returns the number of entries currently tracked.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byHash.Count()
}

// Get returns the entry for hash, if present.
func (m *Mempool) Get(hash string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byHash.Get(hash)
}

// Top implements spec §4.6's selection: pop by priority until n valid
// entries are returned, honoring the nonce-order guarantee of §5 (an
// entry is only selected once every lower-nonce same-sender dependency
// in the mempool has already been selected).
func (m *Mempool) Top(n int) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*Entry, len(m.heap))
	copy(candidates, m.heap)
	sort.SliceStable(candidates, func(i, j int) bool {
		return entryHeap(candidates).Less(i, j)
	})

	selected := make([]*Entry, 0, n)
	selectedSet := make(map[string]bool)
	for len(selected) < n {
		progressed := false
		for _, c := range candidates {
			if len(selected) >= n {
				break
			}
			h := c.hash()
			if selectedSet[h] || c.ReplacedBy != "" {
				continue
			}
			ready := true
			for _, dep := range c.Dependencies {
				if !selectedSet[dep] {
					if _, stillPending := m.byHash.Get(dep); stillPending {
						ready = false
						break
					}
				}
			}
			if !ready {
				continue
			}
			selected = append(selected, c)
			selectedSet[h] = true
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return selected
}

// Metrics reports the current congestion snapshot (spec §4.6 and the
// SPEC_FULL.md congestion-metrics supplement).
type Metrics struct {
	Utilization float64
	Congestion  float64
	MinFeeRate  float64
	TotalBytes  int64
	Count       int
}

func (m *Mempool) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		Utilization: float64(m.totalBytes) / float64(m.maxBytes),
		Congestion:  m.congestion.value,
		MinFeeRate:  m.congestion.minFeeRate(),
		TotalBytes:  m.totalBytes,
		Count:       m.byHash.Count(),
	}
}
