package mempool

import "sort"

// evictUntilUnderLocked drops lowest-priority entries, preferring
// suspicious and low-fee classes first, until totalBytes falls under
// target*maxBytes (spec §4.6: "evict down to 70% capacity, preferring
// suspicious and low-fee entries first").
func (m *Mempool) evictUntilUnderLocked(target float64) {
	limit := int64(float64(m.maxBytes) * target)
	if m.totalBytes <= limit {
		return
	}

	candidates := make([]*Entry, len(m.heap))
	copy(candidates, m.heap)
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i].evictionClass, candidates[j].evictionClass
		if ci != cj {
			return ci > cj // classSuspicious(2) and classLowFee(1) evicted before classDefault(0)
		}
		return candidates[i].PriorityScore < candidates[j].PriorityScore
	})

	for _, c := range candidates {
		if m.totalBytes <= limit {
			break
		}
		m.removeLocked(c.hash())
	}
}

// applyPressureScan is invoked from the congestion tick to evict
// over-capacity entries outside the Add() admission path (spec §4.6's
// periodic "eviction scan tick"). TTL expiry is handled separately by
// the ttlcache eviction callback registered in New.
func (m *Mempool) applyPressureScan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.totalBytes > int64(float64(m.maxBytes)*softPressure) {
		m.evictUntilUnderLocked(softPressure)
	}
}
