package mempool

// entryHeap is a container/heap max-heap ordered by priority score,
// ties broken by fee-per-byte then earliest received_at (spec §5's
// ordering guarantee: "ties broken by fee_per_byte, then by earliest
// received_at").
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	if a.FeePerByte != b.FeePerByte {
		return a.FeePerByte > b.FeePerByte
	}
	return a.ReceivedAt.Before(b.ReceivedAt)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}
