package reactor

// timerHeap is a container/heap min-heap ordered by (expiration, sequence),
// the sequence tie-break giving a stable total order exactly as spec.md §5
// requires ("ties are broken by timer address, which is an
// implementation-defined but stable total order" — here, insertion
// sequence, which is simpler and equally stable in Go).
type timerHeap []*timerNode

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].expiration.Equal(h[j].expiration) {
		return h[i].id.seq < h[j].id.seq
	}
	return h[i].expiration.Before(h[j].expiration)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	n := x.(*timerNode)
	n.heapIndex = len(*h)
	*h = append(*h, n)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.heapIndex = -1
	*h = old[:n-1]
	return node
}
