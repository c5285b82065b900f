package vectorindex

// less orders two candidates by Distance with ties broken by the smaller
// id (spec §4.F: "Tie-breaks use the smaller id").
func less(a, b ScoredID) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID.Less(b.ID)
}

// minHeap is a binary min-heap ordered by distance (closest first), used
// as the beam search frontier.
type minHeap []ScoredID

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(ScoredID)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap is a binary max-heap ordered by distance (farthest first), used
// to bound the result/candidate set to a fixed size by evicting the
// worst entry.
type maxHeap []ScoredID

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return less(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(ScoredID)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
