package query

import "container/heap"

// topKCollector retains the k highest-scoring hits seen via offer,
// using a bounded min-heap so a new hit only needs comparing against
// the current lowest kept score. Ties break by ascending (segment
// index, doc id), the same order sortScoredDocs applies to the final
// drained result.
//
// A max-score early-exit (a scorer consulting the current threshold to
// skip whole posting blocks whose precomputed max-score can't beat it)
// is not implemented: the codec's skip entries
// (internal/codec/postings.skipEntry) carry no max-score field, so
// every candidate is scored in full and only the heap comparison is
// early-exiting. See DESIGN.md.
type topKCollector struct {
	k    int
	heap scoredDocHeap
}

func newTopKCollector(k int) *topKCollector {
	return &topKCollector{k: k}
}

func (c *topKCollector) offer(d ScoredDoc) {
	if c.k <= 0 {
		return
	}
	if len(c.heap) < c.k {
		heap.Push(&c.heap, d)
		return
	}
	if lessScoredDoc(c.heap[0], d) {
		c.heap[0] = d
		heap.Fix(&c.heap, 0)
	}
}

// drain empties the collector and returns its hits sorted
// highest-score-first.
func (c *topKCollector) drain() []ScoredDoc {
	out := make([]ScoredDoc, len(c.heap))
	copy(out, c.heap)
	sortScoredDocs(out)
	return out
}

// lessScoredDoc reports whether a ranks strictly below b (a is the
// worse hit), used both by the heap's ordering and by offer's
// replace-the-worst decision.
func lessScoredDoc(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.SegmentIndex != b.SegmentIndex {
		return a.SegmentIndex > b.SegmentIndex
	}
	return a.DocID > b.DocID
}

// scoredDocHeap is a min-heap ordered by lessScoredDoc, so its root is
// always the weakest currently-kept hit.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int            { return len(h) }
func (h scoredDocHeap) Less(i, j int) bool  { return lessScoredDoc(h[i], h[j]) }
func (h scoredDocHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredDocHeap) Push(x interface{}) { *h = append(*h, x.(ScoredDoc)) }
func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
