// Package query implements the evaluation side of the search engine:
// the iterator algebra, BM25 scoring, the BooleanQuery rewrite
// pipeline, and top-k collection consuming segment.Reader. Its shapes
// are grounded on Lucene-family engines in the retrieved pack,
// generalized into the idioms (explicit error returns, no panics,
// context-free blocking iterators) the rest of this module already
// uses.
package query

import (
	"container/heap"

	"github.com/RoaringBitmap/roaring"

	"github.com/iamNilotpal/lumen/internal/codec/postings"
)

// NoMoreDocs is the sentinel returned by NextDoc/Advance/DocID once an
// iterator is exhausted, shared with internal/codec/postings so term
// iterators satisfy DocIdSetIterator without adaptation.
const NoMoreDocs = postings.NoMoreDocs

// DocIdSetIterator is the common contract every query-time iterator
// satisfies: docId/nextDoc/advance plus the
// NoMoreDocs sentinel. internal/codec/postings.PostingsEnum already has
// this exact shape.
type DocIdSetIterator interface {
	DocID() uint32
	NextDoc() (uint32, error)
	Advance(target uint32) (uint32, error)
}

// conjunctionIterator intersects N sub-iterators using the standard
// leapfrog algorithm: sorted by ascending cost (cheapest first) so the
// leader drives and the rest only ever advance forward; on a mismatch
// the largest id seen becomes the new target every sub-iterator must
// reach.
type conjunctionIterator struct {
	subs []DocIdSetIterator
	doc  uint32
}

// newConjunctionIterator builds the intersection of subs. subs must be
// non-empty; costs, when known (e.g. term document frequency), should
// already be sorted ascending by the caller.
func newConjunctionIterator(subs []DocIdSetIterator) (*conjunctionIterator, error) {
	c := &conjunctionIterator{subs: subs, doc: NoMoreDocs}
	first, err := subs[0].NextDoc()
	if err != nil {
		return nil, err
	}
	if first == NoMoreDocs {
		return c, nil
	}
	doc, err := c.converge(first)
	if err != nil {
		return nil, err
	}
	c.doc = doc
	return c, nil
}

func (c *conjunctionIterator) DocID() uint32 { return c.doc }

func (c *conjunctionIterator) NextDoc() (uint32, error) {
	if c.doc == NoMoreDocs {
		return NoMoreDocs, nil
	}
	next, err := c.subs[0].NextDoc()
	if err != nil || next == NoMoreDocs {
		c.doc = NoMoreDocs
		return NoMoreDocs, err
	}
	c.doc, err = c.converge(next)
	return c.doc, err
}

func (c *conjunctionIterator) Advance(target uint32) (uint32, error) {
	if c.doc == NoMoreDocs {
		return NoMoreDocs, nil
	}
	next, err := c.subs[0].Advance(target)
	if err != nil || next == NoMoreDocs {
		c.doc = NoMoreDocs
		return NoMoreDocs, err
	}
	c.doc, err = c.converge(next)
	return c.doc, err
}

// converge drives every sub-iterator forward until they all land on the
// same doc id, starting from target (already subs[0]'s current doc).
func (c *conjunctionIterator) converge(target uint32) (uint32, error) {
	i := 1
	for i < len(c.subs) {
		d := c.subs[i].DocID()
		if d < target {
			var err error
			d, err = c.subs[i].Advance(target)
			if err != nil {
				return NoMoreDocs, err
			}
		}
		if d == NoMoreDocs {
			return NoMoreDocs, nil
		}
		if d > target {
			target = d
			var err error
			target, err = c.subs[0].Advance(target)
			if err != nil {
				return NoMoreDocs, err
			}
			if target == NoMoreDocs {
				return NoMoreDocs, nil
			}
			i = 1
			continue
		}
		i++
	}
	return target, nil
}

// disjItem is one live sub-iterator tracked by the disjunction heap.
type disjItem struct {
	it  DocIdSetIterator
	doc uint32
}

type disjHeap []*disjItem

func (h disjHeap) Len() int            { return len(h) }
func (h disjHeap) Less(i, j int) bool  { return h[i].doc < h[j].doc }
func (h disjHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *disjHeap) Push(x interface{}) { *h = append(*h, x.(*disjItem)) }
func (h *disjHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// disjunctionIterator unions N sub-iterators via a min-heap over current
// doc ids; nextDoc pops the lowest, advances it, and re-pushes. matched
// tracks which sub-iterators contributed to the current doc, for
// per-term scoring and for the minimum-should-match variant below.
type disjunctionIterator struct {
	heap    disjHeap
	doc     uint32
	matched []*disjItem
}

func newDisjunctionIterator(subs []DocIdSetIterator) (*disjunctionIterator, error) {
	d := &disjunctionIterator{doc: NoMoreDocs}
	for _, s := range subs {
		doc, err := s.NextDoc()
		if err != nil {
			return nil, err
		}
		if doc != NoMoreDocs {
			d.heap = append(d.heap, &disjItem{it: s, doc: doc})
		}
	}
	heap.Init(&d.heap)
	if err := d.collectMatches(); err != nil {
		return nil, err
	}
	return d, nil
}

// collectMatches pops every heap entry sharing the lowest doc id into
// d.matched, leaving the heap positioned at the next-lowest id.
func (d *disjunctionIterator) collectMatches() error {
	d.matched = d.matched[:0]
	if d.heap.Len() == 0 {
		d.doc = NoMoreDocs
		return nil
	}
	d.doc = d.heap[0].doc
	for d.heap.Len() > 0 && d.heap[0].doc == d.doc {
		item := heap.Pop(&d.heap).(*disjItem)
		d.matched = append(d.matched, item)
		next, err := item.it.NextDoc()
		if err != nil {
			return err
		}
		if next != NoMoreDocs {
			item.doc = next
			heap.Push(&d.heap, item)
		}
	}
	return nil
}

func (d *disjunctionIterator) DocID() uint32 { return d.doc }

func (d *disjunctionIterator) NextDoc() (uint32, error) {
	if d.doc == NoMoreDocs {
		return NoMoreDocs, nil
	}
	if err := d.collectMatches(); err != nil {
		return NoMoreDocs, err
	}
	return d.doc, nil
}

func (d *disjunctionIterator) Advance(target uint32) (uint32, error) {
	if d.doc == NoMoreDocs || d.doc >= target {
		return d.doc, nil
	}
	var rebuilt disjHeap
	for d.heap.Len() > 0 && d.heap[0].doc < target {
		item := heap.Pop(&d.heap).(*disjItem)
		next, err := item.it.Advance(target)
		if err != nil {
			return NoMoreDocs, err
		}
		if next != NoMoreDocs {
			item.doc = next
			rebuilt = append(rebuilt, item)
		}
	}
	for _, item := range rebuilt {
		heap.Push(&d.heap, item)
	}
	if err := d.collectMatches(); err != nil {
		return NoMoreDocs, err
	}
	return d.doc, nil
}

// matchedIterators returns the sub-iterators contributing to the
// current doc, for scorers that sum per-sub-iterator contributions.
func (d *disjunctionIterator) matchedIterators() []DocIdSetIterator {
	out := make([]DocIdSetIterator, len(d.matched))
	for i, m := range d.matched {
		out[i] = m.it
	}
	return out
}

// mmsmIterator is the minimum-should-match disjunction: a doc is in the
// result iff at least m sub-iterators match it. Implemented atop
// disjunctionIterator by skipping docs with fewer than m matches; no
// separate tail of lagging iterators is kept.
type mmsmIterator struct {
	inner *disjunctionIterator
	min   int
}

func newMmsmIterator(subs []DocIdSetIterator, min int) (*mmsmIterator, error) {
	inner, err := newDisjunctionIterator(subs)
	if err != nil {
		return nil, err
	}
	m := &mmsmIterator{inner: inner, min: min}
	if err := m.skipToSatisfying(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *mmsmIterator) skipToSatisfying() error {
	for m.inner.DocID() != NoMoreDocs && len(m.inner.matched) < m.min {
		if _, err := m.inner.NextDoc(); err != nil {
			return err
		}
	}
	return nil
}

func (m *mmsmIterator) DocID() uint32 { return m.inner.DocID() }

func (m *mmsmIterator) NextDoc() (uint32, error) {
	if _, err := m.inner.NextDoc(); err != nil {
		return NoMoreDocs, err
	}
	if err := m.skipToSatisfying(); err != nil {
		return NoMoreDocs, err
	}
	return m.DocID(), nil
}

func (m *mmsmIterator) Advance(target uint32) (uint32, error) {
	if _, err := m.inner.Advance(target); err != nil {
		return NoMoreDocs, err
	}
	if err := m.skipToSatisfying(); err != nil {
		return NoMoreDocs, err
	}
	return m.DocID(), nil
}

func (m *mmsmIterator) matchedIterators() []DocIdSetIterator {
	return m.inner.matchedIterators()
}

// twoPhaseIterator pairs a cheap approximation with an expensive
// verification predicate, so the positional check only runs on
// approximate hits.
type twoPhaseIterator struct {
	approx  DocIdSetIterator
	matches func() (bool, error)
}

func (t *twoPhaseIterator) DocID() uint32 { return t.approx.DocID() }

func (t *twoPhaseIterator) NextDoc() (uint32, error) {
	for {
		doc, err := t.approx.NextDoc()
		if err != nil || doc == NoMoreDocs {
			return doc, err
		}
		ok, err := t.matches()
		if err != nil {
			return NoMoreDocs, err
		}
		if ok {
			return doc, nil
		}
	}
}

func (t *twoPhaseIterator) Advance(target uint32) (uint32, error) {
	doc, err := t.approx.Advance(target)
	if err != nil || doc == NoMoreDocs {
		return doc, err
	}
	ok, err := t.matches()
	if err != nil {
		return NoMoreDocs, err
	}
	if ok {
		return doc, nil
	}
	return t.NextDoc()
}

// allDocsIterator walks every doc id in [0, maxDoc) — MatchAllQuery's
// approximation; liveness is filtered at collection time the same way
// every other scorer's hits are (segment.Reader.IsLive).
type allDocsIterator struct {
	doc    uint32
	maxDoc uint32
}

func newAllDocsIterator(maxDoc uint32) *allDocsIterator {
	return &allDocsIterator{doc: NoMoreDocs, maxDoc: maxDoc}
}

func (a *allDocsIterator) DocID() uint32 { return a.doc }

func (a *allDocsIterator) NextDoc() (uint32, error) {
	if a.doc == NoMoreDocs {
		if a.maxDoc == 0 {
			return NoMoreDocs, nil
		}
		a.doc = 0
		return a.doc, nil
	}
	if a.doc+1 >= a.maxDoc {
		a.doc = NoMoreDocs
		return NoMoreDocs, nil
	}
	a.doc++
	return a.doc, nil
}

func (a *allDocsIterator) Advance(target uint32) (uint32, error) {
	if target >= a.maxDoc {
		a.doc = NoMoreDocs
		return NoMoreDocs, nil
	}
	a.doc = target
	return a.doc, nil
}

// bitmapIterator walks a precomputed roaring bitmap of matching doc ids
// — backs the prefix-query and numeric-range-query bitset rewrites.
type bitmapIterator struct {
	it  roaring.IntPeekable
	doc uint32
}

func newBitmapIterator(bm *roaring.Bitmap) *bitmapIterator {
	return &bitmapIterator{it: bm.Iterator(), doc: NoMoreDocs}
}

func (b *bitmapIterator) DocID() uint32 { return b.doc }

func (b *bitmapIterator) NextDoc() (uint32, error) {
	if !b.it.HasNext() {
		b.doc = NoMoreDocs
		return NoMoreDocs, nil
	}
	b.doc = b.it.Next()
	return b.doc, nil
}

func (b *bitmapIterator) Advance(target uint32) (uint32, error) {
	b.it.AdvanceIfNeeded(target)
	return b.NextDoc()
}
