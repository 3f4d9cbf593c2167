package query

import (
	"sort"

	"github.com/iamNilotpal/lumen/internal/segment"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/options"
)

// Searcher executes queries over a fixed set of segment readers — an
// immutable snapshot of one commit. It resolves field names to
// per-segment field numbers and aggregates corpus-wide statistics (total
// doc count, term document frequency) that BM25's idf needs.
type Searcher struct {
	readers []*segment.Reader
	opts    *options.Options
}

// NewSearcher binds readers as of one commit. readers is retained by
// reference; callers must not mutate the slice afterward.
func NewSearcher(readers []*segment.Reader, opts *options.Options) (*Searcher, error) {
	if opts.Similarity.Kind != options.SimilarityBM25 && opts.Similarity.Kind != options.SimilarityBoolean {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "similarity model not implemented by this core",
		).WithField("similarity.kind").WithProvided(opts.Similarity.Kind)
	}
	return &Searcher{readers: readers, opts: opts}, nil
}

func (s *Searcher) k1b() (float64, float64) {
	k1, b := s.opts.Similarity.K1, s.opts.Similarity.B
	if k1 == 0 {
		k1 = 1.2
	}
	if b == 0 {
		b = 0.75
	}
	return k1, b
}

// fieldNumber resolves name to a per-segment field number. Field numbers
// are assigned independently per segment (internal/index interns them
// the first time a document uses the name within that segment), so this
// returns one number per reader that actually has the field.
func (s *Searcher) fieldNumber(reader *segment.Reader, name string) (int, bool) {
	fi, ok := reader.FieldByName(name)
	if !ok {
		return 0, false
	}
	return fi.Number, true
}

// docCount is BM25's N: total live documents across every segment.
func (s *Searcher) docCount() int {
	var n int
	for _, r := range s.readers {
		n += int(r.NumDocs())
	}
	return n
}

// docFreq is BM25's df, summed across every segment containing the
// field (a segment missing the field contributes nothing).
func (s *Searcher) docFreq(field string, term []byte) int {
	var df int
	for _, r := range s.readers {
		fn, ok := s.fieldNumber(r, field)
		if !ok {
			continue
		}
		meta, found, err := r.TermMetadata(fn, term)
		if err != nil || !found {
			continue
		}
		df += meta.DocFreq
	}
	return df
}

// ScoredDoc identifies one hit: which segment reader it came from (by
// index into Searcher.readers) and its local document id within that
// segment, since document ids are only meaningful per-segment.
type ScoredDoc struct {
	SegmentIndex int
	DocID        uint32
	Score        float64
}

// Search executes query against every live segment and returns the
// top-k highest scoring hits, ties broken by (segment index, doc id)
// ascending.
func (s *Searcher) Search(q Query, topK int) ([]ScoredDoc, error) {
	rewritten := Rewrite(q, s.opts.MaxClauseCount)
	weight, err := rewritten.CreateWeight(s)
	if err != nil {
		return nil, err
	}

	coll := newTopKCollector(topK)
	for segIdx, r := range s.readers {
		scorer, err := weight.Scorer(r)
		if err != nil {
			return nil, err
		}
		if scorer == nil {
			continue
		}
		if err := collectSegment(coll, segIdx, r, scorer); err != nil {
			return nil, err
		}
	}
	return coll.drain(), nil
}

func collectSegment(coll *topKCollector, segIdx int, r *segment.Reader, scorer Scorer) error {
	doc, err := scorer.NextDoc()
	for ; doc != NoMoreDocs; doc, err = scorer.NextDoc() {
		if err != nil {
			return err
		}
		if !r.IsLive(doc) {
			continue
		}
		score, err := scorer.Score()
		if err != nil {
			return err
		}
		coll.offer(ScoredDoc{SegmentIndex: segIdx, DocID: doc, Score: score})
	}
	return err
}

// Count returns the number of matching documents without scoring them.
func (s *Searcher) Count(q Query) (int, error) {
	rewritten := Rewrite(q, s.opts.MaxClauseCount)
	weight, err := rewritten.CreateWeight(s)
	if err != nil {
		return 0, err
	}
	var n int
	for _, r := range s.readers {
		scorer, err := weight.Scorer(r)
		if err != nil {
			return 0, err
		}
		if scorer == nil {
			continue
		}
		doc, err := scorer.NextDoc()
		for ; doc != NoMoreDocs; doc, err = scorer.NextDoc() {
			if err != nil {
				return 0, err
			}
			if r.IsLive(doc) {
				n++
			}
		}
		if err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Explain reconstructs the scoring breakdown for one document within
// one segment.
func (s *Searcher) Explain(q Query, segIdx int, docID uint32) (*Explanation, error) {
	if segIdx < 0 || segIdx >= len(s.readers) {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "segment index out of range").
			WithField("segIdx").WithProvided(segIdx)
	}
	r := s.readers[segIdx]
	rewritten := Rewrite(q, s.opts.MaxClauseCount)
	weight, err := rewritten.CreateWeight(s)
	if err != nil {
		return nil, err
	}
	scorer, err := weight.Scorer(r)
	if err != nil {
		return nil, err
	}
	if scorer == nil {
		return explainMismatch("query matches nothing in this segment"), nil
	}
	found, err := scorer.Advance(docID)
	if err != nil {
		return nil, err
	}
	if found != docID {
		return explainMismatch("document does not match query"), nil
	}
	score, err := scorer.Score()
	if err != nil {
		return nil, err
	}
	return NewExplanation(score, "sum of matching clauses"), nil
}

// sortScoredDocs orders hits by descending score, ties broken ascending
// by (segment index, doc id) — a deterministic tie-break extended from
// a single segment's doc id space to the multi-segment case.
func sortScoredDocs(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		if docs[i].SegmentIndex != docs[j].SegmentIndex {
			return docs[i].SegmentIndex < docs[j].SegmentIndex
		}
		return docs[i].DocID < docs[j].DocID
	})
}
