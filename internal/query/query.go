package query

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/iamNilotpal/lumen/internal/codec/bkd"
	"github.com/iamNilotpal/lumen/internal/segment"
	"github.com/iamNilotpal/lumen/pkg/errors"
)

// Occur classifies how a clause participates in a BooleanQuery:
// MUST/FILTER are required, SHOULD is optional-but-scored unless it
// alone satisfies minimum-should-match, MUST_NOT excludes.
type Occur int

const (
	Must Occur = iota
	Should
	Filter
	MustNot
)

// Clause pairs a sub-query with how it participates in its parent
// BooleanQuery.
type Clause struct {
	Query Query
	Occur Occur
}

// Query is anything that can rewrite itself into a simpler/canonical
// form and bind against a Searcher to yield per-segment Scorers.
type Query interface {
	// rewrite returns an equivalent, possibly simplified query. Rewrite
	// is applied to a fixed point by the package-level Rewrite function.
	rewrite() Query
	// CreateWeight binds corpus-wide statistics (doc count, document
	// frequency) against s, producing a Weight that can build per-segment
	// Scorers.
	CreateWeight(s *Searcher) (Weight, error)
}

// Weight is a query bound to a Searcher's corpus-wide statistics; it
// mints one Scorer per segment.
type Weight interface {
	// Scorer returns nil (not an error) when r cannot possibly match,
	// e.g. the field is absent from this segment.
	Scorer(r *segment.Reader) (Scorer, error)
}

// Rewrite applies q.rewrite() to a fixed point: each pass may still
// simplify what the previous pass produced, so rewriting stops only once
// a pass returns the same query it was given. A BooleanQuery additionally
// enforces maxClauses during this process.
func Rewrite(q Query, maxClauses int) Query {
	if bq, ok := q.(*BooleanQuery); ok {
		bq.maxClauses = maxClauses
	}
	for {
		next := q.rewrite()
		if next == q {
			return next
		}
		q = next
	}
}

// TermQuery matches documents whose field contains term exactly.
type TermQuery struct {
	Field string
	Term  []byte
	Boost float64
}

func NewTermQuery(field string, term []byte) *TermQuery {
	return &TermQuery{Field: field, Term: term, Boost: 1}
}

func (q *TermQuery) rewrite() Query { return q }

func (q *TermQuery) CreateWeight(s *Searcher) (Weight, error) {
	docCount := s.docCount()
	docFreq := s.docFreq(q.Field, q.Term)
	k1, b := s.k1b()
	return &termWeight{
		field: q.Field, term: q.Term, boost: q.Boost,
		idf: idf(docCount, docFreq), k1: k1, b: b,
	}, nil
}

type termWeight struct {
	field    string
	term     []byte
	boost    float64
	idf      float64
	k1, b    float64
}

func (w *termWeight) Scorer(r *segment.Reader) (Scorer, error) {
	fn, ok := r.FieldByName(w.field)
	if !ok {
		return nil, nil
	}
	pe, ok, err := r.PostingsEnum(fn.Number, w.term)
	if err != nil || !ok {
		return nil, err
	}
	avgdl := r.AvgFieldLength(fn.Number)
	return newTermScorer(pe, r, fn.Number, w.idf*w.boost, w.k1, w.b, avgdl), nil
}

// MatchAllQuery matches every live document at a constant score.
type MatchAllQuery struct{ Boost float64 }

func NewMatchAllQuery() *MatchAllQuery { return &MatchAllQuery{Boost: 1} }

func (q *MatchAllQuery) rewrite() Query { return q }

func (q *MatchAllQuery) CreateWeight(s *Searcher) (Weight, error) {
	return &matchAllWeight{boost: q.Boost}, nil
}

type matchAllWeight struct{ boost float64 }

func (w *matchAllWeight) Scorer(r *segment.Reader) (Scorer, error) {
	return &constantScorer{DocIdSetIterator: newAllDocsIterator(r.MaxDoc()), boost: w.boost}, nil
}

// MatchNoneQuery matches nothing; the canonical target of several
// BooleanQuery rewrite rules.
type MatchNoneQuery struct{}

func NewMatchNoneQuery() *MatchNoneQuery { return &MatchNoneQuery{} }

func (q *MatchNoneQuery) rewrite() Query { return q }

func (q *MatchNoneQuery) CreateWeight(s *Searcher) (Weight, error) {
	return matchNoneWeight{}, nil
}

type matchNoneWeight struct{}

func (matchNoneWeight) Scorer(r *segment.Reader) (Scorer, error) { return nil, nil }

// ConstantScoreQuery wraps inner, scoring every match at boost instead
// of inner's own score — the vehicle for filter clauses and the
// multi-term rewrite below.
type ConstantScoreQuery struct {
	Inner Query
	Boost float64
}

func NewConstantScoreQuery(inner Query) *ConstantScoreQuery {
	return &ConstantScoreQuery{Inner: inner, Boost: 1}
}

func (q *ConstantScoreQuery) rewrite() Query {
	inner := Rewrite(q.Inner, 0)
	if _, ok := inner.(*MatchNoneQuery); ok {
		return inner
	}
	if inner == q.Inner {
		return q
	}
	return &ConstantScoreQuery{Inner: inner, Boost: q.Boost}
}

func (q *ConstantScoreQuery) CreateWeight(s *Searcher) (Weight, error) {
	inner, err := q.Inner.CreateWeight(s)
	if err != nil {
		return nil, err
	}
	return &constantScoreWeight{inner: inner, boost: q.Boost}, nil
}

type constantScoreWeight struct {
	inner Weight
	boost float64
}

func (w *constantScoreWeight) Scorer(r *segment.Reader) (Scorer, error) {
	inner, err := w.inner.Scorer(r)
	if err != nil || inner == nil {
		return nil, err
	}
	return &constantScorer{DocIdSetIterator: inner, boost: w.boost}, nil
}

// PrefixQuery matches every term in field beginning with Prefix. It
// rewrites up to 16 distinct matching terms into a constant-score
// SHOULD disjunction; beyond that it falls back to a single bitset
// built from the union of every matching term's postings, grounded on
// blugelabs/ice's DocsMatchingTerms (see DESIGN.md).
type PrefixQuery struct {
	Field  string
	Prefix []byte
	Boost  float64
}

func NewPrefixQuery(field string, prefix []byte) *PrefixQuery {
	return &PrefixQuery{Field: field, Prefix: prefix, Boost: 1}
}

const prefixRewriteTermLimit = 16

func (q *PrefixQuery) rewrite() Query { return q }

func (q *PrefixQuery) CreateWeight(s *Searcher) (Weight, error) {
	return &prefixWeight{field: q.Field, prefix: q.Prefix, boost: q.Boost, searcher: s}, nil
}

type prefixWeight struct {
	field    string
	prefix   []byte
	boost    float64
	searcher *Searcher
}

func (w *prefixWeight) Scorer(r *segment.Reader) (Scorer, error) {
	fn, ok := r.FieldByName(w.field)
	if !ok {
		return nil, nil
	}
	it, err := r.PrefixEnum(fn.Number, w.prefix)
	if err != nil {
		return nil, err
	}

	var terms [][]byte
	for {
		term, _, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		terms = append(terms, append([]byte(nil), term...))
		if len(terms) > prefixRewriteTermLimit {
			break
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}

	if len(terms) <= prefixRewriteTermLimit {
		return w.scorerFromDisjunction(r, fn.Number, terms)
	}
	return w.scorerFromBitset(r, fn.Number)
}

func (w *prefixWeight) scorerFromDisjunction(r *segment.Reader, fieldNumber int, terms [][]byte) (Scorer, error) {
	var subs []DocIdSetIterator
	for _, term := range terms {
		pe, ok, err := r.PostingsEnum(fieldNumber, term)
		if err != nil {
			return nil, err
		}
		if ok {
			subs = append(subs, pe)
		}
	}
	if len(subs) == 0 {
		return nil, nil
	}
	disj, err := newDisjunctionIterator(subs)
	if err != nil {
		return nil, err
	}
	return &constantScorer{DocIdSetIterator: disj, boost: w.boost}, nil
}

// scorerFromBitset unions every matching term's postings into a single
// roaring bitmap rather than keeping all of them open simultaneously.
func (w *prefixWeight) scorerFromBitset(r *segment.Reader, fieldNumber int) (Scorer, error) {
	it, err := r.PrefixEnum(fieldNumber, w.prefix)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	for {
		term, _, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		pe, found, err := r.PostingsEnum(fieldNumber, term)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		for doc, err := pe.NextDoc(); doc != NoMoreDocs; doc, err = pe.NextDoc() {
			if err != nil {
				return nil, err
			}
			bm.Add(doc)
		}
	}
	if bm.IsEmpty() {
		return nil, nil
	}
	return &constantScorer{DocIdSetIterator: newBitmapIterator(bm), boost: w.boost}, nil
}

// NumericRangeQuery matches documents whose point field falls within
// [Min, Max] inclusive, evaluated via the BKD tree.
type NumericRangeQuery struct {
	Field    string
	Min, Max int64
	Boost    float64
}

func NewNumericRangeQuery(field string, min, max int64) *NumericRangeQuery {
	return &NumericRangeQuery{Field: field, Min: min, Max: max, Boost: 1}
}

func (q *NumericRangeQuery) rewrite() Query { return q }

func (q *NumericRangeQuery) CreateWeight(s *Searcher) (Weight, error) {
	return &numericRangeWeight{q: q}, nil
}

type numericRangeWeight struct{ q *NumericRangeQuery }

func (w *numericRangeWeight) Scorer(r *segment.Reader) (Scorer, error) {
	fn, ok := r.FieldByName(w.q.Field)
	if !ok {
		return nil, nil
	}
	pv, err := r.PointValues(fn.Number)
	if err != nil {
		if errors.GetErrorCode(err) == errors.ErrorCodeIndexKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	bm := roaring.New()
	v := &rangeVisitor{
		min: bkd.EncodeInt64(w.q.Min), max: bkd.EncodeInt64(w.q.Max), hits: bm,
	}
	if err := pv.Intersect(v); err != nil {
		return nil, err
	}
	if bm.IsEmpty() {
		return nil, nil
	}
	return &constantScorer{DocIdSetIterator: newBitmapIterator(bm), boost: w.q.Boost}, nil
}

// rangeVisitor implements bkd.IntersectVisitor for an inclusive scalar
// range, collecting matching doc ids into a bitmap.
type rangeVisitor struct {
	min, max []byte
	hits     *roaring.Bitmap
}

func (v *rangeVisitor) VisitDocID(docID uint32) {}

func (v *rangeVisitor) VisitPoint(docID uint32, packedValue []byte) {
	if bytesGE(packedValue, v.min) && bytesLE(packedValue, v.max) {
		v.hits.Add(docID)
	}
}

func (v *rangeVisitor) Compare(minPackedValue, maxPackedValue []byte) bkd.Relation {
	if bytesLT(maxPackedValue, v.min) || bytesGT(minPackedValue, v.max) {
		return bkd.CellOutside
	}
	if bytesGE(minPackedValue, v.min) && bytesLE(maxPackedValue, v.max) {
		return bkd.CellInside
	}
	return bkd.CellCrosses
}

func bytesLT(a, b []byte) bool { return compareBytes(a, b) < 0 }
func bytesLE(a, b []byte) bool { return compareBytes(a, b) <= 0 }
func bytesGT(a, b []byte) bool { return compareBytes(a, b) > 0 }
func bytesGE(a, b []byte) bool { return compareBytes(a, b) >= 0 }

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
