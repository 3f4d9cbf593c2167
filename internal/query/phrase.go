package query

import (
	"github.com/iamNilotpal/lumen/internal/codec/postings"
	"github.com/iamNilotpal/lumen/internal/segment"
)

// PhraseQuery matches documents where every term in Terms occurs, in
// order, at consecutive positions within Field (slop 0). Document-level
// candidacy is a conjunction over the terms' postings (cheap); the
// actual position check only runs on documents that already contain
// every term, via twoPhaseIterator.
type PhraseQuery struct {
	Field string
	Terms [][]byte
	Boost float64
}

func NewPhraseQuery(field string, terms ...[]byte) *PhraseQuery {
	return &PhraseQuery{Field: field, Terms: terms, Boost: 1}
}

func (q *PhraseQuery) rewrite() Query {
	if len(q.Terms) == 1 {
		return &TermQuery{Field: q.Field, Term: q.Terms[0], Boost: q.Boost}
	}
	return q
}

func (q *PhraseQuery) CreateWeight(s *Searcher) (Weight, error) {
	docCount := s.docCount()
	k1, b := s.k1b()
	var idfSum float64
	for _, t := range q.Terms {
		idfSum += idf(docCount, s.docFreq(q.Field, t))
	}
	return &phraseWeight{field: q.Field, terms: q.Terms, boost: q.Boost, idf: idfSum, k1: k1, b: b}, nil
}

type phraseWeight struct {
	field string
	terms [][]byte
	boost float64
	idf   float64
	k1, b float64
}

func (w *phraseWeight) Scorer(r *segment.Reader) (Scorer, error) {
	if len(w.terms) == 0 {
		return nil, nil
	}
	fn, ok := r.FieldByName(w.field)
	if !ok {
		return nil, nil
	}

	pes := make([]*postings.PostingsEnum, len(w.terms))
	subs := make([]DocIdSetIterator, len(w.terms))
	for i, t := range w.terms {
		pe, found, err := r.PostingsEnum(fn.Number, t)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		pes[i] = pe
		subs[i] = pe
	}

	conj, err := newConjunctionIterator(subs)
	if err != nil {
		return nil, err
	}

	m := &phraseMatcher{enums: pes}
	approx := &twoPhaseIterator{approx: conj, matches: m.matches}

	avgdl := r.AvgFieldLength(fn.Number)
	return newPhraseScorer(approx, m, r, fn.Number, w.idf*w.boost, w.k1, w.b, avgdl), nil
}

// phraseMatcher is the expensive verification twoPhaseIterator runs once
// its approximation (a conjunction over every term's postings) lands on
// a candidate document: every enum's position list is pulled for the
// current document and checked for a run where enums[i] occurs exactly
// i positions after enums[0].
type phraseMatcher struct {
	enums []*postings.PostingsEnum
	tf    int
}

func (m *phraseMatcher) matches() (bool, error) {
	positions := make([][]int, len(m.enums))
	for i, pe := range m.enums {
		pe.StartPositions()
		freq := pe.Freq()
		pos := make([]int, freq)
		for j := range pos {
			p, err := pe.NextPosition()
			if err != nil {
				return false, err
			}
			pos[j] = p
		}
		positions[i] = pos
	}

	m.tf = 0
	for _, start := range positions[0] {
		matched := true
		for i := 1; i < len(positions); i++ {
			if !containsPosition(positions[i], start+i) {
				matched = false
				break
			}
		}
		if matched {
			m.tf++
		}
	}
	return m.tf > 0, nil
}

// containsPosition binary-searches the ascending position list recorded
// by the postings writer for target.
func containsPosition(positions []int, target int) bool {
	lo, hi := 0, len(positions)
	for lo < hi {
		mid := (lo + hi) / 2
		if positions[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(positions) && positions[lo] == target
}
