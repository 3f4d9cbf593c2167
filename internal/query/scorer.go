package query

import "math"

// Scorer is a positioned, per-segment iterator that can also score its
// current document: a Weight yields a per-segment Scorer exposing a
// DocIdSetIterator plus Score(). Scorers are never thread-safe and are
// built fresh per segment per executing thread.
type Scorer interface {
	DocIdSetIterator
	Score() (float64, error)
}

// termPostings is the subset of postings.PostingsEnum a termScorer
// drives; kept narrow so tests can substitute a fake.
type termPostings interface {
	DocIdSetIterator
	Freq() int
}

// normSource resolves a document's quantized field length for BM25's dl
// term — satisfied by segment.Reader.NormValue.
type normSource interface {
	NormValue(fieldNumber int, docID uint32) (byte, bool, error)
}

// termScorer computes BM25 contribution for one query term in one
// field, cross-checked against blugelabs/bluge/search/similarity/
// bm25.go's BM25Scorer (restructured here into the literal
// weight*tf/(tf+k1*(1-b+b*dl/avgdl)) form rather than bluge's
// algebraically-equivalent 1-1/(1+x) rewrite).
type termScorer struct {
	postings    termPostings
	norms       normSource
	fieldNumber int
	weight      float64 // idf * (k1+1)
	k1, b       float64
	avgdl       float64
}

func newTermScorer(postings termPostings, norms normSource, fieldNumber int, idf, k1, b, avgdl float64) *termScorer {
	return &termScorer{
		postings: postings, norms: norms, fieldNumber: fieldNumber,
		weight: idf * (k1 + 1), k1: k1, b: b, avgdl: avgdl,
	}
}

func (s *termScorer) DocID() uint32                      { return s.postings.DocID() }
func (s *termScorer) NextDoc() (uint32, error)           { return s.postings.NextDoc() }
func (s *termScorer) Advance(target uint32) (uint32, error) { return s.postings.Advance(target) }

func (s *termScorer) Score() (float64, error) {
	doc := s.postings.DocID()
	if doc == NoMoreDocs {
		return 0, nil
	}
	tf := float64(s.postings.Freq())
	dl := 1.0
	if s.avgdl > 0 {
		if nb, ok, err := s.norms.NormValue(s.fieldNumber, doc); err != nil {
			return 0, err
		} else if ok {
			dl = float64(nb)
		}
	}
	avgdl := s.avgdl
	if avgdl == 0 {
		avgdl = 1
	}
	denom := tf + s.k1*(1-s.b+s.b*dl/avgdl)
	if denom == 0 {
		return 0, nil
	}
	return s.weight * tf / denom, nil
}

func (s *termScorer) explain(term string) (*Explanation, error) {
	score, err := s.Score()
	if err != nil {
		return nil, err
	}
	return NewExplanation(score, "weight("+term+" in doc"+")", nil), nil
}

// idf computes the BM25 idf: ln(1 + (N - df + 0.5)/(df + 0.5)).
func idf(docCount, docFreq int) float64 {
	if docFreq == 0 {
		docFreq = 1
	}
	n := float64(docCount)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// phraseScorer computes BM25 contribution for a PhraseQuery, reusing the
// same weight*tf/(tf+k1*(1-b+b*dl/avgdl)) form as termScorer but sourcing
// tf from the number of in-order, consecutive-position matches a
// phraseMatcher counted for the current document rather than a single
// term's raw frequency.
type phraseScorer struct {
	DocIdSetIterator
	matcher     *phraseMatcher
	norms       normSource
	fieldNumber int
	weight      float64 // idf * (k1+1)
	k1, b       float64
	avgdl       float64
}

func newPhraseScorer(it DocIdSetIterator, matcher *phraseMatcher, norms normSource, fieldNumber int, idf, k1, b, avgdl float64) *phraseScorer {
	return &phraseScorer{
		DocIdSetIterator: it, matcher: matcher, norms: norms, fieldNumber: fieldNumber,
		weight: idf * (k1 + 1), k1: k1, b: b, avgdl: avgdl,
	}
}

func (s *phraseScorer) Score() (float64, error) {
	doc := s.DocID()
	if doc == NoMoreDocs {
		return 0, nil
	}
	tf := float64(s.matcher.tf)
	if tf == 0 {
		tf = 1
	}
	dl := 1.0
	if s.avgdl > 0 {
		if nb, ok, err := s.norms.NormValue(s.fieldNumber, doc); err != nil {
			return 0, err
		} else if ok {
			dl = float64(nb)
		}
	}
	avgdl := s.avgdl
	if avgdl == 0 {
		avgdl = 1
	}
	denom := tf + s.k1*(1-s.b+s.b*dl/avgdl)
	if denom == 0 {
		return 0, nil
	}
	return s.weight * tf / denom, nil
}

// constantScorer always reports the same score for whatever document
// its wrapped iterator is positioned on — backs FILTER clauses,
// MatchAllQuery, and the constant-score multi-term rewrite.
type constantScorer struct {
	DocIdSetIterator
	boost float64
}

func (c *constantScorer) Score() (float64, error) {
	if c.DocID() == NoMoreDocs {
		return 0, nil
	}
	return c.boost, nil
}
