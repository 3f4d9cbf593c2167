package query

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamNilotpal/lumen/internal/codec/bkd"
	"github.com/iamNilotpal/lumen/internal/engine"
	"github.com/iamNilotpal/lumen/internal/index"
	"github.com/iamNilotpal/lumen/pkg/options"
)

// newTestEngine mirrors internal/engine's own test fixture: a serial
// scheduler and no automatic merging, so each Commit produces exactly one
// new segment and segment indices stay predictable.
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	opts.MergeScheduler.Kind = options.SerialMergeScheduler
	opts.MergePolicy.Kind = options.NoMergePolicy

	e, err := engine.New(context.Background(), &engine.Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func tokensOf(text string) []index.Token {
	words := strings.Fields(text)
	toks := make([]index.Token, len(words))
	for i, w := range words {
		toks[i] = index.Token{Term: []byte(w), Position: i}
	}
	return toks
}

func addTextDoc(t *testing.T, e *engine.Engine, field, text string) {
	t.Helper()
	_, err := e.AddDocument([]index.Field{
		{Name: field, Kind: index.KindIndexed | index.KindStored, StoredKind: index.StoredString, StoredString: text, Tokens: tokensOf(text)},
	})
	require.NoError(t, err)
}

func newTestSearcher(t *testing.T, e *engine.Engine) *Searcher {
	t.Helper()
	opts := options.NewDefaultOptions()
	s, err := NewSearcher(e.Readers(), &opts)
	require.NoError(t, err)
	return s
}

func TestTermQueryMatchesExpectedDocuments(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "the quick brown fox")
	addTextDoc(t, e, "content", "the lazy dog")
	addTextDoc(t, e, "content", "quick silver")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	hits, err := s.Search(NewTermQuery("content", []byte("quick")), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		require.Contains(t, []uint32{0, 2}, h.DocID)
		require.Greater(t, h.Score, 0.0)
	}
}

func TestTermQueryScoresRarerTermHigher(t *testing.T) {
	e := newTestEngine(t)
	// "fox" appears in one of three docs, "the" in two of three: fox
	// should score higher via BM25's idf term.
	addTextDoc(t, e, "content", "the quick fox")
	addTextDoc(t, e, "content", "the lazy dog")
	addTextDoc(t, e, "content", "a sly cat")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	foxHits, err := s.Search(NewTermQuery("content", []byte("fox")), 10)
	require.NoError(t, err)
	require.Len(t, foxHits, 1)

	theHits, err := s.Search(NewTermQuery("content", []byte("the")), 10)
	require.NoError(t, err)
	require.Len(t, theHits, 2)

	require.Greater(t, foxHits[0].Score, theHits[0].Score)
}

func TestPrefixQueryMatchesEveryTermWithPrefix(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "cat catalog category")
	addTextDoc(t, e, "content", "dog")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	hits, err := s.Search(NewPrefixQuery("content", []byte("cat")), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.EqualValues(t, 0, hits[0].DocID)
}

func TestNumericRangeQueryMatchesInclusiveBounds(t *testing.T) {
	e := newTestEngine(t)
	for _, v := range []int64{5, 10, 15, 20, 25} {
		_, err := e.AddDocument([]index.Field{
			{
				Name: "price", Kind: index.KindPoint, PointDims: 1, PointBytes: 8,
				PointValue: encodeInt64ForTest(v),
			},
		})
		require.NoError(t, err)
	}
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	hits, err := s.Search(NewNumericRangeQuery("price", 10, 20), 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
}

func encodeInt64ForTest(v int64) []byte {
	return bkd.EncodeInt64(v)
}

// TestBooleanQueryAdvisoryShouldDoesNotNarrowMatches exercises the
// driving-vs-advisory SHOULD split directly: with MUST clauses present
// and MinShouldMatch left at 0, SHOULD only contributes to ranking and
// must never exclude a document that satisfies every MUST clause.
func TestBooleanQueryAdvisoryShouldDoesNotNarrowMatches(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "c e h")       // MUST satisfied, no SHOULD terms
	addTextDoc(t, e, "content", "a b c e h")   // MUST satisfied, all SHOULD terms present
	addTextDoc(t, e, "content", "a b d")       // MUST not satisfied
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	q := NewBooleanQuery(
		Clause{Query: NewTermQuery("content", []byte("c")), Occur: Must},
		Clause{Query: NewTermQuery("content", []byte("e")), Occur: Must},
		Clause{Query: NewTermQuery("content", []byte("h")), Occur: Must},
		Clause{Query: NewTermQuery("content", []byte("a")), Occur: Should},
		Clause{Query: NewTermQuery("content", []byte("b")), Occur: Should},
		Clause{Query: NewTermQuery("content", []byte("d")), Occur: Should},
	)

	hits, err := s.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	byDoc := map[uint32]float64{}
	for _, h := range hits {
		byDoc[h.DocID] = h.Score
	}
	require.Contains(t, byDoc, uint32(0))
	require.Contains(t, byDoc, uint32(1))
	// Doc 1 additionally matches two SHOULD terms and must outscore doc 0.
	require.Greater(t, byDoc[1], byDoc[0])
}

// TestBooleanQueryMinShouldMatchRequiresThreshold reproduces the ten-
// document scenario that distinguishes a driving SHOULD (when
// MinShouldMatch is explicitly positive) from the purely advisory case
// above: with MUST{c,e,h} and SHOULD{a,b,d} at MinShouldMatch=2, only the
// document satisfying all three MUST terms AND at least two SHOULD terms
// should match.
func TestBooleanQueryMinShouldMatchRequiresThreshold(t *testing.T) {
	e := newTestEngine(t)
	docs := []string{
		"a e c",
		"e",
		"c",
		"a c e",
		"h",
		"b h",
		"c a",
		"a e h",
		"b c d e h e",
		"a e a b",
	}
	for _, d := range docs {
		addTextDoc(t, e, "content", d)
	}
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	q := NewBooleanQuery(
		Clause{Query: NewTermQuery("content", []byte("c")), Occur: Must},
		Clause{Query: NewTermQuery("content", []byte("e")), Occur: Must},
		Clause{Query: NewTermQuery("content", []byte("h")), Occur: Must},
		Clause{Query: NewTermQuery("content", []byte("a")), Occur: Should},
		Clause{Query: NewTermQuery("content", []byte("b")), Occur: Should},
		Clause{Query: NewTermQuery("content", []byte("d")), Occur: Should},
	)
	q.MinShouldMatch = 2

	hits, err := s.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.EqualValues(t, 8, hits[0].DocID)
}

func TestBooleanQueryMustNotExcludesMatches(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "apple banana")
	addTextDoc(t, e, "content", "apple cherry")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	q := NewBooleanQuery(
		Clause{Query: NewTermQuery("content", []byte("apple")), Occur: Must},
		Clause{Query: NewTermQuery("content", []byte("banana")), Occur: MustNot},
	)
	hits, err := s.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.EqualValues(t, 1, hits[0].DocID)
}

func TestBooleanQueryRewriteCollapsesSingleMustClause(t *testing.T) {
	q := NewBooleanQuery(Clause{Query: NewTermQuery("content", []byte("x")), Occur: Must})
	rewritten := Rewrite(q, 0)
	tq, ok := rewritten.(*TermQuery)
	require.True(t, ok)
	require.Equal(t, "content", tq.Field)
}

func TestBooleanQueryTooManyClausesFailsAtCreateWeight(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "x")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	clauses := make([]Clause, 3)
	for i := range clauses {
		clauses[i] = Clause{Query: NewTermQuery("content", []byte("x")), Occur: Should}
	}
	q := NewBooleanQuery(clauses...)

	_, err := s.Search(q, 10)
	require.NoError(t, err) // default MaxClauseCount (1024) is not exceeded

	q.maxClauses = 2
	_, err = q.CreateWeight(s)
	require.Error(t, err)
}

func TestMatchAllQueryMatchesEveryLiveDocument(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "one")
	addTextDoc(t, e, "content", "two")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	hits, err := s.Search(NewMatchAllQuery(), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestCountMatchesSearchLength(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "shared term")
	addTextDoc(t, e, "content", "shared again")
	addTextDoc(t, e, "content", "unrelated")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	n, err := s.Count(NewTermQuery("content", []byte("shared")))
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPhraseQueryRequiresConsecutiveOrderedPositions(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "the quick brown fox jumps")
	addTextDoc(t, e, "content", "brown the quick fox")  // same terms, wrong order
	addTextDoc(t, e, "content", "the quick red fox")    // interrupted phrase
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	hits, err := s.Search(NewPhraseQuery("content", []byte("quick"), []byte("brown")), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.EqualValues(t, 0, hits[0].DocID)
	require.Greater(t, hits[0].Score, 0.0)
}

func TestPhraseQueryRewritesSingleTermToTermQuery(t *testing.T) {
	q := NewPhraseQuery("content", []byte("solo"))
	rewritten := Rewrite(q, 0)
	tq, ok := rewritten.(*TermQuery)
	require.True(t, ok)
	require.Equal(t, []byte("solo"), tq.Term)
}

func TestPhraseQueryMissingTermMatchesNothing(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "the quick brown fox")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	hits, err := s.Search(NewPhraseQuery("content", []byte("quick"), []byte("missing")), 10)
	require.NoError(t, err)
	require.Len(t, hits, 0)
}

func TestExplainReportsMismatchForNonMatchingDocument(t *testing.T) {
	e := newTestEngine(t)
	addTextDoc(t, e, "content", "alpha")
	addTextDoc(t, e, "content", "beta")
	require.NoError(t, e.Commit())

	s := newTestSearcher(t, e)
	exp, err := s.Explain(NewTermQuery("content", []byte("alpha")), 0, 1)
	require.NoError(t, err)
	require.Equal(t, 0.0, exp.Value)

	exp, err = s.Explain(NewTermQuery("content", []byte("alpha")), 0, 0)
	require.NoError(t, err)
	require.Greater(t, exp.Value, 0.0)
}
