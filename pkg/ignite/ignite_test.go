package ignite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/lumen/pkg/options"
)

func testOpts(t *testing.T) []options.OptionFunc {
	t.Helper()
	return []options.OptionFunc{
		options.WithDataDir(t.TempDir()),
		options.WithMergeScheduler(options.MergeScheduler{Kind: options.SerialMergeScheduler}),
		options.WithMergePolicy(options.MergePolicy{Kind: options.NoMergePolicy}),
	}
}

func tokensOf(words ...string) []Token {
	toks := make([]Token, len(words))
	for i, w := range words {
		toks[i] = Token{Term: []byte(w), Position: i}
	}
	return toks
}

func TestWriterAddDocumentAndReaderRoundTrip(t *testing.T) {
	opts := testOpts(t)

	w, err := Open(context.Background(), "test", opts...)
	require.NoError(t, err)

	doc := NewDocument().
		AddText("content", tokensOf("quick", "brown", "fox"), true).
		AddStoredString("title", "Quick Fox").
		AddNumeric("price", 42, true, true, true)

	docID, err := w.AddDocument(doc)
	require.NoError(t, err)
	require.EqualValues(t, 0, docID)
	require.NoError(t, w.Commit())
	require.NoError(t, w.Close())

	r, err := OpenReader(context.Background(), "test", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	require.EqualValues(t, 1, r.NumDocs())
	s, err := r.Searcher()
	require.NoError(t, err)

	hits, err := s.Search(NewTermQuery("content", []byte("fox")), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	rangeHits, err := s.Search(NewNumericRangeQuery("price", 0, 100), 10)
	require.NoError(t, err)
	require.Len(t, rangeHits, 1)
}

func TestWriterDeleteByTermRemovesDocument(t *testing.T) {
	opts := testOpts(t)
	w, err := Open(context.Background(), "test", opts...)
	require.NoError(t, err)

	_, err = w.AddDocument(NewDocument().AddText("content", tokensOf("apple"), true))
	require.NoError(t, err)
	_, err = w.AddDocument(NewDocument().AddText("content", tokensOf("banana"), true))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	n, err := w.DeleteByTerm("content", []byte("apple"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, w.Close())

	r, err := OpenReader(context.Background(), "test", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.EqualValues(t, 1, r.NumDocs())
}

func TestWriterDeleteByQueryRemovesMatchingDocuments(t *testing.T) {
	opts := testOpts(t)
	w, err := Open(context.Background(), "test", opts...)
	require.NoError(t, err)

	_, err = w.AddDocument(NewDocument().AddText("content", tokensOf("keep", "me"), true))
	require.NoError(t, err)
	_, err = w.AddDocument(NewDocument().AddText("content", tokensOf("drop", "me"), true))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	n, err := w.DeleteByQuery(NewTermQuery("content", []byte("drop")))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, w.Close())

	r, err := OpenReader(context.Background(), "test", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.EqualValues(t, 1, r.NumDocs())
}

func TestWriterUpdateDocumentReplacesExisting(t *testing.T) {
	opts := testOpts(t)
	w, err := Open(context.Background(), "test", opts...)
	require.NoError(t, err)

	_, err = w.AddDocument(NewDocument().
		AddText("id", tokensOf("user-1"), false).
		AddStoredString("name", "Alice"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	_, err = w.UpdateDocument("id", []byte("user-1"), NewDocument().
		AddText("id", tokensOf("user-1"), false).
		AddStoredString("name", "Alice Updated"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	require.NoError(t, w.Close())

	r, err := OpenReader(context.Background(), "test", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	s, err := r.Searcher()
	require.NoError(t, err)
	hits, err := s.Search(NewTermQuery("id", []byte("user-1")), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}
