// Package ignite is the public entry point for the Lumen search core: a
// segment-structured, on-disk full-text index combining an inverted
// postings/FST term dictionary with stored fields, doc values, and BKD
// point ranges. It wraps internal/engine's mutation path and
// internal/query's evaluation path behind a Writer/Reader/Searcher
// surface, the same shape a storage engine wraps its internal engine
// behind a single facade.
package ignite

import (
	"context"

	"github.com/iamNilotpal/lumen/internal/codec/docvalues"
	"github.com/iamNilotpal/lumen/internal/engine"
	"github.com/iamNilotpal/lumen/internal/index"
	"github.com/iamNilotpal/lumen/internal/query"
	"github.com/iamNilotpal/lumen/internal/segment"
	"github.com/iamNilotpal/lumen/pkg/logger"
	"github.com/iamNilotpal/lumen/pkg/options"
)

// Token is one analyzed occurrence of a term in a text field.
// Tokenization itself is out of scope for this core — callers supply already-analyzed tokens.
type Token struct {
	Term        []byte
	Position    int
	StartOffset int
	EndOffset   int
}

// Document accumulates one addDocument/updateDocument call's fields
// before handing them to a Writer.
type Document struct {
	fields []index.Field
}

// NewDocument begins an empty document.
func NewDocument() *Document { return &Document{} }

// AddText adds an indexed (and optionally stored) text field from a
// caller-supplied token stream.
func (d *Document) AddText(name string, tokens []Token, stored bool) *Document {
	f := index.Field{Name: name, Kind: index.KindIndexed}
	f.Tokens = make([]index.Token, len(tokens))
	for i, t := range tokens {
		f.Tokens[i] = index.Token{Term: t.Term, Position: t.Position, StartOffset: t.StartOffset, EndOffset: t.EndOffset}
	}
	if stored {
		f.Kind |= index.KindStored
		f.StoredKind = index.StoredBytes
		f.StoredBytes = joinTerms(tokens)
	}
	d.fields = append(d.fields, f)
	return d
}

func joinTerms(tokens []Token) []byte {
	var out []byte
	for i, t := range tokens {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, t.Term...)
	}
	return out
}

// AddStoredString adds a stored-only (not indexed, not sortable) field.
func (d *Document) AddStoredString(name, value string) *Document {
	d.fields = append(d.fields, index.Field{
		Name: name, Kind: index.KindStored, StoredKind: index.StoredString, StoredString: value,
	})
	return d
}

// AddNumeric adds a numeric field, indexed as a sortable doc-value and
// optionally as a BKD point for range queries.
func (d *Document) AddNumeric(name string, value int64, stored, sortable, rangeQueryable bool) *Document {
	f := index.Field{Name: name, DocValueNumeric: value}
	if stored {
		f.Kind |= index.KindStored
		f.StoredKind = index.StoredLong
		f.StoredInt = value
	}
	if sortable {
		f.Kind |= index.KindDocValue
		f.DocValueType = docvalues.Numeric
	}
	if rangeQueryable {
		f.Kind |= index.KindPoint
		f.PointDims = 1
		f.PointBytes = 8
		f.PointValue = encodeInt64Point(value)
	}
	d.fields = append(d.fields, f)
	return d
}

// Writer mutates an index: buffering documents, committing them into
// durable segments, and folding small segments together. It exposes
// AddDocument/UpdateDocument/DeleteByTerm/DeleteByQuery/Commit/
// ForceMerge/Close over internal/engine.Engine.
type Writer struct {
	eng  *engine.Engine
	opts *options.Options
}

// Open creates or reopens a Writer over opts.DataDir, applying any
// functional options over the library defaults.
func Open(ctx context.Context, service string, opts ...options.OptionFunc) (*Writer, error) {
	log := logger.New(service)

	resolved := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&resolved)
	}

	eng, err := engine.New(ctx, &engine.Config{Logger: log, Options: &resolved})
	if err != nil {
		return nil, err
	}
	return &Writer{eng: eng, opts: &resolved}, nil
}

// AddDocument buffers doc in the active segment builder, returning its
// newly assigned segment-local document id.
func (w *Writer) AddDocument(doc *Document) (uint32, error) {
	return w.eng.AddDocument(doc.fields)
}

// UpdateDocument deletes every existing document matching field/term
// and adds doc as a replacement — delete-then-add is the only
// supported update shape; partial field updates are out of scope.
func (w *Writer) UpdateDocument(field string, term []byte, doc *Document) (uint32, error) {
	if _, err := w.eng.DeleteByTerm(field, term); err != nil {
		return 0, err
	}
	return w.AddDocument(doc)
}

// DeleteByTerm removes every live document whose field contains term,
// returning how many were newly tombstoned.
func (w *Writer) DeleteByTerm(field string, term []byte) (int, error) {
	return w.eng.DeleteByTerm(field, term)
}

// DeleteByQuery removes every live document matching q across every
// segment currently visible to this writer, resolving the query first
// (via a throwaway Searcher over the writer's own readers) and then
// tombstoning each per-segment hit through Engine.DeleteBySegment —
// keeping the query-evaluation layer out of internal/engine.
func (w *Writer) DeleteByQuery(q query.Query) (int, error) {
	s, err := query.NewSearcher(w.eng.Readers(), w.opts)
	if err != nil {
		return 0, err
	}
	hits, err := s.Count(q)
	if err != nil {
		return 0, err
	}
	if hits == 0 {
		return 0, nil
	}

	bySegment := make(map[int][]uint32)
	matched, err := s.Search(q, hits)
	if err != nil {
		return 0, err
	}
	for _, m := range matched {
		bySegment[m.SegmentIndex] = append(bySegment[m.SegmentIndex], m.DocID)
	}

	var total int
	for segIdx, docIDs := range bySegment {
		n, err := w.eng.DeleteBySegment(segIdx, docIDs)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Commit publishes buffered documents and the current segment set as a
// new, durable commit generation — the only mutating operation that is
// atomic.
func (w *Writer) Commit() error { return w.eng.Commit() }

// ForceMerge reduces the live segment count to at most maxSegments.
func (w *Writer) ForceMerge(maxSegments int) error { return w.eng.ForceMerge(maxSegments) }

// Close releases every resource the writer's engine holds.
func (w *Writer) Close() error { return w.eng.Close() }

// Reader is an immutable snapshot of one commit, safe for concurrent
// use by any number of caller goroutines — each accessor opens fresh, non-thread-safe
// per-segment state internally rather than sharing it across calls.
type Reader struct {
	eng  *engine.Engine
	opts *options.Options
}

// OpenReader opens a read-only view of the commit currently durable
// under opts.DataDir.
func OpenReader(ctx context.Context, service string, opts ...options.OptionFunc) (*Reader, error) {
	log := logger.New(service)
	resolved := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&resolved)
	}
	eng, err := engine.New(ctx, &engine.Config{Logger: log, Options: &resolved})
	if err != nil {
		return nil, err
	}
	return &Reader{eng: eng, opts: &resolved}, nil
}

// MaxDoc sums the segment-local document-id upper bound across every
// live segment.
func (r *Reader) MaxDoc() uint32 {
	var n uint32
	for _, s := range r.eng.Readers() {
		n += s.MaxDoc()
	}
	return n
}

// NumDocs sums live (non-deleted) document counts across every segment.
func (r *Reader) NumDocs() uint32 {
	var n uint32
	for _, s := range r.eng.Readers() {
		n += s.NumDocs()
	}
	return n
}

// Segments exposes the underlying per-segment readers for callers that
// need to address a document by (segment, docId), e.g. after a Search.
func (r *Reader) Segments() []*segment.Reader { return r.eng.Readers() }

// Searcher returns a Searcher bound to this reader's current commit
// snapshot.
func (r *Reader) Searcher() (*query.Searcher, error) {
	return query.NewSearcher(r.eng.Readers(), r.opts)
}

// Close releases every resource this reader's engine holds.
func (r *Reader) Close() error { return r.eng.Close() }

// encodeInt64Point packs v the same order-preserving way
// internal/codec/bkd.EncodeInt64 does, duplicated here to avoid a
// public-package dependency on an internal codec type for one helper.
func encodeInt64Point(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v) ^ (uint64(1) << 63)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b
}

// NewBooleanQuery, NewTermQuery, NewPrefixQuery, and NewNumericRangeQuery
// re-export internal/query's constructors so callers never need to
// import an internal package to build a query.
var (
	NewTermQuery         = query.NewTermQuery
	NewPrefixQuery        = query.NewPrefixQuery
	NewNumericRangeQuery = query.NewNumericRangeQuery
	NewBooleanQuery       = query.NewBooleanQuery
	NewMatchAllQuery      = query.NewMatchAllQuery
)

// Clause and Occur re-export internal/query's BooleanQuery vocabulary.
type Clause = query.Clause
type Occur = query.Occur

const (
	Must    = query.Must
	Should  = query.Should
	Filter  = query.Filter
	MustNot = query.MustNot
)

// ScoredDoc re-exports a search hit's shape.
type ScoredDoc = query.ScoredDoc
