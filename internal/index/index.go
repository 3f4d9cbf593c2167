// Package index provides the in-memory per-segment builder: it buffers a
// batch of documents' postings, stored fields, doc-values, and points in
// RAM, then on Flush streams each to the codec writers that produce one
// immutable segment.
package index

import (
	"context"
	stdErrors "errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/lumen/internal/codec/bkd"
	"github.com/iamNilotpal/lumen/internal/codec/docvalues"
	"github.com/iamNilotpal/lumen/internal/codec/fst"
	"github.com/iamNilotpal/lumen/internal/codec/postings"
	"github.com/iamNilotpal/lumen/internal/codec/storedfields"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// ErrBuilderClosed is returned by any call made after Close.
var ErrBuilderClosed = stdErrors.New("operation failed: cannot access closed segment builder")

// postingEntry is one document's contribution to a term's postings
// within the current (unflushed) segment.
type postingEntry struct {
	docID  uint32
	tokens []Token
}

// Builder accumulates one segment's worth of documents in RAM. It is not
// safe for concurrent use — the thread-state pool in internal/engine
// gives each writing goroutine exclusive access to one Builder at a
// time.
type Builder struct {
	mu     sync.Mutex
	closed atomic.Bool

	fieldsByName map[string]*FieldInfo
	fieldOrder   []*FieldInfo

	maxDoc uint32

	// fieldNumber -> sorted-on-flush term -> postings
	postingsByField map[int]map[string][]postingEntry

	storedDocs []storedfields.Document

	numericBufs map[int]*numericBuf
	sortedBufs  map[int][]string // per-doc single value (SortedBytes)
	sortedSetBufs map[int][][]string
	binaryBufs  map[int][][]byte

	pointBufs map[int][]bkd.Point

	// normBufs holds each indexed field's per-doc quantized length norm,
	// used by BM25's dl/avgdl length-normalization term. A field's norm
	// is the number of indexed tokens it received, clamped to a single
	// byte.
	normBufs map[int]*numericBuf

	ramBytesUsed int64
}

type numericBuf struct {
	docIDs []uint32
	values []int64
}

// New creates an empty per-segment Builder.
func New(ctx context.Context, cfg *Config) (*Builder, error) {
	if cfg == nil || cfg.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "segment builder configuration is required",
		).WithField("config").WithRule("required").WithProvided(cfg)
	}
	return &Builder{
		fieldsByName:    make(map[string]*FieldInfo),
		postingsByField: make(map[int]map[string][]postingEntry),
		numericBufs:     make(map[int]*numericBuf),
		sortedBufs:      make(map[int][]string),
		sortedSetBufs:   make(map[int][][]string),
		binaryBufs:      make(map[int][][]byte),
		pointBufs:       make(map[int][]bkd.Point),
		normBufs:        make(map[int]*numericBuf),
	}, nil
}

// quantizeNorm clamps a field's indexed token count to fit one byte, the
// same coarse-but-cheap length encoding Lucene's SmallFloat norms use.
func quantizeNorm(length int) int64 {
	if length > 255 {
		return 255
	}
	return int64(length)
}

// MaxDoc returns the number of documents buffered so far.
func (b *Builder) MaxDoc() uint32 { return b.maxDoc }

// RamBytesUsed estimates the builder's memory footprint, used by the
// thread-state pool to decide when a slot should flush.
func (b *Builder) RamBytesUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ramBytesUsed
}

func (b *Builder) fieldInfo(f Field) *FieldInfo {
	fi, ok := b.fieldsByName[f.Name]
	if ok {
		return fi
	}
	fi = &FieldInfo{
		Number:     len(b.fieldOrder),
		Name:       f.Name,
		Kind:       f.Kind,
		DocValue:   f.DocValueType,
		PointDims:  f.PointDims,
		PointBytes: f.PointBytes,
	}
	b.fieldsByName[f.Name] = fi
	b.fieldOrder = append(b.fieldOrder, fi)
	return fi
}

// AddDocument buffers one document's fields and returns its segment-local
// docId.
func (b *Builder) AddDocument(fields []Field) (uint32, error) {
	if b.closed.Load() {
		return 0, ErrBuilderClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	docID := b.maxDoc
	b.maxDoc++

	var stored storedfields.Document

	for _, f := range fields {
		fi := b.fieldInfo(f)

		if fi.Kind.Has(KindIndexed) {
			terms := b.postingsByField[fi.Number]
			if terms == nil {
				terms = make(map[string][]postingEntry)
				b.postingsByField[fi.Number] = terms
			}
			byTerm := make(map[string][]Token)
			for _, tok := range f.Tokens {
				k := string(tok.Term)
				byTerm[k] = append(byTerm[k], tok)
				b.ramBytesUsed += int64(len(tok.Term) + 24)
			}
			for term, toks := range byTerm {
				terms[term] = append(terms[term], postingEntry{docID: docID, tokens: toks})
			}

			nb := b.normBufs[fi.Number]
			if nb == nil {
				nb = &numericBuf{}
				b.normBufs[fi.Number] = nb
			}
			nb.docIDs = append(nb.docIDs, docID)
			nb.values = append(nb.values, quantizeNorm(len(f.Tokens)))
		}

		if fi.Kind.Has(KindStored) {
			stored = append(stored, fieldValueFrom(fi, f))
		}

		if fi.Kind.Has(KindDocValue) {
			b.addDocValue(fi, f, docID)
		}

		if fi.Kind.Has(KindPoint) {
			b.pointBufs[fi.Number] = append(b.pointBufs[fi.Number], bkd.Point{DocID: docID, Value: f.PointValue})
		}
	}

	for len(b.storedDocs) < int(docID) {
		b.storedDocs = append(b.storedDocs, nil)
	}
	b.storedDocs = append(b.storedDocs, stored)

	return docID, nil
}

func fieldValueFrom(fi *FieldInfo, f Field) storedfields.FieldValue {
	fv := storedfields.FieldValue{FieldNumber: fi.Number}
	switch f.StoredKind {
	case StoredString:
		fv.Kind = storedfields.KindString
		fv.Str = f.StoredString
	case StoredBytes:
		fv.Kind = storedfields.KindBytes
		fv.Bytes = f.StoredBytes
	case StoredInt:
		fv.Kind = storedfields.KindInt
		fv.IntVal = int32(f.StoredInt)
	case StoredLong:
		fv.Kind = storedfields.KindLong
		fv.LongVal = f.StoredInt
	case StoredFloat:
		fv.Kind = storedfields.KindFloat
		fv.FloatVal = float32(f.StoredInt)
	case StoredDouble:
		fv.Kind = storedfields.KindDouble
		fv.DoubleVal = float64(f.StoredInt)
	}
	return fv
}

func (b *Builder) addDocValue(fi *FieldInfo, f Field, docID uint32) {
	switch fi.DocValue {
	case docvalues.Numeric:
		nb := b.numericBufs[fi.Number]
		if nb == nil {
			nb = &numericBuf{}
			b.numericBufs[fi.Number] = nb
		}
		nb.docIDs = append(nb.docIDs, docID)
		nb.values = append(nb.values, f.DocValueNumeric)
	case docvalues.SortedBytes:
		for uint32(len(b.sortedBufs[fi.Number])) < docID {
			b.sortedBufs[fi.Number] = append(b.sortedBufs[fi.Number], "")
		}
		b.sortedBufs[fi.Number] = append(b.sortedBufs[fi.Number], f.DocValueString)
	case docvalues.SortedSet:
		for uint32(len(b.sortedSetBufs[fi.Number])) < docID {
			b.sortedSetBufs[fi.Number] = append(b.sortedSetBufs[fi.Number], nil)
		}
		b.sortedSetBufs[fi.Number] = append(b.sortedSetBufs[fi.Number], f.DocValueStrings)
	case docvalues.Binary:
		for uint32(len(b.binaryBufs[fi.Number])) < docID {
			b.binaryBufs[fi.Number] = append(b.binaryBufs[fi.Number], nil)
		}
		b.binaryBufs[fi.Number] = append(b.binaryBufs[fi.Number], f.DocValueBytes)
	}
}

// SegmentOutputs groups the Directory outputs one Flush call writes to;
// internal/segment owns naming and opens these against its chosen
// segment name.
type SegmentOutputs struct {
	Doc, Pos, Pay, Skip     *filesys.Output
	TermIndex, TermData     *filesys.Output
	StoredData, StoredIndex *filesys.Output
	DocValuesData           *filesys.Output
	PointsData, PointsIndex *filesys.Output
}

// FlushResult is everything internal/segment needs to write the
// segment-info manifest entry for a flushed segment.
type FlushResult struct {
	MaxDoc      uint32
	Fields      []*FieldInfo
	FieldOffsets map[int]FieldFlushInfo
}

// FieldFlushInfo locates one field's data within the segment's shared
// files after flush.
type FieldFlushInfo struct {
	Terms          map[string]postings.TermMetadata // pre-fst fallback / debug use
	DocValue       docvalues.FieldMeta
	Norm           docvalues.FieldMeta // per-doc quantized length, indexed fields only
	AvgFieldLength float64
	PointMin       []byte
	PointMax       []byte
}

// Flush streams every buffered structure to out's codec files in sorted
// term order per field, and returns the flush summary. The caller
// (internal/segment) is responsible for fsyncing out's files and writing
// the segment-info manifest.
func (b *Builder) Flush(out SegmentOutputs) (FlushResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := FlushResult{
		MaxDoc:       b.maxDoc,
		Fields:       b.fieldOrder,
		FieldOffsets: make(map[int]FieldFlushInfo),
	}

	fstBuilder, err := fst.NewBuilder(out.TermData)
	if err != nil {
		return result, err
	}

	for _, fi := range b.fieldOrder {
		ffi := FieldFlushInfo{Terms: make(map[string]postings.TermMetadata)}

		if fi.Kind.Has(KindIndexed) {
			terms := b.postingsByField[fi.Number]
			sortedTerms := make([]string, 0, len(terms))
			for t := range terms {
				sortedTerms = append(sortedTerms, t)
			}
			sort.Strings(sortedTerms)

			for _, term := range sortedTerms {
				entries := terms[term]
				sort.Slice(entries, func(i, j int) bool { return entries[i].docID < entries[j].docID })

				tw := postings.NewTermWriter(out.Doc, out.Pos, out.Pay, out.Skip, true, true)
				for _, e := range entries {
					if err := tw.StartDoc(e.docID, len(e.tokens)); err != nil {
						return result, err
					}
					for _, tok := range e.tokens {
						if err := tw.AddPosition(postings.Position{
							Pos: tok.Position, StartOffset: tok.StartOffset, EndOffset: tok.EndOffset, Payload: tok.Payload,
						}); err != nil {
							return result, err
						}
					}
				}
				meta, err := tw.Finish()
				if err != nil {
					return result, err
				}
				ffi.Terms[term] = meta
				if err := fstBuilder.Add([]byte(term), meta); err != nil {
					return result, err
				}
			}

			if nb := b.normBufs[fi.Number]; nb != nil && len(nb.docIDs) > 0 {
				nw := docvalues.NewNumericWriter(out.DocValuesData, b.maxDoc)
				var sum int64
				for i, d := range nb.docIDs {
					nw.Add(d, nb.values[i])
					sum += nb.values[i]
				}
				meta, err := nw.Finish(fi.Number)
				if err != nil {
					return result, err
				}
				ffi.Norm = meta
				ffi.AvgFieldLength = float64(sum) / float64(len(nb.docIDs))
			}
		}

		if fi.Kind.Has(KindDocValue) {
			meta, err := b.flushDocValue(fi, out.DocValuesData)
			if err != nil {
				return result, err
			}
			ffi.DocValue = meta
		}

		if fi.Kind.Has(KindPoint) {
			points := b.pointBufs[fi.Number]
			if len(points) > 0 {
				bld, err := bkd.NewBuilder(fi.PointDims, fi.PointBytes)
				if err != nil {
					return result, err
				}
				for _, p := range points {
					if err := bld.Add(p.DocID, p.Value); err != nil {
						return result, err
					}
				}
				min, max, err := bld.Finish(out.PointsData, out.PointsIndex)
				if err != nil {
					return result, err
				}
				ffi.PointMin, ffi.PointMax = min, max
			}
		}

		result.FieldOffsets[fi.Number] = ffi
	}

	if out.TermIndex != nil {
		fstBytes, err := fstBuilder.Finish()
		if err != nil {
			return result, err
		}
		if _, err := out.TermIndex.Write(fstBytes); err != nil {
			return result, err
		}
	}

	if out.StoredData != nil && out.StoredIndex != nil {
		sw := storedfields.NewWriter(out.StoredData, out.StoredIndex)
		for _, doc := range b.storedDocs {
			if err := sw.AddDocument(doc); err != nil {
				return result, err
			}
		}
		if err := sw.Finish(); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (b *Builder) flushDocValue(fi *FieldInfo, out *filesys.Output) (docvalues.FieldMeta, error) {
	switch fi.DocValue {
	case docvalues.Numeric:
		nb := b.numericBufs[fi.Number]
		if nb == nil {
			return docvalues.FieldMeta{}, nil
		}
		w := docvalues.NewNumericWriter(out, b.maxDoc)
		for i, d := range nb.docIDs {
			w.Add(d, nb.values[i])
		}
		return w.Finish(fi.Number)
	case docvalues.SortedBytes:
		vals := b.sortedBufs[fi.Number]
		w := docvalues.NewSortedWriter(out, false)
		for _, v := range vals {
			w.Add(v)
		}
		return w.Finish(fi.Number)
	case docvalues.SortedSet:
		vals := b.sortedSetBufs[fi.Number]
		w := docvalues.NewSortedWriter(out, true)
		for _, vs := range vals {
			w.Add(vs...)
		}
		return w.Finish(fi.Number)
	case docvalues.Binary:
		vals := b.binaryBufs[fi.Number]
		w := docvalues.NewBinaryWriter(out)
		for _, v := range vals {
			if err := w.Add(v); err != nil {
				return docvalues.FieldMeta{}, err
			}
		}
		return w.Finish(fi.Number)
	}
	return docvalues.FieldMeta{}, nil
}

// Close marks the builder unusable; its buffers become eligible for GC.
func (b *Builder) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrBuilderClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.postingsByField = nil
	b.storedDocs = nil
	b.numericBufs = nil
	b.sortedBufs = nil
	b.sortedSetBufs = nil
	b.binaryBufs = nil
	b.pointBufs = nil
	return nil
}
