// Package docvalues implements the columnar per-document value store:
// five logical shapes (numeric, sorted-bytes, sorted-numeric,
// sorted-set, binary) serialized into a (.dvd data, .dvm meta) file
// pair.
package docvalues

import (
	"encoding/binary"
	"sort"

	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// Type identifies which of the five logical shapes a field uses.
type Type int

const (
	Numeric Type = iota
	SortedBytes
	SortedNumeric
	SortedSet
	Binary
)

// FieldMeta is the .dvm entry for one field: where its data lives in the
// .dvd file and how to interpret it.
type FieldMeta struct {
	FieldNumber int
	Type        Type
	DataOffset  int64
	DataLength  int64
	NumValues   int // distinct values, for Sorted/SortedSet TermsDict sizing
}

// NumericWriter writes per-doc int64 values as vInts relative to the
// field's minimum (not block-packed), with a vInt-delta list of doc ids
// (not a bitmap) recording which docs have a value when some do not.
type NumericWriter struct {
	out     *filesys.Output
	docIDs  []uint32
	values  []int64
	maxDoc  uint32
}

// NewNumericWriter begins a numeric doc-values field with maxDoc known
// documents (sparse fields may skip some).
func NewNumericWriter(out *filesys.Output, maxDoc uint32) *NumericWriter {
	return &NumericWriter{out: out, maxDoc: maxDoc}
}

// Add records docID's value. Calls must arrive in ascending docID order.
func (w *NumericWriter) Add(docID uint32, value int64) {
	w.docIDs = append(w.docIDs, docID)
	w.values = append(w.values, value)
}

// Finish writes the sparse doc-id list (when not every doc has a value),
// the zigzag-encoded minimum and each value minus that minimum, returning
// the field's metadata.
func (w *NumericWriter) Finish(fieldNumber int) (FieldMeta, error) {
	start := w.out.Size()
	sparse := len(w.docIDs) < int(w.maxDoc)

	if err := forutil.WriteVInt(w.out, boolVInt(sparse)); err != nil {
		return FieldMeta{}, err
	}
	if sparse {
		if err := forutil.WriteVInt(w.out, uint64(len(w.docIDs))); err != nil {
			return FieldMeta{}, err
		}
		var last uint32
		for i, d := range w.docIDs {
			delta := d
			if i > 0 {
				delta = d - last
			}
			last = d
			if err := forutil.WriteVInt(w.out, uint64(delta)); err != nil {
				return FieldMeta{}, err
			}
		}
	}

	var min int64
	if len(w.values) > 0 {
		min = w.values[0]
		for _, v := range w.values[1:] {
			if v < min {
				min = v
			}
		}
	}
	if err := forutil.WriteVInt(w.out, zigzag(min)); err != nil {
		return FieldMeta{}, err
	}
	for _, v := range w.values {
		if err := forutil.WriteVInt(w.out, uint64(v-min)); err != nil {
			return FieldMeta{}, err
		}
	}

	return FieldMeta{
		FieldNumber: fieldNumber,
		Type:        Numeric,
		DataOffset:  start,
		DataLength:  w.out.Size() - start,
		NumValues:   len(w.values),
	}, nil
}

func boolVInt(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func zigzag(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func unzigzag(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }

// SortedWriter writes a TermsDict (byte-sorted unique values in blocks
// of 16) plus a TermsIndex (every 1024th value in full, not a shortened
// prefix, with its block's offset) and per-doc ordinals. SortedSet reuses
// the same dictionary with a per-doc ordinal list instead of a single
// ordinal.
type SortedWriter struct {
	out      *filesys.Output
	dict     map[string]struct{}
	perDoc   [][]string // one or more values per doc, sorted before write
	multi    bool
}

// NewSortedWriter begins a SortedBytes (multi=false) or SortedSet
// (multi=true) field.
func NewSortedWriter(out *filesys.Output, multi bool) *SortedWriter {
	return &SortedWriter{out: out, dict: make(map[string]struct{}), multi: multi}
}

// Add records docID's value(s). For SortedBytes exactly one value is
// expected; SortedSet may receive zero or more.
func (w *SortedWriter) Add(values ...string) {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	w.perDoc = append(w.perDoc, sorted)
	for _, v := range sorted {
		w.dict[v] = struct{}{}
	}
}

const termsDictBlockSize = 16
const termsIndexInterval = 1024

// Finish builds the sorted unique-value dictionary, the TermsIndex jump
// table, and per-doc ordinals.
func (w *SortedWriter) Finish(fieldNumber int) (FieldMeta, error) {
	start := w.out.Size()

	uniq := make([]string, 0, len(w.dict))
	for v := range w.dict {
		uniq = append(uniq, v)
	}
	sort.Strings(uniq)

	ordOf := make(map[string]int, len(uniq))
	for i, v := range uniq {
		ordOf[v] = i
	}

	// TermsDict: length-prefixed values, grouped for forward-index
	// offsets every termsDictBlockSize entries.
	var blockOffsets []int64
	if err := forutil.WriteVInt(w.out, uint64(len(uniq))); err != nil {
		return FieldMeta{}, err
	}
	for i, v := range uniq {
		if i%termsDictBlockSize == 0 {
			blockOffsets = append(blockOffsets, w.out.Size())
		}
		if err := forutil.WriteVInt(w.out, uint64(len(v))); err != nil {
			return FieldMeta{}, err
		}
		if _, err := w.out.Write([]byte(v)); err != nil {
			return FieldMeta{}, err
		}
	}

	// TermsIndex: every termsIndexInterval-th value's full bytes (a
	// simplification of "prefix plus one distinguishing byte" — exact
	// minimal-prefix computation is deferred, see DESIGN.md) paired with
	// its block offset, for binary-searchable jumps.
	var indexed []string
	var indexedBlock []int64
	for i := 0; i < len(uniq); i += termsIndexInterval {
		indexed = append(indexed, uniq[i])
		indexedBlock = append(indexedBlock, blockOffsets[i/termsDictBlockSize])
	}
	if err := forutil.WriteVInt(w.out, uint64(len(indexed))); err != nil {
		return FieldMeta{}, err
	}
	for i, v := range indexed {
		if err := forutil.WriteVInt(w.out, uint64(len(v))); err != nil {
			return FieldMeta{}, err
		}
		if _, err := w.out.Write([]byte(v)); err != nil {
			return FieldMeta{}, err
		}
		if err := forutil.WriteVInt(w.out, uint64(indexedBlock[i])); err != nil {
			return FieldMeta{}, err
		}
	}

	// Per-doc ordinals.
	if w.multi {
		if err := forutil.WriteVInt(w.out, uint64(len(w.perDoc))); err != nil {
			return FieldMeta{}, err
		}
		for _, vals := range w.perDoc {
			if err := forutil.WriteVInt(w.out, uint64(len(vals))); err != nil {
				return FieldMeta{}, err
			}
			for _, v := range vals {
				if err := forutil.WriteVInt(w.out, uint64(ordOf[v])); err != nil {
					return FieldMeta{}, err
				}
			}
		}
	} else {
		for _, vals := range w.perDoc {
			ord := -1
			if len(vals) > 0 {
				ord = ordOf[vals[0]]
			}
			if err := forutil.WriteVInt(w.out, uint64(ord+1)); err != nil {
				return FieldMeta{}, err
			}
		}
	}

	typ := SortedBytes
	if w.multi {
		typ = SortedSet
	}
	return FieldMeta{
		FieldNumber: fieldNumber,
		Type:        typ,
		DataOffset:  start,
		DataLength:  w.out.Size() - start,
		NumValues:   len(uniq),
	}, nil
}

// BinaryWriter writes raw, uncompressed per-doc byte blobs addressed by a
// monotonic offset table.
type BinaryWriter struct {
	out        *filesys.Output
	fieldStart int64
	offsets    []int64 // relative to fieldStart
}

// NewBinaryWriter begins a Binary doc-values field.
func NewBinaryWriter(out *filesys.Output) *BinaryWriter {
	return &BinaryWriter{out: out, fieldStart: out.Size()}
}

// Add appends docID's raw value. Calls must arrive in ascending docID
// order with no gaps (sparse binary fields store a zero-length value).
func (w *BinaryWriter) Add(value []byte) error {
	w.offsets = append(w.offsets, w.out.Size()-w.fieldStart)
	if err := forutil.WriteVInt(w.out, uint64(len(value))); err != nil {
		return err
	}
	_, err := w.out.Write(value)
	return err
}

// Finish appends the offset table as fixed-width (not vint-packed —
// a lookup table of arbitrary offsets doesn't share ForUtil's
// uniform-magnitude assumption) int64 entries plus a 4-byte trailing
// count, and returns the field's metadata.
func (w *BinaryWriter) Finish(fieldNumber int) (FieldMeta, error) {
	for _, off := range w.offsets {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(off))
		if _, err := w.out.Write(b[:]); err != nil {
			return FieldMeta{}, err
		}
	}
	var cnt [4]byte
	binary.BigEndian.PutUint32(cnt[:], uint32(len(w.offsets)))
	if _, err := w.out.Write(cnt[:]); err != nil {
		return FieldMeta{}, err
	}
	return FieldMeta{
		FieldNumber: fieldNumber,
		Type:        Binary,
		DataOffset:  w.fieldStart,
		DataLength:  w.out.Size() - w.fieldStart,
		NumValues:   len(w.offsets),
	}, nil
}
