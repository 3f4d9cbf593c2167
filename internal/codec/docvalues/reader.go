package docvalues

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) Read(p []byte) (int, error) {
	n := copy(p, r.data[r.pos:])
	r.pos += n
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func loadWindow(in *filesys.Input, meta FieldMeta) (*byteReader, error) {
	buf := make([]byte, meta.DataLength)
	if _, err := in.ReadAt(buf, meta.DataOffset); err != nil {
		return nil, err
	}
	return &byteReader{data: buf}, nil
}

// NumericReader provides per-doc lookups over a Numeric field.
type NumericReader struct {
	sparse bool
	docSet map[uint32]int // docID -> index into values, only when sparse
	values []int64
	maxDoc uint32
}

// OpenNumericReader decodes a Numeric field's data window fully into
// memory (typical for the random-access pattern range queries need).
func OpenNumericReader(in *filesys.Input, meta FieldMeta, maxDoc uint32) (*NumericReader, error) {
	r, err := loadWindow(in, meta)
	if err != nil {
		return nil, err
	}

	sparseFlag, err := forutil.ReadVInt(r)
	if err != nil {
		return nil, err
	}
	sparse := sparseFlag == 1

	var docSet map[uint32]int
	var count int
	if sparse {
		n, err := forutil.ReadVInt(r)
		if err != nil {
			return nil, err
		}
		count = int(n)
		docSet = make(map[uint32]int, count)
		var last uint32
		for i := 0; i < count; i++ {
			d, err := forutil.ReadVInt(r)
			if err != nil {
				return nil, err
			}
			doc := uint32(d)
			if i > 0 {
				doc += last
			}
			last = doc
			docSet[doc] = i
		}
	} else {
		count = int(maxDoc)
	}

	minV, err := forutil.ReadVInt(r)
	if err != nil {
		return nil, err
	}
	min := unzigzag(minV)

	values := make([]int64, count)
	for i := 0; i < count; i++ {
		d, err := forutil.ReadVInt(r)
		if err != nil {
			return nil, err
		}
		values[i] = min + int64(d)
	}

	return &NumericReader{sparse: sparse, docSet: docSet, values: values, maxDoc: maxDoc}, nil
}

// Get returns docID's value and whether it has one.
func (r *NumericReader) Get(docID uint32) (int64, bool) {
	if !r.sparse {
		if docID >= r.maxDoc {
			return 0, false
		}
		return r.values[docID], true
	}
	idx, ok := r.docSet[docID]
	if !ok {
		return 0, false
	}
	return r.values[idx], true
}

// BinaryReader provides per-doc lookups over a Binary field.
type BinaryReader struct {
	data    []byte
	offsets []int64
}

// OpenBinaryReader copies a Binary field's data window into memory and
// decodes its offset table; values are then served from that copy.
func OpenBinaryReader(in *filesys.Input, meta FieldMeta) (*BinaryReader, error) {
	data := make([]byte, meta.DataLength)
	if _, err := in.ReadAt(data, meta.DataOffset); err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return &BinaryReader{data: data}, nil
	}

	count := int(binary.BigEndian.Uint32(data[len(data)-4:]))
	tableStart := len(data) - 4 - count*8
	offsets := make([]int64, count)
	for i := 0; i < count; i++ {
		offsets[i] = int64(binary.BigEndian.Uint64(data[tableStart+i*8 : tableStart+i*8+8]))
	}
	return &BinaryReader{data: data, offsets: offsets}, nil
}

// Get returns the raw bytes stored for docID's local index within this
// field's value stream.
func (r *BinaryReader) Get(docID uint32) ([]byte, error) {
	if int(docID) >= len(r.offsets) {
		return nil, nil
	}
	off := int(r.offsets[docID])
	br := &byteReader{data: r.data, pos: off}
	l, err := forutil.ReadVInt(br)
	if err != nil {
		return nil, err
	}
	val := make([]byte, l)
	copy(val, r.data[br.pos:br.pos+int(l)])
	return val, nil
}

// SortedReader provides ordinal-based lookups over a SortedBytes or
// SortedSet field: LookupOrd resolves an ordinal to its bytes, and
// OrdsAt returns the ordinal(s) assigned to a document.
type SortedReader struct {
	multi bool
	uniq  []string
	perDoc [][]int
	single []int
}

// OpenSortedReader decodes a Sorted/SortedSet field fully into memory.
func OpenSortedReader(in *filesys.Input, meta FieldMeta, multi bool) (*SortedReader, error) {
	r, err := loadWindow(in, meta)
	if err != nil {
		return nil, err
	}

	n, err := forutil.ReadVInt(r)
	if err != nil {
		return nil, err
	}
	uniq := make([]string, n)
	for i := range uniq {
		l, err := forutil.ReadVInt(r)
		if err != nil {
			return nil, err
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		uniq[i] = string(b)
	}

	nIdx, err := forutil.ReadVInt(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nIdx; i++ {
		l, err := forutil.ReadVInt(r)
		if err != nil {
			return nil, err
		}
		if _, err := io.CopyN(io.Discard, r, int64(l)); err != nil {
			return nil, err
		}
		if _, err := forutil.ReadVInt(r); err != nil { // block offset, unused in-memory
			return nil, err
		}
	}

	sr := &SortedReader{multi: multi, uniq: uniq}
	if multi {
		docCount, err := forutil.ReadVInt(r)
		if err != nil {
			return nil, err
		}
		sr.perDoc = make([][]int, docCount)
		for d := uint64(0); d < docCount; d++ {
			cnt, err := forutil.ReadVInt(r)
			if err != nil {
				return nil, err
			}
			ords := make([]int, cnt)
			for i := range ords {
				o, err := forutil.ReadVInt(r)
				if err != nil {
					return nil, err
				}
				ords[i] = int(o)
			}
			sr.perDoc[d] = ords
		}
	} else {
		for r.pos < len(r.data) {
			o, err := forutil.ReadVInt(r)
			if err != nil {
				return nil, err
			}
			sr.single = append(sr.single, int(o)-1)
		}
	}
	return sr, nil
}

// LookupOrd returns the bytes for ordinal ord.
func (r *SortedReader) LookupOrd(ord int) string {
	if ord < 0 || ord >= len(r.uniq) {
		return ""
	}
	return r.uniq[ord]
}

// LookupTerm returns the ordinal for value, or ok=false if absent
// (binary search over the sorted unique-value table).
func (r *SortedReader) LookupTerm(value string) (int, bool) {
	i := sort.SearchStrings(r.uniq, value)
	if i < len(r.uniq) && r.uniq[i] == value {
		return i, true
	}
	return 0, false
}

// OrdAt returns the single ordinal for docID in a SortedBytes field, or
// -1 if absent.
func (r *SortedReader) OrdAt(docID uint32) int {
	if r.multi || int(docID) >= len(r.single) {
		return -1
	}
	return r.single[docID]
}

// OrdsAt returns every ordinal for docID in a SortedSet field.
func (r *SortedReader) OrdsAt(docID uint32) []int {
	if !r.multi || int(docID) >= len(r.perDoc) {
		return nil
	}
	return r.perDoc[docID]
}
