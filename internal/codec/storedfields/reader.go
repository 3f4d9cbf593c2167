package storedfields

import (
	"bytes"
	"io"
	"sort"

	"github.com/klauspost/compress/lz4"

	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// chunkRef is one entry of the docId→chunk index.
type chunkRef struct {
	docBase int
	offset  int64
}

// Reader retrieves documents by docId: one binary search over the chunk
// index, then at most one decompress per Document call.
type Reader struct {
	dataIn *filesys.Input
	chunks []chunkRef
}

// OpenReader loads the (small) chunk index fully into memory; the bulk
// data file stays memory-mapped and is only touched per-lookup.
func OpenReader(dataIn, indexIn *filesys.Input) (*Reader, error) {
	buf := make([]byte, indexIn.Len())
	if _, err := indexIn.ReadAt(buf, 0); err != nil {
		return nil, err
	}

	refs, err := parseChunkIndex(buf)
	if err != nil {
		return nil, err
	}
	return &Reader{dataIn: dataIn, chunks: refs}, nil
}

// parseChunkIndex reads (docBase, offset) pairs followed by a trailing
// count (written by Writer.Finish), using the count to know how many
// pairs preceded it.
func parseChunkIndex(buf []byte) ([]chunkRef, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	// vints are variable-width, so the trailing count can't be seeked to
	// from the end; decode every vint up front and split on the known
	// pairs-then-count layout Writer.Finish wrote.
	var all []uint64
	r := &byteReader{data: buf}
	for r.pos < len(buf) {
		v, err := forutil.ReadVInt(r)
		if err != nil {
			return nil, errors.NewCorruptIndexError(err, "", "", "failed to decode stored-fields chunk index")
		}
		all = append(all, v)
	}
	if len(all) == 0 {
		return nil, nil
	}
	count := int(all[len(all)-1])
	pairs := all[:len(all)-1]
	if len(pairs) != count*2 {
		return nil, errors.NewCorruptIndexError(nil, "", "", "stored-fields chunk index length mismatch")
	}
	refs := make([]chunkRef, count)
	for i := 0; i < count; i++ {
		refs[i] = chunkRef{docBase: int(pairs[2*i]), offset: int64(pairs[2*i+1])}
	}
	return refs, nil
}

// Document retrieves the stored fields of docID.
func (r *Reader) Document(docID uint32) (Document, error) {
	if len(r.chunks) == 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexKeyNotFound, "document not found").
			WithDetail("docId", docID)
	}
	idx := sort.Search(len(r.chunks), func(i int) bool { return r.chunks[i].docBase > int(docID) }) - 1
	if idx < 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexKeyNotFound, "document not found").
			WithDetail("docId", docID)
	}

	chunk := r.chunks[idx]
	docs, err := r.decodeChunk(chunk)
	if err != nil {
		return nil, err
	}
	localIdx := int(docID) - chunk.docBase
	if localIdx < 0 || localIdx >= len(docs) {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexKeyNotFound, "document not found").
			WithDetail("docId", docID)
	}
	return docs[localIdx], nil
}

func (r *Reader) decodeChunk(chunk chunkRef) ([]Document, error) {
	off := chunk.offset
	compressedV, n, err := readVIntAt(r.dataIn, off)
	if err != nil {
		return nil, err
	}
	off += int64(n)
	rawLenV, n, err := readVIntAt(r.dataIn, off)
	if err != nil {
		return nil, err
	}
	off += int64(n)
	rawLen := int(rawLenV)

	var raw []byte
	if compressedV == 1 {
		compLenV, n, err := readVIntAt(r.dataIn, off)
		if err != nil {
			return nil, err
		}
		off += int64(n)
		compLen := int(compLenV)

		comp := make([]byte, compLen)
		if _, err := r.dataIn.ReadAt(comp, off); err != nil {
			return nil, err
		}
		zr := lz4.NewReader(bytes.NewReader(comp))
		raw = make([]byte, rawLen)
		if _, err := io.ReadFull(zr, raw); err != nil {
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to lz4-decompress stored-fields chunk")
		}
	} else {
		raw = make([]byte, rawLen)
		if _, err := r.dataIn.ReadAt(raw, off); err != nil {
			return nil, err
		}
	}

	return decodeChunkBody(raw)
}

func decodeChunkBody(raw []byte) ([]Document, error) {
	r := &byteReader{data: raw}
	if _, err := forutil.ReadVInt(r); err != nil { // docBase, unused here
		return nil, err
	}
	docCountV, err := forutil.ReadVInt(r)
	if err != nil {
		return nil, err
	}
	docCount := int(docCountV)

	fieldCounts := make([]int, docCount)
	for i := range fieldCounts {
		fc, err := forutil.ReadVInt(r)
		if err != nil {
			return nil, err
		}
		fieldCounts[i] = int(fc)
	}

	docs := make([]Document, docCount)
	for i := 0; i < docCount; i++ {
		doc := make(Document, fieldCounts[i])
		for j := 0; j < fieldCounts[i]; j++ {
			fv, err := readFieldValue(r)
			if err != nil {
				return nil, err
			}
			doc[j] = fv
		}
		docs[i] = doc
	}
	return docs, nil
}

func readFieldValue(r *byteReader) (FieldValue, error) {
	code, err := forutil.ReadVInt(r)
	if err != nil {
		return FieldValue{}, err
	}
	kind := FieldKind(code & 0x7)
	fieldNum := int(code >> 3)
	fv := FieldValue{FieldNumber: fieldNum, Kind: kind}

	switch kind {
	case KindString:
		l, err := forutil.ReadVInt(r)
		if err != nil {
			return fv, err
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return fv, err
		}
		fv.Str = string(b)
	case KindBytes:
		l, err := forutil.ReadVInt(r)
		if err != nil {
			return fv, err
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return fv, err
		}
		fv.Bytes = b
	case KindInt:
		v, err := forutil.ReadVInt(r)
		if err != nil {
			return fv, err
		}
		fv.IntVal = unzigzag32(v)
	case KindLong:
		v, err := forutil.ReadVInt(r)
		if err != nil {
			return fv, err
		}
		fv.LongVal = unzigzag64(v)
	case KindFloat:
		v, err := forutil.ReadVInt(r)
		if err != nil {
			return fv, err
		}
		fv.FloatVal = float32(v)
	case KindDouble:
		v, err := forutil.ReadVInt(r)
		if err != nil {
			return fv, err
		}
		fv.DoubleVal = float64(v)
	}
	return fv, nil
}

func unzigzag32(v uint64) int32 {
	u := uint32(v)
	return int32(u>>1) ^ -int32(u&1)
}

func unzigzag64(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

func readVIntAt(in *filesys.Input, off int64) (uint64, int, error) {
	end := off + 10
	if end > in.Len() {
		end = in.Len()
	}
	buf := make([]byte, end-off)
	if _, err := in.ReadAt(buf, off); err != nil {
		return 0, 0, err
	}
	r := &byteReader{data: buf}
	v, err := forutil.ReadVInt(r)
	if err != nil {
		return 0, 0, err
	}
	return v, r.pos, nil
}

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
