// Package storedfields implements the chunked, LZ4-compressed row store
// for field values retrievable by docId, plus the parallel block-coded
// docId→chunk index that makes retrieval O(log n) seeks plus one
// decompress.
package storedfields

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/lz4"

	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// DefaultChunkSize and DefaultMaxDocsPerChunk are the default thresholds:
// compress once a chunk crosses either one.
const (
	DefaultChunkSize       = 16 * 1024
	DefaultMaxDocsPerChunk = 128
)

// FieldKind is the low-3-bit type tag of a field-code varint.
type FieldKind byte

const (
	KindString FieldKind = iota
	KindBytes
	KindInt
	KindLong
	KindFloat
	KindDouble
)

// FieldValue is one stored field on one document.
type FieldValue struct {
	FieldNumber int
	Kind        FieldKind
	Str         string
	Bytes       []byte
	IntVal      int32
	LongVal     int64
	FloatVal    float32
	DoubleVal   float64
}

// Document is the ordered set of stored fields on one document.
type Document []FieldValue

// Writer accumulates documents into chunks, flushing an LZ4-compressed
// chunk to dataOut whenever a threshold is crossed, and records each
// chunk's (docBase, fileOffset) into the index writer.
type Writer struct {
	dataOut  *filesys.Output
	indexOut *filesys.Output

	chunkSize       int
	maxDocsPerChunk int

	docBase int
	pending []Document
	rawSize int

	chunkBases   []int
	chunkOffsets []int64
}

// NewWriter begins a stored-fields file pair with the default chunking
// thresholds.
func NewWriter(dataOut, indexOut *filesys.Output) *Writer {
	return &Writer{
		dataOut:         dataOut,
		indexOut:        indexOut,
		chunkSize:       DefaultChunkSize,
		maxDocsPerChunk: DefaultMaxDocsPerChunk,
	}
}

// AddDocument buffers one document's stored fields, flushing the current
// chunk first if it has grown past either threshold.
func (w *Writer) AddDocument(doc Document) error {
	size := estimateSize(doc)
	if len(w.pending) > 0 && (w.rawSize+size >= w.chunkSize || len(w.pending) >= w.maxDocsPerChunk) {
		if err := w.flushChunk(); err != nil {
			return err
		}
	}
	w.pending = append(w.pending, doc)
	w.rawSize += size
	return nil
}

func estimateSize(doc Document) int {
	n := 0
	for _, f := range doc {
		switch f.Kind {
		case KindString:
			n += len(f.Str) + 8
		case KindBytes:
			n += len(f.Bytes) + 8
		default:
			n += 12
		}
	}
	return n
}

// flushChunk serializes w.pending to a raw buffer, LZ4-compresses it
// when the serialized buffer reaches chunkSize or the chunk holds
// maxDocsPerChunk documents, and appends it to dataOut. Other chunks are
// stored uncompressed: a small final chunk at Finish, and also a chunk
// AddDocument flushes because the next document's estimated size would
// cross chunkSize while the serialized chunk itself stays below it.
func (w *Writer) flushChunk() error {
	if len(w.pending) == 0 {
		return nil
	}
	var raw bytes.Buffer
	if err := writeChunkHeader(&raw, w.docBase, w.pending); err != nil {
		return err
	}
	for _, doc := range w.pending {
		if err := writeDocument(&raw, doc); err != nil {
			return err
		}
	}

	offset := w.dataOut.Size()
	w.chunkBases = append(w.chunkBases, w.docBase)
	w.chunkOffsets = append(w.chunkOffsets, offset)

	compressed := raw.Len() >= w.chunkSize || len(w.pending) >= w.maxDocsPerChunk
	if err := forutil.WriteVInt(w.dataOut, boolVInt(compressed)); err != nil {
		return err
	}
	if err := forutil.WriteVInt(w.dataOut, uint64(raw.Len())); err != nil {
		return err
	}

	if compressed {
		var zbuf bytes.Buffer
		zw := lz4.NewWriter(&zbuf)
		if _, err := zw.Write(raw.Bytes()); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to lz4-compress stored-fields chunk")
		}
		if err := zw.Close(); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to close lz4 writer")
		}
		if err := forutil.WriteVInt(w.dataOut, uint64(zbuf.Len())); err != nil {
			return err
		}
		if _, err := w.dataOut.Write(zbuf.Bytes()); err != nil {
			return err
		}
	} else {
		if _, err := w.dataOut.Write(raw.Bytes()); err != nil {
			return err
		}
	}

	w.docBase += len(w.pending)
	w.pending = w.pending[:0]
	w.rawSize = 0
	return nil
}

func boolVInt(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// writeChunkHeader records docBase, doc count, and per-doc field counts.
func writeChunkHeader(w io.Writer, docBase int, docs []Document) error {
	if err := forutil.WriteVInt(w, uint64(docBase)); err != nil {
		return err
	}
	if err := forutil.WriteVInt(w, uint64(len(docs))); err != nil {
		return err
	}
	for _, d := range docs {
		if err := forutil.WriteVInt(w, uint64(len(d))); err != nil {
			return err
		}
	}
	return nil
}

func writeDocument(w io.Writer, doc Document) error {
	for _, f := range doc {
		code := uint64(f.FieldNumber)<<3 | uint64(f.Kind)
		if err := forutil.WriteVInt(w, code); err != nil {
			return err
		}
		switch f.Kind {
		case KindString:
			if err := forutil.WriteVInt(w, uint64(len(f.Str))); err != nil {
				return err
			}
			if _, err := w.Write([]byte(f.Str)); err != nil {
				return err
			}
		case KindBytes:
			if err := forutil.WriteVInt(w, uint64(len(f.Bytes))); err != nil {
				return err
			}
			if _, err := w.Write(f.Bytes); err != nil {
				return err
			}
		case KindInt:
			if err := forutil.WriteVInt(w, zigzag32(f.IntVal)); err != nil {
				return err
			}
		case KindLong:
			if err := forutil.WriteVInt(w, zigzag64(f.LongVal)); err != nil {
				return err
			}
		case KindFloat:
			if err := forutil.WriteVInt(w, uint64(f.FloatVal)); err != nil {
				return err
			}
		case KindDouble:
			if err := forutil.WriteVInt(w, uint64(f.DoubleVal)); err != nil {
				return err
			}
		}
	}
	return nil
}

func zigzag32(v int32) uint64 {
	return uint64(uint32((v << 1) ^ (v >> 31)))
}

func zigzag64(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// Finish flushes any partially-filled final chunk and writes the
// docId→chunk index.
func (w *Writer) Finish() error {
	if err := w.flushChunk(); err != nil {
		return err
	}
	for i, base := range w.chunkBases {
		if err := forutil.WriteVInt(w.indexOut, uint64(base)); err != nil {
			return err
		}
		if err := forutil.WriteVInt(w.indexOut, uint64(w.chunkOffsets[i])); err != nil {
			return err
		}
	}
	return forutil.WriteVInt(w.indexOut, uint64(len(w.chunkBases)))
}
