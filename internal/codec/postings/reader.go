package postings

import (
	"io"

	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// byteSliceReader adapts an in-memory byte slice to forutil.ByteReader so
// ReadVInt can be used against bytes already paged in from an Input.
type byteSliceReader struct {
	data []byte
	pos  int
}

func (r *byteSliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	n := copy(p, r.data[r.pos:])
	r.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// PostingsEnum iterates one term's (docId, freq, positions) in ascending
// docId order, implementing the DocIdSetIterator contract:
// docId/nextDoc/advance/NO_MORE_DOCS.
type PostingsEnum struct {
	docIn *filesys.Input
	posIn *filesys.Input

	meta TermMetadata

	docOff int64
	remaining int

	blockDocs  [forutil.BlockSize]uint32
	blockFreqs [forutil.BlockSize]uint32
	blockIdx   int
	blockLen   int

	doc  uint32
	freq int

	withPositions bool

	posOff       int64
	posRemaining int64

	posBlockBuf [forutil.BlockSize]uint32
	posBlockIdx int
	posBlockLen int

	posInDoc int // positions yielded for the current doc, reset by StartPositions
	curPos   int // running delta-sum for the current doc's positions
}

// NoMoreDocs is the sentinel returned by NextDoc/Advance/DocID once the
// enum is exhausted.
const NoMoreDocs = ^uint32(0)

// OpenPostingsEnum creates an iterator over one term's postings, starting
// at the term's DocStartFP.
func OpenPostingsEnum(docIn, posIn *filesys.Input, meta TermMetadata, withPositions bool) *PostingsEnum {
	return &PostingsEnum{
		docIn:         docIn,
		posIn:         posIn,
		meta:          meta,
		docOff:        meta.DocStartFP,
		remaining:     meta.DocFreq,
		doc:           0,
		withPositions: withPositions,
		posOff:        meta.PosStartFP,
		posRemaining:  meta.TotalTermFreq,
	}
}

// DocID returns the current document: 0 before the first NextDoc call,
// NoMoreDocs after exhaustion.
func (e *PostingsEnum) DocID() uint32 { return e.doc }

// Freq returns the term frequency within the current document.
func (e *PostingsEnum) Freq() int { return e.freq }

// NextDoc advances to the next document in this term's postings list.
func (e *PostingsEnum) NextDoc() (uint32, error) {
	if e.meta.HasSingleton {
		if e.remaining == 0 {
			e.doc = NoMoreDocs
			return NoMoreDocs, nil
		}
		e.remaining--
		e.doc = e.meta.SingletonDocID
		e.freq = int(e.meta.TotalTermFreq)
		return e.doc, nil
	}

	if e.blockIdx >= e.blockLen {
		if e.remaining <= 0 {
			e.doc = NoMoreDocs
			return NoMoreDocs, nil
		}
		if err := e.fillBlock(); err != nil {
			return 0, err
		}
	}

	delta := e.blockDocs[e.blockIdx]
	e.freq = int(e.blockFreqs[e.blockIdx])
	e.blockIdx++
	e.remaining--
	e.doc += delta
	return e.doc, nil
}

// fillBlock reads either a full 128-wide packed block or, for the final
// partial group, decodes the vInt tail one pair at a time.
func (e *PostingsEnum) fillBlock() error {
	full := e.remaining >= forutil.BlockSize
	if full {
		bitsBuf := make([]byte, 1)
		if _, err := e.docIn.ReadAt(bitsBuf, e.docOff); err != nil {
			return err
		}
		// bits-per-value was vInt-encoded; for values < 128 this is one byte.
		bits := int(bitsBuf[0])
		e.docOff++
		packedLen := int64((forutil.BlockSize*bits + 7) / 8)
		packed := make([]byte, packedLen)
		if _, err := e.docIn.ReadAt(packed, e.docOff); err != nil {
			return err
		}
		e.docOff += packedLen
		e.blockDocs = forutil.UnpackBlock(packed, bits)

		fbitsBuf := make([]byte, 1)
		if _, err := e.docIn.ReadAt(fbitsBuf, e.docOff); err != nil {
			return err
		}
		fbits := int(fbitsBuf[0])
		e.docOff++
		fpackedLen := int64((forutil.BlockSize*fbits + 7) / 8)
		fpacked := make([]byte, fpackedLen)
		if _, err := e.docIn.ReadAt(fpacked, e.docOff); err != nil {
			return err
		}
		e.docOff += fpackedLen
		e.blockFreqs = forutil.UnpackBlock(fpacked, fbits)

		e.blockIdx = 0
		e.blockLen = forutil.BlockSize
		return nil
	}

	// Tail: read `remaining` (delta,freq) vInt pairs directly from the
	// Input via a small local buffer read, since the tail length is small
	// and known (meta.DocFreq % BlockSize).
	n := e.remaining
	tailLen := e.docIn.Len() - e.docOff
	buf := make([]byte, tailLen)
	if _, err := e.docIn.ReadAt(buf, e.docOff); err != nil {
		return err
	}
	r := &byteSliceReader{data: buf}
	for i := 0; i < n; i++ {
		d, err := forutil.ReadVInt(r)
		if err != nil {
			return err
		}
		f, err := forutil.ReadVInt(r)
		if err != nil {
			return err
		}
		e.blockDocs[i] = uint32(d)
		e.blockFreqs[i] = uint32(f)
	}
	e.docOff += int64(r.pos)
	e.blockIdx = 0
	e.blockLen = n
	return nil
}

// Advance moves to the first document >= target (reading the first
// document if the enum has not been started) by calling NextDoc
// repeatedly; the skip data the Writer records is not consulted.
func (e *PostingsEnum) Advance(target uint32) (uint32, error) {
	if e.remaining == e.meta.DocFreq {
		if _, err := e.NextDoc(); err != nil {
			return 0, err
		}
	}
	for e.doc < target {
		d, err := e.NextDoc()
		if err != nil {
			return 0, err
		}
		if d == NoMoreDocs {
			return NoMoreDocs, nil
		}
	}
	return e.doc, nil
}

// StartPositions must be called once per document, after NextDoc and
// before the first NextPosition call for it, when the caller needs this
// document's position list (e.g. phrase matching). It resets the
// per-document delta accumulator; the underlying block cursor is left
// untouched since the packed position stream is not aligned to document
// boundaries.
func (e *PostingsEnum) StartPositions() {
	e.posInDoc = 0
	e.curPos = 0
}

// NextPosition returns the next occurrence of the term within the
// current document. Callers must call it exactly Freq() times per
// document (after StartPositions) and no more.
func (e *PostingsEnum) NextPosition() (int, error) {
	if e.posInDoc >= e.freq {
		return 0, io.EOF
	}
	if e.posBlockIdx >= e.posBlockLen {
		if err := e.fillPosBlock(); err != nil {
			return 0, err
		}
	}
	delta := e.posBlockBuf[e.posBlockIdx]
	e.posBlockIdx++
	e.posRemaining--
	e.posInDoc++
	e.curPos += int(delta)
	return e.curPos, nil
}

// fillPosBlock reads the next chunk of the flat, doc-boundary-agnostic
// position-delta stream: a full 128-wide packed block when at least that
// many positions remain in the whole term, otherwise the vInt-encoded
// tail — mirroring fillBlock's doc/freq decoding.
func (e *PostingsEnum) fillPosBlock() error {
	full := e.posRemaining >= int64(forutil.BlockSize)
	if full {
		bitsBuf := make([]byte, 1)
		if _, err := e.posIn.ReadAt(bitsBuf, e.posOff); err != nil {
			return err
		}
		bits := int(bitsBuf[0])
		e.posOff++
		packedLen := int64((forutil.BlockSize*bits + 7) / 8)
		packed := make([]byte, packedLen)
		if _, err := e.posIn.ReadAt(packed, e.posOff); err != nil {
			return err
		}
		e.posOff += packedLen
		e.posBlockBuf = forutil.UnpackBlock(packed, bits)
		e.posBlockIdx = 0
		e.posBlockLen = forutil.BlockSize
		return nil
	}

	n := int(e.posRemaining)
	tailLen := e.meta.LastPosBlockOffset - e.posOff
	buf := make([]byte, tailLen)
	if _, err := e.posIn.ReadAt(buf, e.posOff); err != nil {
		return err
	}
	r := &byteSliceReader{data: buf}
	for i := 0; i < n; i++ {
		d, err := forutil.ReadVInt(r)
		if err != nil {
			return err
		}
		e.posBlockBuf[i] = uint32(d)
	}
	e.posOff += int64(r.pos)
	e.posBlockIdx = 0
	e.posBlockLen = n
	return nil
}
