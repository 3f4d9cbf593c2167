// Package postings implements the doc/pos/pay postings codec and its
// skip list: for each term, an ascending sequence
// of (docId, freq, positions, offsets, payloads), block-coded via
// internal/codec/forutil. The Writer records a multi-level skip list;
// PostingsEnum.Advance does not read it and scans forward doc by doc.
package postings

import (
	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// SkipInterval is how many docs level 0 of the skip list covers per entry.
const SkipInterval = forutil.BlockSize

// SkipFanout is the per-level multiplier ("each higher level skips 8x
// more").
const SkipFanout = 8

// TermMetadata is the per-term record handed to the term dictionary.
type TermMetadata struct {
	DocFreq            int
	TotalTermFreq       int64
	DocStartFP         int64
	PosStartFP         int64
	PayStartFP         int64
	SingletonDocID     uint32 // valid only when DocFreq == 1
	HasSingleton       bool
	LastPosBlockOffset int64
	SkipOffset         int64 // offset into the skip file; -1 when DocFreq <= SkipInterval
}

// skipEntry is one level-0 (or higher) record: the last docId covered,
// and cumulative byte/position/payload offsets at that point, letting an
// advance() resume block decoding without replaying everything before it.
type skipEntry struct {
	LastDoc       uint32
	DocFP         int64
	PosFP         int64
	PayFP         int64
	PosCount      int64
	PayByteCount  int64
}

// Position holds one occurrence of a term within a document: its
// position plus optional offset/payload metadata.
type Position struct {
	Pos         int
	StartOffset int
	EndOffset   int
	Payload     []byte
}

// Writer streams one term's postings to the shared doc/pos/pay/skip
// files of a segment. Create one per term via NewTermWriter and discard
// it after Finish.
type Writer struct {
	docOut  *filesys.Output
	posOut  *filesys.Output
	payOut  *filesys.Output
	skipOut *filesys.Output

	withPositions bool
	withPayloads  bool

	docStartFP int64
	posStartFP int64
	payStartFP int64

	lastDoc  uint32
	docCount int
	totalTF  int64

	docDeltaBuf [forutil.BlockSize]uint32
	freqBuf     [forutil.BlockSize]uint32
	blockPos    int

	posDeltaBuf [forutil.BlockSize]uint32
	posBlockPos int
	lastPos     int

	singleton    uint32
	hasSingleton bool

	level0 []skipEntry
}

// NewTermWriter begins a new term's postings at the current end of the
// shared doc/pos/pay files.
func NewTermWriter(docOut, posOut, payOut, skipOut *filesys.Output, withPositions, withPayloads bool) *Writer {
	return &Writer{
		docOut:        docOut,
		posOut:        posOut,
		payOut:        payOut,
		skipOut:       skipOut,
		withPositions: withPositions,
		withPayloads:  withPayloads,
		docStartFP:    docOut.Size(),
		posStartFP:    posOut.Size(),
		payStartFP:    payOut.Size(),
	}
}

// StartDoc begins a new document for this term with the given term
// frequency. docID must be strictly greater than the previous call's.
func (w *Writer) StartDoc(docID uint32, freq int) error {
	delta := docID
	if w.docCount > 0 {
		delta = docID - w.lastDoc
	}
	w.lastDoc = docID
	w.docCount++
	w.totalTF += int64(freq)

	if w.docCount == 1 {
		w.singleton = docID
		w.hasSingleton = true
	} else {
		w.hasSingleton = false
	}

	w.docDeltaBuf[w.blockPos] = delta
	w.freqBuf[w.blockPos] = uint32(freq)
	w.blockPos++
	w.lastPos = 0

	if w.blockPos == forutil.BlockSize {
		if err := w.flushDocBlock(); err != nil {
			return err
		}
	}
	return nil
}

// AddPosition records one occurrence of the term within the current
// document. Only meaningful when withPositions is true.
func (w *Writer) AddPosition(p Position) error {
	if !w.withPositions {
		return nil
	}
	delta := p.Pos - w.lastPos
	w.lastPos = p.Pos
	w.posDeltaBuf[w.posBlockPos] = uint32(delta)
	w.posBlockPos++

	if w.withPayloads {
		if err := forutil.WriteVInt(w.payOut, uint64(len(p.Payload))); err != nil {
			return err
		}
		if len(p.Payload) > 0 {
			if _, err := w.payOut.Write(p.Payload); err != nil {
				return err
			}
		}
	}

	if w.posBlockPos == forutil.BlockSize {
		if err := w.flushPosBlock(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flushDocBlock() error {
	bits := forutil.BitsRequired(w.docDeltaBuf[:])
	if err := forutil.WriteVInt(w.docOut, uint64(bits)); err != nil {
		return err
	}
	if _, err := w.docOut.Write(forutil.PackBlock(w.docDeltaBuf, bits)); err != nil {
		return err
	}

	fbits := forutil.BitsRequired(w.freqBuf[:])
	if err := forutil.WriteVInt(w.docOut, uint64(fbits)); err != nil {
		return err
	}
	if _, err := w.docOut.Write(forutil.PackBlock(w.freqBuf, fbits)); err != nil {
		return err
	}

	w.level0 = append(w.level0, skipEntry{
		LastDoc:      w.lastDoc,
		DocFP:        w.docOut.Size(),
		PosFP:        w.posOut.Size(),
		PayFP:        w.payOut.Size(),
		PosCount:     w.totalTF,
		PayByteCount: w.payOut.Size() - w.payStartFP,
	})

	w.blockPos = 0
	return nil
}

func (w *Writer) flushPosBlock() error {
	bits := forutil.BitsRequired(w.posDeltaBuf[:])
	if err := forutil.WriteVInt(w.posOut, uint64(bits)); err != nil {
		return err
	}
	if _, err := w.posOut.Write(forutil.PackBlock(w.posDeltaBuf, bits)); err != nil {
		return err
	}
	w.posBlockPos = 0
	return nil
}

// Finish flushes any partial tail blocks, writes the skip list (when
// df > SkipInterval), and returns the term's metadata.
func (w *Writer) Finish() (TermMetadata, error) {
	// Flush partial doc/freq tail as vInts: on the term's last call, any
	// partial block is vInt-encoded rather than bit-packed.
	for i := 0; i < w.blockPos; i++ {
		if err := forutil.WriteVInt(w.docOut, uint64(w.docDeltaBuf[i])); err != nil {
			return TermMetadata{}, err
		}
		if err := forutil.WriteVInt(w.docOut, uint64(w.freqBuf[i])); err != nil {
			return TermMetadata{}, err
		}
	}
	for i := 0; i < w.posBlockPos; i++ {
		if err := forutil.WriteVInt(w.posOut, uint64(w.posDeltaBuf[i])); err != nil {
			return TermMetadata{}, err
		}
	}

	meta := TermMetadata{
		DocFreq:            w.docCount,
		TotalTermFreq:       w.totalTF,
		DocStartFP:         w.docStartFP,
		PosStartFP:         w.posStartFP,
		PayStartFP:         w.payStartFP,
		HasSingleton:       w.docCount == 1,
		SingletonDocID:     w.singleton,
		LastPosBlockOffset: w.posOut.Size(),
		SkipOffset:         -1,
	}

	if w.docCount > SkipInterval {
		off, err := w.writeSkipList()
		if err != nil {
			return TermMetadata{}, err
		}
		meta.SkipOffset = off
	}
	return meta, nil
}

// writeSkipList serializes the level-0 skip entries and every fan-out
// level above them: each higher level skips SkipFanout times more docs
// than the one below it. Levels are written outermost-first so a reader
// can seek straight to the coarsest level and descend.
func (w *Writer) writeSkipList() (int64, error) {
	startOffset := w.skipOut.Size()

	levels := [][]skipEntry{w.level0}
	for {
		prev := levels[len(levels)-1]
		if len(prev) < SkipFanout {
			break
		}
		var next []skipEntry
		for i := SkipFanout - 1; i < len(prev); i += SkipFanout {
			next = append(next, prev[i])
		}
		if len(next) == 0 {
			break
		}
		levels = append(levels, next)
	}

	if err := forutil.WriteVInt(w.skipOut, uint64(len(levels))); err != nil {
		return 0, err
	}
	for lvl := len(levels) - 1; lvl >= 0; lvl-- {
		entries := levels[lvl]
		if err := forutil.WriteVInt(w.skipOut, uint64(len(entries))); err != nil {
			return 0, err
		}
		for _, e := range entries {
			if err := writeSkipEntry(w.skipOut, e); err != nil {
				return 0, err
			}
		}
	}
	return startOffset, nil
}

func writeSkipEntry(out *filesys.Output, e skipEntry) error {
	if err := forutil.WriteVInt(out, uint64(e.LastDoc)); err != nil {
		return err
	}
	if err := forutil.WriteVInt(out, uint64(e.DocFP)); err != nil {
		return err
	}
	if err := forutil.WriteVInt(out, uint64(e.PosFP)); err != nil {
		return err
	}
	if err := forutil.WriteVInt(out, uint64(e.PayFP)); err != nil {
		return err
	}
	if err := forutil.WriteVInt(out, uint64(e.PosCount)); err != nil {
		return err
	}
	return forutil.WriteVInt(out, uint64(e.PayByteCount))
}
