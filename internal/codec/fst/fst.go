// Package fst builds and reads the term index: a finite-state
// transducer mapping terms to the byte offset of their metadata block
// in the term-data file, plus the term-data file itself: one flat
// metadata record per term, with no block tree.
// The transducer is backed by github.com/blevesearch/vellum rather
// than a hand-rolled automaton.
package fst

import (
	"bytes"

	"github.com/blevesearch/vellum"

	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/internal/codec/postings"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// Builder accumulates (term, TermMetadata) pairs in sorted order and
// produces both the term-data file and the FST term index. Unlike a
// block-tree term dictionary's leaf blocks — which exist to amortize a
// shared prefix across a run of terms — the FST itself already shares
// prefixes across every inserted term, so term-data records need no
// further grouping: each is a flat, full-value-addressed record reached
// directly by the FST's output value (see DESIGN.md).
type Builder struct {
	termDataOut *filesys.Output

	fstBuf   bytes.Buffer
	fstBuild *vellum.Builder
	lastTerm []byte
}

// NewBuilder begins a term dictionary writing its term-data blocks to
// termDataOut.
func NewBuilder(termDataOut *filesys.Output) (*Builder, error) {
	b := &Builder{termDataOut: termDataOut}
	fb, err := vellum.New(&b.fstBuf, nil)
	if err != nil {
		return nil, errors.NewCorruptIndexError(err, "", "", "failed to create FST builder")
	}
	b.fstBuild = fb
	return b, nil
}

// Add inserts the next term (must be lexicographically greater than the
// previous Add call's) together with its postings metadata.
func (b *Builder) Add(term []byte, meta postings.TermMetadata) error {
	if b.lastTerm != nil && bytes.Compare(term, b.lastTerm) <= 0{
		return errors.NewCorruptIndexError(nil, "", "", "terms inserted out of order").
			WithDetail("term", string(term)).WithDetail("lastTerm", string(b.lastTerm))
	}
	offset := b.termDataOut.Size()
	if err := writeTermMetadata(b.termDataOut, meta); err != nil {
		return err
	}

	termCopy := append([]byte(nil), term...)
	b.lastTerm = termCopy
	if err := b.fstBuild.Insert(termCopy, uint64(offset)); err != nil {
		return errors.NewCorruptIndexError(err, "", "", "failed to insert term into FST")
	}
	return nil
}

// Finish closes the FST and returns its serialized bytes, ready to be
// written as the segment's term-index file.
func (b *Builder) Finish() ([]byte, error) {
	if err := b.fstBuild.Close(); err != nil {
		return nil, errors.NewCorruptIndexError(err, "", "", "failed to finalize FST")
	}
	return b.fstBuf.Bytes(), nil
}

// writeTermMetadata writes a term's postings metadata into the term-data
// file as absolute vInt values, with no delta against the previous term.
func writeTermMetadata(out *filesys.Output, m postings.TermMetadata) error {
	fields := []uint64{
		uint64(m.DocFreq),
		uint64(m.TotalTermFreq),
		uint64(m.DocStartFP),
		uint64(m.PosStartFP),
		uint64(m.PayStartFP),
		uint64(m.LastPosBlockOffset),
	}
	for _, f := range fields {
		if err := forutil.WriteVInt(out, f); err != nil {
			return err
		}
	}
	if m.HasSingleton {
		if err := forutil.WriteVInt(out, 1); err != nil {
			return err
		}
		if err := forutil.WriteVInt(out, uint64(m.SingletonDocID)); err != nil {
			return err
		}
	} else {
		if err := forutil.WriteVInt(out, 0); err != nil {
			return err
		}
	}
	skip := uint64(0)
	if m.SkipOffset >= 0 {
		skip = uint64(m.SkipOffset) + 1
	}
	return forutil.WriteVInt(out, skip)
}

// readTermMetadata reverses writeTermMetadata, reading from the in-memory
// byte window of a term-data Input starting at offset.
func readTermMetadata(r *byteWindow) (postings.TermMetadata, error) {
	var m postings.TermMetadata
	df, err := forutil.ReadVInt(r)
	if err != nil {
		return m, err
	}
	ttf, err := forutil.ReadVInt(r)
	if err != nil {
		return m, err
	}
	docFP, err := forutil.ReadVInt(r)
	if err != nil {
		return m, err
	}
	posFP, err := forutil.ReadVInt(r)
	if err != nil {
		return m, err
	}
	payFP, err := forutil.ReadVInt(r)
	if err != nil {
		return m, err
	}
	lastPos, err := forutil.ReadVInt(r)
	if err != nil {
		return m, err
	}
	hasSingleton, err := forutil.ReadVInt(r)
	if err != nil {
		return m, err
	}
	m.DocFreq = int(df)
	m.TotalTermFreq = int64(ttf)
	m.DocStartFP = int64(docFP)
	m.PosStartFP = int64(posFP)
	m.PayStartFP = int64(payFP)
	m.LastPosBlockOffset = int64(lastPos)
	if hasSingleton == 1 {
		sid, err := forutil.ReadVInt(r)
		if err != nil {
			return m, err
		}
		m.HasSingleton = true
		m.SingletonDocID = uint32(sid)
	}
	skip, err := forutil.ReadVInt(r)
	if err != nil {
		return m, err
	}
	if skip == 0 {
		m.SkipOffset = -1
	} else {
		m.SkipOffset = int64(skip - 1)
	}
	return m, nil
}
