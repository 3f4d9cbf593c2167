package fst

import (
	"io"

	"github.com/blevesearch/vellum"

	"github.com/iamNilotpal/lumen/internal/codec/postings"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// byteWindow adapts a byte slice starting at some offset into the
// forutil.ByteReader interface the metadata decoder needs.
type byteWindow struct {
	data []byte
	pos  int
}

func (w *byteWindow) ReadByte() (byte, error) {
	if w.pos >= len(w.data) {
		return 0, io.EOF
	}
	b := w.data[w.pos]
	w.pos++
	return b, nil
}

func (w *byteWindow) Read(p []byte) (int, error) {
	n := copy(p, w.data[w.pos:])
	w.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Reader is an opened term dictionary: the FST term index plus the
// term-data file it points into.
type Reader struct {
	fst         *vellum.FST
	termDataIn  *filesys.Input
}

// OpenReader loads a term index previously produced by Builder.Finish
// (fstBytes) against the term-data file termDataIn.
func OpenReader(fstBytes []byte, termDataIn *filesys.Input) (*Reader, error) {
	f, err := vellum.Load(fstBytes)
	if err != nil {
		return nil, errors.NewCorruptIndexError(err, "", "", "failed to load FST term index")
	}
	return &Reader{fst: f, termDataIn: termDataIn}, nil
}

// Lookup returns the postings metadata for term, or ok=false if absent.
func (r *Reader) Lookup(term []byte) (postings.TermMetadata, bool, error) {
	offset, exists, err := r.fst.Get(term)
	if err != nil {
		return postings.TermMetadata{}, false, errors.NewCorruptIndexError(err, "", "", "FST lookup failed")
	}
	if !exists {
		return postings.TermMetadata{}, false, nil
	}

	// Term-data entries are variable length; read a bounded window from
	// offset to end-of-file and let the vInt decoder consume exactly what
	// it needs.
	tailLen := r.termDataIn.Len() - int64(offset)
	buf := make([]byte, tailLen)
	if _, err := r.termDataIn.ReadAt(buf, int64(offset)); err != nil {
		return postings.TermMetadata{}, false, err
	}
	meta, err := readTermMetadata(&byteWindow{data: buf})
	if err != nil {
		return postings.TermMetadata{}, false, err
	}
	return meta, true, nil
}

// PrefixIterator walks every term sharing prefix in ascending order,
// backing prefix-query evaluation.
type PrefixIterator struct {
	it  *vellum.FSTIterator
	err error
	end bool
}

// PrefixEnum returns an iterator positioned at the first term >= prefix
// and bounded above by the lexicographically next possible prefix.
func (r *Reader) PrefixEnum(prefix []byte) (*PrefixIterator, error) {
	upper := prefixUpperBound(prefix)
	it, err := r.fst.Iterator(prefix, upper)
	if err == vellum.ErrIteratorDone {
		return &PrefixIterator{end: true}, nil
	}
	if err != nil {
		return nil, errors.NewCorruptIndexError(err, "", "", "failed to create FST prefix iterator")
	}
	return &PrefixIterator{it: it}, nil
}

// Next advances the iterator, returning ok=false once exhausted.
func (p *PrefixIterator) Next() (term []byte, offset uint64, ok bool, err error) {
	if p.end || p.it == nil {
		return nil, 0, false, nil
	}
	t, v := p.it.Current()
	termCopy := append([]byte(nil), t...)

	if advErr := p.it.Next(); advErr == vellum.ErrIteratorDone {
		p.end = true
	} else if advErr != nil {
		return nil, 0, false, advErr
	}
	return termCopy, v, true, nil
}

// prefixUpperBound returns the smallest byte string greater than every
// string with prefix p, or nil if p is all 0xff bytes (unbounded above).
func prefixUpperBound(p []byte) []byte {
	upper := append([]byte(nil), p...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
