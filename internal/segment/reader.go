package segment

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/iamNilotpal/lumen/internal/codec/bkd"
	"github.com/iamNilotpal/lumen/internal/codec/docvalues"
	"github.com/iamNilotpal/lumen/internal/codec/fst"
	"github.com/iamNilotpal/lumen/internal/codec/postings"
	"github.com/iamNilotpal/lumen/internal/codec/storedfields"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
	"github.com/iamNilotpal/lumen/pkg/seginfo"
)

// Reader is an opened, immutable segment: its codec files memory-mapped
// and its small lookup structures (FST, BKD index, terms table) parsed
// into memory. Opening a reader is cheap, and refreshing a snapshot
// after a commit only costs O(changed segments).
type Reader struct {
	closedFlag

	name   string
	info   Info
	dir    Directory
	inputs []*filesys.Input

	docIn, posIn *filesys.Input
	termDataIn   *filesys.Input
	storedData, storedIdx *filesys.Input
	docValuesIn  *filesys.Input
	pointsDataIn, pointsIdxIn *filesys.Input

	fstByField map[int]*fst.Reader
	storedFields *storedfields.Reader
	liveDocs     *roaring.Bitmap
	delGen       uint64
}

// OpenReader opens segName's files for reading.
func OpenReader(dir Directory, segName string, delGen uint64) (*Reader, error) {
	info, err := readFieldInfos(dir, segName)
	if err != nil {
		return nil, err
	}

	r := &Reader{name: segName, info: info, dir: dir, fstByField: make(map[int]*fst.Reader), delGen: delGen}

	open := func(ext string) (*filesys.Input, error) {
		in, err := dir.OpenInput(seginfo.SegmentFileName(segName, "", ext))
		if err != nil {
			return nil, err
		}
		r.inputs = append(r.inputs, in)
		return in, nil
	}

	if r.docIn, err = open(ExtDoc); err != nil {
		return nil, err
	}
	if r.posIn, err = open(ExtPos); err != nil {
		return nil, err
	}
	if r.termDataIn, err = open(ExtTermData); err != nil {
		return nil, err
	}
	termIndexIn, err := open(ExtTermIndex)
	if err != nil {
		return nil, err
	}
	if r.storedData, err = open(ExtStoredData); err != nil {
		return nil, err
	}
	if r.storedIdx, err = open(ExtStoredIdx); err != nil {
		return nil, err
	}
	if r.docValuesIn, err = open(ExtDocValues); err != nil {
		return nil, err
	}
	if r.pointsDataIn, err = open(ExtPointsData); err != nil {
		return nil, err
	}
	if r.pointsIdxIn, err = open(ExtPointsIdx); err != nil {
		return nil, err
	}

	fstBody, err := readCodecBody(termIndexIn)
	if err != nil {
		return nil, err
	}
	if len(fstBody) > 0 {
		fr, err := fst.OpenReader(fstBody, r.termDataIn)
		if err != nil {
			return nil, err
		}
		for _, f := range info.Fields {
			r.fstByField[f.Info.Number] = fr
		}
	}

	sf, err := storedfields.OpenReader(r.storedData, r.storedIdx)
	if err != nil {
		return nil, err
	}
	r.storedFields = sf

	r.liveDocs, err = loadLiveDocs(dir, segName, info.MaxDoc)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// readCodecBody strips the codec header and footer framing written by
// openSegmentOutputs/Flush around a monolithic blob (the FST automaton,
// the BKD packed index) that was written in one shot rather than through
// an Output-position-tracked codec writer.
func readCodecBody(in *filesys.Input) ([]byte, error) {
	if in.Len() == 0 {
		return nil, nil
	}
	hr := filesys.NewHeaderReader(in)
	if _, _, _, err := hr.ReadHeader("LumenSegment", 1, 1); err != nil {
		return nil, err
	}
	bodyLen := in.Len() - hr.Pos() - 8
	if bodyLen <= 0 {
		return nil, nil
	}
	body := make([]byte, bodyLen)
	if _, err := in.ReadAt(body, hr.Pos()); err != nil {
		return nil, err
	}
	return body, nil
}

func loadLiveDocs(dir Directory, segName string, maxDoc uint32) (*roaring.Bitmap, error) {
	name := seginfo.SegmentFileName(segName, "", ExtLiveDocs)
	in, err := dir.OpenInput(name)
	if err != nil {
		bm := roaring.New()
		bm.AddRange(0, uint64(maxDoc))
		return bm, nil
	}
	defer in.Close()

	buf := make([]byte, in.Len())
	if _, err := in.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	bm := roaring.New()
	if _, err := bm.FromBuffer(buf); err != nil {
		return nil, errors.NewCorruptIndexError(err, segName, name, "failed to decode live-docs bitmap")
	}
	return bm, nil
}

// MaxDoc returns the segment's document-id upper bound (exclusive).
func (r *Reader) MaxDoc() uint32 { return r.info.MaxDoc }

// NumDocs returns the number of live (non-deleted) documents.
func (r *Reader) NumDocs() uint32 { return uint32(r.liveDocs.GetCardinality()) }

// IsLive reports whether docID has not been deleted.
func (r *Reader) IsLive(docID uint32) bool { return r.liveDocs.Contains(docID) }

// Document retrieves docID's stored fields.
func (r *Reader) Document(docID uint32) (storedfields.Document, error) {
	return r.storedFields.Document(docID)
}

// FieldByName looks up a field's durable FieldInfo by name.
func (r *Reader) FieldByName(name string) (FieldInfo, bool) {
	for _, f := range r.info.Fields {
		if f.Info.Name == name {
			return f.Info, true
		}
	}
	return FieldInfo{}, false
}

// TermMetadata resolves term within fieldNumber's postings, or
// ok=false if the term is absent from this segment.
func (r *Reader) TermMetadata(fieldNumber int, term []byte) (postings.TermMetadata, bool, error) {
	fr, ok := r.fstByField[fieldNumber]
	if !ok {
		return postings.TermMetadata{}, false, nil
	}
	return fr.Lookup(term)
}

// PostingsEnum opens an iterator over term's postings in fieldNumber.
func (r *Reader) PostingsEnum(fieldNumber int, term []byte) (*postings.PostingsEnum, bool, error) {
	meta, ok, err := r.TermMetadata(fieldNumber, term)
	if err != nil || !ok {
		return nil, ok, err
	}
	return postings.OpenPostingsEnum(r.docIn, r.posIn, meta, true), true, nil
}

// PrefixEnum returns every term in fieldNumber sharing prefix, in
// ascending order.
func (r *Reader) PrefixEnum(fieldNumber int, prefix []byte) (*fst.PrefixIterator, error) {
	fr, ok := r.fstByField[fieldNumber]
	if !ok {
		return &fst.PrefixIterator{}, nil
	}
	return fr.PrefixEnum(prefix)
}

// DocValuesNumeric opens a numeric doc-values reader for fieldNumber.
func (r *Reader) DocValuesNumeric(fieldNumber int) (*docvalues.NumericReader, error) {
	fs := r.fieldSummary(fieldNumber)
	if fs == nil {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexKeyNotFound, "field has no doc values").
			WithDetail("fieldNumber", fieldNumber)
	}
	return docvalues.OpenNumericReader(r.docValuesIn, fs.DocValue, r.info.MaxDoc)
}

// DocValuesSorted opens a sorted (or sorted-set, when multi) doc-values
// reader for fieldNumber.
func (r *Reader) DocValuesSorted(fieldNumber int, multi bool) (*docvalues.SortedReader, error) {
	fs := r.fieldSummary(fieldNumber)
	if fs == nil {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexKeyNotFound, "field has no doc values").
			WithDetail("fieldNumber", fieldNumber)
	}
	return docvalues.OpenSortedReader(r.docValuesIn, fs.DocValue, multi)
}

// DocValuesBinary opens a binary doc-values reader for fieldNumber.
func (r *Reader) DocValuesBinary(fieldNumber int) (*docvalues.BinaryReader, error) {
	fs := r.fieldSummary(fieldNumber)
	if fs == nil {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexKeyNotFound, "field has no doc values").
			WithDetail("fieldNumber", fieldNumber)
	}
	return docvalues.OpenBinaryReader(r.docValuesIn, fs.DocValue)
}

// PointValues opens a BKD reader for fieldNumber's point data.
func (r *Reader) PointValues(fieldNumber int) (*bkd.Reader, error) {
	fs := r.fieldSummary(fieldNumber)
	if fs == nil || fs.Info.PointDims == 0 {
		return nil, errors.NewIndexError(nil, errors.ErrorCodeIndexKeyNotFound, "field has no point values").
			WithDetail("fieldNumber", fieldNumber)
	}
	idx, err := readCodecBody(r.pointsIdxIn)
	if err != nil {
		return nil, err
	}
	return bkd.OpenReader(fs.Info.PointDims, fs.Info.PointBytes, fs.PointMin, fs.PointMax, idx, r.pointsDataIn), nil
}

// NormValue returns docID's quantized field length for fieldNumber,
// backing BM25's dl term. ok is false when the field wasn't indexed (no
// norms were recorded) or docID never touched it.
func (r *Reader) NormValue(fieldNumber int, docID uint32) (byte, bool, error) {
	fs := r.fieldSummary(fieldNumber)
	if fs == nil || fs.Norm.DataLength == 0 {
		return 0, false, nil
	}
	nr, err := docvalues.OpenNumericReader(r.docValuesIn, fs.Norm, r.info.MaxDoc)
	if err != nil {
		return 0, false, err
	}
	v, ok := nr.Get(docID)
	if !ok {
		return 0, false, nil
	}
	return byte(v), true, nil
}

// AvgFieldLength returns fieldNumber's average quantized length across
// this segment's documents, backing BM25's avgdl term.
func (r *Reader) AvgFieldLength(fieldNumber int) float64 {
	fs := r.fieldSummary(fieldNumber)
	if fs == nil {
		return 0
	}
	return fs.AvgFieldLength
}

// MarkDeleted tombstones docID in this segment's in-memory live-docs
// set, returning whether it was live beforehand. The mutation is only
// durable once PersistLiveDocs is called.
func (r *Reader) MarkDeleted(docID uint32) bool {
	return r.liveDocs.CheckedRemove(docID)
}

// PersistLiveDocs flushes the current live-docs bitmap to this
// segment's tombstone file, overwriting whatever generation was there
// before — mirrored on the read side by loadLiveDocs.
func (r *Reader) PersistLiveDocs() error {
	name := seginfo.SegmentFileName(r.name, "", ExtLiveDocs)
	out, err := r.dir.CreateOutput(name)
	if err != nil {
		return err
	}
	buf, err := r.liveDocs.ToBytes()
	if err != nil {
		out.Close()
		return err
	}
	if _, err := out.Write(buf); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (r *Reader) fieldSummary(fieldNumber int) *FieldSummary {
	for i := range r.info.Fields {
		if r.info.Fields[i].Info.Number == fieldNumber {
			return &r.info.Fields[i]
		}
	}
	return nil
}

// Close releases every memory-mapped input this reader opened.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return errors.NewAlreadyClosedError("segment reader " + r.name)
	}
	var firstErr error
	for _, in := range r.inputs {
		if err := in.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
