package segment

import (
	"github.com/iamNilotpal/lumen/internal/codec/bkd"
	"github.com/iamNilotpal/lumen/internal/codec/docvalues"
	"github.com/iamNilotpal/lumen/internal/codec/storedfields"
	"github.com/iamNilotpal/lumen/internal/index"
)

// acceptAllPoints collects every point in a field's BKD tree into a
// docId -> packed value map, used by Merge to carry point values across
// into a rebuilt segment.
type acceptAllPoints struct {
	values map[uint32][]byte
}

func (v *acceptAllPoints) VisitDocID(docID uint32) {}
func (v *acceptAllPoints) VisitPoint(docID uint32, packedValue []byte) {
	cp := make([]byte, len(packedValue))
	copy(cp, packedValue)
	v.values[docID] = cp
}
func (v *acceptAllPoints) Compare(minPackedValue, maxPackedValue []byte) bkd.Relation {
	return bkd.CellInside
}

// Merge rebuilds the live documents of readers into b and flushes the
// result as a new segment named segName. Rather than streaming each
// codec file's byte ranges directly together, it re-adds every live
// document through a fresh index.Builder — see DESIGN.md for why this
// strategy was chosen over a true byte-level merge. Term positions are
// carried through exactly via PostingsEnum.NextPosition, so phrase
// queries behave identically against a post-merge segment.
func Merge(dir Directory, segName string, b *index.Builder, readers []*Reader, useCompoundFile bool) (Info, error) {
	for _, r := range readers {
		if err := rebuildInto(b, r); err != nil {
			return Info{}, err
		}
	}
	return Flush(dir, segName, b, useCompoundFile)
}

func rebuildInto(b *index.Builder, r *Reader) error {
	fieldDocs, err := reconstructFields(r)
	if err != nil {
		return err
	}

	for docID := uint32(0); docID < r.MaxDoc(); docID++ {
		if !r.IsLive(docID) {
			continue
		}
		fields, err := reconstructDocument(r, docID, fieldDocs)
		if err != nil {
			return err
		}
		if _, err := b.AddDocument(fields); err != nil {
			return err
		}
	}
	return nil
}

// perFieldDocs holds, for one source field, every live document's
// reconstructed indexed tokens and point value, gathered once per
// reader rather than once per document.
type perFieldDocs struct {
	info   FieldInfo
	tokens map[uint32][]index.Token
	points map[uint32][]byte
}

func reconstructFields(r *Reader) (map[int]*perFieldDocs, error) {
	out := make(map[int]*perFieldDocs)

	for _, fs := range r.info.Fields {
		pfd := &perFieldDocs{info: fs.Info, tokens: make(map[uint32][]index.Token)}

		if index.FieldKind(fs.Info.Kind).Has(index.KindIndexed) {
			for _, te := range fs.Terms {
				enum, ok, err := r.PostingsEnum(fs.Info.Number, []byte(te.Term))
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				for {
					docID, err := enum.NextDoc()
					if err != nil {
						return nil, err
					}
					if docID == ^uint32(0) {
						break
					}
					if !r.IsLive(docID) {
						continue
					}
					freq := enum.Freq()
					enum.StartPositions()
					for p := 0; p < freq; p++ {
						pos, err := enum.NextPosition()
						if err != nil {
							return nil, err
						}
						pfd.tokens[docID] = append(pfd.tokens[docID], index.Token{
							Term: []byte(te.Term), Position: pos,
						})
					}
				}
			}
		}

		if fs.Info.PointDims > 0 {
			pr, err := r.PointValues(fs.Info.Number)
			if err == nil {
				v := &acceptAllPoints{values: make(map[uint32][]byte)}
				if err := pr.Intersect(v); err != nil {
					return nil, err
				}
				pfd.points = v.values
			}
		}

		out[fs.Info.Number] = pfd
	}

	return out, nil
}

func reconstructDocument(r *Reader, docID uint32, fieldDocs map[int]*perFieldDocs) ([]index.Field, error) {
	stored, err := r.Document(docID)
	if err != nil {
		return nil, err
	}
	storedByField := make(map[int]int) // fieldNumber -> index in stored
	for i, fv := range stored {
		storedByField[fv.FieldNumber] = i
	}

	var fields []index.Field
	for _, fs := range r.info.Fields {
		pfd := fieldDocs[fs.Info.Number]
		kind := index.FieldKind(fs.Info.Kind)

		f := index.Field{
			Name: fs.Info.Name, Kind: kind,
			DocValueType: fs.Info.DocValue, PointDims: fs.Info.PointDims, PointBytes: fs.Info.PointBytes,
		}

		if kind.Has(index.KindIndexed) && pfd != nil {
			f.Tokens = pfd.tokens[docID]
		}

		if kind.Has(index.KindStored) {
			if i, ok := storedByField[fs.Info.Number]; ok {
				populateStoredField(&f, stored[i])
			}
		}

		if kind.Has(index.KindDocValue) {
			if err := populateDocValueField(&f, r, fs, docID); err != nil {
				return nil, err
			}
		}

		if kind.Has(index.KindPoint) && pfd != nil {
			f.PointValue = pfd.points[docID]
		}

		fields = append(fields, f)
	}

	return fields, nil
}

func populateStoredField(f *index.Field, fv storedfields.FieldValue) {
	switch fv.Kind {
	case storedfields.KindString:
		f.StoredKind, f.StoredString = index.StoredString, fv.Str
	case storedfields.KindBytes:
		f.StoredKind, f.StoredBytes = index.StoredBytes, fv.Bytes
	case storedfields.KindInt:
		f.StoredKind, f.StoredInt = index.StoredInt, int64(fv.IntVal)
	case storedfields.KindLong:
		f.StoredKind, f.StoredInt = index.StoredLong, fv.LongVal
	case storedfields.KindFloat:
		f.StoredKind, f.StoredInt = index.StoredFloat, int64(fv.FloatVal)
	case storedfields.KindDouble:
		f.StoredKind, f.StoredInt = index.StoredDouble, int64(fv.DoubleVal)
	}
}

func populateDocValueField(f *index.Field, r *Reader, fs FieldSummary, docID uint32) error {
	switch fs.Info.DocValue {
	case docvalues.Numeric:
		dv, err := r.DocValuesNumeric(fs.Info.Number)
		if err != nil {
			return nil
		}
		if v, ok := dv.Get(docID); ok {
			f.DocValueNumeric = v
		}
	case docvalues.SortedBytes:
		dv, err := r.DocValuesSorted(fs.Info.Number, false)
		if err != nil {
			return nil
		}
		f.DocValueString = dv.LookupOrd(dv.OrdAt(docID))
	case docvalues.SortedSet:
		dv, err := r.DocValuesSorted(fs.Info.Number, true)
		if err != nil {
			return nil
		}
		for _, ord := range dv.OrdsAt(docID) {
			f.DocValueStrings = append(f.DocValueStrings, dv.LookupOrd(ord))
		}
	case docvalues.Binary:
		dv, err := r.DocValuesBinary(fs.Info.Number)
		if err != nil {
			return nil
		}
		b, err := dv.Get(docID)
		if err == nil {
			f.DocValueBytes = b
		}
	}
	return nil
}
