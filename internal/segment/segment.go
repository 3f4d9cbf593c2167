package segment

import (
	"encoding/json"

	"github.com/iamNilotpal/lumen/internal/index"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
	"github.com/iamNilotpal/lumen/pkg/seginfo"
)

// File suffixes, one per codec file a segment owns.
const (
	ExtDoc        = "doc"
	ExtPos        = "pos"
	ExtPay        = "pay"
	ExtSkip       = "skp"
	ExtTermData   = "tbk"
	ExtTermIndex  = "tfx"
	ExtStoredData = "fdt"
	ExtStoredIdx  = "fdx"
	ExtDocValues  = "dvd"
	ExtPointsData = "kdd"
	ExtPointsIdx  = "kdi"
	ExtFieldInfos = "fld"
	ExtLiveDocs   = "liv"

	// ExtCompoundFile packs a segment's small per-segment metadata files
	// (currently just field infos) into one container, read back through
	// Directory.OpenInput and Input.Slice like an ordinary file.
	// ExtCompoundEntries is its sibling name/offset/length index.
	ExtCompoundFile    = "cfs"
	ExtCompoundEntries = "cfe"
)

// FieldInfosCodecName / Version frame the .fld file (or its entry
// inside a .cfs compound file).
const (
	FieldInfosCodecName    = "LumenFieldInfos"
	FieldInfosCodecVersion = 1
)

// CompoundEntriesCodecName / Version frame the .cfe entries table.
const (
	CompoundEntriesCodecName    = "LumenCompoundEntries"
	CompoundEntriesCodecVersion = 1
)

// Directory is the subset of filesys.Directory segment depends on.
type Directory interface {
	CreateOutput(name string) (*filesys.Output, error)
	OpenInput(name string) (*filesys.Input, error)
	Delete(name string) error
}

// Flush writes every codec file for a new segment named segName from
// b's buffered documents, fsyncs them, and writes the field-infos file
// summarizing what was written. When useCompoundFile is set, the
// field-infos file is packed into a .cfs compound file instead of
// standing alone.
func Flush(dir Directory, segName string, b *index.Builder, useCompoundFile bool) (Info, error) {
	outs, files, err := openSegmentOutputs(dir, segName)
	if err != nil {
		return Info{}, err
	}

	result, err := b.Flush(outs)
	if err != nil {
		closeAll(files)
		return Info{}, err
	}

	for _, o := range files {
		if err := filesys.WriteFooter(o); err != nil {
			closeAll(files)
			return Info{}, err
		}
		if err := o.Sync(); err != nil {
			closeAll(files)
			return Info{}, err
		}
	}
	closeAll(files)

	info := Info{Name: segName, MaxDoc: result.MaxDoc}
	for _, fi := range result.Fields {
		ffi := result.FieldOffsets[fi.Number]
		summary := FieldSummary{
			Info: FieldInfo{
				Number: fi.Number, Name: fi.Name, Kind: int(fi.Kind),
				DocValue: fi.DocValue, PointDims: fi.PointDims, PointBytes: fi.PointBytes,
			},
			DocValue:       ffi.DocValue,
			Norm:           ffi.Norm,
			AvgFieldLength: ffi.AvgFieldLength,
			PointMin:       ffi.PointMin,
			PointMax:       ffi.PointMax,
		}
		for term, meta := range ffi.Terms {
			summary.Terms = append(summary.Terms, TermEntry{
				Term: term, DocFreq: meta.DocFreq, TotalTermFreq: meta.TotalTermFreq,
				DocStartFP: meta.DocStartFP, PosStartFP: meta.PosStartFP, PayStartFP: meta.PayStartFP,
				HasSingleton: meta.HasSingleton, SingletonDocID: meta.SingletonDocID,
				LastPosBlockOffset: meta.LastPosBlockOffset, SkipOffset: meta.SkipOffset,
			})
		}
		info.Fields = append(info.Fields, summary)
	}

	if err := writeFieldInfos(dir, segName, info, useCompoundFile); err != nil {
		return Info{}, err
	}
	return info, nil
}

func openSegmentOutputs(dir Directory, segName string) (index.SegmentOutputs, []*filesys.Output, error) {
	var outs index.SegmentOutputs
	var files []*filesys.Output

	open := func(ext string) (*filesys.Output, error) {
		name := seginfo.SegmentFileName(segName, "", ext)
		o, err := dir.CreateOutput(name)
		if err != nil {
			return nil, err
		}
		var segID [16]byte
		if err := filesys.WriteHeader(o, "LumenSegment", 1, segID, ext); err != nil {
			return nil, err
		}
		files = append(files, o)
		return o, nil
	}

	var err error
	if outs.Doc, err = open(ExtDoc); err != nil {
		return outs, files, err
	}
	if outs.Pos, err = open(ExtPos); err != nil {
		return outs, files, err
	}
	if outs.Pay, err = open(ExtPay); err != nil {
		return outs, files, err
	}
	if outs.Skip, err = open(ExtSkip); err != nil {
		return outs, files, err
	}
	if outs.TermData, err = open(ExtTermData); err != nil {
		return outs, files, err
	}
	if outs.TermIndex, err = open(ExtTermIndex); err != nil {
		return outs, files, err
	}
	if outs.StoredData, err = open(ExtStoredData); err != nil {
		return outs, files, err
	}
	if outs.StoredIndex, err = open(ExtStoredIdx); err != nil {
		return outs, files, err
	}
	if outs.DocValuesData, err = open(ExtDocValues); err != nil {
		return outs, files, err
	}
	if outs.PointsData, err = open(ExtPointsData); err != nil {
		return outs, files, err
	}
	if outs.PointsIndex, err = open(ExtPointsIdx); err != nil {
		return outs, files, err
	}
	return outs, files, nil
}

func closeAll(files []*filesys.Output) {
	for _, f := range files {
		f.Close()
	}
}

func writeFieldInfos(dir Directory, segName string, info Info, useCompoundFile bool) error {
	body, err := json.Marshal(info)
	if err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to marshal field infos")
	}

	if useCompoundFile {
		return writeCompoundFile(dir, segName, []compoundPart{
			{ext: ExtFieldInfos, codec: FieldInfosCodecName, version: FieldInfosCodecVersion, body: body},
		})
	}

	name := seginfo.SegmentFileName(segName, "", ExtFieldInfos)
	out, err := dir.CreateOutput(name)
	if err != nil {
		return err
	}
	defer out.Close()

	var segID [16]byte
	if err := filesys.WriteHeader(out, FieldInfosCodecName, FieldInfosCodecVersion, segID, ""); err != nil {
		return err
	}
	if _, err := out.Write(body); err != nil {
		return err
	}
	if err := filesys.WriteFooter(out); err != nil {
		return err
	}
	return out.Sync()
}

func readFieldInfos(dir Directory, segName string) (Info, error) {
	if slice, ok, err := openCompoundSlice(dir, segName, ExtFieldInfos); err != nil {
		return Info{}, err
	} else if ok {
		defer slice.Close()
		return decodeFieldInfos(slice, segName+"."+ExtFieldInfos)
	}

	name := seginfo.SegmentFileName(segName, "", ExtFieldInfos)
	in, err := dir.OpenInput(name)
	if err != nil {
		return Info{}, err
	}
	defer in.Close()
	return decodeFieldInfos(in, name)
}

func decodeFieldInfos(in *filesys.Input, nameForErrors string) (Info, error) {
	if err := filesys.VerifyFooter(in); err != nil {
		return Info{}, err
	}
	r := filesys.NewHeaderReader(in)
	if _, _, _, err := r.ReadHeader(FieldInfosCodecName, FieldInfosCodecVersion, FieldInfosCodecVersion); err != nil {
		return Info{}, err
	}

	bodyLen := in.Len() - r.Pos() - 8
	body := make([]byte, bodyLen)
	if _, err := in.ReadAt(body, r.Pos()); err != nil {
		return Info{}, errors.NewCorruptIndexError(err, "", nameForErrors, "failed to read field infos body")
	}

	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return Info{}, errors.NewCorruptIndexError(err, "", nameForErrors, "failed to decode field infos JSON")
	}
	return info, nil
}

// compoundPart is one small file packed into a segment's .cfs
// container, keeping the same codec header/footer framing it would
// have had as a standalone file.
type compoundPart struct {
	ext     string
	codec   string
	version uint32
	body    []byte
}

// compoundEntryInfo records one part's byte range within the .cfs
// file, persisted in the sibling .cfe entries table.
type compoundEntryInfo struct {
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// writeCompoundFile packs parts into segName's compound file. Each
// part's checksum is reset and recomputed over just that part (via
// Output.ResetChecksum) so a slice pulled back out through Input.Slice
// verifies exactly like a standalone file would.
func writeCompoundFile(dir Directory, segName string, parts []compoundPart) error {
	cfsName := seginfo.SegmentFileName(segName, "", ExtCompoundFile)
	out, err := dir.CreateOutput(cfsName)
	if err != nil {
		return err
	}

	entries := make([]compoundEntryInfo, 0, len(parts))
	for _, p := range parts {
		out.ResetChecksum()
		start := out.Size()

		var segID [16]byte
		if err := filesys.WriteHeader(out, p.codec, p.version, segID, p.ext); err != nil {
			out.Close()
			return err
		}
		if _, err := out.Write(p.body); err != nil {
			out.Close()
			return err
		}
		if err := filesys.WriteFooter(out); err != nil {
			out.Close()
			return err
		}
		entries = append(entries, compoundEntryInfo{Name: p.ext, Offset: start, Length: out.Size() - start})
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return writeCompoundEntries(dir, segName, entries)
}

func writeCompoundEntries(dir Directory, segName string, entries []compoundEntryInfo) error {
	name := seginfo.SegmentFileName(segName, "", ExtCompoundEntries)
	out, err := dir.CreateOutput(name)
	if err != nil {
		return err
	}
	defer out.Close()

	body, err := json.Marshal(entries)
	if err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to marshal compound entries")
	}

	var segID [16]byte
	if err := filesys.WriteHeader(out, CompoundEntriesCodecName, CompoundEntriesCodecVersion, segID, ""); err != nil {
		return err
	}
	if _, err := out.Write(body); err != nil {
		return err
	}
	if err := filesys.WriteFooter(out); err != nil {
		return err
	}
	return out.Sync()
}

// openCompoundSlice returns name's framed bytes sliced out of segName's
// compound file, or ok=false if the segment has no compound file (or
// no entry by that name) so the caller can fall back to a standalone
// file.
func openCompoundSlice(dir Directory, segName, name string) (*filesys.Input, bool, error) {
	entriesName := seginfo.SegmentFileName(segName, "", ExtCompoundEntries)
	ein, err := dir.OpenInput(entriesName)
	if err != nil {
		return nil, false, nil
	}
	defer ein.Close()

	if err := filesys.VerifyFooter(ein); err != nil {
		return nil, false, err
	}
	hr := filesys.NewHeaderReader(ein)
	if _, _, _, err := hr.ReadHeader(CompoundEntriesCodecName, CompoundEntriesCodecVersion, CompoundEntriesCodecVersion); err != nil {
		return nil, false, err
	}

	bodyLen := ein.Len() - hr.Pos() - 8
	body := make([]byte, bodyLen)
	if _, err := ein.ReadAt(body, hr.Pos()); err != nil {
		return nil, false, errors.NewCorruptIndexError(err, "", entriesName, "failed to read compound entries body")
	}

	var entries []compoundEntryInfo
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, false, errors.NewCorruptIndexError(err, "", entriesName, "failed to decode compound entries JSON")
	}

	var target *compoundEntryInfo
	for i := range entries {
		if entries[i].Name == name {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return nil, false, nil
	}

	cfsName := seginfo.SegmentFileName(segName, "", ExtCompoundFile)
	cin, err := dir.OpenInput(cfsName)
	if err != nil {
		return nil, false, err
	}
	defer cin.Close()

	slice, err := cin.Slice(target.Offset, target.Length)
	if err != nil {
		return nil, false, err
	}
	return slice, true, nil
}
