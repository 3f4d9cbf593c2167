// Package seginfo manages segment naming and the commit manifest
// (`segments_<gen>`) that names the currently live segments of an
// index. It implements a two-level naming scheme: a name per segment
// (shared by every file that segment owns) and a name per commit
// generation.
package seginfo

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// CommitPrefix is the filename prefix for commit manifests.
const CommitPrefix = "segments_"

// SegmentFileName builds the `<segName>_<suffix>.<ext>` name for one file
// owned by a segment.
func SegmentFileName(segName, suffix, ext string) string {
	if suffix == "" {
		return fmt.Sprintf("%s.%s", segName, ext)
	}
	return fmt.Sprintf("%s_%s.%s", segName, suffix, ext)
}

// GenerateSegmentName returns the deterministic name for the segment with
// the given generation and configured prefix, e.g. "seg_00001". Segment
// generations are monotonically increasing, so lexicographic sort order
// on these names is also generation order.
func GenerateSegmentName(generation uint64, prefix string) string {
	return fmt.Sprintf("%s_%05d", prefix, generation)
}

// CommitFileName returns the manifest filename for commit generation gen.
func CommitFileName(gen uint64) string {
	return fmt.Sprintf("%s%d", CommitPrefix, gen)
}

// ParseCommitGeneration extracts the generation from a `segments_<gen>`
// filename.
func ParseCommitGeneration(name string) (uint64, error) {
	if !strings.HasPrefix(name, CommitPrefix) {
		return 0, fmt.Errorf("filename %s does not start with %s", name, CommitPrefix)
	}
	genStr := strings.TrimPrefix(name, CommitPrefix)
	gen, err := strconv.ParseUint(genStr, 10, 64)
	if err != nil {
		return 0, errors.NewIndexError(err, errors.ErrorCodeIndexTimestampExtraction, "failed to parse commit generation").
			WithOperation("ParseCommitGeneration").
			WithDetail("filename", name)
	}
	return gen, nil
}

// SegmentManifestEntry names one segment within a commit: its name, live
// doc count, deletes generation, field-infos generation, and codec id.
type SegmentManifestEntry struct {
	Name          string `json:"name"`
	DocCount      int    `json:"docCount"`
	DelGen        uint64 `json:"delGen"`
	FieldInfosGen uint64 `json:"fieldInfosGen"`
	CodecID       string `json:"codecId"`
}

// Manifest is the decoded body of a `segments_<gen>` commit file: the set
// of segments live as of that generation, plus free-form user metadata.
type Manifest struct {
	Generation   uint64                 `json:"generation"`
	Segments     []SegmentManifestEntry `json:"segments"`
	UserMetadata map[string]string      `json:"userMetadata"`
}

// ManifestCodecName / ManifestCodecVersion frame the commit file written
// through pkg/filesys's header/footer helpers.
const (
	ManifestCodecName    = "LumenSegmentInfos"
	ManifestCodecVersion = 1
)

// Directory is the subset of filesys.Directory seginfo depends on.
// filesys.FSDirectory satisfies it structurally.
type Directory interface {
	CreateOutput(name string) (*filesys.Output, error)
	OpenInput(name string) (*filesys.Input, error)
	List() ([]string, error)
	Delete(name string) error
	Rename(oldName, newName string) error
}

// WriteManifest serializes m to dir as a framed, checksummed file, then
// atomically publishes it by renaming over CommitFileName(m.Generation).
// The rename is the single atomic operation that constitutes a commit:
// readers opening before the rename observe the old generation, readers
// opening after observe the new one, with no visible in-between state.
func WriteManifest(dir Directory, m Manifest) error {
	tmpName := CommitFileName(m.Generation) + ".tmp"
	out, err := dir.CreateOutput(tmpName)
	if err != nil {
		return err
	}

	body, err := json.Marshal(m)
	if err != nil {
		out.Close()
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to marshal segment manifest")
	}

	var segID [16]byte
	if err := filesys.WriteHeader(out, ManifestCodecName, ManifestCodecVersion, segID, ""); err != nil {
		out.Close()
		return err
	}
	if _, err := out.Write(body); err != nil {
		out.Close()
		return err
	}
	if err := filesys.WriteFooter(out); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return dir.Rename(tmpName, CommitFileName(m.Generation))
}

// ReadManifest reads and verifies the commit file for generation gen.
func ReadManifest(dir Directory, gen uint64) (Manifest, error) {
	name := CommitFileName(gen)
	in, err := dir.OpenInput(name)
	if err != nil {
		return Manifest{}, err
	}
	defer in.Close()

	if err := filesys.VerifyFooter(in); err != nil {
		return Manifest{}, err
	}

	r := filesys.NewHeaderReader(in)
	_, _, _, err = r.ReadHeader(ManifestCodecName, ManifestCodecVersion, ManifestCodecVersion)
	if err != nil {
		return Manifest{}, err
	}

	bodyLen := in.Len() - r.Pos() - 8
	body := make([]byte, bodyLen)
	if _, err := in.ReadAt(body, r.Pos()); err != nil {
		return Manifest{}, errors.NewCorruptIndexError(err, "", name, "failed to read manifest body")
	}

	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return Manifest{}, errors.NewCorruptIndexError(err, "", name, "failed to decode manifest JSON")
	}
	return m, nil
}

// LatestCommitGeneration scans dir for the highest `segments_<gen>` file
// and returns its generation. Returns ok=false when none exists (fresh
// directory).
func LatestCommitGeneration(dir Directory) (gen uint64, ok bool, err error) {
	names, err := dir.List()
	if err != nil {
		return 0, false, err
	}

	var gens []uint64
	for _, name := range names {
		if !strings.HasPrefix(name, CommitPrefix) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		g, parseErr := ParseCommitGeneration(name)
		if parseErr != nil {
			continue
		}
		gens = append(gens, g)
	}
	if len(gens) == 0 {
		return 0, false, nil
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens[len(gens)-1], true, nil
}
