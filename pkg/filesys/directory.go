package filesys

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	mmap "github.com/blevesearch/mmap-go"

	"github.com/iamNilotpal/lumen/pkg/errors"
)

// HeaderMagic and FooterMagic frame every codec file.
const (
	HeaderMagic uint32 = 0x3fd76c17
	FooterMagic uint32 = 0xc02893e8
)

// Output is an append-only write handle returned by Directory.CreateOutput.
// It tracks a running CRC32 of everything written so WriteFooter can close
// the file out with a checksum over the full body without a second pass.
type Output struct {
	name string
	file *os.File
	hash uint32
	size int64
}

// Write appends p to the file and folds it into the running checksum.
func (o *Output) Write(p []byte) (int, error) {
	n, err := o.file.Write(p)
	if n > 0 {
		o.hash = crc32.Update(o.hash, crc32.IEEETable, p[:n])
		o.size += int64(n)
	}
	return n, err
}

// Name returns the output's file name (not the full path).
func (o *Output) Name() string { return o.name }

// Size returns the number of bytes written so far.
func (o *Output) Size() int64 { return o.size }

// Checksum returns the running CRC32 of all bytes written so far.
func (o *Output) Checksum() uint32 { return o.hash }

// ResetChecksum restarts the running checksum from zero without
// affecting Size, letting one Output frame several independently
// checksummed codec blocks back to back (compound-file packing).
func (o *Output) ResetChecksum() { o.hash = 0 }

// Sync flushes the file to stable storage. Every write operation that
// touches the file system may block here.
func (o *Output) Sync() error {
	if err := o.file.Sync(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to fsync output").
			WithFileName(o.name)
	}
	return nil
}

// Close closes the underlying file handle without syncing.
func (o *Output) Close() error {
	return o.file.Close()
}

// Input is a random-access, ideally memory-mapped read handle returned by
// Directory.OpenInput. Slices of an Input share the parent's mapping;
// cloning is O(1) and only the final Close (parent plus every slice)
// releases the underlying mapping.
type Input struct {
	name   string
	data   []byte // shared, immutable view backing this input and all its slices
	offset int64  // this input's base offset into data
	length int64  // this input's length starting at offset

	refs   *int64      // shared refcount across parent + clones
	mapped *mmap.MMap  // shared by the root and every slice/clone; nil for empty files
	closed atomic.Bool
}

// Name returns the input's file name (not the full path).
func (in *Input) Name() string { return in.name }

// Len returns the byte length visible through this input.
func (in *Input) Len() int64 { return in.length }

// ReadAt implements io.ReaderAt relative to this input's own window.
func (in *Input) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > in.length {
		return 0, io.EOF
	}
	n := copy(p, in.data[in.offset+off:in.offset+in.length])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Slice returns a new Input over [offset, offset+length) of this input's
// window. The slice shares the parent's mapping: no copy, no new mmap
// syscall, O(1) cost. Both the parent and every slice must be closed
// before the underlying mapping is unmapped.
func (in *Input) Slice(offset, length int64) (*Input, error) {
	if offset < 0 || length < 0 || offset+length > in.length {
		return nil, errors.NewStorageError(nil, errors.ErrorCodeIO, "slice out of bounds").
			WithFileName(in.name).WithOffset(int(offset))
	}
	atomic.AddInt64(in.refs, 1)
	return &Input{
		name:   in.name,
		data:   in.data,
		offset: in.offset + offset,
		length: length,
		refs:   in.refs,
		mapped: in.mapped,
	}, nil
}

// Clone returns an O(1) duplicate cursor over the same window as in,
// for concurrent logical readers (e.g. one per query thread) sharing a
// single underlying mapping.
func (in *Input) Clone() *Input {
	atomic.AddInt64(in.refs, 1)
	return &Input{
		name:   in.name,
		data:   in.data,
		offset: in.offset,
		length: in.length,
		refs:   in.refs,
		mapped: in.mapped,
	}
}

// Close releases this cursor's reference. Only once every clone/slice and
// the owning root have been closed is the mapping actually unmapped.
func (in *Input) Close() error {
	if !in.closed.CompareAndSwap(false, true) {
		return nil
	}
	remaining := atomic.AddInt64(in.refs, -1)
	if remaining > 0 || in.mapped == nil {
		return nil
	}
	if err := in.mapped.Unmap(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to unmap input").
			WithFileName(in.name)
	}
	return nil
}

// Directory is a flat namespace of named byte files: append-only writes,
// random-access (memory-mapped) reads, listing, deletion, and atomic
// rename — the on-disk substrate every codec writer/reader is built on.
type Directory interface {
	CreateOutput(name string) (*Output, error)
	OpenInput(name string) (*Input, error)
	List() ([]string, error)
	Delete(name string) error
	Rename(oldName, newName string) error
	// Lock acquires an exclusive advisory lock for a single writer; a
	// second call while the lock is held fails with LockObtainFailed.
	Lock() (func() error, error)
	Close() error
}

// FSDirectory is the default Directory: plain files on a local
// filesystem, opened for random access via mmap.
type FSDirectory struct {
	path string

	mu     sync.Mutex
	locked bool
}

// NewFSDirectory creates (if needed) and opens dirPath as a Directory.
func NewFSDirectory(dirPath string) (*FSDirectory, error) {
	if err := CreateDir(dirPath, 0755, true); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to create directory").
			WithPath(dirPath)
	}
	return &FSDirectory{path: dirPath}, nil
}

// CreateOutput opens name for append-only writing, creating it if absent.
func (d *FSDirectory) CreateOutput(name string) (*Output, error) {
	path := filepath.Join(d.path, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to create output file").
			WithFileName(name).WithPath(path)
	}
	return &Output{name: name, file: f, hash: 0}, nil
}

// OpenInput memory-maps name for random-access reading.
func (d *FSDirectory) OpenInput(name string) (*Input, error) {
	path := filepath.Join(d.path, name)
	f, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to open input file").
			WithFileName(name).WithPath(path)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to stat input file").
			WithFileName(name).WithPath(path)
	}

	if stat.Size() == 0 {
		refs := int64(1)
		return &Input{name: name, data: nil, length: 0, refs: &refs}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to mmap input file").
			WithFileName(name).WithPath(path)
	}

	refs := int64(1)
	return &Input{
		name:   name,
		data:   []byte(m),
		length: int64(len(m)),
		refs:   &refs,
		mapped: &m,
	}, nil
}

// List returns the names of every regular file directly under the
// directory.
func (d *FSDirectory) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to list directory").
			WithPath(d.path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Delete removes name from the directory.
func (d *FSDirectory) Delete(name string) error {
	path := filepath.Join(d.path, name)
	if err := os.Remove(path); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to delete file").
			WithFileName(name).WithPath(path)
	}
	return nil
}

// Rename atomically replaces newName with oldName's contents. Used by
// commit() to publish segments_<gen> only after every referenced file is
// durable.
func (d *FSDirectory) Rename(oldName, newName string) error {
	oldPath := filepath.Join(d.path, oldName)
	newPath := filepath.Join(d.path, newName)
	if err := os.Rename(oldPath, newPath); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to rename file").
			WithFileName(oldName).WithPath(oldPath)
	}
	return nil
}

// Lock acquires an exclusive in-process lock over the directory; a second
// Lock call before the returned unlock runs fails with LockObtainFailed.
// A real deployment would use an O_EXCL lock file; this mirrors that
// contract for the single-process case this module targets.
func (d *FSDirectory) Lock() (func() error, error) {
	d.mu.Lock()
	if d.locked {
		d.mu.Unlock()
		return nil, errors.NewLockObtainFailedError(d.path)
	}
	d.locked = true
	d.mu.Unlock()

	return func() error {
		d.mu.Lock()
		d.locked = false
		d.mu.Unlock()
		return nil
	}, nil
}

// Close is a no-op for FSDirectory: individual Output/Input handles own
// their file descriptors and mappings.
func (d *FSDirectory) Close() error { return nil }

// WriteHeader writes the codec header framing: magic, codec name, format
// version, 16-byte segment id, and suffix.
func WriteHeader(out *Output, codecName string, version uint32, segmentID [16]byte, suffix string) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], HeaderMagic)
	if _, err := out.Write(buf[:]); err != nil {
		return err
	}
	if err := writeString(out, codecName); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[:], version)
	if _, err := out.Write(buf[:]); err != nil {
		return err
	}
	if _, err := out.Write(segmentID[:]); err != nil {
		return err
	}
	return writeString(out, suffix)
}

// WriteFooter writes the footer framing: magic followed by the CRC32
// checksum of every byte written to out so far.
func WriteFooter(out *Output) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], FooterMagic)
	if _, err := out.Write(buf[:]); err != nil {
		return err
	}
	checksum := out.Checksum()
	binary.BigEndian.PutUint32(buf[:], checksum)
	_, err := out.Write(buf[:])
	return err
}

func writeString(out *Output, s string) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := out.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := out.Write([]byte(s))
	return err
}

// HeaderReader reads header/footer framing back out of an Input.
type HeaderReader struct {
	in  *Input
	pos int64
}

// NewHeaderReader wraps in for sequential header parsing starting at
// offset 0.
func NewHeaderReader(in *Input) *HeaderReader {
	return &HeaderReader{in: in}
}

func (r *HeaderReader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := r.in.ReadAt(buf, r.pos)
	if err != nil && read < n {
		return nil, errors.NewEngineError(err, errors.ErrorCodeCorruptIndex, "truncated codec header/footer").
			WithFile(r.in.Name())
	}
	r.pos += int64(n)
	return buf, nil
}

// ReadHeader verifies the magic, codec name, and version range, returning
// the on-disk version and the segment id / suffix recorded in the header.
func (r *HeaderReader) ReadHeader(expectCodec string, minVersion, maxVersion uint32) (version uint32, segmentID [16]byte, suffix string, err error) {
	magicBuf, err := r.readN(4)
	if err != nil {
		return 0, segmentID, "", err
	}
	if binary.BigEndian.Uint32(magicBuf) != HeaderMagic {
		return 0, segmentID, "", errors.NewCorruptIndexError(nil, "", r.in.Name(), "bad header magic")
	}

	codecName, err := r.readString()
	if err != nil {
		return 0, segmentID, "", err
	}
	if codecName != expectCodec {
		return 0, segmentID, "", errors.NewCorruptIndexError(
			nil, "", r.in.Name(), "codec name mismatch: got "+codecName+" want "+expectCodec,
		)
	}

	vbuf, err := r.readN(4)
	if err != nil {
		return 0, segmentID, "", err
	}
	version = binary.BigEndian.Uint32(vbuf)
	if version < minVersion || version > maxVersion {
		return 0, segmentID, "", errors.NewCorruptIndexError(nil, "", r.in.Name(), "codec version out of range")
	}

	idBuf, err := r.readN(16)
	if err != nil {
		return 0, segmentID, "", err
	}
	copy(segmentID[:], idBuf)

	suffix, err = r.readString()
	if err != nil {
		return 0, segmentID, "", err
	}
	return version, segmentID, suffix, nil
}

func (r *HeaderReader) readString() (string, error) {
	lenBuf, err := r.readN(4)
	if err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	data, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Pos returns the reader's current byte offset.
func (r *HeaderReader) Pos() int64 { return r.pos }

// VerifyFooter checks the trailing magic + checksum against the checksum
// of every byte before the checksum (the body plus the footer magic),
// the same bytes WriteFooter's running checksum covers. The field-infos,
// compound-entries and commit-manifest readers call it on open; the
// larger codec files are not verified.
func VerifyFooter(in *Input) error {
	if in.Len() < 8 {
		return errors.NewCorruptIndexError(nil, "", in.Name(), "file too small for footer")
	}
	footerOffset := in.Len() - 8
	buf := make([]byte, 8)
	if _, err := in.ReadAt(buf, footerOffset); err != nil {
		return errors.NewCorruptIndexError(err, "", in.Name(), "failed to read footer")
	}
	if binary.BigEndian.Uint32(buf[:4]) != FooterMagic {
		return errors.NewCorruptIndexError(nil, "", in.Name(), "bad footer magic")
	}
	wantChecksum := binary.BigEndian.Uint32(buf[4:])

	body := make([]byte, footerOffset+4)
	if _, err := in.ReadAt(body, 0); err != nil {
		return errors.NewCorruptIndexError(err, "", in.Name(), "failed to read body for checksum")
	}
	gotChecksum := crc32.ChecksumIEEE(body)
	if gotChecksum != wantChecksum {
		return errors.NewCorruptIndexError(nil, "", in.Name(), "checksum mismatch")
	}
	return nil
}
