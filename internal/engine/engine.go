// Package engine provides the core database engine implementation for the
// Lumen search system.
//
// The engine serves as the central coordinator and entry point for all
// index-mutation operations. It orchestrates the interaction between the
// main subsystems:
//   - Index: per-thread in-memory segment builders buffering new documents
//   - Segment: flushing a builder to disk and merging existing segments
//   - Directory: persistent storage of segment files and commit manifests
//
// It implements a thread-safe interface with proper lifecycle management,
// ensuring resources are properly initialized and cleaned up. It uses
// atomic operations for state management to provide consistent behavior
// across concurrent operations: many segments plus a merge scheduler
// that keeps their number bounded.
package engine

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iamNilotpal/lumen/internal/codec/postings"
	"github.com/iamNilotpal/lumen/internal/index"
	"github.com/iamNilotpal/lumen/internal/segment"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
	"github.com/iamNilotpal/lumen/pkg/options"
	"github.com/iamNilotpal/lumen/pkg/seginfo"
)

// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
var ErrEngineClosed = stdErrors.New("operation failed: cannot access closed engine")

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// liveSegment is one segment currently visible to readers: its name and
// a Reader for queries. Deletes mark documents through the Reader, and
// the engine persists that segment's live-docs file right away.
type liveSegment struct {
	name   string
	reader *segment.Reader
}

// threadState is one slot of the thread-state pool: a private builder a
// single writing goroutine owns exclusively for the duration of one
// AddDocument call. No engine-wide lock is held while the goroutine
// tokenizes and buffers into it — only slot acquire/release and the
// occasional flush take the engine mutex.
type threadState struct {
	builder *index.Builder
}

// Engine is the central coordinator for index mutation: it owns the
// thread-state pool of active per-thread builders, the set of flushed
// segments, and the merge scheduler that keeps their count bounded. It
// acts as the primary interface internal to pkg/ignite's Writer, and
// manages the lifecycle of all internal components.
type Engine struct {
	opts *options.Options
	log  *zap.SugaredLogger
	dir  *filesys.FSDirectory

	closed atomic.Bool
	unlock func() error

	// mu guards everything below except the pool bookkeeping, which has
	// its own lock: the shared segment list, commit generation, and
	// segment-ID counter every flush/merge mutates.
	mu         sync.Mutex
	generation uint64
	segments   []*liveSegment
	nextSegID  uint64
	mergeSched mergeScheduler

	// slotsMu/slotsCond guard the thread-state pool. allSlots is fixed
	// at construction time (one builder per configured slot); freeSlots
	// is the LIFO stack of currently-unowned slots.
	slotsMu   sync.Mutex
	slotsCond *sync.Cond
	allSlots  []*threadState
	freeSlots []*threadState
}

// New creates and initializes a new Engine instance with the provided
// configuration. This constructor follows a dependency-injection pattern,
// making the engine testable and allowing different configurations in
// different environments.
func New(ctx context.Context, config *Config) (*Engine, error) {
	if config == nil || config.Options == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "engine configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	dir, err := filesys.NewFSDirectory(config.Options.DataDir)
	if err != nil {
		return nil, err
	}
	unlock, err := dir.Lock()
	if err != nil {
		return nil, err
	}

	e := &Engine{opts: config.Options, log: config.Logger, dir: dir, unlock: unlock}
	e.slotsCond = sync.NewCond(&e.slotsMu)
	e.mergeSched = newMergeScheduler(config.Options.MergeScheduler, e)

	if err := e.loadLatestCommit(); err != nil {
		unlock()
		return nil, err
	}

	slotCount := config.Options.MaxThreadStates
	if slotCount <= 0 {
		slotCount = 1
	}
	for i := 0; i < slotCount; i++ {
		builder, err := index.New(ctx, &index.Config{Logger: config.Logger})
		if err != nil {
			unlock()
			return nil, err
		}
		ts := &threadState{builder: builder}
		e.allSlots = append(e.allSlots, ts)
		e.freeSlots = append(e.freeSlots, ts)
	}

	return e, nil
}

// acquireSlot blocks until a thread-state slot is free, then removes it
// from the free stack (LIFO: the most recently released slot is handed
// out first) and returns it for the exclusive use of the caller.
func (e *Engine) acquireSlot() *threadState {
	e.slotsMu.Lock()
	defer e.slotsMu.Unlock()
	for len(e.freeSlots) == 0 {
		e.slotsCond.Wait()
	}
	n := len(e.freeSlots) - 1
	ts := e.freeSlots[n]
	e.freeSlots = e.freeSlots[:n]
	return ts
}

// releaseSlot returns ts to the free stack and wakes one waiter, if any.
func (e *Engine) releaseSlot(ts *threadState) {
	e.slotsMu.Lock()
	e.freeSlots = append(e.freeSlots, ts)
	e.slotsCond.Signal()
	e.slotsMu.Unlock()
}

// acquireAllSlots blocks until every slot in the pool is free and holds
// all of them, guaranteeing no other goroutine can be mid-AddDocument
// against any builder. Used by Commit and ForceMerge, which must flush
// every thread state's buffered documents.
func (e *Engine) acquireAllSlots() []*threadState {
	e.slotsMu.Lock()
	defer e.slotsMu.Unlock()
	for len(e.freeSlots) < len(e.allSlots) {
		e.slotsCond.Wait()
	}
	all := e.freeSlots
	e.freeSlots = nil
	return all
}

// releaseAllSlots returns every slot acquired by acquireAllSlots and
// wakes all waiters.
func (e *Engine) releaseAllSlots(slots []*threadState) {
	e.slotsMu.Lock()
	e.freeSlots = append(e.freeSlots, slots...)
	e.slotsCond.Broadcast()
	e.slotsMu.Unlock()
}

func (e *Engine) loadLatestCommit() error {
	gen, ok, err := seginfo.LatestCommitGeneration(e.dir)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	manifest, err := seginfo.ReadManifest(e.dir, gen)
	if err != nil {
		return err
	}
	e.generation = manifest.Generation
	for _, entry := range manifest.Segments {
		r, err := segment.OpenReader(e.dir, entry.Name, entry.DelGen)
		if err != nil {
			return err
		}
		e.segments = append(e.segments, &liveSegment{name: entry.Name, reader: r})
	}
	return nil
}

// AddDocument buffers a new document in a thread-state slot's private
// builder, then flushing that slot if its own RAM/doc-count threshold
// has been crossed. The slot is acquired and released around the call
// but the engine-wide mutex is only taken for the flush itself — the
// token stream that fills the builder runs with no lock held across it,
// so concurrent callers indexing into different slots never block each
// other.
func (e *Engine) AddDocument(fields []index.Field) (uint32, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	ts := e.acquireSlot()
	defer e.releaseSlot(ts)

	docID, err := ts.builder.AddDocument(fields)
	if err != nil {
		return 0, err
	}

	if e.shouldFlushSlot(ts) {
		if err := e.flushSlot(ts); err != nil {
			return docID, err
		}
	}
	return docID, nil
}

func (e *Engine) shouldFlushSlot(ts *threadState) bool {
	if ts.builder.MaxDoc() == 0 {
		return false
	}
	if e.opts.MaxBufferedDocs > 0 && ts.builder.MaxDoc() >= uint32(e.opts.MaxBufferedDocs) {
		return true
	}
	ramMB := ts.builder.RamBytesUsed() / (1024 * 1024)
	return e.opts.RamBufferMB > 0 && ramMB >= int64(e.opts.RamBufferMB)
}

// flushSlot writes ts's buffered documents out as a new segment and
// gives ts a fresh builder. The caller must already hold ts exclusively
// (via acquireSlot/acquireAllSlots); only the shared segment-list
// mutation takes e.mu, not the token-stream work that filled ts.
func (e *Engine) flushSlot(ts *threadState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fresh, err := e.flushBuilderLocked(ts.builder)
	if err != nil {
		return err
	}
	ts.builder = fresh
	return nil
}

// flushAllLocked flushes every slot's builder. Callers must hold e.mu
// and must already own every slot in slots (via acquireAllSlots).
func (e *Engine) flushAllLocked(slots []*threadState) error {
	for _, ts := range slots {
		fresh, err := e.flushBuilderLocked(ts.builder)
		if err != nil {
			return err
		}
		ts.builder = fresh
	}
	return nil
}

// flushBuilderLocked writes b out as a new segment, if it holds any
// documents, and returns a fresh builder to replace it. Callers must
// hold e.mu.
func (e *Engine) flushBuilderLocked(b *index.Builder) (*index.Builder, error) {
	if b.MaxDoc() == 0 {
		return b, nil
	}

	name := seginfo.GenerateSegmentName(e.nextSegID, e.segmentPrefix())
	e.nextSegID++

	if _, err := segment.Flush(e.dir, name, b, e.opts.UseCompoundFile); err != nil {
		return nil, err
	}
	if err := b.Close(); err != nil {
		return nil, err
	}

	r, err := segment.OpenReader(e.dir, name, 0)
	if err != nil {
		return nil, err
	}
	e.segments = append(e.segments, &liveSegment{name: name, reader: r})

	fresh, err := index.New(context.Background(), &index.Config{Logger: e.log})
	if err != nil {
		return nil, err
	}

	e.mergeSched.onSegmentAdded(len(e.segments))
	return fresh, nil
}

func (e *Engine) segmentPrefix() string {
	return options.DefaultSegmentPrefix
}

// Commit flushes any buffered documents and publishes the current set of
// segments as a new commit generation — the single atomic operation that
// makes new documents visible to readers opening after it returns.
func (e *Engine) Commit() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	slots := e.acquireAllSlots()
	defer e.releaseAllSlots(slots)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitLocked(slots)
}

func (e *Engine) commitLocked(slots []*threadState) error {
	if err := e.flushAllLocked(slots); err != nil {
		return err
	}

	e.generation++
	m := seginfo.Manifest{Generation: e.generation}
	for _, s := range e.segments {
		m.Segments = append(m.Segments, seginfo.SegmentManifestEntry{
			Name:     s.name,
			DocCount: int(s.reader.NumDocs()),
		})
	}
	return seginfo.WriteManifest(e.dir, m)
}

// ForceMerge reduces the segment count to at most maxSegments by
// repeatedly merging the smallest candidates.
func (e *Engine) ForceMerge(maxSegments int) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	slots := e.acquireAllSlots()
	defer e.releaseAllSlots(slots)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.flushAllLocked(slots); err != nil {
		return err
	}
	for len(e.segments) > maxSegments && len(e.segments) > 1 {
		if err := e.mergeOnceLocked(); err != nil {
			return err
		}
	}
	return e.commitLocked(slots)
}

// mergeOnceLocked merges the MaxMergeAtOnce smallest segments (or all
// remaining ones, whichever is fewer) into one new segment. Callers must
// hold e.mu.
func (e *Engine) mergeOnceLocked() error {
	n := e.opts.MergePolicy.MaxMergeAtOnce
	if n <= 1 {
		n = 2
	}
	if n > len(e.segments) {
		n = len(e.segments)
	}
	// Move the n segments with the fewest live documents to the front.
	order := append([]*liveSegment(nil), e.segments...)
	for i := 0; i < n; i++ {
		for j := i + 1; j < len(order); j++ {
			if order[j].reader.NumDocs() < order[i].reader.NumDocs() {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	victims := order[:n]

	readers := make([]*segment.Reader, len(victims))
	for i, v := range victims {
		readers[i] = v.reader
	}

	builder, err := index.New(context.Background(), &index.Config{Logger: e.log})
	if err != nil {
		return err
	}

	name := seginfo.GenerateSegmentName(e.nextSegID, e.segmentPrefix())
	e.nextSegID++

	if _, err := segment.Merge(e.dir, name, builder, readers, e.opts.UseCompoundFile); err != nil {
		return err
	}
	if err := builder.Close(); err != nil {
		return err
	}

	var closeErr error
	for _, v := range victims {
		closeErr = multierr.Append(closeErr, v.reader.Close())
	}
	if closeErr != nil {
		return closeErr
	}

	merged, err := segment.OpenReader(e.dir, name, 0)
	if err != nil {
		return err
	}

	e.segments = append([]*liveSegment{{name: name, reader: merged}}, order[n:]...)
	return nil
}

// DeleteByTerm tombstones every live document across every segment
// whose field contains term, returning the number of documents newly
// marked deleted. Deletions are applied in RAM immediately and
// persisted to each touched segment's live-docs file right away, so
// they survive a crash even before the next Commit. (Files left behind
// by a failed segment or manifest write are not removed on the next
// open: New deletes no files.)
func (e *Engine) DeleteByTerm(field string, term []byte) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var total int
	for _, s := range e.segments {
		fi, ok := s.reader.FieldByName(field)
		if !ok {
			continue
		}
		pe, found, err := s.reader.PostingsEnum(fi.Number, term)
		if err != nil {
			return total, err
		}
		if !found {
			continue
		}
		var touched bool
		for doc, err := pe.NextDoc(); doc != postings.NoMoreDocs; doc, err = pe.NextDoc() {
			if err != nil {
				return total, err
			}
			if s.reader.MarkDeleted(doc) {
				total++
				touched = true
			}
		}
		if touched {
			if err := s.reader.PersistLiveDocs(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// DeleteBySegment tombstones docIDs within the segment at position
// segIdx in the slice last returned by Readers, persisting the updated
// live-docs set immediately. It backs pkg/ignite's query-driven delete,
// which resolves a query to per-segment hits via internal/query before
// calling down into this narrower, query-agnostic primitive — keeping
// internal/engine free of a dependency on the query-evaluation layer.
func (e *Engine) DeleteBySegment(segIdx int, docIDs []uint32) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if segIdx < 0 || segIdx >= len(e.segments) {
		return 0, errors.NewSegmentIndexError(segIdx, len(e.segments))
	}
	r := e.segments[segIdx].reader
	var n int
	for _, doc := range docIDs {
		if r.MarkDeleted(doc) {
			n++
		}
	}
	if n > 0 {
		if err := r.PersistLiveDocs(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Readers returns the engine's current live segment readers, for use by
// internal/query. The slice is owned by the engine; callers must not
// mutate it.
func (e *Engine) Readers() []*segment.Reader {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*segment.Reader, len(e.segments))
	for i, s := range e.segments {
		out[i] = s.reader
	}
	return out
}

// Close gracefully shuts down the engine and releases all associated
// resources: an atomic CAS guards against double-close, then every
// owned resource is released.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	slots := e.acquireAllSlots()
	defer e.releaseAllSlots(slots)

	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	for _, ts := range slots {
		err = multierr.Append(err, ts.builder.Close())
	}
	for _, s := range e.segments {
		err = multierr.Append(err, s.reader.Close())
	}
	if e.unlock != nil {
		err = multierr.Append(err, e.unlock())
	}
	err = multierr.Append(err, e.dir.Close())
	return err
}
