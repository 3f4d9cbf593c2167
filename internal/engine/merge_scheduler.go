package engine

import (
	"github.com/iamNilotpal/lumen/pkg/options"
)

// mergeScheduler decides when a newly-added segment should trigger a
// merge, and whether that merge runs synchronously (blocking the caller
// that just flushed) or on a background goroutine. Segment merging folds
// what older storage engines call "compaction" into the same selection
// point a flush already passes through, so there is no separate
// compaction subsystem here.
type mergeScheduler interface {
	// onSegmentAdded is called with e.mu held, immediately after a flush
	// or merge adds a segment. It decides whether a merge should run now.
	onSegmentAdded(segmentCount int)
}

func newMergeScheduler(cfg options.MergeScheduler, e *Engine) mergeScheduler {
	switch cfg.Kind {
	case options.ConcurrentMergeScheduler:
		concurrency := cfg.Concurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		return &concurrentScheduler{engine: e, sem: make(chan struct{}, concurrency)}
	default:
		return &serialScheduler{engine: e}
	}
}

func (e *Engine) mergeCandidateLocked() bool {
	if e.opts.MergePolicy.Kind == options.NoMergePolicy {
		return false
	}
	threshold := e.opts.MergePolicy.MaxSegmentsPerTier
	if threshold <= 0 {
		threshold = 10
	}
	return len(e.segments) > threshold && len(e.segments) > 1
}

// serialScheduler runs merges synchronously on the goroutine that
// triggered the flush.
type serialScheduler struct {
	engine *Engine
}

func (s *serialScheduler) onSegmentAdded(segmentCount int) {
	for s.engine.mergeCandidateLocked() {
		if err := s.engine.mergeOnceLocked(); err != nil {
			s.engine.log.Errorw("background merge failed", "error", err)
			return
		}
	}
}

// concurrentScheduler dispatches merges onto background goroutines,
// bounded by a semaphore sized to MergeScheduler.Concurrency. Since
// onSegmentAdded runs with e.mu already held, the dispatched goroutine
// must acquire its own lock rather than reuse the caller's — it runs
// strictly after the flush that triggered it releases the mutex.
type concurrentScheduler struct {
	engine *Engine
	sem    chan struct{}
}

func (s *concurrentScheduler) onSegmentAdded(segmentCount int) {
	if !s.engine.mergeCandidateLocked() {
		return
	}
	select {
	case s.sem <- struct{}{}:
	default:
		return // a merge is already in flight; it will re-check on completion
	}
	go func() {
		defer func() { <-s.sem }()
		s.engine.mu.Lock()
		defer s.engine.mu.Unlock()
		for s.engine.mergeCandidateLocked() {
			if err := s.engine.mergeOnceLocked(); err != nil {
				s.engine.log.Errorw("background merge failed", "error", err)
				return
			}
		}
	}()
}
