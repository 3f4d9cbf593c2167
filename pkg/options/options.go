// Package options provides data structures and functions for configuring
// a lumen index. It defines the parameters that control flush/merge
// behavior, commit retention, the codec variant, and the scoring model,
// following a functional-options pattern.
package options

import (
	"strings"
	"time"
)

// MergeSchedulerKind selects how merges are dispatched to background work.
type MergeSchedulerKind string

const (
	// SerialMergeScheduler runs merges one at a time on the calling thread.
	SerialMergeScheduler MergeSchedulerKind = "serial"
	// ConcurrentMergeScheduler runs up to N merges on background goroutines.
	ConcurrentMergeScheduler MergeSchedulerKind = "concurrent"
)

// MergeScheduler configures how the writer dispatches merges.
type MergeScheduler struct {
	Kind MergeSchedulerKind `json:"kind"`
	// Concurrency bounds how many merges the concurrent scheduler runs
	// at once. Ignored by SerialMergeScheduler.
	Concurrency int `json:"concurrency"`
}

// MergePolicyKind selects the segment-selection strategy for merges.
type MergePolicyKind string

const (
	// TieredMergePolicy merges automatically once the segment count
	// exceeds MaxSegmentsPerTier; segments are not grouped into tiers by
	// size.
	TieredMergePolicy MergePolicyKind = "tiered"
	// LogByteSizeMergePolicy selects merges exactly as TieredMergePolicy
	// does; segment byte sizes and LevelSizeBase are not consulted.
	LogByteSizeMergePolicy MergePolicyKind = "logByteSize"
	// NoMergePolicy disables automatic merge selection; only forceMerge
	// produces merged segments.
	NoMergePolicy MergePolicyKind = "noMerges"
)

// MergePolicy configures which segments a merge scheduler selects.
type MergePolicy struct {
	Kind MergePolicyKind `json:"kind"`

	// MaxSegmentsPerTier caps how many segments may accumulate in one
	// tier (TieredMergePolicy) before a merge is triggered.
	MaxSegmentsPerTier int `json:"maxSegmentsPerTier"`
	// MaxMergeAtOnce caps how many segments a single merge operation
	// combines.
	MaxMergeAtOnce int `json:"maxMergeAtOnce"`
	// MaxMergedSegmentMB is accepted as configuration; merge selection
	// does not read it, so no candidate is excluded by size.
	MaxMergedSegmentMB int `json:"maxMergedSegmentMB"`

	// LevelSizeBase is the bucket multiplier for LogByteSizeMergePolicy.
	LevelSizeBase float64 `json:"levelSizeBase"`
}

// CommitPolicyKind selects which prior commits are retained on disk.
type CommitPolicyKind string

const (
	// RetainOnlyLastCommit names keeping only the most recent commit.
	RetainOnlyLastCommit CommitPolicyKind = "retain-only-last"
	// RetainLastNCommits names keeping the N most recent commits.
	RetainLastNCommits CommitPolicyKind = "retain-N"
	// RetainByPredicateCommits names leaving the retain decision to
	// Predicate.
	RetainByPredicateCommits CommitPolicyKind = "retain-by-predicate"
)

// CommitPolicy names which historical commits to keep once newer
// commits exist. The engine does not read it and deletes no commit
// files, so every `segments_<gen>` it writes stays on disk.
type CommitPolicy struct {
	Kind CommitPolicyKind `json:"kind"`
	// RetainCount is used by RetainLastNCommits.
	RetainCount int `json:"retainCount"`
	// Predicate is used by RetainByPredicateCommits; a commit generation
	// is kept when Predicate returns true. Nil means "keep everything".
	Predicate func(generation uint64) bool `json:"-"`
}

// SimilarityKind selects the scoring model a searcher uses.
type SimilarityKind string

const (
	SimilarityBM25        SimilarityKind = "bm25"
	SimilarityClassicTFIDF SimilarityKind = "classic-tfidf"
	SimilarityDFR         SimilarityKind = "dfr"
	SimilarityAxiomaticF2LOG SimilarityKind = "axiomatic-f2log"
	SimilarityBoolean     SimilarityKind = "boolean"
)

// Similarity configures the scoring model. Only BM25 and Boolean are
// implemented by the core; the others are accepted as configuration
// values and rejected by query.NewSearcher with a ValidationError
// (INVALID_INPUT).
type Similarity struct {
	Kind SimilarityKind `json:"kind"`
	// K1 and B are the BM25 tuning constants (defaults 1.2 and 0.75).
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

// segmentOptions holds segment file naming settings. The engine does not
// read them: it writes segment files directly under DataDir and names
// segments with DefaultSegmentPrefix.
type segmentOptions struct {
	// Directory is a subdirectory name (relative to DataDir) for segment
	// files.
	Directory string `json:"directory"`
	// Prefix is a filename prefix for segment names, which
	// seginfo.GenerateSegmentName shapes as `prefix_NNNNN`.
	Prefix string `json:"prefix"`
}

// Options holds every configuration field recognized by a lumen index.
type Options struct {
	// DataDir is the base path under which all segment and commit files
	// live.
	DataDir string `json:"dataDir"`

	// RamBufferMB is the RAM threshold, per writer, that triggers an
	// automatic flush of the active per-thread builders into a new
	// segment. Default 16.
	RamBufferMB int `json:"ramBufferMB"`

	// MaxBufferedDocs is an alternative flush threshold measured in
	// buffered document count rather than RAM. Zero disables this
	// threshold (RamBufferMB alone governs flush).
	MaxBufferedDocs int `json:"maxBufferedDocs"`

	// UseCompoundFile packs a segment's small files (currently only the
	// field infos) into one container file. Default true.
	UseCompoundFile bool `json:"useCompoundFile"`

	// MaxClauseCount bounds how many leaf clauses a BooleanQuery rewrite
	// may expand to before failing with TooManyClauses. Default 1024.
	MaxClauseCount int `json:"maxClauseCount"`

	// MaxThreadStates bounds how many concurrent writer goroutines get
	// their own private per-thread builder at once. A goroutine calling
	// AddDocument beyond this count blocks until one is released. Default 8.
	MaxThreadStates int `json:"maxThreadStates"`

	// CompactInterval is accepted as configuration; the merge schedulers
	// do not read it and check for merge candidates only when a segment
	// is added.
	CompactInterval time.Duration `json:"compactInterval"`

	MergeScheduler  MergeScheduler  `json:"mergeScheduler"`
	MergePolicy     MergePolicy     `json:"mergePolicy"`
	CommitPolicy    CommitPolicy    `json:"commitPolicy"`
	Similarity      Similarity      `json:"similarity"`

	// Codec selects the postings/docValues/points/storedFields format
	// variant, allowing backward compatibility across format versions.
	// Only the canonical version is implemented; this field is
	// forward-looking configuration surface.
	Codec string `json:"codec"`

	SegmentOptions *segmentOptions `json:"segmentOptions"`
}

// OptionFunc is a function type that modifies an index's configuration.
type OptionFunc func(*Options)

// WithDefaultOptions resets every field to NewDefaultOptions' values.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// WithDataDir sets the primary data directory.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithRamBufferMB sets the RAM-threshold flush trigger.
func WithRamBufferMB(mb int) OptionFunc {
	return func(o *Options) {
		if mb > 0 {
			o.RamBufferMB = mb
		}
	}
}

// WithMaxBufferedDocs sets the doc-count flush trigger.
func WithMaxBufferedDocs(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.MaxBufferedDocs = n
		}
	}
}

// WithUseCompoundFile toggles compound-file packing of small segment files.
func WithUseCompoundFile(enabled bool) OptionFunc {
	return func(o *Options) { o.UseCompoundFile = enabled }
}

// WithMaxClauseCount sets the BooleanQuery clause-count ceiling.
func WithMaxClauseCount(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.MaxClauseCount = n
		}
	}
}

// WithMaxThreadStates sets the size of the per-thread builder pool.
func WithMaxThreadStates(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.MaxThreadStates = n
		}
	}
}

// WithCompactInterval sets the merge scheduler's idle sweep interval.
func WithCompactInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.CompactInterval = interval
		}
	}
}

// WithMergeScheduler selects the merge scheduler kind and concurrency.
func WithMergeScheduler(s MergeScheduler) OptionFunc {
	return func(o *Options) { o.MergeScheduler = s }
}

// WithMergePolicy selects the merge-candidate selection policy.
func WithMergePolicy(p MergePolicy) OptionFunc {
	return func(o *Options) { o.MergePolicy = p }
}

// WithCommitPolicy selects how many past commits are retained.
func WithCommitPolicy(p CommitPolicy) OptionFunc {
	return func(o *Options) { o.CommitPolicy = p }
}

// WithSimilarity selects the scoring model.
func WithSimilarity(s Similarity) OptionFunc {
	return func(o *Options) { o.Similarity = s }
}

// WithCodec selects the codec format-version identifier.
func WithCodec(codec string) OptionFunc {
	return func(o *Options) {
		codec = strings.TrimSpace(codec)
		if codec != "" {
			o.Codec = codec
		}
	}
}

// WithSegmentDir sets the subdirectory segment files are stored under.
func WithSegmentDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.SegmentOptions.Directory = directory
		}
	}
}

// WithSegmentPrefix sets the filename prefix for segment files.
func WithSegmentPrefix(prefix string) OptionFunc {
	return func(o *Options) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			o.SegmentOptions.Prefix = prefix
		}
	}
}
