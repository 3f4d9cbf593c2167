package options

import "time"

const (
	// DefaultDataDir is the base directory used when no other directory is
	// specified during initialization.
	DefaultDataDir = "/var/lib/lumen"

	// DefaultRamBufferMB is the default per-writer RAM threshold (§6).
	DefaultRamBufferMB = 16

	// DefaultMaxClauseCount bounds BooleanQuery clause expansion (§7).
	DefaultMaxClauseCount = 1024

	// DefaultMaxThreadStates sizes the per-thread builder pool (§6, §7).
	DefaultMaxThreadStates = 8

	// DefaultCompactInterval is the default CompactInterval value (not
	// read by the merge schedulers).
	DefaultCompactInterval = time.Minute * 5

	// DefaultMergeConcurrency bounds how many merges the concurrent
	// scheduler runs at once.
	DefaultMergeConcurrency = 2

	// Tiered merge policy defaults.
	DefaultMaxSegmentsPerTier = 10
	DefaultMaxMergeAtOnce     = 10
	DefaultMaxMergedSegmentMB = 5 * 1024
	DefaultLevelSizeBase      = 2.0

	// DefaultRetainCommits is used by RetainLastNCommits.
	DefaultRetainCommits = 2

	// DefaultBM25K1 / DefaultBM25B are the BM25 scoring constants (§4.8).
	DefaultBM25K1 = 1.2
	DefaultBM25B  = 0.75

	// DefaultSegmentDirectory / DefaultSegmentPrefix name segment files.
	DefaultSegmentDirectory = "segments"
	DefaultSegmentPrefix    = "seg"

	// DefaultCodec is the canonical format version this module implements.
	DefaultCodec = "Lumen90"
)

// NewDefaultOptions returns the default configuration for a lumen index.
func NewDefaultOptions() Options {
	return Options{
		DataDir:         DefaultDataDir,
		RamBufferMB:     DefaultRamBufferMB,
		MaxBufferedDocs: 0,
		UseCompoundFile: true,
		MaxClauseCount:  DefaultMaxClauseCount,
		MaxThreadStates: DefaultMaxThreadStates,
		CompactInterval: DefaultCompactInterval,
		Codec:           DefaultCodec,
		MergeScheduler: MergeScheduler{
			Kind:        ConcurrentMergeScheduler,
			Concurrency: DefaultMergeConcurrency,
		},
		MergePolicy: MergePolicy{
			Kind:               TieredMergePolicy,
			MaxSegmentsPerTier: DefaultMaxSegmentsPerTier,
			MaxMergeAtOnce:     DefaultMaxMergeAtOnce,
			MaxMergedSegmentMB: DefaultMaxMergedSegmentMB,
			LevelSizeBase:      DefaultLevelSizeBase,
		},
		CommitPolicy: CommitPolicy{
			Kind:        RetainOnlyLastCommit,
			RetainCount: DefaultRetainCommits,
		},
		Similarity: Similarity{
			Kind: SimilarityBM25,
			K1:   DefaultBM25K1,
			B:    DefaultBM25B,
		},
		SegmentOptions: &segmentOptions{
			Directory: DefaultSegmentDirectory,
			Prefix:    DefaultSegmentPrefix,
		},
	}
}
