package errors

import stdErrors "errors"

// EngineError is a specialized error type for writer/reader/searcher
// lifecycle and codec-framing failures — the kinds enumerated in the
// engine's error-signalling surface (corrupt segment, lock contention,
// use-after-close, missing commit, clause-count overflow).
type EngineError struct {
	*baseError
	segmentName string // Segment (file prefix) involved, if any.
	file        string // Specific file within the segment, if any.
	generation  uint64 // Commit generation involved, if any.
}

// NewEngineError creates a new engine-specific error.
func NewEngineError(err error, code ErrorCode, msg string) *EngineError {
	return &EngineError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while preserving the EngineError type.
func (ee *EngineError) WithMessage(msg string) *EngineError {
	ee.baseError.WithMessage(msg)
	return ee
}

// WithDetail adds contextual information while preserving the EngineError type.
func (ee *EngineError) WithDetail(key string, value any) *EngineError {
	ee.baseError.WithDetail(key, value)
	return ee
}

// WithSegmentName records which segment was involved.
func (ee *EngineError) WithSegmentName(name string) *EngineError {
	ee.segmentName = name
	return ee
}

// WithFile records which codec file within the segment was involved.
func (ee *EngineError) WithFile(file string) *EngineError {
	ee.file = file
	return ee
}

// WithGeneration records which commit generation was involved.
func (ee *EngineError) WithGeneration(gen uint64) *EngineError {
	ee.generation = gen
	return ee
}

// SegmentName returns the segment name recorded on the error, if any.
func (ee *EngineError) SegmentName() string { return ee.segmentName }

// File returns the codec file name recorded on the error, if any.
func (ee *EngineError) File() string { return ee.file }

// Generation returns the commit generation recorded on the error, if any.
func (ee *EngineError) Generation() uint64 { return ee.generation }

// IsEngineError checks if err is or wraps an *EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return stdErrors.As(err, &ee)
}

// AsEngineError extracts an *EngineError from the error chain.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if stdErrors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// NewCorruptIndexError reports a header/footer/checksum/version mismatch
// in a specific segment file. Codec decoders never swallow this; it
// surfaces to the innermost reader with the offending file name attached.
func NewCorruptIndexError(cause error, segmentName, file, reason string) *EngineError {
	return NewEngineError(cause, ErrorCodeCorruptIndex, "segment file is corrupt: "+reason).
		WithSegmentName(segmentName).
		WithFile(file)
}

// NewLockObtainFailedError reports that a directory is already held by
// another writer.
func NewLockObtainFailedError(path string) *EngineError {
	return NewEngineError(nil, ErrorCodeLockObtainFailed, "directory already locked by another writer").
		WithDetail("path", path)
}

// NewAlreadyClosedError reports use of a writer/reader/searcher after Close.
func NewAlreadyClosedError(component string) *EngineError {
	return NewEngineError(nil, ErrorCodeAlreadyClosed, "operation failed: component is closed").
		WithDetail("component", component)
}

// NewIndexNotFoundError reports that no segments_* manifest exists in dir.
func NewIndexNotFoundError(dir string) *EngineError {
	return NewEngineError(nil, ErrorCodeIndexNotFound, "no segments_* commit file found").
		WithDetail("dir", dir)
}

// NewTooManyClausesError reports that boolean query expansion exceeded
// maxClauseCount.
func NewTooManyClausesError(count, max int) *EngineError {
	return NewEngineError(nil, ErrorCodeTooManyClauses, "boolean query clause count exceeds limit").
		WithDetail("count", count).
		WithDetail("max", max)
}

// NewCancelledError reports a search aborted by its cancellation signal.
func NewCancelledError() *EngineError {
	return NewEngineError(nil, ErrorCodeCancelled, "search cancelled")
}
