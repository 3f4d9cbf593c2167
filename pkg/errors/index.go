package errors

// IndexError provides specialized error handling for a segment's
// in-memory lookup structures: doc-values/point-values field lookups,
// per-segment delete operations, and segment/commit filename parsing.
// This structure extends the base error system with that context while
// properly supporting method chaining through all base error methods.
type IndexError struct {
	// Embed the base error to inherit all standard error functionality
	// including error chaining, structured details, and error codes.
	*baseError

	// Describes what index operation was being performed when the
	// error occurred (e.g., "DeleteBySegment", "ParseCommitGeneration").
	// This context helps understand the system state and user actions
	// that led to the error condition.
	operation string

	// Identifies which position in the engine's current segment slice
	// was out of range, for errors raised by per-segment operations like
	// DeleteBySegment. -1 when not applicable.
	segmentIndex int
}

// NewIndexError creates a new index-specific error with the provided context.
// This constructor follows the same pattern as other error types in the system,
// taking a causing error, error code, and descriptive message.
func NewIndexError(err error, code ErrorCode, msg string) *IndexError {
	return &IndexError{
		baseError:    NewBaseError(err, code, msg),
		segmentIndex: -1,
	}
}

// Override base error methods to return *IndexError instead of *baseError.

// WithMessage updates the error message while maintaining the IndexError type.
func (ie *IndexError) WithMessage(msg string) *IndexError {
	ie.baseError.WithMessage(msg)
	return ie
}

// WithCode sets the error code while preserving the IndexError type.
func (ie *IndexError) WithCode(code ErrorCode) *IndexError {
	ie.baseError.WithCode(code)
	return ie
}

// WithDetail adds contextual information while maintaining the IndexError type.
func (ie *IndexError) WithDetail(key string, value any) *IndexError {
	ie.baseError.WithDetail(key, value)
	return ie
}

// WithOperation records what index operation was being performed.
func (ie *IndexError) WithOperation(operation string) *IndexError {
	ie.operation = operation
	return ie
}

// WithSegmentIndex records which position in the current segment slice
// was invalid.
func (ie *IndexError) WithSegmentIndex(segmentIndex int) *IndexError {
	ie.segmentIndex = segmentIndex
	return ie
}

// Operation returns the name of the operation that was being performed.
func (ie *IndexError) Operation() string {
	return ie.operation
}

// SegmentIndex returns the invalid segment-slice position, or -1 if none
// was recorded.
func (ie *IndexError) SegmentIndex() int {
	return ie.segmentIndex
}

// NewSegmentIndexError reports a per-segment operation (e.g.
// Engine.DeleteBySegment) given a position outside the engine's current
// segment slice.
func NewSegmentIndexError(segmentIndex, segmentCount int) *IndexError {
	return NewIndexError(nil, ErrorCodeIndexInvalidSegmentID, "segment index out of range").
		WithOperation("DeleteBySegment").
		WithSegmentIndex(segmentIndex).
		WithDetail("segmentCount", segmentCount)
}
