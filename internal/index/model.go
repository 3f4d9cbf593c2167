package index

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/lumen/internal/codec/docvalues"
)

// FieldKind classifies how a field's values flow into the builder — a
// field's kind is fixed at its first use within a segment.
type FieldKind int

const (
	KindIndexed FieldKind = 1 << iota
	KindStored
	KindDocValue
	KindPoint
)

// Has reports whether fk includes flag.
func (fk FieldKind) Has(flag FieldKind) bool { return fk&flag != 0 }

// FieldInfo is a segment-local field definition, interned to a small
// integer the first time a document uses the field name.
type FieldInfo struct {
	Number      int
	Name        string
	Kind        FieldKind
	DocValue    docvalues.Type
	PointDims   int
	PointBytes  int // bytes per dimension
}

// Token is one occurrence of a term within an indexed field on the
// current document.
type Token struct {
	Term        []byte
	Position    int
	StartOffset int
	EndOffset   int
	Payload     []byte
}

// Field is one field's contribution to a single AddDocument call: the
// analyzed tokens (if indexed), the stored value (if stored), the
// doc-value (if any), and the point value (if any). Exactly the
// sub-fields matching Kind are populated. Kind, DocValueType, and the
// point dimensions are fixed by the field's first occurrence in the
// segment and ignored on later occurrences.
type Field struct {
	Name string
	Kind FieldKind

	DocValueType docvalues.Type
	PointDims    int
	PointBytes   int

	Tokens []Token

	StoredString string
	StoredBytes  []byte
	StoredInt    int64
	StoredKind   StoredKind

	DocValueString  string
	DocValueStrings []string // SortedSet
	DocValueNumeric int64
	DocValueBytes   []byte

	PointValue []byte
}

// StoredKind tags which StoredXxx field of a Field is populated.
type StoredKind int

const (
	StoredNone StoredKind = iota
	StoredString
	StoredBytes
	StoredInt
	StoredLong
	StoredFloat
	StoredDouble
)

// Config configures a new per-segment Builder.
type Config struct {
	Logger *zap.SugaredLogger
}
