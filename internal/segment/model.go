// Package segment owns one segment's on-disk lifecycle: flush (write a
// builder's buffered documents out as a new segment's files), opening a
// segment for reads, and merging multiple segments into one. Segments
// are immutable: many codec files sharing one name prefix, opened
// read-only and reference counted rather than appended to.
package segment

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/iamNilotpal/lumen/internal/codec/docvalues"
	"github.com/iamNilotpal/lumen/pkg/options"
)

// FieldInfo is the durable, per-segment field description written into
// the segment's field-infos file, mirroring internal/index.FieldInfo but
// independent of the in-RAM builder's lifetime.
type FieldInfo struct {
	Number     int            `json:"number"`
	Name       string         `json:"name"`
	Kind       int            `json:"kind"`
	DocValue   docvalues.Type `json:"docValue"`
	PointDims  int            `json:"pointDims"`
	PointBytes int            `json:"pointBytes"`
}

// TermEntry is one term's postings metadata as persisted into the
// field-infos file's term table. Query-time term lookups go through the
// FST; this table is what Merge enumerates a segment's terms from.
type TermEntry struct {
	Term           string `json:"term"`
	DocFreq        int    `json:"docFreq"`
	TotalTermFreq  int64  `json:"totalTermFreq"`
	DocStartFP     int64  `json:"docStartFP"`
	PosStartFP     int64  `json:"posStartFP"`
	PayStartFP     int64  `json:"payStartFP"`
	HasSingleton   bool   `json:"hasSingleton"`
	SingletonDocID uint32 `json:"singletonDocId"`
	LastPosBlockOffset int64 `json:"lastPosBlockOffset"`
	SkipOffset     int64  `json:"skipOffset"`
}

// FieldSummary bundles a field's FieldInfo with its flushed locations.
type FieldSummary struct {
	Info           FieldInfo           `json:"info"`
	Terms          []TermEntry         `json:"terms,omitempty"`
	DocValue       docvalues.FieldMeta `json:"docValue"`
	// Norm is the per-doc quantized field-length doc-values field backing
	// BM25's dl/avgdl length normalization. Zero value for fields that
	// aren't indexed.
	Norm           docvalues.FieldMeta `json:"norm"`
	AvgFieldLength float64             `json:"avgFieldLength"`
	PointMin       []byte              `json:"pointMin,omitempty"`
	PointMax       []byte              `json:"pointMax,omitempty"`
}

// Info is the decoded field-infos file for one segment: everything a
// Reader needs to reopen it without replaying the flush.
type Info struct {
	Name   string         `json:"name"`
	MaxDoc uint32         `json:"maxDoc"`
	Fields []FieldSummary `json:"fields"`
}

// Config configures the flush/merge entry points.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// closedFlag is embedded by Reader to guard against use-after-close.
type closedFlag struct {
	closed atomic.Bool
}
