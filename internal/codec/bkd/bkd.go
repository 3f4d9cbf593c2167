// Package bkd implements the block K-D tree point codec: balanced
// partitioning of fixed-width N-dimensional byte vectors tagged with
// docIds, a packed inner-node index for prune-without-decode range
// search, and the IntersectVisitor traversal contract.
package bkd

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/pkg/errors"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// MaxPointsInLeafNode is the default leaf capacity.
const MaxPointsInLeafNode = 1024

// MaxDims is the maximum number of dimensions a point may have.
const MaxDims = 8

// Point is one indexed N-dim byte vector tagged with its owning document.
type Point struct {
	DocID uint32
	Value []byte // len == NumDims * BytesPerDim
}

// Relation is the result of IntersectVisitor.Compare against a cell's
// bounding box.
type Relation int

const (
	CellInside Relation = iota
	CellOutside
	CellCrosses
)

// IntersectVisitor drives a range query over a BKD tree.
type IntersectVisitor interface {
	VisitDocID(docID uint32)
	VisitPoint(docID uint32, packedValue []byte)
	Compare(minPackedValue, maxPackedValue []byte) Relation
}

// treeNode is an in-memory node built bottom-up before serialization.
type treeNode struct {
	// inner node
	splitDim   int
	splitValue []byte
	left, right *treeNode

	// leaf node
	points []Point

	minValue []byte
	maxValue []byte
}

// EncodeInt64 packs v into 8 order-preserving big-endian bytes: flipping
// the sign bit makes unsigned byte-wise comparison agree with signed
// integer comparison, the same convention the BKD tests use for int32.
func EncodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v)^signBit64)
	return b
}

// DecodeInt64 reverses EncodeInt64.
func DecodeInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ signBit64)
}

const signBit64 = uint64(1) << 63

// Builder constructs a BKD tree in RAM from buffered points and
// serializes it as a packed index plus a leaf-block file.
type Builder struct {
	numDims      int
	bytesPerDim  int
	points       []Point
}

// NewBuilder begins a tree with fixed dimensionality and per-dimension
// byte width.
func NewBuilder(numDims, bytesPerDim int) (*Builder, error) {
	if numDims < 1 || numDims > MaxDims {
		return nil, errors.NewCorruptIndexError(nil, "", "", "numDims out of range 1..8")
	}
	return &Builder{numDims: numDims, bytesPerDim: bytesPerDim}, nil
}

// Add buffers one point. value must be numDims*bytesPerDim bytes.
func (b *Builder) Add(docID uint32, value []byte) error {
	if len(value) != b.numDims*b.bytesPerDim {
		return errors.NewCorruptIndexError(nil, "", "", "point value has wrong width")
	}
	cp := append([]byte(nil), value...)
	b.points = append(b.points, Point{DocID: docID, Value: cp})
	return nil
}

// dim extracts dimension d's bytes from a packed value.
func (b *Builder) dim(value []byte, d int) []byte {
	return value[d*b.bytesPerDim : (d+1)*b.bytesPerDim]
}

// Finish builds the balanced tree and writes it to dataOut (leaf blocks)
// and indexOut (packed inner-node index), returning the root's bounding
// box for the segment-info summary.
func (b *Builder) Finish(dataOut, indexOut *filesys.Output) (minValue, maxValue []byte, err error) {
	if len(b.points) == 0 {
		return nil, nil, nil
	}
	root := b.buildNode(b.points, make([]int, b.numDims))

	w := &writer{b: b, dataOut: dataOut}
	if err := w.writeLeaves(root); err != nil {
		return nil, nil, err
	}

	idx := &indexWriter{b: b}
	idx.writeNode(root)
	if _, err := indexOut.Write(idx.buf.Bytes()); err != nil {
		return nil, nil, err
	}

	return root.minValue, root.maxValue, nil
}

// buildNode recursively partitions points into a balanced tree, choosing
// a split dimension by a simple heuristic: the first non-constant
// dimension split fewer than half as often as the most-split dimension
// on this path, else the dimension with the largest byte span.
func (b *Builder) buildNode(points []Point, splitsOnPath []int) *treeNode {
	min, max := b.bounds(points)
	if len(points) <= MaxPointsInLeafNode {
		return &treeNode{points: points, minValue: min, maxValue: max}
	}

	splitDim := b.chooseSplitDim(min, max, splitsOnPath)
	sort.Slice(points, func(i, j int) bool {
		return bytes.Compare(b.dim(points[i].Value, splitDim), b.dim(points[j].Value, splitDim)) < 0
	})

	mid := len(points) / 2
	splitValue := append([]byte(nil), b.dim(points[mid].Value, splitDim)...)

	nextSplits := append([]int(nil), splitsOnPath...)
	nextSplits[splitDim]++

	left := b.buildNode(points[:mid], nextSplits)
	right := b.buildNode(points[mid:], nextSplits)

	return &treeNode{
		splitDim:   splitDim,
		splitValue: splitValue,
		left:       left,
		right:      right,
		minValue:   min,
		maxValue:   max,
	}
}

func (b *Builder) chooseSplitDim(min, max []byte, splitsOnPath []int) int {
	maxSplits := 0
	for _, s := range splitsOnPath {
		if s > maxSplits {
			maxSplits = s
		}
	}
	for d := 0; d < b.numDims; d++ {
		if bytes.Equal(b.dim(min, d), b.dim(max, d)) {
			continue
		}
		if splitsOnPath[d] < maxSplits/2 {
			return d
		}
	}

	bestDim, bestSpan := 0, -1
	for d := 0; d < b.numDims; d++ {
		span := bytesSpan(b.dim(min, d), b.dim(max, d))
		if span > bestSpan {
			bestSpan = span
			bestDim = d
		}
	}
	return bestDim
}

func bytesSpan(min, max []byte) int {
	span := 0
	for i := range min {
		d := int(max[i]) - int(min[i])
		if d < 0 {
			d = -d
		}
		span += d << uint((len(min)-1-i)*8%31)
	}
	return span
}

func (b *Builder) bounds(points []Point) (min, max []byte) {
	width := b.numDims * b.bytesPerDim
	min = append([]byte(nil), points[0].Value...)
	max = append([]byte(nil), points[0].Value...)
	for _, p := range points[1:] {
		for i := 0; i < width; i++ {
			if p.Value[i] < min[i] {
				min[i] = p.Value[i]
			}
			if p.Value[i] > max[i] {
				max[i] = p.Value[i]
			}
		}
	}
	return min, max
}

// writer streams leaf blocks to dataOut in tree (depth-first, left
// before right) order, recording each leaf's file offset in offsets.
// The packed index does not store these offsets: Reader finds each leaf
// by walking the leaves in the same order from offset 0 of its data
// Input.
type writer struct {
	b       *Builder
	dataOut *filesys.Output
	offsets map[*treeNode]int64
}

func (w *writer) writeLeaves(n *treeNode) error {
	if w.offsets == nil {
		w.offsets = make(map[*treeNode]int64)
	}
	if n.points != nil {
		w.offsets[n] = w.dataOut.Size()
		return w.writeLeaf(n)
	}
	if err := w.writeLeaves(n.left); err != nil {
		return err
	}
	return w.writeLeaves(n.right)
}

// writeLeaf writes the point count and the doc-id deltas as vInts (not
// bit-packed), then every point's raw packed value.
func (w *writer) writeLeaf(n *treeNode) error {
	if err := forutil.WriteVInt(w.dataOut, uint64(len(n.points))); err != nil {
		return err
	}
	var lastDoc uint32
	for i, p := range n.points {
		delta := p.DocID
		if i > 0 {
			delta = p.DocID - lastDoc
		}
		lastDoc = p.DocID
		if err := forutil.WriteVInt(w.dataOut, uint64(delta)); err != nil {
			return err
		}
	}
	for _, p := range n.points {
		if _, err := w.dataOut.Write(p.Value); err != nil {
			return err
		}
	}
	return nil
}

// indexWriter serializes the packed inner-node index: each inner node
// stores (split-dim, split-value delta against the last split on that
// dim, left-subtree byte size).
type indexWriter struct {
	b        *Builder
	buf      bytes.Buffer
	lastSplit [MaxDims][]byte
	leafNo   int
}

func (idx *indexWriter) writeNode(n *treeNode) {
	if n.points != nil {
		idx.leafNo++
		return
	}

	leftBuf := &indexWriter{b: idx.b, lastSplit: idx.lastSplit}
	leftBuf.writeNode(n.left)

	forutil.WriteVInt(&idx.buf, uint64(n.splitDim))
	last := idx.lastSplit[n.splitDim]
	if last == nil {
		idx.buf.Write(n.splitValue)
	} else {
		idx.buf.Write(deltaBytes(last, n.splitValue))
	}
	idx.lastSplit[n.splitDim] = n.splitValue

	forutil.WriteVInt(&idx.buf, uint64(leftBuf.buf.Len()))
	idx.buf.Write(leftBuf.buf.Bytes())

	idx.writeNode(n.right)
}

// deltaBytes returns a big-endian byte-wise difference used only to keep
// packed-index values small when consecutive splits on the same
// dimension are close together.
func deltaBytes(last, cur []byte) []byte {
	out := make([]byte, len(cur))
	borrow := 0
	for i := len(cur) - 1; i >= 0; i-- {
		d := int(cur[i]) - int(last[i]) - borrow
		if d < 0 {
			d += 256
			borrow = 1
		} else {
			borrow = 0
		}
		out[i] = byte(d)
	}
	return out
}
