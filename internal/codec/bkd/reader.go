package bkd

import (
	"io"

	"github.com/iamNilotpal/lumen/internal/codec/forutil"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

// Reader walks a serialized BKD tree for range queries.
type Reader struct {
	numDims     int
	bytesPerDim int
	minValue    []byte
	maxValue    []byte

	indexBytes []byte
	dataIn     *filesys.Input
}

// OpenReader wraps the packed index (already read into memory; it is
// typically small) and the leaf-data Input produced by Builder.Finish.
func OpenReader(numDims, bytesPerDim int, minValue, maxValue, indexBytes []byte, dataIn *filesys.Input) *Reader {
	return &Reader{
		numDims:     numDims,
		bytesPerDim: bytesPerDim,
		minValue:    minValue,
		maxValue:    maxValue,
		indexBytes:  indexBytes,
		dataIn:      dataIn,
	}
}

// Intersect walks the tree, invoking v at leaves per the IntersectVisitor
// contract: inner-node Compare determines whether to prune, fully
// visit, or recurse into both children.
func (r *Reader) Intersect(v IntersectVisitor) error {
	if r.minValue == nil {
		return nil // empty tree: Builder.Finish wrote no leaves
	}
	var lastSplit [MaxDims][]byte
	_, err := r.intersectNode(r.indexBytes, r.minValue, r.maxValue, lastSplit, v, &leafCursor{})
	return err
}

// leafCursor tracks how many leaves have been visited so we know the
// byte offset of the next leaf in the data file — leaves were written in
// left-to-right depth-first order during Finish.
type leafCursor struct {
	offset int64
}

// intersectNode decodes one packed-index node from buf, recurses as
// needed, and returns the number of bytes of buf consumed.
func (r *Reader) intersectNode(buf []byte, cellMin, cellMax []byte, lastSplit [MaxDims][]byte, v IntersectVisitor, cur *leafCursor) (int, error) {
	if len(buf) == 0 {
		return 0, r.visitLeaf(cellMin, cellMax, v, cur)
	}

	rel := v.Compare(cellMin, cellMax)
	if rel == CellOutside {
		// Still must advance the cursor past this subtree's leaves and
		// consume its index bytes, so the caller can continue past us.
		return r.skipSubtree(buf, cur)
	}

	rd := &byteSliceReader2{data: buf}
	splitDimV, err := forutil.ReadVInt(rd)
	if err != nil {
		return 0, err
	}
	splitDim := int(splitDimV)

	splitValue := make([]byte, r.bytesPerDim)
	if _, err := rd.Read(splitValue); err != nil {
		return 0, err
	}
	if last := lastSplit[splitDim]; last != nil {
		splitValue = undeltaBytes(last, splitValue)
	}
	// The writer encodes the left subtree against the lastSplit state as
	// of *before* this node's split was recorded (indexWriter.writeNode
	// snapshots lastSplit into leftBuf first, then updates idx.lastSplit
	// for the right subtree) — mirror that asymmetry here rather than
	// updating lastSplit once and sharing it with both children.
	leftSplit := lastSplit
	lastSplit[splitDim] = splitValue

	leftSizeV, err := forutil.ReadVInt(rd)
	if err != nil {
		return 0, err
	}
	leftSize := int(leftSizeV)
	headerLen := rd.pos

	leftBuf := buf[headerLen : headerLen+leftSize]
	rightBuf := buf[headerLen+leftSize:]

	leftMax := append([]byte(nil), cellMax...)
	copy(leftMax[splitDim*r.bytesPerDim:(splitDim+1)*r.bytesPerDim], splitValue)

	rightMin := append([]byte(nil), cellMin...)
	copy(rightMin[splitDim*r.bytesPerDim:(splitDim+1)*r.bytesPerDim], splitValue)

	// rel == CellInside still descends to leaves rather than bulk-visiting
	// them, since VisitPoint (not VisitDocID) carries the packed value
	// callers may want for exact scoring — see DESIGN.md.
	_, err = r.intersectNode(leftBuf, cellMin, leftMax, leftSplit, v, cur)
	if err != nil {
		return 0, err
	}

	_, err = r.intersectNode(rightBuf, rightMin, cellMax, lastSplit, v, cur)
	if err != nil {
		return 0, err
	}

	return headerLen + leftSize + len(rightBuf), nil
}

func (r *Reader) skipSubtree(buf []byte, cur *leafCursor) (int, error) {
	if len(buf) == 0 {
		return 0, r.skipLeaf(cur)
	}
	rd := &byteSliceReader2{data: buf}
	if _, err := forutil.ReadVInt(rd); err != nil {
		return 0, err
	}
	if _, err := rd.Read(make([]byte, r.bytesPerDim)); err != nil {
		return 0, err
	}
	leftSizeV, err := forutil.ReadVInt(rd)
	if err != nil {
		return 0, err
	}
	leftSize := int(leftSizeV)
	headerLen := rd.pos

	if _, err := r.skipSubtree(buf[headerLen:headerLen+leftSize], cur); err != nil {
		return 0, err
	}
	if _, err := r.skipSubtree(buf[headerLen+leftSize:], cur); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (r *Reader) visitLeaf(cellMin, cellMax []byte, v IntersectVisitor, cur *leafCursor) error {
	countV, n, err := readVIntAt(r.dataIn, cur.offset)
	if err != nil {
		return err
	}
	count := int(countV)
	off := cur.offset + int64(n)

	docs := make([]uint32, count)
	var lastDoc uint32
	for i := 0; i < count; i++ {
		dv, dn, err := readVIntAt(r.dataIn, off)
		if err != nil {
			return err
		}
		off += int64(dn)
		if i == 0 {
			lastDoc = uint32(dv)
		} else {
			lastDoc += uint32(dv)
		}
		docs[i] = lastDoc
	}

	width := r.numDims * r.bytesPerDim
	for i := 0; i < count; i++ {
		value := make([]byte, width)
		if _, err := r.dataIn.ReadAt(value, off); err != nil {
			return err
		}
		off += int64(width)

		rel := v.Compare(value, value)
		if rel != CellOutside {
			v.VisitPoint(docs[i], value)
		}
	}

	cur.offset = off
	return nil
}

func (r *Reader) skipLeaf(cur *leafCursor) error {
	countV, n, err := readVIntAt(r.dataIn, cur.offset)
	if err != nil {
		return err
	}
	count := int(countV)
	off := cur.offset + int64(n)
	for i := 0; i < count; i++ {
		_, dn, err := readVIntAt(r.dataIn, off)
		if err != nil {
			return err
		}
		off += int64(dn)
	}
	off += int64(count * r.numDims * r.bytesPerDim)
	cur.offset = off
	return nil
}

func readVIntAt(in *filesys.Input, off int64) (uint64, int, error) {
	// vInts are at most 10 bytes (uvarint of a uint64); read a bounded
	// window and let the decoder stop at the first terminated byte.
	end := off + 10
	if end > in.Len() {
		end = in.Len()
	}
	buf := make([]byte, end-off)
	if _, err := in.ReadAt(buf, off); err != nil {
		return 0, 0, err
	}
	rd := &byteSliceReader2{data: buf}
	v, err := forutil.ReadVInt(rd)
	if err != nil {
		return 0, 0, err
	}
	return v, rd.pos, nil
}

func undeltaBytes(last, delta []byte) []byte {
	out := make([]byte, len(delta))
	carry := 0
	for i := len(delta) - 1; i >= 0; i-- {
		d := int(last[i]) + int(delta[i]) + carry
		carry = 0
		if d > 255 {
			d -= 256
			carry = 1
		}
		out[i] = byte(d)
	}
	return out
}

type byteSliceReader2 struct {
	data []byte
	pos  int
}

func (r *byteSliceReader2) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteSliceReader2) Read(p []byte) (int, error) {
	n := copy(p, r.data[r.pos:])
	r.pos += n
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}
