package bkd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/lumen/pkg/filesys"
)

func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v)^0x80000000)
	return b
}

type rangeVisitor struct {
	lo, hi int32
	hits   []uint32
}

func (rv *rangeVisitor) VisitDocID(docID uint32) { rv.hits = append(rv.hits, docID) }

func (rv *rangeVisitor) VisitPoint(docID uint32, packedValue []byte) {
	v := int32(binary.BigEndian.Uint32(packedValue) ^ 0x80000000)
	if v >= rv.lo && v <= rv.hi {
		rv.hits = append(rv.hits, docID)
	}
}

func (rv *rangeVisitor) Compare(minPackedValue, maxPackedValue []byte) Relation {
	min := int32(binary.BigEndian.Uint32(minPackedValue) ^ 0x80000000)
	max := int32(binary.BigEndian.Uint32(maxPackedValue) ^ 0x80000000)
	if max < rv.lo || min > rv.hi {
		return CellOutside
	}
	if min >= rv.lo && max <= rv.hi {
		return CellInside
	}
	return CellCrosses
}

func TestBKDRangeQuery(t *testing.T) {
	dir, err := filesys.NewFSDirectory(t.TempDir())
	require.NoError(t, err)

	b, err := NewBuilder(1, 4)
	require.NoError(t, err)

	for i := int32(0); i < 2500; i++ {
		require.NoError(t, b.Add(uint32(i), encodeInt32(i)))
	}

	dataOut, err := dir.CreateOutput("0.kdd")
	require.NoError(t, err)
	indexOut, err := dir.CreateOutput("0.kdi")
	require.NoError(t, err)

	minV, maxV, err := b.Finish(dataOut, indexOut)
	require.NoError(t, err)
	require.NoError(t, dataOut.Close())
	require.NoError(t, indexOut.Close())

	dataIn, err := dir.OpenInput("0.kdd")
	require.NoError(t, err)
	defer dataIn.Close()
	indexIn, err := dir.OpenInput("0.kdi")
	require.NoError(t, err)
	defer indexIn.Close()

	indexBytes := make([]byte, indexIn.Len())
	_, err = indexIn.ReadAt(indexBytes, 0)
	require.NoError(t, err)

	reader := OpenReader(1, 4, minV, maxV, indexBytes, dataIn)

	rv := &rangeVisitor{lo: 100, hi: 199}
	require.NoError(t, reader.Intersect(rv))
	require.Len(t, rv.hits, 100)
}
