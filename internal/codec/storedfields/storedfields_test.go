package storedfields

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/lumen/pkg/filesys"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir, err := filesys.NewFSDirectory(t.TempDir())
	require.NoError(t, err)

	dataOut, err := dir.CreateOutput("0.fdt")
	require.NoError(t, err)
	indexOut, err := dir.CreateOutput("0.fdx")
	require.NoError(t, err)

	w := NewWriter(dataOut, indexOut)
	for i := 0; i < 300; i++ {
		doc := Document{
			{FieldNumber: 0, Kind: KindString, Str: "hello world"},
			{FieldNumber: 1, Kind: KindLong, LongVal: int64(i * 7)},
		}
		require.NoError(t, w.AddDocument(doc))
	}
	require.NoError(t, w.Finish())
	require.NoError(t, dataOut.Close())
	require.NoError(t, indexOut.Close())

	dataIn, err := dir.OpenInput("0.fdt")
	require.NoError(t, err)
	defer dataIn.Close()
	indexIn, err := dir.OpenInput("0.fdx")
	require.NoError(t, err)
	defer indexIn.Close()

	r, err := OpenReader(dataIn, indexIn)
	require.NoError(t, err)

	for _, id := range []uint32{0, 1, 127, 128, 200, 299} {
		doc, err := r.Document(id)
		require.NoError(t, err)
		require.Equal(t, "hello world", doc[0].Str)
		require.EqualValues(t, int64(id)*7, doc[1].LongVal)
	}
}
