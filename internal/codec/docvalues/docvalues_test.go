package docvalues

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/lumen/pkg/filesys"
)

func TestNumericRoundTripDense(t *testing.T) {
	dir, err := filesys.NewFSDirectory(t.TempDir())
	require.NoError(t, err)
	out, err := dir.CreateOutput("0.dvd")
	require.NoError(t, err)

	w := NewNumericWriter(out, 10)
	for i := uint32(0); i < 10; i++ {
		w.Add(i, int64(i)*100-500)
	}
	meta, err := w.Finish(0)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	in, err := dir.OpenInput("0.dvd")
	require.NoError(t, err)
	defer in.Close()

	r, err := OpenNumericReader(in, meta, 10)
	require.NoError(t, err)
	for i := uint32(0); i < 10; i++ {
		v, ok := r.Get(i)
		require.True(t, ok)
		require.Equal(t, int64(i)*100-500, v)
	}
}

func TestNumericRoundTripSparse(t *testing.T) {
	dir, err := filesys.NewFSDirectory(t.TempDir())
	require.NoError(t, err)
	out, err := dir.CreateOutput("0.dvd")
	require.NoError(t, err)

	w := NewNumericWriter(out, 10)
	w.Add(2, 42)
	w.Add(7, 99)
	meta, err := w.Finish(0)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	in, err := dir.OpenInput("0.dvd")
	require.NoError(t, err)
	defer in.Close()

	r, err := OpenNumericReader(in, meta, 10)
	require.NoError(t, err)
	v, ok := r.Get(2)
	require.True(t, ok)
	require.EqualValues(t, 42, v)
	_, ok = r.Get(3)
	require.False(t, ok)
}

func TestBinaryRoundTrip(t *testing.T) {
	dir, err := filesys.NewFSDirectory(t.TempDir())
	require.NoError(t, err)
	out, err := dir.CreateOutput("0.dvd")
	require.NoError(t, err)

	w := NewBinaryWriter(out)
	require.NoError(t, w.Add([]byte("alpha")))
	require.NoError(t, w.Add([]byte("beta")))
	require.NoError(t, w.Add([]byte("")))
	meta, err := w.Finish(0)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	in, err := dir.OpenInput("0.dvd")
	require.NoError(t, err)
	defer in.Close()

	r, err := OpenBinaryReader(in, meta)
	require.NoError(t, err)

	v, err := r.Get(0)
	require.NoError(t, err)
	require.Equal(t, "alpha", string(v))

	v, err = r.Get(1)
	require.NoError(t, err)
	require.Equal(t, "beta", string(v))
}

func TestSortedBytesRoundTrip(t *testing.T) {
	dir, err := filesys.NewFSDirectory(t.TempDir())
	require.NoError(t, err)
	out, err := dir.CreateOutput("0.dvd")
	require.NoError(t, err)

	w := NewSortedWriter(out, false)
	w.Add("zebra")
	w.Add("apple")
	w.Add("mango")
	meta, err := w.Finish(0)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	in, err := dir.OpenInput("0.dvd")
	require.NoError(t, err)
	defer in.Close()

	r, err := OpenSortedReader(in, meta, false)
	require.NoError(t, err)

	require.Equal(t, "zebra", r.LookupOrd(r.OrdAt(0)))
	require.Equal(t, "apple", r.LookupOrd(r.OrdAt(1)))
	require.Equal(t, "mango", r.LookupOrd(r.OrdAt(2)))

	ord, ok := r.LookupTerm("mango")
	require.True(t, ok)
	require.Equal(t, "mango", r.LookupOrd(ord))
}
