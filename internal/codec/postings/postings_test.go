package postings

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/lumen/pkg/filesys"
)

func openFiles(t *testing.T) (dir *filesys.FSDirectory, docOut, posOut, payOut, skipOut *filesys.Output) {
	t.Helper()
	dir, err := filesys.NewFSDirectory(t.TempDir())
	require.NoError(t, err)

	docOut, err = dir.CreateOutput("0.doc")
	require.NoError(t, err)
	posOut, err = dir.CreateOutput("0.pos")
	require.NoError(t, err)
	payOut, err = dir.CreateOutput("0.pay")
	require.NoError(t, err)
	skipOut, err = dir.CreateOutput("0.skp")
	require.NoError(t, err)
	return
}

func closeAll(outs ...*filesys.Output) {
	for _, o := range outs {
		o.Close()
	}
}

func TestSingleDocumentSingletonPath(t *testing.T) {
	dir, docOut, posOut, payOut, skipOut := openFiles(t)
	w := NewTermWriter(docOut, posOut, payOut, skipOut, false, false)
	require.NoError(t, w.StartDoc(7, 3))
	meta, err := w.Finish()
	require.NoError(t, err)
	closeAll(docOut, posOut, payOut, skipOut)

	require.Equal(t, 1, meta.DocFreq)
	require.True(t, meta.HasSingleton)
	require.EqualValues(t, 7, meta.SingletonDocID)
	require.Equal(t, int64(-1), meta.SkipOffset)

	docIn, err := dir.OpenInput("0.doc")
	require.NoError(t, err)
	defer docIn.Close()

	enum := OpenPostingsEnum(docIn, nil, meta, false)
	d, err := enum.NextDoc()
	require.NoError(t, err)
	require.EqualValues(t, 7, d)
	require.Equal(t, 3, enum.Freq())

	d, err = enum.NextDoc()
	require.NoError(t, err)
	require.Equal(t, NoMoreDocs, d)
}

func TestExactlyOneFullBlockNoTail(t *testing.T) {
	dir, docOut, posOut, payOut, skipOut := openFiles(t)
	w := NewTermWriter(docOut, posOut, payOut, skipOut, false, false)
	for i := 0; i < 128; i++ {
		require.NoError(t, w.StartDoc(uint32(i*2+1), 1))
	}
	meta, err := w.Finish()
	require.NoError(t, err)
	closeAll(docOut, posOut, payOut, skipOut)

	require.Equal(t, 128, meta.DocFreq)
	require.Equal(t, int64(-1), meta.SkipOffset) // df == SkipInterval, not >

	docIn, err := dir.OpenInput("0.doc")
	require.NoError(t, err)
	defer docIn.Close()

	enum := OpenPostingsEnum(docIn, nil, meta, false)
	for i := 0; i < 128; i++ {
		d, err := enum.NextDoc()
		require.NoError(t, err)
		require.EqualValues(t, i*2+1, d)
	}
	d, err := enum.NextDoc()
	require.NoError(t, err)
	require.Equal(t, NoMoreDocs, d)
}

func TestOneBlockPlusOneTailDoc(t *testing.T) {
	dir, docOut, posOut, payOut, skipOut := openFiles(t)
	w := NewTermWriter(docOut, posOut, payOut, skipOut, false, false)
	for i := 0; i < 129; i++ {
		require.NoError(t, w.StartDoc(uint32(i+1), i%5+1))
	}
	meta, err := w.Finish()
	require.NoError(t, err)
	closeAll(docOut, posOut, payOut, skipOut)

	require.Equal(t, 129, meta.DocFreq)
	require.GreaterOrEqual(t, meta.SkipOffset, int64(0))

	docIn, err := dir.OpenInput("0.doc")
	require.NoError(t, err)
	defer docIn.Close()

	enum := OpenPostingsEnum(docIn, nil, meta, false)
	for i := 0; i < 129; i++ {
		d, err := enum.NextDoc()
		require.NoError(t, err)
		require.EqualValues(t, i+1, d)
		require.Equal(t, i%5+1, enum.Freq())
	}
	d, err := enum.NextDoc()
	require.NoError(t, err)
	require.Equal(t, NoMoreDocs, d)
}

func TestAdvanceSkipsForward(t *testing.T) {
	dir, docOut, posOut, payOut, skipOut := openFiles(t)
	w := NewTermWriter(docOut, posOut, payOut, skipOut, false, false)
	for i := 0; i < 300; i++ {
		require.NoError(t, w.StartDoc(uint32(i*3), 1))
	}
	meta, err := w.Finish()
	require.NoError(t, err)
	closeAll(docOut, posOut, payOut, skipOut)

	docIn, err := dir.OpenInput("0.doc")
	require.NoError(t, err)
	defer docIn.Close()

	enum := OpenPostingsEnum(docIn, nil, meta, false)
	d, err := enum.Advance(450)
	require.NoError(t, err)
	require.EqualValues(t, 450, d) // 150*3 == 450, exact hit
}
