package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamNilotpal/lumen/internal/codec/docvalues"
	"github.com/iamNilotpal/lumen/pkg/filesys"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	log := zap.NewNop().Sugar()
	b, err := New(context.Background(), &Config{Logger: log})
	require.NoError(t, err)
	return b
}

func TestAddDocumentAssignsSequentialDocIDs(t *testing.T) {
	b := newTestBuilder(t)
	for i := 0; i < 5; i++ {
		docID, err := b.AddDocument([]Field{
			{Name: "title", Kind: KindIndexed, Tokens: []Token{{Term: []byte("hello"), Position: 0}}},
		})
		require.NoError(t, err)
		require.EqualValues(t, i, docID)
	}
	require.EqualValues(t, 5, b.MaxDoc())
}

func TestFlushProducesTermMetadata(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.AddDocument([]Field{
		{Name: "body", Kind: KindIndexed | KindStored, StoredKind: StoredString, StoredString: "the quick fox",
			Tokens: []Token{{Term: []byte("quick"), Position: 1}, {Term: []byte("fox"), Position: 2}}},
		{Name: "count", Kind: KindDocValue, DocValueType: docvalues.Numeric, DocValueNumeric: 42},
	})
	require.NoError(t, err)

	dir, err := filesys.NewFSDirectory(t.TempDir())
	require.NoError(t, err)

	outs := SegmentOutputs{}
	var errOpen error
	open := func(name string) *filesys.Output {
		o, e := dir.CreateOutput(name)
		if e != nil {
			errOpen = e
		}
		return o
	}
	outs.Doc = open("0.doc")
	outs.Pos = open("0.pos")
	outs.Pay = open("0.pay")
	outs.Skip = open("0.skp")
	outs.TermData = open("0.tbk")
	outs.TermIndex = open("0.tfx")
	outs.StoredData = open("0.fdt")
	outs.StoredIndex = open("0.fdx")
	outs.DocValuesData = open("0.dvd")
	require.NoError(t, errOpen)

	result, err := b.Flush(outs)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.MaxDoc)

	bodyField, ok := result.FieldOffsets[0]
	require.True(t, ok)
	meta, ok := bodyField.Terms["fox"]
	require.True(t, ok)
	require.Equal(t, 1, meta.DocFreq)
}
