package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamNilotpal/lumen/internal/index"
	"github.com/iamNilotpal/lumen/pkg/options"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	opts.MergeScheduler.Kind = options.SerialMergeScheduler
	opts.MergePolicy.Kind = options.NoMergePolicy

	e, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestAddDocumentAndCommitPersistsSegment(t *testing.T) {
	e := newTestEngine(t)

	docID, err := e.AddDocument([]index.Field{
		{Name: "title", Kind: index.KindIndexed | index.KindStored, StoredKind: index.StoredString, StoredString: "hello world",
			Tokens: []index.Token{{Term: []byte("hello")}, {Term: []byte("world")}}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, docID)

	require.NoError(t, e.Commit())
	require.Len(t, e.Readers(), 1)

	r := e.Readers()[0]
	require.EqualValues(t, 1, r.MaxDoc())
	doc, err := r.Document(0)
	require.NoError(t, err)
	require.Len(t, doc, 1)
}

func TestForceMergeReducesSegmentCount(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 3; i++ {
		_, err := e.AddDocument([]index.Field{
			{Name: "body", Kind: index.KindIndexed, Tokens: []index.Token{{Term: []byte("doc")}}},
		})
		require.NoError(t, err)
		require.NoError(t, e.Commit())
	}
	require.Len(t, e.Readers(), 3)

	require.NoError(t, e.ForceMerge(1))
	require.Len(t, e.Readers(), 1)
	require.EqualValues(t, 3, e.Readers()[0].NumDocs())
}

// TestConcurrentAddDocumentUsesThreadStatePool drives more writers than
// the default pool has slots, exercising acquireSlot's LIFO wait/wake
// path, and checks every document survives a Commit that must drain
// every slot via acquireAllSlots.
func TestConcurrentAddDocumentUsesThreadStatePool(t *testing.T) {
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	opts.MergeScheduler.Kind = options.SerialMergeScheduler
	opts.MergePolicy.Kind = options.NoMergePolicy
	opts.MaxThreadStates = 2

	e, err := New(context.Background(), &Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	require.Len(t, e.allSlots, 2)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.AddDocument([]index.Field{
				{Name: "body", Kind: index.KindIndexed, Tokens: []index.Token{{Term: []byte("doc")}}},
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, e.Commit())
	var total uint32
	for _, r := range e.Readers() {
		total += r.NumDocs()
	}
	require.EqualValues(t, writers, total)
}
