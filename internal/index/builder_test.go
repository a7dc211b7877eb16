package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aissist/indexbot/internal/embed"
	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/loader"
	"github.com/aissist/indexbot/internal/store"
	"github.com/aissist/indexbot/internal/vector"
)

// countingStore counts Save calls and can be made to fail them.
type countingStore struct {
	*store.Store
	saves   atomic.Int32
	failure error
}

func (s *countingStore) Save(ctx context.Context, buildID string, idx *vector.Index, docs []store.DocumentRecord) (*store.Manifest, error) {
	s.saves.Add(1)
	if s.failure != nil {
		return nil, s.failure
	}
	return s.Store.Save(ctx, buildID, idx, docs)
}

// gatedEmbedder blocks every batch until release is closed.
type gatedEmbedder struct {
	embed.Embedder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Embedder.EmbedBatch(ctx, texts)
}

// brokenEmbedder fails every batch.
type brokenEmbedder struct {
	embed.Embedder
}

func (brokenEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model weights missing")
}

type fixture struct {
	input string
	index string
	store *countingStore
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		input: filepath.Join(root, "input"),
		index: filepath.Join(root, "index"),
	}
	require.NoError(t, os.MkdirAll(f.input, 0o755))
	for name, content := range files {
		f.write(t, name, content)
	}
	f.store = &countingStore{Store: store.New(f.index, store.Options{})}
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(f.input, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) builder(t *testing.T, e embed.Embedder, opts ...loader.Option) *Builder {
	t.Helper()
	b, err := NewBuilder(Options{
		InputDir:     f.input,
		ChunkSize:    256,
		ChunkOverlap: 32,
		EmbedWorkers: 2,
	}, Dependencies{
		Store:    f.store,
		Loader:   loader.NewDispatcher(opts...),
		Embedder: e,
	})
	require.NoError(t, err)
	return b
}

func failingPDF() loader.Option {
	return loader.WithLoader(loader.FormatPDF, loader.LoaderFunc(
		func(context.Context, string) (*loader.Extraction, error) {
			return nil, errors.New("malformed xref table")
		}))
}

func TestNewBuilder_RequiresDependencies(t *testing.T) {
	_, err := NewBuilder(Options{InputDir: "in"}, Dependencies{})
	assert.Error(t, err)

	f := newFixture(t, nil)
	_, err = NewBuilder(Options{}, Dependencies{
		Store: f.store, Loader: loader.NewDispatcher(), Embedder: embed.NewStaticEmbedder(),
	})
	assert.Error(t, err)
}

func TestBuilder_Build_PublishesIndex(t *testing.T) {
	// Given: two documents plus a hidden file
	f := newFixture(t, map[string]string{
		"a.txt":     "The sky is blue.",
		"b.txt":     "Paris is the capital of France.",
		".draft.md": "not for indexing",
	})
	b := f.builder(t, embed.NewStaticEmbedder())
	assert.Equal(t, StateNotBuilt, b.State())

	// When: building
	rep, err := b.Build(context.Background())

	// Then: one node per short document, published and ready
	require.NoError(t, err)
	assert.Equal(t, OutcomeBuilt, rep.Outcome)
	assert.Equal(t, 2, rep.Documents)
	assert.Equal(t, 2, rep.Nodes)
	assert.Empty(t, rep.Failures)
	assert.False(t, rep.Shared)
	assert.NotEmpty(t, rep.BuildID)
	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, "Index rebuilt. 2 documents indexed.", rep.Summary())

	idx, m, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rep.BuildID, m.BuildID)
	assert.Equal(t, embed.StaticModelID, m.EmbeddingModelID)
	assert.Equal(t, embed.StaticDimensions, idx.Dimensions())
	require.Equal(t, 2, idx.Len())
	assert.Equal(t, "a.txt#0", idx.Node(0).ID)
	assert.Equal(t, "b.txt#0", idx.Node(1).ID)

	snap := b.Progress().Snapshot()
	assert.Equal(t, "ready", snap.Status)
	assert.Equal(t, 2, snap.ChunksEmbedded)
}

func TestBuilder_Build_FailuresAreIsolated(t *testing.T) {
	// Given: N=5 files where M=2 fail extraction and one is unsupported
	f := newFixture(t, map[string]string{
		"notes/one.txt": "first document about invoices",
		"notes/two.md":  "# Title\n\nsecond document about shipping",
		"three.html":    "<html><body><p>third document about returns</p></body></html>",
		"broken.pdf":    "%PDF-1.4 garbage",
		"other.pdf":     "%PDF-1.4 garbage",
		"image.png":     "\x89PNG",
	})
	b := f.builder(t, embed.NewStaticEmbedder(), failingPDF())

	// When: building
	rep, err := b.Build(context.Background())

	// Then: N-M documents indexed, M failures listed, the png skipped
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Documents)
	require.Len(t, rep.Failures, 2)
	assert.Equal(t, "broken.pdf", rep.Failures[0].Path)
	assert.Contains(t, rep.Failures[0].Detail, "malformed xref table")
	assert.Equal(t, "other.pdf", rep.Failures[1].Path)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "image.png", rep.Skipped[0].Path)
	assert.Contains(t, rep.Summary(), "2 failed")

	docs, err := f.store.Documents(context.Background())
	require.NoError(t, err)
	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = d.Path
	}
	assert.Equal(t, []string{"notes/one.txt", "notes/two.md", "three.html"}, paths)
	assert.Equal(t, 2, b.Progress().Snapshot().FilesFailed)
}

func TestBuilder_Build_EmptyCorpusKeepsPriorIndex(t *testing.T) {
	// Given: a ready index
	f := newFixture(t, map[string]string{"a.txt": "The sky is blue."})
	b := f.builder(t, embed.NewStaticEmbedder())
	first, err := b.Build(context.Background())
	require.NoError(t, err)

	// When: input/ is emptied and the index rebuilt
	require.NoError(t, os.Remove(filepath.Join(f.input, "a.txt")))
	rep, err := b.Build(context.Background())

	// Then: an empty corpus signal, and the old index is still served
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEmptyCorpus))
	require.NotNil(t, rep)
	assert.Equal(t, OutcomeEmptyCorpus, rep.Outcome)
	assert.Equal(t, "No documents found in input/ - nothing to index.", rep.Summary())
	assert.Equal(t, int32(1), f.store.saves.Load())

	m, err := f.store.ReadManifest()
	require.NoError(t, err)
	assert.Equal(t, first.BuildID, m.BuildID)
	assert.Equal(t, StateReady, b.State())
}

func TestBuilder_Build_EmptyCorpusWithoutIndex(t *testing.T) {
	f := newFixture(t, map[string]string{"blank.txt": "   \n\n"})
	b := f.builder(t, embed.NewStaticEmbedder())

	rep, err := b.Build(context.Background())

	assert.True(t, errors.Is(err, apperrors.ErrEmptyCorpus))
	assert.Equal(t, OutcomeEmptyCorpus, rep.Outcome)
	assert.Len(t, rep.Skipped, 1)
	assert.Equal(t, StateNotBuilt, b.State())
}

func TestBuilder_Build_MissingInputDirIsEmptyCorpus(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.RemoveAll(f.input))

	_, err := f.builder(t, embed.NewStaticEmbedder()).Build(context.Background())

	assert.True(t, errors.Is(err, apperrors.ErrEmptyCorpus))
}

func TestBuilder_Build_EmbeddingFailureKeepsPriorIndex(t *testing.T) {
	// Given: a ready index
	f := newFixture(t, map[string]string{"a.txt": "The sky is blue."})
	first, err := f.builder(t, embed.NewStaticEmbedder()).Build(context.Background())
	require.NoError(t, err)

	// When: the next build's embedder fails
	f.write(t, "b.txt", "Paris is the capital of France.")
	b := f.builder(t, brokenEmbedder{embed.NewStaticEmbedder()})
	_, err = b.Build(context.Background())

	// Then: the build aborts with EmbeddingModelFailure and nothing was written
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEmbeddingFailed))
	assert.Equal(t, int32(1), f.store.saves.Load())
	m, err := f.store.ReadManifest()
	require.NoError(t, err)
	assert.Equal(t, first.BuildID, m.BuildID)
	assert.Equal(t, "error", b.Progress().Snapshot().Status)
}

func TestBuilder_Build_PersistFailureKeepsPriorIndex(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "The sky is blue."})
	b := f.builder(t, embed.NewStaticEmbedder())
	first, err := b.Build(context.Background())
	require.NoError(t, err)

	f.store.failure = apperrors.New(apperrors.ErrCodePersistFailed, "failed to persist index", errors.New("no space left on device"))
	_, err = b.Build(context.Background())

	assert.True(t, errors.Is(err, apperrors.ErrPersistFailed))
	idx, m, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.BuildID, m.BuildID)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, StateReady, b.State())
}

func TestBuilder_Build_ConcurrentCallersShareOneWrite(t *testing.T) {
	// Given: a build held inside embedding
	f := newFixture(t, map[string]string{"a.txt": "The sky is blue."})
	gate := &gatedEmbedder{
		Embedder: embed.NewStaticEmbedder(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	b := f.builder(t, gate)

	reports := make([]*Report, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[0], errs[0] = b.Build(context.Background())
	}()
	<-gate.entered
	assert.Equal(t, StateBuilding, b.State())

	// When: a second caller asks for a build and the first then finishes
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[1], errs[1] = b.Build(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	// Then: exactly one write, and both callers see the same build
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), f.store.saves.Load())
	assert.Equal(t, reports[0].BuildID, reports[1].BuildID)
	assert.False(t, reports[0].Shared)
	assert.True(t, reports[1].Shared)
}

func TestBuilder_Build_FirstCallerCancellingDoesNotFailOthers(t *testing.T) {
	// Given: a build started by a caller that later gives up
	f := newFixture(t, map[string]string{"a.txt": "The sky is blue."})
	gate := &gatedEmbedder{
		Embedder: embed.NewStaticEmbedder(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	b := f.builder(t, gate)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := b.Build(firstCtx)
		firstErr <- err
	}()
	<-gate.entered

	secondDone := make(chan struct{})
	var second *Report
	var secondErr error
	go func() {
		defer close(secondDone)
		second, secondErr = b.Build(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)

	// When: the first caller cancels, then the build finishes
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(gate.release)
	<-secondDone

	// Then: the waiting caller still gets the published build
	require.NoError(t, secondErr)
	require.NotNil(t, second)
	assert.Equal(t, OutcomeBuilt, second.Outcome)
	assert.True(t, second.Shared)
	assert.Equal(t, int32(1), f.store.saves.Load())
	assert.Equal(t, StateReady, b.State())
}

func TestBuilder_TryBuild_RejectsWhileBuilding(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "The sky is blue."})
	gate := &gatedEmbedder{
		Embedder: embed.NewStaticEmbedder(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	b := f.builder(t, gate)

	done := make(chan error, 1)
	go func() {
		_, err := b.Build(context.Background())
		done <- err
	}()
	<-gate.entered

	_, err := b.TryBuild(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrBuildInProgress))

	close(gate.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), f.store.saves.Load())
}

func TestBuilder_Build_RejectsWhenAnotherProcessHoldsLock(t *testing.T) {
	// Given: the build lock held through a separate handle
	f := newFixture(t, map[string]string{"a.txt": "The sky is blue."})
	other := store.NewFileLock(f.index)
	acquired, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)
	defer func() { _ = other.Unlock() }()

	// When: building
	_, err = f.builder(t, embed.NewStaticEmbedder()).Build(context.Background())

	// Then: BuildInProgress, and nothing written
	assert.True(t, errors.Is(err, apperrors.ErrBuildInProgress))
	assert.Equal(t, int32(0), f.store.saves.Load())
}

func TestBuilder_Build_AttachesGraphForLargeIndexes(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.txt": "alpha document",
		"b.txt": "beta document",
		"c.txt": "gamma document",
	})
	b, err := NewBuilder(Options{InputDir: f.input, GraphMinNodes: 2}, Dependencies{
		Store:    f.store,
		Loader:   loader.NewDispatcher(),
		Embedder: embed.NewStaticEmbedder(),
	})
	require.NoError(t, err)

	rep, err := b.Build(context.Background())

	require.NoError(t, err)
	assert.True(t, rep.Manifest.Graph)
}

func TestBuilder_Build_LargeDocumentIsChunked(t *testing.T) {
	para := "Shipping policy paragraph with enough words to take up space in a chunk. "
	var text string
	for i := 0; i < 40; i++ {
		text += para
		if i%4 == 3 {
			text += "\n\n"
		}
	}
	f := newFixture(t, map[string]string{"policy.txt": text})

	rep, err := f.builder(t, embed.NewStaticEmbedder()).Build(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, rep.Documents)
	assert.Greater(t, rep.Nodes, 1)
	idx, _, err := f.store.Load(context.Background())
	require.NoError(t, err)
	for i := 0; i < idx.Len(); i++ {
		assert.Equal(t, NodeID("policy.txt", i), idx.Node(i).ID)
	}
}

func TestScanInputs_SortedRegularFilesOnly(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.txt", "a/z.md", "a/.hidden/x.txt", ".env", "C.pdf"} {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "b.txt"), filepath.Join(root, "link.txt")))

	got, err := ScanInputs(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, []string{"C.pdf", "a/z.md", "b.txt"}, got)
}
