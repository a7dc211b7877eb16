package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aissist/indexbot/internal/config"
	"github.com/aissist/indexbot/internal/embed"
	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/index"
)

type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (g *echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return "answer", nil
}

func (g *echoGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func newProject(t *testing.T, files map[string]string) (*Project, *echoGenerator) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Project.Base = t.TempDir()
	cfg.Project.Name = "Docs"

	for name, content := range files {
		path := filepath.Join(cfg.InputDir(), filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	gen := &echoGenerator{}
	p, err := Open(cfg, Options{Embedder: embed.NewStaticEmbedder(), Generator: gen})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, gen
}

func TestOpen_ValidatesConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Query.TopK = 0

	_, err := Open(cfg, Options{})

	assert.Error(t, err)
}

func TestProject_Ask_BuildsWhenMissing(t *testing.T) {
	// Given: documents but no index yet
	p, gen := newProject(t, map[string]string{
		"a.txt": "The sky is blue.",
		"b.txt": "Paris is the capital of France.",
	})
	assert.Equal(t, string(index.StateNotBuilt), p.Status(context.Background()).State)

	// When: asking
	res, err := p.Ask(context.Background(), "What is the capital of France?")

	// Then: the index was built and the answer grounded on b.txt
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Answer)
	assert.Equal(t, "b.txt#0", res.RetrievedNodeIDs[0])
	assert.Equal(t, 1, gen.calls())
	assert.Equal(t, string(index.StateReady), p.Status(context.Background()).State)
}

func TestProject_Query_WithoutIndex(t *testing.T) {
	p, gen := newProject(t, map[string]string{"a.txt": "text"})

	_, err := p.Query(context.Background(), "anything")

	assert.True(t, errors.Is(err, apperrors.ErrIndexUnavailable))
	assert.Zero(t, gen.calls())
}

func TestProject_EmptyQuestion(t *testing.T) {
	p, gen := newProject(t, nil)

	_, err := p.Ask(context.Background(), "  ")
	assert.True(t, errors.Is(err, apperrors.ErrQueryEmpty))
	_, err = p.Chat(context.Background(), "")
	assert.True(t, errors.Is(err, apperrors.ErrQueryEmpty))
	assert.Zero(t, gen.calls())
}

func TestProject_EnsureIndex_KeepsExisting(t *testing.T) {
	p, _ := newProject(t, map[string]string{"a.txt": "alpha"})

	first, err := p.EnsureIndex(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	again, err := p.EnsureIndex(context.Background())
	require.NoError(t, err)
	assert.Nil(t, again, "existing index is kept")
	assert.Equal(t, first.BuildID, p.Status(context.Background()).BuildID)
}

func TestProject_BuildIndex_EmptyCorpus(t *testing.T) {
	p, _ := newProject(t, nil)

	rep, err := p.BuildIndex(context.Background())

	assert.True(t, errors.Is(err, apperrors.ErrEmptyCorpus))
	require.NotNil(t, rep)
	assert.Equal(t, "No documents found in input/ - nothing to index.", rep.Summary())
}

func TestProject_Chat_PassesTextThrough(t *testing.T) {
	p, gen := newProject(t, nil)

	answer, err := p.Chat(context.Background(), "hello there")

	require.NoError(t, err)
	assert.Equal(t, "answer", answer)
	assert.Equal(t, []string{"hello there"}, gen.prompts)
}

func TestProject_Documents_CaseInsensitiveOrder(t *testing.T) {
	p, _ := newProject(t, map[string]string{
		"beta.md":       "b",
		"Alpha.txt":     "a",
		"sub/gamma.pdf": "g",
		"Zeta.docx":     "z",
		".hidden":       "h",
	})

	docs, err := p.Documents(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha.txt", "beta.md", "sub/gamma.pdf", "Zeta.docx"}, docs)
}

func TestProject_Documents_NoInputDir(t *testing.T) {
	p, _ := newProject(t, nil)

	docs, err := p.Documents(context.Background())

	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestProject_AddDocument_StoresAndRebuilds(t *testing.T) {
	// Given: a project with one document
	p, _ := newProject(t, map[string]string{"a.txt": "The sky is blue."})

	// When: a file arrives with a path in its name
	rep, err := p.AddDocument(context.Background(), "../../uploads/b.txt", strings.NewReader("Paris is the capital of France."))

	// Then: it is stored by base name and indexed
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Documents)
	data, err := os.ReadFile(filepath.Join(p.Config().InputDir(), "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", string(data))

	entries, err := os.ReadDir(p.Config().InputDir())
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "report.pdf", want: "report.pdf"},
		{in: "dir/sub/notes.md", want: "notes.md"},
		{in: `C:\Users\me\budget.xlsx`, want: "budget.xlsx"},
		{in: "what?.txt", want: "what_.txt"},
		{in: "", wantErr: true},
		{in: "..", wantErr: true},
		{in: ".env", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SanitizeName(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProject_Status(t *testing.T) {
	p, _ := newProject(t, map[string]string{"a.txt": "alpha", "b.md": "# Beta\n\nbeta"})
	_, err := p.BuildIndex(context.Background())
	require.NoError(t, err)

	info := p.Status(context.Background())

	assert.Equal(t, "Docs", info.ProjectName)
	assert.Equal(t, string(index.StateReady), info.State)
	assert.Equal(t, 2, info.Documents)
	assert.Equal(t, 2, info.InputFiles)
	assert.Equal(t, embed.StaticModelID, info.EmbeddingModel)
	assert.Equal(t, "static", info.EmbedderType)
	assert.Equal(t, "ready", info.EmbedderStatus)
	assert.Positive(t, info.IndexSize)
	assert.Empty(t, info.BuildError)
}

func TestProject_ConcurrentBuilds(t *testing.T) {
	p, _ := newProject(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	var wg sync.WaitGroup
	reports := make([]*index.Report, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rep, err := p.BuildIndex(context.Background())
			assert.NoError(t, err)
			reports[i] = rep
		}(i)
	}
	wg.Wait()

	for _, r := range reports {
		require.NotNil(t, r)
		assert.Equal(t, 2, r.Documents)
	}
	m, err := p.store.ReadManifest()
	require.NoError(t, err)
	assert.Equal(t, 2, m.DocumentCount)
}

func TestProject_StoreDocument_DoesNotBuild(t *testing.T) {
	p, _ := newProject(t, nil)

	name, err := p.StoreDocument("notes.md", strings.NewReader("# Notes"))

	require.NoError(t, err)
	assert.Equal(t, "notes.md", name)
	assert.Equal(t, string(index.StateNotBuilt), p.Status(context.Background()).State)
	docs, err := p.Documents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.md"}, docs)
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) (string, error) {
	return "", apperrors.ErrUpstreamUnavailable
}

func TestProject_Query_RecordsStatistics(t *testing.T) {
	// Given: a built index
	p, _ := newProject(t, map[string]string{"b.txt": "Paris is the capital of France."})
	ctx := context.Background()
	assert.Nil(t, p.Status(ctx).Queries, "no statistics before the first question")

	// When: asking twice
	_, err := p.Ask(ctx, "What is the capital of France?")
	require.NoError(t, err)
	_, err = p.Query(ctx, "capital city")
	require.NoError(t, err)

	// Then: both questions are counted and their terms ranked
	stats := p.Status(ctx).Queries
	require.NotNil(t, stats)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Answered)
	require.NotEmpty(t, stats.TopTerms)
	assert.Equal(t, "capital", stats.TopTerms[0].Label)
	assert.Equal(t, int64(2), stats.TopTerms[0].Count)
	assert.FileExists(t, filepath.Join(p.Config().ProjectDir(), TelemetryFile))
}

func TestProject_Query_RecordsUpstreamFailures(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Project.Base = t.TempDir()
	cfg.Project.Name = "Docs"
	require.NoError(t, os.MkdirAll(cfg.InputDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDir(), "a.txt"), []byte("alpha"), 0o644))
	p, err := Open(cfg, Options{Embedder: embed.NewStaticEmbedder(), Generator: failingGenerator{}})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Ask(context.Background(), "alpha?")
	require.Error(t, err)

	stats := p.Status(context.Background()).Queries
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestProject_Query_WithoutIndexIsNotRecorded(t *testing.T) {
	p, _ := newProject(t, nil)

	_, err := p.Query(context.Background(), "anything?")

	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(p.Config().ProjectDir(), TelemetryFile))
}
