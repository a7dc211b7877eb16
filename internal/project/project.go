// Package project is the per-project object a transport talks to. It owns
// the index store, the build orchestrator, the query engine and the worker
// pool, and exposes the operations a user can ask for: rebuild, ask, chat,
// list and add documents, and status.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aissist/indexbot/internal/async"
	"github.com/aissist/indexbot/internal/config"
	"github.com/aissist/indexbot/internal/embed"
	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/index"
	"github.com/aissist/indexbot/internal/llm"
	"github.com/aissist/indexbot/internal/loader"
	"github.com/aissist/indexbot/internal/query"
	"github.com/aissist/indexbot/internal/store"
	"github.com/aissist/indexbot/internal/telemetry"
	"github.com/aissist/indexbot/internal/ui"
)

// Options injects collaborators. Zero values are built from the config.
type Options struct {
	// Offline forces the static embedder.
	Offline bool
	// Embedder replaces the configured embedding model.
	Embedder embed.Embedder
	// Generator replaces the Ollama client.
	Generator llm.Generator
	// Renderer receives build progress.
	Renderer ui.Renderer
}

// Project serves one project directory. It is safe for concurrent use.
type Project struct {
	cfg       *config.Config
	opts      Options
	store     *store.Store
	loader    *loader.Dispatcher
	generator llm.Generator
	pool      *async.Pool
	progress  *async.IndexProgress

	// The embedder may need a model server, so it and everything that
	// depends on it are created on first use.
	mu       sync.Mutex
	embedder embed.Embedder
	builder  *index.Builder
	engine   *query.Engine

	metricsMu sync.Mutex
	metrics   *telemetry.Store

	closeOnce sync.Once
}

// Open creates a Project for cfg. It does not contact any model server.
func Open(cfg *config.Config, opts Options) (*Project, error) {
	if cfg == nil {
		return nil, apperrors.ConfigError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.ConfigError("invalid configuration", err)
	}

	generator := opts.Generator
	if generator == nil {
		generator = llm.New(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		})
	}

	return &Project{
		cfg:  cfg,
		opts: opts,
		store: store.New(cfg.IndexDir(), store.Options{
			KeepGenerations: cfg.Index.KeepGenerations,
		}),
		loader:    loader.NewDispatcher(loader.WithMaxFileSize(cfg.Index.MaxFileSize)),
		generator: generator,
		pool:      async.NewPool(cfg.Performance.PoolSize),
		progress:  async.NewIndexProgress(),
		embedder:  opts.Embedder,
	}, nil
}

// Config returns the project configuration.
func (p *Project) Config() *config.Config { return p.cfg }

// Progress returns the tracker of the current or last build.
func (p *Project) Progress() *async.IndexProgress { return p.progress }

// components returns the builder and engine, creating the embedder on first
// use. A failed creation is not cached, so a later call can succeed once the
// model server is up.
func (p *Project) components(ctx context.Context) (*index.Builder, *query.Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.builder != nil {
		return p.builder, p.engine, nil
	}

	if p.embedder == nil {
		e, err := embed.New(ctx, p.cfg, p.opts.Offline)
		if err != nil {
			return nil, nil, err
		}
		p.embedder = e
	}

	builder, err := index.NewBuilder(index.OptionsFromConfig(p.cfg), index.Dependencies{
		Store:    p.store,
		Loader:   p.loader,
		Embedder: p.embedder,
		Progress: p.progress,
		Renderer: p.opts.Renderer,
	})
	if err != nil {
		return nil, nil, apperrors.InternalError("failed to create index builder", err)
	}
	engine, err := query.New(p.store, p.embedder, p.generator, query.Options{
		TopK:           p.cfg.Query.TopK,
		PromptTemplate: p.cfg.Query.PromptTemplate,
		CacheSize:      p.cfg.Query.CacheSize,
	})
	if err != nil {
		return nil, nil, err
	}

	p.builder, p.engine = builder, engine
	return builder, engine, nil
}

// BuildIndex rebuilds the index from input/. Callers arriving while a build
// runs share its report. An empty corpus returns the report together with
// ErrEmptyCorpus.
func (p *Project) BuildIndex(ctx context.Context) (*index.Report, error) {
	builder, _, err := p.components(ctx)
	if err != nil {
		return nil, err
	}
	return async.Go(ctx, p.pool, builder.Build).Wait(ctx)
}

// EnsureIndex builds only when no valid index has been published. It
// returns a nil report when the existing index was kept.
func (p *Project) EnsureIndex(ctx context.Context) (*index.Report, error) {
	if p.store.State() == store.StateReady {
		return nil, nil
	}
	slog.Info("index_missing_building", slog.String("project", p.cfg.Project.Name))
	return p.BuildIndex(ctx)
}

// Query answers question from the published index.
func (p *Project) Query(ctx context.Context, question string) (*query.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errEmptyQuestion()
	}
	_, engine, err := p.components(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := async.Go(ctx, p.pool, func(ctx context.Context) (*query.Result, error) {
		return engine.Query(ctx, question)
	}).Wait(ctx)
	p.recordQuery(ctx, question, res, err, time.Since(start))
	return res, err
}

// Ask builds the index if none exists yet, then answers question.
func (p *Project) Ask(ctx context.Context, question string) (*query.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errEmptyQuestion()
	}
	if _, err := p.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return p.Query(ctx, question)
}

// Chat sends text straight to the language model, without retrieval or
// history.
func (p *Project) Chat(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errEmptyQuestion()
	}
	return async.Go(ctx, p.pool, func(ctx context.Context) (string, error) {
		return p.generator.Generate(ctx, text)
	}).Wait(ctx)
}

// Documents lists the files under input/, sorted case-insensitively.
func (p *Project) Documents(ctx context.Context) ([]string, error) {
	files, err := index.ScanInputs(ctx, p.cfg.InputDir())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeFileNotFound, err)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return strings.ToLower(files[i]) < strings.ToLower(files[j])
	})
	return files, nil
}

// AddDocument stores r under input/ as the base name of name and rebuilds.
// An existing file of the same name is replaced.
func (p *Project) AddDocument(ctx context.Context, name string, r io.Reader) (*index.Report, error) {
	if _, err := p.StoreDocument(name, r); err != nil {
		return nil, err
	}
	return p.BuildIndex(ctx)
}

// StoreDocument writes r to input/ under the sanitised base name of name
// without rebuilding, and returns the stored name. The file appears
// atomically so a concurrent build never reads it half written.
func (p *Project) StoreDocument(name string, r io.Reader) (string, error) {
	base, err := SanitizeName(name)
	if err != nil {
		return "", err
	}

	dir := p.cfg.InputDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}

	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	_, err = io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), filepath.Join(dir, base))
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", apperrors.Wrapf(apperrors.ErrCodePersistFailed, err, "failed to store %s", base)
	}

	slog.Info("document_added", slog.String("name", base))
	return base, nil
}

// SanitizeName reduces a delivered file name to a safe base name inside
// input/. Names that are empty, hidden or only dots are rejected.
func SanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := strings.TrimSpace(filepath.Base(filepath.FromSlash(name)))
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(`<>:"|?*`, r) {
			return '_'
		}
		return r
	}, base)

	if base == "" || base == "." || base == string(filepath.Separator) || strings.HasPrefix(base, ".") {
		return "", apperrors.ValidationError(fmt.Sprintf("invalid document name %q", name), nil)
	}
	return base, nil
}

func errEmptyQuestion() error {
	return apperrors.New(apperrors.ErrCodeQueryEmpty, "question is empty", nil)
}

// Status describes the index and the configured services.
func (p *Project) Status(ctx context.Context) ui.StatusInfo {
	info := ui.StatusInfo{
		ProjectName:    p.cfg.Project.Name,
		ProjectDir:     p.cfg.ProjectDir(),
		State:          string(index.StateNotBuilt),
		EmbedderType:   p.cfg.Embeddings.Provider,
		EmbedderStatus: "not loaded",
		EmbedderModel:  p.cfg.Embeddings.Model,
		LLMURL:         p.cfg.LLM.BaseURL,
		LLMModel:       p.cfg.LLM.Model,
	}
	if p.opts.Offline {
		info.EmbedderType = string(embed.ProviderStatic)
		info.EmbedderModel = embed.StaticModelID
	}

	if files, err := index.ScanInputs(ctx, p.cfg.InputDir()); err == nil {
		info.InputFiles = len(files)
	}

	if m, err := p.store.ReadManifest(); err == nil {
		info.State = string(index.StateReady)
		info.BuildID = m.BuildID
		info.Documents = m.DocumentCount
		info.Nodes = m.NodeCount
		info.Dimensions = m.Dimensions
		info.EmbeddingModel = m.EmbeddingModelID
		info.LastBuilt = m.CreatedAt
		info.IndexSize = p.store.Size()
	}

	p.mu.Lock()
	builder, embedder := p.builder, p.embedder
	p.mu.Unlock()

	if builder != nil && builder.State() == index.StateBuilding {
		snap := p.progress.Snapshot()
		info.State = string(index.StateBuilding)
		info.BuildStage = snap.Stage
		info.BuildProgress = snap.ProgressPct
	}
	if snap := p.progress.Snapshot(); snap.Status == string(async.StatusError) {
		info.BuildError = snap.ErrorMessage
	}

	if embedder != nil {
		ei := embed.GetInfo(ctx, embedder)
		info.EmbedderType = ei.Provider.String()
		info.EmbedderModel = ei.Model
		info.EmbedderStatus = "ready"
		if !ei.Available {
			info.EmbedderStatus = "offline"
		}
	}
	info.Queries = p.queryStatus(ctx)
	return info
}

// Close waits for running tasks and releases the embedder and the query
// statistics.
func (p *Project) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		p.pool.Close()

		p.mu.Lock()
		if p.embedder != nil {
			errs = append(errs, p.embedder.Close())
		}
		p.mu.Unlock()

		p.metricsMu.Lock()
		if p.metrics != nil {
			errs = append(errs, p.metrics.Close())
		}
		p.metricsMu.Unlock()
	})
	return errors.Join(errs...)
}
