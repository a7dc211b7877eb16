package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aissist/indexbot/internal/async"
	"github.com/aissist/indexbot/internal/chunk"
	"github.com/aissist/indexbot/internal/config"
	"github.com/aissist/indexbot/internal/embed"
	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/loader"
	"github.com/aissist/indexbot/internal/store"
	"github.com/aissist/indexbot/internal/ui"
	"github.com/aissist/indexbot/internal/vector"
)

// IndexStore is the part of *store.Store the builder writes through.
type IndexStore interface {
	Save(ctx context.Context, buildID string, idx *vector.Index, docs []store.DocumentRecord) (*store.Manifest, error)
	ReadManifest() (*store.Manifest, error)
	Lock() *store.FileLock
	Sweep() error
}

// DocumentLoader turns one file into a SourceDocument. *loader.Dispatcher
// implements it.
type DocumentLoader interface {
	Load(ctx context.Context, path string) loader.SourceDocument
}

// Options tunes a build.
type Options struct {
	// InputDir is the corpus root.
	InputDir string
	// ChunkSize and ChunkOverlap are in runes.
	ChunkSize    int
	ChunkOverlap int
	// GraphMinNodes is the node count from which an HNSW graph is attached.
	// Zero or negative disables graphs.
	GraphMinNodes int
	Graph         vector.GraphConfig
	// EmbedWorkers bounds how many documents are embedded concurrently.
	EmbedWorkers int
}

// OptionsFromConfig derives build options from the project configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InputDir:      cfg.InputDir(),
		ChunkSize:     cfg.Index.ChunkSize,
		ChunkOverlap:  cfg.Index.ChunkOverlap,
		GraphMinNodes: cfg.Index.GraphMinNodes,
		Graph:         vector.DefaultGraphConfig(),
		EmbedWorkers:  cfg.Index.EmbedWorkers,
	}
}

// Dependencies are the collaborators of a Builder.
type Dependencies struct {
	Store    IndexStore
	Loader   DocumentLoader
	Embedder embed.Embedder

	// Progress is optional; a fresh tracker is used when nil.
	Progress *async.IndexProgress
	// Renderer is optional; events are discarded when nil.
	Renderer ui.Renderer
}

// Builder runs builds for one project. At most one build runs at a time:
// callers inside the process share the in-flight build, and the build lock
// in the index directory turns away other processes.
type Builder struct {
	opts     Options
	store    IndexStore
	loader   DocumentLoader
	embedder embed.Embedder
	chunker  *chunk.TextChunker
	progress *async.IndexProgress
	renderer ui.Renderer

	group    singleflight.Group
	building atomic.Bool
}

const buildKey = "build"

// NewBuilder creates a Builder with injected dependencies.
func NewBuilder(opts Options, deps Dependencies) (*Builder, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("index store is required")
	}
	if deps.Loader == nil {
		return nil, fmt.Errorf("document loader is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if opts.InputDir == "" {
		return nil, fmt.Errorf("input directory is required")
	}
	if opts.EmbedWorkers < 1 {
		opts.EmbedWorkers = 1
	}
	if opts.Graph.M == 0 {
		opts.Graph = vector.DefaultGraphConfig()
	}

	progress := deps.Progress
	if progress == nil {
		progress = async.NewIndexProgress()
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.NopRenderer{}
	}

	return &Builder{
		opts:     opts,
		store:    deps.Store,
		loader:   deps.Loader,
		embedder: deps.Embedder,
		chunker:  chunk.NewTextChunker(opts.ChunkSize, opts.ChunkOverlap),
		progress: progress,
		renderer: renderer,
	}, nil
}

// Progress returns the tracker of the current or last build.
func (b *Builder) Progress() *async.IndexProgress { return b.progress }

// State reports building while a build runs in this process, otherwise
// ready or not_built from the published manifest.
func (b *Builder) State() State {
	if b.building.Load() {
		return StateBuilding
	}
	if _, err := b.store.ReadManifest(); err != nil {
		return StateNotBuilt
	}
	return StateReady
}

// Build runs a build, or waits for the one already running in this process
// and returns its result with Shared set. On an empty corpus the report has
// OutcomeEmptyCorpus and the error is EmptyCorpus; the prior index is kept.
//
// The build itself is not cancelled with ctx: a caller whose ctx ends stops
// waiting and gets ctx's error, while the build runs on for the others.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	leader := false
	ch := b.group.DoChan(buildKey, func() (any, error) {
		leader = true
		return b.run(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		rep, _ := res.Val.(*Report)
		if rep != nil && !leader {
			shared := *rep
			shared.Shared = true
			rep = &shared
		}
		return rep, res.Err
	}
}

// TryBuild is Build without waiting: it fails with BuildInProgress when a
// build is already running.
func (b *Builder) TryBuild(ctx context.Context) (*Report, error) {
	if b.building.Load() {
		return nil, buildInProgress("a build is already running in this process")
	}
	return b.Build(ctx)
}

func buildInProgress(msg string) error {
	return apperrors.New(apperrors.ErrCodeBuildInProgress, msg, nil).
		WithSuggestion("Wait for the running build to finish and try again")
}

func (b *Builder) run(ctx context.Context) (*Report, error) {
	b.building.Store(true)
	defer b.building.Store(false)

	lock := b.store.Lock()
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeLockFailed, "failed to acquire build lock", err).
			WithDetail("lock", lock.Path())
	}
	if !acquired {
		return nil, buildInProgress("another process is building this index")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("failed to release build lock", slog.String("error", err.Error()))
		}
	}()

	b.progress.Reset()
	rep, err := b.build(ctx)
	if err != nil {
		b.progress.SetError(err.Error())
		slog.Error("index_build_failed", slog.String("error", err.Error()))
		return rep, err
	}
	b.progress.SetReady()
	return rep, nil
}

// stageTiming tracks duration for each build stage.
type stageTiming struct {
	scan, load, embed, persist time.Duration
}

// pending is a loaded document waiting for its vectors.
type pending struct {
	doc     loader.SourceDocument
	rel     string
	chunks  []chunk.Chunk
	vectors [][]float32
}

func (b *Builder) build(ctx context.Context) (*Report, error) {
	start := time.Now()
	var timing stageTiming
	rep := &Report{Failures: []FileIssue{}, Skipped: []FileIssue{}}

	if err := b.store.Sweep(); err != nil {
		slog.Warn("index_sweep_failed", slog.String("error", err.Error()))
	}

	// Stage 1: scan
	b.progress.SetStage(async.StageScanning)
	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + b.opts.InputDir})
	slog.Info("index_build_started", slog.String("input", b.opts.InputDir))

	files, err := ScanInputs(ctx, b.opts.InputDir)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeFileNotFound, "failed to scan input directory", err).
			WithDetail("input", b.opts.InputDir)
	}
	timing.scan = time.Since(start)
	b.progress.SetFilesTotal(len(files))

	// Stage 2: load, sequentially, folding every outcome into the report
	loadStart := time.Now()
	b.progress.SetStage(async.StageLoading)
	docs := b.load(ctx, files, rep)
	timing.load = time.Since(loadStart)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		rep.Outcome = OutcomeEmptyCorpus
		rep.Duration = time.Since(start)
		slog.Info("index_build_empty_corpus",
			slog.Int("files", len(files)),
			slog.Int("failed", len(rep.Failures)),
			slog.Int("skipped", len(rep.Skipped)))
		return rep, apperrors.New(apperrors.ErrCodeEmptyCorpus, "no documents found in input/", nil).
			WithDetail("files", fmt.Sprint(len(files))).
			WithDetail("failed", fmt.Sprint(len(rep.Failures))).
			WithSuggestion("Add pdf, docx, doc, odt, xls, xlsx, pptx, txt, md, rst or html files to " + b.opts.InputDir)
	}

	// Stage 3: embed
	embedStart := time.Now()
	if err := b.embed(ctx, docs); err != nil {
		return nil, err
	}
	timing.embed = time.Since(embedStart)

	idx, records, err := b.assemble(docs)
	if err != nil {
		return nil, err
	}

	// Stage 4: persist
	persistStart := time.Now()
	b.progress.SetStage(async.StagePersisting)
	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StagePersisting, Message: fmt.Sprintf("Writing %d nodes", idx.Len())})

	buildID := uuid.NewString()
	manifest, err := b.store.Save(ctx, buildID, idx, records)
	if err != nil {
		return nil, err
	}
	timing.persist = time.Since(persistStart)

	rep.Outcome = OutcomeBuilt
	rep.BuildID = manifest.BuildID
	rep.Documents = len(docs)
	rep.Nodes = idx.Len()
	rep.Manifest = manifest
	rep.Duration = time.Since(start)

	info := embed.GetInfo(ctx, b.embedder)
	b.renderer.Complete(ui.CompletionStats{
		Documents: rep.Documents,
		Nodes:     rep.Nodes,
		Failed:    len(rep.Failures),
		Skipped:   len(rep.Skipped),
		Duration:  rep.Duration,
		Stages: ui.StageTimings{
			Scan:    timing.scan,
			Load:    timing.load,
			Embed:   timing.embed,
			Persist: timing.persist,
		},
		Embedder: ui.EmbedderInfo{
			Backend:    string(info.Provider),
			Model:      info.Model,
			Dimensions: info.Dimensions,
		},
	})

	slog.Info("index_build_complete",
		slog.String("build_id", buildID),
		slog.Int("documents", rep.Documents),
		slog.Int("nodes", rep.Nodes),
		slog.Int("failed", len(rep.Failures)),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Bool("graph", manifest.Graph),
		slog.Int64("duration_scan_ms", timing.scan.Milliseconds()),
		slog.Int64("duration_load_ms", timing.load.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.Int64("duration_persist_ms", timing.persist.Milliseconds()),
		slog.String("embedder_model", info.Model))

	return rep, nil
}

func (b *Builder) load(ctx context.Context, files []string, rep *Report) []*pending {
	var docs []*pending
	for i, rel := range files {
		if ctx.Err() != nil {
			return nil
		}

		doc := b.loader.Load(ctx, filepath.Join(b.opts.InputDir, filepath.FromSlash(rel)))
		b.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageLoading,
			Current:     i + 1,
			Total:       len(files),
			CurrentFile: rel,
		})

		switch doc.Status {
		case loader.StatusOK:
			chunks := b.chunker.ChunkSections(doc.Sections)
			if len(chunks) == 0 {
				rep.Skipped = append(rep.Skipped, FileIssue{Path: rel, Detail: "no extractable text"})
				break
			}
			docs = append(docs, &pending{doc: doc, rel: rel, chunks: chunks})
		case loader.StatusSkipped:
			slog.Info("document_skipped", slog.String("path", rel), slog.String("detail", doc.ErrorDetail))
			rep.Skipped = append(rep.Skipped, FileIssue{Path: rel, Detail: doc.ErrorDetail})
			b.renderer.AddError(ui.ErrorEvent{File: rel, Err: errors.New(doc.ErrorDetail), IsWarn: true})
		default:
			slog.Warn("document_extraction_failed",
				slog.String("path", rel),
				slog.String("format", doc.Format.String()),
				slog.String("detail", doc.ErrorDetail))
			rep.Failures = append(rep.Failures, FileIssue{Path: rel, Detail: doc.ErrorDetail})
			b.renderer.AddError(ui.ErrorEvent{File: rel, Err: errors.New(doc.ErrorDetail)})
		}
		b.progress.FileDone(rel, doc.Status == loader.StatusFailed)
	}
	return docs
}

// embed fills in the vectors of every document, several documents at a
// time. Any failure aborts the build.
func (b *Builder) embed(ctx context.Context, docs []*pending) error {
	total := 0
	for _, d := range docs {
		total += len(d.chunks)
	}
	b.progress.SetStage(async.StageEmbedding)
	b.progress.SetChunksTotal(total)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.EmbedWorkers)

	for _, d := range docs {
		g.Go(func() error {
			texts := make([]string, len(d.chunks))
			for i, c := range d.chunks {
				texts[i] = c.Text
			}

			vecs, err := b.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				if apperrors.GetCode(err) == apperrors.ErrCodeEmbeddingFailed {
					return err
				}
				return apperrors.New(apperrors.ErrCodeEmbeddingFailed, "failed to embed "+d.rel, err).
					WithDetail("model", b.embedder.ModelName())
			}
			if len(vecs) != len(texts) {
				return apperrors.New(apperrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("embedder returned %d vectors for %d chunks of %s", len(vecs), len(texts), d.rel), nil)
			}
			d.vectors = vecs

			n := done.Add(int64(len(vecs)))
			b.progress.AddChunks(len(vecs))
			b.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageEmbedding,
				Current:     int(n),
				Total:       total,
				CurrentFile: d.rel,
			})
			return nil
		})
	}
	return g.Wait()
}

// assemble lays nodes out in document order then chunk order.
func (b *Builder) assemble(docs []*pending) (*vector.Index, []store.DocumentRecord, error) {
	idx := vector.NewIndex(b.embedder.ModelName(), b.embedder.Dimensions())
	records := make([]store.DocumentRecord, 0, len(docs))

	for _, d := range docs {
		for i, c := range d.chunks {
			title := c.Section
			if title == "" {
				title = d.doc.Title
			}
			err := idx.Add(vector.Node{
				ID:         NodeID(d.rel, c.Index),
				SourcePath: d.rel,
				Chunk:      c.Index,
				Title:      title,
				Text:       c.Text,
				Vector:     d.vectors[i],
			})
			if err != nil {
				return nil, nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed, "embedder produced inconsistent vectors", err).
					WithDetail("path", d.rel)
			}
		}
		records = append(records, store.DocumentRecord{
			Path:   d.rel,
			Format: d.doc.Format.String(),
			Nodes:  len(d.chunks),
		})
	}

	if b.opts.GraphMinNodes > 0 && idx.Len() >= b.opts.GraphMinNodes {
		if err := idx.AttachGraph(vector.BuildGraph(idx, b.opts.Graph)); err != nil {
			return nil, nil, apperrors.InternalError("failed to attach vector graph", err)
		}
	}
	return idx, records, nil
}

// NodeID is the stable identifier of a chunk: "<source_path>#<index>".
func NodeID(sourcePath string, chunkIndex int) string {
	return fmt.Sprintf("%s#%d", sourcePath, chunkIndex)
}
