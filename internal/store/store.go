// Package store persists built vector indexes.
//
// Layout of the index directory:
//
//	manifest.json        published last, names the current generation
//	gen-<build_id>/      nodes.db (SQLite) and optionally vectors.hnsw
//	.staging-<build_id>/ a generation being written
//	.build.lock          single-writer lock
//
// Readers resolve the manifest once and read the generation it names. A
// generation is never modified after publish, and the previous one is kept
// so a reader that resolved the old manifest can finish.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/vector"
)

const (
	genPrefix     = "gen-"
	stagingPrefix = ".staging-"

	// DefaultKeepGenerations is the current generation plus one previous.
	DefaultKeepGenerations = 2
)

// State is the persisted index state.
type State string

const (
	StateNotBuilt State = "not_built"
	StateReady    State = "ready"
)

// Options configures a Store.
type Options struct {
	// KeepGenerations is how many generations survive a publish (min 1).
	KeepGenerations int
	// Graph configures HNSW graphs written alongside node data.
	Graph vector.GraphConfig
}

// Store reads and writes indexes under one index directory.
type Store struct {
	dir  string
	opts Options

	// beforePublish runs after the generation is durable and before the
	// manifest is replaced.
	beforePublish func(genDir string) error
	// syncIndexDir flushes the index directory entry after the manifest
	// rename. Nil means syncDir.
	syncIndexDir func(dir string) error
}

// New returns a Store for dir. The directory is created lazily on Save.
func New(dir string, opts Options) *Store {
	if opts.KeepGenerations < 1 {
		opts.KeepGenerations = DefaultKeepGenerations
	}
	if opts.Graph.M == 0 {
		opts.Graph = vector.DefaultGraphConfig()
	}
	return &Store{dir: dir, opts: opts}
}

// Dir returns the index directory.
func (s *Store) Dir() string { return s.dir }

// Lock returns the build lock for this directory.
func (s *Store) Lock() *FileLock { return NewFileLock(s.dir) }

// ReadManifest returns the published manifest. See readManifest for errors.
func (s *Store) ReadManifest() (*Manifest, error) {
	return readManifest(s.dir)
}

// State reports ready only when a valid manifest is present.
func (s *Store) State() State {
	if _, err := readManifest(s.dir); err != nil {
		return StateNotBuilt
	}
	return StateReady
}

// Save writes idx as a new generation and publishes it. Callers must hold
// the build lock. On any error the previously published index is untouched
// and the error is a PersistFailure.
func (s *Store) Save(ctx context.Context, buildID string, idx *vector.Index, docs []DocumentRecord) (*Manifest, error) {
	m, err := s.save(ctx, buildID, idx, docs)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodePersistFailed, "failed to persist index", err).
			WithDetail("index_dir", s.dir)
	}
	return m, nil
}

func (s *Store) save(ctx context.Context, buildID string, idx *vector.Index, docs []DocumentRecord) (*Manifest, error) {
	if buildID == "" || strings.ContainsAny(buildID, `/\`) {
		return nil, fmt.Errorf("invalid build id %q", buildID)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	staging := filepath.Join(s.dir, stagingPrefix+buildID)
	genName := genPrefix + buildID
	genDir := filepath.Join(s.dir, genName)

	if err := os.Mkdir(staging, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
			_ = os.RemoveAll(genDir)
		}
	}()

	if err := writeNodesDB(ctx, filepath.Join(staging, NodesFile), idx, docs); err != nil {
		return nil, err
	}
	if g := idx.Graph(); g != nil {
		if err := writeGraph(filepath.Join(staging, GraphFile), g); err != nil {
			return nil, err
		}
	}
	if err := syncDir(staging); err != nil {
		return nil, err
	}
	if err := os.Rename(staging, genDir); err != nil {
		return nil, fmt.Errorf("failed to rename generation: %w", err)
	}
	if err := syncDir(s.dir); err != nil {
		return nil, err
	}

	if s.beforePublish != nil {
		if err := s.beforePublish(genDir); err != nil {
			return nil, err
		}
	}

	m := &Manifest{
		FormatVersion:    FormatVersion,
		BuildID:          buildID,
		EmbeddingModelID: idx.ModelID(),
		Dimensions:       idx.Dimensions(),
		NodeCount:        idx.Len(),
		DocumentCount:    idx.DocumentCount(),
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
		DataDir:          genName,
		Graph:            idx.Graph() != nil,
	}
	if prev, err := readManifest(s.dir); err == nil {
		m.Previous = append([]string{prev.DataDir}, prev.Previous...)
	}
	if keep := s.opts.KeepGenerations - 1; len(m.Previous) > keep {
		m.Previous = m.Previous[:keep]
	}

	if err := writeManifest(s.dir, m); err != nil {
		return nil, err
	}
	published = true

	syncIndexDir := s.syncIndexDir
	if syncIndexDir == nil {
		syncIndexDir = syncDir
	}
	if err := syncIndexDir(s.dir); err != nil {
		slog.Warn("index_dir_sync_failed", slog.String("dir", s.dir), slog.String("error", err.Error()))
	}

	if err := s.prune(m); err != nil {
		slog.Warn("index_prune_failed", slog.String("dir", s.dir), slog.String("error", err.Error()))
	}
	return m, nil
}

func writeGraph(path string, g *vector.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	if err := g.Export(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync graph file: %w", err)
	}
	return f.Close()
}

// Load reads the published index. A missing manifest is IndexUnavailable;
// node data disagreeing with the manifest is CorruptIndex. A graph that
// cannot be read is dropped with a warning and search falls back to exact.
func (s *Store) Load(ctx context.Context) (*vector.Index, *Manifest, error) {
	m, err := readManifest(s.dir)
	if err != nil {
		return nil, nil, err
	}
	idx, err := s.LoadGeneration(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	return idx, m, nil
}

// LoadGeneration reads the generation named by m.
func (s *Store) LoadGeneration(ctx context.Context, m *Manifest) (*vector.Index, error) {
	genDir := filepath.Join(s.dir, m.DataDir)
	nodesPath := filepath.Join(genDir, NodesFile)
	if _, err := os.Stat(nodesPath); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrCodeCorruptIndex, err, "index data missing for build %s", m.BuildID).
			WithSuggestion("Rebuild the index")
	}

	idx, err := readNodesDB(ctx, nodesPath, m.EmbeddingModelID, m.Dimensions)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCorruptIndex, "failed to read index data", err).
			WithSuggestion("Rebuild the index")
	}
	if idx.Len() != m.NodeCount {
		return nil, apperrors.New(apperrors.ErrCodeCorruptIndex,
			fmt.Sprintf("manifest lists %d nodes, data holds %d", m.NodeCount, idx.Len()), nil).
			WithSuggestion("Rebuild the index")
	}

	if m.Graph {
		if err := attachGraph(filepath.Join(genDir, GraphFile), idx, s.opts.Graph); err != nil {
			slog.Warn("index_graph_unreadable",
				slog.String("build_id", m.BuildID),
				slog.String("error", err.Error()))
		}
	}
	return idx, nil
}

func attachGraph(path string, idx *vector.Index, cfg vector.GraphConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	g, err := vector.ImportGraph(f, idx, cfg)
	if err != nil {
		return err
	}
	return idx.AttachGraph(g)
}

// Documents returns the document records of the published index.
func (s *Store) Documents(ctx context.Context) ([]DocumentRecord, error) {
	m, err := readManifest(s.dir)
	if err != nil {
		return nil, err
	}
	docs, err := readDocuments(ctx, filepath.Join(s.dir, m.DataDir, NodesFile))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeCorruptIndex, err)
	}
	return docs, nil
}

// Size returns the bytes used by the published generation, or 0 when no
// index exists.
func (s *Store) Size() int64 {
	m, err := readManifest(s.dir)
	if err != nil {
		return 0
	}
	var total int64
	_ = filepath.WalkDir(filepath.Join(s.dir, m.DataDir), func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Sweep removes staging directories and generations no manifest references,
// the leftovers of crashed builds. Callers must hold the build lock.
func (s *Store) Sweep() error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), stagingPrefix) {
			if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
				return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
			}
			slog.Debug("index_staging_removed", slog.String("dir", e.Name()))
		}
	}
	_ = os.Remove(filepath.Join(s.dir, ManifestFile+".tmp"))

	m, err := readManifest(s.dir)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeIndexUnavailable {
			m = &Manifest{}
		} else {
			// Leave generations alone when the manifest is unreadable; the
			// next successful build replaces it.
			return nil
		}
	}
	return s.prune(m)
}

// prune removes generation directories not referenced by m.
func (s *Store) prune(m *Manifest) error {
	keep := map[string]bool{}
	if m.DataDir != "" {
		keep[m.DataDir] = true
	}
	for _, p := range m.Previous {
		keep[p] = true
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) || keep[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		slog.Debug("index_generation_removed", slog.String("dir", e.Name()))
	}
	return nil
}
