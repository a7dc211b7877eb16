package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/aissist/indexbot/internal/errors"
)

// FormatVersion is the only on-disk layout this package reads and writes.
const FormatVersion = 1

// ManifestFile is written last by every successful build. Its presence is the
// sole signal that a usable index exists.
const ManifestFile = "manifest.json"

// Manifest describes one published index generation.
type Manifest struct {
	FormatVersion    int       `json:"format_version"`
	BuildID          string    `json:"build_id"`
	EmbeddingModelID string    `json:"embedding_model_id"`
	Dimensions       int       `json:"dimensions"`
	NodeCount        int       `json:"node_count"`
	DocumentCount    int       `json:"document_count"`
	CreatedAt        time.Time `json:"created_at"`
	// DataDir is the generation directory, relative to the index directory.
	DataDir string `json:"data_dir"`
	Graph   bool   `json:"graph"`
	// Previous lists older generations still on disk, newest first.
	Previous []string `json:"previous,omitempty"`
}

// readManifest returns ErrIndexUnavailable when no manifest exists,
// ErrUnsupportedFormat for unknown versions and ErrCorruptIndex when the
// file cannot be decoded.
func readManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.New(apperrors.ErrCodeIndexUnavailable, "no index has been built", nil).
			WithSuggestion("Run 'indexbot build' after adding documents to input/")
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrCodeCorruptIndex, err, "failed to read %s", path)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrCodeCorruptIndex, err, "failed to decode %s", path).
			WithSuggestion("Rebuild the index")
	}
	if m.FormatVersion != FormatVersion {
		return nil, apperrors.New(apperrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("index format version %d is not supported (expected %d)", m.FormatVersion, FormatVersion), nil).
			WithSuggestion("Rebuild the index with this version of indexbot")
	}
	if m.DataDir == "" || filepath.Base(m.DataDir) != m.DataDir {
		return nil, apperrors.New(apperrors.ErrCodeCorruptIndex,
			fmt.Sprintf("manifest data_dir %q is invalid", m.DataDir), nil)
	}
	return &m, nil
}

// writeManifest replaces the manifest atomically with a temp file, fsync and
// rename. Once the rename succeeds the new manifest is live.
func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp := filepath.Join(dir, ManifestFile+".tmp")
	if err := writeFileSync(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, ManifestFile)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to publish manifest: %w", err)
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dir, err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", dir, err)
	}
	return nil
}
