package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/aissist/indexbot/internal/config"
	apperrors "github.com/aissist/indexbot/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses the Ollama API for embeddings (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings, no model server needed
	ProviderStatic ProviderType = "static"
)

// ParseProvider converts a string to ProviderType. Unknown names map to Ollama.
func ParseProvider(s string) ProviderType {
	if strings.EqualFold(strings.TrimSpace(s), string(ProviderStatic)) {
		return ProviderStatic
	}
	return ProviderOllama
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// New builds the embedder selected by cfg.Embeddings, wrapped in an LRU cache
// when cache_size > 0. offline forces the static embedder regardless of the
// configured provider.
//
// There is no silent fallback: if the configured Ollama model cannot be
// reached the error is an EmbeddingModelFailure and the caller decides.
func New(ctx context.Context, cfg *config.Config, offline bool) (Embedder, error) {
	provider := ParseProvider(cfg.Embeddings.Provider)
	if offline {
		provider = ProviderStatic
	}

	var embedder Embedder
	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		ocfg := DefaultOllamaConfig()
		ocfg.Host = cfg.Embeddings.OllamaHost
		ocfg.Model = cfg.Embeddings.Model
		ocfg.Device = strings.ToLower(cfg.Embeddings.Device)
		if cfg.Embeddings.BatchSize > 0 {
			ocfg.BatchSize = cfg.Embeddings.BatchSize
		}
		if d := cfg.EmbeddingTimeout(); d > 0 {
			ocfg.Timeout = d
		}

		ollama, err := NewOllamaEmbedder(ctx, ocfg)
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrCodeEmbeddingFailed, err,
				"embedding model %q unavailable", cfg.Embeddings.Model).
				WithDetail("host", ocfg.Host).
				WithSuggestion(fmt.Sprintf("Start Ollama and run 'ollama pull %s', or use --offline", cfg.Embeddings.Model))
		}
		embedder = ollama
	}

	if cfg.Embeddings.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, cfg.Embeddings.CacheSize)
	}
	return embedder, nil
}

// EmbedderInfo contains information about an embedder
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
		Provider:   ProviderStatic,
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.Inner()
	}
	if _, ok := inner.(*OllamaEmbedder); ok {
		info.Provider = ProviderOllama
	}
	return info
}
