package embed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aissist/indexbot/internal/config"
	apperrors "github.com/aissist/indexbot/internal/errors"
)

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
	assert.Equal(t, ProviderStatic, ParseProvider(" STATIC "))
	assert.Equal(t, ProviderOllama, ParseProvider("ollama"))
	assert.Equal(t, ProviderOllama, ParseProvider("something-else"))
}

func TestNew_OfflineUsesStaticEmbedder(t *testing.T) {
	// Given: a config pointing at Ollama
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "ollama"

	// When: offline is requested
	e, err := New(context.Background(), cfg, true)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: the static embedder is used, wrapped in the cache
	assert.Equal(t, StaticModelID, e.ModelName())
	_, cached := e.(*CachedEmbedder)
	assert.True(t, cached)
	assert.Equal(t, ProviderStatic, GetInfo(context.Background(), e).Provider)
}

func TestNew_ZeroCacheSizeSkipsCache(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.CacheSize = 0

	e, err := New(context.Background(), cfg, false)
	require.NoError(t, err)

	_, ok := e.(*StaticEmbedder)
	assert.True(t, ok)
}

func TestNew_UnavailableOllamaIsEmbeddingFailure(t *testing.T) {
	// Given: an Ollama server without the configured model
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	cfg := config.NewConfig()
	cfg.Embeddings.OllamaHost = srv.URL

	// When: the factory runs
	_, err := New(context.Background(), cfg, false)

	// Then: the error is an EmbeddingModelFailure with a remedy
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEmbeddingFailed))
	ibErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Contains(t, ibErr.Suggestion, "ollama pull all-minilm")
}

func TestNew_OllamaProviderWithFakeServer(t *testing.T) {
	fake := &fakeOllama{models: []string{"all-minilm:latest"}, dims: 384}
	srv := newFakeOllama(t, fake)

	cfg := config.NewConfig()
	cfg.Embeddings.OllamaHost = srv.URL

	e, err := New(context.Background(), cfg, false)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	info := GetInfo(context.Background(), e)
	assert.Equal(t, ProviderOllama, info.Provider)
	assert.Equal(t, "all-minilm", info.Model)
	assert.Equal(t, 384, info.Dimensions)
	assert.True(t, info.Available)
}
