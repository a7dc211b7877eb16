// Package query answers questions against a published index: it retrieves
// the most similar nodes and asks the language model to answer from them.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/aissist/indexbot/internal/embed"
	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/llm"
	"github.com/aissist/indexbot/internal/store"
	"github.com/aissist/indexbot/internal/vector"
)

const (
	// DefaultTopK is how many nodes ground an answer.
	DefaultTopK = 2

	// DefaultCacheSize is how many loaded indexes stay in memory. Two lets
	// in-flight queries finish on the previous build while new ones use the
	// current one.
	DefaultCacheSize = 2
)

// DefaultPromptTemplate grounds the model in the retrieved context.
const DefaultPromptTemplate = `Context information is below.
---------------------
{{.Context}}
---------------------
Given the context information and not prior knowledge, answer the query.
Query: {{.Question}}
Answer: `

// IndexReader is the read side of *store.Store.
type IndexReader interface {
	ReadManifest() (*store.Manifest, error)
	LoadGeneration(ctx context.Context, m *store.Manifest) (*vector.Index, error)
}

// Options tunes retrieval and prompting.
type Options struct {
	TopK           int
	PromptTemplate string
	CacheSize      int
}

// Result is the outcome of one question.
type Result struct {
	Question string `json:"question"`
	// RetrievedNodeIDs is ordered by similarity, ties by insertion order.
	RetrievedNodeIDs []string       `json:"retrieved_node_ids"`
	Matches          []vector.Match `json:"-"`
	// Sources are the distinct source paths of the matches, in match order.
	Sources []string `json:"sources"`
	Prompt  string   `json:"-"`
	Answer  string   `json:"answer,omitempty"`
	BuildID string   `json:"build_id"`
}

// Engine runs queries. It is safe for concurrent use.
type Engine struct {
	reader    IndexReader
	embedder  embed.Embedder
	generator llm.Generator
	topK      int
	tmpl      *template.Template

	cache *lru.Cache[string, *vector.Index]
	loads singleflight.Group
}

// New creates an Engine. A prompt template that does not parse is a
// configuration error.
func New(reader IndexReader, embedder embed.Embedder, generator llm.Generator, opts Options) (*Engine, error) {
	if reader == nil || embedder == nil || generator == nil {
		return nil, fmt.Errorf("query engine requires an index reader, an embedder and a generator")
	}
	if opts.TopK < 1 {
		opts.TopK = DefaultTopK
	}
	if opts.CacheSize < 1 {
		opts.CacheSize = DefaultCacheSize
	}
	if strings.TrimSpace(opts.PromptTemplate) == "" {
		opts.PromptTemplate = DefaultPromptTemplate
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(opts.PromptTemplate)
	if err != nil {
		return nil, apperrors.ConfigError("invalid query.prompt_template", err)
	}
	cache, err := lru.New[string, *vector.Index](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}

	return &Engine{
		reader:    reader,
		embedder:  embedder,
		generator: generator,
		topK:      opts.TopK,
		tmpl:      tmpl,
		cache:     cache,
	}, nil
}

// TopK returns the number of nodes retrieved per question.
func (e *Engine) TopK() int { return e.topK }

// Query retrieves context for question and returns the model's answer.
// Without a published index it fails with IndexUnavailable before any
// model call.
func (e *Engine) Query(ctx context.Context, question string) (*Result, error) {
	res, err := e.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	answer, err := e.generator.Generate(ctx, res.Prompt)
	if err != nil {
		return nil, err
	}
	res.Answer = answer

	slog.Info("query_answered",
		slog.String("build_id", res.BuildID),
		slog.Any("nodes", res.RetrievedNodeIDs),
		slog.Duration("generate", time.Since(start)))
	return res, nil
}

// Retrieve does everything Query does except calling the model.
func (e *Engine) Retrieve(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.New(apperrors.ErrCodeQueryEmpty, "question is empty", nil)
	}

	m, err := e.reader.ReadManifest()
	if err != nil {
		return nil, err
	}
	if err := e.checkCompatible(m); err != nil {
		return nil, err
	}

	idx, err := e.index(ctx, m)
	if err != nil {
		return nil, err
	}

	qv, err := e.embedder.Embed(ctx, question)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeEmbeddingFailed {
			return nil, err
		}
		return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed, "failed to embed question", err)
	}

	matches, err := idx.SearchApprox(qv, e.topK)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeIndexIncompatible, "question vector does not fit the index", err).
			WithSuggestion("rebuild required: run 'indexbot build'")
	}

	res := &Result{
		Question:         question,
		RetrievedNodeIDs: make([]string, 0, len(matches)),
		Matches:          matches,
		Sources:          []string{},
		BuildID:          m.BuildID,
	}
	seen := make(map[string]bool)
	texts := make([]string, 0, len(matches))
	for _, match := range matches {
		res.RetrievedNodeIDs = append(res.RetrievedNodeIDs, match.Node.ID)
		texts = append(texts, match.Node.Text)
		if !seen[match.Node.SourcePath] {
			seen[match.Node.SourcePath] = true
			res.Sources = append(res.Sources, match.Node.SourcePath)
		}
	}

	prompt, err := e.renderPrompt(strings.Join(texts, "\n\n"), question)
	if err != nil {
		return nil, err
	}
	res.Prompt = prompt
	return res, nil
}

// checkCompatible refuses an index built with another embedding model or
// dimension. There is no migration: the index must be rebuilt.
func (e *Engine) checkCompatible(m *store.Manifest) error {
	model, dims := e.embedder.ModelName(), e.embedder.Dimensions()
	if m.EmbeddingModelID == model && m.Dimensions == dims {
		return nil
	}
	return apperrors.New(apperrors.ErrCodeIndexIncompatible,
		fmt.Sprintf("index was built with %s (%d dims), embedder is %s (%d dims)",
			m.EmbeddingModelID, m.Dimensions, model, dims), nil).
		WithDetail("index_model", m.EmbeddingModelID).
		WithDetail("embedder_model", model).
		WithSuggestion("rebuild required: run 'indexbot build'")
}

// index returns the loaded generation for m, loading it at most once.
func (e *Engine) index(ctx context.Context, m *store.Manifest) (*vector.Index, error) {
	if idx, ok := e.cache.Get(m.BuildID); ok {
		return idx, nil
	}

	v, err, _ := e.loads.Do(m.BuildID, func() (any, error) {
		start := time.Now()
		idx, err := e.reader.LoadGeneration(ctx, m)
		if err != nil {
			return nil, err
		}
		e.cache.Add(m.BuildID, idx)
		slog.Debug("index_loaded",
			slog.String("build_id", m.BuildID),
			slog.Int("nodes", idx.Len()),
			slog.Bool("graph", idx.Graph() != nil),
			slog.Duration("elapsed", time.Since(start)))
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*vector.Index), nil
}

func (e *Engine) renderPrompt(contextText, question string) (string, error) {
	var sb strings.Builder
	err := e.tmpl.Execute(&sb, struct {
		Context  string
		Question string
	}{contextText, question})
	if err != nil {
		return "", apperrors.ConfigError("failed to render query.prompt_template", err)
	}
	return sb.String(), nil
}
