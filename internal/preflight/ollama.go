package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aissist/indexbot/internal/embed"
)

// CheckOllama checks that the servers are reachable and the configured
// models are installed. The generation model is required; a missing
// embedding model only matters when the Ollama provider is selected.
func (c *Checker) CheckOllama(ctx context.Context) []CheckResult {
	var results []CheckResult

	llmModels, llmErr := c.listModels(ctx, c.cfg.LLM.BaseURL)
	results = append(results, c.serverResult("ollama_llm", c.cfg.LLM.BaseURL, llmErr))
	if llmErr == nil {
		results = append(results, modelResult("llm_model", c.cfg.LLM.Model, llmModels))
	}

	if c.offline || embed.ParseProvider(c.cfg.Embeddings.Provider) == embed.ProviderStatic {
		results = append(results, CheckResult{
			Name:    "embedding_model",
			Status:  StatusPass,
			Message: "static embedder (no server needed)",
		})
		return results
	}

	embedModels, embedErr := llmModels, llmErr
	if host := c.cfg.Embeddings.OllamaHost; trimSlash(host) != trimSlash(c.cfg.LLM.BaseURL) {
		embedModels, embedErr = c.listModels(ctx, host)
		results = append(results, c.serverResult("ollama_embeddings", host, embedErr))
	}
	if embedErr == nil {
		results = append(results, modelResult("embedding_model", c.cfg.Embeddings.Model, embedModels))
	}
	return results
}

func (c *Checker) serverResult(name, host string, err error) CheckResult {
	result := CheckResult{Name: name, Required: true, Details: host}
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreachable: %v", err)
		return result
	}
	result.Status = StatusPass
	result.Message = host
	return result
}

func modelResult(name, model string, models []embed.OllamaModelInfo) CheckResult {
	result := CheckResult{Name: name, Required: true}
	tag, ok := embed.MatchModel(models, model)
	if !ok {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not installed", model)
		result.Details = fmt.Sprintf("Run 'ollama pull %s'", model)
		return result
	}
	result.Status = StatusPass
	result.Message = tag
	return result
}

func (c *Checker) listModels(ctx context.Context, host string) ([]embed.OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimSlash(host)+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var list embed.OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	return list.Models, nil
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
