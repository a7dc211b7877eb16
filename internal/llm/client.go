// Package llm is a thin client for a remote text-generation endpoint
// speaking the Ollama /api/generate protocol.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/aissist/indexbot/internal/errors"
)

const (
	// DefaultTimeout bounds one generation request.
	DefaultTimeout = 600 * time.Second

	// NoResponse is returned when the model answers without text.
	NoResponse = "No response from AI."
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls POST <base>/api/generate. It holds no state between calls.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

var _ Generator = (*Client)(nil)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// New creates a client. A zero timeout means DefaultTimeout.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends prompt and returns the model's answer. Every failure is an
// UpstreamUnavailable error carrying the cause.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", apperrors.InternalError("failed to encode generate request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", c.unavailable("invalid language model URL", err, 0)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.unavailable("language model request failed", err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", c.unavailable(
			fmt.Sprintf("language model returned status %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(msg))), resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", c.unavailable("failed to decode language model response", err, resp.StatusCode)
	}
	if out.Error != "" {
		return "", c.unavailable("language model reported an error", fmt.Errorf("%s", out.Error), resp.StatusCode)
	}

	slog.Debug("llm_generate",
		slog.String("model", c.model),
		slog.Int("prompt_chars", len(prompt)),
		slog.Int("response_chars", len(out.Response)),
		slog.Duration("elapsed", time.Since(start)))

	if strings.TrimSpace(out.Response) == "" {
		return NoResponse, nil
	}
	return out.Response, nil
}

func (c *Client) unavailable(msg string, cause error, status int) error {
	err := apperrors.New(apperrors.ErrCodeUpstreamUnavailable, msg, cause).
		WithDetail("url", c.baseURL).
		WithDetail("model", c.model).
		WithSuggestion("Check that Ollama is running and the model is pulled (ollama pull " + c.model + ")")
	if status != 0 {
		err.WithDetail("status", fmt.Sprint(status))
	}
	return err
}
