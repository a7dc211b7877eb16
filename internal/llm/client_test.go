package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aissist/indexbot/internal/errors"
)

func TestClient_Generate_SendsNonStreamingRequest(t *testing.T) {
	// Given: a server that records the request
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"llama3","response":"Paris.","done":true}`))
	}))
	defer srv.Close()

	// When: generating
	c := New(Config{BaseURL: srv.URL + "/", Model: "llama3"})
	answer, err := c.Generate(context.Background(), "What is the capital of France?")

	// Then: the request matches the wire contract and the answer is returned
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
	assert.Equal(t, generateRequest{Model: "llama3", Prompt: "What is the capital of France?", Stream: false}, got)
}

func TestClient_Generate_EmptyResponseFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"done":true}`))
	}))
	defer srv.Close()

	answer, err := New(Config{BaseURL: srv.URL, Model: "m"}).Generate(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, NoResponse, answer)
}

func TestClient_Generate_FailuresAreUpstreamUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
			status: "500",
		},
		{
			name: "model not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"model 'llama3' not found"}`, http.StatusNotFound)
			},
			status: "404",
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>proxy error</html>"))
			},
			status: "200",
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error":"out of memory"}`))
			},
			status: "200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL, Model: "llama3"}).Generate(context.Background(), "q")

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrUpstreamUnavailable))
			ibErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, ibErr.Details["status"])
			assert.NotNil(t, ibErr.Cause)
		})
	}
}

func TestClient_Generate_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{BaseURL: url, Model: "m"}).Generate(context.Background(), "q")

	assert.True(t, errors.Is(err, apperrors.ErrUpstreamUnavailable))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestClient_Generate_TimeoutIsBounded(t *testing.T) {
	// Given: a server slower than the client timeout
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	// When: generating with a short timeout
	start := time.Now()
	_, err := New(Config{BaseURL: srv.URL, Model: "m", Timeout: 100 * time.Millisecond}).
		Generate(context.Background(), "q")

	// Then: the call returns promptly with UpstreamUnavailable
	assert.True(t, errors.Is(err, apperrors.ErrUpstreamUnavailable))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNew_DefaultTimeout(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:11434", Model: "llama3"})
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.Equal(t, "llama3", c.Model())
}
