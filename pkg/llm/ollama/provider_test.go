package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kart-io/docquery/pkg/llm"
	"github.com/kart-io/docquery/pkg/llm/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(baseURL string) *ollama.Provider {
	cfg := ollama.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.MaxRetries = 1
	cfg.Timeout = 5 * time.Second
	return ollama.NewProviderWithConfig(cfg)
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embeddings[i] = []float32{float32(i), 1}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      req.Model,
			"embeddings": embeddings,
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0, 1}, vecs[0])
	assert.Equal(t, []float32{1, 1}, vecs[1])
}

func TestEmbedEmptyInput(t *testing.T) {
	p := newTestProvider("http://unreachable.invalid")

	vecs, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{1, 2}},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)

	var embErr *llm.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, embErr.Message, "expected 2 embeddings")
}

func TestEmbedBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)

	var embErr *llm.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, err.Error(), "model not found")
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req struct {
			Model   string `json:"model"`
			Prompt  string `json:"prompt"`
			Stream  bool   `json:"stream"`
			Options struct {
				Temperature float64 `json:"temperature"`
				TopP        float64 `json:"top_p"`
				NumCtx      int     `json:"num_ctx"`
			} `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral", req.Model)
		assert.False(t, req.Stream)
		assert.InDelta(t, 0.7, req.Options.Temperature, 1e-9)
		assert.InDelta(t, 0.9, req.Options.TopP, 1e-9)
		assert.Equal(t, 4096, req.Options.NumCtx)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":    req.Model,
			"response": "the answer",
			"done":     true,
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	answer, err := p.Generate(context.Background(), "why?", nil)
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
}

func TestGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.Generate(context.Background(), "why?", nil)
	require.Error(t, err)

	var genErr *llm.GenerationError
	require.ErrorAs(t, err, &genErr)
}

func TestRetryRebuildsRequestBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		// 每次重试都必须收到完整的请求体
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"hello"}, req.Input)

		if n == 1 {
			// 断开连接触发重试
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{1}},
		})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	vecs, err := p.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	assert.NoError(t, p.Ping(context.Background()))
}

func TestProviderRegistered(t *testing.T) {
	p, err := llm.NewEmbeddingProvider(ollama.ProviderName, map[string]any{
		"base_url":    "http://localhost:11434",
		"embed_model": "custom-model",
	})
	require.NoError(t, err)
	assert.Equal(t, ollama.ProviderName, p.Name())
}
