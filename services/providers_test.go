package services

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleEmbedding(t *testing.T) {
	e := NewSimpleEmbedder()
	a, err := e.Embed(context.Background(), "Grilled chicken bowl")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "grilled CHICKEN bowl!")
	require.NoError(t, err)

	assert.Len(t, a, simpleDimensions)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	assert.NoError(t, e.TestConnection(context.Background()))
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic-embed-text", req.Model)
			assert.Equal(t, "tofu", req.Prompt)
			_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2}})
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text")
	emb, err := e.Embed(context.Background(), "tofu")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, emb)
	assert.NoError(t, e.TestConnection(context.Background()))
}

func TestOllamaEmbedderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/embeddings" {
			_, _ = w.Write([]byte(`{"embedding": []}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "m")
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, e.TestConnection(context.Background()))
}

func TestOllamaGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.InDelta(t, 0.3, req.Options.Temperature, 1e-6)

		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaChatMessage{Role: "assistant", Content: ` {"ok": true} `}, Done: true})
	}))
	defer srv.Close()

	out, err := NewOllamaGenerator(srv.URL, "llama3.2:3b").Complete(context.Background(), CompletionRequest{
		System:      "sys",
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.3,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
}

func TestOpenAIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/chat/completions":
			var req openAIChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-4o-mini", req.Model)
			assert.Equal(t, 500, req.MaxTokens)
			assert.Nil(t, req.ResponseFormat)
			_, _ = w.Write([]byte(`{"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there"}}]}`))
		case "/v1/embeddings":
			_, _ = w.Write([]byte(`{"data": [{"embedding": [1, 0, 0.5]}]}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "nope"}`))
		}
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL+"/v1/", "gpt-4o-mini", "text-embedding-3-small")

	out, err := client.Complete(context.Background(), CompletionRequest{
		Messages:  []Message{{Role: "user", Content: "hi"}},
		MaxTokens: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)

	emb, err := client.Embed(context.Background(), "tofu")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0.5}, emb)

	bad := NewOpenAIClient("sk-test", srv.URL, "m", "e")
	_, err = bad.Complete(context.Background(), CompletionRequest{})
	assert.ErrorContains(t, err, "status 401")
}
