package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docsort/pkg/llm"
)

func TestCreateEmbedding(t *testing.T) {
	srv := newOpenAIServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(text)), 1, 0},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embed",
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	})

	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider:       "openai",
		BaseURL:        srv.URL + "/v1",
		APIKey:         "sk-test",
		EmbeddingModel: "test-embed",
	})
	require.NoError(t, err)

	vectors, err := p.CreateEmbedding(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 1, 0}, vectors[0])
	assert.Equal(t, []float32{3, 1, 0}, vectors[1])
}

func TestCreateEmbeddingNoInput(t *testing.T) {
	p, err := llm.NewProvider(llm.ProviderConfig{Provider: "ollama"})
	require.NoError(t, err)

	vectors, err := p.CreateEmbedding(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, vectors)
}
