package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docsort/pkg/llm"
)

func newOpenAIServer(t *testing.T, chat http.HandlerFunc, embed http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	if chat != nil {
		mux.HandleFunc("/v1/chat/completions", chat)
	}
	if embed != nil {
		mux.HandleFunc("/v1/embeddings", embed)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func chatReply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []any{
				map[string]any{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		config  llm.ProviderConfig
		wantErr bool
	}{
		{
			name:   "openai compatible",
			config: llm.ProviderConfig{Provider: "openai", APIKey: "sk-test", BaseURL: "http://localhost:1234/v1"},
		},
		{
			name:   "ollama",
			config: llm.ProviderConfig{Provider: "ollama", BaseURL: "http://localhost:11434"},
		},
		{
			name:    "unknown provider",
			config:  llm.ProviderConfig{Provider: "bogus"},
			wantErr: true,
		},
		{
			name:    "bad temperature",
			config:  llm.ProviderConfig{Provider: "ollama", Temperature: 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := llm.NewProvider(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
			assert.Equal(t, 20, p.Config().MaxTokens)
		})
	}
}

func TestComplete(t *testing.T) {
	srv := newOpenAIServer(t, chatReply("Invoices"), nil)

	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider:   "openai",
		BaseURL:    srv.URL + "/v1",
		APIKey:     "sk-test",
		LabelModel: "test-model",
	})
	require.NoError(t, err)

	answer, err := p.Complete(context.Background(), "name this folder")
	require.NoError(t, err)
	assert.Equal(t, "Invoices", answer)
}

func TestCompleteEmptyAnswer(t *testing.T) {
	srv := newOpenAIServer(t, chatReply("   "), nil)

	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider: "openai",
		BaseURL:  srv.URL + "/v1",
		APIKey:   "sk-test",
	})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "name this folder")
	assert.Error(t, err)
}
