package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "ollama"
  base_url: "http://localhost:11434"
  embedding_model: "nomic-embed-text"
  label_model: "mistral"
  max_tokens: 32
  temperature: 0.5

pipeline:
  concurrency: 4
  max_attempts: 5
  batch_size: 10

extractor:
  max_pages: 2
  max_chars: 1500

clustering:
  min_cluster_size: 3
  adaptive: true

database:
  url: "postgres://localhost:5432/test"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, "mistral", config.LLM.LabelModel)
	assert.Equal(t, "mistral", config.LLM.VisionModel)
	assert.Equal(t, 32, config.LLM.MaxTokens)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.5, *config.LLM.Temperature)
	assert.Equal(t, 4, config.Pipeline.Concurrency)
	assert.Equal(t, 5, config.Pipeline.MaxAttempts)
	assert.Equal(t, 2, config.Extractor.MaxPages)
	assert.Equal(t, 50, config.Extractor.MaxParagraphs)
	assert.Equal(t, 3, config.Clustering.MinClusterSize)
	assert.True(t, config.Clustering.Adaptive)
	assert.Equal(t, "document_metadata", config.Database.TableName)
}

func TestDefaults(t *testing.T) {
	config := Default()

	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "https://openrouter.ai/api/v1", config.LLM.BaseURL)
	assert.Equal(t, "qwen/qwen3-embedding-8b", config.LLM.EmbeddingModel)
	assert.Equal(t, 20, config.LLM.MaxTokens)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.2, *config.LLM.Temperature)
	assert.Equal(t, 8, config.Pipeline.Concurrency)
	assert.Equal(t, 3, config.Pipeline.MaxAttempts)
	assert.Equal(t, 3, config.Extractor.MaxPages)
	assert.Equal(t, 2000, config.Extractor.MaxChars)
	assert.Equal(t, 4, config.Reducer.MinPoints)
	assert.Equal(t, 2, config.Clustering.MinClusterSize)
}

func TestZeroTemperatureIsKept(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configData := `
llm:
  provider: "ollama"
  base_url: "http://localhost:11434"
  temperature: 0
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.0, *config.LLM.Temperature)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	valid := Default()
	valid.LLM.APIKey = "sk-test"

	invalid := Default()
	invalid.LLM.BaseURL = "invalid-url"
	invalid.LLM.MaxTokens = 5000
	tooHot := 3.0
	invalid.LLM.Temperature = &tooHot
	invalid.Pipeline.Concurrency = 0
	invalid.Clustering.MinClusterSize = 1

	tests := []struct {
		name          string
		config        *Config
		expectedErrs  int
		errorMessages []string
	}{
		{
			name:         "valid config",
			config:       valid,
			expectedErrs: 0,
		},
		{
			name:         "invalid config",
			config:       invalid,
			expectedErrs: 6,
			errorMessages: []string{
				"llm.base_url: a valid absolute base URL is required",
				"llm.api_key: api_key is required",
				"max_tokens: max_tokens must be between 1 and 4096",
				"temperature: temperature must be between 0 and 2",
				"pipeline.concurrency: concurrency must be between 1 and 64",
				"clustering.min_cluster_size: min_cluster_size must be at least 2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := tt.config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			if tt.errorMessages != nil {
				for i, msg := range tt.errorMessages {
					assert.Contains(t, errors[i].Error(), msg)
				}
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-env")
	t.Setenv("LLM_BASE_URL", "http://env-llm:8000/v1")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("PORT", "9090")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "sk-env", config.LLM.APIKey)
	assert.Equal(t, "http://env-llm:8000/v1", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, "9090", config.Server.Port)
}
