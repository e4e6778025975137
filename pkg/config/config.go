package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	EmbeddingModel string  `yaml:"embedding_model"`
	LabelModel     string  `yaml:"label_model"`
	VisionModel    string  `yaml:"vision_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSecs    int     `yaml:"timeout_secs"`

	// Temperature is nil when unset so that an explicit 0 is kept.
	Temperature *float64 `yaml:"temperature"`
}

type PipelineConfig struct {
	Concurrency int     `yaml:"concurrency"`
	MaxAttempts int     `yaml:"max_attempts"`
	BackoffMS   int     `yaml:"backoff_ms"`
	BatchSize   int     `yaml:"batch_size"`
	RateLimit   float64 `yaml:"rate_limit"`
}

type ExtractorConfig struct {
	MaxPages      int `yaml:"max_pages"`
	MaxChars      int `yaml:"max_chars"`
	MaxParagraphs int `yaml:"max_paragraphs"`
}

type ReducerConfig struct {
	MinPoints       int `yaml:"min_points"`
	Neighbours      int `yaml:"neighbours"`
	ScaleNeighbour  int `yaml:"scale_neighbour"`
	PlaneNeighbours int `yaml:"plane_neighbours"`
}

type ClusteringConfig struct {
	MinClusterSize int  `yaml:"min_cluster_size"`
	MinSamples     int  `yaml:"min_samples"`
	Adaptive       bool `yaml:"adaptive"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Reducer    ReducerConfig    `yaml:"reducer"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// A missing .env is fine; real deployments pass the environment directly.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/docsort/config.yaml"),
			"/etc/docsort/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// Default returns a configuration populated only with defaults.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.BaseURL == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = "http://localhost:11434"
		} else {
			config.LLM.BaseURL = "https://openrouter.ai/api/v1"
		}
	}
	if config.LLM.EmbeddingModel == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.EmbeddingModel = "nomic-embed-text:latest"
		} else {
			config.LLM.EmbeddingModel = "qwen/qwen3-embedding-8b"
		}
	}
	if config.LLM.LabelModel == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.LabelModel = "mistral"
		} else {
			config.LLM.LabelModel = "google/gemini-3-flash-preview"
		}
	}
	if config.LLM.VisionModel == "" {
		config.LLM.VisionModel = config.LLM.LabelModel
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 20
	}
	if config.LLM.Temperature == nil {
		temperature := 0.2
		config.LLM.Temperature = &temperature
	}
	if config.LLM.TimeoutSecs == 0 {
		config.LLM.TimeoutSecs = 30
	}

	if config.Pipeline.Concurrency == 0 {
		config.Pipeline.Concurrency = 8
	}
	if config.Pipeline.MaxAttempts == 0 {
		config.Pipeline.MaxAttempts = 3
	}
	if config.Pipeline.BackoffMS == 0 {
		config.Pipeline.BackoffMS = 500
	}
	if config.Pipeline.BatchSize == 0 {
		config.Pipeline.BatchSize = 16
	}

	if config.Extractor.MaxPages == 0 {
		config.Extractor.MaxPages = 3
	}
	if config.Extractor.MaxChars == 0 {
		config.Extractor.MaxChars = 2000
	}
	if config.Extractor.MaxParagraphs == 0 {
		config.Extractor.MaxParagraphs = 50
	}

	if config.Reducer.MinPoints == 0 {
		config.Reducer.MinPoints = 4
	}
	if config.Reducer.Neighbours == 0 {
		config.Reducer.Neighbours = 15
	}
	if config.Reducer.ScaleNeighbour == 0 {
		config.Reducer.ScaleNeighbour = 7
	}
	if config.Reducer.PlaneNeighbours == 0 {
		config.Reducer.PlaneNeighbours = 30
	}

	if config.Clustering.MinClusterSize == 0 {
		config.Clustering.MinClusterSize = 2
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "document_metadata"
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 100
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if c := os.Getenv("DOCSORT_CONCURRENCY"); c != "" {
		if v, err := strconv.Atoi(c); err == nil {
			config.Pipeline.Concurrency = v
		}
	}
}
