package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.Provider != "openai" && c.LLM.Provider != "ollama" {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported provider %q", c.LLM.Provider),
		})
	}

	if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "a valid absolute base URL is required",
		})
	}

	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "api_key is required for the openai provider (set OPENROUTER_API_KEY)",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.TimeoutSecs < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout_secs",
			Message: "timeout_secs must be positive",
		})
	}

	// Validate Pipeline config
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 64 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.concurrency",
			Message: "concurrency must be between 1 and 64",
		})
	}

	if c.Pipeline.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if c.Pipeline.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Pipeline.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	// Validate Extractor config
	if c.Extractor.MaxPages < 1 {
		errors = append(errors, ValidationError{
			Field:   "extractor.max_pages",
			Message: "max_pages must be positive",
		})
	}

	if c.Extractor.MaxChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "extractor.max_chars",
			Message: "max_chars must be positive",
		})
	}

	// Validate Clustering config
	if c.Clustering.MinClusterSize < 2 {
		errors = append(errors, ValidationError{
			Field:   "clustering.min_cluster_size",
			Message: "min_cluster_size must be at least 2",
		})
	}

	if c.Clustering.MinSamples < 0 {
		errors = append(errors, ValidationError{
			Field:   "clustering.min_samples",
			Message: "min_samples must not be negative",
		})
	}

	// Validate Database config
	if c.Database.URL != "" && strings.Contains(c.Database.URL, "://") {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	return errors
}
