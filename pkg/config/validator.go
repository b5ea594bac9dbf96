package config

import (
	"fmt"
	"net/url"

	"github.com/xhad/newsqa/internal/types"
	"github.com/xhad/newsqa/pkg/store"
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
	switch c.LLM.Provider {
	case ProviderGoogleAI:
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: fmt.Sprintf("%s not found in the environment variables", c.LLM.APIKeyEnv),
			})
		}
	case ProviderOllama:
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Store config
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "store.dir",
				Message: "store directory is required",
			})
		}
	case BackendPGVector:
		if u, err := url.Parse(c.Store.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "invalid database URL",
			})
		}
		if store.ValidateKey(c.Store.TablePrefix) != nil {
			errors = append(errors, ValidationError{
				Field:   "store.table_prefix",
				Message: "table_prefix may only contain letters, digits, '_' and '-'",
			})
		} else if _, err := store.TableName(c.Store.TablePrefix, c.Store.Key); err != nil && store.ValidateKey(c.Store.Key) == nil {
			errors = append(errors, ValidationError{
				Field:   "store.table_prefix",
				Message: "table_prefix and key together must fit in 62 bytes",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Store.Backend),
		})
	}

	if store.ValidateKey(c.Store.Key) != nil {
		errors = append(errors, ValidationError{
			Field:   "store.key",
			Message: "key may only contain letters, digits, '_' and '-' (max 64)",
		})
	}

	if c.Store.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Store.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Scraper.TimeoutSecs < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.timeout_secs",
			Message: "timeout_secs must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.UI.URLFields < 1 || c.UI.URLFields > 20 {
		errors = append(errors, ValidationError{
			Field:   "ui.url_fields",
			Message: "url_fields must be between 1 and 20",
		})
	}

	return errors
}

// Check runs Validate and folds the result into a single configuration error.
func (c *Config) Check() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%w: %s", types.ErrConfiguration, msg)
}
