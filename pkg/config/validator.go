package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/xhad/aba/internal/types"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	BackendPGVector = "pgvector"
	BackendMemory   = "memory"
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
	case ProviderOpenAI, ProviderOllama, ProviderGemini:
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.BaseURL != "" {
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Database config
	switch c.Database.Backend {
	case BackendPGVector, BackendMemory:
	default:
		errors = append(errors, ValidationError{
			Field:   "database.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Database.Backend),
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.MaxInsert < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.max_insert",
			Message: "max_insert must be positive",
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

	// Validate Retrieval config
	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.MaxPromptChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.max_prompt_chars",
			Message: "max_prompt_chars must be positive",
		})
	}

	// Validate arXiv config
	if c.Arxiv.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "arxiv.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Arxiv.MaxResults < 1 || c.Arxiv.MaxResults > 50 {
		errors = append(errors, ValidationError{
			Field:   "arxiv.max_results",
			Message: "max_results must be between 1 and 50",
		})
	}

	return errors
}

// MissingCredentials lists the credentials the selected provider and
// backend need but that are not set.
func (c *Config) MissingCredentials() []ValidationError {
	var errors []ValidationError

	if c.LLM.Provider != ProviderOllama && c.LLM.APIKey == "" {
		env := "OPENAI_API_KEY"
		if c.LLM.Provider == ProviderGemini {
			env = "GEMINI_API_KEY"
		}
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: fmt.Sprintf("API key is required (set %s)", env),
		})
	}

	if c.Database.Backend == BackendPGVector {
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required (set DATABASE_URL)",
			})
		}
		if c.Database.Token == "" {
			errors = append(errors, ValidationError{
				Field:   "database.token",
				Message: "database token is required (set DATABASE_TOKEN)",
			})
		}
	}

	return errors
}

// Check reports every validation problem and missing credential as a single
// ErrConfiguration.
func (c *Config) Check() error {
	problems := append(c.Validate(), c.MissingCredentials()...)
	if len(problems) == 0 {
		return nil
	}

	errs := make([]error, 0, len(problems)+1)
	errs = append(errs, types.ErrConfiguration)
	for _, p := range problems {
		errs = append(errs, p)
	}
	return errors.Join(errs...)
}
