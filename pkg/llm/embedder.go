package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/newsqa/internal/types"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

// EmbedderConfig selects the remote embedding service.
type EmbedderConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string // Ollama server URL
	BatchSize int
}

// NewEmbedderWithConfig returns an embedder backed by the configured provider.
// The googleai provider fails with types.ErrCredential when no key is set.
func NewEmbedderWithConfig(ctx context.Context, config EmbedderConfig) (embeddings.Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderGoogleAI, "":
		if config.APIKey == "" {
			return nil, fmt.Errorf("%w: missing API key for embedding service", types.ErrCredential)
		}
		if config.Model == "" {
			config.Model = "embedding-001"
		}
		gc, err := googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultEmbeddingModel(config.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding client: %w", classify(err, types.ErrIndexBuild))
		}
		client = gc
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		oc, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
		}
		client = oc
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", types.ErrConfiguration, config.Provider)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return emb, nil
}

var authMarkers = []string{
	"api key",
	"api_key_invalid",
	"permission_denied",
	"unauthenticated",
	"unauthorized",
}

// authStatus matches 401/403 only where they read as an HTTP status.
var authStatus = regexp.MustCompile(`\b(error|status|status code|code)[\s:=]*40[13]\b|\b40[13] (unauthorized|forbidden)\b`)

// IsAuthError reports whether a provider error looks like rejected credentials.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return authStatus.MatchString(msg)
}

// classify tags err with types.ErrCredential when the provider rejected the
// key and with fallback otherwise.
func classify(err error, fallback error) error {
	if IsAuthError(err) {
		return fmt.Errorf("%w: %v", types.ErrCredential, err)
	}
	return fmt.Errorf("%w: %v", fallback, err)
}

// ClassifyEmbeddingError maps an embedding failure to the error taxonomy.
func ClassifyEmbeddingError(err error) error {
	return classify(err, types.ErrIndexBuild)
}
