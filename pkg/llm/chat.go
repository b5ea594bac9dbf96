package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/newsqa/internal/types"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string // Ollama server URL
	Temperature float64
	MaxTokens   int
}

// ChatEngine sends prompts to a generative model with a fixed temperature.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(ctx context.Context, config ChatConfig) (*ChatEngine, error) {
	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case ProviderGoogleAI, "":
		if config.APIKey == "" {
			return nil, fmt.Errorf("%w: missing API key for generative model", types.ErrCredential)
		}
		if config.Model == "" {
			config.Model = "gemini-2.5-pro"
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultModel(config.Model),
		)
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "mistral" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", types.ErrConfiguration, config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(model, config)
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", types.ErrConfiguration)
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("%w: temperature must be between 0 and 2", types.ErrConfiguration)
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: max tokens cannot be negative", types.ErrConfiguration)
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// Temperature returns the sampling temperature used for every call.
func (ce *ChatEngine) Temperature() float64 { return ce.config.Temperature }

func (ce *ChatEngine) options(extra ...llms.CallOption) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}
	return append(opts, extra...)
}

// Generate returns the model's completion for prompt.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, ce.llm, prompt, ce.options()...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}
	return out, nil
}

// GenerateStream behaves like Generate and also hands every streamed chunk to fn.
func (ce *ChatEngine) GenerateStream(ctx context.Context, prompt string, fn func(chunk string) error) (string, error) {
	var sb strings.Builder
	stream := llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		sb.Write(chunk)
		return fn(string(chunk))
	})
	out, err := llms.GenerateFromSinglePrompt(ctx, ce.llm, prompt, ce.options(stream)...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}
	if out == "" {
		out = sb.String()
	}
	return out, nil
}
