package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"

	BackendSQLite   = "sqlite"
	BackendPGVector = "pgvector"

	DefaultIndexKey = "faiss_store_gemini"

	DefaultTemperature = 0.7
)

type Config struct {
	LLM struct {
		Provider       string  `yaml:"provider"`
		BaseURL        string  `yaml:"base_url"`
		APIKeyEnv      string  `yaml:"api_key_env"`
		APIKey         string  `yaml:"-"`
		Model          string  `yaml:"model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Store struct {
		Backend     string `yaml:"backend"`
		Dir         string `yaml:"dir"`
		Key         string `yaml:"key"`
		URL         string `yaml:"url"`
		TablePrefix string `yaml:"table_prefix"`
		TopK        int    `yaml:"top_k"`
		BatchSize   int    `yaml:"batch_size"`
	} `yaml:"store"`

	Scraper struct {
		RateLimit   float64 `yaml:"rate_limit"`
		TimeoutSecs int     `yaml:"timeout_secs"`
		UserAgent   string  `yaml:"user_agent"`
		SkipFailed  bool    `yaml:"skip_failed"`
	} `yaml:"scraper"`

	Processor struct {
		ChunkSize    int      `yaml:"chunk_size"`
		ChunkOverlap int      `yaml:"chunk_overlap"`
		Separators   []string `yaml:"separators"`
	} `yaml:"processor"`

	UI struct {
		URLFields int    `yaml:"url_fields"`
		Streaming bool   `yaml:"streaming"`
		Theme     string `yaml:"theme"`
	} `yaml:"ui"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Timeout returns the scraper HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSecs) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/newsqa/config.yaml"),
			"/etc/newsqa/config.yaml",
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

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(config)
	mergeWithEnv(config)

	return config, nil
}

// newConfig presets the fields whose zero value is a valid setting, so a
// config file can still set them to zero.
func newConfig() *Config {
	config := &Config{}
	config.LLM.Temperature = DefaultTemperature
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = ProviderGoogleAI
	}
	if config.LLM.APIKeyEnv == "" {
		config.LLM.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case ProviderOllama:
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "gemini-2.5-pro"
		}
	}
	if config.LLM.EmbeddingModel == "" {
		switch config.LLM.Provider {
		case ProviderOllama:
			config.LLM.EmbeddingModel = "nomic-embed-text:latest"
		default:
			config.LLM.EmbeddingModel = "embedding-001"
		}
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == ProviderOllama {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2048
	}

	if config.Store.Backend == "" {
		config.Store.Backend = BackendSQLite
	}
	if config.Store.Dir == "" {
		config.Store.Dir = "."
	}
	if config.Store.Key == "" {
		config.Store.Key = DefaultIndexKey
	}
	if config.Store.TablePrefix == "" {
		config.Store.TablePrefix = "newsqa"
	}
	if config.Store.TopK == 0 {
		config.Store.TopK = 4
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 100
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.TimeoutSecs == 0 {
		config.Scraper.TimeoutSecs = 30
	}
	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "newsqa/1.0 (+https://github.com/xhad/newsqa)"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if len(config.Processor.Separators) == 0 {
		config.Processor.Separators = []string{"\n\n", "\n", ".", ","}
	}

	if config.UI.URLFields == 0 {
		config.UI.URLFields = 3
	}
	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv(config.LLM.APIKeyEnv); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.URL = dbURL
	}
	if dir := os.Getenv("NEWSQA_STORE_DIR"); dir != "" {
		config.Store.Dir = dir
	}
}
