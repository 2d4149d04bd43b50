package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider       string  `yaml:"provider"`
		BaseURL        string  `yaml:"base_url"`
		APIKey         string  `yaml:"api_key"`
		Model          string  `yaml:"model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		Backend   string `yaml:"backend"`
		URL       string `yaml:"url"`
		Token     string `yaml:"token"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		MaxInsert int    `yaml:"max_insert"`
	} `yaml:"database"`

	Processor struct {
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
		Separator    string `yaml:"separator"`
	} `yaml:"processor"`

	Retrieval struct {
		TopK            int `yaml:"top_k"`
		MaxPromptChars  int `yaml:"max_prompt_chars"`
		HistoryTurns    int `yaml:"history_turns"`
		TimeoutSeconds  int `yaml:"timeout_seconds"`
		CacheSize       int `yaml:"cache_size"`
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"retrieval"`

	Arxiv struct {
		BaseURL        string  `yaml:"base_url"`
		RateLimit      float64 `yaml:"rate_limit"`
		MaxResults     int     `yaml:"max_results"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"arxiv"`

	Summary struct {
		MaxInputChars int     `yaml:"max_input_chars"`
		MaxTokens     int     `yaml:"max_tokens"`
		Temperature   float64 `yaml:"temperature"`
	} `yaml:"summary"`

	Server struct {
		Addr string `yaml:"addr"`
		// AllowedOrigins are the browser origin hosts allowed to connect.
		AllowedOrigins []string `yaml:"allowed_origins"`
		// AllowedHosts are the hosts load_url may download from.
		AllowedHosts []string `yaml:"allowed_hosts"`
	} `yaml:"server"`

	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// LoadConfig reads the YAML config at path, or the first file found in the
// default locations. A missing file is not an error: defaults and the
// environment (including a local .env) still apply.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/aba/config.yaml"),
			"/etc/aba/config.yaml",
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

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

// newConfig presets the defaults for which zero is a valid setting. They are
// filled in before the file is parsed so an explicit zero in YAML wins.
func newConfig() *Config {
	config := &Config{}
	config.LLM.Temperature = 0.7
	config.Processor.ChunkOverlap = 200
	config.Summary.Temperature = 0.5
	return config
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = ProviderOpenAI
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case ProviderOllama:
			config.LLM.Model = "mistral"
		case ProviderGemini:
			config.LLM.Model = "gemini-2.0-flash"
		default:
			config.LLM.Model = "gpt-3.5-turbo"
		}
	}
	if config.LLM.EmbeddingModel == "" {
		switch config.LLM.Provider {
		case ProviderOllama:
			config.LLM.EmbeddingModel = "nomic-embed-text:latest"
		case ProviderGemini:
			config.LLM.EmbeddingModel = "text-embedding-004"
		default:
			config.LLM.EmbeddingModel = "text-embedding-3-small"
		}
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == ProviderOllama {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 500
	}

	if config.Database.Backend == "" {
		config.Database.Backend = BackendPGVector
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "pdf_qa"
	}
	if config.Database.VectorDim == 0 {
		switch config.LLM.Provider {
		case ProviderOllama, ProviderGemini:
			config.Database.VectorDim = 768
		default:
			config.Database.VectorDim = 1536
		}
	}
	if config.Database.MaxInsert == 0 {
		config.Database.MaxInsert = 50
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 800
	}
	if config.Processor.Separator == "" {
		config.Processor.Separator = "\n"
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 4
	}
	if config.Retrieval.MaxPromptChars == 0 {
		config.Retrieval.MaxPromptChars = 12000
	}
	if config.Retrieval.HistoryTurns == 0 {
		config.Retrieval.HistoryTurns = 10
	}
	if config.Retrieval.TimeoutSeconds == 0 {
		config.Retrieval.TimeoutSeconds = 120
	}
	if config.Retrieval.CacheSize == 0 {
		config.Retrieval.CacheSize = 256
	}
	if config.Retrieval.CacheTTLSeconds == 0 {
		config.Retrieval.CacheTTLSeconds = 600
	}

	if config.Arxiv.BaseURL == "" {
		config.Arxiv.BaseURL = "http://export.arxiv.org/api/query"
	}
	if config.Arxiv.RateLimit == 0 {
		// arXiv asks for no more than one request every three seconds
		config.Arxiv.RateLimit = 0.33
	}
	if config.Arxiv.MaxResults == 0 {
		config.Arxiv.MaxResults = 10
	}
	if config.Arxiv.TimeoutSeconds == 0 {
		config.Arxiv.TimeoutSeconds = 60
	}

	if config.Summary.MaxInputChars == 0 {
		config.Summary.MaxInputChars = 4000
	}
	if config.Summary.MaxTokens == 0 {
		config.Summary.MaxTokens = 300
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && config.LLM.Provider == ProviderOllama {
		config.LLM.BaseURL = baseURL
	}
	if config.LLM.APIKey == "" {
		switch config.LLM.Provider {
		case ProviderGemini:
			config.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if token := os.Getenv("DATABASE_TOKEN"); token != "" {
		config.Database.Token = token
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Retrieval.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Retrieval.CacheTTLSeconds) * time.Second
}

func (c *Config) ArxivTimeout() time.Duration {
	return time.Duration(c.Arxiv.TimeoutSeconds) * time.Second
}
