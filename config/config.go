package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingConfig = errors.New("missing required configuration")

type Config struct {
	Port        string
	Environment string

	CatalogDriver string // mongo | postgres | memory

	MongoURI             string
	MongoDatabase        string
	MongoCollection      string
	MongoCacheCollection string
	MongoVectorIndex     string

	PostgresDSN string
	MenuDataDir string

	LLMProvider   string // ollama | openai | gemini
	EmbedProvider string // ollama | openai | gemini | simple

	OllamaURL        string // "http://localhost:11434"
	OllamaEmbedModel string
	OllamaLLMModel   string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIChatModel  string
	OpenAIEmbedModel string

	GeminiAPIKey     string
	GeminiChatModel  string
	GeminiEmbedModel string

	CacheBackend string // redis | catalog | none
	RedisURL     string
	CacheTTL     time.Duration

	DailySearchLimit int

	VectorMatchCount     int
	TextMatchCount       int
	RestaurantMatchCount int
	SearchMatchCount     int

	EmbedTimeout time.Duration
	LLMTimeout   time.Duration
	StoreTimeout time.Duration

	BackgroundWorkers int
	IngestConcurrency int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")

	v.SetDefault("CATALOG_DRIVER", "mongo")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "mealscout")
	v.SetDefault("MONGO_COLLECTION", "menu_items")
	v.SetDefault("MONGO_CACHE_COLLECTION", "query_cache")
	v.SetDefault("MONGO_VECTOR_INDEX", "menu_vector_index")

	v.SetDefault("LLM_PROVIDER", "ollama")
	v.SetDefault("EMBED_PROVIDER", "ollama")

	v.SetDefault("OLLAMA_URL", "http://localhost:11434")
	v.SetDefault("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text")
	v.SetDefault("OLLAMA_LLM_MODEL", "llama3.2:3b")

	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small")

	v.SetDefault("GEMINI_CHAT_MODEL", "gemini-2.0-flash")
	v.SetDefault("GEMINI_EMBEDDING_MODEL", "text-embedding-004")

	v.SetDefault("CACHE_BACKEND", "none")
	v.SetDefault("CACHE_TTL", 24*time.Hour)

	v.SetDefault("DAILY_SEARCH_LIMIT", 25)

	v.SetDefault("VECTOR_MATCH_COUNT", 20)
	v.SetDefault("TEXT_MATCH_COUNT", 20)
	v.SetDefault("RESTAURANT_MATCH_COUNT", 50)
	v.SetDefault("SEARCH_MATCH_COUNT", 10)

	v.SetDefault("EMBED_TIMEOUT", 5*time.Second)
	v.SetDefault("LLM_TIMEOUT", 10*time.Second)
	v.SetDefault("STORE_TIMEOUT", 5*time.Second)

	v.SetDefault("BACKGROUND_WORKERS", 16)
	v.SetDefault("INGEST_CONCURRENCY", 4)
}

// Load reads .env (if present), an optional YAML file named by CONFIG_FILE,
// then the environment. The result is validated before it is returned.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:        v.GetString("PORT"),
		Environment: v.GetString("ENVIRONMENT"),

		CatalogDriver: strings.ToLower(v.GetString("CATALOG_DRIVER")),

		MongoURI:             v.GetString("MONGO_URI"),
		MongoDatabase:        v.GetString("MONGO_DATABASE"),
		MongoCollection:      v.GetString("MONGO_COLLECTION"),
		MongoCacheCollection: v.GetString("MONGO_CACHE_COLLECTION"),
		MongoVectorIndex:     v.GetString("MONGO_VECTOR_INDEX"),

		PostgresDSN: v.GetString("POSTGRES_DSN"),
		MenuDataDir: v.GetString("MENU_DATA_DIR"),

		LLMProvider:   strings.ToLower(v.GetString("LLM_PROVIDER")),
		EmbedProvider: strings.ToLower(v.GetString("EMBED_PROVIDER")),

		// Ollama
		OllamaURL:        v.GetString("OLLAMA_URL"),
		OllamaEmbedModel: v.GetString("OLLAMA_EMBEDDING_MODEL"),
		OllamaLLMModel:   v.GetString("OLLAMA_LLM_MODEL"),

		OpenAIAPIKey:     v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:    v.GetString("OPENAI_BASE_URL"),
		OpenAIChatModel:  v.GetString("OPENAI_CHAT_MODEL"),
		OpenAIEmbedModel: v.GetString("OPENAI_EMBEDDING_MODEL"),

		GeminiAPIKey:     v.GetString("GEMINI_API_KEY"),
		GeminiChatModel:  v.GetString("GEMINI_CHAT_MODEL"),
		GeminiEmbedModel: v.GetString("GEMINI_EMBEDDING_MODEL"),

		CacheBackend: strings.ToLower(v.GetString("CACHE_BACKEND")),
		RedisURL:     v.GetString("REDIS_URL"),
		CacheTTL:     v.GetDuration("CACHE_TTL"),

		DailySearchLimit: v.GetInt("DAILY_SEARCH_LIMIT"),

		// Retrieval
		VectorMatchCount:     clamp(v.GetInt("VECTOR_MATCH_COUNT"), 10, 20),
		TextMatchCount:       v.GetInt("TEXT_MATCH_COUNT"),
		RestaurantMatchCount: v.GetInt("RESTAURANT_MATCH_COUNT"),
		SearchMatchCount:     v.GetInt("SEARCH_MATCH_COUNT"),

		EmbedTimeout: v.GetDuration("EMBED_TIMEOUT"),
		LLMTimeout:   v.GetDuration("LLM_TIMEOUT"),
		StoreTimeout: v.GetDuration("STORE_TIMEOUT"),

		BackgroundWorkers: v.GetInt("BACKGROUND_WORKERS"),
		IngestConcurrency: v.GetInt("INGEST_CONCURRENCY"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every selected driver and provider has what it needs.
func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	switch c.CatalogDriver {
	case "mongo":
		require("MONGO_URI", c.MongoURI)
		require("MONGO_DATABASE", c.MongoDatabase)
		require("MONGO_COLLECTION", c.MongoCollection)
	case "postgres":
		require("POSTGRES_DSN", c.PostgresDSN)
	case "memory":
		require("MENU_DATA_DIR", c.MenuDataDir)
	default:
		return fmt.Errorf("unknown CATALOG_DRIVER %q", c.CatalogDriver)
	}

	for _, provider := range []string{c.LLMProvider, c.EmbedProvider} {
		switch provider {
		case "ollama":
			require("OLLAMA_URL", c.OllamaURL)
		case "openai":
			require("OPENAI_API_KEY", c.OpenAIAPIKey)
		case "gemini":
			require("GEMINI_API_KEY", c.GeminiAPIKey)
		case "simple":
			if provider == c.LLMProvider {
				return fmt.Errorf("LLM_PROVIDER %q cannot generate text", provider)
			}
		default:
			return fmt.Errorf("unknown provider %q", provider)
		}
	}

	switch c.CacheBackend {
	case "redis":
		require("REDIS_URL", c.RedisURL)
	case "catalog", "none", "":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(dedupe(missing), ", "))
	}
	return nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
