package main

import (
	"context"
	"fmt"

	"github.com/blavejr/mealscout/config"
	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/services"
	"github.com/blavejr/mealscout/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// catalog is whichever store CATALOG_DRIVER picked, seen through the
// interfaces the pipeline and the ingester need.
type catalog interface {
	services.MenuStore
	services.CatalogWriter
}

type deps struct {
	cfg      *config.Config
	catalog  catalog
	cache    services.QueryCache
	usage    services.UsageStore
	llm      services.LLM
	embedder services.Embedder
	closers  []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps connects the catalog, cache and providers. On error everything
// opened so far is closed.
func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	if err := d.openCatalog(ctx); err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		var err error
		redisClient, err = storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			if cfg.CacheBackend == "redis" {
				return nil, err
			}
			logger.Warn("Redis unavailable, daily quota disabled", zap.Error(err))
		} else {
			d.closers = append(d.closers, func() { _ = redisClient.Close() })
			d.usage = storage.NewRedisUsage(redisClient)
		}
	}

	switch cfg.CacheBackend {
	case "redis":
		d.cache = storage.NewRedisCache(redisClient, cfg.CacheTTL)
	case "catalog":
		d.cache = catalogCache(d.catalog, cfg)
	}

	if err := d.openProviders(ctx); err != nil {
		return nil, err
	}
	ok = true
	return d, nil
}

func (d *deps) openCatalog(ctx context.Context) error {
	cfg := d.cfg
	switch cfg.CatalogDriver {
	case "mongo":
		store, err := storage.NewMongoStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		d.closers = append(d.closers, func() { _ = store.Close() })
		if err := store.EnsureIndexes(ctx, cfg.CacheTTL); err != nil {
			logger.Warn("index creation skipped", zap.Error(err))
		}
		d.catalog = store
		logger.Info("Connected to MongoDB", zap.String("database", cfg.MongoDatabase))

	case "postgres":
		store, err := storage.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		d.closers = append(d.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare schema: %w", err)
		}
		d.catalog = store
		logger.Info("Connected to Postgres")

	case "memory":
		store, err := storage.NewMemoryStore()
		if err != nil {
			return err
		}
		d.catalog = store
		logger.Info("Using in-memory catalog", zap.String("menu_dir", cfg.MenuDataDir))

	default:
		return fmt.Errorf("unknown catalog driver %q", cfg.CatalogDriver)
	}
	return nil
}

func catalogCache(c catalog, cfg *config.Config) services.QueryCache {
	switch store := c.(type) {
	case *storage.MongoStore:
		return store.QueryCache(cfg.CacheTTL)
	case *storage.PostgresStore:
		return store.QueryCache(cfg.CacheTTL)
	case *storage.MemoryStore:
		return store.QueryCache(cfg.CacheTTL)
	}
	return nil
}

func (d *deps) openProviders(ctx context.Context) error {
	cfg := d.cfg

	var gemini *services.GeminiClient
	geminiClient := func() (*services.GeminiClient, error) {
		if gemini != nil {
			return gemini, nil
		}
		var err error
		gemini, err = services.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiChatModel, cfg.GeminiEmbedModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return gemini, nil
	}
	openai := services.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel)

	switch cfg.EmbedProvider {
	case "ollama":
		embedder := services.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaEmbedModel)
		if err := embedder.TestConnection(ctx); err != nil {
			logger.Warn("Ollama embedder connection test failed", zap.Error(err))
		} else {
			logger.Info("Connected to Ollama embeddings", zap.String("model", cfg.OllamaEmbedModel))
		}
		d.embedder = embedder
	case "openai":
		d.embedder = openai
	case "gemini":
		client, err := geminiClient()
		if err != nil {
			return err
		}
		d.embedder = client
	case services.SimpleModel:
		d.embedder = services.NewSimpleEmbedder()
	default:
		return fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
	}

	switch cfg.LLMProvider {
	case "ollama":
		generator := services.NewOllamaGenerator(cfg.OllamaURL, cfg.OllamaLLMModel)
		if err := generator.TestConnection(ctx); err != nil {
			logger.Warn("Ollama LLM connection test failed", zap.Error(err))
		} else {
			logger.Info("Connected to Ollama LLM", zap.String("model", cfg.OllamaLLMModel))
		}
		d.llm = generator
	case "openai":
		d.llm = openai
	case "gemini":
		client, err := geminiClient()
		if err != nil {
			return err
		}
		d.llm = client
	default:
		return fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	return nil
}

func (d *deps) ingester() *services.Ingester {
	return services.NewIngester(d.catalog, d.embedder, d.cfg.IngestConcurrency, d.cfg.EmbedTimeout)
}

func (d *deps) pipeline(bg *services.Background) *services.Pipeline {
	cfg := d.cfg
	return services.NewPipeline(services.PipelineDeps{
		LLM:        d.llm,
		Embedder:   d.embedder,
		Store:      d.catalog,
		Cache:      d.cache,
		Background: bg,
		Config: services.PipelineConfig{
			Retriever: services.RetrieverConfig{
				RestaurantLimit: cfg.RestaurantMatchCount,
				VectorLimit:     cfg.VectorMatchCount,
				TextLimit:       cfg.TextMatchCount,
				EmbedTimeout:    cfg.EmbedTimeout,
				StoreTimeout:    cfg.StoreTimeout,
			},
			LLMTimeout:  cfg.LLMTimeout,
			SearchLimit: cfg.SearchMatchCount,
		},
	})
}

// seedMemory loads MENU_DATA_DIR into the in-memory catalog.
func (d *deps) seedMemory(ctx context.Context) error {
	if d.cfg.CatalogDriver != "memory" {
		return nil
	}
	report, err := d.ingester().IngestDir(ctx, d.cfg.MenuDataDir)
	if err != nil {
		return fmt.Errorf("failed to load menus: %w", err)
	}
	logger.Info("Loaded in-memory catalog",
		zap.Int("files", report.Files),
		zap.Int("items", report.Items),
		zap.Int("embedding_failures", report.Failed))
	return nil
}
