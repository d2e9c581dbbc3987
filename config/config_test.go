package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CATALOG_DRIVER", "mongo")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("EMBED_PROVIDER", "simple")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 20, cfg.VectorMatchCount)
	assert.Equal(t, 50, cfg.RestaurantMatchCount)
	assert.Equal(t, 25, cfg.DailySearchLimit)
	assert.Equal(t, 5*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 10*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "none", cfg.CacheBackend)
}

func TestLoadClampsVectorMatchCount(t *testing.T) {
	t.Setenv("EMBED_PROVIDER", "simple")

	t.Setenv("VECTOR_MATCH_COUNT", "100")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.VectorMatchCount)

	t.Setenv("VECTOR_MATCH_COUNT", "3")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.VectorMatchCount)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("EMBED_PROVIDER", "simple")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingConfig))
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestValidate(t *testing.T) {
	base := Config{
		CatalogDriver: "memory",
		MenuDataDir:   "./data",
		LLMProvider:   "openai",
		OpenAIAPIKey:  "sk-test",
		EmbedProvider: "openai",
		CacheBackend:  "none",
	}
	require.NoError(t, base.Validate())

	cfg := base
	cfg.CatalogDriver = "postgres"
	assert.ErrorIs(t, cfg.Validate(), ErrMissingConfig)

	cfg = base
	cfg.CacheBackend = "redis"
	assert.ErrorIs(t, cfg.Validate(), ErrMissingConfig)

	cfg = base
	cfg.CatalogDriver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.LLMProvider = "simple"
	assert.Error(t, cfg.Validate())
}
