package services

import (
	"context"
	"errors"

	"github.com/blavejr/mealscout/models"
)

// ErrEmptyCatalog is returned by CatalogStatus when the store is reachable but holds no items.
var ErrEmptyCatalog = errors.New("menu catalog is empty")

// Embedder turns text into a vector comparable with the catalog embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Message struct {
	Role    string // user | assistant
	Content string
}

type CompletionRequest struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	JSON        bool // ask the provider for a JSON object
}

// LLM is a single-shot chat completion. Implementations must honour ctx.
type LLM interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// MenuStore is the read side of the catalog.
type MenuStore interface {
	FindByRestaurant(ctx context.Context, name string, limit int) ([]models.MenuItem, error)
	VectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.MenuItem, error)
	TextSearch(ctx context.Context, query string, limit int) ([]models.MenuItem, error)
	HasItems(ctx context.Context) (bool, error)
}

// CatalogWriter is the write side used by ingest and the embedding backfill.
type CatalogWriter interface {
	UpsertItems(ctx context.Context, items []models.MenuItem) (int, error)
	ItemsMissingEmbedding(ctx context.Context, limit int) ([]models.MenuItem, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
}

// QueryCache maps a normalized semantic query to a previous retrieval result.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]models.MenuItem, bool, error)
	Set(ctx context.Context, key string, items []models.MenuItem) error
}

// UsageStore counts searches per user per UTC day.
type UsageStore interface {
	Count(ctx context.Context, userID, day string) (int, error)
	Increment(ctx context.Context, userID, day string) error
}
