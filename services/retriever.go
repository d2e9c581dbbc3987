package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"

	"go.uber.org/zap"
)

// RetrieverConfig holds result caps and per-call timeouts.
type RetrieverConfig struct {
	RestaurantLimit int
	VectorLimit     int
	TextLimit       int
	EmbedTimeout    time.Duration
	StoreTimeout    time.Duration
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	if c.RestaurantLimit <= 0 {
		c.RestaurantLimit = 50
	}
	if c.VectorLimit <= 0 {
		c.VectorLimit = 20
	}
	if c.TextLimit <= 0 {
		c.TextLimit = 20
	}
	return c
}

// vector search returns everything it ranks; precision comes later from the selector
const similarityThreshold = 0.0

type RetrieveOptions struct {
	RadiusMiles *float64
	Location    *models.Location
	// UserMessage is the latest user turn. The category heuristic reads it
	// alongside the semantic query, which may have lost words like "dinner".
	UserMessage string
}

func (o RetrieveOptions) radiusActive() bool {
	return o.RadiusMiles != nil && *o.RadiusMiles > 0 && o.Location != nil
}

// Retriever finds candidate menu items for an intent:
// 1. a named restaurant is matched by substring, with no embedding call
// 2. otherwise the semantic query is embedded and vector searched
// 3. an empty or failed vector search falls back to text search
// Results are then narrowed by radius and reordered by category.
type Retriever struct {
	store    MenuStore
	embedder Embedder
	cache    QueryCache
	bg       *Background
	cfg      RetrieverConfig
	log      *zap.Logger
}

// NewRetriever accepts a nil cache (caching off) and a nil bg (cache writes skipped).
func NewRetriever(store MenuStore, embedder Embedder, cache QueryCache, bg *Background, cfg RetrieverConfig) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		cache:    cache,
		bg:       bg,
		cfg:      cfg.withDefaults(),
		log:      logger.L().Named("retriever"),
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// CacheKey normalizes a query for the query cache. The result cap is part of
// the key so a short search result never answers a larger chat request.
func CacheKey(limit int, query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ""
	}
	return fmt.Sprintf("%d|%s", limit, q)
}

// Retrieve never returns an error: every failure is logged and becomes zero candidates.
func (r *Retriever) Retrieve(ctx context.Context, intent models.IntentExtraction, opts RetrieveOptions) []models.MenuItem {
	var items []models.MenuItem
	if intent.HasRestaurant() {
		items = r.byRestaurant(ctx, *intent.RestaurantName)
	} else {
		items = r.semantic(ctx, intent.SemanticQuery, r.cfg.VectorLimit, r.cfg.TextLimit, !opts.radiusActive())
	}

	items = r.applyRadius(items, opts)
	return ApplyCategoryHeuristic(items, strings.TrimSpace(intent.SemanticQuery+" "+opts.UserMessage))
}

// Search is the plain search path: semantic branch only. Unlike Retrieve it
// reports an unreachable catalog, so callers can tell it apart from no matches.
func (r *Retriever) Search(ctx context.Context, query string, limit int, opts RetrieveOptions) ([]models.MenuItem, error) {
	if limit <= 0 {
		limit = r.cfg.VectorLimit
	}

	items := r.semantic(ctx, query, limit, limit, !opts.radiusActive())
	if len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 0 {
		if err := r.CatalogStatus(ctx); err != nil && !errors.Is(err, ErrEmptyCatalog) {
			return nil, err
		}
		return []models.MenuItem{}, nil
	}

	return r.applyRadius(items, opts), nil
}

// CatalogStatus returns nil when the catalog has items, ErrEmptyCatalog when it
// is reachable but empty, and a wrapped store error otherwise.
func (r *Retriever) CatalogStatus(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	ok, err := r.store.HasItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach menu catalog: %w", err)
	}
	if !ok {
		return ErrEmptyCatalog
	}
	return nil
}

func (r *Retriever) byRestaurant(ctx context.Context, name string) []models.MenuItem {
	ctx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	items, err := r.store.FindByRestaurant(ctx, name, r.cfg.RestaurantLimit)
	if err != nil {
		r.log.Error("restaurant lookup failed", zap.String("restaurant", name), zap.Error(err))
		return nil
	}
	r.log.Debug("restaurant lookup", zap.String("restaurant", name), zap.Int("items", len(items)))
	return items
}

func (r *Retriever) semantic(ctx context.Context, query string, vectorLimit, textLimit int, useCache bool) []models.MenuItem {
	key := CacheKey(vectorLimit, query)
	useCache = useCache && r.cache != nil && key != ""

	if useCache {
		if items, ok := r.cachedResult(ctx, key); ok {
			return items
		}
	}

	items, err := r.vectorSearch(ctx, query, vectorLimit)
	if err != nil {
		r.log.Warn("vector search unavailable, falling back to text search", zap.Error(err))
	}
	if len(items) > 0 {
		if useCache {
			r.storeResult(key, items)
		}
		return items
	}

	items, err = r.textSearch(ctx, query, textLimit)
	if err != nil {
		r.log.Error("text search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	return items
}

func (r *Retriever) vectorSearch(ctx context.Context, query string, limit int) ([]models.MenuItem, error) {
	embedCtx, cancel := withTimeout(ctx, r.cfg.EmbedTimeout)
	embedding, err := r.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	storeCtx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	items, err := r.store.VectorSearch(storeCtx, embedding, similarityThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return items, nil
}

func (r *Retriever) textSearch(ctx context.Context, query string, limit int) ([]models.MenuItem, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	return r.store.TextSearch(ctx, query, limit)
}

func (r *Retriever) cachedResult(ctx context.Context, key string) ([]models.MenuItem, bool) {
	ctx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	items, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warn("query cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok || len(items) == 0 {
		return nil, false
	}
	r.log.Debug("query cache hit", zap.String("key", key), zap.Int("items", len(items)))
	return items, true
}

func (r *Retriever) storeResult(key string, items []models.MenuItem) {
	if r.bg == nil {
		return
	}
	snapshot := append([]models.MenuItem(nil), items...)
	r.bg.Go("cache-write", func(ctx context.Context) error {
		return r.cache.Set(ctx, key, snapshot)
	})
}

func (r *Retriever) applyRadius(items []models.MenuItem, opts RetrieveOptions) []models.MenuItem {
	res := FilterByRadius(items, opts.RadiusMiles, opts.Location)
	if res.Applied {
		r.log.Debug("radius filter",
			zap.Float64("radius_miles", *opts.RadiusMiles),
			zap.Int("kept", len(res.Items)),
			zap.Int("missing_coordinates", res.MissingCoordinates),
			zap.Int("out_of_range", res.OutOfRange))
	}
	return res.Items
}
