package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blavejr/mealscout/models"

	"github.com/philippgille/chromem-go"
)

var errNoEmbeddingFunc = errors.New("memory store only accepts precomputed embeddings")

// MemoryStore keeps the catalog in process, with a chromem-go collection as
// the vector index. Items without an embedding are stored but never vector matched.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]models.MenuItem
	order      []string
	collection *chromem.Collection
}

func NewMemoryStore() (*MemoryStore, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection("menu_items", nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &MemoryStore{
		items:      make(map[string]models.MenuItem),
		collection: col,
	}, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (s *MemoryStore) filter(limit int, match func(models.MenuItem) bool) []models.MenuItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.MenuItem{}
	for _, id := range s.order {
		item := s.items[id]
		if !match(item) {
			continue
		}
		item.Embedding = nil
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *MemoryStore) FindByRestaurant(ctx context.Context, name string, limit int) ([]models.MenuItem, error) {
	return s.filter(limit, func(item models.MenuItem) bool {
		return containsFold(item.RestaurantName, name)
	}), nil
}

func (s *MemoryStore) TextSearch(ctx context.Context, query string, limit int) ([]models.MenuItem, error) {
	return s.filter(limit, func(item models.MenuItem) bool {
		return containsFold(item.Name, query) ||
			containsFold(item.ItemName, query) ||
			containsFold(item.Description, query)
	}), nil
}

func (s *MemoryStore) VectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.MenuItem, error) {
	n := s.collection.Count()
	if n == 0 {
		return []models.MenuItem{}, nil
	}
	if limit > 0 && limit < n {
		n = limit
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]models.MenuItem, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) < threshold {
			continue
		}
		item, ok := s.items[r.ID]
		if !ok {
			continue
		}
		item.Embedding = nil
		items = append(items, item)
	}
	return items, nil
}

func (s *MemoryStore) HasItems(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) > 0, nil
}

func (s *MemoryStore) UpsertItems(ctx context.Context, items []models.MenuItem) (int, error) {
	for _, item := range items {
		if item.ID == "" {
			return 0, errors.New("menu item without id")
		}

		s.mu.Lock()
		prev, exists := s.items[item.ID]
		if !exists {
			s.order = append(s.order, item.ID)
		}
		if len(item.Embedding) == 0 {
			item.Embedding = prev.Embedding
		}
		s.items[item.ID] = item
		s.mu.Unlock()

		if len(item.Embedding) > 0 {
			if err := s.index(ctx, item.ID, item.Embedding); err != nil {
				return 0, err
			}
		}
	}
	return len(items), nil
}

func (s *MemoryStore) index(ctx context.Context, id string, embedding []float32) error {
	// chromem normalizes in place
	vec := append([]float32(nil), embedding...)
	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Embedding: vec,
		Content:   id,
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	return nil
}

func (s *MemoryStore) ItemsMissingEmbedding(ctx context.Context, limit int) ([]models.MenuItem, error) {
	return s.filter(limit, func(item models.MenuItem) bool {
		return len(item.Embedding) == 0
	}), nil
}

func (s *MemoryStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	s.mu.Lock()
	item, ok := s.items[id]
	if ok {
		item.Embedding = embedding
		s.items[id] = item
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("menu item %s not found", id)
	}
	return s.index(ctx, id, embedding)
}

// QueryCache returns a process-local query cache.
func (s *MemoryStore) QueryCache(ttl time.Duration) *MemoryQueryCache {
	return &MemoryQueryCache{ttl: ttl, entries: make(map[string]memoryCacheEntry)}
}

type memoryCacheEntry struct {
	items   []models.MenuItem
	created time.Time
}

type MemoryQueryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryCacheEntry
}

func (c *MemoryQueryCache) Get(ctx context.Context, key string) ([]models.MenuItem, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || (c.ttl > 0 && time.Since(e.created) > c.ttl) {
		return nil, false, nil
	}
	return append([]models.MenuItem(nil), e.items...), true, nil
}

func (c *MemoryQueryCache) Set(ctx context.Context, key string, items []models.MenuItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{items: stripEmbeddings(items), created: time.Now()}
	return nil
}
