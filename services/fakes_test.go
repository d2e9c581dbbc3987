package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/blavejr/mealscout/models"
)

func ptr[T any](v T) *T { return &v }

var errFake = errors.New("fake failure")

// fakeLLM answers by matching the start of the system prompt.
type fakeLLM struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   []CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	for prefix, reply := range f.replies {
		if strings.HasPrefix(req.System, prefix) {
			return reply, nil
		}
	}
	return "", errors.New("no scripted reply")
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const (
	intentPrompt  = "You are an intent extraction system"
	rankingPrompt = "You are a meal recommendation assistant"
	chatPrompt    = "You are MealScout"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	fail  map[string]bool
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.fail[text] {
		return nil, errFake
	}
	return simpleEmbedding(text), nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu sync.Mutex

	restaurant    []models.MenuItem
	vector        []models.MenuItem
	text          []models.MenuItem
	restaurantErr error
	vectorErr     error
	textErr       error
	hasItems      bool
	hasItemsErr   error

	restaurantQueries []string
	restaurantLimit   int
	vectorCalls       int
	textCalls         int
}

func (s *fakeStore) FindByRestaurant(ctx context.Context, name string, limit int) ([]models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurantQueries = append(s.restaurantQueries, name)
	s.restaurantLimit = limit
	return s.restaurant, s.restaurantErr
}

func (s *fakeStore) VectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectorCalls++
	if limit > 0 && len(s.vector) > limit {
		return s.vector[:limit], s.vectorErr
	}
	return s.vector, s.vectorErr
}

func (s *fakeStore) TextSearch(ctx context.Context, query string, limit int) ([]models.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textCalls++
	return s.text, s.textErr
}

func (s *fakeStore) HasItems(ctx context.Context) (bool, error) {
	return s.hasItems, s.hasItemsErr
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]models.MenuItem
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]models.MenuItem{}}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]models.MenuItem, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.entries[key]
	return items, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, items []models.MenuItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = items
	c.sets++
	return nil
}

type fakeWriter struct {
	mu    sync.Mutex
	items map[string]models.MenuItem
	order []string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{items: map[string]models.MenuItem{}}
}

func (w *fakeWriter) UpsertItems(ctx context.Context, items []models.MenuItem) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, item := range items {
		if _, ok := w.items[item.ID]; !ok {
			w.order = append(w.order, item.ID)
		}
		w.items[item.ID] = item
	}
	return len(items), nil
}

func (w *fakeWriter) ItemsMissingEmbedding(ctx context.Context, limit int) ([]models.MenuItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.MenuItem
	for _, id := range w.order {
		if len(w.items[id].Embedding) == 0 {
			out = append(out, w.items[id])
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (w *fakeWriter) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	item := w.items[id]
	item.Embedding = embedding
	w.items[id] = item
	return nil
}

func userSays(content ...string) []models.ConversationMessage {
	msgs := make([]models.ConversationMessage, len(content))
	for i, c := range content {
		msgs[i] = models.ConversationMessage{Role: models.RoleUser, Content: c}
	}
	return msgs
}

func menuItem(id string, protein float64, tags ...string) models.MenuItem {
	return models.MenuItem{
		ID:             id,
		Name:           "Item " + id,
		RestaurantName: "Test Kitchen",
		ProteinG:       ptr(protein),
		DietaryTags:    tags,
	}
}
