package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/blavejr/mealscout/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func semanticIntent(query string) models.IntentExtraction {
	return models.IntentExtraction{SemanticQuery: query}
}

func closeBackground(t *testing.T, bg *Background) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bg.Close(ctx))
}

func TestRetrieveRestaurantBranch(t *testing.T) {
	store := &fakeStore{restaurant: candidates("r1", "r2")}
	embedder := &fakeEmbedder{}
	r := NewRetriever(store, embedder, nil, nil, RetrieverConfig{})

	items := r.Retrieve(context.Background(), models.IntentExtraction{RestaurantName: ptr("Chipotle"), SemanticQuery: "anything"}, RetrieveOptions{})

	assert.Equal(t, []string{"r1", "r2"}, ids(items))
	assert.Equal(t, []string{"Chipotle"}, store.restaurantQueries)
	assert.Equal(t, 50, store.restaurantLimit)
	assert.Equal(t, 0, embedder.callCount())
	assert.Equal(t, 0, store.vectorCalls)
}

func TestRetrieveVectorResults(t *testing.T) {
	store := &fakeStore{vector: candidates("v1"), text: candidates("t1")}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, RetrieverConfig{})

	items := r.Retrieve(context.Background(), semanticIntent("spicy"), RetrieveOptions{})
	assert.Equal(t, []string{"v1"}, ids(items))
	assert.Equal(t, 0, store.textCalls)
}

func TestRetrieveFallsBackToText(t *testing.T) {
	tests := map[string]struct {
		store    *fakeStore
		embedder *fakeEmbedder
	}{
		"empty vector result": {&fakeStore{text: candidates("t1")}, &fakeEmbedder{}},
		"vector error":        {&fakeStore{vectorErr: errFake, text: candidates("t1")}, &fakeEmbedder{}},
		"embedding error":     {&fakeStore{vector: candidates("v1"), text: candidates("t1")}, &fakeEmbedder{err: errFake}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewRetriever(tt.store, tt.embedder, nil, nil, RetrieverConfig{})
			items := r.Retrieve(context.Background(), semanticIntent("spicy"), RetrieveOptions{})
			assert.Equal(t, []string{"t1"}, ids(items))
			assert.Equal(t, 1, tt.store.textCalls)
		})
	}
}

func TestRetrieveErrorsBecomeEmpty(t *testing.T) {
	store := &fakeStore{restaurantErr: errFake, vectorErr: errFake, textErr: errFake}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, RetrieverConfig{})

	assert.Empty(t, r.Retrieve(context.Background(), semanticIntent("x"), RetrieveOptions{}))
	assert.Empty(t, r.Retrieve(context.Background(), models.IntentExtraction{RestaurantName: ptr("Cava")}, RetrieveOptions{}))
}

func TestRetrieveCacheHit(t *testing.T) {
	cache := newFakeCache()
	cache.entries["20|high protein"] = candidates("cached")
	store := &fakeStore{vector: candidates("v1")}
	embedder := &fakeEmbedder{}
	r := NewRetriever(store, embedder, cache, nil, RetrieverConfig{})

	items := r.Retrieve(context.Background(), semanticIntent("  High Protein "), RetrieveOptions{})

	assert.Equal(t, []string{"cached"}, ids(items))
	assert.Equal(t, 0, embedder.callCount())
	assert.Equal(t, 0, store.vectorCalls)
}

func TestRetrieveCachesVectorResults(t *testing.T) {
	cache := newFakeCache()
	bg := NewBackground(4, time.Second)
	store := &fakeStore{vector: candidates("v1", "v2")}
	r := NewRetriever(store, &fakeEmbedder{}, cache, bg, RetrieverConfig{})

	r.Retrieve(context.Background(), semanticIntent("Burrito"), RetrieveOptions{})
	closeBackground(t, bg)

	assert.Equal(t, []string{"v1", "v2"}, ids(cache.entries["20|burrito"]))
}

func TestRetrieveDoesNotCacheTextFallback(t *testing.T) {
	cache := newFakeCache()
	bg := NewBackground(4, time.Second)
	r := NewRetriever(&fakeStore{text: candidates("t1")}, &fakeEmbedder{}, cache, bg, RetrieverConfig{})

	r.Retrieve(context.Background(), semanticIntent("burrito"), RetrieveOptions{})
	closeBackground(t, bg)

	assert.Equal(t, 0, cache.sets)
}

func TestRetrieveRadiusDisablesCache(t *testing.T) {
	cache := newFakeCache()
	cache.entries["20|tacos"] = candidates("cached")
	bg := NewBackground(4, time.Second)
	store := &fakeStore{vector: []models.MenuItem{located("near", 0, 0.01), located("far", 1, 0), {ID: "nowhere"}}}
	embedder := &fakeEmbedder{}
	r := NewRetriever(store, embedder, cache, bg, RetrieverConfig{})

	items := r.Retrieve(context.Background(), semanticIntent("tacos"), RetrieveOptions{
		RadiusMiles: ptr(5.0),
		Location:    &models.Location{},
	})
	closeBackground(t, bg)

	assert.Equal(t, []string{"near"}, ids(items))
	require.NotNil(t, items[0].Distance)
	assert.Equal(t, 1, embedder.callCount())
	assert.Equal(t, 0, cache.sets)
}

func TestRetrieveAppliesCategoryHeuristic(t *testing.T) {
	store := &fakeStore{vector: []models.MenuItem{
		{ID: "chips", Category: "Sides"},
		{ID: "bowl", Category: "Entree"},
	}}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, RetrieverConfig{})

	items := r.Retrieve(context.Background(), semanticIntent("chicken bowl for dinner"), RetrieveOptions{})
	assert.Equal(t, []string{"bowl"}, ids(items))
}

func TestSearch(t *testing.T) {
	store := &fakeStore{vector: candidates("1", "2", "3"), hasItems: true}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, RetrieverConfig{})

	items, err := r.Search(context.Background(), "bowl", 2, RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(items))
}

func TestSearchDistinguishesEmptyFromUnreachable(t *testing.T) {
	empty := NewRetriever(&fakeStore{hasItems: false}, &fakeEmbedder{}, nil, nil, RetrieverConfig{})
	items, err := empty.Search(context.Background(), "bowl", 10, RetrieveOptions{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	down := NewRetriever(&fakeStore{vectorErr: errFake, textErr: errFake, hasItemsErr: errFake}, &fakeEmbedder{}, nil, nil, RetrieverConfig{})
	_, err = down.Search(context.Background(), "bowl", 10, RetrieveOptions{})
	assert.ErrorIs(t, err, errFake)
}

func TestCatalogStatus(t *testing.T) {
	r := NewRetriever(&fakeStore{hasItems: true}, &fakeEmbedder{}, nil, nil, RetrieverConfig{})
	assert.NoError(t, r.CatalogStatus(context.Background()))

	r = NewRetriever(&fakeStore{}, &fakeEmbedder{}, nil, nil, RetrieverConfig{})
	assert.ErrorIs(t, r.CatalogStatus(context.Background()), ErrEmptyCatalog)
}

func TestRetrieveHeuristicReadsUserMessage(t *testing.T) {
	store := &fakeStore{vector: []models.MenuItem{
		{ID: "chips", Category: "Sides"},
		{ID: "bowl", Category: "Entree"},
	}}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, RetrieverConfig{})

	items := r.Retrieve(context.Background(), semanticIntent("chicken"), RetrieveOptions{})
	assert.Equal(t, []string{"chips", "bowl"}, ids(items))

	items = r.Retrieve(context.Background(), semanticIntent("chicken"), RetrieveOptions{UserMessage: "something with chicken for dinner"})
	assert.Equal(t, []string{"bowl"}, ids(items))
}

func TestCacheKeyIncludesLimit(t *testing.T) {
	assert.Equal(t, "20|tofu bowl", CacheKey(20, "  Tofu Bowl "))
	assert.NotEqual(t, CacheKey(10, "tofu"), CacheKey(20, "tofu"))
	assert.Equal(t, "", CacheKey(20, "   "))
}

func TestSearchDoesNotShrinkChatResults(t *testing.T) {
	var catalog []models.MenuItem
	for i := 0; i < 30; i++ {
		catalog = append(catalog, models.MenuItem{ID: fmt.Sprintf("m%02d", i)})
	}
	cache := newFakeCache()
	store := &fakeStore{vector: catalog, hasItems: true}

	bg := NewBackground(4, time.Second)
	r := NewRetriever(store, &fakeEmbedder{}, cache, bg, RetrieverConfig{VectorLimit: 20})
	found, err := r.Search(context.Background(), "tofu", 10, RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, found, 10)
	closeBackground(t, bg)

	bg = NewBackground(4, time.Second)
	r = NewRetriever(store, &fakeEmbedder{}, cache, bg, RetrieverConfig{VectorLimit: 20})
	items := r.Retrieve(context.Background(), semanticIntent("tofu"), RetrieveOptions{})
	closeBackground(t, bg)

	assert.Len(t, items, 20)
	assert.Len(t, cache.entries["10|tofu"], 10)
	assert.Len(t, cache.entries["20|tofu"], 20)
}
