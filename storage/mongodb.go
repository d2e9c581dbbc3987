package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/blavejr/mealscout/config"
	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore is the menu catalog on MongoDB. Vector search uses an Atlas
// $vectorSearch index when one exists and scores in process otherwise.
type MongoStore struct {
	client      *mongo.Client
	database    *mongo.Database
	collection  *mongo.Collection
	cache       *mongo.Collection
	vectorIndex string
	log         *zap.Logger
}

func NewMongoStore(cfg *config.Config) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.MongoDatabase)
	s := &MongoStore{
		client:      client,
		database:    database,
		collection:  database.Collection(cfg.MongoCollection),
		cache:       database.Collection(cfg.MongoCacheCollection),
		vectorIndex: cfg.MongoVectorIndex,
		log:         logger.L().Named("mongo"),
	}

	s.log.Info("connected to MongoDB",
		zap.String("database", cfg.MongoDatabase),
		zap.String("collection", cfg.MongoCollection))
	return s, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the restaurant lookup index and the cache TTL index.
// The Atlas vector index is managed outside the application.
func (s *MongoStore) EnsureIndexes(ctx context.Context, cacheTTL time.Duration) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "restaurant_name", Value: 1}},
		Options: options.Index().SetName("restaurant_name_1"),
	})
	if err != nil {
		return fmt.Errorf("failed to create restaurant index: %w", err)
	}

	if cacheTTL > 0 {
		_, err = s.cache.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().
				SetName("created_at_ttl").
				SetExpireAfterSeconds(int32(cacheTTL.Seconds())),
		})
		if err != nil {
			return fmt.Errorf("failed to create cache ttl index: %w", err)
		}
	}
	return nil
}

var withoutEmbedding = bson.D{{Key: "embedding", Value: 0}}

func containsPattern(s string) bson.D {
	return bson.D{
		{Key: "$regex", Value: regexp.QuoteMeta(s)},
		{Key: "$options", Value: "i"},
	}
}

func (s *MongoStore) find(ctx context.Context, filter any, limit int) ([]models.MenuItem, error) {
	opts := options.Find().SetProjection(withoutEmbedding)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find menu items: %w", err)
	}
	defer cursor.Close(ctx)

	items := []models.MenuItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode menu items: %w", err)
	}
	return items, nil
}

// FindByRestaurant matches restaurant_name case-insensitively as a substring.
func (s *MongoStore) FindByRestaurant(ctx context.Context, name string, limit int) ([]models.MenuItem, error) {
	return s.find(ctx, bson.M{"restaurant_name": containsPattern(name)}, limit)
}

// TextSearch ORs a case-insensitive substring match over name, item_name and description.
func (s *MongoStore) TextSearch(ctx context.Context, query string, limit int) ([]models.MenuItem, error) {
	p := containsPattern(query)
	filter := bson.M{"$or": bson.A{
		bson.M{"name": p},
		bson.M{"item_name": p},
		bson.M{"description": p},
	}}
	return s.find(ctx, filter, limit)
}

func (s *MongoStore) HasItems(ctx context.Context) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count menu items: %w", err)
	}
	return n > 0, nil
}

// VectorSearch returns up to limit items whose similarity is at least threshold,
// best first.
func (s *MongoStore) VectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.MenuItem, error) {
	if len(embedding) == 0 {
		return nil, errors.New("empty query embedding")
	}

	if s.vectorIndex != "" {
		items, err := s.atlasVectorSearch(ctx, embedding, threshold, limit)
		if err == nil {
			return items, nil
		}
		s.log.Debug("atlas vector search unavailable, scoring in process", zap.Error(err))
	}
	return s.simpleVectorSearch(ctx, embedding, threshold, limit)
}

func (s *MongoStore) atlasVectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.MenuItem, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.vectorIndex},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: embedding},
			{Key: "numCandidates", Value: limit * 10},
			{Key: "limit", Value: limit},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
		{{Key: "$match", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$gte", Value: threshold}}},
		}}},
		{{Key: "$project", Value: withoutEmbedding}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	items := []models.MenuItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode vector results: %w", err)
	}
	return items, nil
}

type scoredItem struct {
	item  models.MenuItem
	score float64
}

// simpleVectorSearch scores every embedded item with cosine similarity.
func (s *MongoStore) simpleVectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.MenuItem, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"embedding.0": bson.M{"$exists": true}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch menu items: %w", err)
	}
	defer cursor.Close(ctx)

	var scored []scoredItem
	for cursor.Next(ctx) {
		var item models.MenuItem
		if err := cursor.Decode(&item); err != nil {
			s.log.Warn("failed to decode menu item", zap.Error(err))
			continue
		}
		if len(item.Embedding) != len(embedding) {
			continue
		}
		score := cosineSimilarity(embedding, item.Embedding)
		if score < threshold {
			continue
		}
		item.Embedding = nil
		scored = append(scored, scoredItem{item: item, score: score})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return topScored(scored, limit), nil
}

func topScored(scored []scoredItem, limit int) []models.MenuItem {
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	items := make([]models.MenuItem, len(scored))
	for i, s := range scored {
		items[i] = s.item
	}
	return items
}

// calculate cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// UpsertItems replaces items by id, inserting the ones that do not exist yet.
func (s *MongoStore) UpsertItems(ctx context.Context, items []models.MenuItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	writes := make([]mongo.WriteModel, len(items))
	for i, item := range items {
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": item.ID}).
			SetReplacement(item).
			SetUpsert(true)
	}

	start := time.Now()
	res, err := s.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert menu items: %w", err)
	}
	s.log.Debug("upserted menu items",
		zap.Int("items", len(items)),
		zap.Duration("took", time.Since(start)))
	return int(res.UpsertedCount + res.MatchedCount), nil
}

func (s *MongoStore) ItemsMissingEmbedding(ctx context.Context, limit int) ([]models.MenuItem, error) {
	filter := bson.M{"embedding.0": bson.M{"$exists": false}}
	return s.find(ctx, filter, limit)
}

func (s *MongoStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := s.collection.UpdateByID(ctx, id, bson.M{"$set": bson.M{"embedding": embedding}})
	if err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	return nil
}

// QueryCache returns the query cache kept in the cache collection.
func (s *MongoStore) QueryCache(ttl time.Duration) *MongoQueryCache {
	return &MongoQueryCache{collection: s.cache, ttl: ttl}
}

type MongoQueryCache struct {
	collection *mongo.Collection
	ttl        time.Duration
}

type cacheEntry struct {
	Key       string            `bson:"_id"`
	Items     []models.MenuItem `bson:"items"`
	CreatedAt time.Time         `bson:"created_at"`
}

func (c *MongoQueryCache) Get(ctx context.Context, key string) ([]models.MenuItem, bool, error) {
	var entry cacheEntry
	err := c.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read query cache: %w", err)
	}
	// the TTL monitor runs about once a minute, so check expiry here too
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		return nil, false, nil
	}
	return entry.Items, true, nil
}

func (c *MongoQueryCache) Set(ctx context.Context, key string, items []models.MenuItem) error {
	entry := cacheEntry{Key: key, Items: stripEmbeddings(items), CreatedAt: time.Now().UTC()}
	_, err := c.collection.ReplaceOne(ctx, bson.M{"_id": key}, entry, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write query cache: %w", err)
	}
	return nil
}

func stripEmbeddings(items []models.MenuItem) []models.MenuItem {
	out := make([]models.MenuItem, len(items))
	for i, item := range items {
		item.Embedding = nil
		item.Distance = nil
		out[i] = item
	}
	return out
}
