package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS menu_items (
	id              TEXT PRIMARY KEY,
	name            TEXT,
	item_name       TEXT,
	restaurant_name TEXT NOT NULL,
	category        TEXT,
	macros          JSONB,
	calories        DOUBLE PRECISION,
	protein_g       DOUBLE PRECISION,
	protein         DOUBLE PRECISION,
	carbs_g         DOUBLE PRECISION,
	carbs           DOUBLE PRECISION,
	fats_g          DOUBLE PRECISION,
	fat_g           DOUBLE PRECISION,
	fats            DOUBLE PRECISION,
	fat             DOUBLE PRECISION,
	dietary_tags    TEXT[],
	description     TEXT,
	image_url       TEXT,
	price           DOUBLE PRECISION,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	embedding       vector,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS menu_items_restaurant_idx ON menu_items (lower(restaurant_name));

CREATE TABLE IF NOT EXISTS query_cache (
	key        TEXT PRIMARY KEY,
	items      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const menuColumns = `id, coalesce(name, ''), coalesce(item_name, ''), restaurant_name, coalesce(category, ''),
	macros, calories, protein_g, protein, carbs_g, carbs, fats_g, fat_g, fats, fat,
	dietary_tags, coalesce(description, ''), image_url, price, latitude, longitude`

// PostgresStore is the menu catalog on Postgres with pgvector.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, log: logger.L().Named("postgres")}
	s.log.Info("connected to Postgres")
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func scanMenuItem(row pgx.Row, extra ...any) (models.MenuItem, error) {
	var (
		item   models.MenuItem
		macros []byte
	)
	dest := []any{
		&item.ID, &item.Name, &item.ItemName, &item.RestaurantName, &item.Category,
		&macros, &item.Calories, &item.ProteinG, &item.Protein, &item.CarbsG, &item.Carbs,
		&item.FatsG, &item.FatG, &item.Fats, &item.Fat,
		&item.DietaryTags, &item.Description, &item.ImageURL, &item.Price, &item.Latitude, &item.Longitude,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return item, err
	}
	if len(macros) > 0 {
		var m models.Macros
		if err := json.Unmarshal(macros, &m); err != nil {
			return item, fmt.Errorf("failed to decode macros for %s: %w", item.ID, err)
		}
		item.Macros = &m
	}
	return item, nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]models.MenuItem, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	items := []models.MenuItem{}
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read menu items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) FindByRestaurant(ctx context.Context, name string, limit int) ([]models.MenuItem, error) {
	return s.query(ctx,
		`SELECT `+menuColumns+` FROM menu_items WHERE restaurant_name ILIKE $1 LIMIT $2`,
		escapeLike(name), limit)
}

func (s *PostgresStore) TextSearch(ctx context.Context, query string, limit int) ([]models.MenuItem, error) {
	return s.query(ctx,
		`SELECT `+menuColumns+` FROM menu_items
		WHERE name ILIKE $1 OR item_name ILIKE $1 OR description ILIKE $1
		LIMIT $2`,
		escapeLike(query), limit)
}

// VectorSearch ranks by cosine distance; similarity is 1 - distance.
func (s *PostgresStore) VectorSearch(ctx context.Context, embedding []float32, threshold float64, limit int) ([]models.MenuItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+menuColumns+`, 1 - (embedding <=> $1) AS similarity
		FROM menu_items
		WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	items := []models.MenuItem{}
	for rows.Next() {
		var similarity float64
		item, err := scanMenuItem(rows, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vector results: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) HasItems(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM menu_items)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check menu items: %w", err)
	}
	return exists, nil
}

const upsertMenuItem = `
INSERT INTO menu_items (id, name, item_name, restaurant_name, category, macros,
	calories, protein_g, protein, carbs_g, carbs, fats_g, fat_g, fats, fat,
	dietary_tags, description, image_url, price, latitude, longitude, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	item_name = EXCLUDED.item_name,
	restaurant_name = EXCLUDED.restaurant_name,
	category = EXCLUDED.category,
	macros = EXCLUDED.macros,
	calories = EXCLUDED.calories,
	protein_g = EXCLUDED.protein_g,
	protein = EXCLUDED.protein,
	carbs_g = EXCLUDED.carbs_g,
	carbs = EXCLUDED.carbs,
	fats_g = EXCLUDED.fats_g,
	fat_g = EXCLUDED.fat_g,
	fats = EXCLUDED.fats,
	fat = EXCLUDED.fat,
	dietary_tags = EXCLUDED.dietary_tags,
	description = EXCLUDED.description,
	image_url = EXCLUDED.image_url,
	price = EXCLUDED.price,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	embedding = COALESCE(EXCLUDED.embedding, menu_items.embedding)`

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PostgresStore) UpsertItems(ctx context.Context, items []models.MenuItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		var macros []byte
		if item.Macros != nil {
			b, err := json.Marshal(item.Macros)
			if err != nil {
				return 0, fmt.Errorf("failed to encode macros for %s: %w", item.ID, err)
			}
			macros = b
		}
		var embedding any
		if len(item.Embedding) > 0 {
			embedding = pgvector.NewVector(item.Embedding)
		}
		createdAt := item.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		batch.Queue(upsertMenuItem,
			item.ID, nullable(item.Name), nullable(item.ItemName), item.RestaurantName, nullable(item.Category), macros,
			item.Calories, item.ProteinG, item.Protein, item.CarbsG, item.Carbs,
			item.FatsG, item.FatG, item.Fats, item.Fat,
			item.DietaryTags, nullable(item.Description), item.ImageURL, item.Price, item.Latitude, item.Longitude,
			embedding, createdAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range items {
		if _, err := br.Exec(); err != nil {
			return written, fmt.Errorf("failed to upsert menu item: %w", err)
		}
		written++
	}
	return written, nil
}

func (s *PostgresStore) ItemsMissingEmbedding(ctx context.Context, limit int) ([]models.MenuItem, error) {
	return s.query(ctx, `SELECT `+menuColumns+` FROM menu_items WHERE embedding IS NULL LIMIT $1`, limit)
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `UPDATE menu_items SET embedding = $2 WHERE id = $1`, id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	return nil
}

// QueryCache returns the query cache kept in the query_cache table.
func (s *PostgresStore) QueryCache(ttl time.Duration) *PostgresQueryCache {
	return &PostgresQueryCache{pool: s.pool, ttl: ttl}
}

type PostgresQueryCache struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func (c *PostgresQueryCache) Get(ctx context.Context, key string) ([]models.MenuItem, bool, error) {
	var (
		raw       []byte
		createdAt time.Time
	)
	err := c.pool.QueryRow(ctx, `SELECT items, created_at FROM query_cache WHERE key = $1`, key).Scan(&raw, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read query cache: %w", err)
	}
	if c.ttl > 0 && time.Since(createdAt) > c.ttl {
		return nil, false, nil
	}

	var items []models.MenuItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached items: %w", err)
	}
	return items, true, nil
}

func (c *PostgresQueryCache) Set(ctx context.Context, key string, items []models.MenuItem) error {
	raw, err := json.Marshal(stripEmbeddings(items))
	if err != nil {
		return fmt.Errorf("failed to encode cached items: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO query_cache (key, items, created_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET items = EXCLUDED.items, created_at = now()`,
		key, raw)
	if err != nil {
		return fmt.Errorf("failed to write query cache: %w", err)
	}
	return nil
}
