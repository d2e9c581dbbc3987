package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BackfillBatchSize is how many unembedded items are fetched per round.
const BackfillBatchSize = 50

// menuItemNamespace makes ingest ids stable, so re-importing a file updates rows.
var menuItemNamespace = uuid.MustParse("6f1d7c1e-9a51-4c8e-8f0e-2b7a4d5e3c10")

type Ingester struct {
	writer       CatalogWriter
	embedder     Embedder
	concurrency  int
	embedTimeout time.Duration
	log          *zap.Logger
}

func NewIngester(writer CatalogWriter, embedder Embedder, concurrency int, embedTimeout time.Duration) *Ingester {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Ingester{
		writer:       writer,
		embedder:     embedder,
		concurrency:  concurrency,
		embedTimeout: embedTimeout,
		log:          logger.L().Named("ingest"),
	}
}

type IngestReport struct {
	Files    int `json:"files"`
	Items    int `json:"items"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// IngestDir loads every *.json file in dir. Each file holds one restaurant's
// menu as a JSON array; the restaurant name defaults to the title-cased file name.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (IngestReport, error) {
	var report IngestReport

	files, err := MenuFiles(dir)
	if err != nil {
		return report, err
	}

	for _, path := range files {
		items, err := LoadMenuFile(path)
		if err != nil {
			in.log.Error("skipping menu file", zap.String("file", path), zap.Error(err))
			continue
		}
		report.Files++

		embedded, failed := in.embedAll(ctx, items)
		report.Embedded += embedded
		report.Failed += failed

		written, err := in.writer.UpsertItems(ctx, items)
		if err != nil {
			return report, fmt.Errorf("failed to store items from %s: %w", filepath.Base(path), err)
		}
		report.Items += written
		in.log.Info("imported menu file",
			zap.String("file", filepath.Base(path)),
			zap.Int("items", written),
			zap.Int("embedding_failures", failed))
	}
	return report, nil
}

// BackfillReport counts the outcome of one backfill run. Failed items keep no
// embedding and are picked up again by the next run.
type BackfillReport struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// Backfill embeds catalog items that have no embedding yet, in batches.
// An item whose embedding fails is skipped for the rest of the run.
func (in *Ingester) Backfill(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport
	failed := make(map[string]bool)
	for {
		listed, err := in.writer.ItemsMissingEmbedding(ctx, BackfillBatchSize+len(failed))
		if err != nil {
			return report, fmt.Errorf("failed to list items without embeddings: %w", err)
		}
		items := make([]models.MenuItem, 0, len(listed))
		for _, item := range listed {
			if !failed[item.ID] {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			return report, nil
		}

		var mu sync.Mutex
		var done atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(in.concurrency)
		for _, item := range items {
			g.Go(func() error {
				emb, err := in.embed(gctx, EmbeddingText(item))
				if err != nil {
					in.log.Warn("embedding failed", zap.String("id", item.ID), zap.Error(err))
					mu.Lock()
					failed[item.ID] = true
					mu.Unlock()
					return nil
				}
				if err := in.writer.SetEmbedding(gctx, item.ID, emb); err != nil {
					return fmt.Errorf("failed to store embedding for %s: %w", item.ID, err)
				}
				done.Add(1)
				return nil
			})
		}
		err = g.Wait()
		report.Embedded += int(done.Load())
		report.Failed = len(failed)
		if err != nil {
			return report, err
		}
		in.log.Info("backfilled batch", zap.Int64("embedded", done.Load()), zap.Int("batch", len(items)))
	}
}

func (in *Ingester) embedAll(ctx context.Context, items []models.MenuItem) (embedded, failed int) {
	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i := range items {
		g.Go(func() error {
			emb, err := in.embed(gctx, EmbeddingText(items[i]))
			if err != nil {
				bad.Add(1)
				in.log.Warn("embedding failed", zap.String("item", items[i].DisplayName()), zap.Error(err))
				return nil
			}
			items[i].Embedding = emb
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

func (in *Ingester) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, in.embedTimeout)
	defer cancel()
	return in.embedder.Embed(ctx, text)
}

// MenuFiles lists the *.json files of dir in name order.
func MenuFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadMenuFile parses one restaurant file and fills in restaurant names and ids.
func LoadMenuFile(path string) ([]models.MenuItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}

	var items []models.MenuItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse menu file: %w", err)
	}

	restaurant := RestaurantFromFilename(path)
	now := time.Now().UTC()
	for i := range items {
		if items[i].RestaurantName == "" {
			items[i].RestaurantName = restaurant
		}
		if items[i].ID == "" {
			key := strings.ToLower(items[i].RestaurantName + "|" + items[i].DisplayName())
			items[i].ID = uuid.NewSHA1(menuItemNamespace, []byte(key)).String()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
	}
	return items, nil
}

// RestaurantFromFilename turns "sweet-green_menu.json" into "Sweet Green Menu".
func RestaurantFromFilename(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// EmbeddingText is the text embedded for an item: "<name>: <description>".
func EmbeddingText(item models.MenuItem) string {
	text := item.DisplayName()
	if item.Description != "" {
		text += ": " + item.Description
	}
	return cleanText(text)
}

// cleanText removes excessive whitespace and normalizes text
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	var cleanedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			line = strings.Join(strings.Fields(line), " ")
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, " ")
}
