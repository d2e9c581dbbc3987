package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blavejr/mealscout/config"
	"github.com/blavejr/mealscout/controllers"
	"github.com/blavejr/mealscout/evaluation"
	"github.com/blavejr/mealscout/logger"
	"github.com/blavejr/mealscout/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const usage = `usage:
  mealscout [serve]            start the HTTP server
  mealscout ingest <dir>       import restaurant menu JSON files
  mealscout embed              embed catalog items that have no embedding
  mealscout evaluate [dataset] run the offline evaluation`

func main() {
	if err := logger.Init(os.Getenv("ENVIRONMENT")); err != nil {
		log.Fatalf("Failed to initialise logger: %v", err)
	}
	defer logger.Sync()

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "serve":
		err = runServer(ctx)
	case "ingest":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		err = runIngest(ctx, os.Args[2])
	case "embed":
		err = runEmbed(ctx)
	case "evaluate":
		// usage: mealscout evaluate [dataset.json]
		datasetPath := "evaluation/dataset.json"
		if len(os.Args) > 2 {
			datasetPath = os.Args[2]
		}
		err = runEvaluation(ctx, datasetPath)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return buildDeps(ctx, cfg)
}

func runServer(ctx context.Context) error {
	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	cfg := d.cfg

	if err := d.seedMemory(ctx); err != nil {
		return err
	}

	bg := services.NewBackground(cfg.BackgroundWorkers, cfg.StoreTimeout)
	pipeline := d.pipeline(bg)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := controllers.NewRouter(controllers.RouterDeps{
		Chat:        pipeline,
		Search:      pipeline,
		Usage:       d.usage,
		DailyLimit:  cfg.DailySearchLimit,
		Background:  bg,
		ServiceName: "mealscout",
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	logger.Info("MealScout server starting",
		zap.String("addr", addr),
		zap.String("catalog", cfg.CatalogDriver),
		zap.String("llm", cfg.LLMProvider),
		zap.String("embeddings", cfg.EmbedProvider),
		zap.String("cache", cfg.CacheBackend),
		zap.Bool("quota", d.usage != nil && cfg.DailySearchLimit > 0),
		zap.String("environment", cfg.Environment))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := bg.Close(shutdownCtx); err != nil {
		logger.Warn("background shutdown", zap.Error(err))
	}
	return nil
}

func runIngest(ctx context.Context, dir string) error {
	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.cfg.CatalogDriver == "memory" {
		logger.Warn("memory catalog is not persisted, ingest only validates the files")
	}

	start := time.Now()
	report, err := d.ingester().IngestDir(ctx, dir)
	if err != nil {
		return err
	}
	logger.Info("Ingest complete",
		zap.Int("files", report.Files),
		zap.Int("items", report.Items),
		zap.Int("embedded", report.Embedded),
		zap.Int("embedding_failures", report.Failed),
		zap.Duration("took", time.Since(start)))
	return nil
}

func runEmbed(ctx context.Context) error {
	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.seedMemory(ctx); err != nil {
		return err
	}

	report, err := d.ingester().Backfill(ctx)
	logger.Info("Embedding backfill finished",
		zap.Int("embedded", report.Embedded),
		zap.Int("failed", report.Failed))
	if err != nil {
		return err
	}
	if report.Embedded == 0 && report.Failed > 0 {
		return fmt.Errorf("no embeddings produced, %d items failed", report.Failed)
	}
	return nil
}

func runEvaluation(ctx context.Context, datasetPath string) error {
	logger.Info("Starting evaluation mode...")

	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	cfg := d.cfg

	if err := d.seedMemory(ctx); err != nil {
		return err
	}

	questions, err := evaluation.LoadDataset(datasetPath)
	if err != nil {
		return err
	}
	logger.Info("Loaded dataset", zap.Int("questions", len(questions)), zap.String("path", datasetPath))

	bg := services.NewBackground(cfg.BackgroundWorkers, cfg.StoreTimeout)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bg.Close(closeCtx)
	}()

	evaluator := evaluation.NewEvaluator(d.pipeline(bg), map[string]any{
		"catalog":            cfg.CatalogDriver,
		"llm_provider":       cfg.LLMProvider,
		"embed_provider":     cfg.EmbedProvider,
		"vector_match_count": cfg.VectorMatchCount,
		"text_match_count":   cfg.TextMatchCount,
		"cache_backend":      cfg.CacheBackend,
	})

	report, err := evaluator.Evaluate(ctx, questions)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	evaluation.PrintSummary(report)

	outputFile := "evaluation/results/baseline.json"
	if err := evaluation.SaveReport(report, outputFile); err != nil {
		return err
	}

	logger.Info("Evaluation complete", zap.String("results", outputFile))
	return nil
}
