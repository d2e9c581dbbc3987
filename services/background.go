package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blavejr/mealscout/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is a side effect that must never hold up or fail a response.
type Task func(ctx context.Context) error

// Background runs fire-and-forget tasks, at most limit at a time. Each task
// gets its own timeout, detached from the request that started it.
type Background struct {
	g       errgroup.Group
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewBackground(limit int, timeout time.Duration) *Background {
	if limit <= 0 {
		limit = 1
	}
	b := &Background{
		timeout: timeout,
		log:     logger.L().Named("background"),
	}
	b.g.SetLimit(limit)
	return b
}

func (b *Background) run(name string, fn Task) {
	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("background task panicked", zap.String("task", name), zap.Any("panic", r))
		}
	}()

	if err := fn(ctx); err != nil {
		b.log.Warn("background task failed", zap.String("task", name), zap.Error(err))
	}
}

// Go starts fn without blocking. It reports false when every slot is busy or
// the pool is closed; the task is then dropped.
func (b *Background) Go(name string, fn Task) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.log.Warn("background pool closed, dropping task", zap.String("task", name))
		return false
	}

	started := b.g.TryGo(func() error {
		b.run(name, fn)
		return nil
	})
	if !started {
		b.log.Warn("background pool full, dropping task", zap.String("task", name))
	}
	return started
}

// Close stops accepting tasks and waits for running ones to finish or ctx to end.
func (b *Background) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- b.g.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("background tasks still running: %w", ctx.Err())
	}
}
