package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundRunsTasks(t *testing.T) {
	bg := NewBackground(8, time.Second)

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		require.True(t, bg.Go("count", func(ctx context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	closeBackground(t, bg)

	assert.Equal(t, int32(5), n.Load())
	assert.False(t, bg.Go("late", func(ctx context.Context) error { return nil }))
}

func TestBackgroundDropsWhenFull(t *testing.T) {
	bg := NewBackground(1, time.Second)
	started := make(chan struct{})
	release := make(chan struct{})

	require.True(t, bg.Go("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	assert.False(t, bg.Go("dropped", func(ctx context.Context) error { return nil }))

	close(release)
	closeBackground(t, bg)
}

func TestBackgroundSurvivesPanicsAndErrors(t *testing.T) {
	bg := NewBackground(4, time.Second)

	var ran atomic.Bool
	bg.Go("panics", func(ctx context.Context) error { panic("boom") })
	bg.Go("fails", func(ctx context.Context) error { return errFake })
	bg.Go("works", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	closeBackground(t, bg)

	assert.True(t, ran.Load())
}

func TestBackgroundTaskTimeout(t *testing.T) {
	bg := NewBackground(1, 10*time.Millisecond)

	errCh := make(chan error, 1)
	bg.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	})
	closeBackground(t, bg)

	assert.ErrorIs(t, <-errCh, context.DeadlineExceeded)
}

func TestBackgroundCloseHonoursContext(t *testing.T) {
	bg := NewBackground(1, 0)
	release := make(chan struct{})
	bg.Go("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, bg.Close(ctx))
	close(release)
}
