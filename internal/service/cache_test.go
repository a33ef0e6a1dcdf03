package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
)

func TestResultCacheGetOrCompute(t *testing.T) {
	cache := NewResultCache(time.Minute, 8, 0, zap.NewNop())
	defer cache.Close()

	var calls atomic.Int32
	compute := func(context.Context) (*domain.UploadResult, error) {
		calls.Add(1)
		return &domain.UploadResult{ExtractedText: "Rx", Analysis: &domain.Analysis{Medication: "a"}}, nil
	}

	up := domain.Upload{Data: []byte("image")}
	first, err := cache.GetOrCompute(context.Background(), up, compute)
	require.NoError(t, err)
	first.Analysis.Medication = "changed"

	second, err := cache.GetOrCompute(context.Background(), up, compute)
	require.NoError(t, err)
	assert.Equal(t, "a", second.Analysis.Medication)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestResultCacheSkipsErrors(t *testing.T) {
	cache := NewResultCache(time.Minute, 8, 0, zap.NewNop())
	defer cache.Close()

	boom := errors.New("boom")
	_, err := cache.GetOrCompute(context.Background(), domain.Upload{Data: []byte("x")}, func(context.Context) (*domain.UploadResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())
}

func TestResultCacheCollapsesConcurrentCalls(t *testing.T) {
	cache := NewResultCache(time.Minute, 8, 0, zap.NewNop())
	defer cache.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*domain.UploadResult, error) {
		calls.Add(1)
		<-release
		return &domain.UploadResult{ExtractedText: "Rx"}, nil
	}

	up := domain.Upload{Data: []byte("same")}
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := cache.GetOrCompute(context.Background(), up, compute)
			assert.NoError(t, err)
			assert.Equal(t, "Rx", res.ExtractedText)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestResultCacheSurvivesStarterCancel(t *testing.T) {
	cache := NewResultCache(time.Minute, 8, 0, zap.NewNop())
	defer cache.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var computeErr atomic.Value
	compute := func(ctx context.Context) (*domain.UploadResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			computeErr.Store(err)
			return nil, err
		}
		return &domain.UploadResult{ExtractedText: "Rx"}, nil
	}

	up := domain.Upload{Data: []byte("shared")}
	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.GetOrCompute(ctxA, up, compute)
		errA <- err
	}()
	<-started

	type outcome struct {
		res *domain.UploadResult
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		res, err := cache.GetOrCompute(context.Background(), up, compute)
		resB <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "Rx", b.res.ExtractedText)
	assert.Nil(t, computeErr.Load())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestResultCacheBoundsSharedCompute(t *testing.T) {
	cache := NewResultCache(time.Minute, 8, 20*time.Millisecond, zap.NewNop())
	defer cache.Close()

	_, err := cache.GetOrCompute(context.Background(), domain.Upload{Data: []byte("slow")}, func(ctx context.Context) (*domain.UploadResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheKey(t *testing.T) {
	a := cacheKey(domain.Upload{Data: []byte("img")})
	b := cacheKey(domain.Upload{Data: []byte("img"), Crop: &domain.Crop{X: 1, Y: 2, Width: 3, Height: 4}})
	c := cacheKey(domain.Upload{Data: []byte("img"), Crop: &domain.Crop{X: 1, Y: 2, Width: 3, Height: 5}})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.Equal(t, a, cacheKey(domain.Upload{Data: []byte("img"), Filename: "other.png"}))
}
