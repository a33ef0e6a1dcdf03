package service

import (
	"context"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
	"github.com/MuhaiminulSajid16/image-to-text/internal/metrics"
)

// DefaultCacheTTL is how long a derived result is kept.
const DefaultCacheTTL = 2 * time.Minute

// ResultCache keeps recent upload results keyed by image content and crop.
// Only extracted text and analysis are cached, never the image.
type ResultCache struct {
	cache   *ttlcache.Cache[string, *domain.UploadResult]
	sfGroup *singleflight.Group
	timeout time.Duration
	log     *zap.Logger
}

// NewResultCache creates a cache. timeout bounds a shared computation, which
// outlives the request that started it; zero leaves it unbounded.
func NewResultCache(ttl time.Duration, capacity uint64, timeout time.Duration, log *zap.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	opts := []ttlcache.Option[string, *domain.UploadResult]{
		ttlcache.WithTTL[string, *domain.UploadResult](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.UploadResult](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *domain.UploadResult](capacity))
	}
	cache := ttlcache.New(opts...)
	go cache.Start()

	return &ResultCache{
		cache:   cache,
		sfGroup: &singleflight.Group{},
		timeout: timeout,
		log:     log,
	}
}

// GetOrCompute returns the cached result for up, or runs compute once for
// all concurrent callers with the same key. compute runs on a context
// detached from ctx: a caller whose ctx ends stops waiting while the
// computation continues for the rest. Failed computations are not cached.
func (c *ResultCache) GetOrCompute(ctx context.Context, up domain.Upload, compute func(context.Context) (*domain.UploadResult, error)) (*domain.UploadResult, error) {
	key := cacheKey(up)

	if item := c.cache.Get(key); item != nil {
		metrics.RecordCacheHit()
		c.log.Debug("Result cache hit", zap.String("filename", up.Filename))
		return clone(item.Value()), nil
	}

	ch := c.sfGroup.DoChan(key, func() (any, error) {
		metrics.RecordCacheMiss()
		computeCtx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			computeCtx, cancel = context.WithTimeout(computeCtx, c.timeout)
			defer cancel()
		}
		res, err := compute(computeCtx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, res, ttlcache.DefaultTTL)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			c.log.Debug("Singleflight hit for upload", zap.String("filename", up.Filename))
		}
		return clone(r.Val.(*domain.UploadResult)), nil
	}
}

func (c *ResultCache) Len() int {
	return c.cache.Len()
}

// Close stops the expiry loop.
func (c *ResultCache) Close() {
	c.cache.Stop()
}

func cacheKey(up domain.Upload) string {
	h := xxhash.New()
	_, _ = h.Write(up.Data)
	_, _ = h.WriteString("|")
	if c := up.Crop; c != nil {
		_, _ = h.WriteString(strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y) + "," +
			strconv.Itoa(c.Width) + "," + strconv.Itoa(c.Height))
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return string(buf[:])
}

func clone(r *domain.UploadResult) *domain.UploadResult {
	out := *r
	if r.Analysis != nil {
		a := *r.Analysis
		out.Analysis = &a
	}
	return &out
}
