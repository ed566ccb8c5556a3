package dates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// Cache is the subset of the redis client the resolver needs
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
}

// cacheEntry records both outcomes so repeated unreadable input skips the resolver too
type cacheEntry struct {
	Resolved   bool       `json:"resolved"`
	Resolution Resolution `json:"resolution"`
}

// CachedResolver memoizes another Resolver in Redis. Cache failures are
// logged and fall through to the wrapped resolver.
type CachedResolver struct {
	next   Resolver
	cache  Cache
	ttl    time.Duration
	logger ectologger.Logger
}

// NewCachedResolver creates a new CachedResolver
func NewCachedResolver(next Resolver, cache Cache, ttl time.Duration, logger ectologger.Logger) *CachedResolver {
	return &CachedResolver{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// CacheKey is the key a raw date and hint are cached under
func CacheKey(raw string, hint models.DocumentCategory) string {
	return "dates:" + string(hint) + "|" + strings.Join(strings.Fields(raw), " ")
}

func (r *CachedResolver) Resolve(ctx context.Context, raw string, hint models.DocumentCategory) (Resolution, bool) {
	log := r.logger.WithContext(ctx)
	key := CacheKey(raw, hint)

	var entry cacheEntry
	err := r.cache.GetJSON(ctx, key, &entry)
	switch {
	case err == nil:
		metrics.RecordDateResolution("cache_hit")
		return entry.Resolution, entry.Resolved
	case !errors.Is(err, redis.ErrCacheMiss):
		log.WithError(err).Warn("Date cache read failed")
	}

	res, ok := r.next.Resolve(ctx, raw, hint)
	if ok {
		metrics.RecordDateResolution("resolved")
	} else {
		metrics.RecordDateResolution("unresolved")
	}

	if err := r.cache.SetJSON(ctx, key, cacheEntry{Resolved: ok, Resolution: res}, r.ttl); err != nil {
		log.WithError(err).Warn("Date cache write failed")
	}

	return res, ok
}
