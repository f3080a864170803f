package client

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/pmid-resolver/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL is how long successful payloads stay cached.
const DefaultCacheTTL = 24 * time.Hour

// CachedExecutor serves successful payloads from the cache and stores new
// ones. Cache failures are logged and fall through to the wrapped executor.
type CachedExecutor struct {
	next   Executor
	cache  *cache.Manager
	ttl    time.Duration
	logger zerolog.Logger
}

var _ Executor = (*CachedExecutor)(nil)

// NewCachedExecutor wraps next. A non-positive ttl uses DefaultCacheTTL.
func NewCachedExecutor(next Executor, manager *cache.Manager, ttl time.Duration) *CachedExecutor {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedExecutor{
		next:   next,
		cache:  manager,
		ttl:    ttl,
		logger: log.With().Str("component", "search-cache").Logger(),
	}
}

// Execute returns a cached Success when available, otherwise delegates.
func (c *CachedExecutor) Execute(ctx context.Context, target string) Outcome {
	key, err := cache.KeyFromTarget(target)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cannot derive cache key, bypassing cache")
		return c.next.Execute(ctx, target)
	}

	entry, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug().Str("key", key.String()).Msg("Cache hit")
		return Success(entry.Data)
	case errors.Is(err, cache.ErrCacheMiss):
		c.logger.Debug().Str("key", key.String()).Msg("Cache miss")
	default:
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	outcome := c.next.Execute(ctx, target)
	if outcome.Kind != OutcomeSuccess {
		return outcome
	}

	if err := c.cache.Set(ctx, key, cache.NewEntry(outcome.Payload, c.ttl)); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache payload")
	}
	return outcome
}
