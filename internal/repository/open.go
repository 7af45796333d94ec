package repository

import (
	"context"

	"github.com/rs/zerolog"
)

// Open picks the Store for the lifetime of the process. Without a Redis address the
// in-memory store is used silently; if Redis is configured but unreachable now, the
// in-memory store is used from here on so the same key is never counted in both.
func Open(ctx context.Context, o RedisOptions, logger zerolog.Logger) Store {
	if o.Addr == "" {
		logger.Info().Str("backend", "memory").Msg("no redis configured, using in-process counters")
		return NewMemoryStore()
	}
	r, err := NewRedisStore(ctx, o)
	if err != nil {
		logger.Warn().Err(err).Str("addr", o.Addr).Str("backend", "memory").
			Msg("redis unreachable at startup, falling back to in-process counters")
		return NewMemoryStore()
	}
	logger.Info().Str("backend", "redis").Str("addr", o.Addr).Msg("using redis counters")
	return r
}
