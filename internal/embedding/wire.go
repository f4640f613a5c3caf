package embedding

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wheattoast11/deepresearch-mcp/internal/config"
)

// New wires the Embedding Provider from configuration: a deterministic
// local provider (no external embedding runtime is in scope per §4.2's
// non-goals), optionally fronted by a redis cache when REDIS_URL is set.
func New(cfg *config.Config, logger *slog.Logger) Provider {
	base := NewLocalProvider(cfg.VectorDimension)
	if cfg.RedisURL == "" {
		return base
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid REDIS_URL, running without embedding cache", "error", err)
		}
		return base
	}
	rdb := redis.NewClient(opts)
	return NewCachedProvider(base, rdb, 24*time.Hour, logger)
}
