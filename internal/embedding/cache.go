package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

func encodeBits(f float32) uint32 { return math.Float32bits(f) }
func decodeBits(b uint32) float32 { return math.Float32frombits(b) }

// cachedProvider wraps a Provider with an optional redis cache keyed by a
// content hash of the input text, grounded on the registry/redis-client
// injection pattern (a *redis.Client passed into a Config struct rather
// than constructed internally, so the caller controls connection pooling
// and lifetime). A cache miss or redis outage falls through to the wrapped
// provider; caching is a latency optimization, never a correctness
// dependency.
type cachedProvider struct {
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachedProvider wraps inner with a redis-backed embedding cache. If rdb
// is nil, it returns inner unwrapped — the cache is strictly optional
// (§4.2 says nothing requires a cache; REDIS_URL being unset just means no
// caching layer).
func NewCachedProvider(inner Provider, rdb *redis.Client, ttl time.Duration, log *slog.Logger) Provider {
	if rdb == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &cachedProvider{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *cachedProvider) Ready() bool    { return c.inner.Ready() }
func (c *cachedProvider) Dimension() int { return c.inner.Dimension() }

func (c *cachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text, c.inner.Dimension())
	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, vec)
	return vec, nil
}

func (c *cachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var misses []int
	for i, t := range texts {
		key := cacheKey(t, c.inner.Dimension())
		if vec, ok := c.get(ctx, key); ok {
			out[i] = vec
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return out, nil
	}
	missTexts := make([]string, len(misses))
	for j, idx := range misses {
		missTexts[j] = texts[idx]
	}
	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range misses {
		out[idx] = computed[j]
		c.set(ctx, cacheKey(texts[idx], c.inner.Dimension()), computed[j])
	}
	return out, nil
}

func (c *cachedProvider) get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if c.log != nil && err != redis.Nil {
			c.log.Warn("embedding cache get failed, falling through to provider", "error", err)
		}
		return nil, false
	}
	if len(raw)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		vec[i] = decodeBits(bits)
	}
	return vec, true
}

func (c *cachedProvider) set(ctx context.Context, key string, vec []float32) {
	raw := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], encodeBits(v))
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil && c.log != nil {
		c.log.Warn("embedding cache set failed", "error", err)
	}
}

func cacheKey(text string, dim int) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:v1:%d:%s", dim, base64.RawURLEncoding.EncodeToString(sum[:]))
}
