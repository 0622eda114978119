package indicatorcache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// WarmMirror is an optional, best-effort secondary cache backed by Redis.
// It exists only to let separate chunk-worker processes share a warm start
// for expensive indicator recomputation; the authoritative per-run cache
// remains the in-process Cache (spec.md §4.2 forbids sharing that one across
// workers). Grounded on internal/market/cache.go's CachedCoinGeckoClient:
// async, non-blocking writes under a bounded timeout and redis.Nil miss
// handling.
type WarmMirror struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewWarmMirror wraps an existing redis client. ttl bounds how long a mirrored
// value stays valid; prefix namespaces keys per run.
func NewWarmMirror(client *redis.Client, prefix string, ttl time.Duration) *WarmMirror {
	return &WarmMirror{client: client, ttl: ttl, prefix: prefix}
}

func (w *WarmMirror) redisKey(key Key) string {
	return w.prefix + ":" + key.String()
}

// Get attempts to read a mirrored value; ok is false on miss or any error.
func (w *WarmMirror) Get(ctx context.Context, key Key) (float64, bool) {
	val, err := w.client.Get(ctx, w.redisKey(key)).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		log.Debug().Err(err).Msg("warm mirror get failed")
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SetAsync writes value for key without blocking the caller, bounded by a
// 2-second timeout, mirroring the teacher's non-blocking cache-write idiom.
func (w *WarmMirror) SetAsync(key Key, value float64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.client.Set(ctx, w.redisKey(key), strconv.FormatFloat(value, 'f', -1, 64), w.ttl).Err(); err != nil {
			log.Debug().Err(err).Msg("warm mirror set failed")
		}
	}()
}
