package web

// janitor.go runs background maintenance while the server is up.
//
// Expired spatial cache entries are dropped lazily on Get, but codes that
// are never asked for again would stay resident until eviction. The janitor
// sweeps them once per TTL. It stops when the context is cancelled.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// StartCacheJanitor purges expired entries from cache every interval. A
// non-positive interval uses the cache TTL. It blocks until ctx is done.
func StartCacheJanitor(ctx context.Context, cache *spatial.Cache, interval time.Duration) {
	if interval <= 0 {
		interval = cache.TTL()
	}
	slog.Info("cache janitor started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cache janitor stopped")
			return
		case <-ticker.C:
			runJanitor(cache)
		}
	}
}

func runJanitor(cache *spatial.Cache) int {
	start := time.Now()
	purged := cache.PurgeExpired()
	slog.Info("purged expired cache entries",
		"purged", purged,
		"remaining", cache.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
