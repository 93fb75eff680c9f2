package outsource

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// Fan-out bounds.
const (
	DefaultConcurrency = 10
	MaxConcurrency     = 20
)

// ClampConcurrency keeps n within 1..MaxConcurrency, mapping 0 to
// DefaultConcurrency.
func ClampConcurrency(n int) int {
	switch {
	case n == 0:
		return DefaultConcurrency
	case n < 1:
		return 1
	case n > MaxConcurrency:
		return MaxConcurrency
	}
	return n
}

// ResolveAll looks up codes with at most limit concurrent requests and
// returns the entities found, keyed by code.
//
// Codes the provider does not know are omitted. Other per-code failures are
// logged and also omitted so one bad request cannot stall a batch; only
// context cancellation is returned as an error.
func ResolveAll(ctx context.Context, p Provider, codes []string, limit int) (map[string]spatial.Entity, error) {
	var (
		mu    sync.Mutex
		found = make(map[string]spatial.Entity, len(codes))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ClampConcurrency(limit))

	for _, code := range codes {
		g.Go(func() error {
			e, err := p.Lookup(gctx, code)
			switch {
			case err == nil:
				mu.Lock()
				found[code] = e
				mu.Unlock()
			case errors.Is(err, ErrNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				slog.Warn("outsourced lookup failed",
					"provider", p.Name(),
					"geo_code", code,
					"error", err,
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return found, errors.Wrap(err, "outsourced lookups")
	}
	return found, nil
}
