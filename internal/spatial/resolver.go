// Package spatial resolves geo codes found in observation rows to spatial
// entity ids.
//
// Resolution tries, in order, a batch-scoped index filled by one bulk
// prefetch, the process-wide Cache, and a hierarchical prefix query for
// registries whose codes are sometimes truncated.
package spatial

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a code cannot be resolved by any tier.
var ErrNotFound = errors.New("spatial index not found")

// PrefetchChunk caps the number of codes sent in a single lookup query.
const PrefetchChunk = 1000

// Tier names where a resolution was satisfied.
const (
	TierBatch    = "batch"
	TierCache    = "cache"
	TierFallback = "fallback"
	TierMiss     = "miss"
)

// Lookup is the store surface needed for resolution.
type Lookup interface {
	// FindSpatialIDs returns the newest entity id per code within scope.
	// Codes with no entity are absent from the result.
	FindSpatialIDs(ctx context.Context, scope Scope, codes []string) (map[string]int64, error)

	// FindSpatialByPrefix returns the most recently valid entity whose code
	// starts with prefix and whose start date is not after notAfter.
	FindSpatialByPrefix(ctx context.Context, scope Scope, prefix string, notAfter time.Time) (int64, bool, error)
}

// Observer receives the tier of every resolution attempt.
type Observer interface {
	ObserveLookup(tier string)
}

// HierarchyRule enables the prefix fallback for codes of CodeLen characters
// in a given source and admin level.
type HierarchyRule struct {
	Source     string `yaml:"source"`
	AdminLevel string `yaml:"admin_level"`
	CodeLen    int    `yaml:"code_len"`
}

// DefaultHierarchyRules covers IBGE municipality codes published without
// their trailing check digit.
var DefaultHierarchyRules = []HierarchyRule{
	{Source: "ibge", AdminLevel: "city", CodeLen: 6},
}

func (r HierarchyRule) matches(scope Scope, code string) bool {
	return strings.EqualFold(r.Source, scope.Source) &&
		strings.EqualFold(r.AdminLevel, scope.AdminLevel) &&
		len(code) == r.CodeLen
}

// BatchIndex holds the prefetch results for one batch. It is owned by that
// batch and must not be shared.
type BatchIndex struct {
	scope Scope
	ids   map[string]int64
}

// Len returns the number of codes resolved by the prefetch.
func (b *BatchIndex) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ids)
}

// Release drops the batch's entries.
func (b *BatchIndex) Release() {
	if b == nil {
		return
	}
	clear(b.ids)
}

// Resolver resolves codes to entity ids. One Resolver may serve many runs;
// its only shared state is the Cache.
type Resolver struct {
	lookup   Lookup
	cache    *Cache
	rules    []HierarchyRule
	observer Observer
	logger   *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHierarchyRules replaces DefaultHierarchyRules.
func WithHierarchyRules(rules ...HierarchyRule) ResolverOption {
	return func(r *Resolver) {
		r.rules = rules
	}
}

// WithObserver reports resolution tiers to o.
func WithObserver(o Observer) ResolverOption {
	return func(r *Resolver) {
		r.observer = o
	}
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver backed by lookup and cache.
func NewResolver(lookup Lookup, cache *Cache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookup: lookup,
		cache:  cache,
		rules:  DefaultHierarchyRules,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the shared cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Prefetch resolves every distinct code in one pass, chunked by
// PrefetchChunk, and seeds the global cache with the hits.
func (r *Resolver) Prefetch(ctx context.Context, scope Scope, codes []string) (*BatchIndex, error) {
	batch := &BatchIndex{scope: scope, ids: make(map[string]int64, len(codes))}

	distinct := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		distinct = append(distinct, c)
	}

	for start := 0; start < len(distinct); start += PrefetchChunk {
		end := min(start+PrefetchChunk, len(distinct))
		found, err := r.lookup.FindSpatialIDs(ctx, scope, distinct[start:end])
		if err != nil {
			return nil, errors.Wrap(err, "prefetch spatial ids")
		}
		for code, id := range found {
			batch.ids[code] = id
			r.cache.Set(scope.Key(code), id)
		}
	}

	return batch, nil
}

// Resolve returns the entity id for code. observedAt is the start of the
// row's temporal range and bounds the fallback query.
func (r *Resolver) Resolve(ctx context.Context, batch *BatchIndex, code string, observedAt time.Time) (int64, error) {
	if code == "" {
		r.observe(TierMiss)
		return 0, ErrNotFound
	}

	if batch != nil {
		if id, ok := batch.ids[code]; ok {
			r.observe(TierBatch)
			return id, nil
		}
	}

	scope := Scope{}
	if batch != nil {
		scope = batch.scope
	}
	key := scope.Key(code)

	if id, ok := r.cache.Get(key); ok {
		r.observe(TierCache)
		return id, nil
	}

	if id, ok := r.fallback(ctx, scope, code, observedAt); ok {
		r.cache.Set(key, id)
		r.observe(TierFallback)
		return id, nil
	}

	r.observe(TierMiss)
	return 0, ErrNotFound
}

// Remember records an id obtained outside the normal tiers, such as from an
// outsourced registry, in both the batch index and the cache.
func (r *Resolver) Remember(batch *BatchIndex, code string, id int64) {
	if batch != nil {
		batch.ids[code] = id
		r.cache.Set(batch.scope.Key(code), id)
	}
}

func (r *Resolver) fallback(ctx context.Context, scope Scope, code string, observedAt time.Time) (int64, bool) {
	for _, rule := range r.rules {
		if !rule.matches(scope, code) {
			continue
		}
		id, ok, err := r.lookup.FindSpatialByPrefix(ctx, scope, code, observedAt)
		if err != nil {
			r.logger.Warn("spatial fallback query failed",
				"geo_code", code,
				"source", scope.Source,
				"admin_level", scope.AdminLevel,
				"error", err,
			)
			return 0, false
		}
		return id, ok
	}
	return 0, false
}

func (r *Resolver) observe(tier string) {
	if r.observer != nil {
		r.observer.ObserveLookup(tier)
	}
}
