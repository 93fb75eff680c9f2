package spatial

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEntity struct {
	code  string
	id    int64
	start time.Time
}

// stubLookup answers from an in-memory entity list and records calls.
type stubLookup struct {
	entities    []stubEntity
	batchCalls  [][]string
	prefixCalls []string
	prefixErr   error
	batchErr    error
}

func (s *stubLookup) FindSpatialIDs(_ context.Context, _ Scope, codes []string) (map[string]int64, error) {
	s.batchCalls = append(s.batchCalls, append([]string(nil), codes...))
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	out := map[string]int64{}
	newest := map[string]time.Time{}
	for _, c := range codes {
		for _, e := range s.entities {
			if e.code != c {
				continue
			}
			if _, ok := out[c]; !ok || e.start.After(newest[c]) {
				out[c] = e.id
				newest[c] = e.start
			}
		}
	}
	return out, nil
}

func (s *stubLookup) FindSpatialByPrefix(_ context.Context, _ Scope, prefix string, notAfter time.Time) (int64, bool, error) {
	s.prefixCalls = append(s.prefixCalls, prefix)
	if s.prefixErr != nil {
		return 0, false, s.prefixErr
	}
	var best *stubEntity
	for i, e := range s.entities {
		if !strings.HasPrefix(e.code, prefix) || e.start.After(notAfter) {
			continue
		}
		if best == nil || e.start.After(best.start) {
			best = &s.entities[i]
		}
	}
	if best == nil {
		return 0, false, nil
	}
	return best.id, true, nil
}

type tierCounter map[string]int

func (c tierCounter) ObserveLookup(tier string) { c[tier]++ }

var ibgeCity = Scope{Source: "ibge", AdminLevel: "city"}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolver_PrefetchThenBatchHit(t *testing.T) {
	lookup := &stubLookup{entities: []stubEntity{
		{code: "3550308", id: 1, start: day(2000, 1, 1)},
		{code: "3550308", id: 7, start: day(2010, 1, 1)},
		{code: "3304557", id: 2, start: day(2000, 1, 1)},
	}}
	tiers := tierCounter{}
	r := NewResolver(lookup, NewCache(100, time.Minute), WithObserver(tiers))
	ctx := context.Background()

	batch, err := r.Prefetch(ctx, ibgeCity, []string{"3550308", "3304557", "3550308", "", "9999999"})
	require.NoError(t, err)

	require.Len(t, lookup.batchCalls, 1)
	assert.ElementsMatch(t, []string{"3550308", "3304557", "9999999"}, lookup.batchCalls[0])
	assert.Equal(t, 2, batch.Len())

	id, err := r.Resolve(ctx, batch, "3550308", day(2023, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id, "newest entity wins")
	assert.Equal(t, 1, tiers[TierBatch])

	// Prefetch hits are also in the global cache.
	cached, ok := r.Cache().Get(ibgeCity.Key("3304557"))
	require.True(t, ok)
	assert.Equal(t, int64(2), cached)
}

func TestResolver_PrefetchChunks(t *testing.T) {
	lookup := &stubLookup{}
	r := NewResolver(lookup, NewCache(10, time.Minute))

	codes := make([]string, 2*PrefetchChunk+5)
	for i := range codes {
		codes[i] = fmt.Sprintf("%07d", i)
	}
	_, err := r.Prefetch(context.Background(), ibgeCity, codes)
	require.NoError(t, err)

	require.Len(t, lookup.batchCalls, 3)
	assert.Len(t, lookup.batchCalls[0], PrefetchChunk)
	assert.Len(t, lookup.batchCalls[2], 5)
}

func TestResolver_PrefetchError(t *testing.T) {
	lookup := &stubLookup{batchErr: errors.New("connection refused")}
	r := NewResolver(lookup, NewCache(10, time.Minute))

	_, err := r.Prefetch(context.Background(), ibgeCity, []string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestResolver_CacheTier(t *testing.T) {
	tiers := tierCounter{}
	cache := NewCache(10, time.Minute)
	cache.Set(ibgeCity.Key("3550308"), 11)
	r := NewResolver(&stubLookup{}, cache, WithObserver(tiers))

	batch, err := r.Prefetch(context.Background(), ibgeCity, nil)
	require.NoError(t, err)

	id, err := r.Resolve(context.Background(), batch, "3550308", day(2023, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	assert.Equal(t, 1, tiers[TierCache])
}

func TestResolver_HierarchicalFallback(t *testing.T) {
	lookup := &stubLookup{entities: []stubEntity{
		{code: "3550308", id: 1, start: day(1990, 1, 1)},
		{code: "3550309", id: 2, start: day(2030, 1, 1)},
	}}
	tiers := tierCounter{}
	r := NewResolver(lookup, NewCache(10, time.Minute), WithObserver(tiers))
	ctx := context.Background()

	batch, err := r.Prefetch(ctx, ibgeCity, []string{"355030"})
	require.NoError(t, err)

	id, err := r.Resolve(ctx, batch, "355030", day(2023, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id, "entity valid after the observation is ignored")
	assert.Equal(t, []string{"355030"}, lookup.prefixCalls)
	assert.Equal(t, 1, tiers[TierFallback])

	// Written back to the cache, so a second resolve skips the query.
	id, err = r.Resolve(ctx, batch, "355030", day(2023, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Len(t, lookup.prefixCalls, 1)
	assert.Equal(t, 1, tiers[TierCache])
}

func TestResolver_FallbackOnlyForMatchingRule(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		code  string
	}{
		{"wrong length", ibgeCity, "3550308"},
		{"wrong source", Scope{Source: "osm", AdminLevel: "city"}, "355030"},
		{"wrong admin level", Scope{Source: "ibge", AdminLevel: "state"}, "355030"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &stubLookup{}
			r := NewResolver(lookup, NewCache(10, time.Minute))
			batch, err := r.Prefetch(context.Background(), tt.scope, []string{tt.code})
			require.NoError(t, err)

			_, err = r.Resolve(context.Background(), batch, tt.code, day(2023, 1, 1))
			assert.True(t, errors.Is(err, ErrNotFound))
			assert.Empty(t, lookup.prefixCalls)
		})
	}
}

func TestResolver_CustomRules(t *testing.T) {
	lookup := &stubLookup{entities: []stubEntity{{code: "13560-000", id: 5, start: day(2000, 1, 1)}}}
	scope := Scope{Source: "correios", AdminLevel: "postal_code"}
	r := NewResolver(lookup, NewCache(10, time.Minute),
		WithHierarchyRules(HierarchyRule{Source: "correios", AdminLevel: "postal_code", CodeLen: 5}))

	batch, err := r.Prefetch(context.Background(), scope, []string{"13560"})
	require.NoError(t, err)

	id, err := r.Resolve(context.Background(), batch, "13560", day(2023, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestResolver_FallbackErrorIsNotFound(t *testing.T) {
	lookup := &stubLookup{prefixErr: errors.New("statement timeout")}
	r := NewResolver(lookup, NewCache(10, time.Minute))
	batch, err := r.Prefetch(context.Background(), ibgeCity, []string{"355030"})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), batch, "355030", day(2023, 1, 1))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolver_Remember(t *testing.T) {
	r := NewResolver(&stubLookup{}, NewCache(10, time.Minute))
	batch, err := r.Prefetch(context.Background(), ibgeCity, []string{"x"})
	require.NoError(t, err)

	r.Remember(batch, "x", 9)

	id, err := r.Resolve(context.Background(), batch, "x", day(2023, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	batch.Release()
	assert.Equal(t, 0, batch.Len())
	id, ok := r.Cache().Get(ibgeCity.Key("x"))
	require.True(t, ok)
	assert.Equal(t, int64(9), id)
}

func TestResolver_EmptyCode(t *testing.T) {
	r := NewResolver(&stubLookup{}, NewCache(10, time.Minute))
	_, err := r.Resolve(context.Background(), nil, "", day(2023, 1, 1))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRank(t *testing.T) {
	r, ok := Rank(" City ")
	require.True(t, ok)
	assert.Equal(t, 8, r)

	_, ok = Rank("galaxy")
	assert.False(t, ok)
}
