package outsource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/aggrada/internal/spatial"
)

func testClient() *Client {
	return NewClient(ClientConfig{Timeout: 2 * time.Second, RetryMax: 1})
}

// =============================================================================
// IBGE
// =============================================================================

func TestIBGE_Lookup(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"municipio-id":3550308,"municipio-nome":"São Paulo","UF-sigla":"SP"}]`)
	}))
	defer srv.Close()

	p, err := NewIBGE(testClient(), srv.URL, "city")
	require.NoError(t, err)

	e, err := p.Lookup(context.Background(), "3550308")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/localidades/municipios/3550308", gotPath)
	assert.Equal(t, "view=nivelado", gotQuery)
	assert.Equal(t, "3550308", e.GeoCode)
	assert.Equal(t, "ibge", e.Source)
	assert.Equal(t, "city", e.AdminLevel)
	assert.Equal(t, "São Paulo", e.Metadata["municipio-nome"])
	assert.Contains(t, e.Metadata["apiUrl"], "/municipios/3550308")
}

func TestIBGE_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty array", http.StatusOK, `[]`},
		{"empty object", http.StatusOK, `{}`},
		{"404", http.StatusNotFound, `{"message":"not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p, err := NewIBGE(testClient(), srv.URL, "state")
			require.NoError(t, err)

			_, err = p.Lookup(context.Background(), "99")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
		})
	}
}

func TestIBGE_UnsupportedLevel(t *testing.T) {
	_, err := NewIBGE(testClient(), "", "street")
	assert.Error(t, err)
}

func TestIBGE_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"id":35,"nome":"São Paulo"}`)
	}))
	defer srv.Close()

	p, err := NewIBGE(testClient(), srv.URL, "state")
	require.NoError(t, err)

	e, err := p.Lookup(context.Background(), "35")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "São Paulo", e.Metadata["nome"])
}

// =============================================================================
// CEP Aberto
// =============================================================================

func TestCEPAberto_Lookup(t *testing.T) {
	var gotAuth, gotCEP string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCEP = r.URL.Query().Get("cep")
		fmt.Fprint(w, `{
			"cep": "13563665",
			"latitude": "-22.0194400023",
			"longitude": "-47.8925532897",
			"bairro": "Jardim Ipanema",
			"cidade": {"ibge": "3548906", "nome": "São Carlos"}
		}`)
	}))
	defer srv.Close()

	p := NewCEPAberto(testClient(), srv.URL, "secret")
	e, err := p.Lookup(context.Background(), "13563-665")
	require.NoError(t, err)

	assert.Equal(t, "Token token=secret", gotAuth)
	assert.Equal(t, "13563665", gotCEP)
	assert.Equal(t, "13563-665", e.GeoCode)
	assert.Equal(t, "postal_code", e.AdminLevel)
	assert.Equal(t, "3548906", e.Metadata["cidade_ibge"])
	require.NotNil(t, e.Lat)
	require.NotNil(t, e.Lon)
	assert.InDelta(t, -22.01944, *e.Lat, 1e-4)
	assert.InDelta(t, -47.89255, *e.Lon, 1e-4)
	assert.Equal(t, 1900, e.StartDate.Year())
}

func TestCEPAberto_EmptyBodyIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewCEPAberto(testClient(), srv.URL, "").Lookup(context.Background(), "00000000")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(Settings{})
	assert.Equal(t, []string{"cepaberto", "ibge"}, r.Names())

	p, err := r.Provider("IBGE", "city")
	require.NoError(t, err)
	assert.Equal(t, "ibge", p.Name())

	_, err = r.Provider("here", "city")
	assert.ErrorContains(t, err, "known: cepaberto, ibge")

	assert.Panics(t, func() {
		r.Register("ibge", nil)
	})
}

// =============================================================================
// Fan-out
// =============================================================================

// fakeProvider answers from a map and tracks peak concurrency.
type fakeProvider struct {
	known   map[string]bool
	failing map[string]bool
	delay   time.Duration

	mu      sync.Mutex
	active  int
	peak    int
	lookups int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Lookup(ctx context.Context, code string) (spatial.Entity, error) {
	f.mu.Lock()
	f.active++
	f.lookups++
	f.peak = max(f.peak, f.active)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return spatial.Entity{}, ctx.Err()
	}

	if f.failing[code] {
		return spatial.Entity{}, errors.New("boom")
	}
	if !f.known[code] {
		return spatial.Entity{}, ErrNotFound
	}
	return spatial.Entity{GeoCode: code, Source: "fake", AdminLevel: "city"}, nil
}

func TestResolveAll(t *testing.T) {
	p := &fakeProvider{
		known:   map[string]bool{"a": true, "c": true},
		failing: map[string]bool{"d": true},
		delay:   5 * time.Millisecond,
	}

	found, err := ResolveAll(context.Background(), p, []string{"a", "b", "c", "d"}, 2)
	require.NoError(t, err)

	assert.Len(t, found, 2)
	assert.Equal(t, "a", found["a"].GeoCode)
	assert.Equal(t, "c", found["c"].GeoCode)
	assert.Equal(t, 4, p.lookups)
	assert.LessOrEqual(t, p.peak, 2)
}

func TestResolveAll_Cancelled(t *testing.T) {
	p := &fakeProvider{known: map[string]bool{"a": true}, delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ResolveAll(ctx, p, []string{"a"}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, DefaultConcurrency, ClampConcurrency(0))
	assert.Equal(t, 1, ClampConcurrency(-3))
	assert.Equal(t, 7, ClampConcurrency(7))
	assert.Equal(t, MaxConcurrency, ClampConcurrency(500))
}
