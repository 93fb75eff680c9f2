package outsource

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-faster/errors"
)

// Factory builds a provider for a given admin level.
type Factory func(adminLevel string) (Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Settings configures the built-in providers.
type Settings struct {
	Client           ClientConfig
	IBGEBaseURL      string
	CEPAbertoBaseURL string
	CEPAbertoToken   string
}

// DefaultRegistry registers "ibge" and "cepaberto" sharing one client.
func DefaultRegistry(s Settings) *Registry {
	client := NewClient(s.Client)
	r := NewRegistry()
	r.Register("ibge", func(adminLevel string) (Provider, error) {
		return NewIBGE(client, s.IBGEBaseURL, adminLevel)
	})
	r.Register("cepaberto", func(string) (Provider, error) {
		return NewCEPAberto(client, s.CEPAbertoBaseURL, s.CEPAbertoToken), nil
	})
	return r
}

// Register adds a factory. Panics if name is already registered.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := r.factories[key]; exists {
		panic("outsource provider already registered: " + name)
	}
	r.factories[key] = f
}

// Provider builds the named provider for adminLevel.
func (r *Registry) Provider(name, adminLevel string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unknown outsource provider %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return f(adminLevel)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
