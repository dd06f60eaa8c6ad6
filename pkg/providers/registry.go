package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/externalcpi/pkg/config"
	"github.com/openfroyo/externalcpi/pkg/cpi"
)

// ErrCPINotFound is returned for names absent from the registry.
var ErrCPINotFound = errors.New("cpi not found")

// Factory builds the client for one configured CPI.
type Factory func(cfg config.CPIConfig) (*cpi.ExternalCpi, error)

// Registry holds the named CPIs of the current configuration. Reload swaps
// the whole set atomically; callers holding an old client keep using it.
type Registry struct {
	// mu protects the registry state.
	mu sync.RWMutex

	cpis        map[string]*cpi.ExternalCpi
	defaultName string
	factory     Factory
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		cpis:    make(map[string]*cpi.ExternalCpi),
		factory: factory,
	}
}

// Load replaces the registry contents with the CPIs in cfg. On error the
// previous contents stay in place.
func (r *Registry) Load(cfg *config.Config) error {
	cpis := make(map[string]*cpi.ExternalCpi, len(cfg.CPIs))
	for _, c := range cfg.CPIs {
		if _, exists := cpis[c.Name]; exists {
			return fmt.Errorf("cpi %s declared twice", c.Name)
		}
		client, err := r.factory(c)
		if err != nil {
			return fmt.Errorf("failed to create cpi %s: %w", c.Name, err)
		}
		cpis[c.Name] = client
	}

	if _, ok := cpis[cfg.DefaultCPI]; !ok {
		return fmt.Errorf("default cpi %q: %w", cfg.DefaultCPI, ErrCPINotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cpis = cpis
	r.defaultName = cfg.DefaultCPI
	return nil
}

// Reload is Load with the signature of config.ReloadFunc.
func (r *Registry) Reload(cfg *config.Config) error {
	return r.Load(cfg)
}

// Get returns the named CPI; an empty name selects the default.
func (r *Registry) Get(name string) (*cpi.ExternalCpi, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}
	c, ok := r.cpis[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCPINotFound, name)
	}
	return c, nil
}

// Default returns the default CPI.
func (r *Registry) Default() (*cpi.ExternalCpi, error) {
	return r.Get("")
}

// DefaultName returns the name of the default CPI.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Names lists the registered CPIs in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.cpis))
	for name := range r.cpis {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PingResult is the outcome of pinging one CPI.
type PingResult struct {
	Name     string
	Response string
	Err      error
}

// MaxConcurrentPings bounds the CPI processes PingAll runs at once.
const MaxConcurrentPings = 8

// PingAll pings every registered CPI concurrently. Results are sorted by
// name; a failed ping is reported in its result, never as a call failure.
func (r *Registry) PingAll(ctx context.Context) []PingResult {
	names := r.Names()
	results := make([]PingResult, len(names))

	var g errgroup.Group
	g.SetLimit(MaxConcurrentPings)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i].Name = name

			c, err := r.Get(name)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Response, results[i].Err = c.Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
