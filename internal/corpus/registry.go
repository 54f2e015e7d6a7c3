package corpus

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry maps corpus names to their Store instances, creating stores
// lazily as documents for new corpora arrive.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
	logger *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]*Store),
		logger: slog.Default().With("component", "corpus-registry"),
	}
}

// Get returns the Store for the named corpus, if it exists.
func (r *Registry) Get(name string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[name]
	return store, ok
}

// GetOrCreate returns the Store for the named corpus, creating it on
// first use.
func (r *Registry) GetOrCreate(name string) *Store {
	r.mu.RLock()
	store, ok := r.stores[name]
	r.mu.RUnlock()
	if ok {
		return store
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok = r.stores[name]; ok {
		return store
	}
	store = NewStore(name)
	r.stores[name] = store
	r.logger.Info("corpus created", "corpus", name)
	return store
}

// Names returns all registered corpus names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered Store sorted by corpus name.
func (r *Registry) All() []*Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stores := make([]*Store, 0, len(r.stores))
	for _, store := range r.stores {
		stores = append(stores, store)
	}
	sort.Slice(stores, func(i, j int) bool {
		return stores[i].Name() < stores[j].Name()
	})
	return stores
}
