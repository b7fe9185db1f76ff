package modules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pendergraft/piggyfactory/internal/ignition"
)

// Registry maps module IDs to modules
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*ignition.Module
}

// NewRegistry creates a registry holding the given modules
func NewRegistry(modules ...*ignition.Module) *Registry {
	r := &Registry{modules: make(map[string]*ignition.Module)}
	for _, m := range modules {
		r.Register(m)
	}
	return r
}

// Default returns a registry with every module in this package
func Default() *Registry {
	return NewRegistry(PiggyBankFactoryModule)
}

// Register adds a module, replacing any module with the same ID
func (r *Registry) Register(m *ignition.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.ID] = m
}

// Get returns a module by ID
func (r *Registry) Get(id string) (*ignition.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ignition.ErrUnknownModule, id)
	}
	return m, nil
}

// List returns all modules sorted by ID
func (r *Registry) List() []*ignition.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*ignition.Module, 0, len(r.modules))
	for _, m := range r.modules {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
