package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type TextResponderFactory func(ctx context.Context) (TextResponder, error)

// Registry maps text-provider names to factories. Variants are registered at
// startup and the configured one is resolved once, not per call.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]TextResponderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]TextResponderFactory)}
}

func (r *Registry) Register(name string, f TextResponderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string) (TextResponder, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown text provider: %s", name)
	}
	return f(ctx)
}
